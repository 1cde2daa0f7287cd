package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tickertracker/internal/bus"
	"tickertracker/internal/unit"
)

func TestBuffer_LastIsReverseInsertionOrder(t *testing.T) {
	for _, tc := range []struct {
		capacity, inserts int
	}{
		{capacity: 1, inserts: 0},
		{capacity: 1, inserts: 5},
		{capacity: 3, inserts: 2},
		{capacity: 3, inserts: 3},
		{capacity: 5, inserts: 17},
		{capacity: 100, inserts: 250},
	} {
		t.Run(fmt.Sprintf("cap=%d/n=%d", tc.capacity, tc.inserts), func(t *testing.T) {
			b := NewBuffer(tc.capacity)
			for i := range tc.inserts {
				b.Push(fmt.Sprint(i))
				require.LessOrEqual(t, b.Len(), tc.capacity)
			}

			kept := min(tc.inserts, tc.capacity)
			assert.Equal(t, kept, b.Len())
			for k := 0; k <= kept; k++ {
				got := b.Last(k)
				require.Len(t, got, k)
				for i, line := range got {
					assert.Equal(t, fmt.Sprint(tc.inserts-1-i), line)
				}
			}
			assert.Len(t, b.Last(kept+10), kept)
		})
	}
}

func TestBuffer_LastReturnsCopy(t *testing.T) {
	b := NewBuffer(2)
	b.Push("a")
	got := b.Last(1)
	got[0] = "mutated"
	assert.Equal(t, []string{"a"}, b.Last(1))
}

func TestBuffer_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewBuffer(0).Cap())
	assert.Empty(t, NewBuffer(3).Last(-1))
}

func TestCache_RecordsTicksAndAnswersQueries(t *testing.T) {
	b := bus.New(zap.NewNop())
	addr, err := unit.Start(NewFactory(3, zap.NewNop()), unit.Options{Name: "history", Bus: b})
	require.NoError(t, err)
	t.Cleanup(func() {
		addr.Stop()
		addr.Wait()
	})
	client := NewClient(addr)

	for _, l := range []string{"l1", "l2", "l3", "l4"} {
		b.Publish(bus.Tick("S", l))
	}
	b.Publish(bus.Error("S", fmt.Errorf("ignored")))

	require.Eventually(t, func() bool {
		got, err := client.Last(t.Context(), 10)
		return err == nil && len(got) == 3
	}, time.Second, time.Millisecond)

	got, err := client.Last(t.Context(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"l4", "l3"}, got)
}

func TestCache_RejectsUnknownRequest(t *testing.T) {
	addr, err := unit.Start(NewFactory(3, nil), unit.Options{Name: "history", Bus: bus.New(nil)})
	require.NoError(t, err)
	t.Cleanup(func() {
		addr.Stop()
		addr.Wait()
	})

	_, err = addr.Call(t.Context(), "tail")
	assert.ErrorContains(t, err, "unsupported request")
}

func TestClient_StoppedCache(t *testing.T) {
	addr, err := unit.Start(NewFactory(3, nil), unit.Options{Name: "history", Bus: bus.New(nil)})
	require.NoError(t, err)
	addr.Stop()
	addr.Wait()

	_, err = NewClient(addr).Last(t.Context(), 1)
	assert.ErrorIs(t, err, bus.ErrClosed)
}
