package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"tickertracker/internal/bus"
	"tickertracker/internal/provider"
	"tickertracker/internal/provider/mock"
	"tickertracker/internal/tickline"
	"tickertracker/internal/unit"
)

var from = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func sampleSeries() provider.Series {
	s := provider.Series{Symbol: "AAPL", Currency: "USD"}
	for i, v := range []float64{1.0, 11.2, -13.6, 0.004, 500.9, -27.1, -26.2, 5.4, 2.0} {
		s.Samples = append(s.Samples, provider.Sample{At: from.AddDate(0, 0, i), AdjClose: v})
	}
	return s
}

type harness struct {
	bus    *bus.Bus
	ticks  *bus.Chan
	errs   *bus.Chan
	mock   *mock.MockFetcher
	cfg    Config
	poller *unit.Addr
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{
		bus:   bus.New(zap.NewNop()),
		ticks: bus.NewChan(16),
		errs:  bus.NewChan(16),
		mock:  mock.NewMockFetcher(ctrl),
		cfg:   Config{Symbol: "AAPL", From: from, Interval: time.Hour},
	}
	h.bus.Subscribe(bus.KindTick, h.ticks)
	h.bus.Subscribe(bus.KindError, h.errs)
	h.mock.EXPECT().Name().Return("mock").AnyTimes()
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	addr, err := unit.Start(NewFactory(h.cfg, h.mock, zap.NewNop()), unit.Options{Name: "poller-" + h.cfg.Symbol, Bus: h.bus})
	require.NoError(t, err)
	h.poller = addr
	t.Cleanup(func() {
		addr.Stop()
		addr.Wait()
	})
}

func next(t *testing.T, c *bus.Chan) bus.Event {
	t.Helper()
	select {
	case ev := <-c.C():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return bus.Event{}
	}
}

func TestPoller_PublishesTick(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.cfg.To = from.AddDate(0, 1, 0)
	h.mock.EXPECT().Fetch(gomock.Any(), "AAPL", from, h.cfg.To).Return(sampleSeries(), nil).Times(1)

	// Act
	h.start(t)

	// Assert
	ev := next(t, h.ticks)
	assert.Equal(t, bus.KindTick, ev.Kind)
	assert.Equal(t, "AAPL", ev.Source)
	assert.Equal(t, tickline.Format(sampleSeries()), ev.Line)
	assert.Empty(t, h.errs.C())
}

func TestPoller_FetchErrorPublishesErrorEvent(t *testing.T) {
	h := newHarness(t)
	h.mock.EXPECT().Fetch(gomock.Any(), "AAPL", from, gomock.Any()).Return(provider.Series{}, errors.New("connection refused")).Times(1)

	h.start(t)

	ev := next(t, h.errs)
	assert.Equal(t, "AAPL|connection refused", ev.Line)
	assert.Empty(t, h.ticks.C())
}

func TestPoller_EmptySeriesIsAnError(t *testing.T) {
	h := newHarness(t)
	h.mock.EXPECT().Fetch(gomock.Any(), "AAPL", from, gomock.Any()).Return(provider.Series{Symbol: "AAPL"}, nil).Times(1)

	h.start(t)

	ev := next(t, h.errs)
	assert.Equal(t, "AAPL|mock: fetch AAPL: empty quote series", ev.Line)
}

func TestPoller_ReschedulesAfterFailure(t *testing.T) {
	h := newHarness(t)
	h.cfg.Interval = 5 * time.Millisecond
	h.mock.EXPECT().Fetch(gomock.Any(), "AAPL", from, gomock.Any()).Return(provider.Series{}, errors.New("timeout")).Times(1)
	h.mock.EXPECT().Fetch(gomock.Any(), "AAPL", from, gomock.Any()).Return(sampleSeries(), nil).MinTimes(1)

	h.start(t)

	assert.Equal(t, "AAPL|timeout", next(t, h.errs).Line)
	assert.Equal(t, tickline.Format(sampleSeries()), next(t, h.ticks).Line)
}

func TestPoller_ZeroEndMeansNow(t *testing.T) {
	h := newHarness(t)
	before := time.Now()
	var gotTo time.Time
	h.mock.EXPECT().Fetch(gomock.Any(), "AAPL", from, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _, to time.Time) (provider.Series, error) {
			gotTo = to
			return sampleSeries(), nil
		}).Times(1)

	h.start(t)
	next(t, h.ticks)

	assert.False(t, gotTo.Before(before))
	assert.WithinDuration(t, time.Now(), gotTo, time.Second)
}

func TestPoller_InitialDelay(t *testing.T) {
	h := newHarness(t)
	h.cfg.InitialDelay = 50 * time.Millisecond
	h.mock.EXPECT().Fetch(gomock.Any(), "AAPL", from, gomock.Any()).Return(sampleSeries(), nil).Times(1)

	started := time.Now()
	h.start(t)
	next(t, h.ticks)

	assert.GreaterOrEqual(t, time.Since(started), 50*time.Millisecond)
}

func TestPoller_StopDuringFetchPublishesNothing(t *testing.T) {
	h := newHarness(t)
	inFetch := make(chan struct{})
	h.mock.EXPECT().Fetch(gomock.Any(), "AAPL", from, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _, _ time.Time) (provider.Series, error) {
			close(inFetch)
			<-ctx.Done()
			return provider.Series{}, ctx.Err()
		}).Times(1)

	h.start(t)
	<-inFetch
	h.poller.Stop()
	h.poller.Wait()

	assert.Empty(t, h.errs.C())
	assert.Empty(t, h.ticks.C())
}
