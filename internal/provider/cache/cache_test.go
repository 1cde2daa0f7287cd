package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"tickertracker/internal/provider"
	"tickertracker/internal/provider/mock"
)

var from = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func series(symbol string) provider.Series {
	return provider.Series{Symbol: symbol, Currency: "USD", Samples: []provider.Sample{{At: from, AdjClose: 1}}}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestFetcher_ServesWithinTTL(t *testing.T) {
	// Arrange
	inner := mock.NewMockFetcher(gomock.NewController(t))
	inner.EXPECT().Fetch(gomock.Any(), "AAPL", from, gomock.Any()).Return(series("AAPL"), nil).Times(2)
	clk := &clock{t: from.AddDate(0, 2, 0)}
	c := &Fetcher{F: inner, TTL: time.Minute, now: clk.now}

	// Act
	first, err := c.Fetch(t.Context(), "AAPL", from, clk.t)
	require.NoError(t, err)
	clk.t = clk.t.Add(30 * time.Second)
	second, err := c.Fetch(t.Context(), "AAPL", from, clk.t)
	require.NoError(t, err)
	clk.t = clk.t.Add(31 * time.Second)
	_, err = c.Fetch(t.Context(), "AAPL", from, clk.t)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFetcher_DoesNotCacheFailures(t *testing.T) {
	inner := mock.NewMockFetcher(gomock.NewController(t))
	gomock.InOrder(
		inner.EXPECT().Fetch(gomock.Any(), "AAPL", from, from).Return(provider.Series{}, errors.New("timeout")),
		inner.EXPECT().Fetch(gomock.Any(), "AAPL", from, from).Return(provider.Series{Symbol: "AAPL"}, nil),
		inner.EXPECT().Fetch(gomock.Any(), "AAPL", from, from).Return(series("AAPL"), nil),
	)
	c := &Fetcher{F: inner, TTL: time.Hour}

	_, err := c.Fetch(t.Context(), "AAPL", from, from)
	assert.Error(t, err)
	s, err := c.Fetch(t.Context(), "AAPL", from, from)
	require.NoError(t, err)
	assert.Empty(t, s.Samples)
	s, err = c.Fetch(t.Context(), "AAPL", from, from)
	require.NoError(t, err)
	assert.Len(t, s.Samples, 1)
	assert.Equal(t, 1, c.Len())
}

func TestFetcher_KeyedByPeriodStart(t *testing.T) {
	inner := mock.NewMockFetcher(gomock.NewController(t))
	inner.EXPECT().Fetch(gomock.Any(), "AAPL", gomock.Any(), gomock.Any()).Return(series("AAPL"), nil).Times(2)
	c := &Fetcher{F: inner, TTL: time.Hour}

	_, err := c.Fetch(t.Context(), "AAPL", from, from)
	require.NoError(t, err)
	_, err = c.Fetch(t.Context(), "AAPL", from.AddDate(0, 0, 1), from)
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
}

func TestFetcher_MaxItems(t *testing.T) {
	inner := mock.NewMockFetcher(gomock.NewController(t))
	inner.EXPECT().Fetch(gomock.Any(), gomock.Any(), from, from).Return(series("X"), nil).Times(3)
	c := &Fetcher{F: inner, TTL: time.Hour, MaxItems: 2}

	for _, s := range []string{"A", "B", "C"} {
		_, err := c.Fetch(t.Context(), s, from, from)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.Len())
}

func TestFetcher_Disabled(t *testing.T) {
	inner := mock.NewMockFetcher(gomock.NewController(t))
	inner.EXPECT().Fetch(gomock.Any(), "AAPL", from, from).Return(series("AAPL"), nil).Times(2)
	inner.EXPECT().Name().Return("inner")
	c := &Fetcher{F: inner}

	for range 2 {
		_, err := c.Fetch(t.Context(), "AAPL", from, from)
		require.NoError(t, err)
	}

	assert.Equal(t, "inner", c.Name())
	assert.Zero(t, c.Len())
}
