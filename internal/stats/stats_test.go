package stats

import (
	"math"
	"testing"

	movingaverage "github.com/RobinUS2/golang-moving-average"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = []float64{1.0, 11.2, -13.6, 0.004, 500.9, -27.1, -26.2, 5.4, 2.0}

func TestCurrencySymbol(t *testing.T) {
	assert.Equal(t, "$", CurrencySymbol("USD"))
	assert.Equal(t, "GBP", CurrencySymbol("GBP"))
	assert.Equal(t, "", CurrencySymbol(""))
}

func TestMinMax(t *testing.T) {
	in := []float64{-1.5, 0.0, -45.3, 27.0, 0.7}

	lo, ok := Min(in)
	require.True(t, ok)
	assert.Equal(t, -45.3, lo)

	hi, ok := Max(in)
	require.True(t, ok)
	assert.Equal(t, 27.0, hi)

	t.Run("empty", func(t *testing.T) {
		_, ok := Min(nil)
		assert.False(t, ok)
		_, ok = Max([]float64{})
		assert.False(t, ok)
	})

	t.Run("nan is never selected", func(t *testing.T) {
		lo, ok := Min([]float64{3, math.NaN(), 1})
		require.True(t, ok)
		assert.Equal(t, 1.0, lo)
		hi, ok := Max([]float64{math.NaN(), 2, 7})
		require.True(t, ok)
		assert.Equal(t, 7.0, hi)
	})
}

func TestPriceDiff(t *testing.T) {
	abs, pct, ok := PriceDiff(sample)
	require.True(t, ok)
	assert.Equal(t, 1.0, abs)
	assert.Equal(t, 100.0, pct)

	t.Run("empty", func(t *testing.T) {
		_, _, ok := PriceDiff(nil)
		assert.False(t, ok)
	})

	t.Run("zero first value", func(t *testing.T) {
		abs, pct, ok := PriceDiff([]float64{0, 5})
		require.True(t, ok)
		assert.Equal(t, 5.0, abs)
		assert.True(t, math.IsInf(pct, 1))

		_, pct, _ = PriceDiff([]float64{0, 0})
		assert.True(t, math.IsNaN(pct))
	})
}

func TestNWindowSMA(t *testing.T) {
	avgs, ok := NWindowSMA(2, sample)
	require.True(t, ok)
	require.Len(t, avgs, len(sample)-1)
	for i, got := range avgs {
		assert.InDelta(t, (sample[i]+sample[i+1])/2, got, 0.001, "window %d", i)
	}

	t.Run("matches an independent moving average", func(t *testing.T) {
		const window = 4
		avgs, ok := NWindowSMA(window, sample)
		require.True(t, ok)
		require.Len(t, avgs, len(sample)-window+1)

		ma := movingaverage.New(window)
		for i, v := range sample {
			ma.Add(v)
			if i >= window-1 {
				assert.InDelta(t, ma.Avg(), avgs[i-window+1], 1e-9, "index %d", i)
			}
		}
	})

	t.Run("window larger than series", func(t *testing.T) {
		avgs, ok := NWindowSMA(30, sample)
		require.True(t, ok)
		assert.Empty(t, avgs)
	})

	t.Run("window equals series", func(t *testing.T) {
		avgs, ok := NWindowSMA(3, []float64{1, 2, 3})
		require.True(t, ok)
		assert.Equal(t, []float64{2}, avgs)
	})

	t.Run("non-positive window", func(t *testing.T) {
		_, ok := NWindowSMA(0, sample)
		assert.False(t, ok)
		_, ok = NWindowSMA(-1, sample)
		assert.False(t, ok)
	})
}
