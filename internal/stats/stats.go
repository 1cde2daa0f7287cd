// Package stats holds the summary statistics computed over a quote series.
// All functions are pure and make a single pass over their input.
package stats

import "math"

// CurrencySymbol returns the display symbol for a currency code.
// Only USD is mapped; every other code is returned unchanged.
func CurrencySymbol(code string) string {
	if code == "USD" {
		return "$"
	}
	return code
}

// Min returns the smallest value of series, or ok=false when series is empty.
// NaN values are never selected since they compare false against the accumulator.
func Min(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	acc := math.Inf(1)
	for _, v := range series {
		if v < acc {
			acc = v
		}
	}
	return acc, true
}

// Max returns the largest value of series, or ok=false when series is empty.
func Max(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	acc := math.Inf(-1)
	for _, v := range series {
		if v > acc {
			acc = v
		}
	}
	return acc, true
}

// PriceDiff returns the absolute and percentage change from the first to the
// last value of series. A zero first value yields a non-finite percentage.
func PriceDiff(series []float64) (abs, pct float64, ok bool) {
	if len(series) == 0 {
		return 0, 0, false
	}
	first, last := series[0], series[len(series)-1]
	abs = last - first
	return abs, 100 * abs / first, true
}

// NWindowSMA returns the simple moving average of every contiguous window of n
// values, len(series)-n+1 points in total. The result is empty when n exceeds
// the series length and ok=false when n is not positive.
func NWindowSMA(n int, series []float64) ([]float64, bool) {
	if n <= 0 {
		return nil, false
	}
	if n > len(series) {
		return []float64{}, true
	}
	size := float64(n)
	avgs := make([]float64, 0, len(series)-n+1)
	var running float64
	for end, v := range series {
		running += v
		if end >= n {
			running -= series[end-n]
		}
		if end >= n-1 {
			avgs = append(avgs, running/size)
		}
	}
	return avgs, true
}
