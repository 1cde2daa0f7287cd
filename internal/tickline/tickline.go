// Package tickline renders the summary of a quote series as one CSV line.
package tickline

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tickertracker/internal/provider"
	"tickertracker/internal/stats"
)

// Header names the columns of every line produced by Format.
const Header = "period start,symbol,price,change %,min,max,30d avg"

// AvgWindow is the number of daily samples averaged into the last column.
const AvgWindow = 30

const missing = "-"

// Format returns the CSV line for s. Fields that cannot be computed, such as
// the average of a series shorter than AvgWindow, are rendered as "-".
func Format(s provider.Series) string {
	closes := s.Closes()
	sym := stats.CurrencySymbol(s.Currency)

	periodStart := missing
	if len(s.Samples) > 0 {
		periodStart = s.Samples[0].At.UTC().Format(time.RFC3339)
	}

	price := missing
	if len(closes) > 0 {
		price = money(sym, closes[len(closes)-1])
	}

	change := missing
	if _, pct, ok := stats.PriceDiff(closes); ok {
		change = fixed(pct) + "%"
	}

	low := missing
	if v, ok := stats.Min(closes); ok {
		low = money(sym, v)
	}

	high := missing
	if v, ok := stats.Max(closes); ok {
		high = money(sym, v)
	}

	avg := missing
	if avgs, ok := stats.NWindowSMA(AvgWindow, closes); ok && len(avgs) > 0 {
		avg = money(sym, avgs[len(avgs)-1])
	}

	return strings.Join([]string{periodStart, s.Symbol, price, change, low, high, avg}, ",")
}

func money(symbol string, v float64) string {
	return symbol + fixed(v)
}

// fixed renders v with two decimals, rounded from its exact binary value.
// Non-finite values are spelled out by strconv since decimal cannot
// represent them.
func fixed(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}
	return d.StringFixed(2)
}
