package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tickertracker/internal/provider"
)

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Currency string `json:"currency"`
		Symbol   string `json:"symbol"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// Fetch retrieves the daily adjusted close series of symbol over [from, to].
func (c *Client) Fetch(ctx context.Context, symbol string, from, to time.Time) (provider.Series, error) {
	series, err := c.fetch(ctx, symbol, from, to)
	if err != nil {
		return provider.Series{}, &provider.FetchError{Provider: c.Name(), Symbol: symbol, Err: err}
	}
	return series, nil
}

func (c *Client) fetch(ctx context.Context, symbol string, from, to time.Time) (provider.Series, error) {
	query := maps.Clone(c.query)
	query.Set("period1", strconv.FormatInt(from.Unix(), 10))
	query.Set("period2", strconv.FormatInt(to.Unix(), 10))
	query.Set("interval", "1d")
	query.Set("includeAdjustedClose", "true")

	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return provider.Series{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return provider.Series{}, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		// Unknown symbols come back as 404 with a chart error body.
		var body chartResponse
		if err := json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(&body); err == nil && body.Chart.Error != nil {
			return provider.Series{}, fmt.Errorf("%s: %s", body.Chart.Error.Code, body.Chart.Error.Description)
		}
		return provider.Series{}, fmt.Errorf("symbol not found")
	case http.StatusUnauthorized, http.StatusForbidden:
		return provider.Series{}, fmt.Errorf("unauthorized")
	case http.StatusTooManyRequests:
		return provider.Series{}, fmt.Errorf("rate limited")
	default:
		return provider.Series{}, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	var body chartResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return provider.Series{}, fmt.Errorf("decoding chart response: %w", err)
	}
	if e := body.Chart.Error; e != nil {
		return provider.Series{}, fmt.Errorf("%s: %s", e.Code, e.Description)
	}
	if len(body.Chart.Result) == 0 {
		return provider.Series{}, fmt.Errorf("could not access results")
	}
	return toSeries(symbol, body.Chart.Result[0])
}

func toSeries(symbol string, r chartResult) (provider.Series, error) {
	var closes []*float64
	switch {
	case len(r.Indicators.AdjClose) > 0:
		closes = r.Indicators.AdjClose[0].AdjClose
	case len(r.Indicators.Quote) > 0:
		closes = r.Indicators.Quote[0].Close
	}
	if len(closes) != len(r.Timestamp) {
		return provider.Series{}, fmt.Errorf("malformed chart: %d timestamps, %d closes", len(r.Timestamp), len(closes))
	}

	series := provider.Series{Symbol: r.Meta.Symbol, Currency: r.Meta.Currency}
	if series.Symbol == "" {
		series.Symbol = symbol
	}
	for i, ts := range r.Timestamp {
		// Holidays and halted days are reported as null.
		if closes[i] == nil {
			continue
		}
		series.Samples = append(series.Samples, provider.Sample{
			At:       time.Unix(ts, 0).UTC(),
			AdjClose: *closes[i],
		})
	}
	if len(series.Samples) == 0 {
		return provider.Series{}, provider.ErrEmptySeries
	}
	return series, nil
}
