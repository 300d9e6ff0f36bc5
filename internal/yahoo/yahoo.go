// File: internal/yahoo/yahoo.go
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"marketfeed/internal/analytics"
	"marketfeed/internal/market"
	"marketfeed/internal/obs"
)

// SeriesQuery selects a chart by symbol, bar interval and lookback range.
type SeriesQuery struct {
	Symbol   string
	Interval string // 5m, 15m, 1d
	Range    string // 1d, 5d, 1mo, 30d
}

// Client fetches historical closes from the chart endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

func NewClient(baseURL string, httpClient *http.Client, userAgent string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Indicators struct {
				Quote []struct {
					Close []market.Number `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Closes returns the series' closes oldest first, with null bars dropped.
func (c *Client) Closes(ctx context.Context, q SeriesQuery) (out []float64, err error) {
	ctx, span := obs.StartSpan(ctx, "yahoo.chart")
	span.SetAttributes(
		attribute.String("symbol", q.Symbol),
		attribute.String("interval", q.Interval),
		attribute.String("range", q.Range),
	)
	defer func() { obs.EndSpan(span, err) }()

	v := url.Values{}
	v.Set("interval", q.Interval)
	v.Set("range", q.Range)
	u := c.baseURL + "/" + url.PathEscape(q.Symbol) + "?" + v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: chart %s: %v", market.ErrUpstreamTransport, q.Symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: chart %s: http %d", market.ErrUpstreamTransport, q.Symbol, resp.StatusCode)
	}
	var payload chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: chart %s: decode: %v", market.ErrUpstreamData, q.Symbol, err)
	}
	if e := payload.Chart.Error; e != nil {
		return nil, fmt.Errorf("%w: chart %s: %s %s", market.ErrUpstreamData, q.Symbol, e.Code, e.Description)
	}
	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: chart %s: no quote data", market.ErrUpstreamData, q.Symbol)
	}
	raw := payload.Chart.Result[0].Indicators.Quote[0].Close
	out = make([]float64, 0, len(raw))
	for _, n := range raw {
		if n.Valid {
			out = append(out, n.Value)
		}
	}
	return out, nil
}

// Series returns daily closes over the last days calendar days.
func (c *Client) Series(ctx context.Context, symbol string, days int) ([]float64, error) {
	return c.Closes(ctx, SeriesQuery{Symbol: symbol, Interval: "1d", Range: strconv.Itoa(days) + "d"})
}

// ChangeAt fetches a series and returns the percent change of its last close over
// the close offset points earlier.
func (c *Client) ChangeAt(ctx context.Context, q SeriesQuery, offset int) (float64, error) {
	closes, err := c.Closes(ctx, q)
	if err != nil {
		return 0, err
	}
	pct, ok := analytics.PercentChangeAt(closes, offset)
	if !ok {
		return 0, fmt.Errorf("%w: chart %s: %d usable closes", market.ErrUpstreamData, q.Symbol, len(closes))
	}
	return pct, nil
}

// WindowChange evaluates an analytics window against the chart.
func (c *Client) WindowChange(ctx context.Context, symbol string, w analytics.Window) (float64, error) {
	closes, err := c.Closes(ctx, SeriesQuery{Symbol: symbol, Interval: w.Interval, Range: w.Range})
	if err != nil {
		return 0, err
	}
	pct, ok := w.Change(closes)
	if !ok {
		return 0, fmt.Errorf("%w: chart %s %s/%s: %d usable closes", market.ErrUpstreamData, symbol, w.Interval, w.Range, len(closes))
	}
	return pct, nil
}
