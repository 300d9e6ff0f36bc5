// File: internal/eodhd/rest.go
package eodhd

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

	"marketfeed/internal/market"
	"marketfeed/internal/obs"
)

// Client talks to the EODHD REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	userAgent  string
	now        func() time.Time
}

func NewClient(baseURL, apiKey string, httpClient *http.Client, userAgent string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		userAgent:  userAgent,
		now:        time.Now,
	}
}

// RealTime is the /real-time payload. Every numeric field may arrive as "NA".
type RealTime struct {
	Code          string        `json:"code"`
	Timestamp     market.Number `json:"timestamp"`
	Open          market.Number `json:"open"`
	High          market.Number `json:"high"`
	Low           market.Number `json:"low"`
	Close         market.Number `json:"close"`
	PreviousClose market.Number `json:"previousClose"`
	Change        market.Number `json:"change"`
	ChangePercent market.Number `json:"change_p"`
}

func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values, out any) (err error) {
	ctx, span := obs.StartSpan(ctx, op)
	defer func() { obs.EndSpan(span, err) }()

	if q == nil {
		q = url.Values{}
	}
	q.Set("api_token", c.apiKey)
	q.Set("fmt", "json")
	u := c.baseURL + path + "?" + q.Encode()
	span.SetAttributes(attribute.String("http.path", path))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", market.ErrUpstreamTransport, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s: http %d", market.ErrUpstreamTransport, op, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", market.ErrUpstreamData, op, err)
	}
	return nil
}

// Quote fetches the point-in-time quote for a REST symbol such as EURUSD.FOREX.
func (c *Client) Quote(ctx context.Context, restSymbol string) (RealTime, error) {
	var rt RealTime
	if err := c.getJSON(ctx, "eodhd.real-time", "/real-time/"+url.PathEscape(restSymbol), nil, &rt); err != nil {
		return RealTime{}, err
	}
	if !rt.Close.Valid {
		return RealTime{}, fmt.Errorf("%w: %s: close is not numeric", market.ErrUpstreamData, restSymbol)
	}
	return rt, nil
}

// FetchOne fetches a tick for the instrument. Percent comes from previousClose when
// it is nonzero, otherwise from change_p.
func (c *Client) FetchOne(ctx context.Context, in market.Instrument) (market.Tick, error) {
	sym := in.RestSymbol
	if sym == "" {
		return market.Tick{}, fmt.Errorf("%w: %s has no rest symbol", market.ErrUpstreamData, in.Symbol)
	}
	rt, err := c.Quote(ctx, sym)
	if err != nil {
		return market.Tick{}, err
	}
	tick := market.Tick{
		Symbol:     in.Symbol,
		Category:   in.Category,
		Price:      rt.Close.Value,
		ObservedAt: c.now(),
	}
	switch {
	case rt.PreviousClose.NonZero():
		diff := rt.Close.Value - rt.PreviousClose.Value
		tick.Change = market.Float(diff)
		tick.ChangePercent = diff / rt.PreviousClose.Value * 100
	case rt.ChangePercent.Valid:
		tick.ChangePercent = rt.ChangePercent.Value
		tick.Change = rt.Change.Ptr()
	default:
		return market.Tick{}, fmt.Errorf("%w: %s: neither previousClose nor change_p", market.ErrUpstreamData, sym)
	}
	return tick, nil
}

// Reference fetches the previous close used by stream normalization.
func (c *Client) Reference(ctx context.Context, in market.Instrument) (market.ReferenceClose, error) {
	sym := in.RestSymbol
	if sym == "" {
		return market.ReferenceClose{}, fmt.Errorf("%w: %s has no rest symbol", market.ErrUpstreamData, in.Symbol)
	}
	rt, err := c.Quote(ctx, sym)
	if err != nil {
		return market.ReferenceClose{}, err
	}
	if !rt.PreviousClose.Valid {
		return market.ReferenceClose{}, fmt.Errorf("%w: %s: previousClose is not numeric", market.ErrUpstreamData, sym)
	}
	return market.ReferenceClose{
		Symbol:        in.Symbol,
		PreviousClose: rt.PreviousClose.Value,
		Close:         rt.Close.Value,
		ChangePercent: rt.ChangePercent.Ptr(),
		AsOf:          c.now(),
	}, nil
}

type screenerRow struct {
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	ChangePercent market.Number `json:"change_percent"`
}

// TopMovers returns the screener's rows as movers of the given kind. Rows without
// a code or a numeric change_percent are skipped.
func (c *Client) TopMovers(ctx context.Context, screener string, limit int, kind string) ([]market.Mover, error) {
	q := url.Values{}
	q.Set("screener", screener)
	q.Set("limit", strconv.Itoa(limit))
	var rows []screenerRow
	if err := c.getJSON(ctx, "eodhd.top", "/top", q, &rows); err != nil {
		return nil, err
	}
	out := make([]market.Mover, 0, len(rows))
	for _, r := range rows {
		if r.Code == "" || !r.ChangePercent.Valid {
			continue
		}
		name := r.Name
		if name == "" {
			name = r.Code
		}
		out = append(out, market.NewMover(name, r.Code, r.ChangePercent.Value, kind))
	}
	return out, nil
}
