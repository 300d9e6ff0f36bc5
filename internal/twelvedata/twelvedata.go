// File: internal/twelvedata/twelvedata.go
package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"marketfeed/internal/market"
	"marketfeed/internal/obs"
)

// Client reads batch quotes from Twelve Data.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, httpClient: httpClient}
}

type quote struct {
	Symbol        string        `json:"symbol"`
	PercentChange market.Number `json:"percent_change"`
	Status        string        `json:"status"`
	Message       string        `json:"message"`
}

// PercentChanges returns pair -> percent_change for pairs like "EUR/USD". Pairs
// without a numeric value are left out.
func (c *Client) PercentChanges(ctx context.Context, pairs []string) (out map[string]float64, err error) {
	ctx, span := obs.StartSpan(ctx, "twelvedata.quote")
	span.SetAttributes(attribute.Int("pairs", len(pairs)))
	defer func() { obs.EndSpan(span, err) }()

	if len(pairs) == 0 {
		return map[string]float64{}, nil
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: twelvedata api key not configured", market.ErrUpstreamTransport)
	}
	q := url.Values{}
	q.Set("symbol", strings.Join(pairs, ","))
	q.Set("apikey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: twelvedata quote: %v", market.ErrUpstreamTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: twelvedata quote: http %d", market.ErrUpstreamTransport, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: twelvedata quote: %v", market.ErrUpstreamTransport, err)
	}

	// A single symbol comes back unkeyed; errors come back as a status object.
	var single quote
	if err := json.Unmarshal(body, &single); err == nil && single.Status == "error" {
		return nil, fmt.Errorf("%w: twelvedata quote: %s", market.ErrUpstreamData, single.Message)
	}
	quotes := make(map[string]quote, len(pairs))
	if len(pairs) == 1 {
		quotes[pairs[0]] = single
	} else if err := json.Unmarshal(body, &quotes); err != nil {
		return nil, fmt.Errorf("%w: twelvedata quote: decode: %v", market.ErrUpstreamData, err)
	}

	out = make(map[string]float64, len(pairs))
	for _, p := range pairs {
		qt, ok := quotes[p]
		if !ok || qt.Status == "error" || !qt.PercentChange.Valid {
			continue
		}
		out[p] = qt.PercentChange.Value
	}
	return out, nil
}
