package twelvedata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfeed/internal/market"
)

func TestPercentChanges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("apikey"))
		switch r.URL.Query().Get("symbol") {
		case "EUR/USD,USD/ZAR,GBP/USD":
			_, _ = w.Write([]byte(`{
				"EUR/USD":{"symbol":"EUR/USD","percent_change":"0.21"},
				"USD/ZAR":{"symbol":"USD/ZAR","percent_change":"-0.65"},
				"GBP/USD":{"code":404,"status":"error","message":"not found"}
			}`))
		case "USD/JPY":
			_, _ = w.Write([]byte(`{"symbol":"USD/JPY","percent_change":0.4}`))
		default:
			_, _ = w.Write([]byte(`{"code":429,"status":"error","message":"run out of API credits"}`))
		}
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "k", srv.Client())
	ctx := context.Background()

	got, err := c.PercentChanges(ctx, []string{"EUR/USD", "USD/ZAR", "GBP/USD"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"EUR/USD": 0.21, "USD/ZAR": -0.65}, got)

	got, err = c.PercentChanges(ctx, []string{"USD/JPY"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"USD/JPY": 0.4}, got)

	_, err = c.PercentChanges(ctx, []string{"AUD/USD", "USD/CHF"})
	assert.ErrorIs(t, err, market.ErrUpstreamData)
}

func TestPercentChangesWithoutKey(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", nil)
	_, err := c.PercentChanges(context.Background(), []string{"EUR/USD"})
	assert.ErrorIs(t, err, market.ErrUpstreamTransport)
}
