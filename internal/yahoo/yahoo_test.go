package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfeed/internal/analytics"
	"marketfeed/internal/market"
)

func chartServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		switch r.URL.Path {
		case "/GC=F":
			assert.Equal(t, "1d", r.URL.Query().Get("interval"))
			assert.Equal(t, "30d", r.URL.Query().Get("range"))
			_, _ = w.Write([]byte(`{"chart":{"result":[{"indicators":{"quote":[{"close":[2000,null,2010,2020.5,null,2040]}]}}],"error":null}}`))
		case "/EURUSD=X":
			_, _ = w.Write([]byte(`{"chart":{"result":[{"indicators":{"quote":[{"close":[1.0,1.0,1.0,1.0,1.05]}]}}],"error":null}}`))
		case "/NOPE":
			_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
		case "/EMPTY":
			_, _ = w.Write([]byte(`{"chart":{"result":[{"indicators":{"quote":[]}}],"error":null}}`))
		case "/ONE":
			_, _ = w.Write([]byte(`{"chart":{"result":[{"indicators":{"quote":[{"close":[null,5]}]}}],"error":null}}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
}

func TestSeriesDropsNulls(t *testing.T) {
	srv := chartServer(t, nil)
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client(), "test")

	closes, err := c.Series(context.Background(), "GC=F", 30)
	require.NoError(t, err)
	assert.Equal(t, []float64{2000, 2010, 2020.5, 2040}, closes)
}

func TestClosesErrors(t *testing.T) {
	srv := chartServer(t, nil)
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client(), "")
	ctx := context.Background()

	_, err := c.Closes(ctx, SeriesQuery{Symbol: "NOPE", Interval: "1d", Range: "5d"})
	assert.ErrorIs(t, err, market.ErrUpstreamData)

	_, err = c.Closes(ctx, SeriesQuery{Symbol: "EMPTY", Interval: "1d", Range: "5d"})
	assert.ErrorIs(t, err, market.ErrUpstreamData)

	_, err = c.Closes(ctx, SeriesQuery{Symbol: "LIMITED", Interval: "1d", Range: "5d"})
	assert.ErrorIs(t, err, market.ErrUpstreamTransport)
}

func TestChangeAt(t *testing.T) {
	srv := chartServer(t, nil)
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client(), "")
	ctx := context.Background()

	pct, err := c.ChangeAt(ctx, SeriesQuery{Symbol: "EURUSD=X", Interval: "1d", Range: "5d"}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, pct, 1e-9)

	_, err = c.ChangeAt(ctx, SeriesQuery{Symbol: "ONE", Interval: "1d", Range: "5d"}, 1)
	assert.ErrorIs(t, err, market.ErrUpstreamData)
}

func TestWindowChange(t *testing.T) {
	var hits atomic.Int32
	srv := chartServer(t, &hits)
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client(), "")

	pct, err := c.WindowChange(context.Background(), "EURUSD=X", *analytics.Timeframes[0].Fallback)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, pct, 1e-9)
	assert.Equal(t, int32(1), hits.Load())
}
