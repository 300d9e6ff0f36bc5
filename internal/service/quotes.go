// File: internal/service/quotes.go
package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"marketfeed/internal/analytics"
	"marketfeed/internal/cache"
	"marketfeed/internal/market"
	"marketfeed/internal/yahoo"
)

// Quote returns the fresh streamed tick when there is one, otherwise a REST
// fallback through the quotes cache. Fallback ticks are written back to the store.
// A live tick comes with a zero Meta; a cached one carries the cache's Meta, with
// Stale set when the refresh failed.
func (s *Service) Quote(ctx context.Context, symbol string) (market.Tick, cache.Meta, error) {
	in, ok := s.catalog.Lookup(symbol)
	if !ok {
		return market.Tick{}, cache.Meta{}, fmt.Errorf("%w: %s", market.ErrUnknownSymbol, symbol)
	}
	if t, ok := s.stores[in.Category].Fresh(symbol); ok {
		return t, cache.Meta{}, nil
	}
	t, meta, err := cache.Fetch(ctx, s.cache, cache.Key{Category: "quotes", Param: symbol},
		func(ctx context.Context) (market.Tick, error) { return s.fetchREST(ctx, in) })
	if err != nil {
		return market.Tick{}, cache.Meta{}, err
	}
	if meta.Stale {
		s.logger.Warn("quote served from stale cache", zap.String("symbol", symbol), zap.Time("cached_at", meta.CachedAt))
	} else {
		s.stores[in.Category].Put(t)
	}
	return t, meta, nil
}

// Quotes returns one tick per instrument in the category, preferring fresh streamed
// values. A symbol that fails is left out; the call fails only when nothing is left.
// Results are ordered by absolute percent change. The returned Meta is stale when
// any tick in the batch came from a stale cache entry; CachedAt is the oldest
// cached tick's.
func (s *Service) Quotes(ctx context.Context, category market.Category) ([]market.Tick, cache.Meta, error) {
	instruments := s.catalog.InCategory(category)
	if len(instruments) == 0 {
		return nil, cache.Meta{}, fmt.Errorf("%w: no instruments in %s", market.ErrNoData, category)
	}
	var batch cache.Meta
	st := s.stores[category]
	out := make([]market.Tick, 0, len(instruments))
	restCalls := 0
	for _, in := range instruments {
		if t, ok := st.Fresh(in.Symbol); ok {
			out = append(out, t)
			continue
		}
		if restCalls > 0 && !sleepCtx(ctx, s.cfg.Providers.RequestDelay) {
			break
		}
		restCalls++
		t, meta, err := s.Quote(ctx, in.Symbol)
		if err != nil {
			s.logger.Warn("quote fallback failed", zap.String("symbol", in.Symbol), zap.Error(err))
			continue
		}
		out = append(out, t)
		if meta.Hit {
			batch.Hit = true
			batch.Stale = batch.Stale || meta.Stale
			batch.TTL = meta.TTL
			if batch.CachedAt.IsZero() || meta.CachedAt.Before(batch.CachedAt) {
				batch.CachedAt = meta.CachedAt
			}
		}
	}
	if len(out) == 0 {
		return nil, cache.Meta{}, fmt.Errorf("%w: %s quotes", market.ErrNoData, category)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].ChangePercent) > math.Abs(out[j].ChangePercent)
	})
	return out, batch, nil
}

// fetchREST asks the point-in-time quote API when the instrument has a REST symbol
// and derives a tick from the daily chart otherwise.
func (s *Service) fetchREST(ctx context.Context, in market.Instrument) (market.Tick, error) {
	if in.RestSymbol != "" && s.cfg.EODHDKey != "" {
		return s.eodhd.FetchOne(ctx, in)
	}
	if in.SeriesSymbol == "" {
		return market.Tick{}, fmt.Errorf("%w: %s has no fallback source", market.ErrUpstreamData, in.Symbol)
	}
	closes, err := s.yahoo.Closes(ctx, yahoo.SeriesQuery{Symbol: in.SeriesSymbol, Interval: "1d", Range: "5d"})
	if err != nil {
		return market.Tick{}, err
	}
	pct, ok := analytics.PercentChangeAt(closes, 1)
	if !ok {
		return market.Tick{}, fmt.Errorf("%w: %s: %d usable closes", market.ErrUpstreamData, in.SeriesSymbol, len(closes))
	}
	last := closes[len(closes)-1]
	return market.Tick{
		Symbol:        in.Symbol,
		Category:      in.Category,
		Price:         last,
		Change:        market.Float(last - closes[len(closes)-2]),
		ChangePercent: pct,
		ObservedAt:    s.now(),
	}, nil
}

// sleepCtx waits d and reports false when ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
