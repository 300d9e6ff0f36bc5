// File: internal/service/derived.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marketfeed/internal/analytics"
	"marketfeed/internal/cache"
	"marketfeed/internal/config"
	"marketfeed/internal/market"
	"marketfeed/internal/yahoo"
)

const (
	screenerGainers = "most_gainer_stocks"
	screenerLosers  = "most_loser_stocks"
	defaultDays     = 30
	chartFetchLimit = 4
)

// ErrInvalidView is returned by GetCachedOrFresh for a view name it does not serve
// or a param it cannot parse.
var ErrInvalidView = errors.New("invalid view request")

// GetCachedOrFresh serves a named view through the response cache. category is one
// of movers, quotes, heatmap, correlation, series or strength; param narrows it.
func (s *Service) GetCachedOrFresh(ctx context.Context, category, param string) (any, cache.Meta, error) {
	switch category {
	case "movers":
		return s.Movers(ctx)
	case "quotes":
		cat, err := market.ParseCategory(param)
		if err != nil {
			return nil, cache.Meta{}, fmt.Errorf("%w: %w", ErrInvalidView, err)
		}
		return s.Quotes(ctx, cat)
	case "heatmap":
		return s.Heatmap(ctx, param)
	case "correlation":
		period := s.cfg.Correlation.DefaultPeriod
		if param != "" {
			p, err := strconv.Atoi(param)
			if err != nil || p <= 0 {
				return nil, cache.Meta{}, fmt.Errorf("%w: correlation period %q must be a positive integer", ErrInvalidView, param)
			}
			period = p
		}
		return s.ComputeCorrelationMatrix(ctx, nil, period)
	case "series":
		symbol, days := param, defaultDays
		if sym, d, found := strings.Cut(param, ":"); found {
			n, err := strconv.Atoi(d)
			if err != nil || n <= 0 {
				return nil, cache.Meta{}, fmt.Errorf("%w: series days %q must be a positive integer", ErrInvalidView, d)
			}
			symbol, days = sym, n
		}
		return s.GetSeries(ctx, symbol, days)
	case "strength":
		return s.CurrencyStrength(ctx)
	}
	return nil, cache.Meta{}, fmt.Errorf("%w: unknown view %q", ErrInvalidView, category)
}

// seriesSymbol maps a catalog symbol to its chart symbol and passes anything else
// through unchanged.
func (s *Service) seriesSymbol(symbol string) string {
	if in, ok := s.catalog.Lookup(symbol); ok && in.SeriesSymbol != "" {
		return in.SeriesSymbol
	}
	return symbol
}

// GetSeries returns daily closes over the last days days.
func (s *Service) GetSeries(ctx context.Context, symbol string, days int) ([]float64, cache.Meta, error) {
	if days <= 0 {
		days = defaultDays
	}
	sym := s.seriesSymbol(symbol)
	key := cache.Key{Category: "series", Param: sym + ":" + strconv.Itoa(days)}
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]float64, error) {
		return s.yahoo.Series(ctx, sym, days)
	})
}

// ComputeCorrelationMatrix correlates daily closes of assets over periodDays. A nil
// asset list means the configured set. Assets with fewer than the configured
// minimum points are left out.
func (s *Service) ComputeCorrelationMatrix(ctx context.Context, assets []config.CorrelationAsset, periodDays int) (analytics.CorrelationMatrix, cache.Meta, error) {
	if periodDays <= 0 {
		periodDays = s.cfg.Correlation.DefaultPeriod
	}
	param := strconv.Itoa(periodDays)
	if assets == nil {
		assets = s.cfg.Correlation.Assets
	} else {
		syms := make([]string, 0, len(assets))
		for _, a := range assets {
			syms = append(syms, a.Symbol)
		}
		param += ":" + strings.Join(syms, ",")
	}
	key := cache.Key{Category: "correlation", Param: param}
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) (analytics.CorrelationMatrix, error) {
		names := make([]string, 0, len(assets))
		series := make(map[string][]float64, len(assets))
		for i, a := range assets {
			if i > 0 && !sleepCtx(ctx, s.cfg.Providers.RequestDelay) {
				return analytics.CorrelationMatrix{}, ctx.Err()
			}
			names = append(names, a.Name)
			closes, err := s.yahoo.Series(ctx, a.Symbol, periodDays)
			if err != nil {
				s.logger.Warn("correlation series failed", zap.String("asset", a.Name), zap.Error(err))
				continue
			}
			if len(closes) < s.cfg.Correlation.MinPoints {
				s.logger.Warn("correlation series too short", zap.String("asset", a.Name), zap.Int("points", len(closes)))
				continue
			}
			series[a.Name] = closes
		}
		if len(series) == 0 {
			return analytics.CorrelationMatrix{}, fmt.Errorf("%w: no correlation series", market.ErrUpstreamData)
		}
		return analytics.BuildCorrelationMatrix(periodDays, names, series, s.now().UTC()), nil
	})
}

// Movers combines stock screeners, crypto, forex, commodity and index changes into
// one ranking. Each source is gathered concurrently; a failing source is skipped.
func (s *Service) Movers(ctx context.Context) ([]market.Mover, cache.Meta, error) {
	return cache.Fetch(ctx, s.cache, cache.Key{Category: "movers"}, func(ctx context.Context) ([]market.Mover, error) {
		var mu sync.Mutex
		var combined []market.Mover
		add := func(source string, ms []market.Mover, err error) {
			if err != nil {
				s.logger.Warn("movers source failed", zap.String("source", source), zap.Error(err))
			}
			mu.Lock()
			combined = append(combined, ms...)
			mu.Unlock()
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			ms, err := s.stockMovers(gctx)
			add("stocks", ms, err)
			return nil
		})
		g.Go(func() error {
			ms, err := s.chartMovers(gctx, market.CategoryCrypto, "Crypto")
			add("crypto", ms, err)
			return nil
		})
		g.Go(func() error {
			ms, err := s.forexMovers(gctx)
			add("forex", ms, err)
			return nil
		})
		g.Go(func() error {
			ms, err := s.chartMovers(gctx, market.CategoryCommodity, "Commodity")
			add("commodities", ms, err)
			return nil
		})
		g.Go(func() error {
			ms, err := s.chartMovers(gctx, market.CategoryIndex, "Index")
			add("indices", ms, err)
			return nil
		})
		_ = g.Wait()

		if len(combined) == 0 {
			return nil, fmt.Errorf("%w: every movers source failed", market.ErrUpstreamData)
		}
		return analytics.RankMovers(combined, s.cfg.Movers.TopN), nil
	})
}

func (s *Service) stockMovers(ctx context.Context) ([]market.Mover, error) {
	if s.cfg.EODHDKey == "" {
		return nil, nil
	}
	var out []market.Mover
	for _, screener := range []string{screenerGainers, screenerLosers} {
		ms, err := s.eodhd.TopMovers(ctx, screener, s.cfg.Movers.StockLimit, "Stock")
		if err != nil {
			return out, err
		}
		out = append(out, ms...)
	}
	return out, nil
}

// chartMovers computes the daily change of every charted instrument in category,
// one request at a time.
func (s *Service) chartMovers(ctx context.Context, category market.Category, kind string) ([]market.Mover, error) {
	var out []market.Mover
	var lastErr error
	calls := 0
	for _, in := range s.catalog.InCategory(category) {
		if in.SeriesSymbol == "" {
			continue
		}
		if calls > 0 && !sleepCtx(ctx, s.cfg.Providers.RequestDelay) {
			return out, ctx.Err()
		}
		calls++
		pct, err := s.yahoo.ChangeAt(ctx, yahoo.SeriesQuery{Symbol: in.SeriesSymbol, Interval: "1d", Range: "5d"}, 1)
		if err != nil {
			lastErr = err
			s.logger.Debug("mover change failed", zap.String("symbol", in.SeriesSymbol), zap.Error(err))
			continue
		}
		out = append(out, market.NewMover(in.Name, in.SeriesSymbol, pct, kind))
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

func (s *Service) forexMovers(ctx context.Context) ([]market.Mover, error) {
	var pairs []string
	for _, in := range s.catalog.InCategory(market.CategoryForex) {
		if base, quote, ok := in.Pair(); ok {
			pairs = append(pairs, base+"/"+quote)
		}
	}
	changes, err := s.twelve.PercentChanges(ctx, pairs)
	if err != nil {
		return nil, err
	}
	out := make([]market.Mover, 0, len(changes))
	for _, p := range pairs {
		if pct, ok := changes[p]; ok {
			out = append(out, market.NewMover(p, p, pct, "Forex"))
		}
	}
	return out, nil
}

// CurrencyStrength labels each tracked currency from the live forex quotes. The
// Meta is the quote batch's.
func (s *Service) CurrencyStrength(ctx context.Context) ([]analytics.Strength, cache.Meta, error) {
	ticks, meta, err := s.Quotes(ctx, market.CategoryForex)
	if err != nil {
		return nil, cache.Meta{}, err
	}
	pairs := make([]analytics.PairChange, 0, len(ticks))
	for _, t := range ticks {
		in, ok := s.catalog.Lookup(t.Symbol)
		if !ok {
			continue
		}
		base, quote, ok := in.Pair()
		if !ok {
			continue
		}
		pairs = append(pairs, analytics.PairChange{Base: base, Quote: quote, Percent: t.ChangePercent})
	}
	return analytics.CurrencyStrength(pairs, analytics.DefaultCurrencies, s.cfg.StrengthThreshold), meta, nil
}

// heatmapInstruments returns the rows of a heatmap view: forex covers forex pairs
// and commodities, crypto covers coins.
func (s *Service) heatmapInstruments(view string) ([]market.Instrument, error) {
	var cats []market.Category
	switch view {
	case "forex":
		cats = []market.Category{market.CategoryForex, market.CategoryCommodity}
	case "crypto":
		cats = []market.Category{market.CategoryCrypto}
	default:
		return nil, fmt.Errorf("%w: unknown heatmap %q", ErrInvalidView, view)
	}
	var out []market.Instrument
	for _, c := range cats {
		for _, in := range s.catalog.InCategory(c) {
			if in.SeriesSymbol != "" {
				out = append(out, in)
			}
		}
	}
	return out, nil
}

// Heatmap returns the 1h/4h/1d/1w percent changes for every instrument of the view.
func (s *Service) Heatmap(ctx context.Context, view string) (analytics.Heatmap, cache.Meta, error) {
	instruments, err := s.heatmapInstruments(view)
	if err != nil {
		return nil, cache.Meta{}, err
	}
	return cache.Fetch(ctx, s.cache, cache.Key{Category: "heatmap", Param: view}, func(ctx context.Context) (analytics.Heatmap, error) {
		var mu sync.Mutex
		hm := make(analytics.Heatmap, len(instruments))
		filled := 0

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(chartFetchLimit)
		for _, in := range instruments {
			in := in
			g.Go(func() error {
				row, n := s.heatmapRow(gctx, in.SeriesSymbol)
				mu.Lock()
				hm[in.Name] = row
				filled += n
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
		if filled == 0 {
			return nil, fmt.Errorf("%w: heatmap %s has no data", market.ErrUpstreamData, view)
		}
		return hm, nil
	})
}

func (s *Service) heatmapRow(ctx context.Context, symbol string) (analytics.HeatmapRow, int) {
	row := make(analytics.HeatmapRow, len(analytics.Timeframes))
	filled := 0
	for i, tf := range analytics.Timeframes {
		if i > 0 && !sleepCtx(ctx, s.cfg.Providers.RequestDelay) {
			break
		}
		pct, err := s.yahoo.WindowChange(ctx, symbol, tf.Primary)
		if err != nil && tf.Fallback != nil {
			pct, err = s.yahoo.WindowChange(ctx, symbol, *tf.Fallback)
		}
		if err != nil {
			s.logger.Debug("heatmap cell failed", zap.String("symbol", symbol), zap.String("timeframe", tf.Name), zap.Error(err))
			row[tf.Name] = nil
			continue
		}
		row[tf.Name] = market.Float(pct)
		filled++
	}
	return row, filled
}
