// File: internal/service/poller.go
package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marketfeed/internal/config"
	"marketfeed/internal/market"
)

// Poller keeps REST fallbacks warm for categories that no stream covers.
type Poller struct {
	svc        *Service
	interval   time.Duration
	categories []market.Category
	logger     *zap.Logger
}

func NewPoller(svc *Service, cfg config.PollerConfig, logger *zap.Logger) *Poller {
	p := &Poller{svc: svc, interval: cfg.Interval, logger: logger.Named("poller")}
	for _, c := range cfg.Categories {
		if cat, err := market.ParseCategory(c); err == nil {
			p.categories = append(p.categories, cat)
		}
	}
	return p
}

// Run polls once immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.PollOnce(ctx)
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce refreshes every category concurrently and returns how many quotes each
// produced. A failing category reports 0 and does not affect the others.
func (p *Poller) PollOnce(ctx context.Context) map[market.Category]int {
	var mu sync.Mutex
	counts := make(map[market.Category]int, len(p.categories))
	g, gctx := errgroup.WithContext(ctx)
	for _, cat := range p.categories {
		cat := cat
		g.Go(func() error {
			ticks, _, err := p.svc.Quotes(gctx, cat)
			if err != nil {
				p.logger.Warn("poll failed", zap.String("category", string(cat)), zap.Error(err))
			}
			mu.Lock()
			counts[cat] = len(ticks)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return counts
}
