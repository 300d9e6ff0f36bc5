// File: internal/service/service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"marketfeed/internal/cache"
	"marketfeed/internal/config"
	"marketfeed/internal/eodhd"
	"marketfeed/internal/hub"
	"marketfeed/internal/market"
	"marketfeed/internal/refclose"
	"marketfeed/internal/store"
	"marketfeed/internal/twelvedata"
	"marketfeed/internal/yahoo"
)

// Deps overrides the collaborators New would otherwise build from configuration.
type Deps struct {
	Logger       *zap.Logger
	HTTPClient   *http.Client
	Dialer       *websocket.Dialer
	CacheBackend cache.Backend
	Now          func() time.Time
}

// Service owns the streams, stores, reference closes, cache and hub, and serves
// every read the HTTP layer exposes.
type Service struct {
	cfg     *config.AppConfig
	logger  *zap.Logger
	now     func() time.Time
	catalog *market.Catalog

	stores map[market.Category]*store.Store
	refs   *refclose.Book
	cache  *cache.Cache
	hub    *hub.Hub

	eodhd  *eodhd.Client
	yahoo  *yahoo.Client
	twelve *twelvedata.Client

	streams    []*eodhd.Stream
	refreshers []*refclose.Refresher
	poller     *Poller

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	shutdown bool
}

func New(cfg *config.AppConfig, deps Deps) (*Service, error) {
	catalog, err := market.NewCatalog(cfg.AllInstruments())
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Providers.RequestTimeout}
	}

	s := &Service{
		cfg:     cfg,
		logger:  logger.Named("service"),
		now:     now,
		catalog: catalog,
		stores:  make(map[market.Category]*store.Store, len(market.Categories)),
		refs:    refclose.NewBook(),
		eodhd:   eodhd.NewClient(cfg.Providers.EODHDRestURL, cfg.EODHDKey, httpClient, cfg.Providers.UserAgent),
		yahoo:   yahoo.NewClient(cfg.Providers.YahooChartURL, httpClient, cfg.Providers.UserAgent),
		twelve:  twelvedata.NewClient(cfg.Providers.TwelveDataURL, cfg.TwelveDataKey, httpClient),
	}
	for _, cat := range market.Categories {
		s.stores[cat] = store.New(cat, cfg.FreshnessWindow, store.WithClock(now))
	}

	backend := deps.CacheBackend
	if backend == nil {
		backend = newBackend(cfg.Cache)
	}
	s.cache = cache.New(backend, cfg.Cache.TTL, cfg.Cache.DefaultTTL, logger, cache.WithClock(now))
	s.hub = hub.New(hub.DefaultConfig(), s.Snapshot, logger)

	norm := eodhd.NewNormalizer(s.refs, cfg.RestPercentQuotes)
	base := strings.TrimRight(cfg.Providers.EODHDStreamURL, "/")
	for _, sc := range cfg.Streams {
		instruments := make([]market.Instrument, 0, len(sc.Instruments))
		for _, in := range sc.Instruments {
			if full, ok := catalog.Lookup(strings.TrimSpace(in.Symbol)); ok {
				instruments = append(instruments, full)
			}
		}
		st := eodhd.NewStream(eodhd.StreamConfig{
			Name:           sc.Name,
			URL:            base + "/" + strings.Trim(sc.Path, "/"),
			APIKey:         cfg.EODHDKey,
			Instruments:    instruments,
			ReconnectDelay: cfg.ReconnectDelay,
			PingInterval:   cfg.PingInterval,
		}, norm, s.Ingest, logger)
		if deps.Dialer != nil {
			st.SetDialer(deps.Dialer)
		}
		s.streams = append(s.streams, st)

		if sc.RefreshReference {
			var withRest []market.Instrument
			for _, in := range instruments {
				if in.RestSymbol != "" {
					withRest = append(withRest, in)
				}
			}
			s.refreshers = append(s.refreshers, refclose.NewRefresher(
				s.refs, s.eodhd, withRest, cfg.ReferenceRefreshInterval, cfg.Providers.RequestDelay,
				logger.With(zap.String("stream", sc.Name))))
		}
	}
	s.poller = NewPoller(s, cfg.Poller, logger)
	return s, nil
}

func newBackend(cfg config.CacheConfig) cache.Backend {
	if cfg.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		return cache.NewRedisBackend(rdb, cfg.StaleRetention)
	}
	return cache.NewMemoryBackend()
}

// Start launches the streams, reference refreshers and poller. They run until
// Shutdown or until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return errors.New("service is shut down")
	}
	if s.started {
		return errors.New("service already started")
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.cfg.EODHDKey == "" {
		s.logger.Warn("EODHD_API_KEY not set; streams and reference refresh disabled, serving REST fallbacks only")
	} else {
		for _, st := range s.streams {
			st := st
			s.goRun(func() { _ = st.Run(runCtx) })
		}
		for _, r := range s.refreshers {
			r := r
			s.goRun(func() { r.Run(runCtx) })
		}
	}
	if s.cfg.Poller.Interval > 0 && len(s.cfg.Poller.Categories) > 0 {
		s.goRun(func() { s.poller.Run(runCtx) })
	}
	s.logger.Info("service started",
		zap.Int("streams", len(s.streams)),
		zap.Int("instruments", len(s.catalog.All())),
		zap.String("cache_backend", s.cfg.Cache.Backend))
	return nil
}

func (s *Service) goRun(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Shutdown stops background work, waits for it within ctx, disconnects subscribers
// and closes the cache backend. Calling it again is a no-op.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for workers: %w", ctx.Err())
	}
	s.hub.Close()
	if cerr := s.cache.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close cache: %w", cerr))
	}
	s.logger.Info("service stopped")
	return err
}

// Ingest publishes a streamed tick to subscribers and records it.
func (s *Service) Ingest(t market.Tick) {
	name := t.Symbol
	if in, ok := s.catalog.Lookup(t.Symbol); ok {
		name = in.Name
	}
	s.hub.Publish(hub.FromTick(t, name))
	if st, ok := s.stores[t.Category]; ok {
		st.Put(t)
	}
}

// Snapshot returns every known tick as push updates, by category then symbol.
func (s *Service) Snapshot() []hub.Update {
	var out []hub.Update
	for _, cat := range market.Categories {
		for _, t := range s.stores[cat].Snapshot() {
			name := t.Symbol
			if in, ok := s.catalog.Lookup(t.Symbol); ok {
				name = in.Name
			}
			out = append(out, hub.FromTick(t, name))
		}
	}
	return out
}

// GetTick returns the symbol's tick only while it is fresh.
func (s *Service) GetTick(symbol string) (market.Tick, bool) {
	in, ok := s.catalog.Lookup(symbol)
	if !ok {
		return market.Tick{}, false
	}
	return s.stores[in.Category].Fresh(symbol)
}

func (s *Service) Hub() *hub.Hub { return s.hub }

func (s *Service) Catalog() *market.Catalog { return s.catalog }

// ReferenceBook exposes the shared reference closes.
func (s *Service) ReferenceBook() *refclose.Book { return s.refs }

type Health struct {
	Streams     map[string]string `json:"streams"`
	Subscribers int               `json:"subscribers"`
	Ticks       map[string]int    `json:"ticks"`
	References  int               `json:"references"`
}

func (s *Service) Health() Health {
	h := Health{
		Streams:     make(map[string]string, len(s.streams)),
		Subscribers: s.hub.Count(),
		Ticks:       make(map[string]int, len(s.stores)),
		References:  s.refs.Len(),
	}
	for _, st := range s.streams {
		h.Streams[st.Name()] = st.State().String()
	}
	for cat, st := range s.stores {
		h.Ticks[string(cat)] = st.Len()
	}
	return h
}
