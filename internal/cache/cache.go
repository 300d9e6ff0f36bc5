// File: internal/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"marketfeed/internal/market"
	"marketfeed/internal/obs"
)

// Key names a cached view by category (which selects the TTL) and parameter.
type Key struct {
	Category string
	Param    string
}

func (k Key) String() string {
	if k.Param == "" {
		return k.Category
	}
	return k.Category + ":" + k.Param
}

// Entry is what backends store. Payload is the JSON encoding of the view.
type Entry struct {
	Payload  json.RawMessage `json:"payload"`
	CachedAt time.Time       `json:"cachedAt"`
}

// Backend persists entries. Get reports found=false for a missing key.
type Backend interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Meta describes how a Fetch result was served.
type Meta struct {
	CachedAt time.Time     `json:"cachedAt"`
	TTL      time.Duration `json:"ttl"`
	Stale    bool          `json:"stale"`
	Hit      bool          `json:"hit"`
}

const defaultRefreshTimeout = 30 * time.Second

type Cache struct {
	backend        Backend
	ttls           map[string]time.Duration
	defaultTTL     time.Duration
	refreshTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger
	group          singleflight.Group
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithRefreshTimeout bounds a single refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

func New(backend Backend, ttls map[string]time.Duration, defaultTTL time.Duration, logger *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		backend:        backend,
		ttls:           ttls,
		defaultTTL:     defaultTTL,
		refreshTimeout: defaultRefreshTimeout,
		now:            time.Now,
		logger:         logger.Named("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured lifetime for a category.
func (c *Cache) TTL(category string) time.Duration {
	if d, ok := c.ttls[category]; ok && d > 0 {
		return d
	}
	return c.defaultTTL
}

func (c *Cache) Invalidate(ctx context.Context, key Key) error {
	return c.backend.Delete(ctx, key.String())
}

func (c *Cache) Close() error { return c.backend.Close() }

type flight[T any] struct {
	value T
	meta  Meta
}

// Fetch returns the cached value for key while it is younger than its category TTL.
// Otherwise it runs refresh, with concurrent callers for the same key sharing one
// call. The shared call is detached from any single caller's cancellation and is
// bounded by the refresh timeout instead; a caller whose ctx ends stops waiting.
// When refresh fails, the last stored value is returned with Meta.Stale set; with
// nothing stored the error wraps market.ErrNoData.
func Fetch[T any](ctx context.Context, c *Cache, key Key, refresh func(context.Context) (T, error)) (T, Meta, error) {
	var zero T
	k := key.String()
	ttl := c.TTL(key.Category)

	if v, meta, ok := lookupFresh[T](ctx, c, k, ttl); ok {
		return v, meta, nil
	}

	ch := c.group.DoChan(k, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()
		// another flight may have stored a value since the first lookup
		if v, meta, ok := lookupFresh[T](fctx, c, k, ttl); ok {
			return flight[T]{value: v, meta: meta}, nil
		}
		rctx, span := obs.StartSpan(fctx, "cache.refresh")
		span.SetAttributes(attribute.String("cache.key", k))
		v, err := refresh(rctx)
		obs.EndSpan(span, err)
		if err != nil {
			return nil, err
		}
		now := c.now()
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		if err := c.backend.Set(fctx, k, Entry{Payload: raw, CachedAt: now}, ttl); err != nil {
			c.logger.Warn("cache store failed", zap.String("key", k), zap.Error(err))
		}
		return flight[T]{value: v, meta: Meta{CachedAt: now, TTL: ttl}}, nil
	})

	var err error
	select {
	case <-ctx.Done():
		return zero, Meta{}, fmt.Errorf("%s: %w", k, ctx.Err())
	case res := <-ch:
		if res.Err == nil {
			if f, ok := res.Val.(flight[T]); ok {
				return f.value, f.meta, nil
			}
			err = fmt.Errorf("cache key %s shared across types", k)
		} else {
			err = res.Err
		}
	}

	e, found, berr := c.backend.Get(ctx, k)
	if berr == nil && found {
		var v T
		if jerr := json.Unmarshal(e.Payload, &v); jerr == nil {
			c.logger.Warn("serving stale cache entry",
				zap.String("key", k), zap.Time("cached_at", e.CachedAt), zap.Error(err))
			return v, Meta{CachedAt: e.CachedAt, TTL: ttl, Stale: true, Hit: true}, nil
		}
	}
	return zero, Meta{}, fmt.Errorf("%w: %s: %w", market.ErrNoData, k, err)
}

func lookupFresh[T any](ctx context.Context, c *Cache, k string, ttl time.Duration) (T, Meta, bool) {
	var v T
	e, found, err := c.backend.Get(ctx, k)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", k), zap.Error(err))
		return v, Meta{}, false
	}
	if !found || c.now().Sub(e.CachedAt) >= ttl {
		return v, Meta{}, false
	}
	if err := json.Unmarshal(e.Payload, &v); err != nil {
		c.logger.Warn("cache entry undecodable", zap.String("key", k), zap.Error(err))
		return v, Meta{}, false
	}
	return v, Meta{CachedAt: e.CachedAt, TTL: ttl, Hit: true}, true
}
