// File: internal/store/store.go
package store

import (
	"sort"
	"sync"
	"time"

	"marketfeed/internal/market"
)

// Store holds the latest tick per symbol for one category. Reads are served only
// while a tick is younger than the freshness window; older ticks stay readable
// through Get for fallbacks and snapshots.
type Store struct {
	category market.Category
	window   time.Duration
	now      func() time.Time

	mu    sync.RWMutex
	ticks map[string]market.Tick
}

type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(category market.Category, window time.Duration, opts ...Option) *Store {
	s := &Store{
		category: category,
		window:   window,
		now:      time.Now,
		ticks:    make(map[string]market.Tick),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Category() market.Category { return s.category }

// Put stores t unless the stored tick for the symbol was observed later.
func (s *Store) Put(t market.Tick) bool {
	if t.Symbol == "" {
		return false
	}
	if t.Category == "" {
		t.Category = s.category
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.ticks[t.Symbol]; ok && t.ObservedAt.Before(cur.ObservedAt) {
		return false
	}
	s.ticks[t.Symbol] = t
	return true
}

// Get returns the stored tick regardless of age.
func (s *Store) Get(symbol string) (market.Tick, bool) {
	s.mu.RLock()
	t, ok := s.ticks[symbol]
	s.mu.RUnlock()
	return t, ok
}

// Fresh returns the stored tick only while it is inside the window.
func (s *Store) Fresh(symbol string) (market.Tick, bool) {
	t, ok := s.Get(symbol)
	if !ok || !t.Fresh(s.now(), s.window) {
		return market.Tick{}, false
	}
	return t, true
}

// Snapshot returns every stored tick ordered by symbol.
func (s *Store) Snapshot() []market.Tick {
	s.mu.RLock()
	out := make([]market.Tick, 0, len(s.ticks))
	for _, t := range s.ticks {
		out = append(out, t)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ticks)
}
