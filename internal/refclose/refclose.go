// File: internal/refclose/refclose.go
package refclose

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketfeed/internal/market"
)

// Book is the shared symbol -> ReferenceClose table read by stream normalizers.
type Book struct {
	mu   sync.RWMutex
	refs map[string]market.ReferenceClose
}

func NewBook() *Book {
	return &Book{refs: make(map[string]market.ReferenceClose)}
}

func (b *Book) Set(ref market.ReferenceClose) {
	b.mu.Lock()
	b.refs[ref.Symbol] = ref
	b.mu.Unlock()
}

func (b *Book) Get(symbol string) (market.ReferenceClose, bool) {
	b.mu.RLock()
	ref, ok := b.refs[symbol]
	b.mu.RUnlock()
	return ref, ok
}

// Seed stores previous closes keyed by symbol, stamped asOf.
func (b *Book) Seed(closes map[string]float64, asOf time.Time) {
	b.mu.Lock()
	for sym, c := range closes {
		b.refs[sym] = market.ReferenceClose{Symbol: sym, PreviousClose: c, AsOf: asOf}
	}
	b.mu.Unlock()
}

func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.refs)
}

// Source fetches the reference close for one instrument.
type Source interface {
	Reference(ctx context.Context, in market.Instrument) (market.ReferenceClose, error)
}

// Refresher keeps a Book current for a fixed instrument list. It runs on its own
// ticker and does not depend on any stream being connected.
type Refresher struct {
	book        *Book
	source      Source
	instruments []market.Instrument
	interval    time.Duration
	delay       time.Duration
	logger      *zap.Logger
}

func NewRefresher(book *Book, source Source, instruments []market.Instrument, interval, delay time.Duration, logger *zap.Logger) *Refresher {
	return &Refresher{
		book:        book,
		source:      source,
		instruments: instruments,
		interval:    interval,
		delay:       delay,
		logger:      logger.Named("refclose"),
	}
}

// Run refreshes once immediately and then every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	r.RefreshAll(ctx)
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.RefreshAll(ctx)
		}
	}
}

// RefreshAll walks the instrument list sequentially. A failed symbol keeps its
// previous reference and the pass continues. It returns the number updated.
func (r *Refresher) RefreshAll(ctx context.Context) int {
	updated := 0
	for i, in := range r.instruments {
		if i > 0 && r.delay > 0 {
			select {
			case <-ctx.Done():
				return updated
			case <-time.After(r.delay):
			}
		}
		if ctx.Err() != nil {
			return updated
		}
		ref, err := r.source.Reference(ctx, in)
		if err != nil {
			r.logger.Warn("reference close refresh failed", zap.String("symbol", in.Symbol), zap.Error(err))
			continue
		}
		ref.Symbol = in.Symbol
		r.book.Set(ref)
		updated++
	}
	r.logger.Debug("reference closes refreshed", zap.Int("updated", updated), zap.Int("total", len(r.instruments)))
	return updated
}
