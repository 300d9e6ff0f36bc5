// File: internal/market/market.go
package market

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Category tags a symbol's asset class. The value doubles as the "type" field of
// push messages.
type Category string

const (
	CategoryEquity    Category = "us-stock"
	CategoryIndex     Category = "index"
	CategoryForex     Category = "forex"
	CategoryCommodity Category = "commodity"
	CategoryCrypto    Category = "crypto"
)

// Categories lists every known category in display order.
var Categories = []Category{CategoryEquity, CategoryIndex, CategoryForex, CategoryCommodity, CategoryCrypto}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

var (
	// ErrUpstreamTransport marks connection drops, timeouts and non-2xx responses.
	ErrUpstreamTransport = errors.New("upstream transport error")
	// ErrUpstreamData marks responses with missing or malformed fields.
	ErrUpstreamData = errors.New("upstream data error")
	// ErrNoData means nothing usable exists: no fresh tick, no fallback, no stale cache.
	ErrNoData = errors.New("no data available")
	// ErrUnknownSymbol means the symbol is not in the catalog.
	ErrUnknownSymbol = errors.New("unknown symbol")
)

// Tick is one normalized price observation. Change is nil when neither a reference
// close nor a provider change value was available.
type Tick struct {
	Symbol        string    `json:"symbol"`
	Category      Category  `json:"category"`
	Price         float64   `json:"price"`
	Change        *float64  `json:"change,omitempty"`
	ChangePercent float64   `json:"changePercent"`
	ObservedAt    time.Time `json:"observedAt"`
}

// Fresh reports whether the tick is younger than window at now.
func (t Tick) Fresh(now time.Time, window time.Duration) bool {
	if t.ObservedAt.IsZero() {
		return false
	}
	return now.Sub(t.ObservedAt) < window
}

// ReferenceClose holds the previous session close for a symbol, along with the REST
// provider's last-known close and percent.
type ReferenceClose struct {
	Symbol        string    `json:"symbol"`
	PreviousClose float64   `json:"previousClose"`
	Close         float64   `json:"close,omitempty"`
	ChangePercent *float64  `json:"changePercent,omitempty"`
	AsOf          time.Time `json:"asOf"`
}

// Usable reports whether PreviousClose can serve as a percent-change denominator.
func (r ReferenceClose) Usable() bool {
	return r.PreviousClose != 0 && !math.IsNaN(r.PreviousClose) && !math.IsInf(r.PreviousClose, 0)
}

// Mover is one entry of a "top movers" view.
type Mover struct {
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	Type        string  `json:"type"`
	RawChange   float64 `json:"rawChange"`
	Performance string  `json:"performance"`
	Trend       string  `json:"trend"`
}

func NewMover(name, symbol string, pct float64, kind string) Mover {
	return Mover{
		Name:        name,
		Symbol:      symbol,
		Type:        kind,
		RawChange:   pct,
		Performance: FormatPercent(pct),
		Trend:       Trend(pct),
	}
}

// FormatPercent renders pct as "+1.23%" / "-0.40%".
func FormatPercent(pct float64) string {
	sign := ""
	if pct >= 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, pct)
}

func Trend(pct float64) string {
	if pct >= 0 {
		return "positive"
	}
	return "negative"
}

func Float(v float64) *float64 { return &v }
