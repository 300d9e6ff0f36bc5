// File: internal/market/catalog.go
package market

import (
	"fmt"
	"strings"
)

// Instrument maps one tracked asset to the identifiers each upstream uses for it.
type Instrument struct {
	Symbol       string   `yaml:"symbol" json:"symbol"`               // stream-native, e.g. EURUSD, AAPL.US
	Name         string   `yaml:"name" json:"name"`                   // display, e.g. EUR/USD
	Category     Category `yaml:"category" json:"category"`
	RestSymbol   string   `yaml:"rest_symbol,omitempty" json:"-"`   // point-in-time quote, e.g. EURUSD.FOREX
	SeriesSymbol string   `yaml:"series_symbol,omitempty" json:"-"` // chart, e.g. EURUSD=X
}

// Pair splits a forex name like "EUR/USD" (or a bare "EURUSD") into base and quote.
func (i Instrument) Pair() (base, quote string, ok bool) {
	name := strings.ToUpper(strings.TrimSpace(i.Name))
	if b, q, found := strings.Cut(name, "/"); found && b != "" && q != "" {
		return b, q, true
	}
	sym := strings.ToUpper(i.Symbol)
	if len(sym) == 6 {
		return sym[:3], sym[3:], true
	}
	return "", "", false
}

// Catalog is the immutable set of instruments this process tracks.
type Catalog struct {
	bySymbol   map[string]Instrument
	byCategory map[Category][]Instrument
	order      []Instrument
}

func NewCatalog(instruments []Instrument) (*Catalog, error) {
	c := &Catalog{
		bySymbol:   make(map[string]Instrument, len(instruments)),
		byCategory: make(map[Category][]Instrument),
	}
	for _, in := range instruments {
		in.Symbol = strings.TrimSpace(in.Symbol)
		if in.Symbol == "" {
			return nil, fmt.Errorf("instrument %q: empty symbol", in.Name)
		}
		if _, err := ParseCategory(string(in.Category)); err != nil {
			return nil, fmt.Errorf("instrument %s: %w", in.Symbol, err)
		}
		if _, dup := c.bySymbol[in.Symbol]; dup {
			return nil, fmt.Errorf("instrument %s: duplicate symbol", in.Symbol)
		}
		if in.Name == "" {
			in.Name = in.Symbol
		}
		c.bySymbol[in.Symbol] = in
		c.byCategory[in.Category] = append(c.byCategory[in.Category], in)
		c.order = append(c.order, in)
	}
	return c, nil
}

func (c *Catalog) Lookup(symbol string) (Instrument, bool) {
	in, ok := c.bySymbol[symbol]
	return in, ok
}

// InCategory returns the category's instruments in configuration order.
func (c *Catalog) InCategory(cat Category) []Instrument {
	return append([]Instrument(nil), c.byCategory[cat]...)
}

func (c *Catalog) All() []Instrument {
	return append([]Instrument(nil), c.order...)
}
