// File: internal/eodhd/normalize.go
package eodhd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"marketfeed/internal/market"
)

// Message is one streamed price frame. Equity and index frames carry p/c/cp, forex
// frames carry a/b/dc/dd, crypto frames carry p/dc/dd.
type Message struct {
	Symbol        string        `json:"s"`
	Price         market.Number `json:"p"`
	Ask           market.Number `json:"a"`
	Bid           market.Number `json:"b"`
	Change        market.Number `json:"c"`
	ChangePercent market.Number `json:"cp"`
	DailyPercent  market.Number `json:"dc"`
	DailyDiff     market.Number `json:"dd"`
}

// decodeMessages accepts a single object or an array of objects.
func decodeMessages(data []byte) ([]Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var msgs []Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, fmt.Errorf("%w: %v", market.ErrUpstreamData, err)
		}
		return msgs, nil
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", market.ErrUpstreamData, err)
	}
	return []Message{m}, nil
}

// RefLookup is the read side of the reference close book.
type RefLookup interface {
	Get(symbol string) (market.ReferenceClose, bool)
}

// Normalizer turns raw frames into ticks using the shared reference closes.
type Normalizer struct {
	refs              RefLookup
	restPercentQuotes map[string]bool
}

// NewNormalizer builds a normalizer. For forex instruments whose quote currency is
// listed in restPercentQuotes, the REST provider's percent wins over the reference
// formula whenever one is known.
func NewNormalizer(refs RefLookup, restPercentQuotes []string) *Normalizer {
	q := make(map[string]bool, len(restPercentQuotes))
	for _, c := range restPercentQuotes {
		q[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	return &Normalizer{refs: refs, restPercentQuotes: q}
}

// Normalize returns false for frames without a usable price.
func (n *Normalizer) Normalize(msg Message, in market.Instrument, now time.Time) (market.Tick, bool) {
	price, ok := msgPrice(msg)
	if !ok {
		return market.Tick{}, false
	}
	tick := market.Tick{
		Symbol:     in.Symbol,
		Category:   in.Category,
		Price:      price,
		ObservedAt: now,
	}

	var ref market.ReferenceClose
	var haveRef bool
	if n.refs != nil {
		ref, haveRef = n.refs.Get(in.Symbol)
	}

	switch {
	case haveRef && ref.ChangePercent != nil && n.usesRestPercent(in):
		tick.ChangePercent = *ref.ChangePercent
		if ref.Usable() {
			tick.Change = market.Float(price - ref.PreviousClose)
		} else {
			tick.Change = firstValid(msg.Change, msg.DailyDiff).Ptr()
		}
	case haveRef && ref.Usable():
		diff := price - ref.PreviousClose
		tick.Change = market.Float(diff)
		tick.ChangePercent = diff / ref.PreviousClose * 100
	default:
		tick.ChangePercent = firstValid(msg.ChangePercent, msg.DailyPercent).Value
		tick.Change = firstValid(msg.Change, msg.DailyDiff).Ptr()
	}
	return tick, true
}

func (n *Normalizer) usesRestPercent(in market.Instrument) bool {
	if len(n.restPercentQuotes) == 0 || in.Category != market.CategoryForex {
		return false
	}
	_, quote, ok := in.Pair()
	return ok && n.restPercentQuotes[quote]
}

func msgPrice(m Message) (float64, bool) {
	switch {
	case m.Price.Valid:
		return m.Price.Value, true
	case m.Ask.Valid && m.Bid.Valid:
		return (m.Ask.Value + m.Bid.Value) / 2, true
	case m.Ask.Valid:
		return m.Ask.Value, true
	case m.Bid.Valid:
		return m.Bid.Value, true
	}
	return 0, false
}

func firstValid(ns ...market.Number) market.Number {
	for _, n := range ns {
		if n.Valid {
			return n
		}
	}
	return market.Number{}
}
