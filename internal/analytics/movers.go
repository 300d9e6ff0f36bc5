// File: internal/analytics/movers.go
package analytics

import (
	"math"
	"sort"

	"marketfeed/internal/market"
)

// RankMovers keeps one entry per symbol (the one with the larger absolute change),
// orders by absolute change descending and truncates to n.
func RankMovers(candidates []market.Mover, n int) []market.Mover {
	best := make(map[string]int, len(candidates))
	out := make([]market.Mover, 0, len(candidates))
	for _, m := range candidates {
		if math.IsNaN(m.RawChange) || math.IsInf(m.RawChange, 0) {
			continue
		}
		if i, ok := best[m.Symbol]; ok {
			if math.Abs(m.RawChange) > math.Abs(out[i].RawChange) {
				out[i] = m
			}
			continue
		}
		best[m.Symbol] = len(out)
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].RawChange) > math.Abs(out[j].RawChange)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// PercentChangeAt compares the last close with the close offset points earlier.
// When the series is too short for offset it compares with the previous point.
func PercentChangeAt(closes []float64, offset int) (float64, bool) {
	if len(closes) < 2 {
		return 0, false
	}
	if offset < 1 || len(closes) < offset+1 {
		offset = 1
	}
	cur := closes[len(closes)-1]
	prev := closes[len(closes)-1-offset]
	if prev == 0 {
		return 0, false
	}
	pct := (cur - prev) / prev * 100
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0, false
	}
	return pct, true
}
