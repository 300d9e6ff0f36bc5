// File: internal/analytics/strength.go
package analytics

import "strings"

const (
	Strong  = "Strong"
	Weak    = "Weak"
	Neutral = "Neutral"
)

// DefaultCurrencies is the tracked set for currency strength.
var DefaultCurrencies = []string{"USD", "EUR", "GBP", "JPY", "AUD", "CHF", "ZAR"}

type PairChange struct {
	Base    string
	Quote   string
	Percent float64
}

type Strength struct {
	Currency string  `json:"currency"`
	Average  float64 `json:"average"`
	Pairs    int     `json:"pairs"`
	Label    string  `json:"label"`
}

// CurrencyStrength credits each pair's percent to its base and debits it from its
// quote, averages per currency over the pairs it appears in, and labels the
// average against threshold. Currencies with no pairs average 0.
func CurrencyStrength(pairs []PairChange, currencies []string, threshold float64) []Strength {
	sum := make(map[string]float64, len(currencies))
	count := make(map[string]int, len(currencies))
	for _, p := range pairs {
		base, quote := strings.ToUpper(p.Base), strings.ToUpper(p.Quote)
		sum[base] += p.Percent
		sum[quote] -= p.Percent
		count[base]++
		count[quote]++
	}
	out := make([]Strength, 0, len(currencies))
	for _, c := range currencies {
		c = strings.ToUpper(c)
		s := Strength{Currency: c, Pairs: count[c]}
		if s.Pairs > 0 {
			s.Average = sum[c] / float64(s.Pairs)
		}
		s.Label = classify(s.Average, threshold)
		out = append(out, s)
	}
	return out
}

func classify(avg, threshold float64) string {
	switch {
	case avg >= threshold:
		return Strong
	case avg <= -threshold:
		return Weak
	}
	return Neutral
}

// Labels flattens strengths into currency -> label.
func Labels(ss []Strength) map[string]string {
	out := make(map[string]string, len(ss))
	for _, s := range ss {
		out[s.Currency] = s.Label
	}
	return out
}
