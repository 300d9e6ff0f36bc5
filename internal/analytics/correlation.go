// File: internal/analytics/correlation.go
package analytics

import (
	"math"
	"time"
)

// Pearson returns the correlation coefficient of x and y, aligned on their most
// recent min(len) points. Empty input or zero variance yields 0.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n == 0 {
		return 0
	}
	x, y = x[len(x)-n:], y[len(y)-n:]

	var mx, my float64
	for i := 0; i < n; i++ {
		mx += x[i]
		my += y[i]
	}
	mx /= float64(n)
	my /= float64(n)

	var num, sx, sy float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-mx, y[i]-my
		num += dx * dy
		sx += dx * dx
		sy += dy * dy
	}
	den := math.Sqrt(sx * sy)
	if den == 0 {
		return 0
	}
	r := num / den
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type CorrelationMatrix struct {
	Period    int                           `json:"period"`
	Assets    []string                      `json:"assets"`
	Matrix    map[string]map[string]float64 `json:"matrix"`
	Timestamp time.Time                     `json:"timestamp"`
}

// BuildCorrelationMatrix correlates every pair of named series. Names without a
// series are left out; the diagonal is exactly 1.
func BuildCorrelationMatrix(period int, names []string, series map[string][]float64, now time.Time) CorrelationMatrix {
	assets := make([]string, 0, len(names))
	for _, name := range names {
		if len(series[name]) > 0 {
			assets = append(assets, name)
		}
	}
	m := make(map[string]map[string]float64, len(assets))
	for _, a := range assets {
		row := make(map[string]float64, len(assets))
		for _, b := range assets {
			if a == b {
				row[b] = 1.0
				continue
			}
			row[b] = Round2(Pearson(series[a], series[b]))
		}
		m[a] = row
	}
	return CorrelationMatrix{Period: period, Assets: assets, Matrix: m, Timestamp: now}
}
