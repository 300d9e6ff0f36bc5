// File: internal/analytics/heatmap.go
package analytics

// Window describes one chart request and the comparison offset within it.
type Window struct {
	Interval  string
	Range     string
	Offset    int
	MinPoints int // 0 means the PercentChangeAt default of 2
}

type Timeframe struct {
	Name     string
	Primary  Window
	Fallback *Window
}

// Timeframes are the heatmap columns in display order.
var Timeframes = []Timeframe{
	{
		Name:     "1h",
		Primary:  Window{Interval: "5m", Range: "1d", Offset: 12},
		Fallback: &Window{Interval: "15m", Range: "5d", Offset: 4, MinPoints: 5},
	},
	{Name: "4h", Primary: Window{Interval: "15m", Range: "5d", Offset: 16}},
	{Name: "1d", Primary: Window{Interval: "1d", Range: "5d", Offset: 1}},
	{Name: "1w", Primary: Window{Interval: "1d", Range: "1mo", Offset: 7}},
}

// Change applies the window's offset rules to closes.
func (w Window) Change(closes []float64) (float64, bool) {
	if w.MinPoints > 0 && len(closes) < w.MinPoints {
		return 0, false
	}
	return PercentChangeAt(closes, w.Offset)
}

// HeatmapRow maps timeframe name to percent, nil when unavailable.
type HeatmapRow map[string]*float64

// Heatmap maps display label to its row.
type Heatmap map[string]HeatmapRow
