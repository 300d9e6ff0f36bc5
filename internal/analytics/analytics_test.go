package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfeed/internal/market"
)

func TestPearson(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	assert.InDelta(t, 1.0, Pearson(x, x), 1e-12)
	assert.InDelta(t, -1.0, Pearson(x, []float64{6, 5, 4, 3, 2, 1}), 1e-12)
	assert.Equal(t, 0.0, Pearson(x, []float64{3, 3, 3, 3, 3, 3}))
	assert.Equal(t, 0.0, Pearson(nil, x))

	// aligned on the most recent points
	long := []float64{100, -50, 1, 2, 3}
	assert.InDelta(t, 1.0, Pearson(long, []float64{10, 20, 30}), 1e-12)

	y := []float64{2, 1, 4, 3, 6, 5}
	assert.Equal(t, Pearson(x, y), Pearson(y, x))
}

func TestBuildCorrelationMatrix(t *testing.T) {
	now := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	series := map[string][]float64{
		"Gold":   {1, 2, 3, 4, 5},
		"Silver": {2, 4, 5, 8, 10},
		"Oil":    {5, 4, 3, 2, 1},
	}
	m := BuildCorrelationMatrix(30, []string{"Gold", "Missing", "Silver", "Oil"}, series, now)

	assert.Equal(t, []string{"Gold", "Silver", "Oil"}, m.Assets)
	assert.Equal(t, 30, m.Period)
	assert.Equal(t, now, m.Timestamp)
	for _, a := range m.Assets {
		assert.Equal(t, 1.0, m.Matrix[a][a])
		for _, b := range m.Assets {
			assert.Equal(t, m.Matrix[a][b], m.Matrix[b][a])
			v := m.Matrix[a][b]
			assert.True(t, v >= -1 && v <= 1)
			assert.Equal(t, v, math.Round(v*100)/100)
		}
	}
	assert.Equal(t, -1.0, m.Matrix["Gold"]["Oil"])
	_, ok := m.Matrix["Missing"]
	assert.False(t, ok)
}

func TestCurrencyStrength(t *testing.T) {
	pairs := []PairChange{
		{Base: "EUR", Quote: "USD", Percent: 0.5},
		{Base: "GBP", Quote: "USD", Percent: 0.1},
	}
	got := CurrencyStrength(pairs, DefaultCurrencies, 0.3)
	labels := Labels(got)

	assert.Equal(t, Strong, labels["EUR"])
	assert.Equal(t, Neutral, labels["GBP"])
	assert.Equal(t, Weak, labels["USD"], "the threshold is inclusive")
	assert.Equal(t, Neutral, labels["ZAR"])
	require.Len(t, got, len(DefaultCurrencies))
	assert.Equal(t, "USD", got[0].Currency)
	assert.Equal(t, 2, got[0].Pairs)
	assert.Equal(t, 0, got[6].Pairs)
}

func TestCurrencyStrengthWeak(t *testing.T) {
	got := Labels(CurrencyStrength([]PairChange{{Base: "USD", Quote: "ZAR", Percent: 0.8}}, DefaultCurrencies, 0.3))
	assert.Equal(t, Strong, got["USD"])
	assert.Equal(t, Weak, got["ZAR"])
}

func TestRankMovers(t *testing.T) {
	in := []market.Mover{
		market.NewMover("Apple", "AAPL", 1.2, "Stock"),
		market.NewMover("Apple", "AAPL", -3.0, "Stock"),
		market.NewMover("Bitcoin", "BTC-USD", 2.5, "Crypto"),
		market.NewMover("Gold", "GC=F", -0.4, "Commodity"),
		market.NewMover("Bad", "BAD", math.NaN(), "Stock"),
	}
	out := RankMovers(in, 10)
	require.Len(t, out, 3)
	assert.Equal(t, "AAPL", out[0].Symbol)
	assert.Equal(t, -3.0, out[0].RawChange)
	assert.Equal(t, "-3.00%", out[0].Performance)
	assert.Equal(t, "BTC-USD", out[1].Symbol)
	assert.Equal(t, "GC=F", out[2].Symbol)

	var many []market.Mover
	for i := 0; i < 15; i++ {
		many = append(many, market.NewMover("x", string(rune('A'+i)), float64(i), "Stock"))
	}
	top := RankMovers(many, 10)
	require.Len(t, top, 10)
	assert.Equal(t, 14.0, top[0].RawChange)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, math.Abs(top[i-1].RawChange), math.Abs(top[i].RawChange))
	}
}

func TestPercentChangeAt(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 110}
	pct, ok := PercentChangeAt(closes, 5)
	require.True(t, ok)
	assert.InDelta(t, 10.0, pct, 1e-9)

	pct, ok = PercentChangeAt(closes, 12)
	require.True(t, ok, "short series falls back to the previous point")
	assert.InDelta(t, (110.0-104)/104*100, pct, 1e-9)

	_, ok = PercentChangeAt([]float64{1}, 1)
	assert.False(t, ok)
	_, ok = PercentChangeAt([]float64{0, 5}, 1)
	assert.False(t, ok)
}

func TestTimeframeWindows(t *testing.T) {
	require.Len(t, Timeframes, 4)
	h1 := Timeframes[0]
	require.NotNil(t, h1.Fallback)

	_, ok := h1.Fallback.Change([]float64{1, 2, 3, 4})
	assert.False(t, ok, "fallback needs five points")
	pct, ok := h1.Fallback.Change([]float64{100, 1, 1, 1, 105})
	require.True(t, ok)
	assert.InDelta(t, 5.0, pct, 1e-9)

	w := Timeframes[3].Primary
	assert.Equal(t, "1mo", w.Range)
	assert.Equal(t, 7, w.Offset)
}
