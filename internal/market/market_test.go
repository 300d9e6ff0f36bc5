package market

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberAcceptsProviderShapes(t *testing.T) {
	var payload struct {
		A Number `json:"a"`
		B Number `json:"b"`
		C Number `json:"c"`
		D Number `json:"d"`
		E Number `json:"e"`
	}
	err := json.Unmarshal([]byte(`{"a":1.5,"b":"2.25","c":null,"d":"NA"}`), &payload)
	require.NoError(t, err)

	assert.Equal(t, Number{Value: 1.5, Valid: true}, payload.A)
	assert.Equal(t, Number{Value: 2.25, Valid: true}, payload.B)
	assert.False(t, payload.C.Valid)
	assert.False(t, payload.D.Valid)
	assert.False(t, payload.E.Valid)
	assert.Nil(t, payload.D.Ptr())
}

func TestTickFresh(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	tick := Tick{Symbol: "EURUSD", ObservedAt: now.Add(-59 * time.Second)}
	assert.True(t, tick.Fresh(now, time.Minute))
	tick.ObservedAt = now.Add(-time.Minute)
	assert.False(t, tick.Fresh(now, time.Minute))
	assert.False(t, Tick{}.Fresh(now, time.Minute))
}

func TestMoverFormatting(t *testing.T) {
	m := NewMover("Gold", "GC=F", 1.234, "Commodity")
	assert.Equal(t, "+1.23%", m.Performance)
	assert.Equal(t, "positive", m.Trend)

	m = NewMover("Tesla", "TSLA", -3, "Stock")
	assert.Equal(t, "-3.00%", m.Performance)
	assert.Equal(t, "negative", m.Trend)
}

func TestCatalog(t *testing.T) {
	c, err := NewCatalog([]Instrument{
		{Symbol: "EURUSD", Name: "EUR/USD", Category: CategoryForex},
		{Symbol: "AAPL.US", Name: "Apple", Category: CategoryEquity},
		{Symbol: "GBPZAR", Category: CategoryForex},
	})
	require.NoError(t, err)

	in, ok := c.Lookup("GBPZAR")
	require.True(t, ok)
	assert.Equal(t, "GBPZAR", in.Name)
	base, quote, ok := in.Pair()
	require.True(t, ok)
	assert.Equal(t, "GBP", base)
	assert.Equal(t, "ZAR", quote)

	assert.Len(t, c.InCategory(CategoryForex), 2)
	assert.Len(t, c.All(), 3)

	_, err = NewCatalog([]Instrument{
		{Symbol: "X", Category: CategoryCrypto},
		{Symbol: "X", Category: CategoryCrypto},
	})
	assert.Error(t, err)

	_, err = NewCatalog([]Instrument{{Symbol: "X", Category: "bonds"}})
	assert.Error(t, err)
}
