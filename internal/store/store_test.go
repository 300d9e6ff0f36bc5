package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfeed/internal/market"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestFreshWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)}
	s := New(market.CategoryEquity, 60*time.Second, WithClock(clock.Now))

	require.True(t, s.Put(market.Tick{Symbol: "AAPL", Price: 189.5, ChangePercent: 0.8, ObservedAt: clock.Now()}))

	clock.Advance(30 * time.Second)
	got, ok := s.Fresh("AAPL")
	require.True(t, ok)
	assert.Equal(t, 189.5, got.Price)
	assert.Equal(t, market.CategoryEquity, got.Category)

	clock.Advance(31 * time.Second)
	_, ok = s.Fresh("AAPL")
	assert.False(t, ok, "61s old tick must not be served as fresh")

	stale, ok := s.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, 189.5, stale.Price)

	_, ok = s.Fresh("MSFT")
	assert.False(t, ok)
}

func TestPutRejectsOlderObservation(t *testing.T) {
	base := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)
	s := New(market.CategoryForex, time.Minute, WithClock(func() time.Time { return base }))

	require.True(t, s.Put(market.Tick{Symbol: "EURUSD", Price: 1.0951, ObservedAt: base}))
	assert.False(t, s.Put(market.Tick{Symbol: "EURUSD", Price: 1.0900, ObservedAt: base.Add(-10 * time.Second)}))
	assert.True(t, s.Put(market.Tick{Symbol: "EURUSD", Price: 1.0955, ObservedAt: base}))

	got, _ := s.Get("EURUSD")
	assert.Equal(t, 1.0955, got.Price)
	assert.False(t, s.Put(market.Tick{Price: 1}))
}

func TestSnapshotOrdered(t *testing.T) {
	now := time.Now()
	s := New(market.CategoryCrypto, time.Minute)
	for _, sym := range []string{"SOL-USD", "BTC-USD", "ETH-USD"} {
		s.Put(market.Tick{Symbol: sym, Price: 1, ObservedAt: now})
	}
	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "BTC-USD", snap[0].Symbol)
	assert.Equal(t, "SOL-USD", snap[2].Symbol)
	assert.Equal(t, 3, s.Len())
}

func TestConcurrentPuts(t *testing.T) {
	s := New(market.CategoryEquity, time.Minute)
	base := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Put(market.Tick{Symbol: "AAPL", Price: float64(i), ObservedAt: base.Add(time.Duration(i) * time.Millisecond)})
		}(i)
	}
	wg.Wait()
	got, ok := s.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, float64(49), got.Price, "newest observation wins regardless of arrival order")
}
