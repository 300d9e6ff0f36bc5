// File: internal/hub/hub.go
package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"marketfeed/internal/market"
)

// Update is the push message sent to subscribers.
type Update struct {
	Type          market.Category `json:"type"`
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name,omitempty"`
	Price         float64         `json:"price"`
	Change        *float64        `json:"change,omitempty"`
	ChangePercent float64         `json:"changePercent"`
	Timestamp     int64           `json:"timestamp"` // unix ms
}

func FromTick(t market.Tick, name string) Update {
	return Update{
		Type:          t.Category,
		Symbol:        t.Symbol,
		Name:          name,
		Price:         t.Price,
		Change:        t.Change,
		ChangePercent: t.ChangePercent,
		Timestamp:     t.ObservedAt.UnixMilli(),
	}
}

// Subscription receives updates on C until closed.
type Subscription struct {
	C         <-chan Update
	ch        chan Update
	done      chan struct{}
	closeOnce sync.Once
	hub       *Hub
}

// Done returns a channel closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.hub.remove(s)
	})
}

type Config struct {
	Buffer       int
	PingInterval time.Duration
	PongWait     time.Duration
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Buffer:       256,
		PingInterval: 45 * time.Second,
		PongWait:     90 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Hub fans updates out to subscribers. A slow subscriber loses messages instead of
// holding up the others.
type Hub struct {
	cfg      Config
	snapshot func() []Update
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// New builds a hub. snapshot, when set, supplies the current state sent to each
// new subscriber before any live update.
func New(cfg Config, snapshot func() []Update, logger *zap.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		snapshot: snapshot,
		logger:   logger.Named("hub"),
		upgrader: websocket.Upgrader{
			CheckOrigin:       func(*http.Request) bool { return true },
			EnableCompression: true,
		},
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a subscriber with the given buffer. The snapshot is queued
// under the hub lock, so no publish can land ahead of it.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = h.cfg.Buffer
	}
	ch := make(chan Update, buffer)
	sub := &Subscription{C: ch, ch: ch, done: make(chan struct{}), hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.snapshot != nil {
		for _, u := range h.snapshot() {
			select {
			case ch <- u:
			default:
			}
		}
	}
	h.subs[sub] = struct{}{}
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// Publish delivers u to every live subscriber without blocking and returns how
// many received it.
func (h *Hub) Publish(u Update) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for sub := range h.subs {
		select {
		case <-sub.done:
			// skip closed
		case sub.ch <- u:
			delivered++
		default:
			// drop if slow consumer
		}
	}
	return delivered
}

// Close ends every subscription. Connected websocket clients get a close frame.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeWS upgrades the request and streams updates until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.Subscribe(h.cfg.Buffer)
	defer sub.Close()
	h.logger.Info("client connected", zap.String("remote", r.RemoteAddr), zap.Int("clients", h.Count()))

	// writer
	go func() {
		ping := time.NewTicker(h.cfg.PingInterval)
		defer ping.Stop()
		for {
			select {
			case u := <-sub.C:
				_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
				if err := conn.WriteJSON(u); err != nil {
					_ = conn.Close()
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
					_ = conn.Close()
					return
				}
			case <-sub.Done():
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.cfg.WriteTimeout))
				_ = conn.Close()
				return
			}
		}
	}()

	// reader
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.logger.Info("client disconnected", zap.String("remote", r.RemoteAddr))
}
