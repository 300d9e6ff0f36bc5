// File: internal/eodhd/stream.go
package eodhd

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"marketfeed/internal/market"
)

// State is the connection state of one upstream stream.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// allowed lists the legal moves; anything else is ignored.
var allowed = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Subscribed, Disconnected},
	Subscribed:   {Disconnected},
}

// Sink receives every accepted tick.
type Sink func(market.Tick)

type StreamConfig struct {
	Name           string
	URL            string // full endpoint, e.g. wss://ws.eodhistoricaldata.com/ws/forex
	APIKey         string
	Instruments    []market.Instrument
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// Stream holds one long-lived subscription to a provider endpoint and reconnects
// with a fixed delay after any failure.
type Stream struct {
	cfg      StreamConfig
	norm     *Normalizer
	sink     Sink
	dialer   *websocket.Dialer
	logger   *zap.Logger
	now      func() time.Time
	bySymbol map[string]market.Instrument

	state atomic.Int32
	hookM sync.Mutex
	hook  func(from, to State)
}

func NewStream(cfg StreamConfig, norm *Normalizer, sink Sink, logger *zap.Logger) *Stream {
	s := &Stream{
		cfg:  cfg,
		norm: norm,
		sink: sink,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  10 * time.Second,
			EnableCompression: true,
		},
		logger:   logger.Named("eodhd.stream").With(zap.String("stream", cfg.Name)),
		now:      time.Now,
		bySymbol: make(map[string]market.Instrument, len(cfg.Instruments)),
	}
	for _, in := range cfg.Instruments {
		s.bySymbol[in.Symbol] = in
	}
	return s
}

func (s *Stream) Name() string { return s.cfg.Name }

func (s *Stream) State() State { return State(s.state.Load()) }

// Symbols returns the subscription list in configuration order.
func (s *Stream) Symbols() []string {
	out := make([]string, 0, len(s.cfg.Instruments))
	for _, in := range s.cfg.Instruments {
		out = append(out, in.Symbol)
	}
	return out
}

// OnTransition registers a hook called after every state change.
func (s *Stream) OnTransition(fn func(from, to State)) {
	s.hookM.Lock()
	s.hook = fn
	s.hookM.Unlock()
}

// SetDialer replaces the websocket dialer.
func (s *Stream) SetDialer(d *websocket.Dialer) { s.dialer = d }

func (s *Stream) transition(to State) bool {
	from := s.State()
	ok := false
	for _, st := range allowed[from] {
		if st == to {
			ok = true
			break
		}
	}
	if !ok || !s.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	s.logger.Debug("state change", zap.Stringer("from", from), zap.Stringer("to", to))
	s.hookM.Lock()
	fn := s.hook
	s.hookM.Unlock()
	if fn != nil {
		fn(from, to)
	}
	return true
}

// Run connects and reconnects until ctx is cancelled. It never returns an error
// other than ctx.Err().
func (s *Stream) Run(ctx context.Context) error {
	for {
		err := s.runOnce(ctx)
		s.transition(Disconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("stream disconnected", zap.Error(err), zap.Duration("retry_in", s.cfg.ReconnectDelay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

type subscribeMsg struct {
	Action  string `json:"action"`
	Symbols string `json:"symbols"`
}

func (s *Stream) endpoint() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", err
	}
	if s.cfg.APIKey != "" {
		q := u.Query()
		q.Set("api_token", s.cfg.APIKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (s *Stream) runOnce(ctx context.Context) error {
	s.transition(Connecting)
	endpoint, err := s.endpoint()
	if err != nil {
		return fmt.Errorf("stream url: %w", err)
	}
	conn, _, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: dial: %v", market.ErrUpstreamTransport, err)
	}
	defer conn.Close()

	conn.SetPongHandler(func(string) error {
		s.logger.Debug("pong")
		return nil
	})

	sub := subscribeMsg{Action: "subscribe", Symbols: strings.Join(s.Symbols(), ",")}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("%w: subscribe write: %v", market.ErrUpstreamTransport, err)
	}
	s.transition(Subscribed)
	s.logger.Info("stream subscribed", zap.Int("symbols", len(s.cfg.Instruments)))

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	errCh := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- fmt.Errorf("%w: read: %v", market.ErrUpstreamTransport, err)
				return
			}
			s.handle(data)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return ctx.Err()
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return fmt.Errorf("%w: ping: %v", market.ErrUpstreamTransport, err)
			}
		case err := <-errCh:
			return err
		}
	}
}

// handle decodes one frame and forwards every accepted tick to the sink.
func (s *Stream) handle(data []byte) {
	msgs, err := decodeMessages(data)
	if err != nil {
		s.logger.Debug("unparseable frame", zap.Error(err))
		return
	}
	now := s.now()
	for _, m := range msgs {
		in, ok := s.bySymbol[m.Symbol]
		if !ok {
			// status frames, heartbeats, symbols we never asked for
			continue
		}
		tick, ok := s.norm.Normalize(m, in, now)
		if !ok {
			continue
		}
		s.sink(tick)
	}
}
