package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// TickHandler consumes one trade print. It runs on the read goroutine, so
// the next message is not read until it returns.
type TickHandler func(ctx context.Context, price float64, at time.Time)

// MarketData streams ticker messages for one symbol and reconnects forever.
type MarketData struct {
	URL            string
	Symbol         string // venue symbol, e.g. MBTM25_FUT_CME
	OnTick         TickHandler
	ReconnectDelay time.Duration // defaults to 1s
	PingInterval   time.Duration // defaults to 20s
	ReadTimeout    time.Duration // defaults to 60s
	Log            zerolog.Logger
	Now            func() time.Time

	dialer *websocket.Dialer
}

type subscribeMsg struct {
	Type     string   `json:"type"`
	Symbols  []string `json:"symbols"`
	Channels []string `json:"channels"`
}

type tickerMsg struct {
	Type      string          `json:"type"`
	Symbol    string          `json:"symbol"`
	Last      json.RawMessage `json:"last"`
	Timestamp int64           `json:"timestamp"`
}

// Run connects, subscribes, and pumps ticks until ctx is cancelled.
func (m *MarketData) Run(ctx context.Context) error {
	delay := m.ReconnectDelay
	if delay <= 0 {
		delay = time.Second
	}
	log := m.Log.With().Str("component", "marketdata").Logger()

	for {
		err := m.session(ctx, log)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Dur("retry_in", delay).Msg("MD reconnect")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (m *MarketData) session(ctx context.Context, log zerolog.Logger) error {
	dialer := m.dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, m.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", m.URL, err)
	}
	defer conn.Close()

	readTimeout := m.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}
	pingEvery := m.PingInterval
	if pingEvery <= 0 {
		pingEvery = 20 * time.Second
	}

	sub := subscribeMsg{Type: "subscribe", Symbols: []string{m.Symbol}, Channels: []string{"ticker"}}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Info().Str("symbol", m.Symbol).Msg("MD subscribed")

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(pingEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// unblock ReadMessage
				_ = conn.Close()
				return
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		px, ok, err := parseTicker(raw)
		if err != nil {
			log.Warn().Err(err).Msg("bad MD message")
			continue
		}
		if !ok {
			continue
		}
		now := time.Now
		if m.Now != nil {
			now = m.Now
		}
		m.OnTick(ctx, px, now())
	}
}

// parseTicker extracts the last price from a ticker message. Other message
// types report ok=false.
func parseTicker(raw []byte) (float64, bool, error) {
	var msg tickerMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return 0, false, err
	}
	if msg.Type != "ticker" {
		return 0, false, nil
	}
	s := string(msg.Last)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	px, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("ticker last %q: %w", string(msg.Last), err)
	}
	if math.IsNaN(px) || math.IsInf(px, 0) || px <= 0 {
		return 0, false, fmt.Errorf("ticker last %q: not a usable price", string(msg.Last))
	}
	return px, true, nil
}
