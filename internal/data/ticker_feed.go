package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Tick is the latest websocket price observation for one symbol.
type Tick struct {
	Symbol     string
	Price      float64
	Bid        float64
	Ask        float64
	ReceivedAt time.Time
}

// tickMessage is the wire shape of a book-ticker event.
type tickMessage struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	AskPrice string `json:"a"`
}

// TickerFeed maintains a last-tick map per subscribed symbol over a
// single websocket connection. It supplies the canonical feed price for
// enriched snapshots; the pipeline falls back to REST data when a
// symbol has no tick yet.
type TickerFeed struct {
	url  string
	conn *websocket.Conn

	mu        sync.RWMutex
	lastTicks map[string]Tick

	cancel context.CancelFunc
	done   chan struct{}
	log    zerolog.Logger
}

// NewTickerFeed creates a disconnected feed for the given endpoint.
func NewTickerFeed(wsURL string) *TickerFeed {
	return &TickerFeed{
		url:       wsURL,
		lastTicks: make(map[string]Tick),
		log:       log.With().Str("component", "ticker_feed").Logger(),
	}
}

// Connect dials the endpoint, subscribes to book tickers for the given
// symbols, and starts the read loop.
func (f *TickerFeed) Connect(ctx context.Context, symbols []string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial ticker feed %s: %w", f.url, err)
	}
	f.conn = conn

	params := make([]string, 0, len(symbols))
	for _, s := range symbols {
		stream := strings.ToLower(strings.ReplaceAll(s, "/", "")) + "@bookTicker"
		params = append(params, stream)
	}
	sub := map[string]any{"method": "SUBSCRIBE", "params": params, "id": 1}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe ticker feed: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.readLoop(loopCtx)

	f.log.Info().Int("symbols", len(symbols)).Msg("ticker feed connected")
	return nil
}

// LastTick returns the most recent tick for a symbol, if any.
func (f *TickerFeed) LastTick(symbol string) (Tick, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	tick, ok := f.lastTicks[symbol]
	return tick, ok
}

// Close stops the read loop and closes the connection.
func (f *TickerFeed) Close() error {
	if f.cancel != nil {
		f.cancel()
	}
	if f.conn != nil {
		err := f.conn.Close()
		if f.done != nil {
			<-f.done
		}
		return err
	}
	return nil
}

func (f *TickerFeed) readLoop(ctx context.Context) {
	defer close(f.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, payload, err := f.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				f.log.Warn().Err(err).Msg("ticker feed read failed, stopping")
			}
			return
		}

		var msg tickMessage
		if err := json.Unmarshal(payload, &msg); err != nil || msg.Symbol == "" {
			continue // subscription ack or unknown frame
		}

		bid := parsePrice(msg.BidPrice)
		ask := parsePrice(msg.AskPrice)
		if bid <= 0 || ask <= 0 {
			continue
		}

		f.mu.Lock()
		f.lastTicks[msg.Symbol] = Tick{
			Symbol:     msg.Symbol,
			Price:      (bid + ask) / 2,
			Bid:        bid,
			Ask:        ask,
			ReceivedAt: time.Now(),
		}
		f.mu.Unlock()
	}
}

func parsePrice(s string) float64 {
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err != nil {
		return 0
	}
	return v
}
