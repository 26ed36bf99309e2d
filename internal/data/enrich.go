package data

import (
	"context"
	"time"

	"quantgate/internal/domain"
)

// tickMaxAge bounds how old a websocket tick may be before the fetcher
// falls back to the plain REST snapshot.
const tickMaxAge = 10 * time.Second

// EnrichingFetcher overlays the latest websocket tick onto REST
// snapshots, upgrading them to the enriched variant when a fresh tick
// is available. Indicator fetches pass straight through.
type EnrichingFetcher struct {
	inner Fetcher
	feed  *TickerFeed
}

// NewEnrichingFetcher wraps a fetcher with a ticker feed.
func NewEnrichingFetcher(inner Fetcher, feed *TickerFeed) *EnrichingFetcher {
	return &EnrichingFetcher{inner: inner, feed: feed}
}

func (e *EnrichingFetcher) FetchIndicators(ctx context.Context, symbol, timeframe string) (domain.IndicatorSnapshot, error) {
	return e.inner.FetchIndicators(ctx, symbol, timeframe)
}

func (e *EnrichingFetcher) FetchSnapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error) {
	snapshot, err := e.inner.FetchSnapshot(ctx, symbol)
	if err != nil {
		return nil, err
	}

	tick, ok := e.feed.LastTick(streamSymbol(symbol))
	if !ok || time.Since(tick.ReceivedAt) > tickMaxAge {
		return snapshot, nil
	}

	base := snapshot.BaseView()
	base.Bid = tick.Bid
	base.Ask = tick.Ask
	return domain.NewEnrichedSnapshot(base, domain.EnrichedData{
		Price:     tick.Price,
		SpreadBps: spreadBps(tick.Bid, tick.Ask),
	}), nil
}

// streamSymbol maps a config symbol like "BTC/USDT" to the feed's
// native "BTCUSDT" key.
func streamSymbol(symbol string) string {
	out := make([]byte, 0, len(symbol))
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '/' {
			continue
		}
		out = append(out, symbol[i])
	}
	return string(out)
}

func spreadBps(bid, ask float64) float64 {
	mid := (bid + ask) / 2
	if mid <= 0 {
		return 0
	}
	return (ask - bid) / mid * 10000
}
