package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantgate/internal/domain"
)

type staticFetcher struct {
	price float64
}

func (s staticFetcher) FetchIndicators(context.Context, string, string) (domain.IndicatorSnapshot, error) {
	return domain.IndicatorSnapshot{}, nil
}

func (s staticFetcher) FetchSnapshot(_ context.Context, symbol string) (*domain.MarketSnapshot, error) {
	return domain.NewBaseSnapshot(domain.BaseSnapshot{Symbol: symbol, Price: s.price}), nil
}

func TestEnrichingFetcherUpgradesWithFreshTick(t *testing.T) {
	feed := NewTickerFeed("")
	feed.lastTicks["BTCUSDT"] = Tick{
		Symbol:     "BTCUSDT",
		Price:      50010,
		Bid:        50005,
		Ask:        50015,
		ReceivedAt: time.Now(),
	}

	f := NewEnrichingFetcher(staticFetcher{price: 50000}, feed)
	snap, err := f.FetchSnapshot(context.Background(), "BTC/USDT")
	require.NoError(t, err)

	assert.Equal(t, domain.TierEnriched, snap.Tier)
	assert.Equal(t, 50010.0, snap.CanonicalPrice())
	assert.InDelta(t, 2.0, snap.Enriched.SpreadBps, 0.01)
}

func TestEnrichingFetcherFallsBackOnStaleTick(t *testing.T) {
	feed := NewTickerFeed("")
	feed.lastTicks["BTCUSDT"] = Tick{
		Symbol:     "BTCUSDT",
		Price:      50010,
		ReceivedAt: time.Now().Add(-time.Minute),
	}

	f := NewEnrichingFetcher(staticFetcher{price: 50000}, feed)
	snap, err := f.FetchSnapshot(context.Background(), "BTC/USDT")
	require.NoError(t, err)

	assert.Equal(t, domain.TierBase, snap.Tier)
	assert.Equal(t, 50000.0, snap.CanonicalPrice())
}

func TestEnrichingFetcherFallsBackWithoutTick(t *testing.T) {
	f := NewEnrichingFetcher(staticFetcher{price: 50000}, NewTickerFeed(""))
	snap, err := f.FetchSnapshot(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, domain.TierBase, snap.Tier)
}

func TestStreamSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", streamSymbol("BTC/USDT"))
	assert.Equal(t, "ETHUSDT", streamSymbol("ETHUSDT"))
}
