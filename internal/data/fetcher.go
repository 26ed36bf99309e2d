// Package data is the market-data boundary. The risk core never talks
// to an exchange directly; it consumes the Fetcher interface, and a
// fetch failure means "no fresh data this cycle", never cache
// corruption.
package data

import (
	"context"

	"quantgate/internal/domain"
)

// Fetcher retrieves indicator snapshots and market snapshots for the
// pipeline. Implementations must surface I/O failures as errors, not
// absorb them.
type Fetcher interface {
	// FetchIndicators computes or retrieves the indicator mapping for
	// one (symbol, timeframe).
	FetchIndicators(ctx context.Context, symbol, timeframe string) (domain.IndicatorSnapshot, error)

	// FetchSnapshot retrieves the current market snapshot for a symbol.
	FetchSnapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error)
}
