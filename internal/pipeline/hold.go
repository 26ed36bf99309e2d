package pipeline

import (
	"context"

	"quantgate/internal/domain"
)

// HoldProvider always holds. It is the default provider when no signal
// source is configured, keeping the full cycle (data, cache, audit)
// exercised without ever opening a position.
type HoldProvider struct{}

// Decide implements DecisionProvider.
func (HoldProvider) Decide(_ context.Context, _ *domain.MarketSnapshot, _ domain.EquityState, _ float64) (domain.Decision, string, error) {
	return domain.Decision{
		Action:       domain.ActionHold,
		PositionType: domain.PositionSwing,
		Reason:       "no signal source configured",
	}, `{"action":"hold"}`, nil
}
