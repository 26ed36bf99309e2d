// Package portfolio caps requested capital against per-position-type
// ceilings and the remaining portfolio-wide margin budget. Allocation
// decisions must run as a single sequential pass within a cycle; the
// allocator itself is stateless and reads one usage snapshot per call.
package portfolio

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quantgate/internal/config"
	"quantgate/internal/domain"
	"quantgate/internal/metrics"
)

// UsageSnapshot maps symbol -> position type -> margin currently
// committed. It is an explicit two-level structure; there is no flat
// variant and no defensive shape checking.
type UsageSnapshot map[string]map[domain.PositionType]float64

// Total flattens the snapshot into the portfolio-wide used margin.
// Missing and zero entries count as zero.
func (s UsageSnapshot) Total() float64 {
	used := 0.0
	for _, byType := range s {
		for _, amt := range byType {
			used += amt
		}
	}
	return used
}

// Allocator enforces the two independent caps: per-position-type
// discipline and aggregate portfolio exposure. Thresholds are resolved
// once at construction.
type Allocator struct {
	maxEquityUsagePct float64
	swingTargetPct    float64
	scalpTargetPct    float64
	minAllocationUSD  float64

	metrics *metrics.Registry
	log     zerolog.Logger
}

// NewAllocator creates an allocator from validated risk configuration.
func NewAllocator(cfg config.RiskConfig, reg *metrics.Registry) *Allocator {
	return &Allocator{
		maxEquityUsagePct: cfg.MaxEquityUsagePct,
		swingTargetPct:    cfg.SwingTargetPct,
		scalpTargetPct:    cfg.ScalpTargetPct,
		minAllocationUSD:  cfg.MinAllocationUSD,
		metrics:           reg,
		log:               log.With().Str("component", "capital_allocator").Logger(),
	}
}

// UsedMargin sums committed margin across all symbols and types.
func (a *Allocator) UsedMargin(usage UsageSnapshot) float64 {
	return usage.Total()
}

// RemainingBudget is the portfolio-wide margin still available:
// equity * max usage pct minus committed margin, floored at zero.
func (a *Allocator) RemainingBudget(equity float64, usage UsageSnapshot) float64 {
	remaining := equity*a.maxEquityUsagePct - usage.Total()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// PerTypeCeiling is the maximum capital a single position of the given
// type may take, independent of what is already committed.
func (a *Allocator) PerTypeCeiling(positionType domain.PositionType, equity float64) float64 {
	pct := a.scalpTargetPct
	if positionType == domain.PositionSwing {
		pct = a.swingTargetPct
	}
	ceiling := pct * equity
	if ceiling < 0 {
		return 0
	}
	return ceiling
}

// CapCapital bounds a requested capital amount. The per-type ceiling is
// applied before the portfolio budget so an oversized request cannot
// exhaust the portfolio check prematurely; anything left below the
// minimum allocation floor becomes exactly zero, never dust.
func (a *Allocator) CapCapital(positionType domain.PositionType, requested, equity float64, usage UsageSnapshot) float64 {
	ceiling := a.PerTypeCeiling(positionType, equity)
	capped := requested
	if capped > ceiling {
		capped = ceiling
	}

	remaining := a.RemainingBudget(equity, usage)
	if capped > remaining {
		capped = remaining
	}

	if capped < a.minAllocationUSD {
		a.log.Debug().
			Str("position_type", string(positionType)).
			Float64("requested", requested).
			Float64("capped", capped).
			Float64("min_allocation_usd", a.minAllocationUSD).
			Msg("allocation below minimum floor, zeroed")
		a.metrics.RecordAllocation(string(positionType), "dust")
		return 0
	}

	outcome := "approved"
	if capped < requested {
		outcome = "capped"
	}
	a.metrics.RecordAllocation(string(positionType), outcome)
	a.log.Debug().
		Str("position_type", string(positionType)).
		Float64("requested", requested).
		Float64("ceiling", ceiling).
		Float64("remaining_budget", remaining).
		Float64("granted", capped).
		Msg("capital capped")
	return capped
}
