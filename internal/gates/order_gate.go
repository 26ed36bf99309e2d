// Package gates performs final order-sanity validation before dispatch.
// Checks are pure predicates: a failed verdict means "do not act" and is
// a normal outcome, never an error. Hard failures abort the symbol for
// the cycle; warnings pass but are flagged for visibility.
package gates

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quantgate/internal/config"
	"quantgate/internal/metrics"
)

// Severity is the log-level signal attached to a check verdict.
type Severity string

const (
	SeverityOK    Severity = "ok"
	SeverityWarn  Severity = "warn"  // advisory condition, still passes
	SeverityError Severity = "error" // hard failure
)

// Check is the result of a single gate evaluation.
type Check struct {
	Name     string   `json:"name"`
	Passed   bool     `json:"passed"`
	Severity Severity `json:"severity"`
	Reason   string   `json:"reason"`
}

// Extreme-but-plausible price guard bounds. Not hard blocks: prices
// outside them pass with a warning.
const (
	extremeHighPrice = 1_000_000.0
	extremeLowPrice  = 0.000001
)

// OrderGate validates size, price, equity sufficiency, position sizing,
// and leverage bounds. The checks are independent and order-insensitive;
// the caller must AND them before dispatching. Thresholds are resolved
// at construction, never per call.
type OrderGate struct {
	minNotionalUSD float64
	maxLeverage    float64

	metrics *metrics.Registry
	log     zerolog.Logger
}

// NewOrderGate creates an order gate from validated risk configuration.
func NewOrderGate(cfg config.RiskConfig, reg *metrics.Registry) *OrderGate {
	return &OrderGate{
		minNotionalUSD: cfg.MinNotionalUSD,
		maxLeverage:    cfg.MaxLeverage,
		metrics:        reg,
		log:            log.With().Str("component", "order_gate").Logger(),
	}
}

// ValidateOrderSize fails iff size is non-positive. The exchange
// minimum notional is ValidatePositionSize's concern.
func (g *OrderGate) ValidateOrderSize(size float64) Check {
	if size <= 0 {
		return g.record(Check{
			Name:     "order_size",
			Passed:   false,
			Severity: SeverityError,
			Reason:   fmt.Sprintf("invalid order size %.8f (must be positive)", size),
		})
	}
	return g.record(Check{Name: "order_size", Passed: true, Severity: SeverityOK})
}

// ValidatePrice fails iff price is non-positive; extreme values pass
// with a warning since they may be real (data-quality guard, not a
// block).
func (g *OrderGate) ValidatePrice(price float64) Check {
	if price <= 0 {
		return g.record(Check{
			Name:     "price",
			Passed:   false,
			Severity: SeverityError,
			Reason:   fmt.Sprintf("invalid price %.8f (must be positive)", price),
		})
	}
	if price > extremeHighPrice {
		return g.record(Check{
			Name:     "price",
			Passed:   true,
			Severity: SeverityWarn,
			Reason:   fmt.Sprintf("very high price $%.2f, proceeding with caution", price),
		})
	}
	if price < extremeLowPrice {
		return g.record(Check{
			Name:     "price",
			Passed:   true,
			Severity: SeverityWarn,
			Reason:   fmt.Sprintf("very low price $%.8f, proceeding with caution", price),
		})
	}
	return g.record(Check{Name: "price", Passed: true, Severity: SeverityOK})
}

// ValidateEquity fails iff equity is non-positive or the required
// capital exceeds it.
func (g *OrderGate) ValidateEquity(equity, requiredCapital float64) Check {
	if equity <= 0 {
		return g.record(Check{
			Name:     "equity",
			Passed:   false,
			Severity: SeverityError,
			Reason:   fmt.Sprintf("invalid equity $%.2f (must be positive)", equity),
		})
	}
	if requiredCapital > equity {
		return g.record(Check{
			Name:     "equity",
			Passed:   false,
			Severity: SeverityError,
			Reason:   fmt.Sprintf("insufficient equity: need $%.2f, have $%.2f", requiredCapital, equity),
		})
	}
	return g.record(Check{Name: "equity", Passed: true, Severity: SeverityOK})
}

// ValidatePositionSize fails iff the position notional falls below the
// exchange minimum or the margin exceeds available cash. The exchange
// rejects sub-minimum orders anyway; failing here keeps the denial in
// the audit trail instead of an exchange error.
func (g *OrderGate) ValidatePositionSize(notional, availableCash, requiredCapital float64) Check {
	if notional < g.minNotionalUSD {
		return g.record(Check{
			Name:     "position_size",
			Passed:   false,
			Severity: SeverityError,
			Reason:   fmt.Sprintf("notional $%.2f below exchange minimum $%.2f", notional, g.minNotionalUSD),
		})
	}
	if availableCash < requiredCapital {
		return g.record(Check{
			Name:     "position_size",
			Passed:   false,
			Severity: SeverityError,
			Reason:   fmt.Sprintf("insufficient available cash: need $%.2f, have $%.2f", requiredCapital, availableCash),
		})
	}
	return g.record(Check{Name: "position_size", Passed: true, Severity: SeverityOK})
}

// ValidateLeverage fails iff leverage is below 1.0. Leverage above the
// advisory maximum passes with a warning: enforcement is the leverage
// advisor's job upstream.
func (g *OrderGate) ValidateLeverage(leverage float64) Check {
	if leverage < 1.0 {
		return g.record(Check{
			Name:     "leverage",
			Passed:   false,
			Severity: SeverityError,
			Reason:   fmt.Sprintf("invalid leverage %.2fx (must be >= 1.0)", leverage),
		})
	}
	if leverage > g.maxLeverage {
		return g.record(Check{
			Name:     "leverage",
			Passed:   true,
			Severity: SeverityWarn,
			Reason:   fmt.Sprintf("high leverage %.1fx (advisory max %.1fx)", leverage, g.maxLeverage),
		})
	}
	return g.record(Check{Name: "leverage", Passed: true, Severity: SeverityOK})
}

// ValidateAll runs every check and ANDs the verdicts. The checks slice
// always holds all five results regardless of failures. The notional is
// requiredCapital at the given leverage.
func (g *OrderGate) ValidateAll(size, price, equity, availableCash, requiredCapital, leverage float64) ([]Check, bool) {
	checks := []Check{
		g.ValidateOrderSize(size),
		g.ValidatePrice(price),
		g.ValidateEquity(equity, requiredCapital),
		g.ValidatePositionSize(requiredCapital*leverage, availableCash, requiredCapital),
		g.ValidateLeverage(leverage),
	}
	passed := true
	for _, c := range checks {
		passed = passed && c.Passed
	}
	return checks, passed
}

// FirstFailure returns the reason of the first hard failure, or "".
func FirstFailure(checks []Check) string {
	for _, c := range checks {
		if !c.Passed {
			return c.Reason
		}
	}
	return ""
}

func (g *OrderGate) record(c Check) Check {
	verdict := string(c.Severity)
	if !c.Passed {
		verdict = "fail"
	}
	g.metrics.RecordGateCheck(c.Name, verdict)

	switch {
	case !c.Passed:
		g.log.Error().Str("check", c.Name).Msg(c.Reason)
	case c.Severity == SeverityWarn:
		g.log.Warn().Str("check", c.Name).Msg(c.Reason)
	}
	return c
}
