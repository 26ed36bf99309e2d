// Package leverage selects an integral leverage multiplier from account
// equity and signal confidence. The exchange only accepts whole
// multipliers, so every path rounds and clamps to 1x or 2x.
package leverage

import (
	"math"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minLeverage = 1
	maxLeverage = 2

	// equityThreshold splits small accounts (1x only) from accounts
	// that tolerate 2x drawdown.
	equityThreshold = 100.0
)

// Advisor is a pure computation; it holds only a logger.
type Advisor struct {
	log zerolog.Logger
}

// NewAdvisor creates a leverage advisor.
func NewAdvisor() *Advisor {
	return &Advisor{
		log: log.With().Str("component", "leverage_advisor").Logger(),
	}
}

// BaseLeverage maps account equity to the maximum whole multiplier the
// account tolerates: 2x at $100 or more, 1x below. Negative equity is an
// input-contract violation; it is clamped to zero and reported.
func (a *Advisor) BaseLeverage(equity float64) int {
	if equity < 0 {
		a.log.Warn().Float64("equity", equity).Msg("negative equity clamped to 0")
		equity = 0
	}
	if equity >= equityThreshold {
		a.log.Debug().Float64("equity", equity).Msg("account qualifies for 2x leverage")
		return 2
	}
	a.log.Debug().Float64("equity", equity).Msg("small account limited to 1x leverage")
	return 1
}

// AdjustForConfidence scales the base leverage by the signal confidence
// band, then rounds to the nearest whole multiplier and clamps to [1,2].
// The bands are walked in order and logged individually even where
// rounding collapses them to the same outcome; downstream log analysis
// keys off the band, not the final multiplier. Confidence outside [0,1]
// is clamped and reported as a contract violation.
func (a *Advisor) AdjustForConfidence(base int, confidence float64) int {
	if confidence < 0 || confidence > 1 {
		a.log.Warn().Float64("confidence", confidence).
			Msg("confidence outside [0,1] clamped")
		confidence = math.Min(math.Max(confidence, 0), 1)
	}

	var adjusted float64
	switch {
	case confidence >= 0.9:
		adjusted = float64(base)
		a.log.Debug().Float64("confidence", confidence).
			Msgf("confidence >= 0.9: full leverage %.1fx", adjusted)
	case confidence >= 0.8:
		adjusted = float64(base) * 0.9
		a.log.Debug().Float64("confidence", confidence).
			Msgf("confidence >= 0.8: 90%% leverage %.1fx", adjusted)
	case confidence >= 0.7:
		adjusted = float64(base) * 0.8
		a.log.Debug().Float64("confidence", confidence).
			Msgf("confidence >= 0.7: 80%% leverage %.1fx", adjusted)
	case confidence >= 0.6:
		adjusted = float64(base) * 0.7
		a.log.Debug().Float64("confidence", confidence).
			Msgf("confidence >= 0.6: 70%% leverage %.1fx", adjusted)
	default:
		adjusted = float64(base) * 0.5
		a.log.Debug().Float64("confidence", confidence).
			Msgf("confidence < 0.6: 50%% leverage %.1fx", adjusted)
	}

	lev := int(math.Round(adjusted))
	if lev > maxLeverage {
		lev = maxLeverage
	}
	if lev < minLeverage {
		lev = minLeverage
	}

	if lev != base {
		a.log.Info().Int("base", base).Int("final", lev).
			Float64("confidence", confidence).Msg("leverage adjusted for confidence")
	}
	return lev
}

// Advise combines both steps for the common call site.
func (a *Advisor) Advise(equity, confidence float64) int {
	return a.AdjustForConfidence(a.BaseLeverage(equity), confidence)
}
