package domain

import "time"

// SnapshotTier discriminates the market snapshot variant. Enriched
// snapshots carry microstructure context on top of the base data; the
// accessors below extract the canonical view without type introspection.
type SnapshotTier string

const (
	TierBase     SnapshotTier = "base"
	TierEnriched SnapshotTier = "enriched"
)

// BaseSnapshot is the core market state every decision needs.
type BaseSnapshot struct {
	Symbol     string            `json:"symbol"`
	Timestamp  time.Time         `json:"timestamp"`
	Price      float64           `json:"price"`
	Bid        float64           `json:"bid"`
	Ask        float64           `json:"ask"`
	Indicators IndicatorSnapshot `json:"indicators"`
}

// EnrichedData is the optional microstructure layer. Present only when
// the snapshot tier is TierEnriched.
type EnrichedData struct {
	Price              float64 `json:"price"` // feed-native price, preferred over base when set
	SpreadBps          float64 `json:"spread_bps"`
	OrderBookImbalance float64 `json:"order_book_imbalance"` // -1..+1, positive = buyers heavier
	VolRegime          string  `json:"vol_regime"`           // low | normal | high
	Session            string  `json:"session"`
}

// MarketSnapshot is a tagged union over the base and enriched variants.
type MarketSnapshot struct {
	Tier     SnapshotTier  `json:"tier"`
	Base     BaseSnapshot  `json:"base"`
	Enriched *EnrichedData `json:"enriched,omitempty"`
}

// NewBaseSnapshot wraps base market data in the base variant.
func NewBaseSnapshot(base BaseSnapshot) *MarketSnapshot {
	return &MarketSnapshot{Tier: TierBase, Base: base}
}

// NewEnrichedSnapshot wraps base market data plus microstructure context.
func NewEnrichedSnapshot(base BaseSnapshot, enriched EnrichedData) *MarketSnapshot {
	return &MarketSnapshot{Tier: TierEnriched, Base: base, Enriched: &enriched}
}

// CanonicalPrice returns the price the pipeline should trade against:
// the enriched feed price when the variant carries one, the base price
// otherwise.
func (s *MarketSnapshot) CanonicalPrice() float64 {
	if s.Tier == TierEnriched && s.Enriched != nil && s.Enriched.Price > 0 {
		return s.Enriched.Price
	}
	return s.Base.Price
}

// BaseView returns the canonical base snapshot regardless of variant.
func (s *MarketSnapshot) BaseView() BaseSnapshot {
	return s.Base
}
