package domain

// Action is the trade direction requested by the upstream decision producer.
type Action string

const (
	ActionLong  Action = "long"
	ActionShort Action = "short"
	ActionClose Action = "close"
	ActionHold  Action = "hold"
)

// IsEntry reports whether the action opens new exposure.
func (a Action) IsEntry() bool {
	return a == ActionLong || a == ActionShort
}

// PositionType classifies trade duration; swing and scalp carry distinct
// capital ceilings in the allocator.
type PositionType string

const (
	PositionSwing PositionType = "swing"
	PositionScalp PositionType = "scalp"
)

// IndicatorSnapshot maps indicator name to value for one (symbol, timeframe)
// fetch. Produced once per fetch and treated as immutable afterwards.
type IndicatorSnapshot map[string]float64

// EquityState is the account view supplied per call; it is never stored.
type EquityState struct {
	Equity        float64 `json:"equity"`
	AvailableCash float64 `json:"available_cash"`
}

// Decision is the candidate emitted by the upstream decision producer.
// The risk core consumes it read-only.
type Decision struct {
	Action       Action       `json:"action"`
	SizePct      float64      `json:"size_pct"` // fraction of equity in [0,1]
	Reason       string       `json:"reason"`
	StopLoss     *float64     `json:"stop_loss,omitempty"`
	TakeProfit   *float64     `json:"take_profit,omitempty"`
	PositionType PositionType `json:"position_type"`
	Confidence   float64      `json:"confidence"`
}

// OrderIntent is the bounded, validated output handed to the execution
// collaborator. Capital is margin in USD; Size is base-asset quantity.
type OrderIntent struct {
	ID           string       `json:"id"`
	Symbol       string       `json:"symbol"`
	Action       Action       `json:"action"`
	PositionType PositionType `json:"position_type"`
	Capital      float64      `json:"capital"`
	Leverage     int          `json:"leverage"`
	Size         float64      `json:"size"`
	Price        float64      `json:"price"`
	StopLoss     *float64     `json:"stop_loss,omitempty"`
	TakeProfit   *float64     `json:"take_profit,omitempty"`
	Reason       string       `json:"reason"`
}

// ExecutionResult reports what the execution collaborator did with an intent.
type ExecutionResult struct {
	Executed   bool    `json:"executed"`
	OrderID    string  `json:"order_id"`
	FilledSize float64 `json:"filled_size"`
	FillPrice  float64 `json:"fill_price"`
}
