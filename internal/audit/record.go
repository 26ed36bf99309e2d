// Package audit emits one JSON record per evaluated cycle. The record
// schema is a contract with downstream analysis tooling; fields must be
// populated even when the cycle ends in a denial.
package audit

import (
	"strings"
	"time"
)

// CycleRecord is the audit entry for one symbol evaluation.
type CycleRecord struct {
	Timestamp      string  `json:"timestamp" db:"ts"`
	Symbol         string  `json:"symbol" db:"symbol"`
	MarketPrice    float64 `json:"market_price" db:"market_price"`
	PositionBefore float64 `json:"position_before" db:"position_before"`
	LLMRawOutput   string  `json:"llm_raw_output" db:"llm_raw_output"`
	ParsedAction   string  `json:"parsed_action" db:"parsed_action"`
	ParsedSizePct  float64 `json:"parsed_size_pct" db:"parsed_size_pct"`
	ParsedReason   string  `json:"parsed_reason" db:"parsed_reason"`
	RiskApproved   bool    `json:"risk_approved" db:"risk_approved"`
	RiskReason     string  `json:"risk_reason" db:"risk_reason"`
	Executed       bool    `json:"executed" db:"executed"`
	OrderID        string  `json:"order_id" db:"order_id"`
	FilledSize     float64 `json:"filled_size" db:"filled_size"`
	FillPrice      float64 `json:"fill_price" db:"fill_price"`
	Mode           string  `json:"mode" db:"mode"`
}

// NewRecord stamps a record with the current UTC time.
func NewRecord(symbol, mode string) CycleRecord {
	return CycleRecord{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Symbol:    symbol,
		Mode:      mode,
	}
}

// redactedPlaceholder replaces any string field that looks like it
// carries a credential.
const redactedPlaceholder = "[REDACTED]"

// sensitiveMarkers are the keyword heuristics for credential-bearing
// strings. A field is redacted when it contains any marker
// (case-insensitive) AND is longer than 20 characters. This rule is a
// safety invariant; do not loosen it.
var sensitiveMarkers = []string{
	"api_key", "api_secret", "secret", "password",
	"token", "auth", "credential",
}

func redactValue(s string) string {
	if len(s) <= 20 {
		return s
	}
	lower := strings.ToLower(s)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker) {
			return redactedPlaceholder
		}
	}
	return s
}

// Redacted returns a copy with every string field run through the
// sensitive-keyword heuristic. Applied by every sink before writing; in
// normal operation nothing should trip it.
func (r CycleRecord) Redacted() CycleRecord {
	r.Timestamp = redactValue(r.Timestamp)
	r.Symbol = redactValue(r.Symbol)
	r.LLMRawOutput = redactValue(r.LLMRawOutput)
	r.ParsedAction = redactValue(r.ParsedAction)
	r.ParsedReason = redactValue(r.ParsedReason)
	r.RiskReason = redactValue(r.RiskReason)
	r.OrderID = redactValue(r.OrderID)
	r.Mode = redactValue(r.Mode)
	return r
}
