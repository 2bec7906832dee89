package domain

import "time"

// PositionStatus is the lifecycle stage of a Position.
type PositionStatus string

// Position statuses.
const (
	// PositionReserved marks a mint with an order in flight and no confirmed buy yet.
	PositionReserved PositionStatus = "reserved"
	PositionOpen     PositionStatus = "open"
	PositionClosing  PositionStatus = "closing"
)

// Exit reason codes. Exactly one is recorded per closed position.
const (
	ExitReasonTakeProfit = "TP"
	ExitReasonStopLoss   = "SL"
	ExitReasonTimeout    = "TIMEOUT"
	ExitReasonManual     = "MANUAL"
)

// Position is a token holding created by a confirmed buy.
type Position struct {
	Mint            string         `json:"mint"`
	Symbol          string         `json:"symbol,omitempty"`
	Name            string         `json:"name,omitempty"`
	BondingCurve    string         `json:"bonding_curve"`
	AssociatedCurve string         `json:"associated_curve,omitempty"`
	Creator         string         `json:"creator,omitempty"`
	TokenAmount     uint64         `json:"token_amount"` // base units
	EntryPrice      float64        `json:"entry_price"`  // SOL per token
	EntrySOL        float64        `json:"entry_sol"`
	EntryTime       time.Time      `json:"entry_time"`
	EntrySignature  string         `json:"entry_signature,omitempty"`
	Status          PositionStatus `json:"status"`
	FailedAttempts  int            `json:"failed_attempts,omitempty"`
	LastError       string         `json:"last_error,omitempty"`
}

// PercentChange returns the price move from entry in percent.
func (p *Position) PercentChange(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice * 100
}

// Held returns how long the position has been open at now.
func (p *Position) Held(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}
