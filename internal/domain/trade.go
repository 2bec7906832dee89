package domain

import "time"

// Side is the direction of a trade.
type Side string

// Trade sides.
const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeRecord is one confirmed buy or sell. Append-only.
type TradeRecord struct {
	TradeID       string    `json:"trade_id"` // sha256(mint|side|signature)
	Mint          string    `json:"mint"`
	Symbol        string    `json:"symbol,omitempty"`
	Name          string    `json:"name,omitempty"`
	Side          Side      `json:"side"`
	Timestamp     time.Time `json:"timestamp"`
	Signature     string    `json:"signature,omitempty"`
	AmountSOL     float64   `json:"amount_sol"`
	AmountTokens  float64   `json:"amount_tokens"` // whole tokens
	PricePerToken float64   `json:"price_per_token"`
	Reason        string    `json:"reason,omitempty"` // exit reason on sells

	// Realized result, sells only.
	ProfitLossSOL *float64 `json:"profit_loss_sol,omitempty"`
	ProfitLossPct *float64 `json:"profit_loss_pct,omitempty"`
}
