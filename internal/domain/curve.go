package domain

// Unit scales for pump.fun curves.
const (
	LamportsPerSOL   = 1_000_000_000
	TokenDecimals    = 6
	TokenBaseUnits   = 1_000_000 // 10^TokenDecimals
	TokenPriceFactor = 1e-3      // lamports/base-unit to SOL/token
)

// CurveState is a snapshot of a bonding curve account.
// Always decoded from freshly fetched bytes; replaced, never updated in place.
type CurveState struct {
	VirtualTokenReserves uint64 `json:"virtual_token_reserves"`
	VirtualSolReserves   uint64 `json:"virtual_sol_reserves"`
	RealTokenReserves    uint64 `json:"real_token_reserves"`
	RealSolReserves      uint64 `json:"real_sol_reserves"`
	TokenTotalSupply     uint64 `json:"token_total_supply"`
	Complete             bool   `json:"complete"`
	Creator              string `json:"creator,omitempty"` // empty for legacy layouts
}

// SpotPrice returns the price in SOL per whole token from the virtual reserves.
// Returns 0 when the token reserve is empty.
func (s CurveState) SpotPrice() float64 {
	if s.VirtualTokenReserves == 0 {
		return 0
	}
	return float64(s.VirtualSolReserves) / float64(s.VirtualTokenReserves) * TokenPriceFactor
}

// LiquiditySOL returns the real SOL reserves in whole SOL.
func (s CurveState) LiquiditySOL() float64 {
	return float64(s.RealSolReserves) / LamportsPerSOL
}

// SupplyTokens returns total supply in whole tokens.
func (s CurveState) SupplyTokens() float64 {
	return float64(s.TokenTotalSupply) / TokenBaseUnits
}
