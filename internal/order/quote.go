package order

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"

	"solana-launch-sniper/internal/domain"
)

const bpsDenominator = 10_000

// ErrEmptyCurve is returned when a quote is requested on an empty curve.
var ErrEmptyCurve = errors.New("curve has no virtual reserves")

func dec(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func toUint64(d decimal.Decimal) uint64 {
	if d.Sign() <= 0 {
		return 0
	}
	b := d.Floor().BigInt()
	if !b.IsUint64() {
		return ^uint64(0)
	}
	return b.Uint64()
}

// QuoteBuy returns the token base units received for lamportsIn on the
// constant-product curve, capped at the real token reserves.
func QuoteBuy(s domain.CurveState, lamportsIn uint64) (uint64, error) {
	if s.VirtualSolReserves == 0 || s.VirtualTokenReserves == 0 {
		return 0, ErrEmptyCurve
	}
	vsol, vtok := dec(s.VirtualSolReserves), dec(s.VirtualTokenReserves)
	k := vsol.Mul(vtok)
	tokens := toUint64(vtok.Sub(k.Div(vsol.Add(dec(lamportsIn)))))
	if s.RealTokenReserves > 0 && tokens > s.RealTokenReserves {
		tokens = s.RealTokenReserves
	}
	return tokens, nil
}

// QuoteSell returns the lamports received for tokensIn base units.
func QuoteSell(s domain.CurveState, tokensIn uint64) (uint64, error) {
	if s.VirtualSolReserves == 0 || s.VirtualTokenReserves == 0 {
		return 0, ErrEmptyCurve
	}
	vsol, vtok := dec(s.VirtualSolReserves), dec(s.VirtualTokenReserves)
	k := vsol.Mul(vtok)
	return toUint64(vsol.Sub(k.Div(vtok.Add(dec(tokensIn))))), nil
}

// MaxSolCost is the buy bound: lamports × (10000 + bps) / 10000.
func MaxSolCost(lamports, slippageBps uint64) uint64 {
	return toUint64(dec(lamports).Mul(dec(bpsDenominator + slippageBps)).Div(dec(bpsDenominator)))
}

// MinSolOutput is the sell bound: quote × (10000 − bps) / 10000.
func MinSolOutput(quote, slippageBps uint64) uint64 {
	if slippageBps >= bpsDenominator {
		return 0
	}
	return toUint64(dec(quote).Mul(dec(bpsDenominator - slippageBps)).Div(dec(bpsDenominator)))
}

// PricePerToken converts a lamports/base-units exchange into SOL per whole token.
func PricePerToken(lamports, tokens uint64) float64 {
	if tokens == 0 {
		return 0
	}
	price, _ := dec(lamports).Div(dec(tokens)).
		Mul(decimal.NewFromFloat(domain.TokenPriceFactor)).Float64()
	return price
}

// LamportsFromSOL converts whole SOL to lamports, rounding down.
func LamportsFromSOL(sol float64) uint64 {
	return toUint64(decimal.NewFromFloat(sol).Mul(decimal.NewFromInt(domain.LamportsPerSOL)))
}

// SOLFromLamports converts lamports to whole SOL.
func SOLFromLamports(lamports uint64) float64 {
	v, _ := dec(lamports).Div(decimal.NewFromInt(domain.LamportsPerSOL)).Float64()
	return v
}
