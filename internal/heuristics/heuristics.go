// Package heuristics scores launch candidates against the risk rules.
package heuristics

import (
	"fmt"

	"solana-launch-sniper/internal/config"
	"solana-launch-sniper/internal/domain"
)

// Rule names, in evaluation order.
const (
	RuleLiquidity = "liquidity"
	RulePrice     = "price"
	RuleSupply    = "supply"
	RuleCurve     = "curve"
	RuleStrict    = "strict"
)

// Rejection reasons.
const (
	ReasonLiquidityLow       = "liquidity below minimum"
	ReasonLiquidityHigh      = "liquidity above maximum"
	ReasonPriceHigh          = "price above maximum"
	ReasonSupplyLow          = "supply below minimum"
	ReasonCurveComplete      = "bonding curve complete"
	ReasonCreatorUnknown     = "creator unknown"
	ReasonStrictLiquidityLow = "liquidity below strict minimum"
	ReasonStrictPriceHigh    = "price above strict maximum"
)

// RuleResult is the outcome of one rule.
type RuleResult struct {
	Name      string `json:"name"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
	Pass      bool   `json:"pass"`
}

// Decision is the verdict for one candidate. Results hold every rule
// evaluated, ending with the failing one on rejection.
type Decision struct {
	Accept  bool         `json:"accept"`
	Rule    string       `json:"rule,omitempty"`
	Reason  string       `json:"reason,omitempty"`
	Results []RuleResult `json:"results"`
}

type rule func(c domain.Candidate, s domain.CurveState, st config.Settings) (RuleResult, string)

var rules = []rule{liquidityRule, priceRule, supplyRule, curveRule, strictRule}

// Evaluate applies the rules in order; the first failure rejects.
// Pure: no clock and no I/O.
func Evaluate(c domain.Candidate, s domain.CurveState, st config.Settings) Decision {
	d := Decision{Results: make([]RuleResult, 0, len(rules))}
	for _, r := range rules {
		res, reason := r(c, s, st)
		d.Results = append(d.Results, res)
		if !res.Pass {
			d.Rule = res.Name
			d.Reason = reason
			return d
		}
	}
	d.Accept = true
	return d
}

func liquidityRule(_ domain.Candidate, s domain.CurveState, st config.Settings) (RuleResult, string) {
	liq := s.LiquiditySOL()
	res := RuleResult{
		Name:      RuleLiquidity,
		Threshold: fmt.Sprintf("> 0 and in [%g, %g] SOL", st.MinLiquiditySOL, st.MaxLiquiditySOL),
		Actual:    fmt.Sprintf("%g SOL", liq),
	}
	switch {
	case liq <= 0 || liq < st.MinLiquiditySOL:
		return res, ReasonLiquidityLow
	case liq > st.MaxLiquiditySOL:
		return res, ReasonLiquidityHigh
	}
	res.Pass = true
	return res, ""
}

func priceRule(_ domain.Candidate, s domain.CurveState, st config.Settings) (RuleResult, string) {
	price := s.SpotPrice()
	res := RuleResult{
		Name:      RulePrice,
		Threshold: fmt.Sprintf("<= %g SOL/token", st.MaxSOLPerToken),
		Actual:    fmt.Sprintf("%g SOL/token", price),
		Pass:      price <= st.MaxSOLPerToken,
	}
	if !res.Pass {
		return res, ReasonPriceHigh
	}
	return res, ""
}

func supplyRule(_ domain.Candidate, s domain.CurveState, st config.Settings) (RuleResult, string) {
	supply := s.SupplyTokens()
	res := RuleResult{
		Name:      RuleSupply,
		Threshold: fmt.Sprintf(">= %g tokens", st.MinTokensThreshold),
		Actual:    fmt.Sprintf("%g tokens", supply),
		Pass:      supply >= st.MinTokensThreshold,
	}
	if !res.Pass {
		return res, ReasonSupplyLow
	}
	return res, ""
}

func curveRule(_ domain.Candidate, s domain.CurveState, _ config.Settings) (RuleResult, string) {
	res := RuleResult{
		Name:      RuleCurve,
		Threshold: "complete == false",
		Actual:    fmt.Sprintf("complete == %t", s.Complete),
		Pass:      !s.Complete,
	}
	if !res.Pass {
		return res, ReasonCurveComplete
	}
	return res, ""
}

// strictRule applies only with enable_safer_sniping.
func strictRule(c domain.Candidate, s domain.CurveState, st config.Settings) (RuleResult, string) {
	res := RuleResult{Name: RuleStrict, Threshold: "disabled", Actual: "skipped", Pass: true}
	if !st.EnableSaferSniping {
		return res, ""
	}

	creator := c.Creator
	if creator == "" {
		creator = s.Creator
	}
	liq, price := s.LiquiditySOL(), s.SpotPrice()
	res.Threshold = fmt.Sprintf("creator known, liquidity >= %g SOL, price <= %g SOL/token",
		st.StrictMinLiquiditySOL, st.StrictMaxSOLPerToken)
	res.Actual = fmt.Sprintf("creator=%q, liquidity=%g SOL, price=%g SOL/token", creator, liq, price)

	switch {
	case creator == "":
		res.Pass = false
		return res, ReasonCreatorUnknown
	case liq < st.StrictMinLiquiditySOL:
		res.Pass = false
		return res, ReasonStrictLiquidityLow
	case price > st.StrictMaxSOLPerToken:
		res.Pass = false
		return res, ReasonStrictPriceHigh
	}
	return res, ""
}
