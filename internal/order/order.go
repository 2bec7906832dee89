// Package order builds the instruction lists for curve buys and sells.
package order

import (
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"

	"solana-launch-sniper/internal/domain"
	"solana-launch-sniper/internal/wire"
)

// Request describes one trade.
type Request struct {
	Side domain.Side

	Mint            string
	BondingCurve    string
	AssociatedCurve string // derived when empty
	Creator         string // falls back to Curve.Creator
	User            string
	FeeRecipient    string

	Curve domain.CurveState

	// LamportsIn is the SOL spent on a buy; TokensIn the base units sold.
	LamportsIn  uint64
	TokensIn    uint64
	SlippageBps uint64

	ComputeUnitLimit uint32
	ComputeUnitPrice uint64 // micro-lamports per unit

	// CreateATA prepends an idempotent create of the user's token account.
	CreateATA bool

	// Tip adds a transfer to a relay tip account when Lamports > 0.
	TipAccount  string
	TipLamports uint64
}

// Order is a built, unsigned trade.
type Order struct {
	Side          domain.Side
	Mint          string
	Payer         string
	Instructions  []solanago.Instruction
	TokenAmount   uint64  // base units bought or sold
	SolAmount     uint64  // lamports spent (buy) or quoted (sell)
	Bound         uint64  // max_sol_cost or min_sol_output
	ExpectedPrice float64 // SOL per whole token
	TipLamports   uint64
}

// Builder derives the program's fixed accounts once.
type Builder struct {
	programID      string
	global         string
	eventAuthority string
	globalVolume   string
	feeConfig      string
}

// NewBuilder creates a Builder for the launch program.
func NewBuilder(programID string) (*Builder, error) {
	b := &Builder{programID: programID}
	var err error
	if b.global, err = wire.GlobalAddress(programID); err != nil {
		return nil, fmt.Errorf("derive global: %w", err)
	}
	if b.eventAuthority, err = wire.EventAuthorityAddress(programID); err != nil {
		return nil, fmt.Errorf("derive event authority: %w", err)
	}
	if b.globalVolume, err = wire.GlobalVolumeAccumulatorAddress(programID); err != nil {
		return nil, fmt.Errorf("derive global volume accumulator: %w", err)
	}
	if b.feeConfig, err = wire.FeeConfigAddress(); err != nil {
		return nil, fmt.Errorf("derive fee config: %w", err)
	}
	return b, nil
}

// ProgramID returns the launch program.
func (b *Builder) ProgramID() string { return b.programID }

// GlobalAddress returns the program's global account.
func (b *Builder) GlobalAddress() string { return b.global }

// Build quotes the trade and lays out its instructions:
// compute budget, optional ATA create, the trade, optional tip.
func (b *Builder) Build(req Request) (*Order, error) {
	if req.Side != domain.SideBuy && req.Side != domain.SideSell {
		return nil, fmt.Errorf("unknown side %q", req.Side)
	}
	if req.FeeRecipient == "" {
		return nil, errors.New("fee recipient is required")
	}
	creator := req.Creator
	if creator == "" {
		creator = req.Curve.Creator
	}
	if creator == "" {
		return nil, errors.New("creator is required to derive the creator vault")
	}

	o := &Order{Side: req.Side, Mint: req.Mint, Payer: req.User}
	switch req.Side {
	case domain.SideBuy:
		if req.LamportsIn == 0 {
			return nil, errors.New("buy amount must be positive")
		}
		tokens, err := QuoteBuy(req.Curve, req.LamportsIn)
		if err != nil {
			return nil, err
		}
		if tokens == 0 {
			return nil, errors.New("buy quote is zero tokens")
		}
		o.TokenAmount, o.SolAmount = tokens, req.LamportsIn
		o.Bound = MaxSolCost(req.LamportsIn, req.SlippageBps)
	case domain.SideSell:
		if req.TokensIn == 0 {
			return nil, errors.New("sell amount must be positive")
		}
		quote, err := QuoteSell(req.Curve, req.TokensIn)
		if err != nil {
			return nil, err
		}
		o.TokenAmount, o.SolAmount = req.TokensIn, quote
		o.Bound = MinSolOutput(quote, req.SlippageBps)
	}
	o.ExpectedPrice = PricePerToken(o.SolAmount, o.TokenAmount)

	accts, err := b.tradeAccounts(req, creator)
	if err != nil {
		return nil, err
	}

	if req.ComputeUnitLimit > 0 {
		o.Instructions = append(o.Instructions, computebudget.NewSetComputeUnitLimitInstruction(req.ComputeUnitLimit).Build())
	}
	if req.ComputeUnitPrice > 0 {
		o.Instructions = append(o.Instructions, computebudget.NewSetComputeUnitPriceInstruction(req.ComputeUnitPrice).Build())
	}
	if req.CreateATA {
		o.Instructions = append(o.Instructions, createATAIdempotent(accts))
	}

	if req.Side == domain.SideBuy {
		trackVolume := false
		o.Instructions = append(o.Instructions, solanago.NewInstruction(accts.program, b.buyMetas(accts),
			wire.EncodeBuyArgs(o.TokenAmount, o.Bound, &trackVolume)))
	} else {
		o.Instructions = append(o.Instructions, solanago.NewInstruction(accts.program, b.sellMetas(accts),
			wire.EncodeSellArgs(o.TokenAmount, o.Bound)))
	}

	if req.TipLamports > 0 {
		if req.TipAccount == "" {
			return nil, errors.New("tip account is required when tipping")
		}
		tip, err := solanago.PublicKeyFromBase58(req.TipAccount)
		if err != nil {
			return nil, fmt.Errorf("tip account %q: %w", req.TipAccount, err)
		}
		o.Instructions = append(o.Instructions, system.NewTransferInstruction(req.TipLamports, accts.user, tip).Build())
		o.TipLamports = req.TipLamports
	}
	return o, nil
}
