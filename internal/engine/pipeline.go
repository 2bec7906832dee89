package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-launch-sniper/internal/config"
	"solana-launch-sniper/internal/decoder"
	"solana-launch-sniper/internal/domain"
	"solana-launch-sniper/internal/execution"
	"solana-launch-sniper/internal/heuristics"
	"solana-launch-sniper/internal/idhash"
	"solana-launch-sniper/internal/observability"
	"solana-launch-sniper/internal/order"
	"solana-launch-sniper/internal/position"
	"solana-launch-sniper/internal/solana"
	"solana-launch-sniper/internal/wire"
)

// Curve accounts can trail the create notification by a slot or two.
const (
	curveAttempts   = 3
	curveRetryDelay = 200 * time.Millisecond
)

// Relay is an accelerated submission path that also picks tips.
type Relay interface {
	execution.Relay
	TipAccount() string
	TipLamports(ctx context.Context) uint64
}

// trader holds per-run trading state: the order builder for the captured
// program id and the fee recipient, looked up once per run.
type trader struct {
	engine     *Engine
	builder    *order.Builder
	relay      Relay
	commitment string

	feeMu        sync.Mutex
	feeRecipient string
}

var _ position.Seller = (*trader)(nil)

// handle takes one notification through decode, evaluation and the buy.
func (e *Engine) handle(ctx context.Context, dec *decoder.Decoder, rt *trader, notif solana.LogNotification) {
	log := e.logger.WithField("signature", notif.Signature)

	cand, err := dec.Decode(ctx, notif)
	if err != nil {
		if errors.Is(err, decoder.ErrFiltered) {
			log.WithError(err).Debug("notification skipped")
		} else if ctx.Err() == nil {
			log.WithError(err).Warn("decode failed")
		}
		return
	}
	log = log.WithFields(logrus.Fields{"mint": cand.Mint, "symbol": cand.Symbol()})
	if e.holds(cand.Mint) {
		log.WithError(ErrStateConflict).Info("order not placed")
		return
	}

	curve, err := e.fetchCurve(ctx, cand.BondingCurve)
	if err != nil {
		log.WithError(err).Warn("curve fetch failed")
		return
	}

	st := e.Settings()
	decision := heuristics.Evaluate(*cand, curve, st)
	observability.RecordDecision(decision.Accept, decision.Rule)
	if !decision.Accept {
		log.WithFields(logrus.Fields{"rule": decision.Rule, "reason": decision.Reason}).Info("candidate rejected")
		return
	}

	if maxAge := st.MaxCandidateAge(); maxAge > 0 {
		if age := e.deps.Now().Sub(cand.DetectedAt); age > maxAge {
			log.WithField("age", age).Info("candidate too old to buy")
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	if err := e.reserve(cand.Mint, st); err != nil {
		log.WithError(err).Info("order not placed")
		return
	}

	// From here the order runs to its terminal outcome even if Stop is called.
	p, rec, err := rt.buy(context.WithoutCancel(ctx), cand, curve, st)
	if errors.Is(err, execution.ErrUnconfirmed) {
		// The buy may still land; keep the mint reserved so it is not bought twice.
		log.WithError(err).Error("buy outcome unknown, mint stays reserved")
		return
	}
	if err != nil {
		e.release(cand.Mint)
		log.WithError(err).Error("buy failed")
		return
	}
	e.open(*p, *rec)
	log.WithFields(logrus.Fields{
		"signature":   rec.Signature,
		"tokens":      rec.AmountTokens,
		"sol":         rec.AmountSOL,
		"entry_price": p.EntryPrice,
		"dry_run":     st.Mode == config.ModeDryRun,
	}).Info("position opened")
}

func (e *Engine) fetchCurve(ctx context.Context, addr string) (domain.CurveState, error) {
	var lastErr error
	for attempt := 0; attempt < curveAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.CurveState{}, ctx.Err()
			case <-time.After(curveRetryDelay):
			}
		}
		info, err := e.deps.Gateway.GetAccountInfo(ctx, addr)
		switch {
		case err != nil:
			lastErr = err
			if !solana.IsRetryable(err) {
				return domain.CurveState{}, err
			}
		case info == nil:
			lastErr = fmt.Errorf("curve %s not found", addr)
		default:
			return wire.DecodeCurve(info.Data)
		}
	}
	return domain.CurveState{}, lastErr
}

// executor builds an execution service for the current settings so mode and
// confirmation changes apply to the next order.
func (rt *trader) executor(st config.Settings) *execution.Service {
	opts := execution.Options{
		Gateway:        rt.engine.deps.Gateway,
		DryRun:         st.Mode == config.ModeDryRun,
		ConfirmTimeout: st.ConfirmTimeout(),
		Commitment:     rt.commitment,
		Now:            rt.engine.deps.Now,
		Logger:         rt.engine.logger,
	}
	if st.HeliusSenderEnabled && rt.relay != nil {
		opts.Relay = rt.relay
	}
	return execution.New(opts)
}

// tip returns the relay tip for the next order, or nothing on RPC routing.
func (rt *trader) tip(ctx context.Context, st config.Settings) (string, uint64) {
	if !st.HeliusSenderEnabled || rt.relay == nil {
		return "", 0
	}
	return rt.relay.TipAccount(), rt.relay.TipLamports(ctx)
}

// feeRecipientFor reads the protocol fee recipient from the global account
// once per run.
func (rt *trader) feeRecipientFor(ctx context.Context) (string, error) {
	rt.feeMu.Lock()
	defer rt.feeMu.Unlock()
	if rt.feeRecipient != "" {
		return rt.feeRecipient, nil
	}
	info, err := rt.engine.deps.Gateway.GetAccountInfo(ctx, rt.builder.GlobalAddress())
	if err != nil {
		return "", fmt.Errorf("get global account: %w", err)
	}
	if info == nil {
		return "", fmt.Errorf("global account %s not found", rt.builder.GlobalAddress())
	}
	g, err := wire.DecodeGlobal(info.Data)
	if err != nil {
		return "", err
	}
	rt.feeRecipient = g.FeeRecipient
	return rt.feeRecipient, nil
}

func (rt *trader) buy(ctx context.Context, cand *domain.Candidate, curve domain.CurveState, st config.Settings) (*domain.Position, *domain.TradeRecord, error) {
	feeRecipient, err := rt.feeRecipientFor(ctx)
	if err != nil {
		return nil, nil, err
	}
	tipAccount, tipLamports := rt.tip(ctx, st)
	user := rt.engine.deps.Signer.PublicKey()

	o, err := rt.builder.Build(order.Request{
		Side:             domain.SideBuy,
		Mint:             cand.Mint,
		BondingCurve:     cand.BondingCurve,
		AssociatedCurve:  cand.AssociatedCurve,
		Creator:          cand.Creator,
		User:             user,
		FeeRecipient:     feeRecipient,
		Curve:            curve,
		LamportsIn:       order.LamportsFromSOL(st.BuyAmount),
		SlippageBps:      st.SlippageBps,
		ComputeUnitLimit: st.ComputeUnitLimit,
		ComputeUnitPrice: st.ComputeUnitPrice,
		CreateATA:        true, // a fresh mint has no user token account yet
		TipAccount:       tipAccount,
		TipLamports:      tipLamports,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build buy: %w", err)
	}

	res, err := rt.executor(st).Execute(ctx, o, rt.engine.deps.Signer)
	if err != nil {
		return nil, nil, err
	}

	now := rt.engine.deps.Now()
	creator := cand.Creator
	if creator == "" {
		creator = curve.Creator
	}
	p := &domain.Position{
		Mint:            cand.Mint,
		Symbol:          cand.Symbol(),
		Name:            cand.Name(),
		BondingCurve:    cand.BondingCurve,
		AssociatedCurve: cand.AssociatedCurve,
		Creator:         creator,
		TokenAmount:     o.TokenAmount,
		EntryPrice:      curve.SpotPrice(), // pre-trade spot, not the average fill
		EntrySOL:        order.SOLFromLamports(o.SolAmount),
		EntryTime:       now,
		EntrySignature:  res.Signature,
		Status:          domain.PositionOpen,
	}
	rec := &domain.TradeRecord{
		TradeID:       idhash.ComputeTradeID(cand.Mint, string(domain.SideBuy), res.Signature, now.UnixMilli()),
		Mint:          cand.Mint,
		Symbol:        p.Symbol,
		Name:          p.Name,
		Side:          domain.SideBuy,
		Timestamp:     now,
		Signature:     res.Signature,
		AmountSOL:     p.EntrySOL,
		AmountTokens:  float64(o.TokenAmount) / domain.TokenBaseUnits,
		PricePerToken: o.ExpectedPrice,
	}
	return p, rec, nil
}

// Sell implements position.Seller.
func (rt *trader) Sell(ctx context.Context, p domain.Position, curve domain.CurveState, reason string) (*position.SellResult, error) {
	st := rt.engine.Settings()
	feeRecipient, err := rt.feeRecipientFor(ctx)
	if err != nil {
		return nil, err
	}
	tipAccount, tipLamports := rt.tip(ctx, st)

	o, err := rt.builder.Build(order.Request{
		Side:             domain.SideSell,
		Mint:             p.Mint,
		BondingCurve:     p.BondingCurve,
		AssociatedCurve:  p.AssociatedCurve,
		Creator:          p.Creator,
		User:             rt.engine.deps.Signer.PublicKey(),
		FeeRecipient:     feeRecipient,
		Curve:            curve,
		TokensIn:         p.TokenAmount,
		SlippageBps:      st.SlippageBps,
		ComputeUnitLimit: st.ComputeUnitLimit,
		ComputeUnitPrice: st.ComputeUnitPrice,
		TipAccount:       tipAccount,
		TipLamports:      tipLamports,
	})
	if err != nil {
		return nil, fmt.Errorf("build sell: %w", err)
	}

	res, err := rt.executor(st).Execute(ctx, o, rt.engine.deps.Signer)
	if err != nil {
		return nil, err
	}
	return &position.SellResult{
		Signature: res.Signature,
		SolAmount: order.SOLFromLamports(o.SolAmount),
		Price:     o.ExpectedPrice,
	}, nil
}
