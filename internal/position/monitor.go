// Package position watches open positions and closes them on exit signals.
package position

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-launch-sniper/internal/config"
	"solana-launch-sniper/internal/domain"
	"solana-launch-sniper/internal/idhash"
	"solana-launch-sniper/internal/observability"
	"solana-launch-sniper/internal/solana"
	"solana-launch-sniper/internal/wire"
)

// ErrNotOpen is returned when a manual close targets a mint without an open position.
var ErrNotOpen = errors.New("no open position for mint")

// Book is the shared position store. Implementations serialize all access.
type Book interface {
	Settings() config.Settings
	OpenPositions() []domain.Position
	Position(mint string) (domain.Position, bool)
	// MarkClosing moves an open position to closing; false if it was not open.
	MarkClosing(mint string) bool
	// Revert returns a closing position to open and records the failure.
	Revert(mint string, cause error)
	// Close removes the position and appends the sell record.
	Close(mint string, rec domain.TradeRecord)
}

// SellResult is a confirmed sell.
type SellResult struct {
	Signature string
	SolAmount float64 // SOL received
	Price     float64 // SOL per token
}

// Seller sells a whole position.
type Seller interface {
	Sell(ctx context.Context, p domain.Position, curve domain.CurveState, reason string) (*SellResult, error)
}

// Options configures a Monitor.
type Options struct {
	Book    Book
	Gateway solana.Gateway
	Seller  Seller
	Now     func() time.Time
	Logger  *logrus.Logger
}

// Monitor polls curve prices for open positions.
type Monitor struct {
	book    Book
	gateway solana.Gateway
	seller  Seller
	now     func() time.Time
	logger  *logrus.Logger
}

// NewMonitor creates a Monitor.
func NewMonitor(opts Options) *Monitor {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Monitor{book: opts.Book, gateway: opts.Gateway, seller: opts.Seller, now: now, logger: logger}
}

// Run ticks every poll interval until ctx is done. A tick in progress when
// ctx ends runs to completion; no further tick starts.
func (m *Monitor) Run(ctx context.Context) {
	timer := time.NewTimer(m.book.Settings().PollInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		m.Tick(context.WithoutCancel(ctx))
		if ctx.Err() != nil {
			return
		}
		timer.Reset(m.book.Settings().PollInterval())
	}
}

// Tick checks every open position concurrently. One failure never affects
// another position.
func (m *Monitor) Tick(ctx context.Context) {
	positions := m.book.OpenPositions()
	observability.SetOpenPositions(len(positions))
	if len(positions) == 0 {
		return
	}

	st := m.book.Settings()
	var g errgroup.Group
	for _, p := range positions {
		g.Go(func() error {
			m.check(ctx, p, st)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Monitor) check(ctx context.Context, p domain.Position, st config.Settings) {
	log := m.logger.WithFields(logrus.Fields{"mint": p.Mint, "symbol": p.Symbol})

	curve, err := m.fetchCurve(ctx, p.BondingCurve)
	if err != nil {
		log.WithError(err).Warn("price check failed")
		return
	}
	price := curve.SpotPrice()
	reason, ok := EvaluateExit(p, price, m.now(), st)
	log.WithFields(logrus.Fields{
		"price":  price,
		"change": fmt.Sprintf("%.2f%%", p.PercentChange(price)),
	}).Debug("position checked")
	if !ok {
		return
	}
	m.close(ctx, p, curve, reason)
}

// CloseManual sells the open position for mint immediately.
func (m *Monitor) CloseManual(ctx context.Context, mint string) error {
	p, ok := m.book.Position(mint)
	if !ok || p.Status != domain.PositionOpen {
		return fmt.Errorf("%w: %s", ErrNotOpen, mint)
	}
	curve, err := m.fetchCurve(ctx, p.BondingCurve)
	if err != nil {
		return err
	}
	return m.close(ctx, p, curve, domain.ExitReasonManual)
}

func (m *Monitor) fetchCurve(ctx context.Context, addr string) (domain.CurveState, error) {
	info, err := m.gateway.GetAccountInfo(ctx, addr)
	if err != nil {
		return domain.CurveState{}, fmt.Errorf("get curve %s: %w", addr, err)
	}
	if info == nil {
		return domain.CurveState{}, fmt.Errorf("curve %s not found", addr)
	}
	return wire.DecodeCurve(info.Data)
}

func (m *Monitor) close(ctx context.Context, p domain.Position, curve domain.CurveState, reason string) error {
	log := m.logger.WithFields(logrus.Fields{"mint": p.Mint, "symbol": p.Symbol, "reason": reason})
	if !m.book.MarkClosing(p.Mint) {
		return fmt.Errorf("%w: %s", ErrNotOpen, p.Mint)
	}
	log.Info("exit triggered, selling")

	res, err := m.seller.Sell(ctx, p, curve, reason)
	if err != nil {
		m.book.Revert(p.Mint, err)
		log.WithError(err).Error("sell failed, position reopened")
		return err
	}

	now := m.now()
	pnl := res.SolAmount - p.EntrySOL
	var pct float64
	if p.EntrySOL > 0 {
		pct = pnl / p.EntrySOL * 100
	}
	rec := domain.TradeRecord{
		TradeID:       idhash.ComputeTradeID(p.Mint, string(domain.SideSell), res.Signature, now.UnixMilli()),
		Mint:          p.Mint,
		Symbol:        p.Symbol,
		Name:          p.Name,
		Side:          domain.SideSell,
		Timestamp:     now,
		Signature:     res.Signature,
		AmountSOL:     res.SolAmount,
		AmountTokens:  float64(p.TokenAmount) / domain.TokenBaseUnits,
		PricePerToken: res.Price,
		Reason:        reason,
		ProfitLossSOL: &pnl,
		ProfitLossPct: &pct,
	}
	m.book.Close(p.Mint, rec)
	observability.RecordPositionClosed(reason, pnl)
	log.WithFields(logrus.Fields{
		"signature": res.Signature,
		"pnl_sol":   pnl,
		"pnl_pct":   fmt.Sprintf("%.2f", pct),
	}).Info("position closed")
	return nil
}
