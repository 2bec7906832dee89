package engine

import (
	"context"
	"fmt"
	"time"

	"solana-launch-sniper/internal/config"
	"solana-launch-sniper/internal/domain"
	"solana-launch-sniper/internal/observability"
	"solana-launch-sniper/internal/storage"
)

const persistTimeout = 5 * time.Second

// reserve writes a reservation for mint. It is the only gate against two
// concurrent orders for one mint.
func (e *Engine) reserve(mint string, st config.Settings) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.positions[mint]; ok {
		return fmt.Errorf("%w: %s is %s", ErrStateConflict, mint, p.Status)
	}
	if st.MaxHeldCoins > 0 && len(e.positions) >= st.MaxHeldCoins {
		return fmt.Errorf("%w: %d", ErrPositionLimit, st.MaxHeldCoins)
	}
	e.positions[mint] = &domain.Position{Mint: mint, Status: domain.PositionReserved}
	return nil
}

// holds reports whether mint is reserved or held.
func (e *Engine) holds(mint string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.positions[mint]
	return ok
}

// release drops a reservation after a failed order.
func (e *Engine) release(mint string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.positions[mint]; ok && p.Status == domain.PositionReserved {
		delete(e.positions, mint)
	}
}

// open turns a reservation into an open position and records the buy.
func (e *Engine) open(p domain.Position, rec domain.TradeRecord) {
	e.mu.Lock()
	p.Status = domain.PositionOpen
	e.positions[p.Mint] = &p
	e.history = append(e.history, rec)
	e.persistLocked(storage.KeyPositions, storage.KeyTradeHistory)
	observability.SetOpenPositions(len(e.heldLocked()))
	e.mu.Unlock()

	e.publish(rec)
}

// persistLocked writes the named keys. Callers hold e.mu so writes land in
// mutation order. Failures are logged; the in-memory state stays
// authoritative.
func (e *Engine) persistLocked(keys ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	for _, key := range keys {
		var v any
		switch key {
		case storage.KeySettings:
			v = e.settings
		case storage.KeyPositions:
			v = e.heldLocked()
		case storage.KeyTradeHistory:
			v = e.history
		}
		if err := storage.SaveJSON(ctx, e.deps.Store, key, v); err != nil {
			e.logger.WithError(err).WithField("key", key).Error("persist state failed")
		}
	}
}

// publish forwards a trade to the optional sink.
func (e *Engine) publish(rec domain.TradeRecord) {
	if e.deps.Sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := e.deps.Sink.AppendTrade(ctx, rec); err != nil {
		e.logger.WithError(err).WithField("trade_id", rec.TradeID).Warn("trade sink append failed")
	}
}

// book adapts the engine to position.Book.
type book struct{ e *Engine }

func (b book) Settings() config.Settings { return b.e.Settings() }

func (b book) OpenPositions() []domain.Position {
	b.e.mu.Lock()
	defer b.e.mu.Unlock()
	var out []domain.Position
	for _, p := range b.e.heldLocked() {
		if p.Status == domain.PositionOpen {
			out = append(out, p)
		}
	}
	return out
}

func (b book) Position(mint string) (domain.Position, bool) {
	b.e.mu.Lock()
	defer b.e.mu.Unlock()
	p, ok := b.e.positions[mint]
	if !ok || p.Status == domain.PositionReserved {
		return domain.Position{}, false
	}
	return *p, true
}

func (b book) MarkClosing(mint string) bool {
	b.e.mu.Lock()
	defer b.e.mu.Unlock()
	p, ok := b.e.positions[mint]
	if !ok || p.Status != domain.PositionOpen {
		return false
	}
	p.Status = domain.PositionClosing
	b.e.persistLocked(storage.KeyPositions)
	return true
}

func (b book) Revert(mint string, cause error) {
	b.e.mu.Lock()
	defer b.e.mu.Unlock()
	p, ok := b.e.positions[mint]
	if !ok {
		return
	}
	p.Status = domain.PositionOpen
	p.FailedAttempts++
	p.LastError = cause.Error()
	b.e.persistLocked(storage.KeyPositions)
}

func (b book) Close(mint string, rec domain.TradeRecord) {
	b.e.mu.Lock()
	delete(b.e.positions, mint)
	b.e.history = append(b.e.history, rec)
	b.e.persistLocked(storage.KeyPositions, storage.KeyTradeHistory)
	b.e.mu.Unlock()

	b.e.publish(rec)
}
