package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-launch-sniper/internal/domain"
	"solana-launch-sniper/internal/observability"
	"solana-launch-sniper/internal/storage"
)

// TradeJournal implements storage.TradeSink on the trade_journal table.
type TradeJournal struct {
	conn *Conn
}

// NewTradeJournal creates a new TradeJournal. The trade_journal migration
// must already be applied.
func NewTradeJournal(conn *Conn) *TradeJournal {
	return &TradeJournal{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeSink = (*TradeJournal)(nil)

// AppendTrade inserts one row. Re-inserting the same trade_id collapses on merge.
func (j *TradeJournal) AppendTrade(ctx context.Context, rec domain.TradeRecord) error {
	if rec.TradeID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	err := j.insert(ctx, rec)
	observability.RecordDBQuery("clickhouse", "append_trade", time.Since(start).Seconds(), err)
	return err
}

func (j *TradeJournal) insert(ctx context.Context, rec domain.TradeRecord) error {
	batch, err := j.conn.PrepareBatch(ctx, `
		INSERT INTO trade_journal (
			trade_id, mint, symbol, name, side, ts, signature,
			amount_sol, amount_tokens, price_per_token, reason, pnl_sol, pnl_pct
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		rec.TradeID, rec.Mint, rec.Symbol, rec.Name, string(rec.Side), rec.Timestamp.UTC(), rec.Signature,
		rec.AmountSOL, rec.AmountTokens, rec.PricePerToken, rec.Reason, rec.ProfitLossSOL, rec.ProfitLossPct,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// TradesByMint returns journal rows for mint ordered by time.
func (j *TradeJournal) TradesByMint(ctx context.Context, mint string) ([]domain.TradeRecord, error) {
	rows, err := j.conn.Query(ctx, `
		SELECT trade_id, mint, symbol, name, side, ts, signature,
			amount_sol, amount_tokens, price_per_token, reason, pnl_sol, pnl_pct
		FROM trade_journal FINAL
		WHERE mint = ?
		ORDER BY ts, trade_id
	`, mint)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var (
			rec  domain.TradeRecord
			side string
		)
		if err := rows.Scan(
			&rec.TradeID, &rec.Mint, &rec.Symbol, &rec.Name, &side, &rec.Timestamp, &rec.Signature,
			&rec.AmountSOL, &rec.AmountTokens, &rec.PricePerToken, &rec.Reason, &rec.ProfitLossSOL, &rec.ProfitLossPct,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		rec.Side = domain.Side(side)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the connection.
func (j *TradeJournal) Close() error {
	return j.conn.Close()
}
