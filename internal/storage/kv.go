package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"solana-launch-sniper/internal/domain"
)

// Persisted state keys.
const (
	KeySettings     = "settings"
	KeyPositions    = "positions"
	KeyTradeHistory = "trade_history"
)

// KVStore persists engine state as JSON values under fixed keys.
type KVStore interface {
	// Get returns ErrNotFound if key was never written.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put overwrites the value under key.
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// TradeSink receives every confirmed trade for downstream analysis.
type TradeSink interface {
	AppendTrade(ctx context.Context, rec domain.TradeRecord) error
	Close() error
}

// LoadJSON decodes the value under key into v. found is false when the key
// does not exist.
func LoadJSON(ctx context.Context, kv KVStore, key string, v any) (found bool, err error) {
	data, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SaveJSON encodes v and writes it under key.
func SaveJSON(ctx context.Context, kv KVStore, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// MultiSink fans a trade out to several sinks. Every sink is attempted; the
// errors are joined.
type MultiSink []TradeSink

func (m MultiSink) AppendTrade(ctx context.Context, rec domain.TradeRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.AppendTrade(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
