package memory

import (
	"context"
	"sync"

	"solana-launch-sniper/internal/domain"
	"solana-launch-sniper/internal/storage"
)

// KVStore is an in-memory implementation of storage.KVStore.
type KVStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// Compile-time interface check.
var _ storage.KVStore = (*KVStore)(nil)

// NewKVStore creates an empty in-memory store.
func NewKVStore() *KVStore {
	return &KVStore{data: make(map[string][]byte)}
}

// Get returns a copy of the value under key.
func (s *KVStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put stores a copy of value under key.
func (s *KVStore) Put(_ context.Context, key string, value []byte) error {
	if key == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *KVStore) Close() error { return nil }

// TradeSink keeps appended trades in memory.
type TradeSink struct {
	mu     sync.RWMutex
	trades []domain.TradeRecord
}

var _ storage.TradeSink = (*TradeSink)(nil)

// NewTradeSink creates an empty in-memory trade sink.
func NewTradeSink() *TradeSink {
	return &TradeSink{}
}

// AppendTrade records rec.
func (s *TradeSink) AppendTrade(_ context.Context, rec domain.TradeRecord) error {
	if rec.TradeID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, rec)
	return nil
}

// Trades returns a copy of every appended trade in order.
func (s *TradeSink) Trades() []domain.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.TradeRecord(nil), s.trades...)
}

func (s *TradeSink) Close() error { return nil }
