package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-launch-sniper/internal/observability"
	"solana-launch-sniper/internal/storage"
)

// KVStore implements storage.KVStore on the kv_state table.
type KVStore struct {
	pool *Pool
}

// NewKVStore creates a new KVStore. The kv_state migration must already be applied.
func NewKVStore(pool *Pool) *KVStore {
	return &KVStore{pool: pool}
}

// Compile-time interface check.
var _ storage.KVStore = (*KVStore)(nil)

// Get returns the JSON document under key. Returns ErrNotFound if absent.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value::text FROM kv_state WHERE key = $1`, key).Scan(&value)
	observability.RecordDBQuery("postgres", "kv_get", time.Since(start).Seconds(), ignoreNotFound(err))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(value), nil
}

// Put upserts the JSON document under key.
func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO kv_state (key, value, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	start := time.Now()
	_, err := s.pool.Exec(ctx, query, key, string(value))
	observability.RecordDBQuery("postgres", "kv_put", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *KVStore) Close() error {
	s.pool.Close()
	return nil
}

func ignoreNotFound(err error) error {
	if isNotFoundError(err) {
		return nil
	}
	return err
}
