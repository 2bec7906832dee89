// Package redis persists engine state in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"solana-launch-sniper/internal/observability"
	"solana-launch-sniper/internal/storage"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "sniper:"

// KVStore implements storage.KVStore on Redis strings.
type KVStore struct {
	client *redis.Client
	prefix string
}

var _ storage.KVStore = (*KVStore)(nil)

// NewKVStore connects to addr and verifies the connection.
func NewKVStore(ctx context.Context, addr, password string, db int) (*KVStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewKVStoreFromClient(client, DefaultPrefix), nil
}

// NewKVStoreFromClient wraps an existing client.
func NewKVStoreFromClient(client *redis.Client, prefix string) *KVStore {
	return &KVStore{client: client, prefix: prefix}
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.RecordDBQuery("redis", "kv_get", time.Since(start).Seconds(), nil)
		return nil, storage.ErrNotFound
	}
	observability.RecordDBQuery("redis", "kv_get", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	err := s.client.Set(ctx, s.prefix+key, value, 0).Err()
	observability.RecordDBQuery("redis", "kv_put", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Close() error {
	return s.client.Close()
}
