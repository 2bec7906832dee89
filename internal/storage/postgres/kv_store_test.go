package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-sniper/internal/storage"
	"solana-launch-sniper/internal/storage/migrations"
	"solana-launch-sniper/internal/storage/postgres"
)

func TestKVStore_GetMissing(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewKVStore(pool)
	_, err := store.Get(context.Background(), storage.KeySettings)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestKVStore_PutAndOverwrite(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewKVStore(pool)

	require.NoError(t, store.Put(ctx, storage.KeySettings, []byte(`{"mode":"dry-run","buy_amount":0.1}`)))
	require.NoError(t, store.Put(ctx, storage.KeySettings, []byte(`{"mode":"live","buy_amount":0.2}`)))

	got, err := store.Get(ctx, storage.KeySettings)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"live","buy_amount":0.2}`, string(got))

	var rows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM kv_state`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestKVStore_RejectsInvalidJSON(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewKVStore(pool)
	err := store.Put(context.Background(), storage.KeyPositions, []byte("{broken"))
	assert.Error(t, err)
}

func TestMigrations_Idempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	// setupTestDB already applied them once.
	require.NoError(t, migrations.RunPostgresMigrations(context.Background(), pool))
}
