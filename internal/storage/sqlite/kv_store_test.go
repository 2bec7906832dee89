package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"solana-launch-sniper/internal/storage"
)

func TestKVStore_RoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "sniper.db")
	ctx := context.Background()

	store, err := NewKVStore(path)
	if err != nil {
		t.Fatalf("NewKVStore: %v", err)
	}
	if _, err := store.Get(ctx, storage.KeySettings); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.Put(ctx, storage.KeySettings, []byte(`{"mode":"dry-run"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, storage.KeySettings, []byte(`{"mode":"live"}`)); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewKVStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, storage.KeySettings)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"mode":"live"}` {
		t.Errorf("unexpected value %s", got)
	}
}

func TestKVStore_Validation(t *testing.T) {
	if _, err := NewKVStore("  "); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := NewKVStoreFromDB(nil); err == nil {
		t.Error("expected error for nil db")
	}

	store, err := NewKVStore(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("NewKVStore: %v", err)
	}
	defer store.Close()
	if err := store.Put(context.Background(), "", nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
