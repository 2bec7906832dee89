// Package sqlite persists engine state in a local SQLite file through gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"solana-launch-sniper/internal/observability"
	"solana-launch-sniper/internal/storage"
)

// kvRow is one kv_state row.
type kvRow struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (kvRow) TableName() string { return "kv_state" }

// KVStore implements storage.KVStore on a SQLite file.
type KVStore struct {
	db *gorm.DB
}

var _ storage.KVStore = (*KVStore)(nil)

// NewKVStore opens (or creates) the database at path and migrates kv_state.
func NewKVStore(path string) (*KVStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return NewKVStoreFromDB(db)
}

// NewKVStoreFromDB wraps an existing gorm handle.
func NewKVStoreFromDB(db *gorm.DB) (*KVStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	if err := db.AutoMigrate(&kvRow{}); err != nil {
		return nil, fmt.Errorf("migrate kv_state: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return &KVStore{db: db}, nil
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	var row kvRow
	err := s.db.WithContext(ctx).Where(&kvRow{Key: key}).Take(&row).Error
	notFound := errors.Is(err, gorm.ErrRecordNotFound)
	if notFound {
		observability.RecordDBQuery("sqlite", "kv_get", time.Since(start).Seconds(), nil)
		return nil, storage.ErrNotFound
	}
	observability.RecordDBQuery("sqlite", "kv_get", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return row.Value, nil
}

func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	row := kvRow{Key: key, Value: append([]byte(nil), value...), UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	observability.RecordDBQuery("sqlite", "kv_put", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
