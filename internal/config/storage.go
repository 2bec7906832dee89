package config

import (
	"fmt"
	"strings"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// StorageConfig selects where engine state and the trade journal live.
// Read once at startup from the "storage" section or SNIPER_STORAGE_* vars.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// Optional trade sinks.
	ClickHouseDSN string   `mapstructure:"clickhouse_dsn"`
	KafkaBrokers  []string `mapstructure:"kafka_brokers"`
	KafkaTopic    string   `mapstructure:"kafka_topic"`
}

// DefaultStorage keeps state in a local SQLite file with no trade sinks.
func DefaultStorage() StorageConfig {
	return StorageConfig{
		Backend:    BackendSQLite,
		SQLitePath: "data/sniper.db",
		RedisAddr:  "localhost:6379",
		KafkaTopic: "sniper.trades",
	}
}

// Validate checks that the selected backend has its connection settings.
func (c StorageConfig) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("storage.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("storage.kafka_topic is required when kafka_brokers is set")
	}
	return nil
}
