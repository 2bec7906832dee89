// Command sniper runs the launch sniper engine behind its control API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"solana-launch-sniper/internal/api"
	"solana-launch-sniper/internal/config"
	"solana-launch-sniper/internal/engine"
	"solana-launch-sniper/internal/logging"
	"solana-launch-sniper/internal/signer"
	"solana-launch-sniper/internal/solana"
	"solana-launch-sniper/internal/storage"
	chstore "solana-launch-sniper/internal/storage/clickhouse"
	"solana-launch-sniper/internal/storage/kafka"
	"solana-launch-sniper/internal/storage/memory"
	"solana-launch-sniper/internal/storage/migrations"
	pgstore "solana-launch-sniper/internal/storage/postgres"
	redisstore "solana-launch-sniper/internal/storage/redis"
	"solana-launch-sniper/internal/storage/sqlite"
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("SNIPER_CONFIG"), "Settings file (yaml, json or toml)")
	addr := flag.String("addr", envOr("SNIPER_ADDR", ":8080"), "Control API listen address")
	logLevel := flag.String("log-level", envOr("SNIPER_LOG_LEVEL", "info"), "Log level")
	logBuffer := flag.Int("log-buffer", 200, "Log lines kept for the state endpoint")
	autoStart := flag.Bool("start", false, "Start the engine immediately")
	flag.Parse()

	logs := logging.NewRingHook(*logBuffer)
	logger := logging.New(os.Stdout, *logLevel)
	logger.AddHook(logs)

	if err := run(*configPath, *addr, *autoStart, logs, logger); err != nil {
		logger.WithError(err).Fatal("sniper exited")
	}
}

func run(configPath, addr string, autoStart bool, logs *logging.RingHook, logger *logrus.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loader, err := config.NewLoader(configPath, logger)
	if err != nil {
		return err
	}
	st := loader.Settings()
	storageCfg, err := loader.Storage()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, storageCfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", storageCfg.Backend, err)
	}
	defer store.Close()

	sink, err := openSinks(ctx, storageCfg, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	opts := []solana.ClientOption{solana.WithCommitment(st.Commitment)}
	if st.RPCRequestsPerSecond > 0 {
		opts = append(opts, solana.WithRateLimit(st.RPCRequestsPerSecond))
	}
	urls := st.SolanaRPCURLs
	if !st.RotateRPC {
		urls = urls[:1]
	}
	gateway, err := solana.NewFailoverFromURLs(urls, logger, opts...)
	if err != nil {
		return fmt.Errorf("rpc gateway: %w", err)
	}

	sg, err := buildSigner(st, logger)
	if err != nil {
		return err
	}

	eng, err := engine.New(st, engine.Deps{
		Gateway: gateway,
		Signer:  sg,
		Store:   store,
		Sink:    sink,
		Logs:    logs,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	if err := eng.Restore(ctx); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}

	loader.OnChange(func(partial map[string]any) {
		if err := eng.UpdateSettings(context.Background(), partial); err != nil {
			logger.WithError(err).Warn("settings file change rejected")
		}
	})
	loader.Watch()

	srv, err := api.NewServer(api.Config{Addr: addr, Engine: eng, Logger: logger})
	if err != nil {
		return err
	}
	if autoStart {
		if err := eng.Start(ctx); err != nil {
			return err
		}
	}

	logger.WithFields(logrus.Fields{
		"addr":    addr,
		"storage": storageCfg.Backend,
		"mode":    eng.Settings().Mode,
		"wallet":  sg.PublicKey(),
	}).Info("sniper ready")

	serveErr := srv.Start(ctx)

	logger.Info("shutting down")
	eng.Stop()
	eng.Wait()
	return serveErr
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.KVStore, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.NewKVStore(), nil
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		return sqlite.NewKVStore(cfg.SQLitePath)
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		return pgstore.NewKVStore(pool), nil
	case config.BackendRedis:
		return redisstore.NewKVStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// openSinks opens every configured trade sink.
func openSinks(ctx context.Context, cfg config.StorageConfig, logger *logrus.Logger) (storage.MultiSink, error) {
	var sinks storage.MultiSink
	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		sinks = append(sinks, chstore.NewTradeJournal(conn))
		logger.Info("clickhouse trade journal enabled")
	}
	if len(cfg.KafkaBrokers) > 0 {
		s, err := kafka.NewTradeSink(kafka.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			_ = sinks.Close()
			return nil, fmt.Errorf("kafka sink: %w", err)
		}
		sinks = append(sinks, s)
		logger.WithField("topic", cfg.KafkaTopic).Info("kafka trade sink enabled")
	}
	return sinks, nil
}

// buildSigner falls back to a throwaway key in dry-run when no wallet is set.
func buildSigner(st config.Settings, logger *logrus.Logger) (signer.Signer, error) {
	sg, err := signer.FromSettings(st, logger)
	if err == nil {
		return sg, nil
	}
	noWallet := st.SignerKind == config.SignerKeypair && st.WalletPrivateKey == "" && st.WalletKeypairPath == ""
	if st.Mode != config.ModeDryRun || !noWallet {
		return nil, fmt.Errorf("signer: %w", err)
	}
	key, kerr := solanago.NewRandomPrivateKey()
	if kerr != nil {
		return nil, errors.Join(err, kerr)
	}
	logger.WithField("wallet", key.PublicKey()).Warn("no wallet configured, using an ephemeral dry-run key")
	return signer.NewKeypairSigner(key), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
