// File: cmd/app/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"telegram-relay-bot/internal/application"
	"telegram-relay-bot/internal/config"
	"telegram-relay-bot/internal/domain/ports/repository"
	tele "telegram-relay-bot/internal/infra/adapters/telegram"
	"telegram-relay-bot/internal/infra/db/jsonfile"
	pg "telegram-relay-bot/internal/infra/db/postgres"
	httpserver "telegram-relay-bot/internal/infra/http"
	"telegram-relay-bot/internal/infra/logging"
	"telegram-relay-bot/internal/infra/metrics"
	red "telegram-relay-bot/internal/infra/redis"
	"telegram-relay-bot/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay-bot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---- CLI flags ----
	defaultConfig := os.Getenv("RELAY_BOT_CONFIG_FILE")
	if defaultConfig == "" {
		defaultConfig = "config.yaml"
	}
	cfgPath := pflag.StringP("config", "c", defaultConfig, "path to YAML (or legacy JSON) config file")
	devMode := pflag.Bool("dev", false, "developer mode: console logs, no sampling")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("relay-bot %s (%s)\n", version, commit)
		return nil
	}

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// ---- Logging ----
	logger, logCloser, err := logging.New(cfg.Log, cfg.LogsDir, cfg.Runtime.Dev)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logCloser.Close()
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- User store ----
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Str("backend", cfg.Storage.Backend).Msg("user store")
		return err
	}
	defer closeStore()

	// ---- Use cases ----
	users := usecase.NewUserUseCase(store, logger)
	connector := tele.NewConnector(cfg.Transport, cfg.APIKey, logger)
	sup := application.NewSupervisor(connector, application.NewSupervisorConfig(cfg), logger)
	relay := usecase.NewRelayUseCase(users, sup, sup, cfg.Messages, cfg.UserMaxMessages, logger)

	// ---- Metrics ----
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Metrics.Listen != "" {
		srv := httpserver.NewServer(cfg.Metrics.Listen, sup, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().
		Str("version", version).
		Str("backend", cfg.Storage.Backend).
		Int("user_max_messages", cfg.UserMaxMessages).
		Msg("relay bot starting")
	err = sup.Run(ctx, relay.Handle)
	logger.Info().Msg("shutdown complete")
	return err
}

// openStore builds the configured user store backend and verifies it is
// reachable.
func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (repository.UserStore, func(), error) {
	switch cfg.Storage.Backend {
	case config.StorageRedis:
		client, err := red.NewClient(ctx, &cfg.Storage.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		logger.Info().Str("key", cfg.Storage.Redis.Key).Msg("using redis user store")
		return red.NewUserStore(client, cfg.Storage.Redis.Key), func() { _ = client.Close() }, nil

	case config.StoragePostgres:
		pool, err := pg.NewPgxPool(ctx, cfg.Storage.Postgres.URL, cfg.Storage.Postgres.MaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		store := pg.NewUserStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		logger.Info().Msg("using postgres user store")
		return store, pool.Close, nil

	default:
		store := jsonfile.NewUserStore(cfg.UsersDatabase)
		logger.Info().Str("path", store.Path()).Msg("using json user store")
		return store, func() {}, nil
	}
}
