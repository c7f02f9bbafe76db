// Package cli holds the start-up steps shared by cmd/ispledger,
// cmd/ispledger-worker and cmd/ispledger-admin.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ispledger/internal/backup"
	"ispledger/internal/config"
	"ispledger/internal/log"
	"ispledger/internal/schema"
	"ispledger/internal/storage"
	"ispledger/internal/store"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from cfg and makes it the default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite opens the document database.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *log.Logger, cfg *config.Config) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, log.FieldFile, cfg.SQLiteDBPath)
		os.Exit(1)
	}
	repo.SetHistoryLimit(cfg.HistoryLimit)
	return repo
}

// OpenStore loads the state document from repo, migrating it to the
// current schema version.
func OpenStore(ctx context.Context, repo *storage.SQLiteRepository, logger *log.Logger) (*store.Store, error) {
	persister := store.NewDocumentPersister(repo, schema.NewLoader(schema.Env{}))
	return store.Open(ctx, persister, store.WithLogger(logger.WithComponent(log.ComponentStore)))
}

// NewBackupService builds the backup service for the configured target.
// Non-local targets get the local directory as a mirror.
func NewBackupService(ctx context.Context, cfg *config.Config, st *store.Store, repo *storage.SQLiteRepository, logger *log.Logger) (*backup.Service, error) {
	targetCfg, err := backup.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	primary, err := backup.NewTarget(ctx, targetCfg, logger)
	if err != nil {
		return nil, err
	}
	opts := []backup.ServiceOption{backup.WithRecorder(repo)}
	if targetCfg.Kind != backup.KindLocal && cfg.BackupDir != "" {
		mirror, err := backup.NewLocalTarget(cfg.BackupDir)
		if err != nil {
			return nil, fmt.Errorf("local backup mirror: %w", err)
		}
		opts = append(opts, backup.WithLocalMirror(mirror))
	}
	return backup.NewService(st, primary, logger.WithComponent(log.ComponentBackup), opts...), nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
