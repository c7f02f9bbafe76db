package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"time"

	"ispledger/internal/auth"
	"ispledger/internal/backup"
	"ispledger/internal/bridge"
	"ispledger/internal/cache"
	"ispledger/internal/cli"
	"ispledger/internal/config"
	apphttp "ispledger/internal/http"
	"ispledger/internal/log"
	"ispledger/internal/metrics"
	"ispledger/internal/middleware/ratelimit"
	"ispledger/internal/report"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	repo := cli.InitSQLite(logger, cfg)
	defer repo.Close()

	ctx, stop := cli.SignalContext()
	defer stop()

	st, err := cli.OpenStore(ctx, repo, logger)
	if err != nil {
		logger.Error("Failed to load state", log.FieldError, err)
		os.Exit(1)
	}

	m := metrics.New()
	st.OnSave(m.ObserveSave)

	dashCache, stopCache := dashboardCache(ctx, cfg, logger)
	defer stopCache()
	reports := report.NewService(dashCache, logger.WithComponent(log.ComponentCache).Logger)
	reports.OnLookup = m.ObserveCache
	st.OnSave(reports.Invalidate)

	if cfg.AMQPURL != "" {
		transport, err := bridge.NewAMQPTransport(bridge.AMQPConfig{
			URL:          cfg.AMQPURL,
			Exchange:     cfg.AMQPExchange,
			SendQueue:    cfg.AMQPHostQueue,
			ReceiveQueue: cfg.AMQPUIQueue,
		}, logger.WithComponent(log.ComponentBridge))
		if err != nil {
			logger.Warn("Host bridge disabled", log.FieldError, err)
		} else {
			defer transport.Close()
			st.OnSave(bridge.SaveNotifier(transport, logger.WithComponent(log.ComponentBridge)))
		}
	}

	var backups apphttp.Backups
	if svc, err := cli.NewBackupService(ctx, cfg, st, repo, logger); err != nil {
		logger.Warn("Backups disabled", log.FieldTarget, cfg.BackupTarget, log.FieldError, err)
	} else {
		svc.OnResult = func(kind backup.Kind, err error) { m.ObserveBackup(kind.String(), err) }
		backups = svc
	}

	tokens, err := auth.NewTokens(sessionSecret(cfg, logger), cfg.SessionTTL)
	if err != nil {
		logger.Error("Failed to configure sessions", log.FieldError, err)
		os.Exit(1)
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:     st,
		Reports:   reports,
		Backups:   backups,
		BackupLog: repo,
		Tokens:    tokens,
		Metrics:   m,
		Ready:     repo.Ping,
		Logger:    logger,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
			CleanupInterval:   5 * time.Minute,
			IdleAfter:         10 * time.Minute,
		},
	})
	if err != nil {
		logger.Error("Failed to configure server", log.FieldError, err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	}()

	logger.Info("Starting ispledger server",
		"port", cfg.Port,
		log.FieldTarget, cfg.BackupTarget,
		"version", cfg.AppVersion)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// dashboardCache uses Redis when configured and an in-process LRU
// otherwise. The returned func stops background cleanup.
func dashboardCache(ctx context.Context, cfg *config.Config, logger *log.Logger) (cache.Cache[report.DashboardStats], func()) {
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err == nil {
			logger.Info("Dashboard cache backed by Redis")
			return cache.NewRedisCache[report.DashboardStats](client, "ispledger:dashboard:", cfg.CacheTTL),
				func() { _ = client.Close() }
		}
		logger.Warn("Redis unavailable, using in-process cache", log.FieldError, err)
	}
	lru := cache.NewLRUCache[report.DashboardStats](cfg.CacheSize, cfg.CacheTTL)
	manager := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	manager.Register(lru)
	manager.StartCleanup(5 * time.Minute)
	return lru, manager.Stop
}

// sessionSecret returns the configured JWT secret, or a random one that
// only lives as long as the process.
func sessionSecret(cfg *config.Config, logger *log.Logger) string {
	if cfg.JWTSecret != "" {
		return cfg.JWTSecret
	}
	logger.Warn("JWT_SECRET not set, sessions will not survive a restart")
	return rand.Text()
}
