package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ispledger/internal/backup"
	"ispledger/internal/bridge"
	"ispledger/internal/cli"
	"ispledger/internal/config"
	"ispledger/internal/console"
	"ispledger/internal/log"
	"ispledger/internal/metrics"
	"ispledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting ispledger-worker")

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

	backups, err := cli.NewBackupService(ctx, cfg, st, repo, logger)
	if err != nil {
		logger.Error("Failed to configure backups", log.FieldTarget, cfg.BackupTarget, log.FieldError, err)
		os.Exit(1)
	}
	backups.OnResult = func(kind backup.Kind, err error) { m.ObserveBackup(kind.String(), err) }

	runner := console.NewRunner(
		console.WithTimeout(cfg.ConsoleTimeout),
		console.WithLogger(logger.WithComponent(log.ComponentConsole)))
	defer runner.KillAll()

	opts := []worker.Option{
		worker.WithInterval(cfg.BackupInterval),
		worker.WithRetention(cfg.BackupRetention()),
		worker.WithLogger(logger),
	}
	if cfg.AMQPURL != "" {
		transport, err := bridge.NewAMQPTransport(bridge.AMQPConfig{
			URL:          cfg.AMQPURL,
			Exchange:     cfg.AMQPExchange,
			SendQueue:    cfg.AMQPUIQueue,
			ReceiveQueue: cfg.AMQPHostQueue,
		}, logger.WithComponent(log.ComponentBridge))
		if err != nil {
			logger.Error("Failed to initialize AMQP transport", log.FieldError, err)
			os.Exit(1)
		}
		defer transport.Close()

		dispatcher := bridge.NewDispatcher(transport,
			bridge.WithBackups(backups),
			bridge.WithCommands(runner),
			bridge.WithVersions(cfg.AppVersion, cfg.LatestVersion),
			bridge.WithAuthURL(driveAuthURL(cfg)),
			bridge.WithLogger(logger.WithComponent(log.ComponentBridge)))
		dispatcher.OnHandled = m.ObserveBridge
		opts = append(opts, worker.WithBridge(dispatcher))
	} else {
		logger.Info("Host bridge disabled - no AMQP_URL provided")
	}

	if cfg.WorkerMetricsAddr != "" {
		go serveMetrics(ctx, cfg.WorkerMetricsAddr, m, logger)
	}

	if err := worker.New(backups, opts...).Run(ctx); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

func driveAuthURL(cfg *config.Config) func() (string, error) {
	creds := backup.DriveCredentials{
		ClientFile: cfg.GoogleOAuthClientFile,
		ClientJSON: cfg.GoogleOAuthClientJSON,
	}
	redirect := "http://localhost:" + cfg.OAuthRedirectPort + "/callback"
	return func() (string, error) { return creds.AuthURL(redirect) }
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server error", log.FieldError, err)
	}
}
