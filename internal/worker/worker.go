// Package worker runs the background jobs of the host: the daily backup,
// pruning of old local backups and the host bridge.
package worker

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"ispledger/internal/log"
)

// BackupJobs is the part of the backup service the worker schedules.
type BackupJobs interface {
	RunDaily(ctx context.Context) (bool, error)
	Prune(ctx context.Context, olderThan time.Duration) (int, error)
}

// Bridge serves host bridge messages until ctx is cancelled.
type Bridge interface {
	Run(ctx context.Context) error
}

type Worker struct {
	backups   BackupJobs
	bridge    Bridge
	interval  time.Duration
	retention time.Duration
	logger    *log.Logger
}

type Option func(*Worker)

// WithBridge also serves host bridge messages.
func WithBridge(b Bridge) Option {
	return func(w *Worker) { w.bridge = b }
}

// WithInterval sets how often the daily backup is checked.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithRetention sets the age after which local backups are pruned.
func WithRetention(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.retention = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

func New(backups BackupJobs, opts ...Option) *Worker {
	w := &Worker{
		backups:   backups,
		interval:  time.Hour,
		retention: 10 * 24 * time.Hour,
		logger:    log.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent(log.ComponentWorker)
	return w
}

// Run blocks until ctx is cancelled or the bridge fails.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if w.backups != nil {
		g.Go(func() error {
			w.backupLoop(ctx)
			return nil
		})
	}
	if w.bridge != nil {
		g.Go(func() error {
			err := w.bridge.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// backupLoop checks the daily backup at start-up and on every tick. The
// backup service decides whether today's backup is still due.
func (w *Worker) backupLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one backup check followed by a prune.
func (w *Worker) Tick(ctx context.Context) {
	ran, err := w.backups.RunDaily(ctx)
	switch {
	case err != nil:
		w.logger.Failure(ctx, "Daily backup failed", err, log.FieldOperation, log.OpBackup)
	case ran:
		w.logger.InfoContext(ctx, "Daily backup completed", log.FieldOperation, log.OpBackup)
	}

	removed, err := w.backups.Prune(ctx, w.retention)
	if err != nil {
		w.logger.Failure(ctx, "Backup prune failed", err)
		return
	}
	if removed > 0 {
		w.logger.InfoContext(ctx, "Old backups pruned", log.FieldCount, removed)
	}
}
