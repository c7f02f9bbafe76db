package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ispledger/internal/core"
	"ispledger/internal/log"
	"ispledger/internal/schema"
	"ispledger/internal/storage"
)

// StateStore is the part of the store a backup needs.
type StateStore interface {
	Current(ctx context.Context) (core.GlobalState, error)
	Replace(ctx context.Context, state core.GlobalState) error
	MarkBackedUp(ctx context.Context, date string) error
}

// Recorder keeps a log of backup attempts.
type Recorder interface {
	RecordBackup(ctx context.Context, e storage.BackupLogEntry) error
}

// Result is the outcome of a push to one target.
type Result struct {
	Target Kind   `json:"target"`
	Object Object `json:"object"`
	Err    error  `json:"-"`
}

// Service pushes the state to its primary target and, when local backups
// are enabled in settings, to a dated local copy as well.
type Service struct {
	store    StateStore
	primary  Target
	local    *LocalTarget
	loader   *schema.Loader
	recorder Recorder
	logger   *log.Logger
	now      func() time.Time

	// OnResult, when set, observes every upload attempt.
	OnResult func(kind Kind, err error)
}

type ServiceOption func(*Service)

// WithLocalMirror adds a dated local copy to every push.
func WithLocalMirror(t *LocalTarget) ServiceOption {
	return func(s *Service) { s.local = t }
}

func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(store StateStore, primary Target, logger *log.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = log.FromSlog(nil, log.ComponentBackup)
	}
	s := &Service{
		store:   store,
		primary: primary,
		loader:  schema.NewLoader(schema.Env{}),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Target returns the primary target.
func (s *Service) Target() Target { return s.primary }

// nameFor is the file name used on a target for today's backup.
func (s *Service) nameFor(t Target) string {
	if t.Kind() == KindLocal {
		return LocalFileName(s.now())
	}
	return DriveFileName
}

// Push serializes the current state and uploads it. The primary and the
// local mirror are written concurrently; the primary's failure is returned.
func (s *Service) Push(ctx context.Context) ([]Result, error) {
	state, err := s.store.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	body, err := schema.Encode(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}

	targets := []Target{s.primary}
	if s.local != nil && state.Settings.LocalBackupEnabled && s.primary.Kind() != KindLocal {
		targets = append(targets, s.local)
	}

	results := make([]Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			obj, err := t.Upload(gctx, s.nameFor(t), body)
			results[i] = Result{Target: t.Kind(), Object: obj, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		s.record(ctx, r, int64(len(body)))
	}
	if err := results[0].Err; err != nil {
		return results, fmt.Errorf("backup to %s: %w", results[0].Target, err)
	}
	return results, nil
}

func (s *Service) record(ctx context.Context, r Result, size int64) {
	if s.OnResult != nil {
		s.OnResult(r.Target, r.Err)
	}
	entry := storage.BackupLogEntry{
		Target:    string(r.Target),
		Name:      r.Object.Name,
		Status:    "success",
		SizeBytes: size,
		CreatedAt: s.now().UTC(),
	}
	if r.Err != nil {
		entry.Status = "failed"
		entry.Error = r.Err.Error()
		s.logger.Failure(ctx, "Backup failed", r.Err, log.FieldTarget, r.Target)
	} else {
		s.logger.InfoContext(ctx, "Backup uploaded", log.FieldTarget, r.Target, log.FieldFile, r.Object.Name, "size_bytes", size)
	}
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordBackup(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "Failed to record backup", "error", err)
	}
}

// ErrNoLocalTarget is returned by PushLocal when no local directory is set.
var ErrNoLocalTarget = errors.New("no local backup target configured")

// PushLocal writes a dated local backup whatever the settings say. A
// non-empty body must be a state document and is written after upgrading
// it; otherwise the current state is written.
func (s *Service) PushLocal(ctx context.Context, body []byte) (Object, error) {
	target := s.local
	if lt, ok := s.primary.(*LocalTarget); ok {
		target = lt
	}
	if target == nil {
		return Object{}, ErrNoLocalTarget
	}

	state, err := s.store.Current(ctx)
	if err != nil {
		return Object{}, fmt.Errorf("read state: %w", err)
	}
	if len(body) > 0 {
		if state, err = s.loader.Load(body); err != nil {
			return Object{}, fmt.Errorf("decode state: %w", err)
		}
	}
	encoded, err := schema.Encode(state)
	if err != nil {
		return Object{}, fmt.Errorf("encode state: %w", err)
	}
	obj, err := target.Upload(ctx, LocalFileName(s.now()), encoded)
	s.record(ctx, Result{Target: KindLocal, Object: obj, Err: err}, int64(len(encoded)))
	return obj, err
}

// Pull downloads a backup, upgrades it to the current schema and replaces
// the state. An empty name selects the newest backup on the primary.
func (s *Service) Pull(ctx context.Context, name string) (core.GlobalState, error) {
	if name == "" {
		latest, err := s.latest(ctx)
		if err != nil {
			return core.GlobalState{}, err
		}
		name = latest
	}
	body, err := s.primary.Download(ctx, name)
	if err != nil {
		return core.GlobalState{}, fmt.Errorf("download %s: %w", name, err)
	}
	state, err := s.loader.Load(body)
	if err != nil {
		return core.GlobalState{}, fmt.Errorf("restore %s: %w", name, err)
	}
	if err := s.store.Replace(ctx, state); err != nil {
		return core.GlobalState{}, err
	}
	s.logger.InfoContext(ctx, "Backup restored", log.FieldTarget, s.primary.Kind(), log.FieldFile, name, "clients", len(state.Clients))
	return state, nil
}

func (s *Service) latest(ctx context.Context) (string, error) {
	if s.primary.Kind() != KindLocal {
		return DriveFileName, nil
	}
	objs, err := s.primary.List(ctx)
	if err != nil {
		return "", err
	}
	if len(objs) == 0 {
		return "", ErrNotFound
	}
	return objs[0].Name, nil
}

// List returns the backups on the primary target.
func (s *Service) List(ctx context.Context) ([]Object, error) {
	return s.primary.List(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.primary.Delete(ctx, id)
}

// RunDaily performs the automatic backup once per day. It returns false
// when auto backup is off or today's backup already happened.
func (s *Service) RunDaily(ctx context.Context) (bool, error) {
	st, err := s.store.Current(ctx)
	if err != nil {
		return false, fmt.Errorf("read state: %w", err)
	}
	today := core.DateOf(s.now())
	if !st.Settings.AutoBackupEnabled || st.Settings.LastBackupDate == today {
		return false, nil
	}
	if _, err := s.Push(ctx); err != nil {
		return false, err
	}
	if err := s.store.MarkBackedUp(ctx, today); err != nil {
		return true, fmt.Errorf("mark backed up: %w", err)
	}
	return true, nil
}

// Prune removes expired local backups from every target that supports it.
func (s *Service) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	total := 0
	var errs []error
	targets := []Target{s.primary}
	if s.local != nil && s.primary.Kind() != KindLocal {
		targets = append(targets, s.local)
	}
	for _, t := range targets {
		p, ok := t.(Pruner)
		if !ok {
			continue
		}
		n, err := p.Prune(ctx, olderThan)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	if total > 0 {
		s.logger.InfoContext(ctx, "Old backups removed", log.FieldCount, total)
	}
	return total, errors.Join(errs...)
}
