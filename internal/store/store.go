// Package store owns the application state. The state is held as an
// immutable snapshot; each mutation works on a copy, validates it, persists
// it and only then replaces the snapshot, so a failed operation leaves both
// memory and disk untouched.
//
// Several processes may open stores over the same database. Each save is
// conditional on the revision the store last read; reads and writes reload
// the document first when another process has saved since.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ispledger/internal/billing"
	"ispledger/internal/core"
	"ispledger/internal/log"
)

// Persister loads and saves the whole state document. Save fails with an
// error wrapping core.ErrStale when the stored revision is not expect.
type Persister interface {
	Load(ctx context.Context) (core.GlobalState, int64, error)
	Revision(ctx context.Context) (int64, error)
	Save(ctx context.Context, state core.GlobalState, expect int64) (int64, error)
}

// maxSaveAttempts bounds how often an operation is re-applied after losing
// a race with another writer.
const maxSaveAttempts = 3

// SaveHook runs after a successful save with the new snapshot.
type SaveHook func(ctx context.Context, op string, state core.GlobalState)

type Store struct {
	mu      sync.Mutex // serializes writers
	state   core.GlobalState
	rev     int64
	persist Persister
	engine  *billing.Engine
	newID   billing.IDFunc
	now     func() time.Time
	logger  *log.Logger

	hookMu sync.RWMutex
	hooks  []SaveHook
}

type Option func(*Store)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs overrides id generation, for tests.
func WithIDs(newID billing.IDFunc) Option {
	return func(s *Store) { s.newID = newID }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open loads the persisted state and returns a ready store.
func Open(ctx context.Context, p Persister, opts ...Option) (*Store, error) {
	s := &Store{
		persist: p,
		newID:   billing.NewID,
		now:     time.Now,
		logger:  log.FromSlog(nil, log.ComponentStore),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = billing.NewEngine(s.newID)

	state, rev, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	s.state, s.rev = state, rev

	s.logger.InfoContext(ctx, "State loaded",
		"clients", len(state.Clients),
		"records", len(state.Records),
		"expenses", len(state.Expenses),
		log.FieldMonthKey, state.CurrentViewMonth)
	return s, nil
}

// OnSave registers a hook called after every successful mutation.
func (s *Store) OnSave(h SaveHook) {
	s.hookMu.Lock()
	s.hooks = append(s.hooks, h)
	s.hookMu.Unlock()
}

// Snapshot returns a private copy of the current state. When the document
// cannot be re-read the last loaded state is returned.
func (s *Store) Snapshot() core.GlobalState {
	st, err := s.Current(context.Background())
	if err != nil {
		s.logger.Warn("Serving cached state", log.FieldError, err)
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.state.Clone()
	}
	return st
}

// Current returns a private copy of the persisted state, reloading it first
// if another process saved since this store last read it.
func (s *Store) Current(ctx context.Context) (core.GlobalState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(ctx); err != nil {
		return core.GlobalState{}, err
	}
	return s.state.Clone(), nil
}

// refreshLocked reloads the document when its revision moved. s.mu must be
// held.
func (s *Store) refreshLocked(ctx context.Context) error {
	rev, err := s.persist.Revision(ctx)
	if err != nil {
		return fmt.Errorf("read state revision: %w", err)
	}
	if rev == s.rev {
		return nil
	}
	state, rev, err := s.persist.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload state: %w", err)
	}
	s.logger.DebugContext(ctx, "State reloaded after external change", "from_revision", s.rev, "to_revision", rev)
	s.state, s.rev = state, rev
	return nil
}

// Today returns the store's current date as YYYY-MM-DD.
func (s *Store) Today() string {
	return core.DateOf(s.now())
}

// update applies fn to a copy of the latest state and commits it. fn may run
// more than once when another process saves concurrently, so it must derive
// everything from st and must not retain the pointer.
func (s *Store) update(ctx context.Context, op string, fn func(st *core.GlobalState) error) (core.GlobalState, error) {
	s.mu.Lock()
	var next core.GlobalState
	for attempt := 1; ; attempt++ {
		if err := s.refreshLocked(ctx); err != nil {
			s.mu.Unlock()
			return core.GlobalState{}, fmt.Errorf("%s: %w", op, err)
		}
		next = s.state.Clone()
		if err := fn(&next); err != nil {
			s.mu.Unlock()
			return core.GlobalState{}, err
		}
		rev, err := s.persist.Save(ctx, next, s.rev)
		if err == nil {
			s.rev = rev
			break
		}
		if errors.Is(err, core.ErrStale) && attempt < maxSaveAttempts {
			s.logger.WarnContext(ctx, "State changed by another writer, retrying",
				log.FieldOperation, op, "attempt", attempt)
			continue
		}
		s.mu.Unlock()
		s.logger.Failure(ctx, "Failed to persist state", err, log.FieldOperation, op)
		return core.GlobalState{}, fmt.Errorf("%s: save state: %w", op, err)
	}
	s.state = next
	snapshot := next.Clone()
	s.mu.Unlock()

	s.hookMu.RLock()
	hooks := append([]SaveHook(nil), s.hooks...)
	s.hookMu.RUnlock()
	for _, h := range hooks {
		h(ctx, op, snapshot)
	}
	return snapshot, nil
}

// Replace swaps in a whole state, used when restoring a backup.
func (s *Store) Replace(ctx context.Context, state core.GlobalState) error {
	_, err := s.update(ctx, log.OpRestore, func(st *core.GlobalState) error {
		*st = state.Clone()
		return nil
	})
	if err == nil {
		s.logger.InfoContext(ctx, "State replaced", "clients", len(state.Clients), "records", len(state.Records))
	}
	return err
}
