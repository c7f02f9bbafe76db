package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ispledger/internal/config"
	"ispledger/internal/core"
	"ispledger/internal/log"
	"ispledger/internal/schema"
	"ispledger/internal/storage"
	"ispledger/internal/store"
)

var fixedNow = time.Date(2025, time.March, 4, 9, 30, 0, 0, time.UTC)

type recorder struct {
	mu      sync.Mutex
	entries []storage.BackupLogEntry
}

func (r *recorder) RecordBackup(_ context.Context, e storage.BackupLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	loader := schema.NewLoader(schema.Env{Now: func() time.Time { return fixedNow }})
	s, err := store.Open(context.Background(),
		store.NewDocumentPersister(store.NewMemoryDocuments(), loader),
		store.WithClock(func() time.Time { return fixedNow }),
		store.WithLogger(log.Nop()))
	require.NoError(t, err)
	return s
}

func addClient(t *testing.T, s *store.Store, username string) {
	t.Helper()
	_, err := s.AddClient(context.Background(), store.ClientInput{
		Name:           "Client " + username,
		Username:       username,
		BaseMonthlyFee: core.NewMoney(500),
	})
	require.NoError(t, err)
}

func TestLocalTarget_RoundTrip(t *testing.T) {
	ctx := context.Background()
	lt, err := NewLocalTarget(t.TempDir())
	require.NoError(t, err)

	obj, err := lt.Upload(ctx, "a.json", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, int64(7), obj.Size)

	body, err := lt.Download(ctx, "a.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(body))

	objs, err := lt.List(ctx)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "a.json", objs[0].Name)

	require.NoError(t, lt.Delete(ctx, "a.json"))
	_, err = lt.Download(ctx, "a.json")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, lt.Delete(ctx, "a.json"), ErrNotFound)
}

func TestLocalTarget_RejectsPathNames(t *testing.T) {
	lt, err := NewLocalTarget(t.TempDir())
	require.NoError(t, err)
	for _, name := range []string{"", "../x.json", "sub/x.json", ".hidden"} {
		_, err := lt.Upload(context.Background(), name, []byte("{}"))
		assert.Error(t, err, name)
	}
}

func TestLocalTarget_Prune(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	lt, err := NewLocalTarget(dir)
	require.NoError(t, err)
	lt.now = func() time.Time { return fixedNow }

	for _, name := range []string{"old.json", "new.json"} {
		_, err := lt.Upload(ctx, name, []byte("{}"))
		require.NoError(t, err)
	}
	old := fixedNow.Add(-11 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.json"), old, old))
	recent := fixedNow.Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "new.json"), recent, recent))

	n, err := lt.Prune(ctx, DefaultRetention)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = os.Stat(filepath.Join(dir, "new.json"))
	assert.NoError(t, err)
}

func TestLocalFileName(t *testing.T) {
	assert.Equal(t, "KAMS_Backup_2025-03-04.json", LocalFileName(fixedNow))
}

func TestService_PushWritesPrimaryAndLocalMirror(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	addClient(t, s, "alice")

	primary := NewMemoryTarget()
	local, err := NewLocalTarget(t.TempDir())
	require.NoError(t, err)
	rec := &recorder{}
	svc := NewService(s, primary, log.Nop(),
		WithLocalMirror(local), WithRecorder(rec), WithClock(func() time.Time { return fixedNow }))

	results, err := svc.Push(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, DriveFileName, results[0].Object.Name)
	assert.Equal(t, KindLocal, results[1].Target)

	body, err := local.Download(ctx, LocalFileName(fixedNow))
	require.NoError(t, err)
	state, err := schema.Load(body)
	require.NoError(t, err)
	assert.Len(t, state.Clients, 1)

	require.Len(t, rec.entries, 2)
	for _, e := range rec.entries {
		assert.Equal(t, "success", e.Status)
	}
}

func TestService_PushSkipsMirrorWhenLocalDisabled(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	off := false
	_, err := s.UpdateSettings(ctx, store.SettingsPatch{LocalBackupEnabled: &off})
	require.NoError(t, err)

	local, err := NewLocalTarget(t.TempDir())
	require.NoError(t, err)
	svc := NewService(s, NewMemoryTarget(), log.Nop(), WithLocalMirror(local))

	results, err := svc.Push(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestService_PushFailureIsRecorded(t *testing.T) {
	primary := NewMemoryTarget()
	primary.Fail = errors.New("quota exceeded")
	rec := &recorder{}
	var observed []Kind
	svc := NewService(newStore(t), primary, log.Nop(), WithRecorder(rec))
	svc.OnResult = func(kind Kind, err error) {
		if err != nil {
			observed = append(observed, kind)
		}
	}

	_, err := svc.Push(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "quota exceeded")
	require.Len(t, rec.entries, 1)
	assert.Equal(t, "failed", rec.entries[0].Status)
	assert.Equal(t, []Kind{KindMemory}, observed)
}

func TestService_PullRestoresState(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	addClient(t, s, "alice")
	svc := NewService(s, NewMemoryTarget(), log.Nop())

	_, err := svc.Push(ctx)
	require.NoError(t, err)
	addClient(t, s, "bob")
	require.Len(t, s.Snapshot().Clients, 2)

	restored, err := svc.Pull(ctx, "")
	require.NoError(t, err)
	assert.Len(t, restored.Clients, 1)
	assert.Len(t, s.Snapshot().Clients, 1)
	assert.Equal(t, "alice", s.Snapshot().Clients[0].Username)
}

func TestService_PullMissingBackup(t *testing.T) {
	svc := NewService(newStore(t), NewMemoryTarget(), log.Nop())
	_, err := svc.Pull(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_PullLatestLocal(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	local, err := NewLocalTarget(t.TempDir())
	require.NoError(t, err)
	svc := NewService(s, local, log.Nop(), WithClock(func() time.Time { return fixedNow }))

	_, err = svc.Push(ctx)
	require.NoError(t, err)
	objs, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, LocalFileName(fixedNow), objs[0].Name)

	_, err = svc.Pull(ctx, "")
	assert.NoError(t, err)
}

func TestService_RunDailyOncePerDay(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	primary := NewMemoryTarget()
	svc := NewService(s, primary, log.Nop(), WithClock(func() time.Time { return fixedNow }))

	ran, err := svc.RunDaily(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, "2025-03-04", s.Snapshot().Settings.LastBackupDate)

	ran, err = svc.RunDaily(ctx)
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestService_RunDailyRespectsSetting(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	off := false
	_, err := s.UpdateSettings(ctx, store.SettingsPatch{AutoBackupEnabled: &off})
	require.NoError(t, err)

	primary := NewMemoryTarget()
	ran, err := NewService(s, primary, log.Nop()).RunDaily(ctx)
	require.NoError(t, err)
	assert.False(t, ran)
	objs, _ := primary.List(ctx)
	assert.Empty(t, objs)
}

func TestKind(t *testing.T) {
	assert.True(t, KindDrive.IsValid())
	assert.False(t, Kind("ftp").IsValid())
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(&config.Config{BackupTarget: "local", BackupDir: "/tmp/b"})
	require.NoError(t, err)
	assert.Equal(t, KindLocal, cfg.Kind)
	assert.Equal(t, "/tmp/b", cfg.LocalDir)

	_, err = FromAppConfig(&config.Config{BackupTarget: "ftp"})
	assert.Error(t, err)
	_, err = FromAppConfig(nil)
	assert.Error(t, err)
}

func TestNewTarget_Memory(t *testing.T) {
	target, err := NewTarget(context.Background(), Config{Kind: KindMemory}, log.Nop())
	require.NoError(t, err)
	assert.Equal(t, KindMemory, target.Kind())
}

func TestService_PushLocal(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	local, err := NewLocalTarget(t.TempDir())
	require.NoError(t, err)
	svc := NewService(s, NewMemoryTarget(), log.Nop(),
		WithLocalMirror(local), WithClock(func() time.Time { return fixedNow }))

	obj, err := svc.PushLocal(ctx, []byte(`{"clients":[{"id":"c1","name":"A","username":"a"}]}`))
	require.NoError(t, err)
	assert.Equal(t, LocalFileName(fixedNow), obj.Name)

	body, err := local.Download(ctx, obj.Name)
	require.NoError(t, err)
	state, err := schema.Load(body)
	require.NoError(t, err)
	require.Len(t, state.Clients, 1)
	assert.Equal(t, schema.CurrentVersion, state.SchemaVersion)

	_, err = svc.PushLocal(ctx, []byte(`not json`))
	assert.Error(t, err)

	_, err = NewService(s, NewMemoryTarget(), log.Nop()).PushLocal(ctx, nil)
	assert.ErrorIs(t, err, ErrNoLocalTarget)
}

func TestService_RunDailyBacksUpWritesFromAnotherStore(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "shared.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	open := func() *store.Store {
		loader := schema.NewLoader(schema.Env{Now: func() time.Time { return fixedNow }})
		s, err := store.Open(ctx, store.NewDocumentPersister(repo, loader),
			store.WithClock(func() time.Time { return fixedNow }),
			store.WithLogger(log.Nop()))
		require.NoError(t, err)
		return s
	}
	api, worker := open(), open()
	addClient(t, api, "rahim")

	primary := NewMemoryTarget()
	svc := NewService(worker, primary, log.Nop(), WithClock(func() time.Time { return fixedNow }))
	ran, err := svc.RunDaily(ctx)
	require.NoError(t, err)
	require.True(t, ran)

	body, err := primary.Download(ctx, DriveFileName)
	require.NoError(t, err)
	backedUp, err := schema.Load(body)
	require.NoError(t, err)
	require.Len(t, backedUp.Clients, 1)
	assert.Equal(t, "rahim", backedUp.Clients[0].Username)

	st := open().Snapshot()
	require.Len(t, st.Clients, 1)
	assert.Equal(t, "2025-03-04", st.Settings.LastBackupDate)
	assert.Equal(t, "2025-03-04", api.Snapshot().Settings.LastBackupDate)
}
