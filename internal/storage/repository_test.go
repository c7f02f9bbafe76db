package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"ispledger/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestLoadDocument_Missing(t *testing.T) {
	repo := newTestRepo(t)
	body, rev, err := repo.LoadDocument(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != nil || rev != 0 {
		t.Fatalf("expected nil body at revision 0, got %q at %d", body, rev)
	}
}

func TestSaveDocument_ReplacesAndKeepsHistory(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	repo.SetHistoryLimit(2)

	for i := 1; i <= 4; i++ {
		if _, err := repo.SaveDocument(ctx, "doc", 5, []byte(fmt.Sprintf(`{"n":%d}`, i)), AnyRevision); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	body, rev, err := repo.LoadDocument(ctx, "doc")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(body) != `{"n":4}` || rev != 4 {
		t.Fatalf("expected latest body at revision 4, got %s at %d", body, rev)
	}

	hist, err := repo.History(ctx, "doc", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(hist))
	}
	prev, err := repo.HistoryBody(ctx, hist[0].ID)
	if err != nil {
		t.Fatalf("history body: %v", err)
	}
	if string(prev) != `{"n":3}` {
		t.Fatalf("expected previous body, got %s", prev)
	}

	if _, err := repo.HistoryBody(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBackupLog(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if err := repo.RecordBackup(ctx, BackupLogEntry{Target: "local", Name: "a.json", Status: "success", SizeBytes: 10}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := repo.RecordBackup(ctx, BackupLogEntry{Target: "drive", Name: "b.json", Status: "failed", Error: "offline"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := repo.RecentBackups(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Name != "b.json" || got[0].Error != "offline" {
		t.Fatalf("unexpected newest entry %+v", got[0])
	}
}

func TestSaveDocument_RejectsStaleRevision(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	a, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	defer a.Close()
	b, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	defer b.Close()

	rev, err := a.SaveDocument(ctx, "doc", 1, []byte(`{"by":"a"}`), 0)
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if rev != 1 {
		t.Fatalf("expected revision 1, got %d", rev)
	}

	if _, err := b.SaveDocument(ctx, "doc", 1, []byte(`{"by":"b"}`), 0); !errors.Is(err, core.ErrStale) {
		t.Fatalf("expected ErrStale for an outdated writer, got %v", err)
	}

	got, err := b.DocumentRevision(ctx, "doc")
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected revision 1 seen from the second connection, got %d", got)
	}
	if _, err := b.SaveDocument(ctx, "doc", 1, []byte(`{"by":"b"}`), got); err != nil {
		t.Fatalf("save at current revision: %v", err)
	}

	body, rev, err := a.LoadDocument(ctx, "doc")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(body) != `{"by":"b"}` || rev != 2 {
		t.Fatalf("expected b's body at revision 2, got %s at %d", body, rev)
	}
}

func TestMigrationVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	defer repo.Close()

	v, dirty, err := MigrationVersion(path)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 3 || dirty {
		t.Fatalf("expected version 3 clean, got %d dirty=%v", v, dirty)
	}
}
