package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"ispledger/internal/core"
)

// DefaultHistoryLimit is how many previous versions of a document are kept.
const DefaultHistoryLimit = 20

type SQLiteRepository struct {
	db           *sqlx.DB
	historyLimit int
}

// HistoryEntry is a previously saved version of a document.
type HistoryEntry struct {
	ID            int64     `db:"id"`
	Key           string    `db:"key"`
	SchemaVersion int       `db:"schema_version"`
	SavedAt       time.Time `db:"saved_at"`
	Size          int       `db:"size"`
}

// BackupLogEntry records the outcome of one backup attempt.
type BackupLogEntry struct {
	ID        int64     `db:"id" json:"id"`
	Target    string    `db:"target" json:"target"`
	Name      string    `db:"name" json:"name"`
	Status    string    `db:"status" json:"status"`
	SizeBytes int64     `db:"size_bytes" json:"sizeBytes"`
	Error     string    `db:"error" json:"error,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Transactions take the write lock at BEGIN and wait for other processes.
	db, err := sqlx.Open("sqlite", dbPath+"?_txlock=immediate&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; the state document is rewritten on every change.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, historyLimit: DefaultHistoryLimit}, nil
}

// SetHistoryLimit changes how many previous versions are retained.
func (r *SQLiteRepository) SetHistoryLimit(n int) {
	if n >= 0 {
		r.historyLimit = n
	}
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection, used by readiness probes.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// AnyRevision makes SaveDocument overwrite whatever is stored.
const AnyRevision int64 = -1

// DocumentRevision returns the revision of the document stored under key,
// or 0 when nothing has been saved yet.
func (r *SQLiteRepository) DocumentRevision(ctx context.Context, key string) (int64, error) {
	var rev int64
	err := r.db.GetContext(ctx, &rev, `SELECT revision FROM state_documents WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read revision of %s: %w", key, err)
	}
	return rev, nil
}

// LoadDocument returns the stored body for key and its revision. The body
// is nil and the revision 0 when nothing has been saved yet.
func (r *SQLiteRepository) LoadDocument(ctx context.Context, key string) ([]byte, int64, error) {
	var row struct {
		Body     string `db:"body"`
		Revision int64  `db:"revision"`
	}
	err := r.db.GetContext(ctx, &row, `SELECT body, revision FROM state_documents WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load document %s: %w", key, err)
	}
	return []byte(row.Body), row.Revision, nil
}

// SaveDocument replaces the document for key when its stored revision is
// still expect, moving the previous body to the history table and pruning
// history beyond the configured limit. It returns the new revision, or an
// error wrapping core.ErrStale when another writer got there first. Pass
// AnyRevision to skip the check.
func (r *SQLiteRepository) SaveDocument(ctx context.Context, key string, version int, body []byte, expect int64) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.GetContext(ctx, &current, `SELECT revision FROM state_documents WHERE key = ?`, key)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read revision of %s: %w", key, err)
	}
	if expect != AnyRevision && current != expect {
		return 0, fmt.Errorf("save document %s at revision %d (stored %d): %w", key, expect, current, core.ErrStale)
	}
	next := current + 1

	if r.historyLimit > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO state_history (key, schema_version, body, saved_at)
			SELECT key, schema_version, body, updated_at FROM state_documents WHERE key = ?`, key)
		if err != nil {
			return 0, fmt.Errorf("archive previous document: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO state_documents (key, schema_version, body, updated_at, revision)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			schema_version = excluded.schema_version,
			body = excluded.body,
			updated_at = excluded.updated_at,
			revision = excluded.revision`,
		key, version, string(body), time.Now().UTC(), next)
	if err != nil {
		return 0, fmt.Errorf("save document %s: %w", key, err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM state_history
		WHERE key = ? AND id NOT IN (
			SELECT id FROM state_history WHERE key = ? ORDER BY id DESC LIMIT ?
		)`, key, key, r.historyLimit)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save: %w", err)
	}

	slog.DebugContext(ctx, "State document saved",
		"key", key,
		"schema_version", version,
		"revision", next,
		"size_bytes", len(body))
	return next, nil
}

// History lists previous versions of a document, newest first.
func (r *SQLiteRepository) History(ctx context.Context, key string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = r.historyLimit
	}
	var out []HistoryEntry
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, key, schema_version, saved_at, length(body) AS size
		FROM state_history WHERE key = ?
		ORDER BY id DESC LIMIT ?`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

// HistoryBody returns the body of one history entry.
func (r *SQLiteRepository) HistoryBody(ctx context.Context, id int64) ([]byte, error) {
	var body string
	err := r.db.GetContext(ctx, &body, `SELECT body FROM state_history WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history entry %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load history entry %d: %w", id, err)
	}
	return []byte(body), nil
}

// RecordBackup appends a backup outcome to the backup log.
func (r *SQLiteRepository) RecordBackup(ctx context.Context, e BackupLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO backup_log (target, name, status, size_bytes, error, created_at)
		VALUES (:target, :name, :status, :size_bytes, :error, :created_at)`, e)
	if err != nil {
		return fmt.Errorf("record backup: %w", err)
	}
	return nil
}

// RecentBackups lists the latest backup attempts, newest first.
func (r *SQLiteRepository) RecentBackups(ctx context.Context, limit int) ([]BackupLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []BackupLogEntry
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, target, name, status, size_bytes, error, created_at
		FROM backup_log ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	return out, nil
}

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")
