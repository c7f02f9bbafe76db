// Package backup copies the state document to and from backup targets.
package backup

import (
	"context"
	"errors"
	"time"
)

// DriveFileName is the single backup document kept in cloud targets.
const DriveFileName = "kams_db_backup.json"

// DefaultRetention is how long dated local backups are kept.
const DefaultRetention = 10 * 24 * time.Hour

var ErrNotFound = errors.New("backup not found")

// Object describes a stored backup.
type Object struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Target is a place backups are written to. Uploading an existing name
// replaces it.
type Target interface {
	Kind() Kind
	Upload(ctx context.Context, name string, body []byte) (Object, error)
	Download(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]Object, error)
	Delete(ctx context.Context, id string) error
}

// Pruner is implemented by targets that expire old backups.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int, error)
}

// LocalFileName is the dated name used for local backups.
func LocalFileName(day time.Time) string {
	return "KAMS_Backup_" + day.Format(time.DateOnly) + ".json"
}
