package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// LocalTarget keeps backups as files in a directory.
type LocalTarget struct {
	dir string
	now func() time.Time
}

func NewLocalTarget(dir string) (*LocalTarget, error) {
	if dir == "" {
		return nil, errors.New("backup directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	return &LocalTarget{dir: dir, now: time.Now}, nil
}

func (t *LocalTarget) Kind() Kind  { return KindLocal }
func (t *LocalTarget) Dir() string { return t.dir }

func (t *LocalTarget) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid backup name %q", name)
	}
	return filepath.Join(t.dir, name), nil
}

// Upload writes the file through a temporary file and rename.
func (t *LocalTarget) Upload(_ context.Context, name string, body []byte) (Object, error) {
	p, err := t.path(name)
	if err != nil {
		return Object{}, err
	}
	tmp, err := os.CreateTemp(t.dir, ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return Object{}, fmt.Errorf("write backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Object{}, fmt.Errorf("close backup: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return Object{}, fmt.Errorf("move backup into place: %w", err)
	}
	return Object{ID: name, Name: name, Size: int64(len(body)), ModifiedAt: t.now()}, nil
}

func (t *LocalTarget) Download(_ context.Context, name string) ([]byte, error) {
	p, err := t.path(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return b, err
}

// List returns the backup files, newest first.
func (t *LocalTarget) List(_ context.Context) ([]Object, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}
	var out []Object
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Object{ID: e.Name(), Name: e.Name(), Size: info.Size(), ModifiedAt: info.ModTime()})
	}
	slices.SortFunc(out, func(a, b Object) int { return b.ModifiedAt.Compare(a.ModifiedAt) })
	return out, nil
}

func (t *LocalTarget) Delete(_ context.Context, id string) error {
	p, err := t.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return err
	}
	return nil
}

// Prune removes files last modified more than olderThan ago.
func (t *LocalTarget) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	objs, err := t.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := t.now().Add(-olderThan)
	removed := 0
	for _, o := range objs {
		if !o.ModifiedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(t.dir, o.Name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", o.Name, err)
		}
		removed++
	}
	return removed, nil
}
