package backup

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryTarget keeps backups in process memory.
type MemoryTarget struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	now     func() time.Time
	Fail    error // returned by Upload when set
}

type memoryObject struct {
	body []byte
	at   time.Time
}

func NewMemoryTarget() *MemoryTarget {
	return &MemoryTarget{objects: make(map[string]memoryObject), now: time.Now}
}

func (m *MemoryTarget) Kind() Kind { return KindMemory }

func (m *MemoryTarget) Upload(_ context.Context, name string, body []byte) (Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return Object{}, m.Fail
	}
	at := m.now()
	m.objects[name] = memoryObject{body: slices.Clone(body), at: at}
	return Object{ID: name, Name: name, Size: int64(len(body)), ModifiedAt: at}, nil
}

func (m *MemoryTarget) Download(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return slices.Clone(o.body), nil
}

func (m *MemoryTarget) List(_ context.Context) ([]Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Object, 0, len(m.objects))
	for name, o := range m.objects {
		out = append(out, Object{ID: name, Name: name, Size: int64(len(o.body)), ModifiedAt: o.at})
	}
	slices.SortFunc(out, func(a, b Object) int {
		if c := b.ModifiedAt.Compare(a.ModifiedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (m *MemoryTarget) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	delete(m.objects, id)
	return nil
}
