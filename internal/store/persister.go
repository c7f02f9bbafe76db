package store

import (
	"context"
	"fmt"
	"sync"

	"ispledger/internal/core"
	"ispledger/internal/schema"
)

// DocumentStore is raw key/value storage for serialized state documents.
// Every save bumps the document's revision. SaveDocument fails with an error
// wrapping core.ErrStale when the stored revision is not expect, unless
// expect is negative.
type DocumentStore interface {
	DocumentRevision(ctx context.Context, key string) (int64, error)
	LoadDocument(ctx context.Context, key string) ([]byte, int64, error)
	SaveDocument(ctx context.Context, key string, version int, body []byte, expect int64) (int64, error)
}

// DocumentPersister stores the state as one versioned JSON document,
// upgrading older documents on load.
type DocumentPersister struct {
	docs   DocumentStore
	loader *schema.Loader
	key    string
}

func NewDocumentPersister(docs DocumentStore, loader *schema.Loader) *DocumentPersister {
	if loader == nil {
		loader = schema.NewLoader(schema.Env{})
	}
	return &DocumentPersister{docs: docs, loader: loader, key: core.StorageKey}
}

func (p *DocumentPersister) Load(ctx context.Context) (core.GlobalState, int64, error) {
	body, rev, err := p.docs.LoadDocument(ctx, p.key)
	if err != nil {
		return core.GlobalState{}, 0, err
	}
	state, err := p.loader.Load(body)
	if err != nil {
		return core.GlobalState{}, 0, fmt.Errorf("load %s: %w", p.key, err)
	}
	return state, rev, nil
}

func (p *DocumentPersister) Revision(ctx context.Context) (int64, error) {
	return p.docs.DocumentRevision(ctx, p.key)
}

func (p *DocumentPersister) Save(ctx context.Context, state core.GlobalState, expect int64) (int64, error) {
	body, err := schema.Encode(state)
	if err != nil {
		return 0, fmt.Errorf("encode state: %w", err)
	}
	return p.docs.SaveDocument(ctx, p.key, schema.CurrentVersion, body, expect)
}

// MemoryDocuments is an in-process DocumentStore. Stores opened on the same
// MemoryDocuments behave like processes sharing one database.
type MemoryDocuments struct {
	mu    sync.Mutex
	docs  map[string][]byte
	revs  map[string]int64
	saves int
	Fail  error // returned by SaveDocument when set
}

func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{docs: make(map[string][]byte), revs: make(map[string]int64)}
}

func (m *MemoryDocuments) DocumentRevision(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revs[key], nil
}

func (m *MemoryDocuments) LoadDocument(_ context.Context, key string) ([]byte, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.docs[key]...), m.revs[key], nil
}

func (m *MemoryDocuments) SaveDocument(_ context.Context, key string, _ int, body []byte, expect int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return 0, m.Fail
	}
	if expect >= 0 && m.revs[key] != expect {
		return 0, fmt.Errorf("save %s at revision %d (stored %d): %w", key, expect, m.revs[key], core.ErrStale)
	}
	m.docs[key] = append([]byte(nil), body...)
	m.revs[key]++
	m.saves++
	return m.revs[key], nil
}

// Saves reports how many successful saves happened.
func (m *MemoryDocuments) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
