package store

import (
	"context"
	"sort"
	"sync"
)

// Commit records one batch commit made by a MemoryStore.
type Commit struct {
	Collection string
	Size       int
}

// MemoryStore is an in-process Store. It keeps a log of batch commits so
// tests can assert on persistence behavior.
type MemoryStore struct {
	mu        sync.RWMutex
	batchSize int
	data      map[string]map[string]map[string]any
	commits   []Commit
	failures  map[string]error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(batchSize int) *MemoryStore {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &MemoryStore{
		batchSize: batchSize,
		data:      make(map[string]map[string]map[string]any),
		failures:  make(map[string]error),
	}
}

// FailCollection makes every write to collection return err until cleared
// with a nil error.
func (m *MemoryStore) FailCollection(collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, collection)
		return
	}
	m.failures[collection] = err
}

// Commits returns the batch commits made so far.
func (m *MemoryStore) Commits() []Commit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Commit, len(m.commits))
	copy(out, m.commits)
	return out
}

// BatchUpsert implements Store.
func (m *MemoryStore) BatchUpsert(ctx context.Context, collection string, docs []Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[collection]; err != nil {
		return err
	}

	coll := m.collection(collection)
	for _, c := range chunk(lastWins(docs), m.batchSize) {
		for _, d := range c {
			coll[d.ID] = copyFields(d.Fields)
		}
		m.commits = append(m.commits, Commit{Collection: collection, Size: len(c)})
	}
	return nil
}

// Merge implements Store.
func (m *MemoryStore) Merge(ctx context.Context, collection, id string, set map[string]any, remove []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[collection]; err != nil {
		return err
	}

	coll := m.collection(collection)
	fields, ok := coll[id]
	if !ok {
		fields = make(map[string]any)
		coll[id] = fields
	}
	for k, v := range set {
		fields[k] = v
	}
	for _, k := range remove {
		delete(fields, k)
	}
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fields, ok := m.data[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Fields: copyFields(fields)}, nil
}

// List implements Store. Documents come back ordered by id.
func (m *MemoryStore) List(ctx context.Context, collection string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	coll := m.data[collection]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, Document{ID: id, Fields: copyFields(coll[id])})
	}
	return docs, nil
}

func (m *MemoryStore) collection(name string) map[string]map[string]any {
	coll, ok := m.data[name]
	if !ok {
		coll = make(map[string]map[string]any)
		m.data[name] = coll
	}
	return coll
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
