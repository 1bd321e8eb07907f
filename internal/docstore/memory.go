// ABOUTME: In-memory Store implementation for tests and ephemeral deployments
// ABOUTME: Keeps collections as insertion-ordered slices guarded by a mutex

package docstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store. Documents are copied on the way in and out.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Document
	finds       map[string]int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string][]Document),
		finds:       make(map[string]int),
	}
}

// Insert stores docs with fresh ids.
func (m *MemoryStore) Insert(ctx context.Context, collection string, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	prepared := make([]Document, 0, len(docs))
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		d, err := normalize(doc)
		if err != nil {
			return nil, err
		}
		id := uuid.New().String()
		d[IDField] = id
		prepared = append(prepared, d)
		ids = append(ids, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append(m.collections[collection], prepared...)
	return ids, nil
}

// InsertOne stores a single document.
func (m *MemoryStore) InsertOne(ctx context.Context, collection string, doc Document) (string, error) {
	ids, err := m.Insert(ctx, collection, []Document{doc})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// Find returns matching documents.
func (m *MemoryStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	filter, err := normalize(q.Filter)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.finds[collection]++
	var matched []Document
	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			matched = append(matched, doc)
		}
	}
	m.mu.Unlock()

	sortDocuments(matched, q.Sort)
	if limit := q.EffectiveLimit(); len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]Document, 0, len(matched))
	for _, doc := range matched {
		c, err := normalize(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, project(c, q.Projection))
	}
	return out, nil
}

// Upsert updates the first match in place or inserts filter merged with doc.
func (m *MemoryStore) Upsert(ctx context.Context, collection string, filter Filter, doc Document) (string, error) {
	if err := validateQuery(Query{Filter: filter}); err != nil {
		return "", err
	}
	f, err := normalize(filter)
	if err != nil {
		return "", err
	}
	update, err := normalize(doc)
	if err != nil {
		return "", err
	}
	delete(update, IDField)

	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.collections[collection]
	for i, existing := range docs {
		if matches(existing, f) {
			docs[i] = merge(existing, update)
			id, _ := existing[IDField].(string)
			return id, nil
		}
	}

	inserted := merge(filterFields(f), update)
	id := uuid.New().String()
	inserted[IDField] = id
	m.collections[collection] = append(docs, inserted)
	return id, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// Count returns the number of documents in a collection.
func (m *MemoryStore) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

// FindCalls returns how many times Find has hit a collection.
func (m *MemoryStore) FindCalls(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.finds[collection]
}
