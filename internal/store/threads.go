// ABOUTME: ThreadDAO persists threads and lists them per assistant
// ABOUTME: Threads are immutable once saved, so reads cache indefinitely

package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/tallkotte/internal/cache"
	"github.com/2389/tallkotte/internal/cachedstore"
	"github.com/2389/tallkotte/internal/docstore"
)

// maxThreadsPerAssistant bounds IDsByAssistant.
const maxThreadsPerAssistant = 1000

// ThreadDAO is the data access object for the threads collection.
type ThreadDAO struct {
	store *cachedstore.Store[Thread]
}

// NewThreadDAO creates a ThreadDAO.
func NewThreadDAO(docs docstore.Store, c cache.Store, logger *slog.Logger) *ThreadDAO {
	return &ThreadDAO{
		store: cachedstore.New(CollectionThreads, ThreadConverter, docs, c, logger),
	}
}

// Save persists a thread.
func (d *ThreadDAO) Save(ctx context.Context, t Thread) error {
	if t.ID == "" {
		return fmt.Errorf("%w: thread id is required", ErrValidation)
	}
	if _, err := d.store.WriteOne(ctx, t, ""); err != nil {
		return fmt.Errorf("%w: saving thread %s: %w", ErrStore, t.ID, err)
	}
	return nil
}

// Get returns a thread or ErrNotFound.
func (d *ThreadDAO) Get(ctx context.Context, id string) (Thread, error) {
	r, err := d.store.Read(ctx, id, docstore.Query{Filter: docstore.Filter{"id": id}, Limit: 1})
	if err != nil {
		return Thread{}, err
	}
	t, ok := r.First()
	if !ok {
		return Thread{}, fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}
	return t, nil
}

// IDsByAssistant lists an assistant's thread ids, oldest first.
func (d *ThreadDAO) IDsByAssistant(ctx context.Context, assistantID string) ([]string, error) {
	threads, err := d.store.Find(ctx, docstore.Query{
		Filter:     docstore.Filter{"assistant_id": assistantID},
		Projection: []string{"id"},
		Sort:       []docstore.SortField{{Field: "created_at"}},
		Limit:      maxThreadsPerAssistant,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(threads))
	for _, t := range threads {
		ids = append(ids, t.ID)
	}
	return ids, nil
}
