// ABOUTME: AssistantDAO upserts the assistant document keyed by id
// ABOUTME: The cache always holds the last saved value

package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/tallkotte/internal/cache"
	"github.com/2389/tallkotte/internal/cachedstore"
	"github.com/2389/tallkotte/internal/docstore"
)

// AssistantDAO is the data access object for the assistants collection.
type AssistantDAO struct {
	store *cachedstore.Store[Assistant]
}

// NewAssistantDAO creates an AssistantDAO.
func NewAssistantDAO(docs docstore.Store, c cache.Store, logger *slog.Logger) *AssistantDAO {
	return &AssistantDAO{
		store: cachedstore.New(CollectionAssistants, AssistantConverter, docs, c, logger),
	}
}

// Save inserts or updates the assistant.
func (d *AssistantDAO) Save(ctx context.Context, a Assistant) error {
	if a.ID == "" {
		return fmt.Errorf("%w: assistant id is required", ErrValidation)
	}
	_, err := d.store.Upsert(ctx, a.ID, a, docstore.Query{Filter: docstore.Filter{"id": a.ID}})
	if err != nil {
		return fmt.Errorf("%w: saving assistant %s: %w", ErrStore, a.ID, err)
	}
	return nil
}

// Get returns an assistant or ErrNotFound.
func (d *AssistantDAO) Get(ctx context.Context, id string) (Assistant, error) {
	r, err := d.store.Read(ctx, id, docstore.Query{Filter: docstore.Filter{"id": id}, Limit: 1})
	if err != nil {
		return Assistant{}, err
	}
	a, ok := r.First()
	if !ok {
		return Assistant{}, fmt.Errorf("assistant %s: %w", id, ErrNotFound)
	}
	return a, nil
}

// FindByName returns the first persisted assistant with name, or ErrNotFound.
func (d *AssistantDAO) FindByName(ctx context.Context, name string) (Assistant, error) {
	found, err := d.store.Find(ctx, docstore.Query{Filter: docstore.Filter{"name": name}, Limit: 1})
	if err != nil {
		return Assistant{}, err
	}
	if len(found) == 0 {
		return Assistant{}, fmt.Errorf("assistant named %q: %w", name, ErrNotFound)
	}
	return found[0], nil
}
