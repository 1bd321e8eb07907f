// ABOUTME: MessageDAO reads and writes messages through the cached store
// ABOUTME: Keyed by message id, run id, and run id plus role

package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/tallkotte/internal/cache"
	"github.com/2389/tallkotte/internal/cachedstore"
	"github.com/2389/tallkotte/internal/docstore"
)

// MessageDAO is the data access object for the messages collection.
type MessageDAO struct {
	store *cachedstore.Store[Message]
}

// NewMessageDAO creates a MessageDAO.
func NewMessageDAO(docs docstore.Store, c cache.Store, logger *slog.Logger) *MessageDAO {
	return &MessageDAO{
		store: cachedstore.New(CollectionMessages, MessageConverter, docs, c, logger),
	}
}

func runKey(runID string) string {
	return "run:" + runID
}

func runRoleKey(runID string, role Role) string {
	return "run:" + runID + ":role:" + string(role)
}

// Save persists messages. Every message must already carry its run id. A single
// message is cached by id; larger batches are cached per run and role.
func (d *MessageDAO) Save(ctx context.Context, messages []Message) ([]string, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	for _, m := range messages {
		if m.RunID == "" {
			return nil, fmt.Errorf("%w: message %s has no run id", ErrValidation, m.ID)
		}
	}

	if len(messages) == 1 {
		id, err := d.store.WriteOne(ctx, messages[0], "")
		if err != nil {
			return nil, fmt.Errorf("%w: saving message %s: %w", ErrStore, messages[0].ID, err)
		}
		return []string{id}, nil
	}

	var ids []string
	for _, group := range groupByRunAndRole(messages) {
		key := runRoleKey(group[0].RunID, group[0].Role)
		written, err := d.store.Write(ctx, key, group)
		if err != nil {
			return ids, fmt.Errorf("%w: saving %d messages for run %s: %w", ErrStore, len(group), group[0].RunID, err)
		}
		ids = append(ids, written...)
	}
	return ids, nil
}

// groupByRunAndRole splits messages into contiguous-by-first-appearance groups.
func groupByRunAndRole(messages []Message) [][]Message {
	var order []string
	groups := make(map[string][]Message)
	for _, m := range messages {
		k := runRoleKey(m.RunID, m.Role)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], m)
	}
	out := make([][]Message, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out
}

// Find queries the document store directly.
func (d *MessageDAO) Find(ctx context.Context, q docstore.Query) ([]Message, error) {
	return d.store.Find(ctx, q)
}

// FindByID returns one message or ErrNotFound.
func (d *MessageDAO) FindByID(ctx context.Context, id string) (Message, error) {
	r, err := d.store.Read(ctx, id, docstore.Query{Filter: docstore.Filter{"id": id}, Limit: 1})
	if err != nil {
		return Message{}, err
	}
	m, ok := r.First()
	if !ok {
		return Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return m, nil
}

// FindByRunID returns every message tied to a run, oldest first.
func (d *MessageDAO) FindByRunID(ctx context.Context, runID string) ([]Message, error) {
	r, err := d.store.Read(ctx, runKey(runID), docstore.Query{
		Filter: docstore.Filter{"run_id": runID},
		Sort:   []docstore.SortField{{Field: "created_at"}},
	})
	if err != nil {
		return nil, err
	}
	return r.All(), nil
}

// FindByRunIDAndRole returns a run's messages authored by role, oldest first.
func (d *MessageDAO) FindByRunIDAndRole(ctx context.Context, runID string, role Role) ([]Message, error) {
	r, err := d.store.Read(ctx, runRoleKey(runID, role), docstore.Query{
		Filter: docstore.Filter{"run_id": runID, "role": string(role)},
		Sort:   []docstore.SortField{{Field: "created_at"}},
	})
	if err != nil {
		return nil, err
	}
	return r.All(), nil
}

// Exists reports whether a message with id is persisted, asking the document store.
func (d *MessageDAO) Exists(ctx context.Context, id string) (bool, error) {
	found, err := d.store.Find(ctx, docstore.Query{
		Filter:     docstore.Filter{"id": id},
		Projection: []string{"id"},
		Limit:      1,
	})
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}
