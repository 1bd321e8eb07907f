// ABOUTME: Per-entity converters between domain structs and stored documents
// ABOUTME: Each converter round-trips through the entity's JSON tags

package store

import (
	"encoding/json"
	"fmt"

	"github.com/2389/tallkotte/internal/cachedstore"
	"github.com/2389/tallkotte/internal/docstore"
)

type jsonConverter[T any] struct {
	kind string
	key  func(T) string
}

func (c jsonConverter[T]) Kind() string { return c.kind }

func (c jsonConverter[T]) FromDocument(doc docstore.Document) (T, error) {
	var v T
	data, err := json.Marshal(doc)
	if err != nil {
		return v, fmt.Errorf("encoding %s document: %w", c.kind, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decoding %s document: %w", c.kind, err)
	}
	return v, nil
}

func (c jsonConverter[T]) ToDocument(v T) (docstore.Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", c.kind, err)
	}
	var doc docstore.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", c.kind, err)
	}
	return doc, nil
}

func (c jsonConverter[T]) Key(v T) string { return c.key(v) }

// MessageConverter converts Message values.
var MessageConverter cachedstore.Converter[Message] = jsonConverter[Message]{
	kind: "message",
	key:  func(m Message) string { return m.ID },
}

// ThreadConverter converts Thread values.
var ThreadConverter cachedstore.Converter[Thread] = jsonConverter[Thread]{
	kind: "thread",
	key:  func(t Thread) string { return t.ID },
}

// AssistantConverter converts Assistant values.
var AssistantConverter cachedstore.Converter[Assistant] = jsonConverter[Assistant]{
	kind: "assistant",
	key:  func(a Assistant) string { return a.ID },
}
