// ABOUTME: Cache Store interface, key namespacing, and the document codec
// ABOUTME: Encodes one document as a JSON object and a list as a JSON array

package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/tallkotte/internal/docstore"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is a byte-level key-value cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Key namespaces an id under a collection.
func Key(collection, id string) string {
	return collection + ":" + id
}

// GetDocuments reads a cached document or document list. A miss is NotFound with a nil error.
func GetDocuments(ctx context.Context, s Store, key string) (docstore.Result[docstore.Document], error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return docstore.NotFound[docstore.Document](), nil
	}
	if err != nil {
		return docstore.NotFound[docstore.Document](), err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var docs []docstore.Document
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return docstore.NotFound[docstore.Document](), fmt.Errorf("decoding cached list %s: %w", key, err)
		}
		return docstore.FoundMany(docs), nil
	}

	var doc docstore.Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return docstore.NotFound[docstore.Document](), fmt.Errorf("decoding cached document %s: %w", key, err)
	}
	if doc == nil {
		return docstore.NotFound[docstore.Document](), nil
	}
	return docstore.Found(doc), nil
}

// PutDocuments caches a result under key, keeping its one/many shape.
// Store-internal ids are dropped. NotFound results are not cached.
func PutDocuments(ctx context.Context, s Store, key string, r docstore.Result[docstore.Document]) error {
	var payload any
	switch r.Shape() {
	case docstore.ShapeNone:
		return nil
	case docstore.ShapeOne:
		doc, _ := r.First()
		payload = stripID(doc)
	case docstore.ShapeMany:
		docs := make([]docstore.Document, 0, len(r.All()))
		for _, d := range r.All() {
			docs = append(docs, stripID(d))
		}
		payload = docs
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

func stripID(doc docstore.Document) docstore.Document {
	if _, ok := doc[docstore.IDField]; !ok {
		return doc
	}
	out := make(docstore.Document, len(doc))
	for k, v := range doc {
		if k != docstore.IDField {
			out[k] = v
		}
	}
	return out
}
