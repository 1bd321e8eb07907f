// ABOUTME: Generic read-through/write-through store over a cache and a document store
// ABOUTME: Reads fail open to the document store; writes persist first, then refresh the cache

// Package cachedstore layers a cache-aside policy over docstore and cache for
// one entity type at a time.
package cachedstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/tallkotte/internal/cache"
	"github.com/2389/tallkotte/internal/docstore"
)

// Converter maps an entity type to and from stored documents.
type Converter[T any] interface {
	// Kind names the entity for logs.
	Kind() string
	FromDocument(doc docstore.Document) (T, error)
	ToDocument(v T) (docstore.Document, error)
	// Key returns the entity's identity, used as the default cache id.
	Key(v T) string
}

// Store is a cache-aside store for values of type T in one collection.
type Store[T any] struct {
	collection string
	conv       Converter[T]
	docs       docstore.Store
	cache      cache.Store
	logger     *slog.Logger
}

// New builds a Store for collection.
func New[T any](collection string, conv Converter[T], docs docstore.Store, c cache.Store, logger *slog.Logger) *Store[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store[T]{
		collection: collection,
		conv:       conv,
		docs:       docs,
		cache:      c,
		logger:     logger.With("component", "cachedstore", "collection", collection),
	}
}

// Collection returns the collection name.
func (s *Store[T]) Collection() string { return s.collection }

// CacheKey namespaces id under the store's collection.
func (s *Store[T]) CacheKey(id string) string {
	return cache.Key(s.collection, id)
}

// Read returns the cached value under key, or runs onMiss against the document
// store and caches what it finds. An empty query result is NotFound, not an error.
func (s *Store[T]) Read(ctx context.Context, key string, onMiss docstore.Query) (docstore.Result[T], error) {
	cacheKey := s.CacheKey(key)

	cached, err := cache.GetDocuments(ctx, s.cache, cacheKey)
	if err != nil {
		s.logger.Warn("cache read failed, falling back to store", "key", cacheKey, "error", err)
	} else if cached.Found() {
		return docstore.Map(cached, s.conv.FromDocument)
	}

	found, err := s.docs.Find(ctx, s.collection, onMiss)
	if err != nil {
		return docstore.NotFound[T](), fmt.Errorf("finding %s: %w", s.conv.Kind(), err)
	}
	if len(found) == 0 {
		return docstore.NotFound[T](), nil
	}

	result := docstore.FoundMany(found)
	if err := cache.PutDocuments(ctx, s.cache, cacheKey, result); err != nil {
		s.logger.Warn("cache populate failed", "key", cacheKey, "error", err)
	}
	return docstore.Map(result, s.conv.FromDocument)
}

// Write persists values, then overwrites the cache entry for key with them.
// A single value is cached in the one-document shape.
func (s *Store[T]) Write(ctx context.Context, key string, values []T) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	docs, err := s.toDocuments(values)
	if err != nil {
		return nil, err
	}

	ids, err := s.docs.Insert(ctx, s.collection, docs)
	if err != nil {
		return nil, fmt.Errorf("inserting %s: %w", s.conv.Kind(), err)
	}

	s.refresh(ctx, key, docs)
	return ids, nil
}

// WriteOne persists a single value and caches it under key, or under the
// value's own identity when key is empty.
func (s *Store[T]) WriteOne(ctx context.Context, value T, key string) (string, error) {
	if key == "" {
		key = s.conv.Key(value)
	}
	doc, err := s.conv.ToDocument(value)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", s.conv.Kind(), err)
	}

	id, err := s.docs.InsertOne(ctx, s.collection, doc)
	if err != nil {
		return "", fmt.Errorf("inserting %s: %w", s.conv.Kind(), err)
	}

	s.refresh(ctx, key, []docstore.Document{doc})
	return id, nil
}

// Upsert updates or inserts value in the document store using q.Filter and
// caches value under key whether the store inserted or updated.
func (s *Store[T]) Upsert(ctx context.Context, key string, value T, q docstore.Query) (string, error) {
	doc, err := s.conv.ToDocument(value)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", s.conv.Kind(), err)
	}

	id, err := s.docs.Upsert(ctx, s.collection, q.Filter, doc)
	if err != nil {
		return "", fmt.Errorf("upserting %s: %w", s.conv.Kind(), err)
	}

	s.refresh(ctx, key, []docstore.Document{doc})
	return id, nil
}

// Find queries the document store directly, bypassing the cache.
func (s *Store[T]) Find(ctx context.Context, q docstore.Query) ([]T, error) {
	docs, err := s.docs.Find(ctx, s.collection, q)
	if err != nil {
		return nil, fmt.Errorf("finding %s: %w", s.conv.Kind(), err)
	}
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := s.conv.FromDocument(d)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", s.conv.Kind(), err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store[T]) refresh(ctx context.Context, key string, docs []docstore.Document) {
	cacheKey := s.CacheKey(key)
	result := docstore.FoundMany(docs)
	if len(docs) == 1 {
		result = docstore.Found(docs[0])
	}
	if err := cache.PutDocuments(ctx, s.cache, cacheKey, result); err != nil {
		s.logger.Warn("cache write failed", "key", cacheKey, "error", err)
	}
}

func (s *Store[T]) toDocuments(values []T) ([]docstore.Document, error) {
	docs := make([]docstore.Document, 0, len(values))
	for _, v := range values {
		d, err := s.conv.ToDocument(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", s.conv.Kind(), err)
		}
		docs = append(docs, d)
	}
	return docs, nil
}
