// ABOUTME: Store interface and query types for document persistence
// ABOUTME: Shared by the MongoDB, SQLite, and in-memory implementations

package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// IDField is the key under which the store-internal identifier is returned.
const IDField = "_id"

// DefaultLimit caps Find results when a Query does not set Limit.
const DefaultLimit = 20

// ErrInvalidQuery is returned for filters or sorts the store cannot express.
var ErrInvalidQuery = errors.New("invalid query")

// Document is a single stored record.
type Document map[string]any

// Filter is a conjunction of field equality conditions.
type Filter map[string]any

// SortField orders results by one field.
type SortField struct {
	Field string
	Desc  bool
}

// Query describes a Find call.
type Query struct {
	Filter     Filter
	Projection []string
	Sort       []SortField
	Limit      int
}

// EffectiveLimit returns Limit, or DefaultLimit when unset.
func (q Query) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

// Store persists documents in named collections.
type Store interface {
	// Insert stores docs and returns their ids in order. Empty input is a no-op.
	Insert(ctx context.Context, collection string, docs []Document) ([]string, error)
	InsertOne(ctx context.Context, collection string, doc Document) (string, error)
	// Find returns at most q.EffectiveLimit() documents ordered by q.Sort.
	Find(ctx context.Context, collection string, q Query) ([]Document, error)
	// Upsert updates the first document matching filter with the fields of doc,
	// or inserts filter merged with doc when nothing matches.
	Upsert(ctx context.Context, collection string, filter Filter, doc Document) (string, error)
	Close() error
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// validateQuery rejects field names that are not plain dotted identifiers.
func validateQuery(q Query) error {
	for field := range q.Filter {
		if !fieldPattern.MatchString(field) {
			return fmt.Errorf("%w: filter field %q", ErrInvalidQuery, field)
		}
	}
	for _, s := range q.Sort {
		if !fieldPattern.MatchString(s.Field) {
			return fmt.Errorf("%w: sort field %q", ErrInvalidQuery, s.Field)
		}
	}
	for _, f := range q.Projection {
		if !fieldPattern.MatchString(f) {
			return fmt.Errorf("%w: projection field %q", ErrInvalidQuery, f)
		}
	}
	return nil
}
