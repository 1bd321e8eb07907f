// ABOUTME: Shared helpers for store tests
// ABOUTME: Builds DAOs over in-memory document and cache stores

package store

import (
	"testing"
	"time"

	"github.com/2389/tallkotte/internal/cache"
	"github.com/2389/tallkotte/internal/docstore"
)

type testDeps struct {
	docs  *docstore.MemoryStore
	cache *cache.MemoryStore
}

func newTestDeps(t *testing.T) testDeps {
	t.Helper()
	c := cache.NewMemoryStore(time.Hour, 1000)
	t.Cleanup(func() { c.Close() })
	return testDeps{docs: docstore.NewMemoryStore(), cache: c}
}
