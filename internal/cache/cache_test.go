// ABOUTME: Tests for the document codec layered over cache stores
// ABOUTME: Checks that one/many shapes round-trip and internal ids are dropped

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tallkotte/internal/docstore"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "messages:msg_1", Key("messages", "msg_1"))
}

func TestDocuments_Miss(t *testing.T) {
	c := NewMemoryStore(time.Minute, 10)
	defer c.Close()

	r, err := GetDocuments(context.Background(), c, "messages:none")
	require.NoError(t, err)
	assert.False(t, r.Found())
}

func TestDocuments_OneShape(t *testing.T) {
	c := NewMemoryStore(time.Minute, 10)
	defer c.Close()
	ctx := context.Background()

	doc := docstore.Document{"id": "msg_1", docstore.IDField: "internal", "role": "user"}
	require.NoError(t, PutDocuments(ctx, c, "messages:msg_1", docstore.Found(doc)))

	raw, err := c.Get(ctx, "messages:msg_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"msg_1","role":"user"}`, string(raw))

	r, err := GetDocuments(ctx, c, "messages:msg_1")
	require.NoError(t, err)
	assert.Equal(t, docstore.ShapeOne, r.Shape())
	got, _ := r.First()
	assert.Equal(t, "msg_1", got["id"])
	assert.NotContains(t, got, docstore.IDField)
}

func TestDocuments_ManyShape(t *testing.T) {
	c := NewMemoryStore(time.Minute, 10)
	defer c.Close()
	ctx := context.Background()

	docs := []docstore.Document{{"id": "a"}, {"id": "b", docstore.IDField: "x"}}
	require.NoError(t, PutDocuments(ctx, c, "messages:run_1", docstore.FoundMany(docs)))

	r, err := GetDocuments(ctx, c, "messages:run_1")
	require.NoError(t, err)
	assert.Equal(t, docstore.ShapeMany, r.Shape())
	require.Len(t, r.All(), 2)
	assert.Equal(t, "b", r.All()[1]["id"])
	assert.NotContains(t, r.All()[1], docstore.IDField)
}

func TestDocuments_NotFoundIsNotCached(t *testing.T) {
	c := NewMemoryStore(time.Minute, 10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, PutDocuments(ctx, c, "k", docstore.NotFound[docstore.Document]()))
	assert.Equal(t, 0, c.Len())
}

func TestDocuments_CorruptEntry(t *testing.T) {
	c := NewMemoryStore(time.Minute, 10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("{not json")))
	_, err := GetDocuments(ctx, c, "k")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrMiss))
}
