// ABOUTME: Tests for MessageDAO persistence and cached lookups
// ABOUTME: Covers run/role keys, validation, and store failures

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tallkotte/internal/docstore"
)

func TestMessageDAO_SaveAndFindByID(t *testing.T) {
	deps := newTestDeps(t)
	dao := NewMessageDAO(deps.docs, deps.cache, nil)
	ctx := context.Background()

	msg := Message{ID: "msg_1", Role: RoleUser, RunID: "run_1", ThreadID: "thread_1", Content: []string{"Format my resume"}, CreatedAt: 100}
	ids, err := dao.Save(ctx, []Message{msg})
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	got, err := dao.FindByID(ctx, "msg_1")
	require.NoError(t, err)
	assert.Equal(t, msg, got)
	assert.Equal(t, 0, deps.docs.FindCalls(CollectionMessages), "single save is cached by id")
}

func TestMessageDAO_FindByIDNotFound(t *testing.T) {
	deps := newTestDeps(t)
	dao := NewMessageDAO(deps.docs, deps.cache, nil)

	_, err := dao.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageDAO_SaveRequiresRunID(t *testing.T) {
	deps := newTestDeps(t)
	dao := NewMessageDAO(deps.docs, deps.cache, nil)

	_, err := dao.Save(context.Background(), []Message{{ID: "msg_1", Role: RoleUser}})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, deps.docs.Count(CollectionMessages))
}

func TestMessageDAO_SaveEmpty(t *testing.T) {
	deps := newTestDeps(t)
	dao := NewMessageDAO(deps.docs, deps.cache, nil)

	ids, err := dao.Save(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMessageDAO_BatchCachedByRunAndRole(t *testing.T) {
	deps := newTestDeps(t)
	dao := NewMessageDAO(deps.docs, deps.cache, nil)
	ctx := context.Background()

	batch := []Message{
		{ID: "a1", Role: RoleAssistant, RunID: "run_1", CreatedAt: 1, Content: []string{"one"}},
		{ID: "a2", Role: RoleAssistant, RunID: "run_1", CreatedAt: 2, Content: []string{"two"}},
	}
	_, err := dao.Save(ctx, batch)
	require.NoError(t, err)

	got, err := dao.FindByRunIDAndRole(ctx, "run_1", RoleAssistant)
	require.NoError(t, err)
	assert.Equal(t, batch, got)
	assert.Equal(t, 0, deps.docs.FindCalls(CollectionMessages))
}

func TestMessageDAO_FindByRunIDAndRoleHonoursRole(t *testing.T) {
	deps := newTestDeps(t)
	dao := NewMessageDAO(deps.docs, deps.cache, nil)
	ctx := context.Background()

	_, err := dao.Save(ctx, []Message{{ID: "u1", Role: RoleUser, RunID: "run_1", CreatedAt: 1}})
	require.NoError(t, err)
	_, err = dao.Save(ctx, []Message{{ID: "a1", Role: RoleAssistant, RunID: "run_1", CreatedAt: 2}})
	require.NoError(t, err)

	users, err := dao.FindByRunIDAndRole(ctx, "run_1", RoleUser)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].ID)

	assistants, err := dao.FindByRunIDAndRole(ctx, "run_1", RoleAssistant)
	require.NoError(t, err)
	require.Len(t, assistants, 1)
	assert.Equal(t, "a1", assistants[0].ID)

	all, err := dao.FindByRunID(ctx, "run_1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "u1", all[0].ID)
}

func TestMessageDAO_FindByRunIDAndRoleEmpty(t *testing.T) {
	deps := newTestDeps(t)
	dao := NewMessageDAO(deps.docs, deps.cache, nil)

	got, err := dao.FindByRunIDAndRole(context.Background(), "run_x", RoleAssistant)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMessageDAO_Exists(t *testing.T) {
	deps := newTestDeps(t)
	dao := NewMessageDAO(deps.docs, deps.cache, nil)
	ctx := context.Background()

	_, err := dao.Save(ctx, []Message{{ID: "m1", Role: RoleUser, RunID: "r"}})
	require.NoError(t, err)

	ok, err := dao.Exists(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dao.Exists(ctx, "m2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMessageDAO_FindPassesQueryThrough(t *testing.T) {
	deps := newTestDeps(t)
	dao := NewMessageDAO(deps.docs, deps.cache, nil)
	ctx := context.Background()

	_, err := dao.Save(ctx, []Message{
		{ID: "m1", Role: RoleUser, RunID: "r1", ThreadID: "t1", CreatedAt: 1},
		{ID: "m2", Role: RoleUser, RunID: "r2", ThreadID: "t1", CreatedAt: 2},
		{ID: "m3", Role: RoleUser, RunID: "r3", ThreadID: "t2", CreatedAt: 3},
	})
	require.NoError(t, err)

	got, err := dao.Find(ctx, docstore.Query{
		Filter: docstore.Filter{"thread_id": "t1"},
		Sort:   []docstore.SortField{{Field: "created_at", Desc: true}},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m2", got[0].ID)
}

type failingDocs struct {
	*docstore.MemoryStore
}

func (failingDocs) InsertOne(context.Context, string, docstore.Document) (string, error) {
	return "", errors.New("disk full")
}

func (failingDocs) Insert(context.Context, string, []docstore.Document) ([]string, error) {
	return nil, errors.New("disk full")
}

func TestMessageDAO_SaveWrapsStoreErrors(t *testing.T) {
	deps := newTestDeps(t)
	dao := NewMessageDAO(failingDocs{deps.docs}, deps.cache, nil)
	ctx := context.Background()

	_, err := dao.Save(ctx, []Message{{ID: "m1", Role: RoleUser, RunID: "r"}})
	assert.ErrorIs(t, err, ErrStore)

	_, err = dao.Save(ctx, []Message{{ID: "m1", Role: RoleUser, RunID: "r"}, {ID: "m2", Role: RoleUser, RunID: "r"}})
	assert.ErrorIs(t, err, ErrStore)
	assert.Equal(t, 0, deps.cache.Len(), "failed writes leave the cache alone")
}
