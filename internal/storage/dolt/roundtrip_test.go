package dolt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/types"
)

// exerciseStore runs the same round trip against any backend mode.
func exerciseStore(t *testing.T, store *DoltStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.UpsertProject(ctx, &types.Project{
		Name: "foo", Parent: "All-Projects", Config: map[string]string{"inherit.submit": "merge"},
	}))
	p, err := store.GetProject(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, "All-Projects", p.Parent)
	assert.Equal(t, "merge", p.Config["inherit.submit"])

	accountID, err := store.NextAccountID(ctx)
	require.NoError(t, err)
	assert.Greater(t, accountID, 1000000)
	require.NoError(t, store.CreateAccount(ctx, &types.Account{
		ID: accountID, Username: "jdoe", Email: "jdoe@example.com", Active: true, RegisteredAt: now,
	}))
	a, err := store.GetAccountByEmail(ctx, "JDOE@example.com")
	require.NoError(t, err)
	assert.Equal(t, accountID, a.ID)

	groupID, err := store.NextGroupID(ctx)
	require.NoError(t, err)
	require.NoError(t, store.InsertGroupName(ctx, "admins", groupID))
	err = store.InsertGroupName(ctx, "admins", groupID+1)
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey), "got %v", err)
	require.NoError(t, store.InsertGroup(ctx, &types.Group{ID: groupID, UUID: "uuid-1", Name: "admins", OwnerUUID: "uuid-1", CreatedAt: now}))
	require.NoError(t, store.AddGroupMembers(ctx, groupID, []int{accountID}))
	g, err := store.GetGroupByName(ctx, "admins")
	require.NoError(t, err)
	assert.Equal(t, "uuid-1", g.UUID)
	groups, err := store.GetGroupsByMember(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, []string{"uuid-1"}, groups)

	changeID, err := store.NextChangeID(ctx)
	require.NoError(t, err)
	require.NoError(t, store.InsertPatchSets(ctx, []*types.PatchSet{{
		ChangeID: changeID, Number: 1, Revision: "0123456789012345678901234567890123456789",
		UploaderID: accountID, Ref: "refs/changes/01/1/1", Parents: []string{"abc", "def"}, CreatedAt: now,
	}}))
	require.NoError(t, store.InsertChange(ctx, &types.Change{
		ID: changeID, Key: "I1", Project: "foo", Branch: "refs/heads/master", OwnerID: accountID,
		Subject: "Fix it", Status: types.StatusNew, CurrentPatchSet: 1, CreatedAt: now, UpdatedAt: now,
	}))
	c, err := store.FindChange(ctx, "foo", "refs/heads/master", "I1")
	require.NoError(t, err)
	assert.Equal(t, changeID, c.ID)
	ps, err := store.GetPatchSets(ctx, changeID)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, []string{"abc", "def"}, ps[0].Parents)

	require.NoError(t, store.AddHashtags(ctx, changeID, []string{"x", "x"}))
	tags, err := store.GetHashtags(ctx, changeID)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, tags)

	require.NoError(t, store.PutChangeDocument(ctx, &types.ChangeDocument{ChangeID: changeID, Project: "foo", Subject: "Fix it", IndexedAt: now}))
	doc, err := store.GetChangeDocument(ctx, changeID)
	require.NoError(t, err)
	assert.Equal(t, "Fix it", doc.Subject)

	_, err = store.GetChange(ctx, changeID+100)
	assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)

	require.NoError(t, store.Commit(ctx, "test import"))
}
