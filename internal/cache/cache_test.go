package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/storage/memory"
	"github.com/steveyegge/gimport/internal/types"
)

// countingStore counts the lookups that reach the backing store.
type countingStore struct {
	storage.Storage
	calls map[string]int
}

func (c *countingStore) GetAccount(ctx context.Context, id int) (*types.Account, error) {
	c.calls["account"]++
	return c.Storage.GetAccount(ctx, id)
}

func (c *countingStore) GetGroupByUUID(ctx context.Context, uuid string) (*types.Group, error) {
	c.calls["group"]++
	return c.Storage.GetGroupByUUID(ctx, uuid)
}

func (c *countingStore) GetGroupsByMember(ctx context.Context, accountID int) ([]string, error) {
	c.calls["member"]++
	return c.Storage.GetGroupsByMember(ctx, accountID)
}

func newTestStore(t *testing.T) (*Store, *countingStore) {
	t.Helper()
	backing := &countingStore{Storage: memory.New(), calls: map[string]int{}}
	t.Cleanup(func() { _ = backing.Close() })
	return Wrap(backing, 16), backing
}

func TestAccountReadThrough(t *testing.T) {
	s, backing := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateAccount(ctx, &types.Account{ID: 7, Username: "jdoe", Email: "JDoe@example.com"}))

	for i := 0; i < 3; i++ {
		a, err := s.GetAccount(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "jdoe", a.Username)
	}
	assert.Equal(t, 1, backing.calls["account"])

	a, err := s.GetAccountByEmail(ctx, "jdoe@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, 7, a.ID)

	s.EvictAccount(a)
	_, err = s.GetAccount(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls["account"])
}

func TestMissesAreNotCached(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetGroupByName(ctx, "devs")
	require.True(t, errors.Is(err, storage.ErrNotFound))

	require.NoError(t, s.InsertGroupName(ctx, "devs", 1))
	require.NoError(t, s.InsertGroup(ctx, &types.Group{ID: 1, UUID: "u1", Name: "devs"}))

	g, err := s.GetGroupByName(ctx, "devs")
	require.NoError(t, err)
	assert.Equal(t, "u1", g.UUID)
}

func TestUpdateGroupEvicts(t *testing.T) {
	s, backing := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertGroupName(ctx, "devs", 1))
	require.NoError(t, s.InsertGroup(ctx, &types.Group{ID: 1, UUID: "u1", Name: "devs", OwnerUUID: "u1"}))

	g, err := s.GetGroupByUUID(ctx, "u1")
	require.NoError(t, err)
	g.OwnerUUID = "admins"
	require.NoError(t, s.UpdateGroup(ctx, g))

	got, err := s.GetGroupByUUID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "admins", got.OwnerUUID)
	assert.Equal(t, 2, backing.calls["group"])
}

func TestMembershipEviction(t *testing.T) {
	s, backing := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertGroupName(ctx, "devs", 1))
	require.NoError(t, s.InsertGroup(ctx, &types.Group{ID: 1, UUID: "u1", Name: "devs"}))

	groups, err := s.GetGroupsByMember(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, groups)

	require.NoError(t, s.AddGroupMembers(ctx, 1, []int{42}))
	groups, err = s.GetGroupsByMember(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, groups, "stale until evicted")

	s.EvictGroupsByMember(42)
	groups, err = s.GetGroupsByMember(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, groups)
	assert.Equal(t, 2, backing.calls["member"])
}

func TestStatsAndUnwrap(t *testing.T) {
	s, backing := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, &types.Account{ID: 7, Username: "jdoe"}))
	_, err := s.GetAccountByUsername(ctx, "jdoe")
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, 1, stats["accounts_by_id"])
	assert.Equal(t, 1, stats["accounts_by_username"])
	assert.Equal(t, 0, stats["accounts_by_email"])
	assert.Same(t, backing, s.Unwrap())
}
