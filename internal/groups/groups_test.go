package groups

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/gimport/internal/accounts"
	"github.com/steveyegge/gimport/internal/cache"
	"github.com/steveyegge/gimport/internal/errdefs"
	"github.com/steveyegge/gimport/internal/remote"
	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/storage/memory"
	"github.com/steveyegge/gimport/internal/types"
)

// fakeRemote serves groups by name and by UUID.
type fakeRemote map[string]*remote.GroupInfo

func (f fakeRemote) add(g *remote.GroupInfo) {
	f[g.ID] = g
	f[g.Name] = g
}

func (f fakeRemote) GetGroup(_ context.Context, nameOrUUID string) (*remote.GroupInfo, error) {
	g, ok := f[nameOrUUID]
	if !ok {
		return nil, &remote.APIError{StatusCode: 404, Body: "Not found: " + nameOrUUID}
	}
	cp := *g
	return &cp, nil
}

type fixture struct {
	store    *memory.MemoryStorage
	remote   fakeRemote
	importer *Importer
	alice    int
	bob      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateAccount(ctx, &types.Account{ID: 1000001, Username: "alice"}))
	require.NoError(t, store.CreateAccount(ctx, &types.Account{ID: 1000002, Username: "bob"}))

	resolver := accounts.NewResolver(store, nil, nil)
	resolver.CreateMissing = false
	r := fakeRemote{}
	return &fixture{
		store:    store,
		remote:   r,
		importer: NewImporter(store, r, resolver, nil),
		alice:    1000001,
		bob:      1000002,
	}
}

func (f *fixture) seedLocal(t *testing.T, name, uuid string) {
	t.Helper()
	ctx := context.Background()
	id, err := f.store.NextGroupID(ctx)
	require.NoError(t, err)
	require.NoError(t, f.store.InsertGroupName(ctx, name, id))
	require.NoError(t, f.store.InsertGroup(ctx, &types.Group{ID: id, UUID: uuid, Name: name, OwnerUUID: uuid}))
}

func (f *fixture) groupCount(t *testing.T, uuids ...string) int {
	t.Helper()
	n := 0
	for _, u := range uuids {
		if _, err := f.store.GetGroupByUUID(context.Background(), u); err == nil {
			n++
		}
	}
	return n
}

func TestImportMembersRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.remote.add(&remote.GroupInfo{
		ID: "uuid-devs", Name: "devs", Description: "Developers", OwnerID: "uuid-devs",
		Members: []remote.AccountInfo{{AccountID: 1, Username: "alice"}, {AccountID: 2, Username: "bob"}},
	})

	res, err := f.importer.Import(context.Background(), "devs", Options{})
	require.NoError(t, err)
	require.Len(t, res.Created, 1)

	g, err := f.store.GetGroupByName(context.Background(), "devs")
	require.NoError(t, err)
	assert.Equal(t, "uuid-devs", g.UUID)
	assert.Equal(t, "uuid-devs", g.OwnerUUID)
	assert.Equal(t, "Developers", g.Description)

	members, err := f.store.GetGroupMembers(context.Background(), g.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{f.alice, f.bob}, members)

	includes, err := f.store.GetGroupIncludes(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Empty(t, includes)
}

func TestImportExistingNameOrUUIDConflicts(t *testing.T) {
	f := newFixture(t)
	f.seedLocal(t, "devs", "uuid-local")
	f.remote.add(&remote.GroupInfo{ID: "uuid-devs", Name: "devs", OwnerID: "uuid-devs"})
	f.remote.add(&remote.GroupInfo{ID: "uuid-local", Name: "other", OwnerID: "uuid-local"})

	_, err := f.importer.Import(context.Background(), "devs", Options{})
	assert.True(t, errors.Is(err, errdefs.ErrConflict), "got %v", err)
	assert.Contains(t, err.Error(), "group with name devs already exists")

	_, err = f.importer.Import(context.Background(), "other", Options{})
	assert.True(t, errors.Is(err, errdefs.ErrConflict), "got %v", err)
	assert.Contains(t, err.Error(), "UUID uuid-local")

	_, err = f.store.GetGroupByName(context.Background(), "other")
	assert.True(t, errors.Is(err, storage.ErrNotFound), "no row may be created")
}

func TestMissingOwnerWithoutImportFails(t *testing.T) {
	f := newFixture(t)
	f.remote.add(&remote.GroupInfo{ID: "uuid-admins", Name: "admins", OwnerID: "uuid-admins"})
	f.remote.add(&remote.GroupInfo{ID: "uuid-devs", Name: "devs", OwnerID: "uuid-admins"})

	_, err := f.importer.Import(context.Background(), "devs", Options{})
	require.True(t, errors.Is(err, errdefs.ErrPreconditionFailed), "got %v", err)
	assert.Contains(t, err.Error(), "owner group admins with UUID uuid-admins does not exist")
	assert.Equal(t, 0, f.groupCount(t, "uuid-devs", "uuid-admins"))

	_, err = f.store.GetGroupByName(context.Background(), "devs")
	assert.True(t, errors.Is(err, storage.ErrNotFound), "name must not be reserved")
}

func TestMissingOwnerIsImportedFirst(t *testing.T) {
	f := newFixture(t)
	f.remote.add(&remote.GroupInfo{ID: "uuid-admins", Name: "admins", OwnerID: "uuid-admins"})
	f.remote.add(&remote.GroupInfo{ID: "uuid-devs", Name: "devs", OwnerID: "uuid-admins"})

	res, err := f.importer.Import(context.Background(), "devs", Options{ImportOwnerGroup: true})
	require.NoError(t, err)
	require.Len(t, res.Created, 2)
	assert.Equal(t, "admins", res.Created[0].Name)
	assert.Equal(t, "devs", res.Created[1].Name)
	assert.Less(t, res.Created[0].ID, res.Created[1].ID)

	devs, err := f.store.GetGroupByUUID(context.Background(), "uuid-devs")
	require.NoError(t, err)
	assert.Equal(t, "uuid-admins", devs.OwnerUUID)
}

func TestUnresolvableMemberFails(t *testing.T) {
	f := newFixture(t)
	f.remote.add(&remote.GroupInfo{
		ID: "uuid-devs", Name: "devs", OwnerID: "uuid-devs",
		Members: []remote.AccountInfo{{Username: "alice"}, {Username: "ghost"}},
	})

	_, err := f.importer.Import(context.Background(), "devs", Options{})
	assert.True(t, errors.Is(err, errdefs.ErrPreconditionFailed), "got %v", err)
	assert.Equal(t, 0, f.groupCount(t, "uuid-devs"))
}

func TestIncludedGroups(t *testing.T) {
	f := newFixture(t)
	f.remote.add(&remote.GroupInfo{ID: "uuid-core", Name: "core", OwnerID: "uuid-core"})
	f.remote.add(&remote.GroupInfo{
		ID: "uuid-devs", Name: "devs", OwnerID: "uuid-devs",
		Includes: []remote.GroupInfo{{ID: "uuid-core"}},
	})

	_, err := f.importer.Import(context.Background(), "devs", Options{})
	require.True(t, errors.Is(err, errdefs.ErrPreconditionFailed), "got %v", err)
	assert.Contains(t, err.Error(), "included group core with UUID uuid-core does not exist")

	_, err = f.importer.Import(context.Background(), "devs", Options{ImportIncludedGroups: true})
	require.NoError(t, err)

	devs, err := f.store.GetGroupByUUID(context.Background(), "uuid-devs")
	require.NoError(t, err)
	includes, err := f.store.GetGroupIncludes(context.Background(), devs.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"uuid-core"}, includes)

	parents, err := f.store.GetParentGroups(context.Background(), "uuid-core")
	require.NoError(t, err)
	assert.Equal(t, []string{"uuid-devs"}, parents)
}

func TestCycleIsRejected(t *testing.T) {
	f := newFixture(t)
	f.remote.add(&remote.GroupInfo{ID: "uuid-a", Name: "a", OwnerID: "uuid-b"})
	f.remote.add(&remote.GroupInfo{ID: "uuid-b", Name: "b", OwnerID: "uuid-a"})

	_, err := f.importer.Import(context.Background(), "a", Options{ImportOwnerGroup: true})
	require.True(t, errors.Is(err, errdefs.ErrConflict), "got %v", err)
	assert.Contains(t, err.Error(), "cycle")
	assert.Equal(t, 0, f.groupCount(t, "uuid-a", "uuid-b"))
}

func TestPolicyRejects(t *testing.T) {
	f := newFixture(t)
	f.importer.AddPolicy(PolicyFunc(func(_ context.Context, g *NewGroup) error {
		if g.Name == "root" {
			return errors.New("root is reserved")
		}
		return nil
	}))
	f.remote.add(&remote.GroupInfo{ID: "uuid-root", Name: "root", OwnerID: "uuid-root"})

	_, err := f.importer.Import(context.Background(), "root", Options{})
	require.True(t, errors.Is(err, errdefs.ErrConflict), "got %v", err)
	assert.Contains(t, err.Error(), "root is reserved")
	assert.Equal(t, 0, f.groupCount(t, "uuid-root"))
}

func TestVisibleToAllAndEviction(t *testing.T) {
	f := newFixture(t)
	cached := cache.Wrap(f.store, 0)
	resolver := accounts.NewResolver(cached, nil, cached)
	im := NewImporter(cached, f.remote, resolver, cached)
	im.VisibleToAll = true

	// Prime the membership cache before the import.
	before, err := cached.GetGroupsByMember(context.Background(), f.alice)
	require.NoError(t, err)
	assert.Empty(t, before)

	f.remote.add(&remote.GroupInfo{
		ID: "uuid-devs", Name: "devs", OwnerID: "uuid-devs",
		Members: []remote.AccountInfo{{Username: "alice"}},
	})
	_, err = im.Import(context.Background(), "devs", Options{})
	require.NoError(t, err)

	g, err := cached.GetGroupByName(context.Background(), "devs")
	require.NoError(t, err)
	assert.True(t, g.VisibleToAll)

	after, err := cached.GetGroupsByMember(context.Background(), f.alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"uuid-devs"}, after)
}
