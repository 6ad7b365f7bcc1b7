// Package cache keeps bounded read-through caches of accounts and groups in
// front of the local store.
//
// Writers that change group membership or create identities must evict the
// affected entries; Group Import and the Identity Resolver do this after each
// write so a later lookup never sees a stale answer.
package cache

import (
	"context"
	"errors"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/types"
)

// DefaultSize bounds each individual cache.
const DefaultSize = 1024

// Evictor is the invalidation surface writers depend on.
type Evictor interface {
	EvictAccount(a *types.Account)
	EvictGroup(g *types.Group)
	EvictGroupsByMember(accountID int)
	EvictParentGroups(uuid string)
}

// Store wraps a storage.Storage with caches for the lookups the importer
// repeats most. Misses are not cached, so a created entity becomes visible
// without an eviction; evictions are needed when an entity changes.
type Store struct {
	storage.Storage

	accountsByID       *lru.Cache[int, types.Account]
	accountsByUsername *lru.Cache[string, int]
	accountsByEmail    *lru.Cache[string, int]
	groupsByUUID       *lru.Cache[string, types.Group]
	groupsByName       *lru.Cache[string, string]
	groupsByMember     *lru.Cache[int, []string]
	parentGroups       *lru.Cache[string, []string]
}

var _ storage.Storage = (*Store)(nil)
var _ Evictor = (*Store)(nil)

// Wrap returns a caching Store in front of s. A size of zero or less means
// DefaultSize.
func Wrap(s storage.Storage, size int) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	return &Store{
		Storage:            s,
		accountsByID:       mustNew[int, types.Account](size),
		accountsByUsername: mustNew[string, int](size),
		accountsByEmail:    mustNew[string, int](size),
		groupsByUUID:       mustNew[string, types.Group](size),
		groupsByName:       mustNew[string, string](size),
		groupsByMember:     mustNew[int, []string](size),
		parentGroups:       mustNew[string, []string](size),
	}
}

func mustNew[K comparable, V any](size int) *lru.Cache[K, V] {
	c, err := lru.New[K, V](size)
	if err != nil {
		// Only a non-positive size fails, and Wrap rules that out.
		panic(err)
	}
	return c
}

// GetAccount returns a cached account or loads it.
func (s *Store) GetAccount(ctx context.Context, id int) (*types.Account, error) {
	if a, ok := s.accountsByID.Get(id); ok {
		return &a, nil
	}
	a, err := s.Storage.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	s.putAccount(a)
	return a, nil
}

// GetAccountByUsername returns a cached account or loads it.
func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*types.Account, error) {
	if id, ok := s.accountsByUsername.Get(username); ok {
		return s.GetAccount(ctx, id)
	}
	a, err := s.Storage.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	s.putAccount(a)
	return a, nil
}

// GetAccountByEmail returns a cached account or loads it.
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*types.Account, error) {
	if id, ok := s.accountsByEmail.Get(strings.ToLower(email)); ok {
		return s.GetAccount(ctx, id)
	}
	a, err := s.Storage.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	s.putAccount(a)
	return a, nil
}

func (s *Store) putAccount(a *types.Account) {
	s.accountsByID.Add(a.ID, *a)
	if a.Username != "" {
		s.accountsByUsername.Add(a.Username, a.ID)
	}
	if a.Email != "" {
		s.accountsByEmail.Add(strings.ToLower(a.Email), a.ID)
	}
}

// GetGroupByUUID returns a cached group or loads it.
func (s *Store) GetGroupByUUID(ctx context.Context, uuid string) (*types.Group, error) {
	if g, ok := s.groupsByUUID.Get(uuid); ok {
		return &g, nil
	}
	g, err := s.Storage.GetGroupByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	s.putGroup(g)
	return g, nil
}

// GetGroupByName returns a cached group or loads it.
func (s *Store) GetGroupByName(ctx context.Context, name string) (*types.Group, error) {
	if uuid, ok := s.groupsByName.Get(name); ok {
		g, err := s.GetGroupByUUID(ctx, uuid)
		if err == nil || !errors.Is(err, storage.ErrNotFound) {
			return g, err
		}
		s.groupsByName.Remove(name)
	}
	g, err := s.Storage.GetGroupByName(ctx, name)
	if err != nil {
		return nil, err
	}
	s.putGroup(g)
	return g, nil
}

func (s *Store) putGroup(g *types.Group) {
	s.groupsByUUID.Add(g.UUID, *g)
	s.groupsByName.Add(g.Name, g.UUID)
}

// GetGroupsByMember returns the cached memberships of an account or loads them.
func (s *Store) GetGroupsByMember(ctx context.Context, accountID int) ([]string, error) {
	if uuids, ok := s.groupsByMember.Get(accountID); ok {
		return append([]string(nil), uuids...), nil
	}
	uuids, err := s.Storage.GetGroupsByMember(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s.groupsByMember.Add(accountID, append([]string(nil), uuids...))
	return uuids, nil
}

// GetParentGroups returns the cached including groups of uuid or loads them.
func (s *Store) GetParentGroups(ctx context.Context, uuid string) ([]string, error) {
	if uuids, ok := s.parentGroups.Get(uuid); ok {
		return append([]string(nil), uuids...), nil
	}
	uuids, err := s.Storage.GetParentGroups(ctx, uuid)
	if err != nil {
		return nil, err
	}
	s.parentGroups.Add(uuid, append([]string(nil), uuids...))
	return uuids, nil
}

// EvictAccount drops every cached lookup of a.
func (s *Store) EvictAccount(a *types.Account) {
	s.accountsByID.Remove(a.ID)
	if a.Username != "" {
		s.accountsByUsername.Remove(a.Username)
	}
	if a.Email != "" {
		s.accountsByEmail.Remove(strings.ToLower(a.Email))
	}
}

// EvictGroup drops the cached copy of g under its UUID and name.
func (s *Store) EvictGroup(g *types.Group) {
	s.groupsByUUID.Remove(g.UUID)
	s.groupsByName.Remove(g.Name)
}

// EvictGroupsByMember drops the cached memberships of an account.
func (s *Store) EvictGroupsByMember(accountID int) {
	s.groupsByMember.Remove(accountID)
}

// EvictParentGroups drops the cached including groups of uuid.
func (s *Store) EvictParentGroups(uuid string) {
	s.parentGroups.Remove(uuid)
}

// UpdateGroup writes through and evicts the previous copy.
func (s *Store) UpdateGroup(ctx context.Context, g *types.Group) error {
	if err := s.Storage.UpdateGroup(ctx, g); err != nil {
		return err
	}
	s.EvictGroup(g)
	return nil
}

// Stats reports the number of entries per cache.
func (s *Store) Stats() map[string]int {
	return map[string]int{
		"accounts_by_id":       s.accountsByID.Len(),
		"accounts_by_username": s.accountsByUsername.Len(),
		"accounts_by_email":    s.accountsByEmail.Len(),
		"groups_by_uuid":       s.groupsByUUID.Len(),
		"groups_by_name":       s.groupsByName.Len(),
		"groups_by_member":     s.groupsByMember.Len(),
		"parent_groups":        s.parentGroups.Len(),
	}
}

// Noop is an Evictor for callers without a cache.
type Noop struct{}

func (Noop) EvictAccount(*types.Account) {}
func (Noop) EvictGroup(*types.Group)     {}
func (Noop) EvictGroupsByMember(int)     {}
func (Noop) EvictParentGroups(string)    {}

// Unwrap returns the store behind the cache.
func (s *Store) Unwrap() storage.Storage {
	return s.Storage
}
