// Package groups imports account groups from the remote instance.
//
// A group is only created when every precondition holds: its name and UUID
// are free, its owner and included groups exist (or may be imported first),
// every member resolves to a local account and no creation policy objects.
// Nothing is written before all checks pass.
package groups

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/gimport/internal/cache"
	"github.com/steveyegge/gimport/internal/debug"
	"github.com/steveyegge/gimport/internal/errdefs"
	"github.com/steveyegge/gimport/internal/remote"
	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/types"
)

// Fetcher loads a remote group by name or UUID. *remote.Client satisfies it.
type Fetcher interface {
	GetGroup(ctx context.Context, nameOrUUID string) (*remote.GroupInfo, error)
}

// AccountResolver maps remote members to local account IDs.
// *accounts.Resolver satisfies it.
type AccountResolver interface {
	ResolveAll(ctx context.Context, refs []remote.AccountInfo) ([]int, error)
}

// Options control recursive imports. Nested imports inherit them.
type Options struct {
	ImportOwnerGroup     bool
	ImportIncludedGroups bool
}

// Importer creates local groups from remote ones.
type Importer struct {
	store    storage.GroupStore
	remote   Fetcher
	accounts AccountResolver
	evictor  cache.Evictor
	policies []Policy

	// VisibleToAll is applied to every created group.
	VisibleToAll bool
}

// NewImporter creates a group importer. evictor may be nil.
func NewImporter(store storage.GroupStore, fetcher Fetcher, accounts AccountResolver, evictor cache.Evictor) *Importer {
	if evictor == nil {
		evictor = cache.Noop{}
	}
	return &Importer{store: store, remote: fetcher, accounts: accounts, evictor: evictor}
}

// AddPolicy registers a creation policy. Policies run in registration order.
func (im *Importer) AddPolicy(p Policy) {
	im.policies = append(im.policies, p)
}

// Result lists the groups created by one Import call, dependencies first.
type Result struct {
	Created []*types.Group
}

// Import imports the group named nameOrUUID. With ImportOwnerGroup or
// ImportIncludedGroups set, missing owner and included groups are imported
// first. A group that (transitively) depends on itself fails with
// errdefs.ErrConflict instead of recursing.
func (im *Importer) Import(ctx context.Context, nameOrUUID string, opts Options) (*Result, error) {
	s := &session{Importer: im, opts: opts, visiting: make(map[string]bool), result: &Result{}}
	if _, err := s.importGroup(ctx, nameOrUUID); err != nil {
		return s.result, err
	}
	return s.result, nil
}

// session is the state of one Import call.
type session struct {
	*Importer
	opts     Options
	visiting map[string]bool
	result   *Result
}

func (s *session) importGroup(ctx context.Context, nameOrUUID string) (*types.Group, error) {
	info, err := s.remote.GetGroup(ctx, nameOrUUID)
	if err != nil {
		return nil, err
	}
	if s.visiting[info.ID] {
		return nil, errdefs.Conflict("group import cycle: %s (%s) depends on itself", info.Name, info.ID)
	}
	s.visiting[info.ID] = true
	defer delete(s.visiting, info.ID)

	memberIDs, err := s.validate(ctx, info)
	if err != nil {
		return nil, err
	}
	g, err := s.create(ctx, info, memberIDs)
	if err != nil {
		return nil, err
	}
	s.result.Created = append(s.result.Created, g)
	return g, nil
}

// validate runs the preconditions in order and returns the resolved members.
func (s *session) validate(ctx context.Context, info *remote.GroupInfo) ([]int, error) {
	if exists, err := s.existsByName(ctx, info.Name); err != nil {
		return nil, err
	} else if exists {
		return nil, errdefs.Conflict("group with name %s already exists", info.Name)
	}
	if exists, err := s.existsByUUID(ctx, info.ID); err != nil {
		return nil, err
	} else if exists {
		return nil, errdefs.Conflict("group with UUID %s already exists", info.ID)
	}

	if hasExternalOwner(info) {
		exists, err := s.existsByUUID(ctx, info.OwnerID)
		if err != nil {
			return nil, err
		}
		if !exists {
			if !s.opts.ImportOwnerGroup {
				return nil, errdefs.PreconditionFailed("owner group %s with UUID %s does not exist",
					s.remoteName(ctx, info.OwnerID, info.Owner), info.OwnerID)
			}
			debug.Logf("importing owner group %s of %s\n", info.OwnerID, info.Name)
			if _, err := s.importGroup(ctx, info.OwnerID); err != nil {
				return nil, err
			}
		}
	}

	memberIDs, err := s.accounts.ResolveAll(ctx, info.Members)
	if err != nil {
		if errors.Is(err, errdefs.ErrNoSuchAccount) {
			return nil, fmt.Errorf("%w: %v", errdefs.ErrPreconditionFailed, err)
		}
		return nil, err
	}

	for _, inc := range info.Includes {
		exists, err := s.existsByUUID(ctx, inc.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		if !s.opts.ImportIncludedGroups {
			return nil, errdefs.PreconditionFailed("included group %s with UUID %s does not exist",
				s.remoteName(ctx, inc.ID, inc.Name), inc.ID)
		}
		debug.Logf("importing included group %s of %s\n", inc.ID, info.Name)
		if _, err := s.importGroup(ctx, inc.ID); err != nil {
			return nil, err
		}
	}

	candidate := &NewGroup{
		Name:         info.Name,
		UUID:         info.ID,
		Description:  info.Description,
		VisibleToAll: s.VisibleToAll,
		OwnerUUID:    info.OwnerID,
		Members:      memberIDs,
	}
	for _, inc := range info.Includes {
		candidate.Includes = append(candidate.Includes, inc.ID)
	}
	for _, p := range s.policies {
		if err := p.ValidateNewGroup(ctx, candidate); err != nil {
			return nil, errdefs.Conflict("%v", err)
		}
	}
	return memberIDs, nil
}

// create writes the group. The name reservation goes first so a concurrent
// import of the same name fails on the duplicate key instead of producing
// two groups. The row starts self-owned and is re-pointed afterwards.
func (s *session) create(ctx context.Context, info *remote.GroupInfo, memberIDs []int) (*types.Group, error) {
	id, err := s.store.NextGroupID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate group id: %w", err)
	}
	if err := s.store.InsertGroupName(ctx, info.Name, id); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, errdefs.Conflict("group with name %s already exists", info.Name)
		}
		return nil, fmt.Errorf("failed to reserve group name %s: %w", info.Name, err)
	}

	created := info.CreatedOn.Time
	if created.IsZero() {
		created = time.Now().UTC()
	}
	g := &types.Group{
		ID:           id,
		UUID:         info.ID,
		Name:         info.Name,
		Description:  info.Description,
		VisibleToAll: s.VisibleToAll,
		OwnerUUID:    info.ID,
		CreatedAt:    created,
	}
	if err := s.store.InsertGroup(ctx, g); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, errdefs.Conflict("group with UUID %s already exists", info.ID)
		}
		return nil, fmt.Errorf("failed to create group %s: %w", info.Name, err)
	}
	s.evictor.EvictGroup(g)

	if hasExternalOwner(info) {
		g.OwnerUUID = info.OwnerID
		if err := s.store.UpdateGroup(ctx, g); err != nil {
			return nil, fmt.Errorf("failed to set owner of group %s: %w", info.Name, err)
		}
	}

	if len(memberIDs) > 0 {
		memberIDs = dedupe(memberIDs)
		if err := s.store.AddGroupMembers(ctx, id, memberIDs); err != nil {
			return nil, fmt.Errorf("failed to add members to group %s: %w", info.Name, err)
		}
		for _, m := range memberIDs {
			s.evictor.EvictGroupsByMember(m)
		}
	}

	if len(info.Includes) > 0 {
		uuids := make([]string, 0, len(info.Includes))
		for _, inc := range info.Includes {
			uuids = append(uuids, inc.ID)
		}
		uuids = dedupe(uuids)
		if err := s.store.AddGroupIncludes(ctx, id, uuids); err != nil {
			return nil, fmt.Errorf("failed to add included groups to group %s: %w", info.Name, err)
		}
		for _, u := range uuids {
			s.evictor.EvictParentGroups(u)
		}
	}

	s.evictor.EvictGroup(g)
	debug.Logf("created group %s (%s) with %d members, %d includes\n", g.Name, g.UUID, len(memberIDs), len(info.Includes))
	return g, nil
}

func (s *session) existsByName(ctx context.Context, name string) (bool, error) {
	_, err := s.store.GetGroupByName(ctx, name)
	return found(err, "group "+name)
}

func (s *session) existsByUUID(ctx context.Context, uuid string) (bool, error) {
	_, err := s.store.GetGroupByUUID(ctx, uuid)
	return found(err, "group "+uuid)
}

func found(err error, what string) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	}
	return false, fmt.Errorf("failed to look up %s: %w", what, err)
}

// remoteName returns a display name for the remote group uuid. It prefers
// the name the caller already has and falls back to the UUID when the
// lookup fails, since it only feeds an error message.
func (s *session) remoteName(ctx context.Context, uuid, known string) string {
	if known != "" {
		return known
	}
	info, err := s.remote.GetGroup(ctx, uuid)
	if err != nil {
		return uuid
	}
	return info.Name
}

func hasExternalOwner(info *remote.GroupInfo) bool {
	return info.OwnerID != "" && info.OwnerID != info.ID
}

func dedupe[T comparable](in []T) []T {
	seen := make(map[T]bool, len(in))
	out := in[:0:0]
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
