// Package storage provides the contracts of the local review store.
//
// Concrete implementations live in the dolt (embedded or sql-server) and
// memory sub-packages. Every write commits on its own: the importer never
// spans a transaction across entities, so a failure part-way through an
// import leaves the rows written so far in place.
package storage

import (
	"context"
	"errors"

	"github.com/steveyegge/gimport/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrDuplicateKey is returned when an insert violates a unique key.
var ErrDuplicateKey = errors.New("duplicate key")

// ProjectStore persists projects.
type ProjectStore interface {
	GetProject(ctx context.Context, name string) (*types.Project, error)
	UpsertProject(ctx context.Context, p *types.Project) error
}

// AccountStore persists accounts.
type AccountStore interface {
	NextAccountID(ctx context.Context) (int, error)
	CreateAccount(ctx context.Context, a *types.Account) error
	GetAccount(ctx context.Context, id int) (*types.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*types.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*types.Account, error)
}

// GroupStore persists groups and their membership.
type GroupStore interface {
	NextGroupID(ctx context.Context) (int, error)
	// InsertGroupName reserves name for groupID. Returns ErrDuplicateKey if
	// the name is already taken.
	InsertGroupName(ctx context.Context, name string, groupID int) error
	// InsertGroup returns ErrDuplicateKey if the ID or UUID already exists.
	InsertGroup(ctx context.Context, g *types.Group) error
	UpdateGroup(ctx context.Context, g *types.Group) error
	GetGroupByName(ctx context.Context, name string) (*types.Group, error)
	GetGroupByUUID(ctx context.Context, uuid string) (*types.Group, error)
	AddGroupMembers(ctx context.Context, groupID int, accountIDs []int) error
	AddGroupIncludes(ctx context.Context, groupID int, includedUUIDs []string) error
	GetGroupMembers(ctx context.Context, groupID int) ([]int, error)
	GetGroupIncludes(ctx context.Context, groupID int) ([]string, error)
	// GetGroupsByMember returns the UUIDs of groups the account belongs to directly.
	GetGroupsByMember(ctx context.Context, accountID int) ([]string, error)
	// GetParentGroups returns the UUIDs of groups that include the given group.
	GetParentGroups(ctx context.Context, uuid string) ([]string, error)
}

// ChangeStore persists changes and their review metadata.
type ChangeStore interface {
	NextChangeID(ctx context.Context) (int, error)
	InsertChange(ctx context.Context, c *types.Change) error
	GetChange(ctx context.Context, id int) (*types.Change, error)
	// FindChange looks a change up by its natural key.
	FindChange(ctx context.Context, project, branch, key string) (*types.Change, error)
	ListChanges(ctx context.Context, project string) ([]*types.Change, error)

	InsertPatchSets(ctx context.Context, patchSets []*types.PatchSet) error
	GetPatchSets(ctx context.Context, changeID int) ([]*types.PatchSet, error)

	InsertComments(ctx context.Context, comments []*types.Comment) error
	GetComments(ctx context.Context, changeID int) ([]*types.Comment, error)

	InsertChangeMessages(ctx context.Context, messages []*types.ChangeMessage) error
	GetChangeMessages(ctx context.Context, changeID int) ([]*types.ChangeMessage, error)

	InsertApprovals(ctx context.Context, approvals []*types.Approval) error
	GetApprovals(ctx context.Context, changeID int) ([]*types.Approval, error)

	AddHashtags(ctx context.Context, changeID int, hashtags []string) error
	GetHashtags(ctx context.Context, changeID int) ([]string, error)

	InsertOriginLink(ctx context.Context, link *types.OriginLink) error
	GetOriginLink(ctx context.Context, changeID int) (*types.OriginLink, error)
}

// IndexStore persists search index documents.
type IndexStore interface {
	PutChangeDocument(ctx context.Context, doc *types.ChangeDocument) error
	GetChangeDocument(ctx context.Context, changeID int) (*types.ChangeDocument, error)
}

// Storage is the interface satisfied by *dolt.DoltStore and *memory.MemoryStorage.
// Consumers depend on the narrow interfaces above where they can.
type Storage interface {
	ProjectStore
	AccountStore
	GroupStore
	ChangeStore
	IndexStore

	// Lifecycle
	Close() error
}
