// Package memory implements the storage interface in process memory.
//
// It backs dry runs and tests. Every method copies values in and out so
// callers never share mutable state with the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/types"
)

// MemoryStorage implements storage.Storage using maps guarded by one mutex.
type MemoryStorage struct {
	mu sync.RWMutex

	projects map[string]*types.Project

	accounts      map[int]*types.Account
	nextAccountID int

	groups       map[int]*types.Group
	groupNames   map[string]int
	members      map[int]map[int]bool
	includes     map[int]map[string]bool
	nextGroupID  int
	nextChangeID int

	changes    map[int]*types.Change
	patchSets  map[int][]*types.PatchSet
	comments   map[int][]*types.Comment
	messages   map[int][]*types.ChangeMessage
	approvals  map[int][]*types.Approval
	hashtags   map[int]map[string]bool
	origins    map[int]*types.OriginLink
	documents  map[int]*types.ChangeDocument
	changeKeys map[string]int

	closed bool
}

var _ storage.Storage = (*MemoryStorage)(nil)

// New creates an empty in-memory store. Account, group and change IDs
// start at 1000001, 1 and 1 respectively.
func New() *MemoryStorage {
	return &MemoryStorage{
		projects:      make(map[string]*types.Project),
		accounts:      make(map[int]*types.Account),
		nextAccountID: 1000000,
		groups:        make(map[int]*types.Group),
		groupNames:    make(map[string]int),
		members:       make(map[int]map[int]bool),
		includes:      make(map[int]map[string]bool),
		changes:       make(map[int]*types.Change),
		patchSets:     make(map[int][]*types.PatchSet),
		comments:      make(map[int][]*types.Comment),
		messages:      make(map[int][]*types.ChangeMessage),
		approvals:     make(map[int][]*types.Approval),
		hashtags:      make(map[int]map[string]bool),
		origins:       make(map[int]*types.OriginLink),
		documents:     make(map[int]*types.ChangeDocument),
		changeKeys:    make(map[string]int),
	}
}

func changeKey(project, branch, key string) string {
	return project + "\x00" + branch + "\x00" + key
}

// GetProject returns storage.ErrNotFound if the project does not exist.
func (m *MemoryStorage) GetProject(_ context.Context, name string) (*types.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[name]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", name, storage.ErrNotFound)
	}
	return copyProject(p), nil
}

func (m *MemoryStorage) UpsertProject(_ context.Context, p *types.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.projects[p.Name]; ok && p.CreatedAt.IsZero() {
		p.CreatedAt = existing.CreatedAt
	}
	m.projects[p.Name] = copyProject(p)
	return nil
}

func copyProject(p *types.Project) *types.Project {
	cp := *p
	if p.Config != nil {
		cp.Config = make(map[string]string, len(p.Config))
		for k, v := range p.Config {
			cp.Config[k] = v
		}
	}
	return &cp
}

func (m *MemoryStorage) NextAccountID(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAccountID++
	return m.nextAccountID, nil
}

func (m *MemoryStorage) CreateAccount(_ context.Context, a *types.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[a.ID]; ok {
		return fmt.Errorf("account %d: %w", a.ID, storage.ErrDuplicateKey)
	}
	for _, other := range m.accounts {
		if a.Username != "" && other.Username == a.Username {
			return fmt.Errorf("username %s: %w", a.Username, storage.ErrDuplicateKey)
		}
	}
	cp := *a
	m.accounts[a.ID] = &cp
	if a.ID > m.nextAccountID {
		m.nextAccountID = a.ID
	}
	return nil
}

func (m *MemoryStorage) GetAccount(_ context.Context, id int) (*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, storage.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStorage) GetAccountByUsername(_ context.Context, username string) (*types.Account, error) {
	return m.findAccount(func(a *types.Account) bool { return a.Username == username }, "username "+username)
}

// GetAccountByEmail matches case-insensitively.
func (m *MemoryStorage) GetAccountByEmail(_ context.Context, email string) (*types.Account, error) {
	return m.findAccount(func(a *types.Account) bool { return strings.EqualFold(a.Email, email) }, "email "+email)
}

func (m *MemoryStorage) findAccount(match func(*types.Account) bool, what string) (*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Lowest ID wins when several accounts share an email.
	var found *types.Account
	for _, a := range m.accounts {
		if match(a) && (found == nil || a.ID < found.ID) {
			found = a
		}
	}
	if found == nil {
		return nil, fmt.Errorf("account with %s: %w", what, storage.ErrNotFound)
	}
	cp := *found
	return &cp, nil
}

func (m *MemoryStorage) NextGroupID(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextGroupID++
	return m.nextGroupID, nil
}

func (m *MemoryStorage) InsertGroupName(_ context.Context, name string, groupID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groupNames[name]; ok {
		return fmt.Errorf("group name %s: %w", name, storage.ErrDuplicateKey)
	}
	m.groupNames[name] = groupID
	return nil
}

func (m *MemoryStorage) InsertGroup(_ context.Context, g *types.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[g.ID]; ok {
		return fmt.Errorf("group %d: %w", g.ID, storage.ErrDuplicateKey)
	}
	for _, other := range m.groups {
		if other.UUID == g.UUID {
			return fmt.Errorf("group uuid %s: %w", g.UUID, storage.ErrDuplicateKey)
		}
	}
	cp := *g
	m.groups[g.ID] = &cp
	return nil
}

func (m *MemoryStorage) UpdateGroup(_ context.Context, g *types.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[g.ID]; !ok {
		return fmt.Errorf("group %d: %w", g.ID, storage.ErrNotFound)
	}
	cp := *g
	m.groups[g.ID] = &cp
	return nil
}

// GetGroupByName resolves through the name reservations, so a reserved
// name without a group row reads as not found.
func (m *MemoryStorage) GetGroupByName(_ context.Context, name string) (*types.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.groupNames[name]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", name, storage.ErrNotFound)
	}
	g, ok := m.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", name, storage.ErrNotFound)
	}
	cp := *g
	return &cp, nil
}

func (m *MemoryStorage) GetGroupByUUID(_ context.Context, uuid string) (*types.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, g := range m.groups {
		if g.UUID == uuid {
			cp := *g
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("group %s: %w", uuid, storage.ErrNotFound)
}

func (m *MemoryStorage) AddGroupMembers(_ context.Context, groupID int, accountIDs []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[groupID]; !ok {
		return fmt.Errorf("group %d: %w", groupID, storage.ErrNotFound)
	}
	set := m.members[groupID]
	if set == nil {
		set = make(map[int]bool)
		m.members[groupID] = set
	}
	for _, id := range accountIDs {
		set[id] = true
	}
	return nil
}

func (m *MemoryStorage) AddGroupIncludes(_ context.Context, groupID int, includedUUIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[groupID]; !ok {
		return fmt.Errorf("group %d: %w", groupID, storage.ErrNotFound)
	}
	set := m.includes[groupID]
	if set == nil {
		set = make(map[string]bool)
		m.includes[groupID] = set
	}
	for _, uuid := range includedUUIDs {
		set[uuid] = true
	}
	return nil
}

func (m *MemoryStorage) GetGroupMembers(_ context.Context, groupID int) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int, 0, len(m.members[groupID]))
	for id := range m.members[groupID] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (m *MemoryStorage) GetGroupIncludes(_ context.Context, groupID int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uuids := make([]string, 0, len(m.includes[groupID]))
	for uuid := range m.includes[groupID] {
		uuids = append(uuids, uuid)
	}
	sort.Strings(uuids)
	return uuids, nil
}

func (m *MemoryStorage) GetGroupsByMember(_ context.Context, accountID int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var uuids []string
	for groupID, set := range m.members {
		if set[accountID] {
			uuids = append(uuids, m.groups[groupID].UUID)
		}
	}
	sort.Strings(uuids)
	return uuids, nil
}

func (m *MemoryStorage) GetParentGroups(_ context.Context, uuid string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var parents []string
	for groupID, set := range m.includes {
		if set[uuid] {
			parents = append(parents, m.groups[groupID].UUID)
		}
	}
	sort.Strings(parents)
	return parents, nil
}

func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
