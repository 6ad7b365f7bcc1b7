package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/types"
)

func (m *MemoryStorage) NextChangeID(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextChangeID++
	return m.nextChangeID, nil
}

// InsertChange rejects a second change with the same ID or the same
// (project, branch, key).
func (m *MemoryStorage) InsertChange(_ context.Context, c *types.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.changes[c.ID]; ok {
		return fmt.Errorf("change %d: %w", c.ID, storage.ErrDuplicateKey)
	}
	k := changeKey(c.Project, c.Branch, c.Key)
	if _, ok := m.changeKeys[k]; ok {
		return fmt.Errorf("change %s on %s: %w", c.Key, c.Branch, storage.ErrDuplicateKey)
	}
	cp := *c
	m.changes[c.ID] = &cp
	m.changeKeys[k] = c.ID
	return nil
}

func (m *MemoryStorage) GetChange(_ context.Context, id int) (*types.Change, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.changes[id]
	if !ok {
		return nil, fmt.Errorf("change %d: %w", id, storage.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStorage) FindChange(_ context.Context, project, branch, key string) (*types.Change, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.changeKeys[changeKey(project, branch, key)]
	if !ok {
		return nil, fmt.Errorf("change %s on %s: %w", key, branch, storage.ErrNotFound)
	}
	cp := *m.changes[id]
	return &cp, nil
}

func (m *MemoryStorage) ListChanges(_ context.Context, project string) ([]*types.Change, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Change
	for _, c := range m.changes {
		if c.Project == project {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStorage) InsertPatchSets(_ context.Context, patchSets []*types.PatchSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ps := range patchSets {
		for _, existing := range m.patchSets[ps.ChangeID] {
			if existing.Number == ps.Number {
				return fmt.Errorf("patch set %d,%d: %w", ps.ChangeID, ps.Number, storage.ErrDuplicateKey)
			}
		}
	}
	for _, ps := range patchSets {
		cp := *ps
		cp.Parents = append([]string(nil), ps.Parents...)
		m.patchSets[ps.ChangeID] = append(m.patchSets[ps.ChangeID], &cp)
	}
	return nil
}

func (m *MemoryStorage) GetPatchSets(_ context.Context, changeID int) ([]*types.PatchSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.PatchSet, 0, len(m.patchSets[changeID]))
	for _, ps := range m.patchSets[changeID] {
		cp := *ps
		cp.Parents = append([]string(nil), ps.Parents...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *MemoryStorage) InsertComments(_ context.Context, comments []*types.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range comments {
		for _, existing := range m.comments[c.ChangeID] {
			if existing.UUID == c.UUID {
				return fmt.Errorf("comment %s: %w", c.UUID, storage.ErrDuplicateKey)
			}
		}
	}
	for _, c := range comments {
		cp := *c
		if c.Range != nil {
			r := *c.Range
			cp.Range = &r
		}
		m.comments[c.ChangeID] = append(m.comments[c.ChangeID], &cp)
	}
	return nil
}

func (m *MemoryStorage) GetComments(_ context.Context, changeID int) ([]*types.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Comment, 0, len(m.comments[changeID]))
	for _, c := range m.comments[changeID] {
		cp := *c
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].WrittenAt.Before(out[j].WrittenAt) })
	return out, nil
}

func (m *MemoryStorage) InsertChangeMessages(_ context.Context, messages []*types.ChangeMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range messages {
		cp := *msg
		m.messages[msg.ChangeID] = append(m.messages[msg.ChangeID], &cp)
	}
	return nil
}

func (m *MemoryStorage) GetChangeMessages(_ context.Context, changeID int) ([]*types.ChangeMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.ChangeMessage, 0, len(m.messages[changeID]))
	for _, msg := range m.messages[changeID] {
		cp := *msg
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].WrittenAt.Before(out[j].WrittenAt) })
	return out, nil
}

func (m *MemoryStorage) InsertApprovals(_ context.Context, approvals []*types.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range approvals {
		cp := *a
		m.approvals[a.ChangeID] = append(m.approvals[a.ChangeID], &cp)
	}
	return nil
}

func (m *MemoryStorage) GetApprovals(_ context.Context, changeID int) ([]*types.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Approval, 0, len(m.approvals[changeID]))
	for _, a := range m.approvals[changeID] {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStorage) AddHashtags(_ context.Context, changeID int, hashtags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.hashtags[changeID]
	if set == nil {
		set = make(map[string]bool)
		m.hashtags[changeID] = set
	}
	for _, h := range hashtags {
		set[h] = true
	}
	return nil
}

func (m *MemoryStorage) GetHashtags(_ context.Context, changeID int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.hashtags[changeID]))
	for h := range m.hashtags[changeID] {
		out = append(out, h)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStorage) InsertOriginLink(_ context.Context, link *types.OriginLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.origins[link.ChangeID]; ok {
		return fmt.Errorf("origin link for change %d: %w", link.ChangeID, storage.ErrDuplicateKey)
	}
	cp := *link
	m.origins[link.ChangeID] = &cp
	return nil
}

func (m *MemoryStorage) GetOriginLink(_ context.Context, changeID int) (*types.OriginLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.origins[changeID]
	if !ok {
		return nil, fmt.Errorf("origin link for change %d: %w", changeID, storage.ErrNotFound)
	}
	cp := *link
	return &cp, nil
}

func (m *MemoryStorage) PutChangeDocument(_ context.Context, doc *types.ChangeDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *doc
	cp.Hashtags = append([]string(nil), doc.Hashtags...)
	cp.Reviewers = append([]int(nil), doc.Reviewers...)
	cp.Labels = append([]string(nil), doc.Labels...)
	cp.Revisions = append([]string(nil), doc.Revisions...)
	m.documents[doc.ChangeID] = &cp
	return nil
}

func (m *MemoryStorage) GetChangeDocument(_ context.Context, changeID int) (*types.ChangeDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[changeID]
	if !ok {
		return nil, fmt.Errorf("document for change %d: %w", changeID, storage.ErrNotFound)
	}
	cp := *doc
	return &cp, nil
}
