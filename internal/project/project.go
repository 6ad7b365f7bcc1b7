// Package project resolves, validates and configures the local project an
// import writes into.
package project

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/gimport/internal/errdefs"
	"github.com/steveyegge/gimport/internal/remote"
	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/types"
)

// Fetcher loads a remote project. *remote.Client satisfies it.
type Fetcher interface {
	GetProject(ctx context.Context, name string) (*remote.ProjectInfo, error)
}

// Stage configures local projects.
type Stage struct {
	store storage.ProjectStore
	now   func() time.Time
}

// NewStage creates a project configuration stage.
func NewStage(store storage.ProjectStore) *Stage {
	return &Stage{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// ResolveParent returns explicit when set, otherwise the parent the remote
// project reports. The remote project is only fetched when needed.
func ResolveParent(ctx context.Context, fetcher Fetcher, name, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	info, err := fetcher.GetProject(ctx, name)
	if err != nil {
		return "", err
	}
	return info.Parent, nil
}

// Validate checks that parent exists locally. Projects are never imported
// under a missing parent, and the parent is not created on demand.
func (s *Stage) Validate(ctx context.Context, parent string) error {
	if parent == "" {
		return nil
	}
	_, err := s.store.GetProject(ctx, parent)
	if errors.Is(err, storage.ErrNotFound) {
		return errdefs.Validation("parent project %s does not exist in target", parent)
	}
	if err != nil {
		return fmt.Errorf("failed to look up parent project %s: %w", parent, err)
	}
	return nil
}

// Configure creates or updates the local project under parent and copies
// the parent's inheritable settings the project does not set itself.
func (s *Stage) Configure(ctx context.Context, name, parent string) (*types.Project, error) {
	p, err := s.store.GetProject(ctx, name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		p = &types.Project{Name: name, State: types.ProjectActive, CreatedAt: s.now()}
	case err != nil:
		return nil, fmt.Errorf("failed to load project %s: %w", name, err)
	}
	if p.Config == nil {
		p.Config = make(map[string]string)
	}

	if parent != "" {
		if parent == name {
			return nil, errdefs.BadRequest("project %s cannot be its own parent", name)
		}
		pp, err := s.store.GetProject(ctx, parent)
		if err != nil {
			return nil, fmt.Errorf("failed to load parent project %s: %w", parent, err)
		}
		for k, v := range pp.Config {
			if _, set := p.Config[k]; !set && types.IsInheritable(k) {
				p.Config[k] = v
			}
		}
	}
	p.Parent = parent
	p.UpdatedAt = s.now()

	if err := s.store.UpsertProject(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save project %s: %w", name, err)
	}
	return p, nil
}
