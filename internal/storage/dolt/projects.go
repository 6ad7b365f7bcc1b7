package dolt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/types"
)

// GetProject retrieves a project by name
func (s *DoltStore) GetProject(ctx context.Context, name string) (*types.Project, error) {
	var p types.Project
	var state, config string
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&p.Name, &p.Parent, &p.Description, &state, &config, &p.CreatedAt, &p.UpdatedAt)
	}, `SELECT name, parent, description, state, config, created_at, updated_at
		FROM projects WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", name, err)
	}
	p.State = types.ProjectState(state)
	if config != "" {
		if err := json.Unmarshal([]byte(config), &p.Config); err != nil {
			return nil, fmt.Errorf("failed to decode config of project %s: %w", name, err)
		}
	}
	return &p, nil
}

// UpsertProject creates the project or replaces its parent, description,
// state and config. created_at is kept on update.
func (s *DoltStore) UpsertProject(ctx context.Context, p *types.Project) error {
	config, err := json.Marshal(p.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config of project %s: %w", p.Name, err)
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	if p.State == "" {
		p.State = types.ProjectActive
	}
	_, err = s.execContext(ctx, `
		INSERT INTO projects (name, parent, description, state, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			parent = VALUES(parent),
			description = VALUES(description),
			state = VALUES(state),
			config = VALUES(config),
			updated_at = VALUES(updated_at)
	`, p.Name, p.Parent, p.Description, string(p.State), string(config), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert project %s: %w", p.Name, err)
	}
	return nil
}
