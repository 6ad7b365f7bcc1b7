package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/types"
)

func (s *DoltStore) NextGroupID(ctx context.Context) (int, error) {
	return s.nextSequenceValue(ctx, "group_id_seq")
}

// InsertGroupName reserves a group name. The primary key on group_names turns
// a concurrent import of the same name into ErrDuplicateKey.
func (s *DoltStore) InsertGroupName(ctx context.Context, name string, groupID int) error {
	_, err := s.execContext(ctx, "INSERT INTO group_names (name, group_id) VALUES (?, ?)", name, groupID)
	if isDuplicateKeyError(err) {
		return fmt.Errorf("group name %s: %w", name, storage.ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("failed to reserve group name %s: %w", name, err)
	}
	return nil
}

func (s *DoltStore) InsertGroup(ctx context.Context, g *types.Group) error {
	_, err := s.execContext(ctx, `
		INSERT INTO account_groups (id, uuid, name, description, visible_to_all, owner_uuid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.UUID, g.Name, g.Description, g.VisibleToAll, g.OwnerUUID, g.CreatedAt.UTC())
	if isDuplicateKeyError(err) {
		return fmt.Errorf("group %s (%s): %w", g.Name, g.UUID, storage.ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("failed to insert group %s: %w", g.Name, err)
	}
	return nil
}

func (s *DoltStore) UpdateGroup(ctx context.Context, g *types.Group) error {
	res, err := s.execContext(ctx, `
		UPDATE account_groups
		SET name = ?, description = ?, visible_to_all = ?, owner_uuid = ?
		WHERE id = ?
	`, g.Name, g.Description, g.VisibleToAll, g.OwnerUUID, g.ID)
	if err != nil {
		return fmt.Errorf("failed to update group %s: %w", g.Name, err)
	}
	// MySQL reports 0 affected rows when nothing changed, so only a missing
	// row is checked for.
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.getGroup(ctx, "group "+g.Name, "WHERE id = ?", g.ID); err != nil {
			return err
		}
	}
	return nil
}

// GetGroupByName resolves through the name reservations.
func (s *DoltStore) GetGroupByName(ctx context.Context, name string) (*types.Group, error) {
	return s.getGroup(ctx, "group "+name,
		"JOIN group_names n ON n.group_id = g.id WHERE n.name = ?", name)
}

func (s *DoltStore) GetGroupByUUID(ctx context.Context, uuid string) (*types.Group, error) {
	return s.getGroup(ctx, "group "+uuid, "WHERE g.uuid = ?", uuid)
}

func (s *DoltStore) getGroup(ctx context.Context, what, where string, args ...any) (*types.Group, error) {
	var g types.Group
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&g.ID, &g.UUID, &g.Name, &g.Description, &g.VisibleToAll, &g.OwnerUUID, &g.CreatedAt)
	}, "SELECT g.id, g.uuid, g.name, g.description, g.visible_to_all, g.owner_uuid, g.created_at FROM account_groups g "+where, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	return &g, nil
}

func (s *DoltStore) AddGroupMembers(ctx context.Context, groupID int, accountIDs []int) error {
	for _, id := range accountIDs {
		if _, err := s.execContext(ctx,
			"INSERT IGNORE INTO group_members (group_id, account_id) VALUES (?, ?)", groupID, id); err != nil {
			return fmt.Errorf("failed to add member %d to group %d: %w", id, groupID, err)
		}
	}
	return nil
}

func (s *DoltStore) AddGroupIncludes(ctx context.Context, groupID int, includedUUIDs []string) error {
	for _, uuid := range includedUUIDs {
		if _, err := s.execContext(ctx,
			"INSERT IGNORE INTO group_includes (group_id, include_uuid) VALUES (?, ?)", groupID, uuid); err != nil {
			return fmt.Errorf("failed to include %s in group %d: %w", uuid, groupID, err)
		}
	}
	return nil
}

func (s *DoltStore) GetGroupMembers(ctx context.Context, groupID int) ([]int, error) {
	rows, err := s.queryContext(ctx,
		"SELECT account_id FROM group_members WHERE group_id = ? ORDER BY account_id", groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members of group %d: %w", groupID, err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *DoltStore) GetGroupIncludes(ctx context.Context, groupID int) ([]string, error) {
	return s.queryStrings(ctx,
		"SELECT include_uuid FROM group_includes WHERE group_id = ? ORDER BY include_uuid", groupID)
}

func (s *DoltStore) GetGroupsByMember(ctx context.Context, accountID int) ([]string, error) {
	return s.queryStrings(ctx, `
		SELECT g.uuid FROM group_members m JOIN account_groups g ON g.id = m.group_id
		WHERE m.account_id = ? ORDER BY g.uuid`, accountID)
}

func (s *DoltStore) GetParentGroups(ctx context.Context, uuid string) ([]string, error) {
	return s.queryStrings(ctx, `
		SELECT g.uuid FROM group_includes i JOIN account_groups g ON g.id = i.group_id
		WHERE i.include_uuid = ? ORDER BY g.uuid`, uuid)
}

func (s *DoltStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
