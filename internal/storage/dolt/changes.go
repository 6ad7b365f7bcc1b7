package dolt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/types"
)

func (s *DoltStore) NextChangeID(ctx context.Context) (int, error) {
	return s.nextSequenceValue(ctx, "change_id_seq")
}

func (s *DoltStore) InsertChange(ctx context.Context, c *types.Change) error {
	_, err := s.execContext(ctx, `
		INSERT INTO changes (id, change_key, project, branch, owner_id, subject, status, topic,
			current_patch_set, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Key, c.Project, c.Branch, c.OwnerID, c.Subject, string(c.Status), c.Topic,
		c.CurrentPatchSet, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if isDuplicateKeyError(err) {
		return fmt.Errorf("change %s on %s: %w", c.Key, c.Branch, storage.ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("failed to insert change %d: %w", c.ID, err)
	}
	return nil
}

const changeColumns = `id, change_key, project, branch, owner_id, subject, status, topic,
	current_patch_set, created_at, updated_at`

func scanChange(scan func(dest ...any) error) (*types.Change, error) {
	var c types.Change
	var status string
	if err := scan(&c.ID, &c.Key, &c.Project, &c.Branch, &c.OwnerID, &c.Subject, &status, &c.Topic,
		&c.CurrentPatchSet, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = types.ChangeStatus(status)
	return &c, nil
}

func (s *DoltStore) getChange(ctx context.Context, what, where string, args ...any) (*types.Change, error) {
	var c *types.Change
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		var scanErr error
		c, scanErr = scanChange(row.Scan)
		return scanErr
	}, "SELECT "+changeColumns+" FROM changes "+where, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	return c, nil
}

func (s *DoltStore) GetChange(ctx context.Context, id int) (*types.Change, error) {
	return s.getChange(ctx, fmt.Sprintf("change %d", id), "WHERE id = ?", id)
}

func (s *DoltStore) FindChange(ctx context.Context, project, branch, key string) (*types.Change, error) {
	return s.getChange(ctx, fmt.Sprintf("change %s on %s", key, branch),
		"WHERE project = ? AND branch = ? AND change_key = ?", project, branch, key)
}

func (s *DoltStore) ListChanges(ctx context.Context, project string) ([]*types.Change, error) {
	rows, err := s.queryContext(ctx, "SELECT "+changeColumns+" FROM changes WHERE project = ? ORDER BY id", project)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes of %s: %w", project, err)
	}
	defer rows.Close()

	var out []*types.Change
	for rows.Next() {
		c, err := scanChange(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *DoltStore) InsertPatchSets(ctx context.Context, patchSets []*types.PatchSet) error {
	for _, ps := range patchSets {
		_, err := s.execContext(ctx, `
			INSERT INTO patch_sets (change_id, number, revision, uploader_id, ref, draft, parents, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, ps.ChangeID, ps.Number, ps.Revision, ps.UploaderID, ps.Ref, ps.Draft,
			strings.Join(ps.Parents, " "), ps.CreatedAt.UTC())
		if isDuplicateKeyError(err) {
			return fmt.Errorf("patch set %d,%d: %w", ps.ChangeID, ps.Number, storage.ErrDuplicateKey)
		}
		if err != nil {
			return fmt.Errorf("failed to insert patch set %d,%d: %w", ps.ChangeID, ps.Number, err)
		}
	}
	return nil
}

func (s *DoltStore) GetPatchSets(ctx context.Context, changeID int) ([]*types.PatchSet, error) {
	rows, err := s.queryContext(ctx, `
		SELECT change_id, number, revision, uploader_id, ref, draft, parents, created_at
		FROM patch_sets WHERE change_id = ? ORDER BY number`, changeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get patch sets of change %d: %w", changeID, err)
	}
	defer rows.Close()

	var out []*types.PatchSet
	for rows.Next() {
		var ps types.PatchSet
		var parents string
		if err := rows.Scan(&ps.ChangeID, &ps.Number, &ps.Revision, &ps.UploaderID, &ps.Ref, &ps.Draft,
			&parents, &ps.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan patch set: %w", err)
		}
		ps.Parents = strings.Fields(parents)
		out = append(out, &ps)
	}
	return out, rows.Err()
}

func (s *DoltStore) InsertComments(ctx context.Context, comments []*types.Comment) error {
	for _, c := range comments {
		var startLine, startChar, endLine, endChar sql.NullInt64
		if r := c.Range; r != nil {
			startLine = sql.NullInt64{Int64: int64(r.StartLine), Valid: true}
			startChar = sql.NullInt64{Int64: int64(r.StartCharacter), Valid: true}
			endLine = sql.NullInt64{Int64: int64(r.EndLine), Valid: true}
			endChar = sql.NullInt64{Int64: int64(r.EndCharacter), Valid: true}
		}
		_, err := s.execContext(ctx, `
			INSERT INTO comments (change_id, patch_set, uuid, parent_uuid, path, side, line,
				range_start_line, range_start_char, range_end_line, range_end_char,
				message, author_id, written_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ChangeID, c.PatchSetNumber, c.UUID, c.ParentUUID, c.Path, c.Side, c.Line,
			startLine, startChar, endLine, endChar, c.Message, c.AuthorID, c.WrittenAt.UTC())
		if isDuplicateKeyError(err) {
			return fmt.Errorf("comment %s: %w", c.UUID, storage.ErrDuplicateKey)
		}
		if err != nil {
			return fmt.Errorf("failed to insert comment %s: %w", c.UUID, err)
		}
	}
	return nil
}

func (s *DoltStore) GetComments(ctx context.Context, changeID int) ([]*types.Comment, error) {
	rows, err := s.queryContext(ctx, `
		SELECT change_id, patch_set, uuid, parent_uuid, path, side, line,
			range_start_line, range_start_char, range_end_line, range_end_char,
			message, author_id, written_at
		FROM comments WHERE change_id = ? ORDER BY written_at, uuid`, changeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get comments of change %d: %w", changeID, err)
	}
	defer rows.Close()

	var out []*types.Comment
	for rows.Next() {
		var c types.Comment
		var startLine, startChar, endLine, endChar sql.NullInt64
		if err := rows.Scan(&c.ChangeID, &c.PatchSetNumber, &c.UUID, &c.ParentUUID, &c.Path, &c.Side, &c.Line,
			&startLine, &startChar, &endLine, &endChar, &c.Message, &c.AuthorID, &c.WrittenAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		if startLine.Valid {
			c.Range = &types.CommentRange{
				StartLine:      int(startLine.Int64),
				StartCharacter: int(startChar.Int64),
				EndLine:        int(endLine.Int64),
				EndCharacter:   int(endChar.Int64),
			}
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *DoltStore) InsertChangeMessages(ctx context.Context, messages []*types.ChangeMessage) error {
	for _, m := range messages {
		var author sql.NullInt64
		if m.AuthorID != nil {
			author = sql.NullInt64{Int64: int64(*m.AuthorID), Valid: true}
		}
		_, err := s.execContext(ctx, `
			INSERT INTO change_messages (change_id, uuid, author_id, patch_set, message, written_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, m.ChangeID, m.UUID, author, m.PatchSetNumber, m.Message, m.WrittenAt.UTC())
		if isDuplicateKeyError(err) {
			return fmt.Errorf("message %s: %w", m.UUID, storage.ErrDuplicateKey)
		}
		if err != nil {
			return fmt.Errorf("failed to insert message %s: %w", m.UUID, err)
		}
	}
	return nil
}

func (s *DoltStore) GetChangeMessages(ctx context.Context, changeID int) ([]*types.ChangeMessage, error) {
	rows, err := s.queryContext(ctx, `
		SELECT change_id, uuid, author_id, patch_set, message, written_at
		FROM change_messages WHERE change_id = ? ORDER BY written_at, uuid`, changeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages of change %d: %w", changeID, err)
	}
	defer rows.Close()

	var out []*types.ChangeMessage
	for rows.Next() {
		var m types.ChangeMessage
		var author sql.NullInt64
		if err := rows.Scan(&m.ChangeID, &m.UUID, &author, &m.PatchSetNumber, &m.Message, &m.WrittenAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if author.Valid {
			id := int(author.Int64)
			m.AuthorID = &id
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *DoltStore) InsertApprovals(ctx context.Context, approvals []*types.Approval) error {
	for _, a := range approvals {
		_, err := s.execContext(ctx, `
			INSERT INTO approvals (change_id, patch_set, account_id, label, value, granted_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, a.ChangeID, a.PatchSetNumber, a.AccountID, a.Label, a.Value, a.GrantedAt.UTC())
		if isDuplicateKeyError(err) {
			return fmt.Errorf("approval %s by %d: %w", a.Label, a.AccountID, storage.ErrDuplicateKey)
		}
		if err != nil {
			return fmt.Errorf("failed to insert approval %s by %d: %w", a.Label, a.AccountID, err)
		}
	}
	return nil
}

func (s *DoltStore) GetApprovals(ctx context.Context, changeID int) ([]*types.Approval, error) {
	rows, err := s.queryContext(ctx, `
		SELECT change_id, patch_set, account_id, label, value, granted_at
		FROM approvals WHERE change_id = ? ORDER BY patch_set, label, account_id`, changeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get approvals of change %d: %w", changeID, err)
	}
	defer rows.Close()

	var out []*types.Approval
	for rows.Next() {
		var a types.Approval
		if err := rows.Scan(&a.ChangeID, &a.PatchSetNumber, &a.AccountID, &a.Label, &a.Value, &a.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *DoltStore) AddHashtags(ctx context.Context, changeID int, hashtags []string) error {
	for _, h := range hashtags {
		if _, err := s.execContext(ctx,
			"INSERT IGNORE INTO hashtags (change_id, hashtag) VALUES (?, ?)", changeID, h); err != nil {
			return fmt.Errorf("failed to add hashtag %s to change %d: %w", h, changeID, err)
		}
	}
	return nil
}

func (s *DoltStore) GetHashtags(ctx context.Context, changeID int) ([]string, error) {
	return s.queryStrings(ctx, "SELECT hashtag FROM hashtags WHERE change_id = ? ORDER BY hashtag", changeID)
}

func (s *DoltStore) InsertOriginLink(ctx context.Context, link *types.OriginLink) error {
	created := link.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.execContext(ctx, `
		INSERT INTO origin_links (change_id, source_host, source_project, source_number, source_change_id, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, link.ChangeID, link.SourceHost, link.SourceProject, link.SourceNumber, link.SourceChangeID, link.URL, created.UTC())
	if isDuplicateKeyError(err) {
		return fmt.Errorf("origin link for change %d: %w", link.ChangeID, storage.ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("failed to insert origin link for change %d: %w", link.ChangeID, err)
	}
	return nil
}

func (s *DoltStore) GetOriginLink(ctx context.Context, changeID int) (*types.OriginLink, error) {
	var l types.OriginLink
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&l.ChangeID, &l.SourceHost, &l.SourceProject, &l.SourceNumber, &l.SourceChangeID, &l.URL, &l.CreatedAt)
	}, `SELECT change_id, source_host, source_project, source_number, source_change_id, url, created_at
		FROM origin_links WHERE change_id = ?`, changeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("origin link for change %d: %w", changeID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get origin link for change %d: %w", changeID, err)
	}
	return &l, nil
}

// PutChangeDocument stores the document as JSON, replacing any previous one.
func (s *DoltStore) PutChangeDocument(ctx context.Context, doc *types.ChangeDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document for change %d: %w", doc.ChangeID, err)
	}
	_, err = s.execContext(ctx, `
		INSERT INTO change_documents (change_id, project, body, indexed_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE project = VALUES(project), body = VALUES(body), indexed_at = VALUES(indexed_at)
	`, doc.ChangeID, doc.Project, string(body), doc.IndexedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to index change %d: %w", doc.ChangeID, err)
	}
	return nil
}

func (s *DoltStore) GetChangeDocument(ctx context.Context, changeID int) (*types.ChangeDocument, error) {
	var body string
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&body)
	}, "SELECT body FROM change_documents WHERE change_id = ?", changeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document for change %d: %w", changeID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document for change %d: %w", changeID, err)
	}
	var doc types.ChangeDocument
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document for change %d: %w", changeID, err)
	}
	return &doc, nil
}
