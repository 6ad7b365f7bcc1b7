package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/types"
)

// nextSequenceValue draws the next ID from an AUTO_INCREMENT sequence table.
func (s *DoltStore) nextSequenceValue(ctx context.Context, table string) (int, error) {
	res, err := s.execContext(ctx, "INSERT INTO "+table+" (stub) VALUES (0)") //nolint:gosec // G202: table is a package constant
	if err != nil {
		return 0, fmt.Errorf("failed to allocate from %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read id from %s: %w", table, err)
	}
	return int(id), nil
}

func (s *DoltStore) NextAccountID(ctx context.Context) (int, error) {
	return s.nextSequenceValue(ctx, "account_id_seq")
}

func (s *DoltStore) CreateAccount(ctx context.Context, a *types.Account) error {
	_, err := s.execContext(ctx, `
		INSERT INTO accounts (id, username, full_name, email, active, registered_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, nullString(a.Username), a.FullName, nullString(a.Email), a.Active, a.RegisteredAt.UTC())
	if isDuplicateKeyError(err) {
		return fmt.Errorf("account %d (%s): %w", a.ID, a.Username, storage.ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("failed to create account %d: %w", a.ID, err)
	}
	return nil
}

const accountColumns = "id, username, full_name, email, active, registered_at"

func (s *DoltStore) GetAccount(ctx context.Context, id int) (*types.Account, error) {
	return s.scanAccount(ctx, fmt.Sprintf("account %d", id),
		"SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
}

func (s *DoltStore) GetAccountByUsername(ctx context.Context, username string) (*types.Account, error) {
	return s.scanAccount(ctx, "account with username "+username,
		"SELECT "+accountColumns+" FROM accounts WHERE username = ?", username)
}

// GetAccountByEmail matches case-insensitively; Dolt's default collation is binary.
func (s *DoltStore) GetAccountByEmail(ctx context.Context, email string) (*types.Account, error) {
	return s.scanAccount(ctx, "account with email "+email,
		"SELECT "+accountColumns+" FROM accounts WHERE LOWER(email) = LOWER(?) ORDER BY id LIMIT 1", email)
}

func (s *DoltStore) scanAccount(ctx context.Context, what, query string, args ...any) (*types.Account, error) {
	var a types.Account
	var username, email sql.NullString
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&a.ID, &username, &a.FullName, &email, &a.Active, &a.RegisteredAt)
	}, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	a.Username = username.String
	a.Email = email.String
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
