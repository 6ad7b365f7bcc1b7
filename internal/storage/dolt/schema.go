package dolt

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// currentSchemaVersion is bumped whenever schema changes.
const currentSchemaVersion = 1

// Sequence tables hand out IDs through AUTO_INCREMENT so concurrent
// processes never allocate the same ID.
const schema = `
CREATE TABLE IF NOT EXISTS config (
    ` + "`key`" + ` VARCHAR(255) PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS account_id_seq (
    id INT AUTO_INCREMENT PRIMARY KEY,
    stub TINYINT NOT NULL DEFAULT 0
) AUTO_INCREMENT = 1000001;

CREATE TABLE IF NOT EXISTS group_id_seq (
    id INT AUTO_INCREMENT PRIMARY KEY,
    stub TINYINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS change_id_seq (
    id INT AUTO_INCREMENT PRIMARY KEY,
    stub TINYINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS projects (
    name VARCHAR(255) PRIMARY KEY,
    parent VARCHAR(255) NOT NULL DEFAULT '',
    description TEXT NOT NULL,
    state VARCHAR(32) NOT NULL DEFAULT 'active',
    config TEXT NOT NULL,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
    id INT PRIMARY KEY,
    username VARCHAR(255) NULL,
    full_name VARCHAR(255) NOT NULL DEFAULT '',
    email VARCHAR(255) NULL,
    active TINYINT(1) NOT NULL DEFAULT 1,
    registered_at DATETIME(6) NOT NULL,
    UNIQUE KEY uk_accounts_username (username),
    INDEX idx_accounts_email (email)
);

-- Reserved before the group row so two imports of one name collide here.
CREATE TABLE IF NOT EXISTS group_names (
    name VARCHAR(255) PRIMARY KEY,
    group_id INT NOT NULL
);

CREATE TABLE IF NOT EXISTS account_groups (
    id INT PRIMARY KEY,
    uuid VARCHAR(255) NOT NULL,
    name VARCHAR(255) NOT NULL,
    description TEXT NOT NULL,
    visible_to_all TINYINT(1) NOT NULL DEFAULT 0,
    owner_uuid VARCHAR(255) NOT NULL,
    created_at DATETIME(6) NOT NULL,
    UNIQUE KEY uk_account_groups_uuid (uuid)
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id INT NOT NULL,
    account_id INT NOT NULL,
    PRIMARY KEY (group_id, account_id),
    INDEX idx_group_members_account (account_id)
);

CREATE TABLE IF NOT EXISTS group_includes (
    group_id INT NOT NULL,
    include_uuid VARCHAR(255) NOT NULL,
    PRIMARY KEY (group_id, include_uuid),
    INDEX idx_group_includes_uuid (include_uuid)
);

CREATE TABLE IF NOT EXISTS changes (
    id INT PRIMARY KEY,
    change_key VARCHAR(64) NOT NULL,
    project VARCHAR(255) NOT NULL,
    branch VARCHAR(255) NOT NULL,
    owner_id INT NOT NULL,
    subject TEXT NOT NULL,
    status VARCHAR(16) NOT NULL,
    topic VARCHAR(255) NOT NULL DEFAULT '',
    current_patch_set INT NOT NULL,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    UNIQUE KEY uk_changes_natural (project, branch, change_key)
);

-- No foreign key to changes: patch sets are written before their change row.
CREATE TABLE IF NOT EXISTS patch_sets (
    change_id INT NOT NULL,
    number INT NOT NULL,
    revision CHAR(40) NOT NULL,
    uploader_id INT NOT NULL,
    ref VARCHAR(255) NOT NULL,
    draft TINYINT(1) NOT NULL DEFAULT 0,
    parents TEXT NOT NULL,
    created_at DATETIME(6) NOT NULL,
    PRIMARY KEY (change_id, number)
);

CREATE TABLE IF NOT EXISTS comments (
    change_id INT NOT NULL,
    patch_set INT NOT NULL,
    uuid VARCHAR(64) NOT NULL,
    parent_uuid VARCHAR(64) NOT NULL DEFAULT '',
    path TEXT NOT NULL,
    side TINYINT NOT NULL,
    line INT NOT NULL DEFAULT 0,
    range_start_line INT NULL,
    range_start_char INT NULL,
    range_end_line INT NULL,
    range_end_char INT NULL,
    message TEXT NOT NULL,
    author_id INT NOT NULL,
    written_at DATETIME(6) NOT NULL,
    PRIMARY KEY (change_id, uuid)
);

CREATE TABLE IF NOT EXISTS change_messages (
    change_id INT NOT NULL,
    uuid VARCHAR(64) NOT NULL,
    author_id INT NULL,
    patch_set INT NOT NULL DEFAULT 0,
    message TEXT NOT NULL,
    written_at DATETIME(6) NOT NULL,
    PRIMARY KEY (change_id, uuid)
);

CREATE TABLE IF NOT EXISTS approvals (
    change_id INT NOT NULL,
    patch_set INT NOT NULL,
    account_id INT NOT NULL,
    label VARCHAR(255) NOT NULL,
    value SMALLINT NOT NULL,
    granted_at DATETIME(6) NOT NULL,
    PRIMARY KEY (change_id, patch_set, account_id, label)
);

CREATE TABLE IF NOT EXISTS hashtags (
    change_id INT NOT NULL,
    hashtag VARCHAR(255) NOT NULL,
    PRIMARY KEY (change_id, hashtag)
);

CREATE TABLE IF NOT EXISTS origin_links (
    change_id INT PRIMARY KEY,
    source_host VARCHAR(255) NOT NULL,
    source_project VARCHAR(255) NOT NULL,
    source_number INT NOT NULL,
    source_change_id VARCHAR(64) NOT NULL,
    url TEXT NOT NULL,
    created_at DATETIME(6) NOT NULL
);

CREATE TABLE IF NOT EXISTS change_documents (
    change_id INT PRIMARY KEY,
    project VARCHAR(255) NOT NULL,
    body TEXT NOT NULL,
    indexed_at DATETIME(6) NOT NULL,
    INDEX idx_change_documents_project (project)
);
`

// initSchemaOnDB creates all tables if they don't exist
func initSchemaOnDB(ctx context.Context, db *sql.DB) error {
	// Fast path: schema already current.
	var version int
	err := db.QueryRowContext(ctx, "SELECT `value` FROM config WHERE `key` = 'schema_version'").Scan(&version)
	if err == nil && version >= currentSchemaVersion {
		return nil
	}

	// MySQL/Dolt doesn't support multiple statements in one Exec
	for _, stmt := range splitStatements(schema) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || isOnlyComments(stmt) {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w\nStatement: %s", err, truncateForError(stmt))
		}
	}

	_, err = db.ExecContext(ctx,
		"INSERT INTO config (`key`, `value`) VALUES ('schema_version', ?) "+
			"ON DUPLICATE KEY UPDATE `value` = ?",
		currentSchemaVersion, currentSchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// splitStatements splits a SQL script into individual statements
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := byte(0)

	for i := 0; i < len(script); i++ {
		c := script[i]

		if inString {
			current.WriteByte(c)
			if c == stringChar && (i == 0 || script[i-1] != '\\') {
				inString = false
			}
			continue
		}

		if c == '\'' || c == '"' || c == '`' {
			inString = true
			stringChar = c
			current.WriteByte(c)
			continue
		}

		if c == ';' {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}

		current.WriteByte(c)
	}

	// Handle last statement without semicolon
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}

// truncateForError truncates a string for use in error messages
func truncateForError(s string) string {
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}

// isOnlyComments returns true if the statement contains only SQL comments
func isOnlyComments(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return false
	}
	return true
}
