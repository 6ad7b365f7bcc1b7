// Package dolt implements the storage interface using Dolt (versioned MySQL-compatible database).
//
// Connection modes:
//   - Embedded: No server required, database/sql interface via dolthub/driver (CGO only)
//   - Server: Connect to a running dolt sql-server (or any MySQL 8 server) via go-sql-driver/mysql
//
// Every write runs as its own statement; there are no cross-entity
// transactions. Commit records the working set as a Dolt commit once an
// import finishes.
package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"

	"github.com/steveyegge/gimport/internal/storage"
)

// DefaultSQLPort is the port dolt sql-server listens on by default in this project.
const DefaultSQLPort = 3307

// DoltStore implements the Storage interface using Dolt
type DoltStore struct {
	db         *sql.DB
	dbPath     string      // Path to Dolt database directory (embedded mode)
	closed     atomic.Bool // Tracks whether Close() has been called
	serverMode bool        // True if connected to dolt sql-server (vs embedded)

	// connector is non-nil only in embedded mode. It must be closed to release
	// filesystem locks held by the embedded engine.
	connector io.Closer

	committerName  string
	committerEmail string
}

var _ storage.Storage = (*DoltStore)(nil)

// Config holds Dolt database configuration
type Config struct {
	Path           string // Path to Dolt database directory
	CommitterName  string // Git-style committer name
	CommitterEmail string // Git-style committer email
	Database       string // Database name within Dolt (default: "gimport")

	// Server mode options
	ServerMode     bool   // Connect to dolt sql-server instead of embedded
	ServerHost     string // Server host (default: 127.0.0.1)
	ServerPort     int    // Server port (default: 3307)
	ServerUser     string // MySQL user (default: root)
	ServerPassword string // MySQL password (default: empty, can be set via GIMPORT_DOLT_PASSWORD)
	ServerTLS      bool   // Enable TLS for server connections
}

// Server mode uses go-sql-driver/mysql which doesn't have built-in retry like the
// embedded driver. Transient connection errors on reads are retried for up to
// this long.
const serverRetryMaxElapsed = 30 * time.Second

func newServerRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = serverRetryMaxElapsed
	return bo
}

// isRetryableError returns true if the error is a transient connection error
// that should be retried in server mode.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, transient := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"lost connection", // MySQL error 2013
		"gone away",       // MySQL error 2006
		"i/o timeout",
	} {
		if strings.Contains(errStr, transient) {
			return true
		}
	}
	return false
}

// isDuplicateKeyError reports whether err is a unique-key violation. The
// embedded engine does not return *mysql.MySQLError, so the message is
// checked as well.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "duplicate entry") || strings.Contains(errStr, "duplicate primary key") ||
		strings.Contains(errStr, "duplicate unique key")
}

// withRetry executes an operation with retry for transient errors.
// Only active in server mode; embedded mode has driver-level retry.
func (s *DoltStore) withRetry(ctx context.Context, op func() error) error {
	if !s.serverMode {
		return op()
	}

	bo := newServerRetryBackoff()
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isRetryableError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

// execContext runs a write exactly once. A write that failed on a dropped
// connection may still have committed, and repeating it would turn that
// success into a duplicate-key error, so only reads are retried.
func (s *DoltStore) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

// queryContext wraps s.db.QueryContext with server-mode retry for transient errors.
func (s *DoltStore) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := s.withRetry(ctx, func() error {
		var queryErr error
		rows, queryErr = s.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	return rows, err
}

// queryRowContext wraps s.db.QueryRowContext with server-mode retry for transient errors.
// The scan function receives the *sql.Row and should call .Scan() on it.
func (s *DoltStore) queryRowContext(ctx context.Context, scan func(*sql.Row) error, query string, args ...any) error {
	return s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, query, args...)
		return scan(row)
	})
}

// New creates a new Dolt storage backend
func New(ctx context.Context, cfg *Config) (*DoltStore, error) {
	if cfg.Path == "" && !cfg.ServerMode {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.Database == "" {
		cfg.Database = "gimport"
	}
	if err := validateDatabaseName(cfg.Database); err != nil {
		return nil, fmt.Errorf("invalid database name %q: %w", cfg.Database, err)
	}
	if cfg.CommitterName == "" {
		cfg.CommitterName = os.Getenv("GIT_AUTHOR_NAME")
		if cfg.CommitterName == "" {
			cfg.CommitterName = "gimport"
		}
	}
	if cfg.CommitterEmail == "" {
		cfg.CommitterEmail = os.Getenv("GIT_AUTHOR_EMAIL")
		if cfg.CommitterEmail == "" {
			cfg.CommitterEmail = "gimport@local"
		}
	}

	if !cfg.ServerMode {
		return newEmbeddedMode(ctx, cfg)
	}

	if cfg.ServerHost == "" {
		cfg.ServerHost = "127.0.0.1"
	}
	if cfg.ServerPort == 0 {
		cfg.ServerPort = DefaultSQLPort
	}
	if cfg.ServerUser == "" {
		cfg.ServerUser = "root"
	}
	// Check environment variable for password (more secure than command-line)
	if cfg.ServerPassword == "" {
		cfg.ServerPassword = os.Getenv("GIMPORT_DOLT_PASSWORD")
	}

	// Fail-fast TCP check before MySQL protocol initialization.
	addr := net.JoinHostPort(cfg.ServerHost, fmt.Sprintf("%d", cfg.ServerPort))
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("Dolt server unreachable at %s: %w\n\nThe Dolt server may not be running. Try:\n  dolt sql-server  # in the database directory", addr, err)
	}
	_ = conn.Close()

	db, err := openServerConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := &DoltStore{
		db:             db,
		serverMode:     true,
		committerName:  cfg.CommitterName,
		committerEmail: cfg.CommitterEmail,
	}
	if err := store.withRetry(ctx, func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping Dolt server: %w", err)
	}
	if err := initSchemaOnDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// buildServerDSN constructs a MySQL DSN for connecting to a Dolt server.
// If database is empty, connects without selecting a database (for init operations).
func buildServerDSN(cfg *Config, database string) string {
	mc := mysql.NewConfig()
	mc.User = cfg.ServerUser
	mc.Passwd = cfg.ServerPassword
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.ServerHost, fmt.Sprintf("%d", cfg.ServerPort))
	mc.DBName = database
	mc.ParseTime = true
	mc.Loc = time.UTC
	if cfg.ServerTLS {
		mc.TLSConfig = "true"
	}
	return mc.FormatDSN()
}

// openServerConnection opens a connection to a dolt sql-server via MySQL protocol
func openServerConnection(ctx context.Context, cfg *Config) (*sql.DB, error) {
	// First connect without database to create it
	initDB, err := sql.Open("mysql", buildServerDSN(cfg, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to open init connection: %w", err)
	}
	defer func() { _ = initDB.Close() }()

	_, err = initDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database)) //nolint:gosec // G201: cfg.Database validated by validateDatabaseName
	if err != nil {
		// Dolt may return error 1007 even with IF NOT EXISTS - ignore if database already exists
		errLower := strings.ToLower(err.Error())
		if !strings.Contains(errLower, "database exists") && !strings.Contains(errLower, "1007") {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	db, err := sql.Open("mysql", buildServerDSN(cfg, cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to open Dolt server connection: %w", err)
	}

	// Server mode supports multi-writer, configure reasonable pool size
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// validateDatabaseName allows only the characters that are safe inside a
// backtick-quoted identifier.
func validateDatabaseName(name string) error {
	if len(name) > 64 {
		return fmt.Errorf("longer than 64 characters")
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return fmt.Errorf("contains invalid character %q", r)
		}
	}
	return nil
}

// Close closes the database connection
func (s *DoltStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	var err error
	if s.db != nil {
		err = errors.Join(err, ignoreContextCanceled(s.db.Close()))
	}
	// For embedded mode, ensure the underlying engine is closed to release filesystem locks.
	if s.connector != nil {
		err = errors.Join(err, ignoreContextCanceled(s.connector.Close()))
		s.connector = nil
	}
	return err
}

func ignoreContextCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Path returns the database directory path
func (s *DoltStore) Path() string {
	return s.dbPath
}

// Commit records all pending writes as one Dolt commit. A clean working
// set is not an error.
func (s *DoltStore) Commit(ctx context.Context, message string) error {
	author := fmt.Sprintf("%s <%s>", s.committerName, s.committerEmail)
	_, err := s.execContext(ctx, "CALL DOLT_COMMIT('-Am', ?, '--author', ?)", message, author)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "nothing to commit") {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
