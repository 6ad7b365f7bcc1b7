//go:build cgo

package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	embedded "github.com/dolthub/driver"
)

const embeddedOpenMaxElapsed = 30 * time.Second

func newEmbeddedOpenBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = embeddedOpenMaxElapsed
	return bo
}

// newEmbeddedMode creates a DoltStore using the embedded Dolt engine (requires CGO).
func newEmbeddedMode(ctx context.Context, cfg *Config) (*DoltStore, error) {
	if info, statErr := os.Stat(cfg.Path); statErr == nil && !info.IsDir() {
		return nil, fmt.Errorf("database path %q is a file, not a directory", cfg.Path)
	}
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// The embedded driver changes its working directory to the DSN path, so a
	// relative path would be applied twice.
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	initDSN := fmt.Sprintf(
		"file://%s?commitname=%s&commitemail=%s",
		absPath, cfg.CommitterName, cfg.CommitterEmail,
	)
	dbDSN := fmt.Sprintf(
		"file://%s?commitname=%s&commitemail=%s&database=%s",
		absPath, cfg.CommitterName, cfg.CommitterEmail, cfg.Database,
	)

	// UOW 1: ensure database exists.
	if err := withEmbeddedDolt(ctx, initDSN, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database))
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to create dolt database: %w", err)
	}

	// UOW 2: initialize schema (idempotent).
	if err := withEmbeddedDolt(ctx, dbDSN, initSchemaOnDB); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	db, connector, err := openEmbeddedConnection(dbDSN)
	if err != nil {
		return nil, err
	}

	// The embedded driver reuses the context of the first Connect for the
	// session, so the pool must not be opened with a cancelable ctx.
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, fmt.Errorf("failed to ping Dolt database: %w", err)
	}

	return &DoltStore{
		db:             db,
		dbPath:         absPath,
		connector:      connector,
		committerName:  cfg.CommitterName,
		committerEmail: cfg.CommitterEmail,
	}, nil
}

// openEmbeddedConnection opens a connection using the embedded Dolt driver
func openEmbeddedConnection(dsn string) (*sql.DB, *embedded.Connector, error) {
	openCfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Dolt DSN: %w", err)
	}
	openCfg.BackOff = newEmbeddedOpenBackoff()

	connector, err := embedded.NewConnector(openCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Dolt connector: %w", err)
	}
	db := sql.OpenDB(connector)

	// Dolt embedded mode is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, connector, nil
}

// withEmbeddedDolt executes exactly one unit of work using a single embedded
// Dolt connector, then closes the connector to release filesystem locks.
func withEmbeddedDolt(ctx context.Context, dsn string, fn func(ctx context.Context, db *sql.DB) error) (err error) {
	db, connector, err := openEmbeddedConnection(dsn)
	if err != nil {
		return err
	}
	defer func() {
		// Close DB first (stops pool activity), then the connector.
		cerr := errors.Join(
			ignoreContextCanceled(db.Close()),
			ignoreContextCanceled(connector.Close()),
		)
		err = errors.Join(err, cerr)
	}()

	if err := db.PingContext(ctx); err != nil {
		return err
	}
	return fn(ctx, db)
}
