package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/steveyegge/gimport/internal/audit"
	"github.com/steveyegge/gimport/internal/cache"
	"github.com/steveyegge/gimport/internal/config"
	"github.com/steveyegge/gimport/internal/debug"
	"github.com/steveyegge/gimport/internal/gitrepo"
	"github.com/steveyegge/gimport/internal/groups"
	"github.com/steveyegge/gimport/internal/importer"
	"github.com/steveyegge/gimport/internal/importlog"
	"github.com/steveyegge/gimport/internal/remote"
	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/storage/factory"
)

// env holds the collaborators opened for one command.
type env struct {
	store storage.Storage
	log   *importlog.Log
	deps  importer.Deps
}

var current *env

// openEnv opens the store, the import log and the repository manager from
// the configuration. It is called once per command that imports.
func openEnv(ctx context.Context) (*env, error) {
	if current != nil {
		return current, nil
	}
	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	backend := config.GetString(config.KeyStore)
	debug.Logf("opening %s store\n", backend)
	base, err := factory.New(ctx, backend, factory.Options{
		Path:       config.DoltPath(),
		Database:   config.GetString(config.KeyDoltDB),
		ServerHost: config.GetString(config.KeyDoltHost),
		ServerPort: config.GetInt(config.KeyDoltPort),
		ServerUser: config.GetString(config.KeyDoltUser),
		ServerTLS:  config.GetBool(config.KeyDoltTLS),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", backend, err)
	}
	store := cache.Wrap(base, config.GetInt(config.KeyCacheSize))

	log, err := importlog.New(importlog.Options{
		Path:  filepath.Join(dataDir, importlog.FileName),
		Audit: audit.Open(filepath.Join(dataDir, audit.FileName)),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	repos := gitrepo.NewManager(config.GitBasePath())
	repos.SSLVerify = config.GetBool(config.KeySSLVerify)

	timeout := config.GetDuration(config.KeyTimeout)
	pageSize := config.GetInt(config.KeyPageSize)

	current = &env{
		store: store,
		log:   log,
		deps: importer.Deps{
			Store:    store,
			Repos:    repos,
			LockRoot: config.LockDir(),
			Log:      log,
			NewRemote: func(from, user, pass string) *remote.Client {
				return remote.NewClient(from, user, pass).
					WithHTTPClient(&http.Client{Timeout: timeout}).
					WithPageSize(pageSize)
			},
			DisableAccountCreation: !config.GetBool(config.KeyCreateAcct),
		},
	}
	return current, nil
}

// closeEnv releases whatever openEnv opened. Safe to call more than once.
func closeEnv() {
	if current == nil {
		return
	}
	var errs []error
	if current.log != nil {
		errs = append(errs, current.log.Close())
	}
	if current.store != nil {
		errs = append(errs, current.store.Close())
	}
	current = nil
	if err := errors.Join(errs...); err != nil {
		WarnError("failed to close: %v", err)
	}
}

// groupPolicies loads the configured group creation policy, if any.
func groupPolicies() ([]groups.Policy, error) {
	path := config.GetString(config.KeyPolicyFile)
	if path == "" {
		return nil, nil
	}
	p, err := groups.LoadPolicyFile(path)
	if err != nil {
		return nil, err
	}
	return []groups.Policy{p}, nil
}

// resolveActor identifies who runs the import. The account ID is the local
// account with the actor's username, or 0 when there is none.
func resolveActor(ctx context.Context, store storage.AccountStore) importlog.Actor {
	name := actor
	if name == "" {
		name = config.GetString(config.KeyActor)
	}
	if name == "" {
		name = os.Getenv("USER")
	}
	if name == "" {
		name = "unknown"
	}
	a := importlog.Actor{UserName: name}
	if store == nil {
		return a
	}
	if acct, err := store.GetAccountByUsername(ctx, name); err == nil {
		a.AccountID = acct.ID
	} else if !errors.Is(err, storage.ErrNotFound) {
		debug.Logf("failed to look up actor %s: %v\n", name, err)
	}
	return a
}
