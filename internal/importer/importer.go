// Package importer runs project and group imports end to end.
//
// A project import is one pass through a fixed pipeline: take the import
// lock, resolve and validate the parent, open the repository, persist the
// request, mirror every ref from the source, configure the local project and
// replay its changes. Exactly one import log record is written per import
// that got past the lock. The lock and the repository are released on every
// path.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/gimport/internal/accounts"
	"github.com/steveyegge/gimport/internal/cache"
	"github.com/steveyegge/gimport/internal/debug"
	"github.com/steveyegge/gimport/internal/errdefs"
	"github.com/steveyegge/gimport/internal/gitrepo"
	"github.com/steveyegge/gimport/internal/importlog"
	"github.com/steveyegge/gimport/internal/index"
	"github.com/steveyegge/gimport/internal/lockfile"
	"github.com/steveyegge/gimport/internal/project"
	"github.com/steveyegge/gimport/internal/remote"
	"github.com/steveyegge/gimport/internal/replay"
	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/telemetry"
	"github.com/steveyegge/gimport/internal/types"
)

// Input is one project import request. Pass is used for the transfer only and
// is never persisted.
type Input struct {
	From   string `json:"from"`
	User   string `json:"user"`
	Pass   string `json:"pass"`
	Parent string `json:"parent,omitempty"`
}

// Validate checks the request before anything is locked or fetched.
func (in Input) Validate() error {
	if err := ValidateSource(in.From, in.User); err != nil {
		return err
	}
	if in.Pass == "" {
		return errdefs.BadRequest("pass is required")
	}
	return nil
}

// ValidateSource checks the source URL and user of a request. Callers that
// obtain the password interactively validate these first.
func ValidateSource(from, user string) error {
	if strings.TrimSpace(from) == "" {
		return errdefs.BadRequest("from is required")
	}
	u, err := url.Parse(from)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errdefs.BadRequest("from must be a valid URL")
	}
	if user == "" {
		return errdefs.BadRequest("user is required")
	}
	return nil
}

// RemoteFactory builds the API client for one source instance.
type RemoteFactory func(from, user, pass string) *remote.Client

// Committer is implemented by stores that version their writes, such as the
// Dolt store. Imports commit once after the store is fully written.
type Committer interface {
	Commit(ctx context.Context, message string) error
}

// Deps are the collaborators shared by project and group imports.
type Deps struct {
	Store    storage.Storage
	Repos    *gitrepo.Manager
	LockRoot string
	Log      *importlog.Log

	// NewRemote defaults to remote.NewClient.
	NewRemote RemoteFactory

	// DisableAccountCreation makes unknown remote accounts fail the import
	// instead of being created locally.
	DisableAccountCreation bool
}

func (d *Deps) remote(from, user, pass string) *remote.Client {
	if d.NewRemote != nil {
		return d.NewRemote(from, user, pass)
	}
	return remote.NewClient(from, user, pass)
}

// evictor returns the store's cache eviction hooks, or a no-op when the store
// is not cached.
func (d *Deps) evictor() cache.Evictor {
	if e, ok := d.Store.(cache.Evictor); ok {
		return e
	}
	return cache.Noop{}
}

func (d *Deps) resolver(client *remote.Client) *accounts.Resolver {
	r := accounts.NewResolver(d.Store, client, d.evictor())
	r.CreateMissing = !d.DisableAccountCreation
	return r
}

// commit versions the store if it supports it. A failed commit leaves the
// imported rows in the working set and is only reported.
func (d *Deps) commit(ctx context.Context, message string) {
	var s interface{} = d.Store
	if u, ok := s.(interface{ Unwrap() storage.Storage }); ok {
		s = u.Unwrap()
	}
	c, ok := s.(Committer)
	if !ok {
		return
	}
	if err := c.Commit(ctx, message); err != nil {
		debug.Logf("warning: failed to commit %q: %v\n", message, err)
	}
}

// Result summarizes a successful project import.
type Result struct {
	Project *types.Project
	Parent  string
	Fetch   string
	Stats   *replay.Stats
}

// ProjectImporter imports projects synchronously.
type ProjectImporter struct {
	deps Deps
}

// NewProjectImporter creates a project importer.
func NewProjectImporter(deps Deps) *ProjectImporter {
	return &ProjectImporter{deps: deps}
}

// Import imports project name from in.From. Lock contention fails fast with
// errdefs.ErrConflict and is not recorded in the import log.
func (p *ProjectImporter) Import(ctx context.Context, name string, in Input, actor importlog.Actor) (res *Result, err error) {
	ctx, end := telemetry.StartStage(ctx, "import", attribute.String("gimport.project", name))
	defer func() {
		end(err)
		outcome := "ok"
		if err != nil {
			outcome = errdefs.Kind(err)
		}
		telemetry.RecordImport(ctx, "project", outcome)
	}()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	lock, err := lockfile.Acquire(p.deps.LockRoot, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			debug.Logf("warning: failed to release import lock of %s: %v\n", name, rerr)
		}
	}()

	res, err = p.run(ctx, lock, name, in)
	if p.deps.Log != nil {
		p.deps.Log.OnImport(importlog.Event{
			Actor:         actor,
			From:          in.From,
			SourceProject: name,
			TargetProject: name,
			Err:           err,
		})
	}
	if err != nil {
		debug.Logf("import of %s from %s failed: %v\n", name, in.From, err)
		return nil, err
	}
	return res, nil
}

func (p *ProjectImporter) run(ctx context.Context, lock *lockfile.ImportLock, name string, in Input) (*Result, error) {
	client := p.deps.remote(in.From, in.User, in.Pass)
	stage := project.NewStage(p.deps.Store)

	parent, err := project.ResolveParent(ctx, client, name, in.Parent)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve parent of %s: %w", name, err)
	}
	if err := stage.Validate(ctx, parent); err != nil {
		return nil, err
	}

	repo, err := p.deps.Repos.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = repo.Close() }()

	if err := lock.Persist(types.ImportParams{From: in.From, User: in.User, Parent: in.Parent}); err != nil {
		return nil, err
	}

	done := debug.Stage(name, "fetch")
	if err := p.deps.Repos.Configure(ctx, repo, name, in.From); err != nil {
		return nil, err
	}
	summary, err := p.deps.Repos.Fetch(ctx, repo, in.User, in.Pass)
	done()
	if err != nil {
		return nil, err
	}

	proj, err := stage.Configure(ctx, name, parent)
	if err != nil {
		return nil, err
	}

	done = debug.Stage(name, "replay")
	stats, err := replay.New(p.deps.Store, client, repo, p.deps.resolver(client), index.New(p.deps.Store), in.From).Replay(ctx, name)
	done()
	if err != nil {
		return nil, err
	}

	p.deps.commit(ctx, fmt.Sprintf("import project %s from %s", name, in.From))
	return &Result{Project: proj, Parent: parent, Fetch: summary, Stats: stats}, nil
}

// Resume re-runs the import of name with the parameters persisted by the
// last attempt. Changes that attempt completed are skipped and a change it
// left half written is completed.
func (p *ProjectImporter) Resume(ctx context.Context, name, pass string, actor importlog.Actor) (*Result, error) {
	params, err := lockfile.ReadParams(p.deps.LockRoot, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errdefs.BadRequest("project %s was never imported", name)
	}
	if err != nil {
		return nil, err
	}
	return p.Import(ctx, name, Input{
		From:   params.From,
		User:   params.User,
		Pass:   pass,
		Parent: params.Parent,
	}, actor)
}
