package importer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/gimport/internal/debug"
	"github.com/steveyegge/gimport/internal/errdefs"
	"github.com/steveyegge/gimport/internal/lockfile"
	"github.com/steveyegge/gimport/internal/telemetry"
)

// Outcome is how a background task ended.
type Outcome string

const (
	ResultOK      Outcome = "ok"
	ResultSkipped Outcome = "skipped"
	ResultFailed  Outcome = "failed"
)

// Task transfers the repository of one project in the background. Unlike
// ProjectImporter.Import it neither configures the project nor replays its
// changes, and it never touches a repository that already exists.
type Task struct {
	Name string
	From string
	User string
	Pass string
}

// TaskResult is the outcome of one Task. Message is meant for the operator.
type TaskResult struct {
	Project string  `json:"project"`
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message"`
}

// RunTask runs t. It never returns an error; every failure is reported in the
// result.
func (p *ProjectImporter) RunTask(ctx context.Context, t Task) TaskResult {
	res := p.runTask(ctx, t)
	telemetry.RecordImport(ctx, "task", string(res.Outcome))
	debug.Logf("%s\n", res.Message)
	return res
}

func (p *ProjectImporter) runTask(ctx context.Context, t Task) TaskResult {
	failed := func(format string, args ...interface{}) TaskResult {
		return TaskResult{Project: t.Name, Outcome: ResultFailed, Message: fmt.Sprintf(format, args...)}
	}

	if err := (Input{From: t.From, User: t.User, Pass: t.Pass}).Validate(); err != nil {
		return failed("Invalid import of project '%s': %v", t.Name, err)
	}

	lock, err := lockfile.Acquire(p.deps.LockRoot, t.Name)
	if errors.Is(err, errdefs.ErrConflict) {
		return TaskResult{
			Project: t.Name,
			Outcome: ResultSkipped,
			Message: fmt.Sprintf("Project %s is being imported from another session, skipping", t.Name),
		}
	}
	if err != nil {
		return failed("Error while trying to lock the project %s for import: %v", t.Name, err)
	}
	defer func() { _ = lock.Release() }()

	if p.deps.Repos.Exists(t.Name) {
		return TaskResult{
			Project: t.Name,
			Outcome: ResultSkipped,
			Message: fmt.Sprintf("Repository %s already exists.", t.Name),
		}
	}

	summary, err := p.transfer(ctx, t)
	if err != nil {
		return failed("Unable to transfer project '%s' from source host '%s': %v. Check log for details.", t.Name, t.From, err)
	}
	return TaskResult{
		Project: t.Name,
		Outcome: ResultOK,
		Message: fmt.Sprintf("[INFO] Project '%s' fetched: %s", t.Name, summary),
	}
}

func (p *ProjectImporter) transfer(ctx context.Context, t Task) (string, error) {
	repo, err := p.deps.Repos.Open(ctx, t.Name)
	if err != nil {
		return "", err
	}
	defer func() { _ = repo.Close() }()

	if err := p.deps.Repos.Configure(ctx, repo, t.Name, t.From); err != nil {
		return "", err
	}
	return p.deps.Repos.Fetch(ctx, repo, t.User, t.Pass)
}

// DefaultWorkers bounds a Scheduler with no explicit worker count.
const DefaultWorkers = 4

// Scheduler runs background tasks on a bounded number of goroutines.
type Scheduler struct {
	Importer *ProjectImporter
	Workers  int
}

// Run runs every task and returns their results in task order. Tasks for the
// same project exclude each other through the import lock, so a duplicate is
// reported as skipped.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) []TaskResult {
	workers := s.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	results := make([]TaskResult, len(tasks))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			results[i] = s.Importer.RunTask(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
