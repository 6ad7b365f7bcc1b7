// Package lockfile implements the per-project import lock.
//
// The lock is an advisory flock on <root>/<project>.lock. The suffix keeps
// the artifact of "platform" from colliding with the directory that holds
// the artifact of "platform/build". The same file holds the
// non-secret parameters of the last import attempt as compact JSON, so it
// doubles as a record for inspection and resume. The file is rewritten in
// place and never replaced, so a persisted write cannot break the lock of
// the session holding it.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/steveyegge/gimport/internal/debug"
	"github.com/steveyegge/gimport/internal/errdefs"
	"github.com/steveyegge/gimport/internal/types"
)

// ImportLock is a held import lock. The zero value is not usable; call Acquire.
type ImportLock struct {
	mu       sync.Mutex
	project  string
	flock    *flock.Flock
	released bool
}

// Acquire takes the import lock of project without blocking. It fails with
// errdefs.ErrConflict when another session holds the lock and with
// errdefs.ErrLock when the artifact cannot be created or locked. A failed
// attempt leaves the artifact's content untouched.
func Acquire(root, project string) (*ImportLock, error) {
	path, err := artifactPath(root, project)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errdefs.ErrLock, project, err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errdefs.ErrLock, project, err)
	}
	if !locked {
		return nil, errdefs.Conflict("project %s is being imported from another session", project)
	}
	debug.Logf("acquired import lock: %s\n", path)
	return &ImportLock{project: project, flock: fl}, nil
}

// Suffix is appended to every lock artifact.
const Suffix = ".lock"

// artifactPath maps a project name to its lock file. Names may contain
// slashes but must stay inside root.
func artifactPath(root, project string) (string, error) {
	if project == "" {
		return "", errdefs.BadRequest("project name is required")
	}
	clean := filepath.Clean(filepath.FromSlash(project))
	if filepath.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errdefs.BadRequest("invalid project name %q", project)
	}
	return filepath.Join(root, clean+Suffix), nil
}

// Project returns the name the lock was taken for.
func (l *ImportLock) Project() string {
	return l.project
}

// Path returns the lock artifact path.
func (l *ImportLock) Path() string {
	return l.flock.Path()
}

// Persist replaces the artifact content with params as one line of compact
// JSON. ImportParams has no credential fields, so nothing secret can reach
// the file.
func (l *ImportLock) Persist(params types.ImportParams) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return fmt.Errorf("import lock for %s already released", l.project)
	}

	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode import parameters: %w", err)
	}
	data = append(data, '\n')

	// O_TRUNC on the locked inode; a rename would orphan the flock.
	f, err := os.OpenFile(l.flock.Path(), os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to persist import parameters: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to persist import parameters: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to persist import parameters: %w", err)
	}
	return f.Close()
}

// Release releases the lock.
// Safe to call multiple times (idempotent).
func (l *ImportLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true
	debug.Logf("releasing import lock: %s\n", l.flock.Path())
	return l.flock.Unlock()
}

// ReadParams returns the parameters last persisted for project.
// It returns an error wrapping fs.ErrNotExist when no import was ever
// attempted and errdefs.ErrBadRequest when nothing was persisted yet.
func ReadParams(root, project string) (*types.ImportParams, error) {
	path, err := artifactPath(root, project)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import parameters of %s: %w", project, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errdefs.BadRequest("no import parameters recorded for %s", project)
	}
	var params types.ImportParams
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to decode import parameters of %s: %w", project, err)
	}
	return &params, nil
}

// Status describes one lock artifact.
type Status struct {
	Project  string              `json:"project"`
	Path     string              `json:"path"`
	Held     bool                `json:"held"`
	Params   *types.ImportParams `json:"params,omitempty"`
	Modified time.Time           `json:"modified"`
}

// List reports every artifact under root, sorted by project name. Held is
// probed with a non-blocking lock attempt that is released at once.
func List(root string) ([]Status, error) {
	var out []Status
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), Suffix) {
			return nil
		}
		rel, err := filepath.Rel(root, strings.TrimSuffix(path, Suffix))
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		st := Status{Project: filepath.ToSlash(rel), Path: path, Modified: info.ModTime()}

		probe := flock.New(path)
		locked, err := probe.TryLock()
		if err != nil {
			return fmt.Errorf("failed to probe %s: %w", path, err)
		}
		if locked {
			_ = probe.Unlock()
		} else {
			st.Held = true
		}

		if params, err := ReadParams(root, st.Project); err == nil {
			st.Params = params
		}
		out = append(out, st)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Project < out[j].Project })
	return out, nil
}
