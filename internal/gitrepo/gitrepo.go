// Package gitrepo manages the local bare repositories projects are mirrored
// into. It drives the git CLI, so git must be on PATH.
package gitrepo

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/steveyegge/gimport/internal/debug"
)

// ErrClosed is returned by operations on a repository that was closed.
var ErrClosed = errors.New("repository closed")

// Manager opens repositories under BasePath, one <name>.git directory per
// project.
type Manager struct {
	BasePath string

	// SSLVerify is written to http.sslVerify on Configure. It defaults to
	// false: transfers are between trusted internal hosts and self-signed
	// certificates are common there. Turn it on for anything else.
	SSLVerify bool
}

// NewManager creates a manager rooted at basePath.
func NewManager(basePath string) *Manager {
	return &Manager{BasePath: basePath}
}

// Repository is an open bare repository. It must be closed by the caller.
type Repository struct {
	Name string
	Path string

	mu     sync.Mutex
	closed bool
}

// RepoPath returns the directory the repository of name lives in.
func (m *Manager) RepoPath(name string) string {
	return filepath.Join(m.BasePath, filepath.FromSlash(name)+".git")
}

// Exists reports whether a repository for name has been created.
func (m *Manager) Exists(name string) bool {
	info, err := os.Stat(filepath.Join(m.RepoPath(name), "HEAD"))
	return err == nil && !info.IsDir()
}

// Open opens the repository of name, creating an empty bare repository if
// there is none yet.
func (m *Manager) Open(ctx context.Context, name string) (*Repository, error) {
	path := m.RepoPath(name)
	if !m.Exists(name) {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create repository directory for %s: %w", name, err)
		}
		if _, err := runGit(ctx, "", nil, "init", "--bare", "--quiet", path); err != nil {
			return nil, fmt.Errorf("failed to create repository %s: %w", name, err)
		}
		debug.Logf("created repository %s\n", path)
	}
	return &Repository{Name: name, Path: path}, nil
}

// Configure points origin at sourceURL/name, mirrors every ref and applies
// the manager's TLS verification setting. The settings land in the
// repository's own config.
func (m *Manager) Configure(ctx context.Context, repo *Repository, name, sourceURL string) error {
	settings := [][2]string{
		{"remote.origin.url", strings.TrimRight(sourceURL, "/") + "/" + name},
		{"remote.origin.fetch", "+refs/*:refs/*"},
		{"http.sslVerify", fmt.Sprintf("%t", m.SSLVerify)},
	}
	for _, kv := range settings {
		if _, err := repo.git(ctx, nil, "config", kv[0], kv[1]); err != nil {
			return fmt.Errorf("failed to configure %s of %s: %w", kv[0], repo.Name, err)
		}
	}
	return nil
}

// Fetch fetches every ref from origin and returns git's summary. The
// credentials travel as a per-invocation extra header and are never written
// to the repository config.
func (m *Manager) Fetch(ctx context.Context, repo *Repository, user, pass string) (string, error) {
	token := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
	// GIT_CONFIG_* keeps the header out of the process arguments.
	env := []string{
		"GIT_TERMINAL_PROMPT=0",
		"GIT_CONFIG_COUNT=1",
		"GIT_CONFIG_KEY_0=http.extraHeader",
		"GIT_CONFIG_VALUE_0=Authorization: Basic " + token,
	}
	out, err := repo.git(ctx, env, "fetch", "--verbose", "origin")
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", repo.Name, err)
	}
	return out, nil
}

// CommitExists reports whether sha names a commit present in the repository.
func (r *Repository) CommitExists(ctx context.Context, sha string) (bool, error) {
	_, err := r.git(ctx, nil, "cat-file", "-e", sha+"^{commit}")
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, err
}

// Parents returns the parent commits of sha in order.
func (r *Repository) Parents(ctx context.Context, sha string) ([]string, error) {
	out, err := r.git(ctx, nil, "rev-list", "--parents", "-n", "1", sha)
	if err != nil {
		return nil, fmt.Errorf("failed to read parents of %s: %w", sha, err)
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return nil, fmt.Errorf("failed to read parents of %s: empty output", sha)
	}
	return fields[1:], nil
}

// Refs returns every ref of the repository mapped to the object it points at.
func (r *Repository) Refs(ctx context.Context) (map[string]string, error) {
	out, err := r.git(ctx, nil, "for-each-ref", "--format=%(refname) %(objectname)")
	if err != nil {
		return nil, fmt.Errorf("failed to list refs of %s: %w", r.Name, err)
	}
	refs := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		name, obj, ok := strings.Cut(strings.TrimSpace(line), " ")
		if ok {
			refs[name] = obj
		}
	}
	return refs, nil
}

// Config reads a single config value from the repository.
func (r *Repository) Config(ctx context.Context, key string) (string, error) {
	out, err := r.git(ctx, nil, "config", "--get", key)
	if err != nil {
		return "", fmt.Errorf("failed to read %s of %s: %w", key, r.Name, err)
	}
	return strings.TrimSpace(out), nil
}

// Close releases the handle.
// Safe to call multiple times (idempotent).
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Repository) git(ctx context.Context, env []string, args ...string) (string, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return "", fmt.Errorf("%s: %w", r.Name, ErrClosed)
	}
	return runGit(ctx, r.Path, env, args...)
}

// runGit runs git with args. When dir is set the command runs against that
// git directory. Output is stdout and stderr combined, which is where git
// writes fetch summaries.
func runGit(ctx context.Context, dir string, env []string, args ...string) (string, error) {
	if dir != "" {
		args = append([]string{"--git-dir", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, "git", args...) // #nosec G204 - fixed binary, args built here
	cmd.Env = append(os.Environ(), env...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(out.String())
		if msg == "" {
			return "", err
		}
		return "", fmt.Errorf("%w: %s", err, msg)
	}
	return out.String(), nil
}
