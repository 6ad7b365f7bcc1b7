package gitrepo

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// setupSourceRepo creates <base>/<name> with two commits on master and a
// change ref, and returns the SHA of both commits.
func setupSourceRepo(t *testing.T, base, name string) (first, second string) {
	t.Helper()
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	run := func(args ...string) string {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=Test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=Test", "GIT_COMMITTER_EMAIL=test@example.com")
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
		return strings.TrimSpace(string(out))
	}
	run("init", "--quiet", "-b", "master")
	run("commit", "--allow-empty", "-q", "-m", "first")
	first = run("rev-parse", "HEAD")
	run("commit", "--allow-empty", "-q", "-m", "second")
	second = run("rev-parse", "HEAD")
	run("update-ref", "refs/changes/01/1/1", first)
	run("update-ref", "refs/changes/01/1/2", second)
	return first, second
}

func TestOpenCreatesBareRepository(t *testing.T) {
	requireGit(t)
	m := NewManager(t.TempDir())
	ctx := context.Background()

	if m.Exists("team/foo") {
		t.Fatal("Exists before Open")
	}
	repo, err := m.Open(ctx, "team/foo")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer repo.Close()

	if repo.Path != filepath.Join(m.BasePath, "team", "foo.git") {
		t.Errorf("Path = %q", repo.Path)
	}
	if !m.Exists("team/foo") {
		t.Error("Exists after Open = false")
	}

	// Reopening an existing repository is fine.
	again, err := m.Open(ctx, "team/foo")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = again.Close()
}

func TestConfigureFetchMirrorsAllRefs(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	source := t.TempDir()
	first, second := setupSourceRepo(t, source, "foo")

	m := NewManager(t.TempDir())
	repo, err := m.Open(ctx, "foo")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer repo.Close()

	if err := m.Configure(ctx, repo, "foo", source+"/"); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if got, _ := repo.Config(ctx, "remote.origin.url"); got != source+"/foo" {
		t.Errorf("origin url = %q", got)
	}
	if got, _ := repo.Config(ctx, "remote.origin.fetch"); got != "+refs/*:refs/*" {
		t.Errorf("refspec = %q", got)
	}
	if got, _ := repo.Config(ctx, "http.sslVerify"); got != "false" {
		t.Errorf("sslVerify = %q", got)
	}

	if _, err := m.Fetch(ctx, repo, "admin", "secret"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, err := repo.Config(ctx, "http.extraHeader"); err == nil {
		t.Error("credentials leaked into repository config")
	}

	refs, err := repo.Refs(ctx)
	if err != nil {
		t.Fatalf("Refs: %v", err)
	}
	want := map[string]string{
		"refs/heads/master":   second,
		"refs/changes/01/1/1": first,
		"refs/changes/01/1/2": second,
	}
	for ref, sha := range want {
		if refs[ref] != sha {
			t.Errorf("%s = %q, want %q", ref, refs[ref], sha)
		}
	}

	ok, err := repo.CommitExists(ctx, first)
	if err != nil || !ok {
		t.Errorf("CommitExists(first) = %v, %v", ok, err)
	}
	ok, err = repo.CommitExists(ctx, strings.Repeat("0", 40))
	if err != nil || ok {
		t.Errorf("CommitExists(zero) = %v, %v", ok, err)
	}

	parents, err := repo.Parents(ctx, second)
	if err != nil {
		t.Fatalf("Parents: %v", err)
	}
	if len(parents) != 1 || parents[0] != first {
		t.Errorf("Parents = %v", parents)
	}
	if parents, _ := repo.Parents(ctx, first); len(parents) != 0 {
		t.Errorf("root commit parents = %v", parents)
	}
}

func TestSSLVerifyEnabled(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	m := &Manager{BasePath: t.TempDir(), SSLVerify: true}
	repo, err := m.Open(ctx, "foo")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer repo.Close()
	if err := m.Configure(ctx, repo, "foo", "https://review.example.com"); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if got, _ := repo.Config(ctx, "http.sslVerify"); got != "true" {
		t.Errorf("sslVerify = %q", got)
	}
}

func TestFetchFailureIsReported(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	m := NewManager(t.TempDir())
	repo, err := m.Open(ctx, "foo")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer repo.Close()
	if err := m.Configure(ctx, repo, "foo", filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if _, err := m.Fetch(ctx, repo, "u", "p"); err == nil {
		t.Fatal("Fetch from missing source succeeded")
	}
}

func TestClosedRepository(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	m := NewManager(t.TempDir())
	repo, err := m.Open(ctx, "foo")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := repo.Refs(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Refs after Close = %v, want ErrClosed", err)
	}
}
