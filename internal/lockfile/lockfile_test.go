package lockfile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/gimport/internal/errdefs"
	"github.com/steveyegge/gimport/internal/types"
)

func TestAcquireIsExclusive(t *testing.T) {
	root := t.TempDir()

	first, err := Acquire(root, "team/foo")
	require.NoError(t, err)
	defer first.Release()
	assert.Equal(t, filepath.Join(root, "team", "foo.lock"), first.Path())

	_, err = Acquire(root, "team/foo")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrConflict), "got %v", err)
	assert.Contains(t, err.Error(), "project team/foo is being imported from another session")

	require.NoError(t, first.Release())
	require.NoError(t, first.Release(), "second release must be a no-op")

	again, err := Acquire(root, "team/foo")
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestPersistAndReadParams(t *testing.T) {
	root := t.TempDir()
	lock, err := Acquire(root, "foo")
	require.NoError(t, err)
	defer lock.Release()

	require.NoError(t, lock.Persist(types.ImportParams{From: "https://review.example.com", User: "admin", Parent: "Public"}))
	// A shorter second write must not leave trailing bytes behind.
	require.NoError(t, lock.Persist(types.ImportParams{From: "https://x", User: "a"}))

	raw, err := os.ReadFile(lock.Path())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(raw), "}\n"))
	assert.Equal(t, 1, strings.Count(string(raw), "\n"))
	assert.NotContains(t, string(raw), "pass")

	params, err := ReadParams(root, "foo")
	require.NoError(t, err)
	assert.Equal(t, "https://x", params.From)
	assert.Equal(t, "a", params.User)
	assert.Empty(t, params.Parent)

	// The lock survives the rewrite.
	_, err = Acquire(root, "foo")
	assert.True(t, errors.Is(err, errdefs.ErrConflict))
}

func TestFailedAcquireLeavesContent(t *testing.T) {
	root := t.TempDir()
	lock, err := Acquire(root, "foo")
	require.NoError(t, err)
	defer lock.Release()
	require.NoError(t, lock.Persist(types.ImportParams{From: "https://x", User: "a"}))

	before, err := os.ReadFile(lock.Path())
	require.NoError(t, err)
	_, err = Acquire(root, "foo")
	require.Error(t, err)
	after, err := os.ReadFile(lock.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPersistAfterRelease(t *testing.T) {
	lock, err := Acquire(t.TempDir(), "foo")
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	assert.Error(t, lock.Persist(types.ImportParams{From: "https://x"}))
}

func TestReadParamsMissing(t *testing.T) {
	root := t.TempDir()
	_, err := ReadParams(root, "nope")
	assert.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)

	lock, err := Acquire(root, "empty")
	require.NoError(t, err)
	defer lock.Release()
	_, err = ReadParams(root, "empty")
	assert.True(t, errors.Is(err, errdefs.ErrBadRequest), "got %v", err)
}

func TestInvalidProjectNames(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"", "..", "../escape", "/abs"} {
		_, err := Acquire(root, name)
		assert.True(t, errors.Is(err, errdefs.ErrBadRequest), "name %q: got %v", name, err)
	}
}

func TestList(t *testing.T) {
	root := t.TempDir()

	held, err := Acquire(root, "b/held")
	require.NoError(t, err)
	defer held.Release()
	require.NoError(t, held.Persist(types.ImportParams{From: "https://x", User: "u"}))

	idle, err := Acquire(root, "a")
	require.NoError(t, err)
	require.NoError(t, idle.Release())

	statuses, err := List(root)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	assert.Equal(t, "a", statuses[0].Project)
	assert.False(t, statuses[0].Held)
	assert.Nil(t, statuses[0].Params)

	assert.Equal(t, "b/held", statuses[1].Project)
	assert.True(t, statuses[1].Held)
	require.NotNil(t, statuses[1].Params)
	assert.Equal(t, "u", statuses[1].Params.User)

	// Listing must not disturb the holder.
	_, err = Acquire(root, "b/held")
	assert.True(t, errors.Is(err, errdefs.ErrConflict))
}

func TestNestedProjectNamesDoNotCollide(t *testing.T) {
	root := t.TempDir()

	parent, err := Acquire(root, "platform")
	require.NoError(t, err)
	require.NoError(t, parent.Persist(types.ImportParams{From: "https://x", User: "u"}))
	require.NoError(t, parent.Release())

	child, err := Acquire(root, "platform/build")
	require.NoError(t, err)
	defer child.Release()

	again, err := Acquire(root, "platform")
	require.NoError(t, err)
	require.NoError(t, again.Release())

	statuses, err := List(root)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "platform", statuses[0].Project)
	assert.Equal(t, "platform/build", statuses[1].Project)
	assert.True(t, statuses[1].Held)
}

func TestListMissingRoot(t *testing.T) {
	statuses, err := List(filepath.Join(t.TempDir(), "none"))
	require.NoError(t, err)
	assert.Empty(t, statuses)
}
