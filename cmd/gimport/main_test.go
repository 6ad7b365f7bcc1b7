package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/gimport/internal/config"
	"github.com/steveyegge/gimport/internal/errdefs"
	"github.com/steveyegge/gimport/internal/storage/memory"
	"github.com/steveyegge/gimport/internal/types"
	"github.com/steveyegge/gimport/internal/ui"
)

func resetConfig(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{"GIMPORT_ACTOR", "GIMPORT_STORE", "GIMPORT_JSON", "GIMPORT_PASS"} {
		t.Setenv(k, "")
	}
	require.NoError(t, config.Initialize())
	t.Cleanup(func() { _ = config.Initialize() })
}

func TestHintFor(t *testing.T) {
	assert.Contains(t, hintFor(errdefs.Conflict("busy")), "gimport locks")
	assert.Contains(t, hintFor(errdefs.Validation("no parent")), "--parent")
	assert.Contains(t, hintFor(errdefs.PreconditionFailed("owner")), "--import-owner-group")
	assert.Empty(t, hintFor(errors.New("boom")))
}

func TestApplyViperOverrides(t *testing.T) {
	resetConfig(t)

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("store", "", "")
	cmd.Flags().String("data-dir", "", "")
	cmd.Flags().Bool("json", false, "")
	require.NoError(t, cmd.Flags().Set("store", "memory"))

	applyViperOverrides(cmd)
	assert.Equal(t, "memory", config.GetString(config.KeyStore))
	assert.Equal(t, config.DirName, config.DataDir(), "unchanged flags must not override")
	assert.False(t, jsonOutput)

	require.NoError(t, cmd.Flags().Set("json", "true"))
	applyViperOverrides(cmd)
	assert.True(t, jsonOutput)
	jsonOutput = false
}

func TestResolveActor(t *testing.T) {
	resetConfig(t)
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateAccount(ctx, &types.Account{ID: 1000010, Username: "alice", Active: true}))

	t.Setenv("USER", "bob")
	a := resolveActor(ctx, store)
	assert.Equal(t, "bob", a.UserName)
	assert.Zero(t, a.AccountID)

	config.Set(config.KeyActor, "alice")
	a = resolveActor(ctx, store)
	assert.Equal(t, "alice", a.UserName)
	assert.Equal(t, 1000010, a.AccountID)

	actor = "carol"
	defer func() { actor = "" }()
	assert.Equal(t, "carol", resolveActor(ctx, nil).UserName)
}

func TestResolvePassword(t *testing.T) {
	resetConfig(t)

	pass, err := resolvePassword("secret", "u", "http://src")
	require.NoError(t, err)
	assert.Equal(t, "secret", pass)

	t.Setenv("GIMPORT_PASS", "from-env")
	pass, err = resolvePassword("", "u", "http://src")
	require.NoError(t, err)
	assert.Equal(t, "from-env", pass)

	if ui.IsInputTerminal() {
		t.Skip("stdin is a terminal")
	}
	t.Setenv("GIMPORT_PASS", "")
	_, err = resolvePassword("", "u", "http://src")
	assert.ErrorIs(t, err, errNoPassword)
}

func TestReadProjectList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.txt")
	require.NoError(t, os.WriteFile(path, []byte("# platform\nfoo\n\n  bar/baz  \n#old\n"), 0o600))

	names, err := readProjectList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo", "bar/baz"}, names)

	_, err = readProjectList(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
