//go:build cgo

package dolt

import (
	"context"
	"testing"
)

func TestEmbeddedRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded Dolt test in short mode")
	}
	ctx := context.Background()

	store, err := New(ctx, &Config{Path: t.TempDir(), Database: "gimport_test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer store.Close()

	exerciseStore(t, store)

	// Close is idempotent.
	if err := store.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
