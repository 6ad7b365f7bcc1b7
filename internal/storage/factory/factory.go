// Package factory opens storage backends by name.
package factory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/storage/memory"
)

// Backend names accepted by New.
const (
	BackendDolt       = "dolt"
	BackendDoltServer = "dolt-server"
	BackendMemory     = "memory"
)

// BackendFactory is a function that creates a storage backend
type BackendFactory func(ctx context.Context, opts Options) (storage.Storage, error)

// backendRegistry holds registered backend factories
var backendRegistry = map[string]BackendFactory{
	BackendMemory: func(context.Context, Options) (storage.Storage, error) {
		return memory.New(), nil
	},
}

// RegisterBackend registers a storage backend factory
func RegisterBackend(name string, factory BackendFactory) {
	backendRegistry[name] = factory
}

// Options configures how the storage backend is opened
type Options struct {
	Path     string // Dolt database directory (embedded mode)
	Database string // Database name (default: gimport)

	// Dolt server mode options
	ServerHost string // Server host (default: 127.0.0.1)
	ServerPort int    // Server port (default: 3307)
	ServerUser string // MySQL user (default: root)
	ServerTLS  bool
}

// New creates a storage backend based on the backend type. An empty backend
// selects embedded Dolt.
func New(ctx context.Context, backend string, opts Options) (storage.Storage, error) {
	if backend == "" {
		backend = BackendDolt
	}
	factory, ok := backendRegistry[backend]
	if !ok {
		return nil, fmt.Errorf("unknown storage backend: %s (supported: %s)", backend, strings.Join(Backends(), ", "))
	}
	return factory(ctx, opts)
}

// Backends lists the registered backend names.
func Backends() []string {
	names := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
