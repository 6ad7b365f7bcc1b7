package factory

import (
	"context"

	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/storage/dolt"
)

func init() {
	RegisterBackend(BackendDolt, func(ctx context.Context, opts Options) (storage.Storage, error) {
		// Without cgo dolt.New reports that embedded mode is unavailable.
		return dolt.New(ctx, &dolt.Config{Path: opts.Path, Database: opts.Database})
	})
	RegisterBackend(BackendDoltServer, func(ctx context.Context, opts Options) (storage.Storage, error) {
		return dolt.New(ctx, &dolt.Config{
			Path:       opts.Path,
			Database:   opts.Database,
			ServerMode: true,
			ServerHost: opts.ServerHost,
			ServerPort: opts.ServerPort,
			ServerUser: opts.ServerUser,
			ServerTLS:  opts.ServerTLS,
		})
	})
}
