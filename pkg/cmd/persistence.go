// Package cmd provides common initialization for maestro binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maestro-flow/maestro/pkg/persistence"
	"github.com/maestro-flow/maestro/pkg/persistence/file"
	"github.com/maestro-flow/maestro/pkg/persistence/memory"
	"github.com/maestro-flow/maestro/pkg/persistence/postgres"
)

// NewPersistence selects a persistence backend from the database URL
// scheme: postgres://... for PostgreSQL, memory:// for the in-memory
// store, anything else is treated as a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		store, err := postgres.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize postgres persistence: %w", err))
		}

		return store
	case strings.HasPrefix(databaseURL, "memory://"):
		return memory.NewPersistence()
	default:
		return file.NewPersistence(databaseURL)
	}
}
