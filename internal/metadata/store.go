// Package metadata implements the transactional persistence layer for the
// Stoxy hierarchy. Every engine satisfies hierarchy.Store.
package metadata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stoxy/stoxy/internal/hierarchy"
)

// Engine names accepted by Open.
const (
	EngineSQLite = "sqlite"
	EngineMemory = "memory"
)

// Backend is a hierarchy.Store that can report its health.
type Backend interface {
	hierarchy.Store
	Ping(ctx context.Context) error
}

// Open creates the store for engine. For SQLite the parent directory of path
// is created if needed.
func Open(engine, path string) (Backend, error) {
	switch engine {
	case EngineSQLite, "":
		if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating metadata directory %q: %w", dir, err)
			}
		}
		return NewSQLiteStore(path)
	case EngineMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown metadata engine %q", engine)
	}
}
