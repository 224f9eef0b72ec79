// Package store implements the profile stores the engine commits to: an
// in-process map, a JSON file, and SQL databases through gorm.
package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/odin-market/progression/internal/config"
	"github.com/odin-market/progression/internal/progression"
)

const sqliteFileName = "progression.db"

// Backend is a profile store that holds resources until closed.
type Backend interface {
	progression.ProfileStore
	Close() error
}

// Open builds the store selected by cfg.
func Open(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return NewMemoryStore(), nil
	case config.DriverFile:
		return NewFileStore(cfg.DataDir)
	case config.DriverSQLite:
		path := cfg.DSN
		if path == "" {
			dir := cfg.DataDir
			if dir == "" {
				dir = defaultDataDir()
			}
			path = filepath.Join(dir, sqliteFileName)
		}
		return OpenSQLite(ctx, path)
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
