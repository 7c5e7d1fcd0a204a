// Package kv provides the durable key/value store that session state
// survives process restarts in.
package kv

import (
	"fmt"

	"prepsync/internal/config"
)

// Store is a small string key/value store. Put and Delete apply all given
// keys in one write.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)

	// Put writes all entries.
	Put(entries map[string]string) error

	// Delete removes the given keys. Missing keys are ignored.
	Delete(keys ...string) error

	// Path returns the backing file path.
	Path() string

	// Close releases resources held by the store.
	Close() error
}

// Open opens the store selected by the config's storage setting.
// The config directory is created if needed.
func Open(cfg *config.Config) (Store, error) {
	if err := cfg.EnsureDir(); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	switch cfg.Settings.Storage {
	case config.StorageSQLite:
		return OpenSQLite(cfg.SessionPath())
	default:
		return NewFileStore(cfg.SessionPath()), nil
	}
}
