// Package sqlite provides the public API for the SQLite entity store.
// This package exposes constructors for the store while keeping the
// implementation internal.
package sqlite

import (
	"github.com/mesh-intelligence/stride/internal/sqlite"
	"github.com/mesh-intelligence/stride/pkg/types"
)

// Store is the SQLite entity store.
type Store = sqlite.Backend

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(clock types.Clock) *Store {
	if clock == nil {
		return sqlite.NewBackend()
	}
	return sqlite.NewBackend(sqlite.WithClock(clock))
}

// Open creates a backend and attaches it to dataDir.
//
// Example:
//
//	store, err := sqlite.Open(".stride-db", nil)
//	if err != nil {
//	    return err
//	}
//	defer store.Detach()
func Open(dataDir string, clock types.Clock) (*Store, error) {
	b := NewBackend(clock)
	if err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dataDir}); err != nil {
		return nil, err
	}
	return b, nil
}
