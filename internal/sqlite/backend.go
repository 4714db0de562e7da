// Package sqlite implements the local entity store for Stride on SQLite.
//
// All reads and writes run inside View and Update transactions. Writers are
// serialized with each other while readers proceed concurrently against the
// WAL snapshot. Every local write passes through the change interceptor,
// which stamps updated_at and clears synced_at so the record is queued for
// push.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/stride/pkg/types"
)

// DBFileName is the database file created under Config.DataDir.
const DBFileName = "stride.db"

// dsnPragmas enables WAL so readers never block on the writer, and makes a
// second process wait for the write lock instead of failing immediately.
const dsnPragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// Compile-time interface check: Backend must implement TaskStore.
var _ types.TaskStore = (*Backend)(nil)

// Backend is the SQLite entity store.
type Backend struct {
	mu       sync.RWMutex // guards attached and db
	writeMu  sync.Mutex   // serializes Update transactions
	attached bool
	config   types.Config
	db       *sql.DB
	clock    types.Clock
}

// Option configures a Backend.
type Option func(*Backend)

// WithClock sets the clock used to stamp writes.
func WithClock(c types.Clock) Option {
	return func(b *Backend) { b.clock = c }
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{clock: types.SystemClock{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach opens the database under config.DataDir, creating the directory and
// schema when needed. Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)
	db, err := sql.Open("sqlite", "file:"+dbPath+dsnPragmas)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dbPath, err)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return fmt.Errorf("applying schema: %w", err)
	}

	b.db = db
	b.config = config
	b.attached = true
	return nil
}

// Detach closes the database. After Detach every operation returns
// ErrStoreClosed. Detach waits for in-flight transactions and is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	b.attached = false
	db := b.db
	b.db = nil
	if err := db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// IsOpen reports whether the store is attached.
func (b *Backend) IsOpen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.attached
}

// View runs fn in a read transaction. Changes made through tx are discarded.
func (b *Backend) View(ctx context.Context, fn func(tx *Tx) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreClosed
	}
	return b.run(ctx, fn, false)
}

// Update runs fn in a write transaction and commits when fn returns nil.
// Only one Update runs at a time.
func (b *Backend) Update(ctx context.Context, fn func(tx *Tx) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreClosed
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.run(ctx, fn, true)
}

// ViewTasks implements types.TaskStore.
func (b *Backend) ViewTasks(ctx context.Context, fn func(types.TaskTx) error) error {
	return b.View(ctx, func(tx *Tx) error { return fn(tx) })
}

// UpdateTasks implements types.TaskStore.
func (b *Backend) UpdateTasks(ctx context.Context, fn func(types.TaskTx) error) error {
	return b.Update(ctx, func(tx *Tx) error { return fn(tx) })
}

func (b *Backend) run(ctx context.Context, fn func(tx *Tx) error, write bool) error {
	sqlTx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	tx := &Tx{ctx: ctx, tx: sqlTx, now: b.clock.Now().UTC()}
	if err := fn(tx); err != nil {
		sqlTx.Rollback()
		return err
	}
	if !write {
		return sqlTx.Rollback()
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// generateUUID generates a new UUID v7 for entity IDs.
func generateUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to UUID v4 if v7 generation fails
		return uuid.New().String()
	}
	return id.String()
}
