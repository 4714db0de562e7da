// Package syncer reconciles the local entity store with the remote
// repository.
//
// A pass drains local changes first: push passes over every table repeat
// until no dirty record is left. It then pulls each table page by page from
// its stored cursor. Passes never overlap; triggers arriving while one runs
// are dropped, not queued.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mesh-intelligence/stride/internal/remote"
	"github.com/mesh-intelligence/stride/pkg/types"
)

// Store is the part of the local store the engine drives.
type Store interface {
	IsOpen() bool
	FetchDirty(ctx context.Context, table string, limit int) ([]types.Entity, error)
	MarkSynced(ctx context.Context, e types.Entity, at time.Time) (bool, error)
	Purge(ctx context.Context, table string, localID int64) error
	ApplyRemote(ctx context.Context, table string, page []types.Entity, cursor string) (int, error)
	Cursor(ctx context.Context, table string) (string, error)
	SoftDelete(ctx context.Context, table string, localID int64) (types.Entity, error)
	DeleteProject(ctx context.Context, localID int64) (int, error)
}

// EventKind identifies an Event.
type EventKind int

const (
	// EventDataChanged is published after a pass applied remote records.
	EventDataChanged EventKind = iota + 1
)

// Event is delivered to subscribers.
type Event struct {
	Kind    EventKind
	Tables  []string // Tables that received remote changes.
	Applied int      // Number of local rows changed.
}

// Status describes the outcome of recent passes.
type Status struct {
	Online         bool
	Running        bool
	LastSuccess    time.Time
	LastError      error
	NeedsAttention bool // The last failure will not clear by retrying.
	Pushed         int  // Records pushed by the last pass.
	Pulled         int  // Rows applied by the last pass.
}

// Engine is the sync engine.
type Engine struct {
	store    Store
	repo     remote.Repository
	identity Identity

	clock       types.Clock
	logger      *slog.Logger
	blobs       BlobReleaser
	batchSize   int
	maxRetry    int
	retryBase   time.Duration
	callTimeout time.Duration
	interval    time.Duration

	running atomic.Bool
	online  atomic.Bool

	mu         sync.Mutex
	stopped    bool
	cancelPass context.CancelFunc
	stopLoop   context.CancelFunc
	loopDone   chan struct{}
	base       context.Context
	async      sync.WaitGroup
	status     Status
	subs       map[int]chan Event
	nextSub    int
}

// New creates an engine. It starts online; call Start for periodic passes.
func New(store Store, repo remote.Repository, identity Identity, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		repo:        repo,
		identity:    identity,
		clock:       types.SystemClock{},
		logger:      slog.Default(),
		batchSize:   DefaultBatchSize,
		maxRetry:    DefaultMaxRetry,
		retryBase:   DefaultRetryBase,
		callTimeout: DefaultCallTimeout,
		interval:    DefaultInterval,
		subs:        make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.online.Store(true)
	return e
}

// TriggerSync runs one pass. It returns nil without doing anything when a
// pass is already running, the engine is offline or stopped, the store is
// closed, or nobody is signed in.
func (e *Engine) TriggerSync(ctx context.Context) error {
	if !e.online.Load() || !e.store.IsOpen() {
		return nil
	}
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Debug("sync pass already running, trigger dropped")
		return nil
	}
	defer e.running.Store(false)

	userID, err := e.identity.UserID(ctx)
	if err != nil {
		return fmt.Errorf("resolving user: %w", err)
	}
	if userID == "" {
		return nil
	}

	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.cancelPass = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancelPass = nil
		e.mu.Unlock()
	}()

	return e.drain(passCtx, userID)
}

func (e *Engine) drain(ctx context.Context, userID string) error {
	start := e.clock.Now()
	e.logger.Debug("sync pass started", "user", userID)

	pushed, err := e.push(ctx, userID)
	var (
		applied int
		changed []string
	)
	if err == nil {
		applied, changed, err = e.pull(ctx, userID)
	}
	e.finish(pushed, applied, err)

	if applied > 0 {
		e.publish(Event{Kind: EventDataChanged, Tables: changed, Applied: applied})
	}
	e.logger.Debug("sync pass finished",
		"pushed", pushed, "applied", applied, "duration", e.clock.Now().Sub(start), "error", err)

	if errors.Is(err, types.ErrStoreClosed) {
		return nil
	}
	return err
}

// finish records the outcome of a pass in the status.
func (e *Engine) finish(pushed, applied int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Pushed = pushed
	e.status.Pulled = applied
	switch {
	case err == nil:
		e.status.LastSuccess = e.clock.Now()
		e.status.LastError = nil
		e.status.NeedsAttention = false
	case errors.Is(err, types.ErrStoreClosed), errors.Is(err, context.Canceled):
		// Shutdown, not a failure.
	case remote.IsPermanent(err):
		e.logger.Error("sync pass failed", "error", err)
		e.status.LastError = err
		e.status.NeedsAttention = true
	default:
		e.logger.Warn("sync pass aborted", "error", err)
		e.status.LastError = err
		e.status.NeedsAttention = false
	}
}

// push drains dirty records table by table until a pass finds none.
func (e *Engine) push(ctx context.Context, userID string) (int, error) {
	total := 0
	for {
		n := 0
		for _, table := range types.SyncTables {
			dirty, err := e.store.FetchDirty(ctx, table, e.batchSize)
			if err != nil {
				return total, fmt.Errorf("fetching dirty %s: %w", table, err)
			}
			for _, ent := range dirty {
				if err := e.pushOne(ctx, userID, ent); err != nil {
					return total + n, err
				}
				n++
			}
		}
		total += n
		if n == 0 {
			return total, nil
		}
	}
}

func (e *Engine) pushOne(ctx context.Context, userID string, ent types.Entity) error {
	table := ent.TableName()
	env := ent.Meta()
	rec, err := encode(ent, userID)
	if err != nil {
		return err
	}
	err = e.call(ctx, func(ctx context.Context) error {
		return e.repo.Upsert(ctx, table, rec)
	})
	if err != nil {
		return fmt.Errorf("pushing %s %s: %w", table, env.UUID, err)
	}

	if env.Tombstoned() {
		if err := e.store.Purge(ctx, table, env.LocalID); err != nil {
			return fmt.Errorf("purging %s %s: %w", table, env.UUID, err)
		}
		return nil
	}
	if _, err := e.store.MarkSynced(ctx, ent, e.clock.Now()); err != nil {
		return fmt.Errorf("marking %s %s synced: %w", table, env.UUID, err)
	}
	return nil
}

// pull fetches remote changes for every table.
func (e *Engine) pull(ctx context.Context, userID string) (int, []string, error) {
	total := 0
	var changed []string
	for _, table := range types.SyncTables {
		n, err := e.pullTable(ctx, userID, table)
		total += n
		if n > 0 {
			changed = append(changed, table)
		}
		if err != nil {
			return total, changed, err
		}
	}
	return total, changed, nil
}

func (e *Engine) pullTable(ctx context.Context, userID, table string) (int, error) {
	raw, err := e.store.Cursor(ctx, table)
	if err != nil {
		return 0, err
	}
	var after time.Time
	if raw != "" {
		if after, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return 0, fmt.Errorf("%w: cursor for %s: %v", types.ErrInvalidData, table, err)
		}
	}

	total := 0
	for {
		var page []remote.Record
		err := e.call(ctx, func(ctx context.Context) error {
			var err error
			page, err = e.repo.Select(ctx, table, remote.Query{UserID: userID, UpdatedAfter: after, Limit: e.batchSize})
			return err
		})
		if err != nil {
			return total, fmt.Errorf("pulling %s: %w", table, err)
		}
		if len(page) == 0 {
			return total, nil
		}

		next := after
		entities := make([]types.Entity, 0, len(page))
		for _, rec := range page {
			if ts, err := rec.UpdatedAt(); err == nil && ts.After(next) {
				next = ts
			}
			ent, err := decode(table, rec)
			if err != nil {
				e.logger.Warn("skipping malformed remote record", "table", table, "uuid", rec.UUID(), "error", err)
				continue
			}
			entities = append(entities, ent)
		}
		if !next.After(after) {
			return total, fmt.Errorf("pulling %s: cursor did not advance past %s", table, raw)
		}

		cursor := next.UTC().Format(remote.TimeLayout)
		n, err := e.store.ApplyRemote(ctx, table, entities, cursor)
		if err != nil {
			return total, fmt.Errorf("applying %s page: %w", table, err)
		}
		total += n
		after, raw = next, cursor
		if len(page) < e.batchSize {
			return total, nil
		}
	}
}

// call runs fn with a per-call timeout, retrying transient failures with
// exponential backoff. Cancelling ctx aborts the wait.
func (e *Engine) call(ctx context.Context, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !remote.IsTransient(err) || attempt+1 >= e.maxRetry {
			return err
		}

		delay := e.backoff(attempt)
		e.logger.Debug("retrying remote call", "attempt", attempt+1, "delay", delay, "error", err)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// backoff returns the wait after the given zero-based failed attempt: twice
// the retry base after the first failure, doubling from there.
func (e *Engine) backoff(attempt int) time.Duration {
	return time.Duration(1<<(attempt+1)) * e.retryBase
}

// Delete tombstones a record and schedules a sync. Deleting a project also
// tombstones its tasks. A note's attachment is released on a best-effort
// basis.
func (e *Engine) Delete(ctx context.Context, table string, localID int64) error {
	if table == types.TableProjects {
		if _, err := e.store.DeleteProject(ctx, localID); err != nil {
			return err
		}
		e.triggerAsync()
		return nil
	}

	ent, err := e.store.SoftDelete(ctx, table, localID)
	if err != nil {
		return err
	}
	if n, ok := ent.(*types.Note); ok && n.Attachment != nil && n.Attachment.Path != "" && e.blobs != nil {
		if err := e.blobs.Release(ctx, n.Attachment.Path); err != nil {
			e.logger.Warn("releasing attachment", "path", n.Attachment.Path, "error", err)
		}
	}
	e.triggerAsync()
	return nil
}

// SetOnline records connectivity. Going online triggers a pass.
func (e *Engine) SetOnline(online bool) {
	e.online.Store(online)
	if online {
		e.triggerAsync()
	}
}

// BecameVisible triggers a pass when the app returns to the foreground.
func (e *Engine) BecameVisible() {
	e.triggerAsync()
}

// Notify schedules a pass after a local mutation made outside the engine.
func (e *Engine) Notify() {
	e.triggerAsync()
}

func (e *Engine) triggerAsync() {
	if !e.online.Load() {
		return
	}
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	ctx := e.base
	if ctx == nil {
		ctx = context.Background()
	}
	e.async.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.async.Done()
		_ = e.TriggerSync(ctx)
	}()
}

// Start runs a pass now and then every interval until Stop or ctx is done.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.loopDone != nil {
		e.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.stopped = false
	e.base = loopCtx
	e.stopLoop = cancel
	e.loopDone = done
	e.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		_ = e.TriggerSync(loopCtx)
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				_ = e.TriggerSync(loopCtx)
			}
		}
	}()
}

// Stop cancels the running pass and the periodic trigger, and waits for
// them to unwind. Later triggers are dropped until Start is called again.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	if e.cancelPass != nil {
		e.cancelPass()
	}
	if e.stopLoop != nil {
		e.stopLoop()
	}
	done := e.loopDone
	e.stopLoop = nil
	e.loopDone = nil
	e.mu.Unlock()

	if done != nil {
		<-done
	}
	e.async.Wait()
}

// Subscribe returns a channel of engine events and a function that
// unsubscribes and closes it. Slow subscribers miss events.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
			close(ch)
		})
	}
}

func (e *Engine) publish(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	s := e.status
	e.mu.Unlock()
	s.Online = e.online.Load()
	s.Running = e.running.Load()
	return s
}
