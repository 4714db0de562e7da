// Package app wires the store, scheduler, lifecycle machine and sync engine
// from configuration, and runs the long-lived background jobs.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mesh-intelligence/stride/internal/blob"
	"github.com/mesh-intelligence/stride/internal/config"
	"github.com/mesh-intelligence/stride/internal/lifecycle"
	"github.com/mesh-intelligence/stride/internal/paths"
	"github.com/mesh-intelligence/stride/internal/remote"
	"github.com/mesh-intelligence/stride/internal/schedule"
	"github.com/mesh-intelligence/stride/internal/syncer"
	"github.com/mesh-intelligence/stride/pkg/sqlite"
	"github.com/mesh-intelligence/stride/pkg/types"
)

// ErrSyncDisabled is returned by operations that need a remote when
// remote.url is not configured.
var ErrSyncDisabled = errors.New("sync disabled: remote.url is not set")

// Options locate the configuration and data directories.
type Options struct {
	ConfigDir string // --config-dir flag value.
	DataDir   string // --data-dir flag value.
	LogOutput io.Writer
	Clock     types.Clock
}

// App holds the wired components.
type App struct {
	Loader    *config.Loader
	Config    config.Config
	DataDir   string
	Logger    *slog.Logger
	Clock     types.Clock
	Store     *sqlite.Store
	Policy    *schedule.Live
	Validator *schedule.Validator
	Machine   *lifecycle.Machine
	Reminders *lifecycle.Reminders
	Blobs     *blob.Store
	Remote    *remote.Client // Nil when sync is disabled.
	Sync      *syncer.Engine // Nil when sync is disabled.
}

// Open loads configuration, opens the store and builds every component.
func Open(opts Options) (*App, error) {
	configDir, err := paths.ResolveConfigDir(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	loader, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	cfg, err := loader.Config()
	if err != nil {
		return nil, err
	}
	dataDir, err := paths.ResolveDataDir(opts.DataDir, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := cfg.Log.NewLogger(out)
	if err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	policy, err := cfg.SchedulePolicy()
	if err != nil {
		return nil, err
	}

	store, err := sqlite.Open(dataDir, clock)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &App{
		Loader:  loader,
		Config:  cfg,
		DataDir: dataDir,
		Logger:  logger,
		Clock:   clock,
		Store:   store,
		Policy:  schedule.NewLive(policy),
		Blobs:   blob.New(cfg.BlobDir(dataDir), clock),
	}
	a.Validator = schedule.NewValidator(store, a.Policy, clock)
	a.Machine = lifecycle.NewMachine(store, a.Policy, clock)
	a.Reminders = lifecycle.NewReminders(store, clock)

	if cfg.Remote.URL != "" {
		a.Remote = remote.NewClient(cfg.Remote.URL, cfg.Remote.Timeout)
		a.Sync = syncer.New(store, a.Remote, syncer.StaticIdentity(cfg.UserID),
			syncer.WithClock(clock),
			syncer.WithLogger(logger.With("component", "sync")),
			syncer.WithBlobReleaser(releaseFunc(a.ReleaseAttachment)),
			syncer.WithBatchSize(cfg.Sync.BatchSize),
			syncer.WithMaxRetry(cfg.Sync.MaxRetry),
			syncer.WithRetryBase(cfg.Sync.RetryBase),
			syncer.WithCallTimeout(cfg.Remote.Timeout),
			syncer.WithInterval(cfg.Sync.Interval),
		)
	}
	return a, nil
}

// Close stops the sync engine, waiting for an in-flight pass to abort, and
// then detaches the store.
func (a *App) Close() error {
	if a.Sync != nil {
		a.Sync.Stop()
	}
	return a.Store.Detach()
}

// Changed tells the sync engine about a local mutation.
func (a *App) Changed() {
	if a.Sync != nil {
		a.Sync.Notify()
	}
}

// Delete tombstones a record. With sync enabled the engine also releases a
// note's attachment and schedules a pass.
func (a *App) Delete(ctx context.Context, table string, localID int64) error {
	if a.Sync != nil {
		return a.Sync.Delete(ctx, table, localID)
	}
	if table == types.TableProjects {
		_, err := a.Store.DeleteProject(ctx, localID)
		return err
	}
	e, err := a.Store.SoftDelete(ctx, table, localID)
	if err != nil {
		return err
	}
	if n, ok := e.(*types.Note); ok && n.Attachment != nil && n.Attachment.Path != "" {
		if err := a.ReleaseAttachment(ctx, n.Attachment.Path); err != nil {
			a.Logger.Warn("releasing attachment", "path", n.Attachment.Path, "error", err)
		}
	}
	return nil
}

// SyncNow runs one pass in the foreground.
func (a *App) SyncNow(ctx context.Context) (syncer.Status, error) {
	if a.Sync == nil {
		return syncer.Status{}, ErrSyncDisabled
	}
	err := a.Sync.TriggerSync(ctx)
	return a.Sync.Status(), err
}

// Run starts the sync engine, the rollover sweeper and the reminder loop,
// and follows config.yaml for schedule policy changes. It blocks until ctx
// is done. notify receives each reminder as it fires.
func (a *App) Run(ctx context.Context, notify func(lifecycle.Reminder)) error {
	a.Loader.Watch(func(c config.Config) {
		p, err := c.SchedulePolicy()
		if err != nil {
			return
		}
		a.Policy.Set(p)
		a.Logger.Info("schedule policy reloaded",
			"work_hours", p.WorkHoursEnabled, "buffer", p.Buffer())
	}, func(err error) {
		a.Logger.Warn("ignoring config change", "error", err)
	})

	var wg sync.WaitGroup
	if a.Sync != nil {
		events, unsubscribe := a.Sync.Subscribe()
		defer unsubscribe()
		a.Sync.Start(ctx)
		defer a.Sync.Stop()

		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-events:
					if !ok {
						return
					}
					a.Logger.Info("remote changes applied", "tables", ev.Tables, "rows", ev.Applied)
				}
			}
		}()
	}

	sweeper := lifecycle.NewSweeper(a.Machine, a.Config.Sweep.Interval,
		a.Logger.With("component", "sweep"),
		func(lifecycle.SweepResult) { a.Changed() })
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = sweeper.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.remindLoop(ctx, notify)
	}()

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (a *App) remindLoop(ctx context.Context, notify func(lifecycle.Reminder)) {
	interval := a.Config.Reminders.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		due, err := a.Reminders.Due(ctx)
		switch {
		case errors.Is(err, types.ErrStoreClosed):
			return
		case err != nil:
			if ctx.Err() == nil {
				a.Logger.Warn("checking reminders", "error", err)
			}
		case len(due) > 0:
			for _, r := range due {
				if notify != nil {
					notify(r)
				}
			}
			a.Changed()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
