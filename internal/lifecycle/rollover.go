package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mesh-intelligence/stride/pkg/types"
)

// StallThreshold is the rollover count at which a task stalls instead of
// being deferred again.
const StallThreshold = 3

// SweepResult counts what one rollover sweep changed.
type SweepResult struct {
	Deferred  int
	Stalled   int
	Activated int
}

// Changed reports whether the sweep wrote anything.
func (r SweepResult) Changed() bool {
	return r.Deferred+r.Stalled+r.Activated > 0
}

var rolloverCandidates = []types.TaskStatus{
	types.StatusActive,
	types.StatusScheduled,
	types.StatusFocused,
	types.StatusCaptured,
}

// Rollover defers overdue work and activates captured tasks whose day has
// come. A task is overdue when its execution date is before today, or it is
// today and the work day is over. Each deferral increments the rollover
// count; at StallThreshold the task stalls. Deferred and stalled tasks are
// not candidates, so repeated sweeps never count the same lapse twice.
//
// The sweep runs in one write transaction.
func (m *Machine) Rollover(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := m.clock.Now()
	policy := m.policy.Policy()
	loc := policy.Loc()
	today := types.StartOfDay(now, loc)
	dayOver := policy.WorkDayOver(now)

	err := m.store.UpdateTasks(ctx, func(tx types.TaskTx) error {
		res = SweepResult{}
		candidates, err := tx.ListTasks(types.TaskFilter{Statuses: rolloverCandidates})
		if err != nil {
			return err
		}
		for _, t := range candidates {
			if t.ExecutionDate == nil {
				continue
			}
			day := types.StartOfDay(*t.ExecutionDate, loc)
			if !(day.Before(today) || (day.Equal(today) && dayOver)) {
				continue
			}
			t.RolloverCount++
			if t.RolloverCount >= StallThreshold {
				t.Status = types.StatusStalled
				res.Stalled++
			} else {
				t.Status = types.StatusDeferred
				res.Deferred++
			}
			if err := tx.SaveTask(t, types.OriginLocal); err != nil {
				return err
			}
		}

		captured, err := tx.ListTasks(types.TaskFilter{Statuses: []types.TaskStatus{types.StatusCaptured}})
		if err != nil {
			return err
		}
		for _, t := range captured {
			if t.ExecutionDate == nil {
				continue
			}
			day := types.StartOfDay(*t.ExecutionDate, loc)
			if day.After(today) || (day.Equal(today) && dayOver) {
				continue
			}
			if t.IsTimeBound() {
				t.Status = types.StatusScheduled
			} else {
				t.Status = types.StatusActive
			}
			if err := tx.SaveTask(t, types.OriginLocal); err != nil {
				return err
			}
			res.Activated++
		}
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	return res, nil
}

// Sweeper runs the rollover sweep at startup and then on an interval.
type Sweeper struct {
	machine  *Machine
	interval time.Duration
	logger   *slog.Logger
	onChange func(SweepResult)
}

// NewSweeper returns a Sweeper. onChange, if non-nil, is called after every
// sweep that wrote something.
func NewSweeper(m *Machine, interval time.Duration, logger *slog.Logger, onChange func(SweepResult)) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{machine: m, interval: interval, logger: logger, onChange: onChange}
}

// Run sweeps until ctx is done. A closed store ends the loop quietly.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if !s.sweep(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sweep runs once and reports whether the loop should continue.
func (s *Sweeper) sweep(ctx context.Context) bool {
	res, err := s.machine.Rollover(ctx)
	switch {
	case errors.Is(err, types.ErrStoreClosed):
		s.logger.Debug("rollover stopped, store closed")
		return false
	case err != nil:
		if ctx.Err() == nil {
			s.logger.Warn("rollover sweep failed", "error", err)
		}
		return true
	}
	if res.Changed() {
		s.logger.Info("rollover sweep",
			"deferred", res.Deferred, "stalled", res.Stalled, "activated", res.Activated)
		if s.onChange != nil {
			s.onChange(res)
		}
	}
	return true
}
