// Package lifecycle owns task status changes: the transition table with its
// single-focus rule, the rollover sweep that defers overdue work, and due
// reminders.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/stride/internal/schedule"
	"github.com/mesh-intelligence/stride/pkg/types"
)

// Transition errors.
var (
	ErrIllegalTransition = errors.New("transition is not allowed")
	ErrAlreadyFocused    = errors.New("another task is already focused")
	ErrTaskCompleted     = errors.New("this task is already completed")
)

// TransitionError reports a move that the transition table does not allow.
type TransitionError struct {
	From types.TaskStatus
	To   types.TaskStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition from %s to %s is not allowed", e.From, e.To)
}

// Unwrap lets errors.Is match ErrIllegalTransition.
func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// transitions lists the allowed targets for each status. Completed is
// terminal and has no entry.
var transitions = map[types.TaskStatus][]types.TaskStatus{
	types.StatusCaptured:  {types.StatusClarified, types.StatusActive, types.StatusDeferred, types.StatusCompleted, types.StatusFocused},
	types.StatusClarified: {types.StatusScheduled, types.StatusActive, types.StatusDeferred, types.StatusCompleted},
	types.StatusScheduled: {types.StatusActive, types.StatusDeferred, types.StatusCompleted, types.StatusFocused},
	types.StatusActive:    {types.StatusFocused, types.StatusCompleted, types.StatusDeferred},
	types.StatusFocused:   {types.StatusCompleted, types.StatusActive, types.StatusDeferred},
	types.StatusDeferred:  {types.StatusActive, types.StatusScheduled, types.StatusCompleted},
	types.StatusStalled:   {types.StatusActive, types.StatusDeferred, types.StatusCompleted},
}

// CanTransition reports whether the table allows from -> to. It does not
// consider the single-focus rule, which needs the store.
func CanTransition(from, to types.TaskStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine applies status changes to tasks in a store.
type Machine struct {
	store  types.TaskStore
	policy schedule.Source
	clock  types.Clock
}

// NewMachine returns a Machine over store. policy supplies the work-hours
// setting used by the rollover sweep.
func NewMachine(store types.TaskStore, policy schedule.Source, clock types.Clock) *Machine {
	if clock == nil {
		clock = types.SystemClock{}
	}
	if policy == nil {
		policy = schedule.Static(schedule.DefaultPolicy())
	}
	return &Machine{store: store, policy: policy, clock: clock}
}

// Transition moves the task with localID to status to. Moving to the
// current status succeeds without writing. The focus check and the write
// share one store transaction, so two concurrent focus requests cannot both
// succeed.
func (m *Machine) Transition(ctx context.Context, localID int64, to types.TaskStatus) (*types.Task, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidStatus, to)
	}
	var task *types.Task
	err := m.store.UpdateTasks(ctx, func(tx types.TaskTx) error {
		var err error
		task, err = tx.GetTask(localID)
		if err != nil {
			return err
		}
		if task.Tombstoned() {
			return types.ErrNotFound
		}
		if task.Status == to {
			return nil
		}
		if task.Status == types.StatusCompleted {
			return ErrTaskCompleted
		}
		if to == types.StatusFocused {
			focused, err := tx.ListTasks(types.TaskFilter{Statuses: []types.TaskStatus{types.StatusFocused}})
			if err != nil {
				return err
			}
			for _, f := range focused {
				if f.LocalID != task.LocalID {
					return ErrAlreadyFocused
				}
			}
		}
		if !CanTransition(task.Status, to) {
			return &TransitionError{From: task.Status, To: to}
		}

		task.Status = to
		if to == types.StatusCompleted {
			now := m.clock.Now()
			task.CompletedAt = &now
		}
		return tx.SaveTask(task, types.OriginLocal)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Focused returns the currently focused task, or nil.
func (m *Machine) Focused(ctx context.Context) (*types.Task, error) {
	var out *types.Task
	err := m.store.ViewTasks(ctx, func(tx types.TaskTx) error {
		focused, err := tx.ListTasks(types.TaskFilter{Statuses: []types.TaskStatus{types.StatusFocused}})
		if err != nil {
			return err
		}
		if len(focused) > 0 {
			out = focused[0]
		}
		return nil
	})
	return out, err
}
