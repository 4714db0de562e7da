package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/stride/pkg/types"
)

// pastGrace tolerates slots entered a moment ago.
const pastGrace = time.Minute

// ErrInvalidSlot is returned when a date or clock string cannot be parsed.
var ErrInvalidSlot = errors.New("invalid time slot")

// Slot is a proposed booking.
type Slot struct {
	Start           time.Time
	DurationMinutes int   // Zero means the policy default.
	ExcludeID       int64 // Local id of the task being rescheduled, never a conflict with itself.
}

// ParseSlot builds a Slot from a "YYYY-MM-DD" date and an "HH:MM" clock in loc.
func ParseSlot(date, clock string, durationMinutes int, loc *time.Location) (Slot, error) {
	if loc == nil {
		loc = time.Local
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
	if err != nil {
		return Slot{}, fmt.Errorf("%w: %s %s", ErrInvalidSlot, date, clock)
	}
	if durationMinutes < 0 {
		return Slot{}, fmt.Errorf("%w: negative duration", ErrInvalidSlot)
	}
	return Slot{Start: start, DurationMinutes: durationMinutes}, nil
}

// Outcome is the result of checking a slot. The zero value is not OK.
type Outcome struct {
	OK         bool
	Reason     string
	Conflict   *types.Task // Set when another booking overlaps.
	Suggestion string
}

// ConflictError is returned by Commit and Reschedule when the slot is
// rejected at write time.
type ConflictError struct {
	Outcome Outcome
}

func (e *ConflictError) Error() string {
	if e.Outcome.Suggestion != "" {
		return e.Outcome.Reason + " (" + e.Outcome.Suggestion + ")"
	}
	return e.Outcome.Reason
}

// Check validates slot against bookings under policy at now. It is pure:
// the same inputs always produce the same Outcome.
//
// Checks run in order and stop at the first failure: the slot must not
// start more than a minute in the past, must fit inside work hours when
// that policy is on, and must not overlap any live, uncompleted booking.
// Both the proposed interval and every booking are extended by the buffer.
func Check(slot Slot, bookings []*types.Task, policy Policy, now time.Time) Outcome {
	loc := policy.Loc()
	duration := slot.DurationMinutes
	if duration <= 0 {
		duration = policy.DefaultDuration()
	}
	start := slot.Start
	end := start.Add(time.Duration(duration) * time.Minute)

	if start.Before(now.Add(-pastGrace)) {
		return Outcome{
			Reason:     "cannot schedule in the past",
			Suggestion: "choose a future date and time",
		}
	}

	if policy.WorkHoursEnabled {
		workStart, workEnd, err := policy.WorkHours(start)
		if err != nil {
			return Outcome{Reason: err.Error()}
		}
		if start.Before(workStart) || end.After(workEnd) {
			return Outcome{
				Reason:     fmt.Sprintf("outside work hours (%s - %s)", policy.WorkStart, policy.WorkEnd),
				Suggestion: fmt.Sprintf("try between %s and %s", policy.WorkStart, policy.WorkEnd),
			}
		}
	}

	buffer := policy.Buffer()
	proposedEnd := end.Add(buffer)
	for _, b := range bookings {
		if !isBooking(b, slot.ExcludeID) {
			continue
		}
		bStart, bEnd, _ := b.Interval(policy.DefaultDuration())
		bEndBuffered := bEnd.Add(buffer)
		if start.Before(bEndBuffered) && bStart.Before(proposedEnd) {
			busyUntil := bEnd
			if policy.BufferEnabled {
				busyUntil = bEndBuffered
			}
			return Outcome{
				Reason:     "conflict with " + b.Title,
				Conflict:   b,
				Suggestion: "busy until " + busyUntil.In(loc).Format("15:04"),
			}
		}
	}

	return Outcome{OK: true}
}

// isBooking reports whether t occupies calendar time for conflict checks.
func isBooking(t *types.Task, excludeID int64) bool {
	if t == nil || t.ScheduledTime == nil || t.Tombstoned() {
		return false
	}
	if t.Status == types.StatusCompleted {
		return false
	}
	return excludeID == 0 || t.LocalID != excludeID
}

// Validator checks slots against the bookings in a task store.
type Validator struct {
	store  types.TaskStore
	policy Source
	clock  types.Clock
}

// NewValidator returns a Validator reading bookings from store.
func NewValidator(store types.TaskStore, policy Source, clock types.Clock) *Validator {
	if clock == nil {
		clock = types.SystemClock{}
	}
	if policy == nil {
		policy = Static(DefaultPolicy())
	}
	return &Validator{store: store, policy: policy, clock: clock}
}

// Policy returns the policy currently in force.
func (v *Validator) Policy() Policy { return v.policy.Policy() }

// Validate checks a "YYYY-MM-DD" / "HH:MM" slot. excludeID is the local id of
// the task being moved, or zero. The result is a preview: bookings may change
// before the caller writes, so writers should use Commit or Reschedule.
func (v *Validator) Validate(ctx context.Context, date, clock string, durationMinutes int, excludeID int64) (Outcome, error) {
	policy := v.policy.Policy()
	slot, err := ParseSlot(date, clock, durationMinutes, policy.Loc())
	if err != nil {
		return Outcome{}, err
	}
	slot.ExcludeID = excludeID

	var out Outcome
	err = v.store.ViewTasks(ctx, func(tx types.TaskTx) error {
		bookings, err := dayBookings(tx, slot.Start, policy.Loc())
		if err != nil {
			return err
		}
		out = Check(slot, bookings, policy, v.clock.Now())
		return nil
	})
	return out, err
}

// Commit checks slot and, if it is free, books task into it in the same write
// transaction. A task with no local id is created. A rejected slot returns a
// *ConflictError and leaves the store untouched.
func (v *Validator) Commit(ctx context.Context, task *types.Task, slot Slot) error {
	policy := v.policy.Policy()
	return v.store.UpdateTasks(ctx, func(tx types.TaskTx) error {
		return v.commit(tx, task, slot, policy)
	})
}

// Reschedule moves an existing task to a "YYYY-MM-DD" / "HH:MM" slot.
func (v *Validator) Reschedule(ctx context.Context, localID int64, date, clock string, durationMinutes int) (*types.Task, error) {
	policy := v.policy.Policy()
	slot, err := ParseSlot(date, clock, durationMinutes, policy.Loc())
	if err != nil {
		return nil, err
	}
	var task *types.Task
	err = v.store.UpdateTasks(ctx, func(tx types.TaskTx) error {
		task, err = tx.GetTask(localID)
		if err != nil {
			return err
		}
		if task.Tombstoned() {
			return types.ErrTombstoned
		}
		if slot.DurationMinutes == 0 {
			slot.DurationMinutes = task.DurationMinutes
		}
		return v.commit(tx, task, slot, policy)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (v *Validator) commit(tx types.TaskTx, task *types.Task, slot Slot, policy Policy) error {
	slot.ExcludeID = task.LocalID
	bookings, err := dayBookings(tx, slot.Start, policy.Loc())
	if err != nil {
		return err
	}
	if out := Check(slot, bookings, policy, v.clock.Now()); !out.OK {
		return &ConflictError{Outcome: out}
	}

	day := types.StartOfDay(slot.Start, policy.Loc())
	start := slot.Start
	task.ExecutionDate = &day
	task.ScheduledTime = &start
	task.DurationMinutes = slot.DurationMinutes
	task.Reminded = false
	if task.LocalID == 0 {
		return tx.CreateTask(task, types.OriginLocal)
	}
	return tx.SaveTask(task, types.OriginLocal)
}

// dayBookings loads live tasks planned for the calendar day of t that carry a
// scheduled time.
func dayBookings(tx types.TaskTx, t time.Time, loc *time.Location) ([]*types.Task, error) {
	from := types.StartOfDay(t, loc)
	to := from.AddDate(0, 0, 1)
	tasks, err := tx.ListTasks(types.TaskFilter{From: &from, To: &to, ScheduledOnly: true})
	if err != nil {
		return nil, fmt.Errorf("loading bookings: %w", err)
	}
	return tasks, nil
}
