package lifecycle

import (
	"context"
	"math"
	"time"

	"github.com/mesh-intelligence/stride/pkg/types"
)

// Reminder is a booking whose reminder lead time has been reached.
type Reminder struct {
	Task        *types.Task
	MinutesLeft int // Whole minutes until the scheduled start, never negative.
	Kind        types.TaskKind
}

// Reminders finds tasks whose reminders are due.
type Reminders struct {
	store types.TaskStore
	clock types.Clock
}

// NewReminders returns a Reminders over store.
func NewReminders(store types.TaskStore, clock types.Clock) *Reminders {
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &Reminders{store: store, clock: clock}
}

var reminderStatuses = []types.TaskStatus{
	types.StatusActive,
	types.StatusScheduled,
	types.StatusCaptured,
}

// Due marks every due, unreminded task as reminded and returns it. The flag
// is written before the reminder is returned, so each reminder fires once
// and the flag syncs to other replicas.
func (r *Reminders) Due(ctx context.Context) ([]Reminder, error) {
	now := r.clock.Now()
	var due []Reminder
	err := r.store.UpdateTasks(ctx, func(tx types.TaskTx) error {
		due = nil
		tasks, err := tx.ListTasks(types.TaskFilter{Statuses: reminderStatuses, ScheduledOnly: true})
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if t.Reminded || t.ReminderMinutes <= 0 || t.ScheduledTime == nil {
				continue
			}
			fireAt := t.ScheduledTime.Add(-time.Duration(t.ReminderMinutes) * time.Minute)
			if now.Before(fireAt) {
				continue
			}
			t.Reminded = true
			if err := tx.SaveTask(t, types.OriginLocal); err != nil {
				return err
			}
			due = append(due, Reminder{Task: t, MinutesLeft: minutesUntil(now, *t.ScheduledTime), Kind: t.Kind})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return due, nil
}

func minutesUntil(now, t time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}
