package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/stride/internal/sqlite"
	"github.com/mesh-intelligence/stride/pkg/types"
)

var day = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func booking(id int64, title string, start time.Time, minutes int) *types.Task {
	return &types.Task{
		Envelope:        types.Envelope{LocalID: id},
		Title:           title,
		Status:          types.StatusScheduled,
		ExecutionDate:   &day,
		ScheduledTime:   &start,
		DurationMinutes: minutes,
	}
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.Location = time.UTC
	return p
}

func TestCheck_BufferBoundaries(t *testing.T) {
	now := at(8, 0)
	existing := []*types.Task{booking(1, "Standup", at(10, 0), 60)}

	buffered := testPolicy()
	buffered.BufferEnabled = true
	buffered.BufferMinutes = 15
	unbuffered := testPolicy()

	tests := []struct {
		name     string
		start    time.Time
		minutes  int
		policy   Policy
		wantOK   bool
		wantHint string
	}{
		{"inside buffer rejected", at(11, 10), 20, buffered, false, "busy until 11:15"},
		{"after buffer accepted", at(11, 20), 20, buffered, true, ""},
		{"back to back without buffer", at(11, 0), 15, unbuffered, true, ""},
		{"overlap without buffer", at(10, 59), 15, unbuffered, false, "busy until 11:00"},
		{"ends exactly at start", at(9, 0), 60, unbuffered, true, ""},
		{"buffer pushes into booking", at(9, 0), 50, buffered, false, "busy until 11:15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Check(Slot{Start: tt.start, DurationMinutes: tt.minutes}, existing, tt.policy, now)
			assert.Equal(t, tt.wantOK, out.OK, out.Reason)
			if !tt.wantOK {
				assert.Equal(t, "conflict with Standup", out.Reason)
				assert.Equal(t, tt.wantHint, out.Suggestion)
				require.NotNil(t, out.Conflict)
				assert.Equal(t, int64(1), out.Conflict.LocalID)
			}
		})
	}
}

func TestCheck_Past(t *testing.T) {
	now := at(12, 0)
	p := testPolicy()

	out := Check(Slot{Start: at(11, 58), DurationMinutes: 30}, nil, p, now)
	assert.False(t, out.OK)
	assert.Equal(t, "cannot schedule in the past", out.Reason)

	out = Check(Slot{Start: now.Add(-30 * time.Second), DurationMinutes: 30}, nil, p, now)
	assert.True(t, out.OK, "one minute grace")
}

func TestCheck_WorkHours(t *testing.T) {
	now := at(6, 0)
	p := testPolicy()
	p.WorkHoursEnabled = true

	tests := []struct {
		name   string
		start  time.Time
		min    int
		wantOK bool
	}{
		{"before start", at(8, 30), 30, false},
		{"at start", at(9, 0), 30, true},
		{"ends at close", at(16, 0), 60, true},
		{"runs past close", at(16, 30), 45, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Check(Slot{Start: tt.start, DurationMinutes: tt.min}, nil, p, now)
			assert.Equal(t, tt.wantOK, out.OK)
			if !tt.wantOK {
				assert.Contains(t, out.Reason, "outside work hours")
			}
		})
	}

	p.WorkHoursEnabled = false
	assert.True(t, Check(Slot{Start: at(7, 0), DurationMinutes: 30}, nil, p, now).OK)
}

func TestCheck_IgnoresNonBookings(t *testing.T) {
	now := at(8, 0)
	p := testPolicy()

	done := booking(1, "done", at(10, 0), 60)
	done.Status = types.StatusCompleted
	deletedAt := now
	gone := booking(2, "gone", at(10, 0), 60)
	gone.DeletedAt = &deletedAt
	self := booking(3, "self", at(10, 0), 60)
	unscheduled := &types.Task{Envelope: types.Envelope{LocalID: 4}, Title: "loose", ExecutionDate: &day}

	out := Check(Slot{Start: at(10, 0), DurationMinutes: 60, ExcludeID: 3},
		[]*types.Task{done, gone, self, unscheduled}, p, now)
	assert.True(t, out.OK, out.Reason)
}

func TestCheck_DefaultDurations(t *testing.T) {
	now := at(8, 0)
	p := testPolicy()
	existing := []*types.Task{booking(1, "Open ended", at(10, 0), 0)}

	out := Check(Slot{Start: at(10, 45), DurationMinutes: 15}, existing, p, now)
	assert.False(t, out.OK, "a booking without duration lasts an hour")
	assert.Equal(t, "busy until 11:00", out.Suggestion)

	out = Check(Slot{Start: at(9, 30)}, existing, p, now)
	assert.False(t, out.OK, "a slot without duration lasts the policy default")
}

func TestCheck_Deterministic(t *testing.T) {
	now := at(8, 0)
	p := testPolicy()
	p.BufferEnabled = true
	existing := []*types.Task{booking(1, "A", at(10, 0), 60), booking(2, "B", at(13, 0), 30)}
	slot := Slot{Start: at(12, 50), DurationMinutes: 30}

	first := Check(slot, existing, p, now)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Check(slot, existing, p, now))
	}
}

func TestParseSlot(t *testing.T) {
	slot, err := ParseSlot("2025-06-02", "14:30", 45, time.UTC)
	require.NoError(t, err)
	assert.True(t, at(14, 30).Equal(slot.Start))
	assert.Equal(t, 45, slot.DurationMinutes)

	_, err = ParseSlot("2025-06-02", "2pm", 45, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidSlot)
	_, err = ParseSlot("06/02/2025", "14:30", 45, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func setupValidator(t *testing.T, p Policy, now time.Time) (*Validator, *sqlite.Backend) {
	t.Helper()
	clock := types.ClockFunc(func() time.Time { return now })
	b := sqlite.NewBackend(sqlite.WithClock(clock))
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { b.Detach() })
	return NewValidator(b, Static(p), clock), b
}

// The reschedule scenario: A is active today, B is booked 10:00 to 11:00.
// Moving A to 10:30 with a 15 minute buffer inside 09:00-17:00 work hours
// must be rejected with a hint that B's slot frees up at 11:15.
func TestValidator_RescheduleScenario(t *testing.T) {
	p := testPolicy()
	p.WorkHoursEnabled = true
	p.BufferEnabled = true
	p.BufferMinutes = 15
	v, b := setupValidator(t, p, at(8, 0))
	ctx := context.Background()

	a := &types.Task{Title: "A", Status: types.StatusActive, ExecutionDate: &day}
	bStart := at(10, 0)
	bTask := &types.Task{Title: "B", Status: types.StatusScheduled, Kind: types.KindMeeting,
		ExecutionDate: &day, ScheduledTime: &bStart, DurationMinutes: 60}
	require.NoError(t, b.Update(ctx, func(tx *sqlite.Tx) error {
		if err := tx.CreateTask(a, types.OriginLocal); err != nil {
			return err
		}
		return tx.CreateTask(bTask, types.OriginLocal)
	}))

	out, err := v.Validate(ctx, "2025-06-02", "10:30", 0, a.LocalID)
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, "conflict with B", out.Reason)
	assert.Equal(t, "busy until 11:15", out.Suggestion)
	require.NotNil(t, out.Conflict)
	assert.Equal(t, bTask.UUID, out.Conflict.UUID)

	_, err = v.Reschedule(ctx, a.LocalID, "2025-06-02", "10:30", 0)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "conflict with B", conflict.Outcome.Reason)

	require.NoError(t, b.View(ctx, func(tx *sqlite.Tx) error {
		got, err := tx.GetTask(a.LocalID)
		require.NoError(t, err)
		assert.Nil(t, got.ScheduledTime, "rejected reschedule must not write")
		return nil
	}))

	moved, err := v.Reschedule(ctx, a.LocalID, "2025-06-02", "11:15", 30)
	require.NoError(t, err)
	require.NotNil(t, moved.ScheduledTime)
	assert.True(t, moved.ScheduledTime.Equal(at(11, 15)))
	assert.Equal(t, 30, moved.DurationMinutes)
}

func TestValidator_ReschedulingSelfIsNotAConflict(t *testing.T) {
	v, b := setupValidator(t, testPolicy(), at(8, 0))
	ctx := context.Background()

	start := at(10, 0)
	task := &types.Task{Title: "Review", ExecutionDate: &day, ScheduledTime: &start, DurationMinutes: 60}
	require.NoError(t, b.Update(ctx, func(tx *sqlite.Tx) error { return tx.CreateTask(task, types.OriginLocal) }))

	moved, err := v.Reschedule(ctx, task.LocalID, "2025-06-02", "10:30", 0)
	require.NoError(t, err)
	assert.Equal(t, 60, moved.DurationMinutes, "keeps the existing duration")
}

func TestValidator_CommitCreatesNewBooking(t *testing.T) {
	v, b := setupValidator(t, testPolicy(), at(8, 0))
	ctx := context.Background()

	task := &types.Task{Title: "Dentist", Kind: types.KindAppointment}
	require.NoError(t, v.Commit(ctx, task, Slot{Start: at(15, 0), DurationMinutes: 30}))
	assert.NotZero(t, task.LocalID)

	clash := &types.Task{Title: "Gym"}
	err := v.Commit(ctx, clash, Slot{Start: at(15, 15), DurationMinutes: 30})
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "conflict with Dentist", conflict.Outcome.Reason)
	assert.Zero(t, clash.LocalID)

	require.NoError(t, b.View(ctx, func(tx *sqlite.Tx) error {
		got, err := tx.GetTask(task.LocalID)
		require.NoError(t, err)
		require.NotNil(t, got.ExecutionDate)
		assert.True(t, got.ExecutionDate.Equal(day))
		return nil
	}))
}

func TestValidator_OtherDaysDoNotConflict(t *testing.T) {
	v, b := setupValidator(t, testPolicy(), at(8, 0))
	ctx := context.Background()

	tomorrow := day.AddDate(0, 0, 1)
	start := tomorrow.Add(10 * time.Hour)
	task := &types.Task{Title: "Tomorrow", ExecutionDate: &tomorrow, ScheduledTime: &start}
	require.NoError(t, b.Update(ctx, func(tx *sqlite.Tx) error { return tx.CreateTask(task, types.OriginLocal) }))

	out, err := v.Validate(ctx, "2025-06-02", "10:00", 60, 0)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestLivePolicy(t *testing.T) {
	l := NewLive(testPolicy())
	assert.False(t, l.Policy().BufferEnabled)

	p := testPolicy()
	p.BufferEnabled = true
	l.Set(p)
	assert.True(t, l.Policy().BufferEnabled)
	assert.Equal(t, 15*time.Minute, l.Policy().Buffer())

	var empty Live
	assert.Equal(t, "09:00", empty.Policy().WorkStart)
}

func TestPolicy_WorkDayOver(t *testing.T) {
	p := testPolicy()
	assert.False(t, p.WorkDayOver(at(18, 0)), "disabled policy never ends the day")
	p.WorkHoursEnabled = true
	assert.False(t, p.WorkDayOver(at(17, 0)))
	assert.True(t, p.WorkDayOver(at(17, 1)))

	p.WorkEnd = "5pm"
	assert.Error(t, p.Validate())
}
