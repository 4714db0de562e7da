package types

import "time"

// TaskStatus is a position in the task lifecycle.
type TaskStatus string

// Task states. Completed is terminal.
const (
	StatusCaptured  TaskStatus = "captured"
	StatusClarified TaskStatus = "clarified"
	StatusScheduled TaskStatus = "scheduled"
	StatusActive    TaskStatus = "active"
	StatusFocused   TaskStatus = "focused"
	StatusCompleted TaskStatus = "completed"
	StatusDeferred  TaskStatus = "deferred"
	StatusStalled   TaskStatus = "stalled"
)

// validTaskStatuses is the set of recognized task status values.
var validTaskStatuses = map[TaskStatus]bool{
	StatusCaptured:  true,
	StatusClarified: true,
	StatusScheduled: true,
	StatusActive:    true,
	StatusFocused:   true,
	StatusCompleted: true,
	StatusDeferred:  true,
	StatusStalled:   true,
}

// Valid reports whether s is a recognized status.
func (s TaskStatus) Valid() bool { return validTaskStatuses[s] }

// Priority ranks how important a task is.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

// Effort estimates how much work a task takes.
type Effort int

const (
	EffortLow    Effort = 1
	EffortMedium Effort = 2
	EffortHigh   Effort = 3
)

// TaskKind distinguishes plain tasks from time-bound bookings.
type TaskKind string

const (
	KindTask        TaskKind = "task"
	KindAppointment TaskKind = "appointment"
	KindMeeting     TaskKind = "meeting"
)

// Task is a unit of work, appointment or meeting.
type Task struct {
	Envelope

	Title           string     // Required, non-empty.
	Description     string     // Optional free text.
	Status          TaskStatus // Current lifecycle state.
	Priority        Priority   // 1..3, defaults to medium.
	Effort          Effort     // 1..3, defaults to medium.
	Kind            TaskKind   // task, appointment or meeting.
	ExecutionDate   *time.Time // Local midnight of the day the task is planned for.
	ScheduledTime   *time.Time // Precise start, when booked.
	DurationMinutes int        // Length of the booking; zero means the policy default.
	ProjectUUID     string     // Owning project, empty when unassigned.
	RolloverCount   int        // Number of times the sweep deferred this task.
	ReminderMinutes int        // Minutes before ScheduledTime to remind; zero disables.
	Reminded        bool       // Set once the reminder fired.
	CompletedAt     *time.Time // Stamped on transition to completed.
	CreatedAt       time.Time
}

// TableName implements Entity.
func (t *Task) TableName() string { return TableTasks }

// IsTimeBound reports whether the task is an appointment or meeting.
func (t *Task) IsTimeBound() bool {
	return t.Kind == KindAppointment || t.Kind == KindMeeting
}

// Interval returns the booked start and end. ok is false when the task has no
// scheduled time. defaultMinutes applies when DurationMinutes is unset.
func (t *Task) Interval(defaultMinutes int) (start, end time.Time, ok bool) {
	if t.ScheduledTime == nil {
		return time.Time{}, time.Time{}, false
	}
	d := t.DurationMinutes
	if d <= 0 {
		d = defaultMinutes
	}
	start = *t.ScheduledTime
	return start, start.Add(time.Duration(d) * time.Minute), true
}

// Normalize fills defaults on a new task.
func (t *Task) Normalize() {
	if t.Status == "" {
		t.Status = StatusCaptured
	}
	if t.Priority == 0 {
		t.Priority = PriorityMedium
	}
	if t.Effort == 0 {
		t.Effort = EffortMedium
	}
	if t.Kind == "" {
		t.Kind = KindTask
	}
}

// TaskFilter selects tasks in ListTasks. Zero values match everything.
type TaskFilter struct {
	Statuses       []TaskStatus // Match any of these statuses.
	From           *time.Time   // Execution date >= From.
	To             *time.Time   // Execution date < To.
	ProjectUUID    string       // Owning project.
	ScheduledOnly  bool         // Only tasks with a scheduled time.
	IncludeDeleted bool         // Include tombstoned rows.
}
