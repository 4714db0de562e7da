package sqlite

import (
	"database/sql"
	"strings"

	"github.com/mesh-intelligence/stride/pkg/types"
)

var taskSpec = tableSpec{
	name: types.TableTasks,
	columns: []string{
		"title", "description", "status", "priority", "effort", "kind",
		"execution_date", "scheduled_time", "duration_minutes", "project_uuid",
		"rollover_count", "reminder_minutes", "reminded", "completed_at", "created_at",
	},
	values: func(e types.Entity) ([]any, error) {
		t := e.(*types.Task)
		return []any{
			t.Title, t.Description, string(t.Status), int(t.Priority), int(t.Effort), string(t.Kind),
			formatNullTime(t.ExecutionDate), formatNullTime(t.ScheduledTime), t.DurationMinutes, t.ProjectUUID,
			t.RolloverCount, t.ReminderMinutes, t.Reminded, formatNullTime(t.CompletedAt), formatTime(t.CreatedAt),
		}, nil
	},
	hydrate: hydrateTask,
	check:   checkTask,
}

// hydrateTask scans the task data columns into a *types.Task.
func hydrateTask(env types.Envelope, row scanner) (types.Entity, error) {
	t := &types.Task{Envelope: env}
	var (
		status, kind                              string
		priority, effort                          int
		executionDate, scheduledTime, completedAt sql.NullString
		createdAt                                 string
	)
	if err := row.Scan(
		&t.Title, &t.Description, &status, &priority, &effort, &kind,
		&executionDate, &scheduledTime, &t.DurationMinutes, &t.ProjectUUID,
		&t.RolloverCount, &t.ReminderMinutes, &t.Reminded, &completedAt, &createdAt,
	); err != nil {
		return nil, err
	}
	t.Status = types.TaskStatus(status)
	t.Kind = types.TaskKind(kind)
	t.Priority = types.Priority(priority)
	t.Effort = types.Effort(effort)

	var err error
	if t.ExecutionDate, err = parseNullTime(executionDate); err != nil {
		return nil, err
	}
	if t.ScheduledTime, err = parseNullTime(scheduledTime); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return t, nil
}

func checkTask(e types.Entity) error {
	t, ok := e.(*types.Task)
	if !ok {
		return types.ErrInvalidData
	}
	if strings.TrimSpace(t.Title) == "" {
		return types.ErrInvalidName
	}
	if !t.Status.Valid() {
		return types.ErrInvalidStatus
	}
	switch t.Kind {
	case types.KindTask, types.KindAppointment, types.KindMeeting:
	default:
		return types.ErrInvalidKind
	}
	return nil
}

// GetTask returns the task with the given local id, tombstoned or not.
func (tx *Tx) GetTask(localID int64) (*types.Task, error) {
	e, err := tx.get(&taskSpec, localID)
	if err != nil {
		return nil, err
	}
	return e.(*types.Task), nil
}

// GetTaskByUUID returns the task with the given uuid, tombstoned or not.
func (tx *Tx) GetTaskByUUID(id string) (*types.Task, error) {
	e, err := tx.getByUUID(&taskSpec, id)
	if err != nil {
		return nil, err
	}
	return e.(*types.Task), nil
}

// CreateTask inserts t, filling defaults for unset fields.
func (tx *Tx) CreateTask(t *types.Task, origin types.Origin) error {
	t.Normalize()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = tx.now
	}
	return tx.create(t, origin)
}

// SaveTask writes every field of an existing task.
func (tx *Tx) SaveTask(t *types.Task, origin types.Origin) error {
	return tx.save(t, origin)
}

// ListTasks returns tasks matching filter ordered by execution date, then
// scheduled time, then creation.
func (tx *Tx) ListTasks(filter types.TaskFilter) ([]*types.Task, error) {
	var (
		conds []string
		args  []any
	)
	if !filter.IncludeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}
	if len(filter.Statuses) > 0 {
		conds = append(conds, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, string(s))
		}
	}
	if filter.From != nil {
		conds = append(conds, "execution_date >= ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		conds = append(conds, "execution_date < ?")
		args = append(args, formatTime(*filter.To))
	}
	if filter.ProjectUUID != "" {
		conds = append(conds, "project_uuid = ?")
		args = append(args, filter.ProjectUUID)
	}
	if filter.ScheduledOnly {
		conds = append(conds, "scheduled_time IS NOT NULL")
	}

	where := strings.Join(conds, " AND ")
	if where == "" {
		where = "1 = 1"
	}
	where += " ORDER BY execution_date IS NULL, execution_date, scheduled_time, created_at, local_id"

	entities, err := tx.list(&taskSpec, where, args...)
	if err != nil {
		return nil, err
	}
	tasks := make([]*types.Task, len(entities))
	for i, e := range entities {
		tasks[i] = e.(*types.Task)
	}
	return tasks, nil
}
