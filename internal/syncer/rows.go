package syncer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mesh-intelligence/stride/internal/remote"
	"github.com/mesh-intelligence/stride/pkg/types"
)

// envelopeRow holds the columns every remote table shares. LocalID and
// SyncedAt are local bookkeeping and never leave the device.
type envelopeRow struct {
	UUID      string     `json:"uuid"`
	UserID    string     `json:"user_id"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at"`
}

func (r envelopeRow) envelope() types.Envelope {
	return types.Envelope{UUID: r.UUID, UpdatedAt: r.UpdatedAt, DeletedAt: r.DeletedAt}
}

func newEnvelopeRow(env *types.Envelope, userID string) envelopeRow {
	return envelopeRow{UUID: env.UUID, UserID: userID, UpdatedAt: env.UpdatedAt.UTC(), DeletedAt: env.DeletedAt}
}

type projectRow struct {
	envelopeRow
	Title     string    `json:"title"`
	Goal      string    `json:"goal"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// Remote keys are the snake_case field names, except that Kind travels as
// "type" and the uuid references as "project_id" and "linked_task_id". Those
// names are shared with existing remote schemas.
type taskRow struct {
	envelopeRow
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Status          string     `json:"status"`
	Priority        int        `json:"priority"`
	Effort          int        `json:"effort"`
	Kind            string     `json:"type"`
	ExecutionDate   *time.Time `json:"execution_date"`
	ScheduledTime   *time.Time `json:"scheduled_time"`
	DurationMinutes int        `json:"duration_minutes"`
	ProjectUUID     string     `json:"project_id"`
	RolloverCount   int        `json:"rollover_count"`
	ReminderMinutes int        `json:"reminder_minutes"`
	Reminded        bool       `json:"reminded"`
	CompletedAt     *time.Time `json:"completed_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

type noteRow struct {
	envelopeRow
	Content        string            `json:"content"`
	Kind           string            `json:"type"`
	IsAudio        bool              `json:"is_audio"`
	Attachment     *types.Attachment `json:"attachment_info"`
	LinkedTaskUUID string            `json:"linked_task_id"`
	CreatedAt      time.Time         `json:"created_at"`
}

type habitRow struct {
	envelopeRow
	Title             string     `json:"title"`
	Frequency         string     `json:"frequency"`
	StreakCount       int        `json:"streak_count"`
	LastCompletedDate *time.Time `json:"last_completed_date"`
	CreatedAt         time.Time  `json:"created_at"`
}

// encode maps a local entity to its remote record, owned by userID.
func encode(e types.Entity, userID string) (remote.Record, error) {
	env := newEnvelopeRow(e.Meta(), userID)
	var row any
	switch v := e.(type) {
	case *types.Project:
		row = projectRow{env, v.Title, v.Goal, v.Color, v.CreatedAt}
	case *types.Task:
		row = taskRow{
			envelopeRow:     env,
			Title:           v.Title,
			Description:     v.Description,
			Status:          string(v.Status),
			Priority:        int(v.Priority),
			Effort:          int(v.Effort),
			Kind:            string(v.Kind),
			ExecutionDate:   v.ExecutionDate,
			ScheduledTime:   v.ScheduledTime,
			DurationMinutes: v.DurationMinutes,
			ProjectUUID:     v.ProjectUUID,
			RolloverCount:   v.RolloverCount,
			ReminderMinutes: v.ReminderMinutes,
			Reminded:        v.Reminded,
			CompletedAt:     v.CompletedAt,
			CreatedAt:       v.CreatedAt,
		}
	case *types.Note:
		var att *types.Attachment
		if v.Attachment != nil {
			// Descriptor only; the bytes live in the blob store.
			a := *v.Attachment
			att = &a
		}
		row = noteRow{env, v.Content, v.Kind, v.IsAudio, att, v.LinkedTaskUUID, v.CreatedAt}
	case *types.Habit:
		row = habitRow{env, v.Title, v.Frequency, v.StreakCount, v.LastCompletedDate, v.CreatedAt}
	default:
		return nil, fmt.Errorf("%w: no remote mapping for %s", types.ErrTableNotFound, e.TableName())
	}

	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("encoding %s %s: %w", e.TableName(), env.UUID, err)
	}
	rec := remote.Record{}
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("encoding %s %s: %w", e.TableName(), env.UUID, err)
	}
	return rec, nil
}

// decode maps a remote record of table to a local entity.
func decode(table string, rec remote.Record) (types.Entity, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	var e types.Entity
	switch table {
	case types.TableProjects:
		var r projectRow
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
		}
		e = &types.Project{Envelope: r.envelope(), Title: r.Title, Goal: r.Goal, Color: r.Color, CreatedAt: r.CreatedAt}
	case types.TableTasks:
		var r taskRow
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
		}
		e = &types.Task{
			Envelope:        r.envelope(),
			Title:           r.Title,
			Description:     r.Description,
			Status:          types.TaskStatus(r.Status),
			Priority:        types.Priority(r.Priority),
			Effort:          types.Effort(r.Effort),
			Kind:            types.TaskKind(r.Kind),
			ExecutionDate:   r.ExecutionDate,
			ScheduledTime:   r.ScheduledTime,
			DurationMinutes: r.DurationMinutes,
			ProjectUUID:     r.ProjectUUID,
			RolloverCount:   r.RolloverCount,
			ReminderMinutes: r.ReminderMinutes,
			Reminded:        r.Reminded,
			CompletedAt:     r.CompletedAt,
			CreatedAt:       r.CreatedAt,
		}
	case types.TableNotes:
		var r noteRow
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
		}
		e = &types.Note{
			Envelope:       r.envelope(),
			Content:        r.Content,
			Kind:           r.Kind,
			IsAudio:        r.IsAudio,
			Attachment:     r.Attachment,
			LinkedTaskUUID: r.LinkedTaskUUID,
			CreatedAt:      r.CreatedAt,
		}
	case types.TableHabits:
		var r habitRow
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
		}
		e = &types.Habit{
			Envelope:          r.envelope(),
			Title:             r.Title,
			Frequency:         r.Frequency,
			StreakCount:       r.StreakCount,
			LastCompletedDate: r.LastCompletedDate,
			CreatedAt:         r.CreatedAt,
		}
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrTableNotFound, table)
	}
	if e.Meta().UUID == "" {
		return nil, fmt.Errorf("%w: %s record without uuid", types.ErrInvalidData, table)
	}
	return e, nil
}
