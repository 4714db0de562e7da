package syncer

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/stride/internal/remote"
	"github.com/mesh-intelligence/stride/pkg/types"
)

var envelopeKeys = []string{"uuid", "user_id", "updated_at", "deleted_at"}

func TestRows_EncodeKeysAndDecodeRoundTrip(t *testing.T) {
	updated := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	created := updated.Add(-24 * time.Hour)
	day := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	at := day.Add(14 * time.Hour)
	deleted := updated.Add(time.Minute)
	env := types.Envelope{UUID: "0195-a", UpdatedAt: updated}

	tests := []struct {
		name   string
		table  string
		entity types.Entity
		keys   []string
	}{
		{
			name:  "task",
			table: types.TableTasks,
			entity: &types.Task{
				Envelope:        env,
				Title:           "Dentist",
				Description:     "bring forms",
				Status:          types.StatusScheduled,
				Priority:        types.PriorityHigh,
				Effort:          types.EffortLow,
				Kind:            types.KindAppointment,
				ExecutionDate:   &day,
				ScheduledTime:   &at,
				DurationMinutes: 30,
				ProjectUUID:     "0195-p",
				RolloverCount:   2,
				ReminderMinutes: 5,
				Reminded:        true,
				CreatedAt:       created,
			},
			keys: []string{
				"title", "description", "status", "priority", "effort", "type",
				"execution_date", "scheduled_time", "duration_minutes", "project_id",
				"rollover_count", "reminder_minutes", "reminded", "completed_at", "created_at",
			},
		},
		{
			name:   "project",
			table:  types.TableProjects,
			entity: &types.Project{Envelope: env, Title: "Launch", Goal: "ship v1", Color: "#4f46e5", CreatedAt: created},
			keys:   []string{"title", "goal", "color", "created_at"},
		},
		{
			name:  "habit",
			table: types.TableHabits,
			entity: &types.Habit{
				Envelope:          env,
				Title:             "stretch",
				Frequency:         types.FrequencyWeekdays,
				StreakCount:       4,
				LastCompletedDate: &day,
				CreatedAt:         created,
			},
			keys: []string{"title", "frequency", "streak_count", "last_completed_date", "created_at"},
		},
		{
			name:  "note",
			table: types.TableNotes,
			entity: &types.Note{
				Envelope:       types.Envelope{UUID: "0195-n", UpdatedAt: updated, DeletedAt: &deleted},
				Content:        "voice memo",
				Kind:           types.NoteKindIdea,
				IsAudio:        true,
				Attachment:     &types.Attachment{Name: "memo.m4a", Mime: "audio/mp4", Size: 2048, Path: "ada/1_memo.m4a"},
				LinkedTaskUUID: "0195-t",
				CreatedAt:      created,
			},
			keys: []string{"content", "type", "is_audio", "attachment_info", "linked_task_id", "created_at"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := encode(tt.entity, testUser)
			require.NoError(t, err)

			want := append(append([]string{}, envelopeKeys...), tt.keys...)
			sort.Strings(want)
			assert.Equal(t, want, recordKeys(rec))
			assert.Equal(t, testUser, rec.UserID())

			got, err := decode(tt.table, rec)
			require.NoError(t, err)
			assert.Equal(t, tt.entity, got)
		})
	}
}

func TestRows_LocalBookkeepingStaysLocal(t *testing.T) {
	task := &types.Task{
		Envelope: types.Envelope{LocalID: 7, UUID: "0195-a", UpdatedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), SyncedAt: 1741597200000},
		Title:    "x",
		Status:   types.StatusCaptured,
		Kind:     types.KindTask,
	}
	rec, err := encode(task, testUser)
	require.NoError(t, err)
	assert.NotContains(t, rec, "local_id")
	assert.NotContains(t, rec, "synced_at")

	got, err := decode(types.TableTasks, rec)
	require.NoError(t, err)
	assert.Zero(t, got.Meta().LocalID)
	assert.Zero(t, got.Meta().SyncedAt)
}

func TestRows_DecodeRejects(t *testing.T) {
	_, err := decode(types.TableTasks, remote.Record{"title": "no uuid"})
	assert.ErrorIs(t, err, types.ErrInvalidData)

	_, err = decode(types.TableTasks, remote.Record{"uuid": "a", "priority": "high"})
	assert.ErrorIs(t, err, types.ErrInvalidData)

	_, err = decode("widgets", remote.Record{"uuid": "a"})
	assert.ErrorIs(t, err, types.ErrTableNotFound)
}

func recordKeys(rec remote.Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
