package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/stride/pkg/types"
)

func TestTasksTable_CreateStampsEnvelope(t *testing.T) {
	b, clock := setupBackend(t)
	ctx := context.Background()

	task := &types.Task{Envelope: types.Envelope{SyncedAt: 12345}, Title: "Write report"}
	require.NoError(t, b.Update(ctx, func(tx *Tx) error { return tx.CreateTask(task, types.OriginLocal) }))

	assert.NotZero(t, task.LocalID)
	assert.Len(t, task.UUID, 36)
	assert.True(t, clock.Now().Equal(task.UpdatedAt))
	assert.True(t, task.Dirty(), "local create must mark dirty")
	assert.Equal(t, types.StatusCaptured, task.Status)
	assert.Equal(t, types.PriorityMedium, task.Priority)
	assert.Equal(t, types.KindTask, task.Kind)

	require.NoError(t, b.View(ctx, func(tx *Tx) error {
		got, err := tx.GetTask(task.LocalID)
		require.NoError(t, err)
		assert.Equal(t, task.UUID, got.UUID)
		assert.Equal(t, "Write report", got.Title)
		assert.Equal(t, int64(0), got.SyncedAt)
		assert.True(t, got.UpdatedAt.Equal(clock.Now()))
		return nil
	}))
}

func TestTasksTable_Validation(t *testing.T) {
	b, _ := setupBackend(t)
	ctx := context.Background()

	tests := []struct {
		name string
		task *types.Task
		want error
	}{
		{"empty title", &types.Task{Title: "  "}, types.ErrInvalidName},
		{"bad status", &types.Task{Title: "x", Status: "bogus"}, types.ErrInvalidStatus},
		{"bad kind", &types.Task{Title: "x", Kind: "party"}, types.ErrInvalidKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Update(ctx, func(tx *Tx) error { return tx.CreateTask(tt.task, types.OriginLocal) })
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTasksTable_RoundTripsOptionalFields(t *testing.T) {
	b, _ := setupBackend(t)
	ctx := context.Background()

	day := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	at := time.Date(2025, 3, 11, 14, 30, 0, 0, time.UTC)
	task := &types.Task{
		Title:           "Dentist",
		Kind:            types.KindAppointment,
		Status:          types.StatusScheduled,
		ExecutionDate:   &day,
		ScheduledTime:   &at,
		DurationMinutes: 45,
		ReminderMinutes: 10,
		Reminded:        true,
		ProjectUUID:     "p-1",
		Priority:        types.PriorityHigh,
		Effort:          types.EffortLow,
	}
	require.NoError(t, b.Update(ctx, func(tx *Tx) error { return tx.CreateTask(task, types.OriginLocal) }))

	require.NoError(t, b.View(ctx, func(tx *Tx) error {
		got, err := tx.GetTaskByUUID(task.UUID)
		require.NoError(t, err)
		require.NotNil(t, got.ExecutionDate)
		require.NotNil(t, got.ScheduledTime)
		assert.True(t, got.ExecutionDate.Equal(day))
		assert.True(t, got.ScheduledTime.Equal(at))
		assert.Equal(t, 45, got.DurationMinutes)
		assert.Equal(t, 10, got.ReminderMinutes)
		assert.True(t, got.Reminded)
		assert.Equal(t, "p-1", got.ProjectUUID)
		assert.Equal(t, types.PriorityHigh, got.Priority)
		assert.Equal(t, types.EffortLow, got.Effort)
		assert.Nil(t, got.CompletedAt)
		return nil
	}))
}

func TestTasksTable_SaveRestampsAndDirties(t *testing.T) {
	b, clock := setupBackend(t)
	ctx := context.Background()

	task := &types.Task{Title: "a"}
	require.NoError(t, b.Update(ctx, func(tx *Tx) error { return tx.CreateTask(task, types.OriginLocal) }))
	marked, err := b.MarkSynced(ctx, task, clock.Now())
	require.NoError(t, err)
	require.True(t, marked)

	clock.Advance(time.Minute)
	require.NoError(t, b.Update(ctx, func(tx *Tx) error {
		got, err := tx.GetTask(task.LocalID)
		require.NoError(t, err)
		assert.False(t, got.Dirty())
		got.Title = "b"
		return tx.SaveTask(got, types.OriginLocal)
	}))

	require.NoError(t, b.View(ctx, func(tx *Tx) error {
		got, err := tx.GetTask(task.LocalID)
		require.NoError(t, err)
		assert.Equal(t, "b", got.Title)
		assert.True(t, got.Dirty())
		assert.True(t, got.UpdatedAt.Equal(clock.Now()))
		return nil
	}))
}

func TestTasksTable_UUIDImmutable(t *testing.T) {
	b, _ := setupBackend(t)
	ctx := context.Background()

	task := &types.Task{Title: "a"}
	require.NoError(t, b.Update(ctx, func(tx *Tx) error { return tx.CreateTask(task, types.OriginLocal) }))

	err := b.Update(ctx, func(tx *Tx) error {
		task.UUID = "another"
		return tx.SaveTask(task, types.OriginLocal)
	})
	assert.ErrorIs(t, err, types.ErrUUIDChanged)
}

func TestTasksTable_SaveRefusesTombstoned(t *testing.T) {
	b, _ := setupBackend(t)
	ctx := context.Background()

	task := &types.Task{Title: "a"}
	require.NoError(t, b.Update(ctx, func(tx *Tx) error { return tx.CreateTask(task, types.OriginLocal) }))
	_, err := b.SoftDelete(ctx, types.TableTasks, task.LocalID)
	require.NoError(t, err)

	err = b.Update(ctx, func(tx *Tx) error {
		task.Title = "resurrect"
		return tx.SaveTask(task, types.OriginLocal)
	})
	assert.ErrorIs(t, err, types.ErrTombstoned)
}

func TestTasksTable_ListFilters(t *testing.T) {
	b, _ := setupBackend(t)
	ctx := context.Background()

	mon := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	tue := mon.AddDate(0, 0, 1)
	at := mon.Add(10 * time.Hour)
	seed := []*types.Task{
		{Title: "mon active", Status: types.StatusActive, ExecutionDate: &mon},
		{Title: "mon booked", Status: types.StatusScheduled, ExecutionDate: &mon, ScheduledTime: &at, ProjectUUID: "p"},
		{Title: "tue active", Status: types.StatusActive, ExecutionDate: &tue},
		{Title: "inbox"},
	}
	require.NoError(t, b.Update(ctx, func(tx *Tx) error {
		for _, task := range seed {
			if err := tx.CreateTask(task, types.OriginLocal); err != nil {
				return err
			}
		}
		return nil
	}))
	_, err := b.SoftDelete(ctx, types.TableTasks, seed[3].LocalID)
	require.NoError(t, err)

	titles := func(filter types.TaskFilter) []string {
		var out []string
		require.NoError(t, b.View(ctx, func(tx *Tx) error {
			tasks, err := tx.ListTasks(filter)
			for _, task := range tasks {
				out = append(out, task.Title)
			}
			return err
		}))
		return out
	}

	tests := []struct {
		name   string
		filter types.TaskFilter
		want   []string
	}{
		{"all live", types.TaskFilter{}, []string{"mon active", "mon booked", "tue active"}},
		{"by status", types.TaskFilter{Statuses: []types.TaskStatus{types.StatusScheduled}}, []string{"mon booked"}},
		{"by day", types.TaskFilter{From: &mon, To: &tue}, []string{"mon active", "mon booked"}},
		{"by project", types.TaskFilter{ProjectUUID: "p"}, []string{"mon booked"}},
		{"scheduled only", types.TaskFilter{ScheduledOnly: true}, []string{"mon booked"}},
		{"include deleted", types.TaskFilter{IncludeDeleted: true}, []string{"mon active", "mon booked", "tue active", "inbox"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, titles(tt.filter))
		})
	}
}

func TestTasksTable_GetErrors(t *testing.T) {
	b, _ := setupBackend(t)
	require.NoError(t, b.View(context.Background(), func(tx *Tx) error {
		_, err := tx.GetTask(0)
		assert.ErrorIs(t, err, types.ErrInvalidID)
		_, err = tx.GetTask(99)
		assert.ErrorIs(t, err, types.ErrNotFound)
		_, err = tx.GetTaskByUUID("missing")
		assert.ErrorIs(t, err, types.ErrNotFound)
		return nil
	}))
}

func TestNotesTable_Attachment(t *testing.T) {
	b, _ := setupBackend(t)
	ctx := context.Background()

	note := &types.Note{
		Content:        "voice memo",
		IsAudio:        true,
		LinkedTaskUUID: "t-1",
		Attachment:     &types.Attachment{Name: "memo.m4a", Mime: "audio/mp4", Size: 2048, Path: "u/1_memo.m4a"},
	}
	require.NoError(t, b.Update(ctx, func(tx *Tx) error { return tx.CreateNote(note, types.OriginLocal) }))
	require.NoError(t, b.Update(ctx, func(tx *Tx) error {
		return tx.CreateNote(&types.Note{Content: "unlinked", Kind: types.NoteKindIdea}, types.OriginLocal)
	}))

	require.NoError(t, b.View(ctx, func(tx *Tx) error {
		got, err := tx.GetNote(note.LocalID)
		require.NoError(t, err)
		assert.Equal(t, types.NoteKindNote, got.Kind)
		assert.True(t, got.IsAudio)
		require.NotNil(t, got.Attachment)
		assert.Equal(t, *note.Attachment, *got.Attachment)

		linked, err := tx.ListNotes("t-1")
		require.NoError(t, err)
		require.Len(t, linked, 1)
		assert.Equal(t, note.UUID, linked[0].UUID)

		all, err := tx.ListNotes("")
		require.NoError(t, err)
		assert.Len(t, all, 2)
		return nil
	}))
}

func TestNotesTable_AttachmentEncodeError(t *testing.T) {
	b, _ := setupBackend(t)
	ctx := context.Background()

	orig := marshalAttachment
	marshalAttachment = func(any) ([]byte, error) { return nil, assert.AnError }
	t.Cleanup(func() { marshalAttachment = orig })

	note := &types.Note{Content: "receipt", Attachment: &types.Attachment{Name: "r.pdf", Path: "u/1_r.pdf"}}
	err := b.Update(ctx, func(tx *Tx) error { return tx.CreateNote(note, types.OriginLocal) })
	assert.ErrorIs(t, err, assert.AnError)

	require.NoError(t, b.View(ctx, func(tx *Tx) error {
		notes, err := tx.ListNotes("")
		require.NoError(t, err)
		assert.Empty(t, notes, "a note whose attachment cannot be encoded must not be stored")
		return nil
	}))
}

func TestHabitsTable_CompletePersists(t *testing.T) {
	b, clock := setupBackend(t)
	ctx := context.Background()

	h := &types.Habit{Title: "stretch"}
	require.NoError(t, b.Update(ctx, func(tx *Tx) error { return tx.CreateHabit(h, types.OriginLocal) }))
	assert.Equal(t, types.FrequencyDaily, h.Frequency)

	require.NoError(t, b.Update(ctx, func(tx *Tx) error {
		got, err := tx.GetHabit(h.LocalID)
		require.NoError(t, err)
		require.True(t, got.Complete(clock.Now()))
		return tx.SaveHabit(got, types.OriginLocal)
	}))

	require.NoError(t, b.View(ctx, func(tx *Tx) error {
		habits, err := tx.ListHabits()
		require.NoError(t, err)
		require.Len(t, habits, 1)
		assert.Equal(t, 1, habits[0].StreakCount)
		require.NotNil(t, habits[0].LastCompletedDate)
		assert.True(t, habits[0].LastCompletedDate.Equal(clock.Now()))
		return nil
	}))
}

func TestProjectsTable_DeleteCascadesToTasks(t *testing.T) {
	b, _ := setupBackend(t)
	ctx := context.Background()

	p := &types.Project{Title: "Launch"}
	var owned, other *types.Task
	require.NoError(t, b.Update(ctx, func(tx *Tx) error {
		if err := tx.CreateProject(p, types.OriginLocal); err != nil {
			return err
		}
		owned = &types.Task{Title: "owned", ProjectUUID: p.UUID}
		other = &types.Task{Title: "other"}
		if err := tx.CreateTask(owned, types.OriginLocal); err != nil {
			return err
		}
		return tx.CreateTask(other, types.OriginLocal)
	}))

	n, err := b.DeleteProject(ctx, p.LocalID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, b.View(ctx, func(tx *Tx) error {
		projects, err := tx.ListProjects()
		require.NoError(t, err)
		assert.Empty(t, projects)

		got, err := tx.GetTask(owned.LocalID)
		require.NoError(t, err)
		assert.True(t, got.Tombstoned())
		assert.True(t, got.Dirty())

		got, err = tx.GetTask(other.LocalID)
		require.NoError(t, err)
		assert.False(t, got.Tombstoned())
		return nil
	}))
}

func TestProjectsTable_DeleteMissing(t *testing.T) {
	b, _ := setupBackend(t)
	_, err := b.DeleteProject(context.Background(), 42)
	assert.ErrorIs(t, err, types.ErrNotFound)
}
