package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/stride/internal/blob"
	"github.com/mesh-intelligence/stride/internal/lifecycle"
	"github.com/mesh-intelligence/stride/internal/remote"
	"github.com/mesh-intelligence/stride/internal/sqlite"
	"github.com/mesh-intelligence/stride/pkg/types"
)

func openApp(t *testing.T) *App {
	t.Helper()
	a, err := Open(Options{
		ConfigDir: t.TempDir(),
		DataDir:   t.TempDir(),
		LogOutput: &bytes.Buffer{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestOpen_WithoutRemote(t *testing.T) {
	t.Setenv("STRIDE_REMOTE_URL", "")
	a := openApp(t)

	assert.Nil(t, a.Sync)
	assert.True(t, a.Store.IsOpen())
	_, err := a.SyncNow(context.Background())
	assert.ErrorIs(t, err, ErrSyncDisabled)
	assert.Equal(t, 60, a.Validator.Policy().DefaultDuration())
}

func TestApp_DeleteWithoutSync(t *testing.T) {
	t.Setenv("STRIDE_REMOTE_URL", "")
	a := openApp(t)
	ctx := context.Background()

	att, err := a.Blobs.Put("local", "memo.m4a", "audio/mp4", strings.NewReader("....."))
	require.NoError(t, err)
	note := &types.Note{Content: "memo", IsAudio: true, Attachment: att}
	require.NoError(t, a.Store.Update(ctx, func(tx *sqlite.Tx) error {
		return tx.CreateNote(note, types.OriginLocal)
	}))

	require.NoError(t, a.Delete(ctx, types.TableNotes, note.LocalID))
	assert.False(t, a.Blobs.Has(att.Path))
}

func TestApp_SyncNow(t *testing.T) {
	repo := remote.NewMemoryStore(nil)
	srv := httptest.NewServer(remote.NewServer(repo, nil).Handler())
	defer srv.Close()
	t.Setenv("STRIDE_REMOTE_URL", srv.URL)
	t.Setenv("STRIDE_USER_ID", "ada")

	a := openApp(t)
	require.NotNil(t, a.Sync)
	ctx := context.Background()

	task := &types.Task{Title: "water plants"}
	require.NoError(t, a.Store.UpdateTasks(ctx, func(tx types.TaskTx) error {
		return tx.CreateTask(task, types.OriginLocal)
	}))

	st, err := a.SyncNow(ctx)
	require.NoError(t, err)
	assert.False(t, st.LastSuccess.IsZero())
	assert.Equal(t, 1, st.Pushed)

	rec, ok := repo.Get(types.TableTasks, task.UUID)
	require.True(t, ok)
	assert.Equal(t, "ada", rec.UserID())
}

func TestApp_AttachmentsTravelThroughRemote(t *testing.T) {
	served := blob.New(t.TempDir(), nil)
	srv := httptest.NewServer(remote.NewServer(remote.NewMemoryStore(nil), nil, remote.WithBlobs(served)).Handler())
	defer srv.Close()
	t.Setenv("STRIDE_REMOTE_URL", srv.URL)
	t.Setenv("STRIDE_USER_ID", "ada")
	ctx := context.Background()

	phone := openApp(t)
	att, err := phone.Attach(ctx, "scan.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(att.Path, "ada/"))
	assert.True(t, phone.Blobs.Has(att.Path))
	assert.True(t, served.Has(att.Path), "bytes are uploaded on capture")

	laptop := openApp(t)
	require.False(t, laptop.Blobs.Has(att.Path))
	rc, err := laptop.OpenAttachment(ctx, att)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "png-bytes", string(data))
	assert.True(t, laptop.Blobs.Has(att.Path), "downloaded bytes are cached")

	note := &types.Note{Content: "scan", Attachment: att}
	require.NoError(t, phone.Store.Update(ctx, func(tx *sqlite.Tx) error {
		return tx.CreateNote(note, types.OriginLocal)
	}))
	require.NoError(t, phone.Delete(ctx, types.TableNotes, note.LocalID))
	assert.False(t, phone.Blobs.Has(att.Path))
	assert.False(t, served.Has(att.Path), "deleting the note releases the remote bytes")

	_, err = phone.OpenAttachment(ctx, att)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestApp_AttachKeepsLocalCopyWhenOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	t.Setenv("STRIDE_REMOTE_URL", srv.URL)
	t.Setenv("STRIDE_USER_ID", "")
	t.Setenv("STRIDE_REMOTE_TIMEOUT", "1s")

	a := openApp(t)
	att, err := a.Attach(context.Background(), "memo.m4a", "audio/mp4", strings.NewReader("...."))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(att.Path, LocalOwner+"/"))
	assert.True(t, a.Blobs.Has(att.Path))
}

func TestApp_CloseAbortsInFlightSync(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	defer close(release)
	t.Setenv("STRIDE_REMOTE_URL", srv.URL)
	t.Setenv("STRIDE_USER_ID", "ada")

	a, err := Open(Options{ConfigDir: t.TempDir(), DataDir: t.TempDir(), LogOutput: &bytes.Buffer{}})
	require.NoError(t, err)
	require.NotNil(t, a.Sync)

	require.NoError(t, a.Store.UpdateTasks(context.Background(), func(tx types.TaskTx) error {
		return tx.CreateTask(&types.Task{Title: "water plants"}, types.OriginLocal)
	}))
	a.Changed()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("sync pass never reached the remote")
	}
	require.True(t, a.Sync.Status().Running)

	closed := make(chan error, 1)
	go func() { closed <- a.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return while a pass was in flight")
	}
	assert.False(t, a.Sync.Status().Running, "Close must wait for the pass to stop")
	assert.False(t, a.Store.IsOpen())
	assert.NoError(t, a.Sync.TriggerSync(context.Background()), "stopped engine ignores triggers")
}

func TestApp_RunFiresReminders(t *testing.T) {
	t.Setenv("STRIDE_REMOTE_URL", "")
	t.Setenv("STRIDE_REMINDERS_INTERVAL", "10ms")
	t.Setenv("STRIDE_SWEEP_INTERVAL", "10ms")
	a := openApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now().Add(5 * time.Minute)
	require.NoError(t, a.Store.UpdateTasks(ctx, func(tx types.TaskTx) error {
		return tx.CreateTask(&types.Task{
			Title:           "dentist",
			Kind:            types.KindAppointment,
			Status:          types.StatusScheduled,
			ScheduledTime:   &start,
			DurationMinutes: 30,
			ReminderMinutes: 10,
		}, types.OriginLocal)
	}))

	fired := make(chan lifecycle.Reminder, 4)
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, func(r lifecycle.Reminder) { fired <- r }) }()

	select {
	case r := <-fired:
		assert.Equal(t, "dentist", r.Task.Title)
	case <-time.After(5 * time.Second):
		t.Fatal("reminder did not fire")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Empty(t, fired, "a reminder fires once")
}
