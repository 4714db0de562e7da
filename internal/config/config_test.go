package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileExt), []byte(body), 0o644))
}

func TestLoad_WritesDefaultFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "config")

	l, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, l.Dir())

	data, err := os.ReadFile(filepath.Join(dir, configFileExt))
	require.NoError(t, err)
	assert.Contains(t, string(data), "batch_size: 50")

	c, err := l.Config()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, c.Sync.Interval)
	assert.Equal(t, 50, c.Sync.BatchSize)
	assert.Equal(t, 3, c.Sync.MaxRetry)
	assert.Equal(t, 500*time.Millisecond, c.Sync.RetryBase)
	assert.Equal(t, 15*time.Second, c.Remote.Timeout)
	assert.Equal(t, "09:00", c.Schedule.WorkStart)
	assert.Equal(t, time.Minute, c.Sweep.Interval)
	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Empty(t, c.Remote.URL)
}

func TestLoad_KeepsExistingFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "user_id: alice\nremote:\n  url: http://sync.local\nsync:\n  interval: 2m\n")

	l, err := Load(dir)
	require.NoError(t, err)
	c, err := l.Config()
	require.NoError(t, err)
	assert.Equal(t, "alice", c.UserID)
	assert.Equal(t, "http://sync.local", c.Remote.URL)
	assert.Equal(t, 2*time.Minute, c.Sync.Interval)
	assert.Equal(t, 50, c.Sync.BatchSize, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "sync:\n  interval: 2m\nschedule:\n  buffer_minutes: 10\n")
	t.Setenv("STRIDE_SYNC_INTERVAL", "45s")
	t.Setenv("STRIDE_SCHEDULE_BUFFER_ENABLED", "true")
	t.Setenv("STRIDE_USER_ID", "bob")

	l, err := Load(dir)
	require.NoError(t, err)
	c, err := l.Config()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, c.Sync.Interval)
	assert.True(t, c.Schedule.BufferEnabled)
	assert.Equal(t, 10, c.Schedule.BufferMinutes)
	assert.Equal(t, "bob", c.UserID)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad work start", "schedule:\n  work_start: \"9am\"\n"},
		{"bad timezone", "schedule:\n  timezone: Mars/Olympus\n"},
		{"bad log level", "log:\n  level: chatty\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"bad batch size", "sync:\n  batch_size: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.body)
			l, err := Load(dir)
			require.NoError(t, err)
			_, err = l.Config()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConfig_SchedulePolicy(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, strings.Join([]string{
		"schedule:",
		"  work_hours_enabled: true",
		"  work_start: \"08:30\"",
		"  work_end: \"16:00\"",
		"  buffer_enabled: true",
		"  buffer_minutes: 20",
		"  default_duration: 45",
		"  timezone: Europe/Berlin",
	}, "\n")+"\n")

	l, err := Load(dir)
	require.NoError(t, err)
	c, err := l.Config()
	require.NoError(t, err)

	p, err := c.SchedulePolicy()
	require.NoError(t, err)
	assert.True(t, p.WorkHoursEnabled)
	assert.Equal(t, "08:30", p.WorkStart)
	assert.Equal(t, 20*time.Minute, p.Buffer())
	assert.Equal(t, 45, p.DefaultDuration())
	assert.Equal(t, "Europe/Berlin", p.Loc().String())
}

func TestConfig_BlobDir(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", "blobs"), Config{}.BlobDir("/data"))
	assert.Equal(t, "/elsewhere", Config{Blobs: BlobsConfig{Dir: "/elsewhere"}}.BlobDir("/data"))
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "debug", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)
	logger.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	logger, err = LogConfig{Level: "warn", Format: "text"}.NewLogger(&buf)
	require.NoError(t, err)
	logger.Info("quiet")
	assert.Empty(t, buf.String())

	_, err = LogConfig{Level: "loud"}.NewLogger(&buf)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	l, err := Load(dir)
	require.NoError(t, err)

	var buffer atomic.Int64
	l.Watch(func(c Config) { buffer.Store(int64(c.Schedule.BufferMinutes)) }, nil)

	// Give the watcher a moment to register before editing.
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, dir, "schedule:\n  buffer_enabled: true\n  buffer_minutes: 25\n")

	assert.Eventually(t, func() bool { return buffer.Load() == 25 }, 5*time.Second, 20*time.Millisecond)
}
