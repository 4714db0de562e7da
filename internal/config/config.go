// Package config loads stride settings from config.yaml with viper. Values
// resolve in the order STRIDE_* environment variables, config file, defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/stride/internal/schedule"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	// EnvPrefix prefixes environment overrides, e.g. STRIDE_SYNC_INTERVAL.
	EnvPrefix = "STRIDE"
)

// Config keys.
const (
	KeyDataDir           = "data_dir"
	KeyUserID            = "user_id"
	KeyRemoteURL         = "remote.url"
	KeyRemoteTimeout     = "remote.timeout"
	KeySyncInterval      = "sync.interval"
	KeySyncBatchSize     = "sync.batch_size"
	KeySyncMaxRetry      = "sync.max_retry"
	KeySyncRetryBase     = "sync.retry_base"
	KeyWorkHoursEnabled  = "schedule.work_hours_enabled"
	KeyWorkStart         = "schedule.work_start"
	KeyWorkEnd           = "schedule.work_end"
	KeyBufferEnabled     = "schedule.buffer_enabled"
	KeyBufferMinutes     = "schedule.buffer_minutes"
	KeyDefaultDuration   = "schedule.default_duration"
	KeyTimezone          = "schedule.timezone"
	KeySweepInterval     = "sweep.interval"
	KeyRemindersInterval = "reminders.interval"
	KeyBlobsDir          = "blobs.dir"
	KeyLogLevel          = "log.level"
	KeyLogFormat         = "log.format"
	KeyServerAddr        = "server.addr"
	KeyServerDB          = "server.db"
	KeyServerBlobDir     = "server.blob_dir"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# stride configuration
# Every key can be overridden with a STRIDE_ environment variable,
# e.g. STRIDE_SYNC_INTERVAL=1m.

# data_dir: ~/.local/share/stride
# user_id:

remote:
  url: ""
  timeout: 15s

sync:
  interval: 30s
  batch_size: 50
  max_retry: 3
  retry_base: 500ms

schedule:
  work_hours_enabled: false
  work_start: "09:00"
  work_end: "17:00"
  buffer_enabled: false
  buffer_minutes: 15
  default_duration: 60
  timezone: Local

log:
  level: info
  format: text
`

// Config is the decoded configuration.
type Config struct {
	DataDir   string         `mapstructure:"data_dir"`
	UserID    string         `mapstructure:"user_id"`
	Remote    RemoteConfig   `mapstructure:"remote"`
	Sync      SyncConfig     `mapstructure:"sync"`
	Schedule  ScheduleConfig `mapstructure:"schedule"`
	Sweep     IntervalConfig `mapstructure:"sweep"`
	Reminders IntervalConfig `mapstructure:"reminders"`
	Blobs     BlobsConfig    `mapstructure:"blobs"`
	Log       LogConfig      `mapstructure:"log"`
	Server    ServerConfig   `mapstructure:"server"`
}

// RemoteConfig locates the remote repository. An empty URL disables sync.
type RemoteConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
	MaxRetry  int           `mapstructure:"max_retry"`
	RetryBase time.Duration `mapstructure:"retry_base"`
}

// ScheduleConfig holds the scheduling policy.
type ScheduleConfig struct {
	WorkHoursEnabled bool   `mapstructure:"work_hours_enabled"`
	WorkStart        string `mapstructure:"work_start"`
	WorkEnd          string `mapstructure:"work_end"`
	BufferEnabled    bool   `mapstructure:"buffer_enabled"`
	BufferMinutes    int    `mapstructure:"buffer_minutes"`
	DefaultDuration  int    `mapstructure:"default_duration"`
	Timezone         string `mapstructure:"timezone"`
}

// IntervalConfig configures a periodic job.
type IntervalConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// BlobsConfig locates the attachment store. Empty means <data_dir>/blobs.
type BlobsConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures "stride serve".
type ServerConfig struct {
	Addr    string `mapstructure:"addr"`
	DB      string `mapstructure:"db"`
	BlobDir string `mapstructure:"blob_dir"`
}

// Loader reads and watches one config directory.
type Loader struct {
	mu  sync.Mutex
	v   *viper.Viper
	dir string
}

// Load reads config.yaml from configDir. It creates the directory and a
// default config.yaml on first run. A missing config.yaml is not an error.
func Load(configDir string) (*Loader, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return &Loader{v: v, dir: configDir}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyDataDir, "")
	v.SetDefault(KeyUserID, "")
	v.SetDefault(KeyRemoteURL, "")
	v.SetDefault(KeyRemoteTimeout, 15*time.Second)
	v.SetDefault(KeySyncInterval, 30*time.Second)
	v.SetDefault(KeySyncBatchSize, 50)
	v.SetDefault(KeySyncMaxRetry, 3)
	v.SetDefault(KeySyncRetryBase, 500*time.Millisecond)
	v.SetDefault(KeyWorkHoursEnabled, false)
	v.SetDefault(KeyWorkStart, "09:00")
	v.SetDefault(KeyWorkEnd, "17:00")
	v.SetDefault(KeyBufferEnabled, false)
	v.SetDefault(KeyBufferMinutes, 15)
	v.SetDefault(KeyDefaultDuration, 60)
	v.SetDefault(KeyTimezone, "Local")
	v.SetDefault(KeySweepInterval, time.Minute)
	v.SetDefault(KeyRemindersInterval, 30*time.Second)
	v.SetDefault(KeyBlobsDir, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyServerAddr, ":8080")
	v.SetDefault(KeyServerDB, "")
	v.SetDefault(KeyServerBlobDir, "")
}

// Dir returns the config directory.
func (l *Loader) Dir() string { return l.dir }

// Config decodes and validates the current settings.
func (l *Loader) Config() (Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var c Config
	if err := l.v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Settings returns every resolved key, nested by section.
func (l *Loader) Settings() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v.AllSettings()
}

// Watch calls fn with the new settings whenever config.yaml changes. Edits
// that fail validation are reported to onErr and otherwise ignored.
func (l *Loader) Watch(fn func(Config), onErr func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		c, err := l.Config()
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		fn(c)
	})
	l.v.WatchConfig()
}

// Validate checks values a typo could break.
func (c Config) Validate() error {
	if _, err := c.SchedulePolicy(); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q (valid: text, json)", ErrInvalidConfig, c.Log.Format)
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("%w: sync.batch_size must be positive", ErrInvalidConfig)
	}
	return nil
}

// SchedulePolicy converts the schedule section to a policy.
func (c Config) SchedulePolicy() (schedule.Policy, error) {
	loc, err := loadLocation(c.Schedule.Timezone)
	if err != nil {
		return schedule.Policy{}, fmt.Errorf("%w: schedule.timezone: %v", ErrInvalidConfig, err)
	}
	p := schedule.Policy{
		WorkHoursEnabled:       c.Schedule.WorkHoursEnabled,
		WorkStart:              c.Schedule.WorkStart,
		WorkEnd:                c.Schedule.WorkEnd,
		BufferEnabled:          c.Schedule.BufferEnabled,
		BufferMinutes:          c.Schedule.BufferMinutes,
		DefaultDurationMinutes: c.Schedule.DefaultDuration,
		Location:               loc,
	}
	if err := p.Validate(); err != nil {
		return schedule.Policy{}, fmt.Errorf("%w: schedule: %v", ErrInvalidConfig, err)
	}
	return p, nil
}

// BlobDir returns the attachment directory for dataDir.
func (c Config) BlobDir(dataDir string) string {
	if c.Blobs.Dir != "" {
		return c.Blobs.Dir
	}
	return filepath.Join(dataDir, "blobs")
}

// NewLogger builds the root logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log.level %q", ErrInvalidConfig, s)
	}
	return level, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// ensureDefaultConfigFile creates config.yaml if it does not exist.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
