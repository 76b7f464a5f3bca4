package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"taskherd/internal/agents"
	"taskherd/internal/storage"
	"taskherd/pkg/logx"
)

// Config is the daemon configuration. YAML and JSON are both accepted; all
// durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Data       DataConfig       `json:"data"`
	Audit      AuditConfig      `json:"audit,omitempty"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
	Runner     RunnerConfig     `json:"runner,omitempty"`
	Agents     []AgentConfig    `json:"agents,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// DataConfig locates the JSON collection files and their caps.
type DataConfig struct {
	Dir              string `json:"dir"`
	MaxTasks         int    `json:"max_tasks,omitempty"`
	MaxRoutines      int    `json:"max_routines,omitempty"`
	MaxNotifications int    `json:"max_notifications,omitempty"`
}

func (d DataConfig) TasksPath() string         { return filepath.Join(d.Dir, "tasks.json") }
func (d DataConfig) RoutinesPath() string      { return filepath.Join(d.Dir, "routines.json") }
func (d DataConfig) NotificationsPath() string { return filepath.Join(d.Dir, "notifications.json") }

// AuditConfig configures the optional mutation audit trail.
// Driver: "none" (default), "file", or "sqlite" (requires -tags sqlite).
type AuditConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the routine tick.
// Enabled is a pointer so "omitted" defaults to true.
type SchedulerConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Tick    string `json:"tick,omitempty"` // default "60s"
}

// DispatcherConfig controls notification delivery.
type DispatcherConfig struct {
	Enabled     *bool  `json:"enabled,omitempty"`
	Poll        string `json:"poll,omitempty"`         // default "5s"
	SendTimeout string `json:"send_timeout,omitempty"` // default "10s"
	RatePerSec  int    `json:"rate_per_sec,omitempty"` // default 10
	Retention   string `json:"retention,omitempty"`    // delivered-notification retention, default "168h"
}

// RunnerConfig controls the internal job runner.
type RunnerConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
}

// AgentConfig seeds the in-memory agent registry.
type AgentConfig struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Online   bool   `json:"online,omitempty"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (c *SchedulerConfig) IsEnabled() bool  { return boolOr(c.Enabled, true) }
func (c *DispatcherConfig) IsEnabled() bool { return boolOr(c.Enabled, true) }

// durationField parses an optional Go duration string, substituting def when
// the field is empty or zero. field names the config key for error messages.
func durationField(field, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// Validate checks the pieces that cannot be defaulted away.
func (c *Config) Validate() error {
	if c.Data.Dir == "" {
		return errors.New("data.dir is required")
	}
	if _, err := durationField("scheduler.tick", c.Scheduler.Tick, 0); err != nil {
		return err
	}
	if _, err := durationField("dispatcher.poll", c.Dispatcher.Poll, 0); err != nil {
		return err
	}
	if _, err := durationField("dispatcher.send_timeout", c.Dispatcher.SendTimeout, 0); err != nil {
		return err
	}
	if _, err := durationField("dispatcher.retention", c.Dispatcher.Retention, 0); err != nil {
		return err
	}
	if _, err := durationField("audit.busy_timeout", c.Audit.BusyTimeout, 0); err != nil {
		return err
	}
	if _, err := durationField("runner.default_timeout", c.Runner.DefaultTimeout, 0); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agents[%d]: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("agents[%d]: duplicate id %q", i, a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// Tick returns the parsed scheduler tick with its default.
func (c *SchedulerConfig) TickOrDefault() time.Duration {
	d, err := durationField("scheduler.tick", c.Tick, 60*time.Second)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// PollOrDefault returns the parsed dispatcher poll with its default.
func (c *DispatcherConfig) PollOrDefault() time.Duration {
	d, err := durationField("dispatcher.poll", c.Poll, 5*time.Second)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// SendTimeoutOrDefault returns the parsed per-send bound with its default.
func (c *DispatcherConfig) SendTimeoutOrDefault() time.Duration {
	d, err := durationField("dispatcher.send_timeout", c.SendTimeout, 10*time.Second)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// RetentionOrDefault returns the delivered-notification retention window.
func (c *DispatcherConfig) RetentionOrDefault() time.Duration {
	d, err := durationField("dispatcher.retention", c.Retention, 7*24*time.Hour)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}

// StorageConfig maps the audit section onto the storage package config.
func (c *AuditConfig) StorageConfig() storage.Config {
	busy, _ := durationField("audit.busy_timeout", c.BusyTimeout, 0)
	return storage.Config{Driver: c.Driver, Path: c.Path, BusyTimeout: busy}
}

// LogxConfig maps the logging section onto the logx package config.
func (c *LoggingConfig) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

// RegistrySeed maps the agents section onto registry records.
func (c *Config) RegistrySeed() []agents.Agent {
	out := make([]agents.Agent, 0, len(c.Agents))
	for _, a := range c.Agents {
		out = append(out, agents.Agent{ID: a.ID, Name: a.Name, Role: a.Role, Endpoint: a.Endpoint, Online: a.Online})
	}
	return out
}
