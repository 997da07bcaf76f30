// Package config defines service configuration and its defaults.
//
// Values are layered by Load: defaults from New, then an optional YAML
// file, then LARKGATE_ environment variables.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/larkgate/internal/domain/attendance"
	"github.com/okian/larkgate/internal/domain/types"
	"github.com/okian/larkgate/internal/scheduler"
)

// Dedupe backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Roster sources.
const (
	RosterConfig = "config"
	RosterChat   = "chat"
)

// Config contains process configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
	Dedupe     DedupeConfig     `koanf:"dedupe"`
	Queue      QueueConfig      `koanf:"queue"`
	Worker     WorkerConfig     `koanf:"worker"`
	Lark       LarkConfig       `koanf:"lark"`
	Attendance AttendanceConfig `koanf:"attendance"`
	Roster     []PersonConfig   `koanf:"roster"`
	Leave      LeaveConfig      `koanf:"leave"`
	Holiday    HolidayConfig    `koanf:"holiday"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig controls verbosity: debug, info, warn, error.
type LogConfig struct {
	Level string `koanf:"level"`
}

// DedupeConfig configures the processed-event store.
type DedupeConfig struct {
	TTL     time.Duration `koanf:"ttl"`
	MaxSize int           `koanf:"max_size"`
	Backend string        `koanf:"backend"`
	Redis   RedisConfig   `koanf:"redis"`
}

// RedisConfig addresses the shared dedupe store.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// QueueConfig bounds the background task queue.
type QueueConfig struct {
	Capacity int `koanf:"capacity"`
}

// WorkerConfig sizes the background worker pool.
type WorkerConfig struct {
	Count       int           `koanf:"count"`
	TaskTimeout time.Duration `koanf:"task_timeout"`
}

// LarkConfig holds the static app credentials used by the plain webhook
// route and by scheduled jobs.
type LarkConfig struct {
	AppID     string        `koanf:"app_id"`
	AppSecret string        `koanf:"app_secret"`
	BaseURL   string        `koanf:"base_url"`
	Timeout   time.Duration `koanf:"timeout"`
	// WebhookNamespace prefixes synthesized event ids on the static route.
	WebhookNamespace string `koanf:"webhook_namespace"`
}

// AttendanceConfig locates the daily record table and the report audience.
type AttendanceConfig struct {
	AppToken     string   `koanf:"app_token"`
	TableID      string   `koanf:"table_id"`
	UserField    string   `koanf:"user_field"`
	DateField    string   `koanf:"date_field"`
	BitableURL   string   `koanf:"bitable_url"`
	ChatID       string   `koanf:"chat_id"`
	MentionUsers []string `koanf:"mention_users"`
	Timezone     string   `koanf:"timezone"`
	// RosterSource is "config" for the roster list or "chat" for the
	// members of ChatID.
	RosterSource string        `koanf:"roster_source"`
	Exclude      []string      `koanf:"exclude"`
	MemberTTL    time.Duration `koanf:"member_ttl"`
}

// PersonConfig is one roster line.
type PersonConfig struct {
	Name       string   `koanf:"name"`
	ExternalID string   `koanf:"external_id"`
	Off        bool     `koanf:"off"`
	Exceptions []string `koanf:"exceptions"`
}

// LeaveConfig selects the approval definitions treated as leave.
type LeaveConfig struct {
	ApprovalCodes []string `koanf:"approval_codes"`
	WindowDays    int      `koanf:"window_days"`
}

// HolidayConfig configures the public holiday lookup.
type HolidayConfig struct {
	APIURL    string        `koanf:"api_url"`
	Timeout   time.Duration `koanf:"timeout"`
	CacheSize int           `koanf:"cache_size"`
}

// SchedulerConfig lists the scheduled jobs.
type SchedulerConfig struct {
	Enabled  bool            `koanf:"enabled"`
	Timezone string          `koanf:"timezone"`
	Jobs     []scheduler.Job `koanf:"jobs"`
}

// New returns a Config filled with defaults.
func New(_ context.Context) *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Dedupe: DedupeConfig{
			TTL:     10 * time.Minute,
			// Past this many ids the oldest is evicted even inside the TTL,
			// reopening it to redelivery. 0 disables the bound.
			MaxSize: 100_000,
			Backend: BackendMemory,
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "larkgate:event:"},
		},
		Queue:  QueueConfig{Capacity: 1024},
		Worker: WorkerConfig{Count: 8, TaskTimeout: 2 * time.Minute},
		Lark: LarkConfig{
			BaseURL:          "https://open.feishu.cn",
			Timeout:          10 * time.Second,
			WebhookNamespace: "feishu",
		},
		Attendance: AttendanceConfig{
			UserField:    "员工",
			DateField:    "记录时间",
			Timezone:     "Asia/Shanghai",
			RosterSource: RosterConfig,
			MemberTTL:    10 * time.Minute,
		},
		Leave: LeaveConfig{WindowDays: 7},
		Holiday: HolidayConfig{
			APIURL:    "https://timor.tech",
			Timeout:   5 * time.Second,
			CacheSize: 512,
		},
		Scheduler: SchedulerConfig{Enabled: true, Timezone: "Asia/Shanghai"},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Server.Addr) == "" {
		problems = append(problems, "server.addr must not be empty")
	}
	if c.Dedupe.TTL <= 0 {
		problems = append(problems, "dedupe.ttl must be positive")
	}
	switch c.Dedupe.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Dedupe.Redis.Addr == "" {
			problems = append(problems, "dedupe.redis.addr is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("dedupe.backend %q is not memory or redis", c.Dedupe.Backend))
	}
	if c.Queue.Capacity <= 0 {
		problems = append(problems, "queue.capacity must be positive")
	}
	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		problems = append(problems, "lark.app_id and lark.app_secret must be set together")
	}
	if _, err := time.LoadLocation(c.Attendance.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("attendance.timezone: %v", err))
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("scheduler.timezone: %v", err))
	}
	switch c.Attendance.RosterSource {
	case RosterConfig:
	case RosterChat:
		if c.Attendance.ChatID == "" {
			problems = append(problems, "attendance.chat_id is required when the roster comes from chat")
		}
	default:
		problems = append(problems, fmt.Sprintf("attendance.roster_source %q is not config or chat", c.Attendance.RosterSource))
	}
	if _, err := c.RosterEntries(); err != nil {
		problems = append(problems, err.Error())
	}
	for _, j := range c.Scheduler.Jobs {
		if _, err := j.Trigger.Spec(); err != nil {
			problems = append(problems, fmt.Sprintf("scheduler job %s: %v", j.ID, err))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Location returns the attendance timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Attendance.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

// SchedulerLocation returns the scheduler timezone, falling back to the
// attendance one.
func (c *Config) SchedulerLocation() *time.Location {
	if loc, err := time.LoadLocation(c.Scheduler.Timezone); err == nil {
		return loc
	}
	return c.Location()
}

// RosterEntries converts the configured roster.
func (c *Config) RosterEntries() ([]attendance.RosterEntry, error) {
	out := make([]attendance.RosterEntry, 0, len(c.Roster))
	for _, p := range c.Roster {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("%w: entry without a name", ErrInvalidRoster)
		}
		days, err := types.ParseWeekdaySet(p.Exceptions)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRoster, p.Name, err)
		}
		out = append(out, attendance.RosterEntry{
			Name:              p.Name,
			ExternalID:        p.ExternalID,
			OnLeave:           p.Off,
			ExceptionWeekdays: days,
		})
	}
	return out, nil
}
