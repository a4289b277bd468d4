// Package config loads bridge settings from a TOML file and HOSTBRIDGE_*
// environment variables.
//
// Precedence, lowest first: Default, the TOML file, the environment.
//
//	[workers]
//	max = 8
//	script-root = "./scripts"
//	script-timeout = "2s"
//
//	HOSTBRIDGE_WORKERS_MAX=16
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"github.com/wippyai/wasm-hostbridge/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HOSTBRIDGE"

// maxPages is the wasm32 memory ceiling in 64 KiB pages.
const maxPages = 65536

// Config holds all bridge configuration.
type Config struct {
	Runtime RuntimeConfig `toml:"runtime"`
	Workers WorkersConfig `toml:"workers"`
	Timers  TimersConfig  `toml:"timers"`
	Events  EventsConfig  `toml:"events"`
	Logging LogConfig     `toml:"logging"`
	Metrics MetricsConfig `toml:"metrics"`
}

// RuntimeConfig holds engine and loop settings.
type RuntimeConfig struct {
	// MemoryLimitPages caps guest memory in 64 KiB pages; 0 keeps the wazero default.
	MemoryLimitPages uint32 `toml:"memory-limit-pages" envconfig:"MEMORY_LIMIT_PAGES"`
	// FrameRate is how many animation frames Run drives per second; 0 disables the ticker.
	FrameRate    int           `toml:"frame-rate" envconfig:"FRAME_RATE"`
	CloseTimeout time.Duration `toml:"close-timeout" envconfig:"CLOSE_TIMEOUT"`
	// TickExport is a guest export called after every frame, if present.
	TickExport string `toml:"tick-export" envconfig:"TICK_EXPORT"`
	QueueLimit int    `toml:"queue-limit" envconfig:"QUEUE_LIMIT"`
}

// WorkersConfig holds worker pool settings.
type WorkersConfig struct {
	Max           int           `toml:"max" envconfig:"MAX"`
	InboxSize     int           `toml:"inbox-size" envconfig:"INBOX_SIZE"`
	ScriptTimeout time.Duration `toml:"script-timeout" envconfig:"SCRIPT_TIMEOUT"`
	FetchTimeout  time.Duration `toml:"fetch-timeout" envconfig:"FETCH_TIMEOUT"`
	ScriptRoot    string        `toml:"script-root" envconfig:"SCRIPT_ROOT"`
	AllowRemote   bool          `toml:"allow-remote" envconfig:"ALLOW_REMOTE"`
	UserAgent     string        `toml:"user-agent" envconfig:"USER_AGENT"`
}

// TimersConfig holds timer settings.
type TimersConfig struct {
	MinInterval time.Duration `toml:"min-interval" envconfig:"MIN_INTERVAL"`
}

// EventsConfig holds event-source settings.
type EventsConfig struct {
	// Document is an HTML file whose elements event selectors resolve
	// against. Empty uses a page with a single #canvas.
	Document string `toml:"document" envconfig:"DOCUMENT"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `toml:"level" envconfig:"LEVEL"`
	Encoding    string `toml:"encoding" envconfig:"ENCODING"`
	Development bool   `toml:"development" envconfig:"DEVELOPMENT"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	// Listen is the address serving /metrics; empty disables the server.
	Listen    string `toml:"listen" envconfig:"LISTEN"`
	Namespace string `toml:"namespace" envconfig:"NAMESPACE"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			FrameRate:    60,
			CloseTimeout: 5 * time.Second,
			QueueLimit:   4096,
		},
		Workers: WorkersConfig{
			Max:           64,
			InboxSize:     256,
			ScriptTimeout: 0,
			FetchTimeout:  10 * time.Second,
			ScriptRoot:    ".",
			UserAgent:     "wasm-hostbridge",
		},
		Timers: TimersConfig{
			MinInterval: 10 * time.Millisecond,
		},
		Logging: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
		Metrics: MetricsConfig{
			Namespace: "hostbridge",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
		}
		if err := cfg.decode(string(data)); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults without consulting the
// environment.
func Parse(text string) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(text); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(text string) error {
	md, err := toml.Decode(text, c)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse toml")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(keys).
			Detail("unknown keys: %s", strings.Join(keys, ", ")).
			Build()
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Runtime.MemoryLimitPages > maxPages {
		add("runtime.memory-limit-pages %d exceeds %d", c.Runtime.MemoryLimitPages, maxPages)
	}
	if c.Runtime.FrameRate < 0 || c.Runtime.FrameRate > 1000 {
		add("runtime.frame-rate %d outside [0, 1000]", c.Runtime.FrameRate)
	}
	if c.Runtime.CloseTimeout < 0 {
		add("runtime.close-timeout must not be negative")
	}
	if c.Runtime.QueueLimit < 0 {
		add("runtime.queue-limit must not be negative")
	}
	if c.Workers.Max < 0 {
		add("workers.max must not be negative")
	}
	if c.Workers.InboxSize <= 0 {
		add("workers.inbox-size must be positive")
	}
	if c.Workers.ScriptTimeout < 0 || c.Workers.FetchTimeout < 0 {
		add("workers timeouts must not be negative")
	}
	if c.Timers.MinInterval < 0 {
		add("timers.min-interval must not be negative")
	}
	if _, err := c.Logging.level(); err != nil {
		add("logging.level %q: %v", c.Logging.Level, err)
	}
	switch c.Logging.Encoding {
	case "", "json", "console":
	default:
		add("logging.encoding %q is not json or console", c.Logging.Encoding)
	}

	if len(problems) > 0 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(problems).
			Detail("%s", strings.Join(problems, "; ")).
			Build()
	}
	return nil
}

// FrameInterval is the period between frames, or 0 when frames are off.
func (c RuntimeConfig) FrameInterval() time.Duration {
	if c.FrameRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.FrameRate)
}
