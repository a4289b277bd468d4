package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/wasm-hostbridge/errors"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Workers.InboxSize != 256 {
		t.Errorf("InboxSize = %d, want 256", cfg.Workers.InboxSize)
	}
	if cfg.Timers.MinInterval != 10*time.Millisecond {
		t.Errorf("MinInterval = %v, want 10ms", cfg.Timers.MinInterval)
	}
	if got := cfg.Runtime.FrameInterval(); got != time.Second/60 {
		t.Errorf("FrameInterval = %v", got)
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse(`
[runtime]
memory-limit-pages = 256
frame-rate = 30
tick-export = "frame"

[workers]
max = 4
script-timeout = "250ms"
allow-remote = true

[events]
document = "page.html"

[logging]
level = "debug"
encoding = "json"
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Runtime.MemoryLimitPages != 256 {
		t.Errorf("MemoryLimitPages = %d", cfg.Runtime.MemoryLimitPages)
	}
	if cfg.Runtime.TickExport != "frame" {
		t.Errorf("TickExport = %q", cfg.Runtime.TickExport)
	}
	if cfg.Workers.Max != 4 || !cfg.Workers.AllowRemote {
		t.Errorf("Workers = %+v", cfg.Workers)
	}
	if cfg.Workers.ScriptTimeout != 250*time.Millisecond {
		t.Errorf("ScriptTimeout = %v", cfg.Workers.ScriptTimeout)
	}
	if cfg.Events.Document != "page.html" {
		t.Errorf("Document = %q", cfg.Events.Document)
	}
	// untouched keys keep defaults
	if cfg.Workers.InboxSize != 256 {
		t.Errorf("InboxSize = %d, want default", cfg.Workers.InboxSize)
	}
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse("[workers]\nmax-workers = 3\n")
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "workers.max-workers") {
		t.Errorf("error should name the key: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"pages", func(c *Config) { c.Runtime.MemoryLimitPages = maxPages + 1 }, "memory-limit-pages"},
		{"frame rate", func(c *Config) { c.Runtime.FrameRate = -1 }, "frame-rate"},
		{"inbox", func(c *Config) { c.Workers.InboxSize = 0 }, "inbox-size"},
		{"max", func(c *Config) { c.Workers.Max = -2 }, "workers.max"},
		{"interval", func(c *Config) { c.Timers.MinInterval = -time.Second }, "min-interval"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"encoding", func(c *Config) { c.Logging.Encoding = "xml" }, "logging.encoding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.HasKind(err, errors.KindInvalidInput) {
				t.Errorf("kind: %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.toml")
	if err := os.WriteFile(path, []byte("[workers]\nmax = 4\nscript-root = \"scripts\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOSTBRIDGE_WORKERS_MAX", "12")
	t.Setenv("HOSTBRIDGE_TIMERS_MIN_INTERVAL", "4ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers.Max != 12 {
		t.Errorf("Max = %d, want env value 12", cfg.Workers.Max)
	}
	if cfg.Workers.ScriptRoot != "scripts" {
		t.Errorf("ScriptRoot = %q, want file value", cfg.Workers.ScriptRoot)
	}
	if cfg.Timers.MinInterval != 4*time.Millisecond {
		t.Errorf("MinInterval = %v", cfg.Timers.MinInterval)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.Runtime.FrameRate != 60 {
		t.Errorf("FrameRate = %d", cfg.Runtime.FrameRate)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("HOSTBRIDGE_WORKERS_INBOX_SIZE", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation failure from env override")
	}
}

func TestLogConfig_Build(t *testing.T) {
	for _, lc := range []LogConfig{
		{Level: "debug", Encoding: "console", Development: true},
		{Level: "warn", Encoding: "json"},
		{},
	} {
		log, err := lc.Build()
		if err != nil {
			t.Fatalf("Build(%+v): %v", lc, err)
		}
		_ = log.Sync()
	}

	if _, err := (LogConfig{Level: "nope"}).Build(); err == nil {
		t.Error("bad level should fail")
	}
}
