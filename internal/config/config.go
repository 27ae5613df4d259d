// Package config loads ~/.config/humanssh/config.toml. Every setting is
// optional; getters apply defaults so a zero Config is a valid one.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/manav03panchal/humanssh/internal/logging"
)

const (
	// FileName is the config file inside Dir().
	FileName = "config.toml"

	// DirEnv overrides the config directory (tests, portable installs).
	DirEnv = "HUMANSSH_CONFIG_DIR"
)

// Config is the decoded config.toml.
type Config struct {
	Shell     ShellSettings     `toml:"shell"`
	Terminal  TerminalSettings  `toml:"terminal"`
	Process   ProcessSettings   `toml:"process"`
	Recording RecordingSettings `toml:"recording"`
	Logs      LogSettings       `toml:"logs"`
}

// ShellSettings selects and validates the shell spawned for new panes.
type ShellSettings struct {
	// Path is an absolute shell path. Empty means $SHELL, then /bin/sh.
	Path string `toml:"path,omitempty"`

	// Args are passed after the login flag.
	Args []string `toml:"args,omitempty"`

	// Allowed lists extra absolute shell paths trusted in addition to the
	// built-in allow-list.
	Allowed []string `toml:"allowed,omitempty"`

	// Login starts shells with -l. Default: true.
	Login *bool `toml:"login,omitempty"`
}

// GetLogin returns whether shells start as login shells.
func (s ShellSettings) GetLogin() bool {
	if s.Login == nil {
		return true
	}
	return *s.Login
}

// TerminalSettings tunes the per-session pipeline.
type TerminalSettings struct {
	Cols            int `toml:"cols,omitempty"`
	Rows            int `toml:"rows,omitempty"`
	OutputQueueSize int `toml:"output_queue_size,omitempty"`
	ReadBufferKB    int `toml:"read_buffer_kb,omitempty"`
	FrameIntervalMS int `toml:"frame_interval_ms,omitempty"`
	IdleTimeoutMS   int `toml:"idle_timeout_ms,omitempty"`
}

func (t TerminalSettings) GetCols() int { return orDefault(t.Cols, 80) }
func (t TerminalSettings) GetRows() int { return orDefault(t.Rows, 24) }

// GetOutputQueueSize is the reader-to-processor channel capacity in chunks.
func (t TerminalSettings) GetOutputQueueSize() int { return orDefault(t.OutputQueueSize, 1024) }

// GetReadBufferSize returns the PTY read buffer in bytes.
func (t TerminalSettings) GetReadBufferSize() int { return orDefault(t.ReadBufferKB, 32) * 1024 }

// GetFrameInterval is the minimum spacing between damage signals (~60 fps).
func (t TerminalSettings) GetFrameInterval() time.Duration {
	return ms(orDefault(t.FrameIntervalMS, 16))
}

// GetIdleTimeout bounds how long the processor waits for output before
// re-checking for stop and pending damage.
func (t TerminalSettings) GetIdleTimeout() time.Duration {
	return ms(orDefault(t.IdleTimeoutMS, 100))
}

// ProcessSettings controls status probing and teardown timing.
type ProcessSettings struct {
	StatusTTLMS    int `toml:"status_ttl_ms,omitempty"`
	KillGraceMS    int `toml:"kill_grace_ms,omitempty"`
	CloseTimeoutMS int `toml:"close_timeout_ms,omitempty"`
}

func (p ProcessSettings) GetStatusTTL() time.Duration { return ms(orDefault(p.StatusTTLMS, 500)) }

// GetKillGrace is how long a child gets after SIGHUP before SIGKILL.
func (p ProcessSettings) GetKillGrace() time.Duration { return ms(orDefault(p.KillGraceMS, 500)) }

// GetCloseTimeout bounds a whole session teardown.
func (p ProcessSettings) GetCloseTimeout() time.Duration {
	return ms(orDefault(p.CloseTimeoutMS, 3000))
}

// RecordingSettings configures asciinema capture.
type RecordingSettings struct {
	Directory string `toml:"directory,omitempty"`
}

// GetDirectory returns where .cast files are written.
func (r RecordingSettings) GetDirectory() string {
	if r.Directory != "" {
		return expandHome(r.Directory)
	}
	return filepath.Join(Dir(), "recordings")
}

// LogSettings mirrors logging.Config with file-friendly names.
type LogSettings struct {
	Level         string `toml:"level,omitempty"`
	Format        string `toml:"format,omitempty"`
	MaxMB         int    `toml:"max_mb,omitempty"`
	Backups       int    `toml:"backups,omitempty"`
	RetentionDays int    `toml:"retention_days,omitempty"`
	Compress      bool   `toml:"compress,omitempty"`
	RingBufferMB  int    `toml:"ring_buffer_mb,omitempty"`
	Pprof         bool   `toml:"pprof,omitempty"`
	// Enabled writes logs even without -debug.
	Enabled bool `toml:"enabled,omitempty"`
}

// LoggingConfig converts the section for logging.Init. debug forces file
// output and debug level.
func (l LogSettings) LoggingConfig(debug bool) logging.Config {
	cfg := logging.Config{
		Level:          l.Level,
		Format:         l.Format,
		MaxSizeMB:      l.MaxMB,
		MaxBackups:     l.Backups,
		MaxAgeDays:     l.RetentionDays,
		Compress:       l.Compress,
		RingBufferSize: l.RingBufferMB * 1024 * 1024,
		PprofEnabled:   l.Pprof,
		Debug:          debug,
	}
	if debug || l.Enabled {
		cfg.LogDir = LogDir()
	}
	if debug && cfg.Level == "" {
		cfg.Level = "debug"
	}
	return cfg
}

// Dir returns the config directory.
func Dir() string {
	if d := os.Getenv(DirEnv); d != "" {
		return d
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config", "humanssh")
	}
	return filepath.Join(os.TempDir(), "humanssh")
}

// Path returns the config file path.
func Path() string {
	return filepath.Join(Dir(), FileName)
}

// LogDir returns where rotated logs live.
func LogDir() string {
	return filepath.Join(Dir(), "logs")
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func expandHome(p string) string {
	if len(p) < 2 || p[:2] != "~/" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
