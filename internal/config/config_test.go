package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(DirEnv, dir)
	ClearCache()
	t.Cleanup(ClearCache)
	return dir
}

func TestDefaultsWhenFileMissing(t *testing.T) {
	useTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 80, cfg.Terminal.GetCols())
	assert.Equal(t, 24, cfg.Terminal.GetRows())
	assert.Equal(t, 1024, cfg.Terminal.GetOutputQueueSize())
	assert.Equal(t, 32*1024, cfg.Terminal.GetReadBufferSize())
	assert.Equal(t, 16*time.Millisecond, cfg.Terminal.GetFrameInterval())
	assert.Equal(t, 100*time.Millisecond, cfg.Terminal.GetIdleTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.Process.GetStatusTTL())
	assert.Equal(t, 500*time.Millisecond, cfg.Process.GetKillGrace())
	assert.Equal(t, 3*time.Second, cfg.Process.GetCloseTimeout())
	assert.True(t, cfg.Shell.GetLogin())
}

func TestLoadParsesSections(t *testing.T) {
	dir := useTempDir(t)
	content := `
[shell]
path = "/bin/bash"
args = ["--noprofile"]
allowed = ["/opt/shells/xonsh"]
login = false

[terminal]
cols = 120
output_queue_size = 64
frame_interval_ms = 33

[process]
status_ttl_ms = 250

[recording]
directory = "/tmp/casts"

[logs]
level = "warn"
max_mb = 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/bin/bash", cfg.Shell.Path)
	assert.Equal(t, []string{"--noprofile"}, cfg.Shell.Args)
	assert.Equal(t, []string{"/opt/shells/xonsh"}, cfg.Shell.Allowed)
	assert.False(t, cfg.Shell.GetLogin())
	assert.Equal(t, 120, cfg.Terminal.GetCols())
	assert.Equal(t, 24, cfg.Terminal.GetRows())
	assert.Equal(t, 64, cfg.Terminal.GetOutputQueueSize())
	assert.Equal(t, 33*time.Millisecond, cfg.Terminal.GetFrameInterval())
	assert.Equal(t, 250*time.Millisecond, cfg.Process.GetStatusTTL())
	assert.Equal(t, "/tmp/casts", cfg.Recording.GetDirectory())

	lc := cfg.Logs.LoggingConfig(false)
	assert.Equal(t, "warn", lc.Level)
	assert.Equal(t, 2, lc.MaxSizeMB)
	assert.Empty(t, lc.LogDir)
}

func TestLoadIsCached(t *testing.T) {
	dir := useTempDir(t)
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("[terminal]\ncols = 100\n"), 0o600))

	first, err := Load()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[terminal]\ncols = 90\n"), 0o600))
	second, err := Load()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 100, second.Terminal.GetCols())

	third, err := Reload()
	require.NoError(t, err)
	assert.Equal(t, 90, third.Terminal.GetCols())
}

func TestLoadParseErrorFallsBackToDefaults(t *testing.T) {
	dir := useTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("[terminal\ncols ="), 0o600))

	cfg, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse error")
	require.NotNil(t, cfg)
	assert.Equal(t, 80, cfg.Terminal.GetCols())
}

func TestSaveRoundTrip(t *testing.T) {
	dir := useTempDir(t)
	login := false
	cfg := &Config{
		Shell:    ShellSettings{Path: "/bin/zsh", Login: &login},
		Terminal: TerminalSettings{Rows: 40},
	}
	require.NoError(t, Save(cfg))

	_, err := os.Stat(filepath.Join(dir, FileName+".tmp"))
	assert.True(t, os.IsNotExist(err))

	info, err := os.Stat(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/bin/zsh", got.Shell.Path)
	assert.False(t, got.Shell.GetLogin())
	assert.Equal(t, 40, got.Terminal.GetRows())
}

func TestLoggingConfigDebug(t *testing.T) {
	dir := useTempDir(t)
	lc := LogSettings{}.LoggingConfig(true)
	assert.True(t, lc.Debug)
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, filepath.Join(dir, "logs"), lc.LogDir)

	lc = LogSettings{Enabled: true, Level: "error"}.LoggingConfig(false)
	assert.Equal(t, "error", lc.Level)
	assert.Equal(t, LogDir(), lc.LogDir)
}

func TestRecordingDirectoryDefaults(t *testing.T) {
	dir := useTempDir(t)
	assert.Equal(t, filepath.Join(dir, "recordings"), RecordingSettings{}.GetDirectory())

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "casts"), RecordingSettings{Directory: "~/casts"}.GetDirectory())
}
