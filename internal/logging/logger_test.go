package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var r map[string]any
		if json.Unmarshal(sc.Bytes(), &r) == nil {
			out = append(out, r)
		}
	}
	return out
}

func TestInitWritesJSONLines(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	Init(Config{Debug: true, LogDir: dir})
	defer Shutdown()

	Logger().Info("spawned", "shell", "/bin/sh")

	records := readRecords(t, filepath.Join(dir, LogFileName))
	require.NotEmpty(t, records)
	assert.Equal(t, "spawned", records[0]["msg"])
	assert.Equal(t, "/bin/sh", records[0]["shell"])
}

func TestInitWithoutDirDiscards(t *testing.T) {
	Shutdown()
	Init(Config{})
	defer Shutdown()

	require.NotNil(t, Logger())
	Logger().Info("dropped")
}

func TestLoggerBeforeInit(t *testing.T) {
	Shutdown()
	require.NotNil(t, Logger())
	ForComponent(CompPTY).Info("nowhere")
}

func TestForComponentTagsRecords(t *testing.T) {
	Shutdown()
	dir := t.TempDir()

	// Created before Init on purpose: package-level loggers are built this way.
	vtLog := ForComponent(CompVT)

	Init(Config{Debug: true, LogDir: dir})
	defer Shutdown()

	vtLog.With(slog.String("session", "abc")).Info("feed", "bytes", 12)

	records := readRecords(t, filepath.Join(dir, LogFileName))
	require.Len(t, records, 1)
	assert.Equal(t, CompVT, records[0]["component"])
	assert.Equal(t, "abc", records[0]["session"])
	assert.EqualValues(t, 12, records[0]["bytes"])
}

func TestLevelFiltering(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	Init(Config{Debug: true, LogDir: dir, Level: "warn"})
	defer Shutdown()

	Logger().Info("quiet")
	Logger().Warn("loud")

	records := readRecords(t, filepath.Join(dir, LogFileName))
	require.Len(t, records, 1)
	assert.Equal(t, "loud", records[0]["msg"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestTextFormat(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	Init(Config{Debug: true, LogDir: dir, Format: "text"})
	defer Shutdown()

	Logger().Info("plain")

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=plain")
	var r map[string]any
	assert.Error(t, json.Unmarshal(data, &r))
}

func TestDumpRingBuffer(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	Init(Config{Debug: true, LogDir: dir, RingBufferSize: 1024})
	defer Shutdown()

	Logger().Info("before_crash")

	dump := filepath.Join(dir, "crash.jsonl")
	require.NoError(t, DumpRingBuffer(dump))
	data, err := os.ReadFile(dump)
	require.NoError(t, err)
	assert.Contains(t, string(data), "before_crash")
}
