package terminal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) (*Recorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.cast")
	rec, err := NewRecorder(path, 80, 24, map[string]string{"TERM": "xterm-256color"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })
	return rec, path
}

func TestRecorderWritesAsciinemaV2(t *testing.T) {
	rec, path := newTestRecorder(t)

	euro := []byte("€")
	require.NoError(t, rec.Output([]byte("price: ")))
	require.NoError(t, rec.Output(euro[:1]))
	require.NoError(t, rec.Output(append(euro[1:], '5')))
	require.NoError(t, rec.Resize(100, 30))
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	assert.NoError(t, rec.Output([]byte("after close")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Contains(t, lines[0], `"version":2`)
	assert.Contains(t, lines[0], `"width":80`)

	c, err := LoadCastFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Header.Version)
	assert.Equal(t, 24, c.Header.Height)
	assert.Equal(t, "xterm-256color", c.Header.Env["TERM"])
	assert.Equal(t, "price: €5", c.Output())

	var kinds []string
	for _, ev := range c.Events {
		kinds = append(kinds, ev.Kind)
		assert.GreaterOrEqual(t, ev.Time, 0.0)
	}
	assert.Equal(t, []string{EventOutput, EventOutput, EventResize}, kinds)
	assert.Equal(t, "100x30", c.Events[2].Data)
}

func TestRecorderRefusesToOverwrite(t *testing.T) {
	_, path := newTestRecorder(t)
	_, err := NewRecorder(path, 80, 24, nil)
	assert.Error(t, err)
}

func TestLoadCastRejectsBadInput(t *testing.T) {
	_, err := LoadCast(strings.NewReader(`{"version":1,"width":80,"height":24}`))
	assert.ErrorContains(t, err, "version 1")

	_, err = LoadCast(strings.NewReader("{\"version\":2,\"width\":80,\"height\":24}\n[0.5,\"o\"]\n"))
	assert.ErrorContains(t, err, "3 fields")

	_, err = LoadCast(strings.NewReader("not json"))
	assert.Error(t, err)
}

func TestReplayRebuildsScreen(t *testing.T) {
	rec, path := newTestRecorder(t)
	stream := []string{"\x1b[1mtitle\x1b[0m\r\n", "body ", "ü", "ber\r\n"}
	live := NewGrid(80, 24)
	for _, s := range stream {
		require.NoError(t, rec.Output([]byte(s)))
		live.Feed([]byte(s))
	}
	require.NoError(t, rec.Resize(40, 10))
	require.NoError(t, live.Resize(40, 10))
	require.NoError(t, rec.Close())

	c, err := LoadCastFile(path)
	require.NoError(t, err)

	replayed := NewGrid(c.Header.Width, c.Header.Height)
	replayed.Replay(c)

	assert.Equal(t, live.Text(), replayed.Text())
	cols, rows := replayed.Size()
	assert.Equal(t, 40, cols)
	assert.Equal(t, 10, rows)
}
