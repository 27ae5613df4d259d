//go:build !windows

package pty

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spawnSh(t *testing.T, script string, opts ...func(*SpawnOptions)) *Process {
	t.Helper()
	skipIfNoPTY(t)
	o := SpawnOptions{Shell: "/bin/sh", Cols: 80, Rows: 24, KillGrace: 200 * time.Millisecond}
	if script != "" {
		o.Args = []string{"-c", script}
	}
	for _, fn := range opts {
		fn(&o)
	}
	p, err := Spawn(o)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Close(ctx)
	})
	return p
}

// collect drains Output until it closes or the deadline passes.
func collect(t *testing.T, p *Process, deadline time.Duration) string {
	t.Helper()
	var sb strings.Builder
	timeout := time.After(deadline)
	for {
		select {
		case chunk, ok := <-p.Output():
			if !ok {
				return sb.String()
			}
			sb.Write(chunk)
		case <-timeout:
			t.Fatalf("output not closed within %v; got %q", deadline, sb.String())
		}
	}
}

func waitExit(t *testing.T, p *Process) ExitStatus {
	t.Helper()
	select {
	case <-p.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("child not reaped")
	}
	return p.ExitStatus()
}

func TestSpawnEchoAndExitZero(t *testing.T) {
	p := spawnSh(t, "echo hi")

	assert.Contains(t, collect(t, p, 5*time.Second), "hi")
	assert.Equal(t, Exited(0), waitExit(t, p))
	assert.Equal(t, "/bin/sh", p.Shell())
}

func TestSpawnExitCodeOne(t *testing.T) {
	p := spawnSh(t, "exit 1")

	collect(t, p, 5*time.Second)
	assert.Equal(t, Exited(1), waitExit(t, p))
}

func TestSpawnRejectsUntrustedShell(t *testing.T) {
	_, err := Spawn(SpawnOptions{Shell: "bash"})
	assert.ErrorIs(t, err, ErrUntrustedShell)

	_, err = Spawn(SpawnOptions{Shell: "/bin/definitely-not-a-shell"})
	assert.ErrorIs(t, err, ErrShellNotFound)
}

func TestWriteReachesChild(t *testing.T) {
	p := spawnSh(t, "read line; echo got:$line")

	require.NoError(t, p.Write([]byte("abc\n")))
	assert.Contains(t, collect(t, p, 5*time.Second), "got:abc")
	assert.Equal(t, Exited(0), waitExit(t, p))
}

func TestWorkingDirectoryApplied(t *testing.T) {
	dir := t.TempDir()
	p := spawnSh(t, "pwd", func(o *SpawnOptions) { o.Dir = dir })

	out := collect(t, p, 5*time.Second)
	// macOS temp dirs live behind the /private symlink.
	assert.Contains(t, out, strings.TrimPrefix(dir, "/private"))
	assert.Equal(t, dir, p.Dir())
}

func TestResize(t *testing.T) {
	p := spawnSh(t, "sleep 0.3; stty size")

	require.NoError(t, p.Resize(100, 40))
	require.NoError(t, p.Resize(100, 40))
	cols, rows := p.Size()
	assert.Equal(t, 100, cols)
	assert.Equal(t, 40, rows)

	assert.ErrorIs(t, p.Resize(0, 10), ErrInvalidSize)
	assert.ErrorIs(t, p.Resize(10, -1), ErrInvalidSize)

	assert.Contains(t, collect(t, p, 5*time.Second), "40 100")
}

func TestForegroundPGIDIsShellWhenIdle(t *testing.T) {
	p := spawnSh(t, "")

	require.Eventually(t, func() bool {
		pgid, err := p.ForegroundPGID()
		return err == nil && pgid == p.PID()
	}, 3*time.Second, 20*time.Millisecond)
}

func TestCloseTerminatesLongRunningChild(t *testing.T) {
	p := spawnSh(t, "sleep 30")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, p.Close(ctx))
	assert.Less(t, time.Since(start), 3*time.Second)

	assert.False(t, p.ExitStatus().IsRunning())
	_, open := <-p.Output()
	for open {
		_, open = <-p.Output()
	}
	assert.ErrorIs(t, p.Write([]byte("x")), ErrClosed)
	assert.ErrorIs(t, p.Resize(90, 30), ErrClosed)
	assert.NoError(t, p.Close(ctx))
}

func TestCloseEscalatesToKill(t *testing.T) {
	p := spawnSh(t, "trap '' HUP; sleep 30")
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))

	code, exited := p.ExitStatus().Code()
	require.True(t, exited)
	assert.Equal(t, 128+9, code)
}
