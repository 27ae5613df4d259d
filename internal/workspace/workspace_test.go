//go:build !windows

package workspace

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manav03panchal/humanssh/internal/config"
	"github.com/manav03panchal/humanssh/internal/pane"
	"github.com/manav03panchal/humanssh/internal/procstatus"
	"github.com/manav03panchal/humanssh/internal/pty"
	"github.com/manav03panchal/humanssh/internal/terminal"
)

func TestMain(m *testing.M) {
	os.Setenv("SHELL", "/bin/sh")
	os.Setenv("ENV", "")
	os.Exit(m.Run())
}

func skipIfNoPTY(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skip("no /dev/ptmx")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
}

// cwdProber reports a fixed cwd for every process.
type cwdProber struct{ cwd string }

func (cwdProber) Name(context.Context, int) (string, error) { return "sh", nil }

func (p cwdProber) Cwd(context.Context, int) (string, error) {
	if p.cwd == "" {
		return "", errors.New("unknown")
	}
	return p.cwd, nil
}

func testConfig(args ...string) *config.Config {
	login := false
	cfg := &config.Config{}
	cfg.Shell.Path = "/bin/sh"
	cfg.Shell.Login = &login
	cfg.Shell.Args = args
	cfg.Process.KillGraceMS = 200
	cfg.Terminal.FrameIntervalMS = 5
	return cfg
}

func newWorkspace(t *testing.T, cfg *config.Config, prober procstatus.Prober) *Workspace {
	t.Helper()
	skipIfNoPTY(t)
	status := procstatus.New(20*time.Millisecond, prober)
	w := New(Options{Config: cfg, Status: status})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.Shutdown(ctx)
		status.Close()
	})
	return w
}

func closeCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestWorkspace_NewTabWriteAndRender(t *testing.T) {
	w := newWorkspace(t, testConfig(), cwdProber{})
	tab, err := w.NewTab()
	require.NoError(t, err)
	assert.Same(t, tab, w.ActiveTab())

	s, ok := w.Focused()
	require.True(t, ok)
	require.NoError(t, w.Write([]byte("echo wor''kspace\n")))

	require.Eventually(t, func() bool {
		return strings.Contains(s.Grid().Text(), "workspace")
	}, 5*time.Second, 20*time.Millisecond)

	rd, err := w.Snapshot(s.ID(), terminal.Viewport{})
	require.NoError(t, err)
	assert.Equal(t, 80, rd.Cols)
	assert.Equal(t, 24, rd.Rows)
	assert.Equal(t, pty.Running(), rd.Exit)
}

func TestWorkspace_DamageCoalesces(t *testing.T) {
	w := newWorkspace(t, testConfig(), cwdProber{})
	_, err := w.NewTab()
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("echo ping\n")))

	select {
	case <-w.Damage():
	case <-time.After(5 * time.Second):
		t.Fatal("no damage signal")
	}
}

func TestWorkspace_SplitResizeAndClose(t *testing.T) {
	w := newWorkspace(t, testConfig(), cwdProber{})
	tab, err := w.NewTab()
	require.NoError(t, err)
	first, _ := w.Focused()

	second, err := w.Split(pane.Horizontal)
	require.NoError(t, err)
	assert.Equal(t, []*terminal.Session{first, second}, tab.Sessions())
	focused, _ := w.Focused()
	assert.Same(t, second, focused)

	require.NoError(t, w.Resize(100, 30))
	c1, r1 := first.Grid().Size()
	c2, r2 := second.Grid().Size()
	assert.Equal(t, []int{50, 30, 50, 30}, []int{c1, r1, c2, r2})

	placements := w.Layout()
	require.Len(t, placements, 2)
	assert.Equal(t, pane.Rect{X: 50, W: 50, H: 30}, placements[1].Rect)

	w.FocusNext()
	focused, _ = w.Focused()
	assert.Same(t, first, focused)
	w.FocusPrevious()

	require.NoError(t, w.ClosePane(closeCtx(t)))
	assert.Equal(t, []*terminal.Session{first}, tab.Sessions())
	c1, r1 = first.Grid().Size()
	assert.Equal(t, []int{100, 30}, []int{c1, r1}, "survivor takes the whole area")

	_, err = w.Snapshot(second.ID(), terminal.Viewport{})
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, w.ClosePane(closeCtx(t)))
	assert.Empty(t, w.Tabs())
	assert.Nil(t, w.ActiveTab())
	assert.ErrorIs(t, w.ClosePane(closeCtx(t)), ErrNoTab)
	assert.ErrorIs(t, w.Write([]byte("x")), ErrNoTab)
}

func TestWorkspace_SplitInheritsProbedCwd(t *testing.T) {
	dir := t.TempDir()
	w := newWorkspace(t, testConfig(), cwdProber{cwd: dir})
	_, err := w.NewTab()
	require.NoError(t, err)
	first, _ := w.Focused()

	require.Eventually(t, func() bool {
		st, ok := w.status.Status(string(first.ID()), first)
		return ok && st.Cwd == dir
	}, 5*time.Second, 10*time.Millisecond)

	second, err := w.Split(pane.Vertical)
	require.NoError(t, err)
	assert.Equal(t, dir, second.Dir())
}

func TestWorkspace_NewTabInheritsProbedCwd(t *testing.T) {
	dir := t.TempDir()
	w := newWorkspace(t, testConfig(), cwdProber{cwd: dir})
	_, err := w.NewTab()
	require.NoError(t, err)
	first, _ := w.Focused()
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, home, first.Dir(), "first tab starts at home")

	require.Eventually(t, func() bool {
		st, ok := w.status.Status(string(first.ID()), first)
		return ok && st.Cwd == dir
	}, 5*time.Second, 10*time.Millisecond)

	_, err = w.NewTab()
	require.NoError(t, err)
	second, ok := w.Focused()
	require.True(t, ok)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, dir, second.Dir())
}

func TestWorkspace_SplitFallsBackToSpawnDir(t *testing.T) {
	w := newWorkspace(t, testConfig(), cwdProber{})
	_, err := w.NewTab()
	require.NoError(t, err)
	first, _ := w.Focused()

	second, err := w.Split(pane.Vertical)
	require.NoError(t, err)
	assert.Equal(t, first.Dir(), second.Dir())
}

func TestWorkspace_TabCycling(t *testing.T) {
	w := newWorkspace(t, testConfig(), cwdProber{})
	a, err := w.NewTab()
	require.NoError(t, err)
	b, err := w.NewTab()
	require.NoError(t, err)
	c, err := w.NewTab()
	require.NoError(t, err)
	assert.Same(t, c, w.ActiveTab())

	assert.Same(t, a, w.NextTab())
	assert.Same(t, c, w.PreviousTab())
	assert.Same(t, b, w.PreviousTab())

	require.NoError(t, w.CloseTab(closeCtx(t)))
	assert.Len(t, w.Tabs(), 2)
	assert.NotSame(t, b, w.ActiveTab())
}

func TestWorkspace_ReportsExit(t *testing.T) {
	w := newWorkspace(t, testConfig("-c", "printf bye; exit 3"), cwdProber{})
	_, err := w.NewTab()
	require.NoError(t, err)
	s, _ := w.Focused()

	select {
	case id := <-w.Exited():
		assert.Equal(t, s.ID(), id)
	case <-time.After(5 * time.Second):
		t.Fatal("exit not reported")
	}
	assert.Equal(t, pty.Exited(3), s.ExitStatus())
	assert.Contains(t, s.Grid().Text(), "bye")
	assert.False(t, w.HasRunningProcesses())

	require.NoError(t, w.CloseSession(closeCtx(t), s.ID()))
	assert.Empty(t, w.Tabs())
}

func TestWorkspace_TitleFallsBackToProcessName(t *testing.T) {
	w := newWorkspace(t, testConfig(), cwdProber{})
	tab, err := w.NewTab()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return w.Title(tab) == "sh"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Write([]byte("printf '\\033]0;build\\007'\n")))
	require.Eventually(t, func() bool {
		return w.Title(tab) == "build"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWorkspace_SpawnFailureKeepsRunning(t *testing.T) {
	cfg := testConfig()
	cfg.Shell.Path = "/usr/bin/python3"
	w := newWorkspace(t, cfg, cwdProber{})

	_, err := w.NewTab()
	require.Error(t, err)
	assert.Empty(t, w.Tabs())
}

func TestWorkspace_RecordingToggle(t *testing.T) {
	cfg := testConfig()
	cfg.Recording.Directory = t.TempDir()
	w := newWorkspace(t, cfg, cwdProber{})
	_, err := w.NewTab()
	require.NoError(t, err)

	path, on, err := w.ToggleRecording()
	require.NoError(t, err)
	assert.True(t, on)
	assert.FileExists(t, path)

	_, on, err = w.ToggleRecording()
	require.NoError(t, err)
	assert.False(t, on)
}

func TestWorkspace_ResizeRejectsInvalid(t *testing.T) {
	w := New(Options{Config: testConfig(), Status: procstatus.New(time.Second, cwdProber{})})
	assert.ErrorIs(t, w.Resize(0, 10), terminal.ErrInvalidSize)
	require.NoError(t, w.Shutdown(context.Background()))
}

func TestWorkspace_ShutdownClosesEverything(t *testing.T) {
	w := newWorkspace(t, testConfig(), cwdProber{})
	_, err := w.NewTab()
	require.NoError(t, err)
	_, err = w.Split(pane.Horizontal)
	require.NoError(t, err)
	_, err = w.NewTab()
	require.NoError(t, err)

	var sessions []*terminal.Session
	for _, tab := range w.Tabs() {
		sessions = append(sessions, tab.Sessions()...)
	}
	require.Len(t, sessions, 3)

	require.NoError(t, w.Shutdown(closeCtx(t)))
	assert.Empty(t, w.Tabs())
	for _, s := range sessions {
		select {
		case <-s.Exited():
		default:
			t.Fatalf("session %s still running", s.ID().Short())
		}
		_, err := s.Snapshot(terminal.Viewport{})
		assert.ErrorIs(t, err, terminal.ErrSessionClosed)
	}
}
