//go:build !windows

package pty

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/manav03panchal/humanssh/internal/platform"
)

// DefaultKillGrace is how long a child gets between SIGHUP and SIGKILL.
const DefaultKillGrace = 500 * time.Millisecond

// SpawnOptions describes the child to start.
type SpawnOptions struct {
	// Shell is an absolute path. Empty resolves via ResolveShell.
	Shell string
	// Args follow the login flag, e.g. {"-c", "make test"} for a command pane.
	Args  []string
	Login bool
	// Dir is the working directory; empty or invalid means $HOME.
	Dir string
	// Env holds KEY=VALUE pairs layered over the inherited environment.
	Env []string

	Cols, Rows int

	// AllowedShells extends the built-in allow-list.
	AllowedShells []string

	QueueSize      int
	ReadBufferSize int
	KillGrace      time.Duration
}

// Process is a running child on a PTY. Output arrives on Output(); input
// goes through Write. All methods are safe for concurrent use.
type Process struct {
	cmd   *exec.Cmd
	ptmx  *os.File
	shell string
	dir   string
	grace time.Duration
	log   *slog.Logger

	out  chan []byte
	stop chan struct{}
	wg   sync.WaitGroup

	inMu    sync.Mutex
	pending [][]byte
	inReady chan struct{}
	wErr    atomic.Pointer[WriteError]

	sizeMu     sync.Mutex
	cols, rows int

	status atomic.Pointer[ExitStatus]
	exited chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Spawn validates the shell and starts it on a new PTY of the requested
// size. On success the reader, writer and waiter goroutines are running.
func Spawn(opts SpawnOptions) (*Process, error) {
	shell := opts.Shell
	if shell == "" {
		shell = ResolveShell("", opts.AllowedShells)
	}
	shell, err := ValidateShell(shell, opts.AllowedShells)
	if err != nil {
		return nil, err
	}

	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	var args []string
	if opts.Login {
		args = append(args, "-l")
	}
	args = append(args, opts.Args...)

	cmd := exec.Command(shell, args...)
	cmd.Dir = workingDir(opts.Dir)
	cmd.Env = childEnv(os.Environ(), opts.Env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, &SpawnError{Shell: shell, Err: err}
	}

	p := &Process{
		cmd:     cmd,
		ptmx:    ptmx,
		shell:   shell,
		dir:     cmd.Dir,
		grace:   opts.KillGrace,
		log:     ptyLog.With(slog.Int("pid", cmd.Process.Pid)),
		out:     make(chan []byte, orDefault(opts.QueueSize, DefaultQueueSize)),
		stop:    make(chan struct{}),
		inReady: make(chan struct{}, 1),
		cols:    cols,
		rows:    rows,
		exited:  make(chan struct{}),
	}
	if p.grace <= 0 {
		p.grace = DefaultKillGrace
	}
	running := Running()
	p.status.Store(&running)

	go p.wait()
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		pump(ptmx, p.out, p.stop, orDefault(opts.ReadBufferSize, DefaultReadBufferSize), p.log)
	}()
	go func() {
		defer p.wg.Done()
		p.writeLoop()
	}()

	p.log.Info("spawned", slog.String("shell", shell), slog.String("dir", cmd.Dir),
		slog.Int("cols", cols), slog.Int("rows", rows))
	return p, nil
}

// Output is closed after the last chunk once the PTY reaches EOF or the
// process is closed.
func (p *Process) Output() <-chan []byte { return p.out }

// PID of the shell.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Shell returns the validated shell path.
func (p *Process) Shell() string { return p.shell }

// Dir returns the directory the shell was started in.
func (p *Process) Dir() string { return p.dir }

// ExitStatus never blocks.
func (p *Process) ExitStatus() ExitStatus { return *p.status.Load() }

// Exited is closed once the child has been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Size returns the last size applied to the PTY.
func (p *Process) Size() (cols, rows int) {
	p.sizeMu.Lock()
	defer p.sizeMu.Unlock()
	return p.cols, p.rows
}

// Resize sets the PTY window size. Repeating the current size is a no-op.
func (p *Process) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 || cols > 0xffff || rows > 0xffff {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, cols, rows)
	}
	if p.closed.Load() {
		return ErrClosed
	}

	p.sizeMu.Lock()
	defer p.sizeMu.Unlock()
	if cols == p.cols && rows == p.rows {
		return nil
	}
	if err := pty.Setsize(p.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	p.cols, p.rows = cols, rows
	return nil
}

// ForegroundPGID asks the terminal which process group owns the
// foreground. The shell's own group means nothing else is running.
func (p *Process) ForegroundPGID() (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	rc, err := p.ptmx.SyscallConn()
	if err != nil {
		return 0, err
	}
	var pgid int
	var ioErr error
	if err := rc.Control(func(fd uintptr) {
		pgid, ioErr = unix.IoctlGetInt(int(fd), unix.TIOCGPGRP)
	}); err != nil {
		return 0, err
	}
	if ioErr != nil {
		return 0, fmt.Errorf("TIOCGPGRP: %w", ioErr)
	}
	return pgid, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	st := statusFromState(p.cmd.ProcessState)
	p.status.Store(&st)
	close(p.exited)

	code, _ := st.Code()
	if err != nil && p.cmd.ProcessState == nil {
		p.log.Warn("wait_failed", slog.String("error", err.Error()))
	}
	p.log.Info("exited", slog.Int("code", code))
}

// Close tears the child down: stop the pumps and close the master, join
// them, then SIGHUP the process group, wait the grace period, SIGKILL and
// reap. ctx bounds the whole sequence. Safe to call more than once.
func (p *Process) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.closeErr = p.shutdown(ctx)
	})
	return p.closeErr
}

func (p *Process) shutdown(ctx context.Context) error {
	p.closed.Store(true)
	close(p.stop)
	_ = p.ptmx.Close()

	joined := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(joined)
	}()

	// The reader may stay parked in read(2) until the child side goes away,
	// so give it only the grace period before moving on to the signals.
	select {
	case <-joined:
	case <-time.After(p.grace):
	case <-ctx.Done():
	}

	p.terminate(ctx)

	select {
	case <-joined:
	case <-ctx.Done():
		return fmt.Errorf("join pty goroutines: %w", ctx.Err())
	}
	select {
	case <-p.exited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("reap pid %d: %w", p.PID(), ctx.Err())
	}
}

func (p *Process) terminate(ctx context.Context) {
	select {
	case <-p.exited:
		return
	default:
	}

	pid := p.PID()
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		pgid = pid
	}
	_ = syscall.Kill(-pgid, syscall.SIGHUP)

	timer := time.NewTimer(p.grace)
	defer timer.Stop()
	select {
	case <-p.exited:
		return
	case <-timer.C:
	case <-ctx.Done():
	}

	p.log.Warn("kill_escalated", slog.Duration("grace", p.grace))
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
	_ = p.cmd.Process.Kill()
}

func workingDir(dir string) string {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "/"
}

// childEnv layers extra over base, forces the terminal identity variables
// (dropping any inherited COLORTERM) and adds the usual tool directories to PATH.
func childEnv(base, extra []string) []string {
	env := make(map[string]string, len(base)+len(extra)+3)
	var order []string
	set := func(kv string) {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return
		}
		if _, seen := env[k]; !seen {
			order = append(order, k)
		}
		env[k] = v
	}
	for _, kv := range base {
		set(kv)
	}
	for _, kv := range extra {
		set(kv)
	}
	// The interpreter only understands the 256-colour palette.
	delete(env, "COLORTERM")
	set("TERM=xterm-256color")
	set("TERM_PROGRAM=humanssh")
	set("PATH=" + platform.AugmentPath(env["PATH"], platform.ExtraPathDirs()))

	out := make([]string, 0, len(order))
	for _, k := range order {
		v, ok := env[k]
		if !ok {
			continue
		}
		out = append(out, k+"="+v)
	}
	return out
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
