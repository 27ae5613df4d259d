//go:build !windows

package terminal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manav03panchal/humanssh/internal/logging"
	"github.com/manav03panchal/humanssh/internal/pty"
)

var sessionLog = logging.ForComponent(logging.CompSession)

// ID identifies a session.
type ID string

// NewID returns a fresh random ID.
func NewID() ID { return ID(uuid.NewString()) }

// Short is the first eight characters, for logs and file names.
func (id ID) Short() string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

// Options configures a new Session.
type Options struct {
	Spawn         pty.SpawnOptions
	FrameInterval time.Duration
	IdleTimeout   time.Duration

	// OnDamage runs on the processor goroutine after each damage signal.
	OnDamage func(ID)
}

// Session is one shell with its grid: supervisor, reader, processor and
// grid wired together.
type Session struct {
	id   ID
	proc *pty.Process
	grid *Grid
	vt   *Processor
	log  *slog.Logger

	recMu sync.Mutex
	rec   *Recorder

	closeOnce sync.Once
	closeErr  error
}

// Start spawns the shell and starts the pipeline.
func Start(opts Options) (*Session, error) {
	id := NewID()
	proc, err := pty.Spawn(opts.Spawn)
	if err != nil {
		return nil, err
	}
	cols, rows := proc.Size()

	s := &Session{
		id:   id,
		proc: proc,
		grid: NewGrid(cols, rows),
		log:  sessionLog.With(slog.String("session", id.Short())),
	}

	var onDamage func()
	if opts.OnDamage != nil {
		onDamage = func() { opts.OnDamage(id) }
	}
	s.vt = NewProcessor(s.grid, proc.Output(), ProcessorOptions{
		FrameInterval: opts.FrameInterval,
		IdleTimeout:   opts.IdleTimeout,
		Reply: func(b []byte) {
			if err := proc.Write(b); err != nil {
				s.log.Debug("reply_dropped", slog.String("error", err.Error()))
			}
		},
		OnDamage: onDamage,
		Logger:   vtLog.With(slog.String("session", id.Short())),
	})
	s.vt.Start()

	s.log.Info("session_started", slog.Int("pid", proc.PID()))
	return s, nil
}

func (s *Session) ID() ID { return s.id }

// Grid exposes the shared grid for selection and text queries.
func (s *Session) Grid() *Grid { return s.grid }

// PID of the shell.
func (s *Session) PID() int { return s.proc.PID() }

// ForegroundPGID returns the terminal's foreground process group.
func (s *Session) ForegroundPGID() (int, error) { return s.proc.ForegroundPGID() }

// Dir is the directory the shell started in.
func (s *Session) Dir() string { return s.proc.Dir() }

// Write sends input to the shell without blocking.
func (s *Session) Write(b []byte) error { return s.proc.Write(b) }

// Resize applies cols x rows to the PTY, then to the grid. If the PTY
// rejects the size the grid is left untouched.
func (s *Session) Resize(cols, rows int) error {
	if err := s.proc.Resize(cols, rows); err != nil {
		return err
	}
	if err := s.grid.Resize(cols, rows); err != nil {
		return err
	}
	s.recMu.Lock()
	if s.rec != nil {
		_ = s.rec.Resize(cols, rows)
	}
	s.recMu.Unlock()
	return nil
}

// Snapshot copies the viewport along with the exit status.
func (s *Session) Snapshot(v Viewport) (*RenderData, error) {
	rd, err := s.grid.Snapshot(v)
	if err != nil {
		return nil, err
	}
	rd.Exit = s.proc.ExitStatus()
	rd.Badge = BadgeFor(rd.Exit)
	return rd, nil
}

// ExitStatus never blocks.
func (s *Session) ExitStatus() pty.ExitStatus { return s.proc.ExitStatus() }

// Exited is closed when the shell has been reaped.
func (s *Session) Exited() <-chan struct{} { return s.proc.Exited() }

// Done is closed once the output stream has ended and every byte of it has
// been fed to the grid, or the session was closed.
func (s *Session) Done() <-chan struct{} { return s.vt.Done() }

// Damage delivers coalesced redraw signals.
func (s *Session) Damage() <-chan struct{} { return s.vt.Damage() }

// Title is the OSC window title, if the shell set one.
func (s *Session) Title() string { return s.grid.Title() }

// StartRecording begins writing output to a new .cast file in dir and
// returns its path.
func (s *Session) StartRecording(dir string) (string, error) {
	s.recMu.Lock()
	defer s.recMu.Unlock()
	if s.rec != nil {
		return s.rec.Path(), nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create recordings dir: %w", err)
	}
	name := fmt.Sprintf("humanssh-%s-%s.cast", time.Now().Format("20060102-150405"), s.id.Short())
	cols, rows := s.grid.Size()
	rec, err := NewRecorder(filepath.Join(dir, name), cols, rows, map[string]string{
		"TERM":  "xterm-256color",
		"SHELL": s.proc.Shell(),
	})
	if err != nil {
		return "", err
	}
	s.rec = rec
	s.vt.SetRecorder(rec)
	s.log.Info("recording_started", slog.String("path", rec.Path()))
	return rec.Path(), nil
}

// StopRecording finishes the current recording, if any.
func (s *Session) StopRecording() error {
	s.recMu.Lock()
	rec := s.rec
	s.rec = nil
	s.recMu.Unlock()
	if rec == nil {
		return nil
	}
	s.vt.SetRecorder(nil)
	s.log.Info("recording_stopped", slog.String("path", rec.Path()))
	return rec.Close()
}

// Recording reports whether output is being recorded.
func (s *Session) Recording() bool {
	s.recMu.Lock()
	defer s.recMu.Unlock()
	return s.rec != nil
}

// Close tears the session down in order: stop the processor, close the
// process (which stops the reader, joins it and terminates the child),
// finish any recording, then detach the grid. ctx bounds the whole
// sequence. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.close(ctx)
	})
	return s.closeErr
}

func (s *Session) close(ctx context.Context) error {
	var errs []error

	s.vt.Signal()
	select {
	case <-s.vt.Done():
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("join processor: %w", ctx.Err()))
	}

	if err := s.proc.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.StopRecording(); err != nil {
		errs = append(errs, err)
	}
	s.grid.Detach()

	err := errors.Join(errs...)
	if err != nil {
		s.log.Warn("session_close_incomplete", slog.String("error", err.Error()))
	} else {
		s.log.Info("session_closed", slog.String("exit", s.proc.ExitStatus().String()))
	}
	return err
}
