//go:build !windows

// Package workspace composes sessions, pane trees and the status cache into
// the tabbed layout a host renders. A Workspace belongs to the control
// goroutine; only the Damage and Exited channels are fed from elsewhere.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/manav03panchal/humanssh/internal/config"
	"github.com/manav03panchal/humanssh/internal/logging"
	"github.com/manav03panchal/humanssh/internal/pane"
	"github.com/manav03panchal/humanssh/internal/procstatus"
	"github.com/manav03panchal/humanssh/internal/pty"
	"github.com/manav03panchal/humanssh/internal/terminal"
)

var wsLog = logging.ForComponent(logging.CompSession)

var (
	// ErrNoTab is returned when the workspace has no tabs.
	ErrNoTab = errors.New("no open tab")

	// ErrNoSession is returned for an unknown session ID.
	ErrNoSession = errors.New("no such session")
)

const exitedBuffer = 16

// TerminalPane is the pane content for a terminal session.
type TerminalPane struct {
	Session *terminal.Session
}

func (TerminalPane) Kind() pane.Kind { return pane.KindTerminal }

// SessionOf returns the session shown by leaf, if it is a terminal pane.
func SessionOf(leaf *pane.Leaf) (*terminal.Session, bool) {
	if leaf == nil {
		return nil, false
	}
	tp, ok := leaf.Content.(TerminalPane)
	return tp.Session, ok
}

// Tab is one pane tree.
type Tab struct {
	id   int
	tree *pane.Tree
}

func (t *Tab) ID() int { return t.id }

// Tree exposes the tab's layout.
func (t *Tab) Tree() *pane.Tree { return t.tree }

// Sessions returns the tab's sessions in leaf order.
func (t *Tab) Sessions() []*terminal.Session {
	var out []*terminal.Session
	for _, l := range t.tree.Leaves() {
		if s, ok := SessionOf(l); ok {
			out = append(out, s)
		}
	}
	return out
}

// Focused returns the focused session of the tab.
func (t *Tab) Focused() (*terminal.Session, bool) {
	return SessionOf(t.tree.Focused())
}

// Options configures a Workspace.
type Options struct {
	Config *config.Config
	// Shell overrides Config.Shell.Path.
	Shell string
	// Status is shared with the host; nil creates one from the config TTL.
	Status *procstatus.Cache
}

// Workspace is the set of open tabs.
type Workspace struct {
	cfg       *config.Config
	shell     string
	status    *procstatus.Cache
	ownStatus bool

	tabs    []*Tab
	active  int
	lastTab int
	area    pane.Rect

	sessions map[terminal.ID]*sessionEntry
	drag     *drag

	damage chan struct{}
	exited chan terminal.ID
	done   chan struct{}
}

type sessionEntry struct {
	session *terminal.Session
	// forgotten is closed when the pane closes so exit reporting stops.
	forgotten chan struct{}
}

// New returns an empty workspace. Call NewTab to open the first shell.
func New(opts Options) *Workspace {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	w := &Workspace{
		cfg:      cfg,
		shell:    opts.Shell,
		status:   opts.Status,
		area:     pane.Rect{W: cfg.Terminal.GetCols(), H: cfg.Terminal.GetRows()},
		sessions: make(map[terminal.ID]*sessionEntry),
		damage:   make(chan struct{}, 1),
		exited:   make(chan terminal.ID, exitedBuffer),
		done:     make(chan struct{}),
	}
	if w.status == nil {
		w.status = procstatus.New(cfg.Process.GetStatusTTL(), nil)
		w.ownStatus = true
	}
	return w
}

// SetConfig replaces the configuration used for sessions spawned from now on.
func (w *Workspace) SetConfig(cfg *config.Config) {
	if cfg != nil {
		w.cfg = cfg
	}
}

// Damage receives a value whenever any session has new content. Signals
// from many sessions coalesce into one.
func (w *Workspace) Damage() <-chan struct{} { return w.damage }

// Exited reports sessions whose shell exited on its own.
func (w *Workspace) Exited() <-chan terminal.ID { return w.exited }

// Tabs returns the open tabs in order.
func (w *Workspace) Tabs() []*Tab { return w.tabs }

// ActiveTab returns the tab being shown, or nil.
func (w *Workspace) ActiveTab() *Tab {
	if len(w.tabs) == 0 {
		return nil
	}
	return w.tabs[w.active]
}

// ActiveIndex is the position of the active tab.
func (w *Workspace) ActiveIndex() int { return w.active }

// Focused returns the focused session of the active tab.
func (w *Workspace) Focused() (*terminal.Session, bool) {
	tab := w.ActiveTab()
	if tab == nil {
		return nil, false
	}
	return tab.Focused()
}

// Session looks up a session by ID.
func (w *Workspace) Session(id terminal.ID) (*terminal.Session, bool) {
	e, ok := w.sessions[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Area is the size last passed to Resize.
func (w *Workspace) Area() pane.Rect { return w.area }

// NewTab opens a tab with one shell and makes it active. The shell starts
// in the focused pane's working directory, or at home when nothing is open.
func (w *Workspace) NewTab() (*Tab, error) {
	dir := ""
	if cur, ok := w.Focused(); ok {
		dir = w.inheritDir(cur)
	}
	s, err := w.spawn(dir, w.area.W, w.area.H)
	if err != nil {
		return nil, err
	}
	w.lastTab++
	tab := &Tab{id: w.lastTab, tree: pane.New(TerminalPane{Session: s})}
	w.tabs = append(w.tabs, tab)
	w.active = len(w.tabs) - 1
	wsLog.Info("tab_opened", slog.Int("tab", tab.id), slog.String("session", s.ID().Short()))
	return tab, nil
}

// NextTab activates the following tab, wrapping around.
func (w *Workspace) NextTab() *Tab { return w.cycleTab(1) }

// PreviousTab activates the preceding tab, wrapping around.
func (w *Workspace) PreviousTab() *Tab { return w.cycleTab(-1) }

func (w *Workspace) cycleTab(step int) *Tab {
	if len(w.tabs) == 0 {
		return nil
	}
	w.active = (w.active + step + len(w.tabs)) % len(w.tabs)
	return w.tabs[w.active]
}

// CloseTab tears down every session of the active tab in parallel and
// removes it.
func (w *Workspace) CloseTab(ctx context.Context) error {
	tab := w.ActiveTab()
	if tab == nil {
		return ErrNoTab
	}
	sessions := tab.Sessions()
	for _, s := range sessions {
		w.forget(s.ID())
	}
	w.removeTab(w.active)
	wsLog.Info("tab_closed", slog.Int("tab", tab.id), slog.Int("sessions", len(sessions)))
	return closeAll(ctx, sessions)
}

func (w *Workspace) removeTab(i int) {
	w.tabs = append(w.tabs[:i], w.tabs[i+1:]...)
	if w.active >= len(w.tabs) && w.active > 0 {
		w.active = len(w.tabs) - 1
	}
}

// Split divides the focused pane and starts a shell in the new half. The
// new shell starts in the focused shell's current directory when known.
func (w *Workspace) Split(o pane.Orientation) (*terminal.Session, error) {
	tab := w.ActiveTab()
	if tab == nil {
		return nil, ErrNoTab
	}
	leaf := tab.tree.Focused()
	cur, ok := SessionOf(leaf)
	if !ok {
		return nil, pane.ErrEmptyTree
	}

	// Spawn at the current pane size; Resize below fixes it up.
	cols, rows := cur.Grid().Size()
	s, err := w.spawn(w.inheritDir(cur), cols, rows)
	if err != nil {
		return nil, err
	}
	if _, err := tab.tree.Split(leaf.ID(), o, 0.5, TerminalPane{Session: s}); err != nil {
		w.forget(s.ID())
		_ = s.Close(context.Background())
		return nil, err
	}
	return s, w.layoutTab(tab)
}

// inheritDir prefers the probed cwd of s, then the directory it started in.
// An empty result makes the new shell start in $HOME.
func (w *Workspace) inheritDir(s *terminal.Session) string {
	if st, ok := w.status.Status(string(s.ID()), s); ok && st.Cwd != "" {
		return st.Cwd
	}
	return s.Dir()
}

// ClosePane closes the focused pane of the active tab. A tab left without
// panes is removed.
func (w *Workspace) ClosePane(ctx context.Context) error {
	tab := w.ActiveTab()
	if tab == nil {
		return ErrNoTab
	}
	leaf := tab.tree.Focused()
	if leaf == nil {
		return pane.ErrEmptyTree
	}
	return w.closeLeaf(ctx, w.active, leaf.ID())
}

// CloseSession closes the pane showing id, wherever it is.
func (w *Workspace) CloseSession(ctx context.Context, id terminal.ID) error {
	for i, tab := range w.tabs {
		for _, l := range tab.tree.Leaves() {
			if s, ok := SessionOf(l); ok && s.ID() == id {
				return w.closeLeaf(ctx, i, l.ID())
			}
		}
	}
	return fmt.Errorf("%w: %s", ErrNoSession, id.Short())
}

func (w *Workspace) closeLeaf(ctx context.Context, tabIndex int, leafID pane.ID) error {
	tab := w.tabs[tabIndex]
	content, err := tab.tree.Close(leafID)
	if err != nil {
		return err
	}
	var closeErr error
	if tp, ok := content.(TerminalPane); ok {
		w.forget(tp.Session.ID())
		closeErr = tp.Session.Close(ctx)
	}
	if tab.tree.Empty() {
		w.removeTab(tabIndex)
		wsLog.Info("tab_closed", slog.Int("tab", tab.id), slog.Int("sessions", 1))
		return closeErr
	}
	return errors.Join(closeErr, w.layoutTab(tab))
}

// FocusNext moves focus within the active tab.
func (w *Workspace) FocusNext() {
	if tab := w.ActiveTab(); tab != nil {
		tab.tree.FocusNext()
	}
}

// FocusPrevious moves focus within the active tab.
func (w *Workspace) FocusPrevious() {
	if tab := w.ActiveTab(); tab != nil {
		tab.tree.FocusPrevious()
	}
}

// Write sends input to the focused session.
func (w *Workspace) Write(b []byte) error {
	s, ok := w.Focused()
	if !ok {
		return ErrNoTab
	}
	return s.Write(b)
}

// Resize sets the workspace area and resizes every session to its share
// of it.
func (w *Workspace) Resize(cols, rows int) error {
	if cols < 1 || rows < 1 {
		return fmt.Errorf("%w: %dx%d", terminal.ErrInvalidSize, cols, rows)
	}
	w.area = pane.Rect{W: cols, H: rows}
	var errs []error
	for _, tab := range w.tabs {
		if err := w.layoutTab(tab); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Layout places the panes of the active tab in the workspace area.
func (w *Workspace) Layout() []pane.Placement {
	tab := w.ActiveTab()
	if tab == nil {
		return nil
	}
	return tab.tree.Layout(w.area)
}

func (w *Workspace) layoutTab(tab *Tab) error {
	var errs []error
	for _, p := range tab.tree.Layout(w.area) {
		s, ok := SessionOf(p.Leaf)
		if !ok || p.Rect.W < 1 || p.Rect.H < 1 {
			continue
		}
		if err := s.Resize(p.Rect.W, p.Rect.H); err != nil && !errors.Is(err, pty.ErrClosed) {
			errs = append(errs, fmt.Errorf("resize %s: %w", s.ID().Short(), err))
		}
	}
	return errors.Join(errs...)
}

// Snapshot copies the viewport of session id.
func (w *Workspace) Snapshot(id terminal.ID, v terminal.Viewport) (*terminal.RenderData, error) {
	s, ok := w.Session(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, id.Short())
	}
	return s.Snapshot(v)
}

// Title labels tab: the focused shell's OSC title if set, otherwise its
// foreground process name. Never blocks.
func (w *Workspace) Title(tab *Tab) string {
	s, ok := tab.Focused()
	if !ok {
		return ""
	}
	if t := s.Title(); t != "" {
		return t
	}
	return w.status.ForegroundProcessName(string(s.ID()), s)
}

// HasRunningProcesses reports whether any live shell has a foreground job,
// from cached status. Hosts use it to confirm before quitting.
func (w *Workspace) HasRunningProcesses() bool {
	for id, e := range w.sessions {
		if !e.session.ExitStatus().IsRunning() {
			continue
		}
		if st, ok := w.status.Status(string(id), e.session); ok && st.HasChildren {
			return true
		}
	}
	return false
}

// ToggleRecording starts or stops recording the focused session. It
// returns the cast path and whether recording is now on.
func (w *Workspace) ToggleRecording() (string, bool, error) {
	s, ok := w.Focused()
	if !ok {
		return "", false, ErrNoTab
	}
	if s.Recording() {
		return "", false, s.StopRecording()
	}
	path, err := s.StartRecording(w.cfg.Recording.GetDirectory())
	return path, err == nil, err
}

// Shutdown closes every session in parallel and releases the status cache.
func (w *Workspace) Shutdown(ctx context.Context) error {
	var all []*terminal.Session
	for _, tab := range w.tabs {
		all = append(all, tab.Sessions()...)
	}
	for _, s := range all {
		w.forget(s.ID())
	}
	w.tabs = nil
	w.active = 0

	err := closeAll(ctx, all)
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	if w.ownStatus {
		w.status.Close()
	}
	wsLog.Info("workspace_shutdown", slog.Int("sessions", len(all)))
	return err
}

func closeAll(ctx context.Context, sessions []*terminal.Session) error {
	var g errgroup.Group
	for _, s := range sessions {
		g.Go(func() error { return s.Close(ctx) })
	}
	return g.Wait()
}

func (w *Workspace) spawn(dir string, cols, rows int) (*terminal.Session, error) {
	cfg := w.cfg
	shell := w.shell
	if shell == "" {
		shell = cfg.Shell.Path
	}
	s, err := terminal.Start(terminal.Options{
		Spawn: pty.SpawnOptions{
			Shell:          shell,
			Args:           cfg.Shell.Args,
			Login:          cfg.Shell.GetLogin(),
			Dir:            dir,
			Cols:           cols,
			Rows:           rows,
			AllowedShells:  cfg.Shell.Allowed,
			QueueSize:      cfg.Terminal.GetOutputQueueSize(),
			ReadBufferSize: cfg.Terminal.GetReadBufferSize(),
			KillGrace:      cfg.Process.GetKillGrace(),
		},
		FrameInterval: cfg.Terminal.GetFrameInterval(),
		IdleTimeout:   cfg.Terminal.GetIdleTimeout(),
		OnDamage:      w.onDamage,
	})
	if err != nil {
		wsLog.Warn("spawn_failed", slog.String("error", err.Error()))
		return nil, err
	}
	e := &sessionEntry{session: s, forgotten: make(chan struct{})}
	w.sessions[s.ID()] = e
	go w.watchExit(e)
	return s, nil
}

// onDamage runs on processor goroutines.
func (w *Workspace) onDamage(terminal.ID) {
	select {
	case w.damage <- struct{}{}:
	default:
		logging.Aggregate(logging.CompSession, "damage_coalesced")
	}
}

// watchExit reports a shell that ends while its pane is still open, once
// all of its output has reached the grid.
func (w *Workspace) watchExit(e *sessionEntry) {
	s := e.session
	select {
	case <-s.Exited():
	case <-e.forgotten:
		return
	}
	select {
	case <-s.Done():
	case <-e.forgotten:
		return
	}
	select {
	case w.exited <- s.ID():
	case <-e.forgotten:
	case <-w.done:
	}
}

func (w *Workspace) forget(id terminal.ID) {
	if w.drag != nil && w.drag.session.ID() == id {
		w.drag = nil
	}
	if e, ok := w.sessions[id]; ok {
		close(e.forgotten)
		delete(w.sessions, id)
	}
	w.status.Forget(string(id))
}
