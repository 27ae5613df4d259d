//go:build !windows

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/manav03panchal/humanssh/internal/clipboard"
	"github.com/manav03panchal/humanssh/internal/config"
	"github.com/manav03panchal/humanssh/internal/logging"
	"github.com/manav03panchal/humanssh/internal/pane"
	"github.com/manav03panchal/humanssh/internal/terminal"
	"github.com/manav03panchal/humanssh/internal/workspace"
)

var uiLog = logging.ForComponent(logging.CompUI)

type damageMsg struct{}

type exitedMsg struct{ id terminal.ID }

type configChangedMsg struct {
	cfg *config.Config
	err error
}

// listenForDamage waits for the next redraw signal from any session.
func listenForDamage(ws *workspace.Workspace) tea.Cmd {
	return func() tea.Msg {
		<-ws.Damage()
		return damageMsg{}
	}
}

func listenForExit(ws *workspace.Workspace) tea.Cmd {
	return func() tea.Msg {
		return exitedMsg{id: <-ws.Exited()}
	}
}

type model struct {
	ws           *workspace.Workspace
	keys         keyMap
	width        int
	height       int
	notice       string
	confirmQuit  bool
	closeTimeout time.Duration
}

func newModel(ws *workspace.Workspace, cfg *config.Config) *model {
	return &model{
		ws:           ws,
		keys:         defaultKeyMap(),
		closeTimeout: cfg.Process.GetCloseTimeout(),
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(listenForDamage(m.ws), listenForExit(m.ws))
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if err := m.resize(); err != nil {
			uiLog.Warn("resize_failed", slog.String("error", err.Error()))
		}
		return m, nil

	case damageMsg:
		return m, listenForDamage(m.ws)

	case exitedMsg:
		if s, ok := m.ws.Session(msg.id); ok {
			m.notice = fmt.Sprintf("shell exited (%s), alt+w closes the pane", s.ExitStatus())
		}
		return m, listenForExit(m.ws)

	case configChangedMsg:
		if msg.err != nil {
			m.notice = "config: " + msg.err.Error()
			return m, nil
		}
		m.ws.SetConfig(msg.cfg)
		m.closeTimeout = msg.cfg.Process.GetCloseTimeout()
		m.notice = "config reloaded"
		return m, nil

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !key.Matches(msg, m.keys.Quit) {
		m.confirmQuit = false
	}
	if msg.Paste {
		m.report(m.ws.Paste(string(msg.Runes)))
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.ws.HasRunningProcesses() && !m.confirmQuit {
			m.confirmQuit = true
			m.notice = "processes are still running, ctrl+q again to quit"
			return m, nil
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.SplitHorizontal):
		m.report(m.split(pane.Horizontal))
	case key.Matches(msg, m.keys.SplitVertical):
		m.report(m.split(pane.Vertical))

	case key.Matches(msg, m.keys.ClosePane):
		ctx, cancel := context.WithTimeout(context.Background(), m.closeTimeout)
		err := m.ws.ClosePane(ctx)
		cancel()
		m.report(err)
		if len(m.ws.Tabs()) == 0 {
			return m, tea.Quit
		}
		m.report(m.resize())

	case key.Matches(msg, m.keys.FocusNext):
		m.ws.FocusNext()
	case key.Matches(msg, m.keys.FocusPrevious):
		m.ws.FocusPrevious()

	case key.Matches(msg, m.keys.NewTab):
		_, err := m.ws.NewTab()
		m.report(err)
		m.report(m.resize())
	case key.Matches(msg, m.keys.NextTab):
		m.ws.NextTab()
	case key.Matches(msg, m.keys.PreviousTab):
		m.ws.PreviousTab()

	case key.Matches(msg, m.keys.Record):
		path, on, err := m.ws.ToggleRecording()
		switch {
		case err != nil:
			m.report(err)
		case on:
			m.notice = "recording to " + path
		default:
			m.notice = "recording stopped"
		}

	case key.Matches(msg, m.keys.Copy):
		res, err := m.ws.CopySelection()
		if err != nil {
			m.report(err)
			break
		}
		m.notice = fmt.Sprintf("copied %d lines via %s", res.LineCount, res.Method)
	case key.Matches(msg, m.keys.Paste):
		text, err := clipboard.Paste()
		if err == nil {
			err = m.ws.Paste(text)
		}
		m.report(err)
	case key.Matches(msg, m.keys.SelectAll):
		m.ws.SelectAll()

	default:
		var modes terminal.InputModes
		if s, ok := m.ws.Focused(); ok {
			modes = s.Grid().InputModes()
		}
		if b := encodeKey(msg, modes); len(b) > 0 {
			if err := m.ws.Write(b); err != nil && !errors.Is(err, workspace.ErrNoTab) {
				m.report(err)
			}
		}
	}
	return m, nil
}

// handleMouse drives selection with the left button. Row 0 is the tab bar.
func (m *model) handleMouse(msg tea.MouseMsg) {
	if msg.Button != tea.MouseButtonLeft && msg.Action != tea.MouseActionRelease {
		return
	}
	x, y := msg.X, msg.Y-1
	switch msg.Action {
	case tea.MouseActionPress:
		m.ws.PointerDown(x, y)
	case tea.MouseActionMotion:
		m.ws.PointerDrag(x, y)
	case tea.MouseActionRelease:
		m.ws.PointerDrag(x, y)
		m.ws.PointerUp()
	}
}

func (m *model) split(o pane.Orientation) error {
	_, err := m.ws.Split(o)
	return err
}

// resize gives the workspace everything below the tab bar.
func (m *model) resize() error {
	if m.width < 1 || m.height < 2 {
		return nil
	}
	return m.ws.Resize(m.width, m.height-1)
}

func (m *model) report(err error) {
	if err == nil {
		return
	}
	m.notice = err.Error()
	uiLog.Warn("action_failed", slog.String("error", err.Error()))
}

func (m *model) View() string {
	if m.width < 1 || m.height < 2 {
		return ""
	}

	var titles []string
	for _, tab := range m.ws.Tabs() {
		titles = append(titles, m.ws.Title(tab))
	}
	bar := renderTabBar(m.width, titles, m.ws.ActiveIndex(), m.notice)

	focused, _ := m.ws.Focused()
	var panes []paneView
	for _, p := range m.ws.Layout() {
		s, ok := workspace.SessionOf(p.Leaf)
		if !ok {
			continue
		}
		rd, err := s.Snapshot(terminal.Viewport{Height: p.Rect.H})
		if err != nil {
			continue
		}
		panes = append(panes, paneView{rect: p.Rect, data: rd, focused: s == focused})
	}
	body := renderPanes(m.width, m.height-1, panes)
	return lipgloss.JoinVertical(lipgloss.Left, bar, body)
}
