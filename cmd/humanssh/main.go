//go:build !windows

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/manav03panchal/humanssh/internal/config"
	"github.com/manav03panchal/humanssh/internal/logging"
	"github.com/manav03panchal/humanssh/internal/platform"
	"github.com/manav03panchal/humanssh/internal/procstatus"
	"github.com/manav03panchal/humanssh/internal/workspace"
)

const Version = "0.1.0"

func init() {
	initColorProfile()
}

// initColorProfile picks the lipgloss colour profile. HUMANSSH_COLOR
// overrides detection: truecolor, 256, 16 or none.
func initColorProfile() {
	switch strings.ToLower(os.Getenv("HUMANSSH_COLOR")) {
	case "truecolor", "true", "24bit":
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	case "256", "ansi256":
		lipgloss.SetColorProfile(termenv.ANSI256)
		return
	case "16", "ansi", "basic":
		lipgloss.SetColorProfile(termenv.ANSI)
		return
	case "none", "off", "ascii":
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	if ct := os.Getenv("COLORTERM"); ct == "truecolor" || ct == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
	}
}

func main() {
	configPath := flag.String("config", "", "path to config.toml (default: "+config.Path()+")")
	debug := flag.Bool("debug", os.Getenv("HUMANSSH_DEBUG") != "", "write debug logs to "+config.LogDir())
	shell := flag.String("shell", "", "shell to run in new panes")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("humanssh v%s\n", Version)
		return
	}
	if err := run(*configPath, *shell, *debug); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, shell string, debug bool) error {
	var (
		cfg     *config.Config
		loadErr error
	)
	if configPath == "" {
		configPath = config.Path()
		cfg, loadErr = config.Load()
	} else {
		cfg, loadErr = config.LoadFrom(configPath)
		if cfg == nil {
			cfg = &config.Config{}
		}
	}

	logging.Init(cfg.Logs.LoggingConfig(debug))
	defer logging.Shutdown()
	uiLog.Info("starting",
		slog.String("version", Version),
		slog.String("platform", platform.Detect().String()),
		slog.Int("pid", os.Getpid()))
	if loadErr != nil {
		uiLog.Warn("config_load_failed", slog.String("error", loadErr.Error()))
	}
	go dumpOnSignal()

	status := procstatus.New(cfg.Process.GetStatusTTL(), nil)
	defer status.Close()
	ws := workspace.New(workspace.Options{Config: cfg, Shell: shell, Status: status})

	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && h > 1 {
		_ = ws.Resize(w, h-1)
	}
	if _, err := ws.NewTab(); err != nil {
		return err
	}

	m := newModel(ws, cfg)
	if loadErr != nil {
		m.notice = "config: " + loadErr.Error()
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	watcher, err := config.NewWatcher(configPath, func(c *config.Config, err error) {
		p.Send(configChangedMsg{cfg: c, err: err})
	})
	if err != nil {
		uiLog.Warn("config_watch_failed", slog.String("error", err.Error()))
	} else {
		defer watcher.Close()
		if warn := watcher.Warning(); warn != "" && m.notice == "" {
			m.notice = warn
		}
	}

	_, runErr := p.Run()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Process.GetCloseTimeout()+time.Second)
	defer cancel()
	if err := ws.Shutdown(ctx); err != nil {
		uiLog.Warn("shutdown_incomplete", slog.String("error", err.Error()))
	}
	return runErr
}

// dumpOnSignal writes the in-memory log history on SIGUSR1.
func dumpOnSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	for range ch {
		path := filepath.Join(config.LogDir(), fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
		if err := logging.DumpRingBuffer(path); err != nil {
			uiLog.Error("crash_dump_failed", slog.String("error", err.Error()))
		} else {
			uiLog.Info("crash_dump_written", slog.String("path", path))
		}
	}
}
