package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/manav03panchal/humanssh/internal/logging"
	"github.com/manav03panchal/humanssh/internal/platform"
)

var configLog = logging.ForComponent(logging.CompConfig)

const reloadDebounce = 100 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands the
// result to a callback. Editors that save by rename are handled by
// watching the directory rather than the file.
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	onChange func(*Config, error)
	warning  string

	timerMu sync.Mutex
	timer   *time.Timer

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWatcher starts watching path. onChange runs on a watcher goroutine
// after writes settle for reloadDebounce.
func NewWatcher(path string, onChange func(*Config, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		fsw:      fsw,
		onChange: onChange,
		warning:  platform.CheckFsnotifySupport(dir),
		done:     make(chan struct{}),
	}
	if w.warning != "" {
		configLog.Warn("config_watch_unreliable", slog.String("dir", dir), slog.String("reason", w.warning))
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Warning describes why live reload may not work here, or "".
func (w *Watcher) Warning() string {
	return w.warning
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			configLog.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.fire)
}

func (w *Watcher) fire() {
	select {
	case <-w.done:
		return
	default:
	}
	ClearCache()
	cfg, err := LoadFrom(w.path)
	if err != nil {
		configLog.Warn("config_reload_failed", slog.String("error", err.Error()))
	} else {
		configLog.Info("config_reloaded", slog.String("path", w.path))
	}
	if w.onChange != nil {
		w.onChange(cfg, err)
	}
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timerMu.Unlock()
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}
