// Package procstatus answers "what is running in this terminal?" for tab
// labels and close confirmation without ever blocking the caller. Answers
// come from a TTL cache that refreshes itself in the background.
package procstatus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/manav03panchal/humanssh/internal/logging"
)

var statusLog = logging.ForComponent(logging.CompStatus)

const (
	// DefaultTTL is how long a probe result is served before a refresh.
	DefaultTTL = 500 * time.Millisecond

	// Placeholder is returned before the first probe completes.
	Placeholder = "…"

	probeTimeout = 2 * time.Second
)

// Source is a terminal whose foreground process can be inspected.
type Source interface {
	// PID of the shell.
	PID() int
	// ForegroundPGID is the process group owning the terminal.
	ForegroundPGID() (int, error)
}

// Status is the last probe result for one terminal.
type Status struct {
	// PID of the foreground process group leader.
	PID  int
	Name string
	// Cwd is the foreground process's working directory, or the shell's
	// when that cannot be read.
	Cwd string
	// HasChildren is true when something other than the shell owns the
	// terminal, e.g. a running build or an editor.
	HasChildren bool
	Checked     time.Time
}

// Cache maps terminal keys to their latest Status.
type Cache struct {
	ttl    time.Duration
	prober Prober
	now    func() time.Time

	mu       sync.RWMutex
	entries  map[string]*Status
	inflight map[string]*flight
	closed   bool

	sf     singleflight.Group
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// flight identifies one background probe of a key.
type flight struct{}

// New creates a cache. A nil prober means DefaultProber().
func New(ttl time.Duration, prober Prober) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prober == nil {
		prober = DefaultProber()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		ttl:     ttl,
		prober:  prober,
		now:     time.Now,
		entries:  make(map[string]*Status),
		inflight: make(map[string]*flight),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ForegroundProcessName returns the cached foreground process name for key,
// or Placeholder before the first probe lands. It never blocks; a stale
// entry schedules a refresh.
func (c *Cache) ForegroundProcessName(key string, src Source) string {
	st, _ := c.Status(key, src)
	if st.Name == "" {
		return Placeholder
	}
	return st.Name
}

// Status returns the cached status and whether a probe has completed. Like
// ForegroundProcessName it never blocks.
func (c *Cache) Status(key string, src Source) (Status, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	var st Status
	if ok {
		st = *entry
	}
	c.mu.RUnlock()

	if !ok {
		c.mu.Lock()
		if _, exists := c.entries[key]; !exists && !c.closed {
			c.entries[key] = &Status{}
		}
		c.mu.Unlock()
	}

	if st.Checked.IsZero() || c.now().Sub(st.Checked) >= c.ttl {
		c.refresh(key, src)
	}
	return st, !st.Checked.IsZero()
}

// refresh probes src in the background. At most one probe and one waiter
// run per key; callers arriving while one is in flight return at once.
func (c *Cache) refresh(key string, src Source) {
	c.mu.Lock()
	if c.closed || c.inflight[key] != nil {
		c.mu.Unlock()
		return
	}
	f := &flight{}
	c.inflight[key] = f
	c.wg.Add(1)
	c.mu.Unlock()

	ch := c.sf.DoChan(key, func() (any, error) {
		st := c.probe(src)
		c.mu.Lock()
		if c.inflight[key] == f && !c.closed {
			c.entries[key] = &st
		}
		c.mu.Unlock()
		return st, nil
	})
	go func() {
		defer c.wg.Done()
		<-ch
		c.mu.Lock()
		if c.inflight[key] == f {
			delete(c.inflight, key)
		}
		c.mu.Unlock()
	}()
}

func (c *Cache) probe(src Source) Status {
	ctx, cancel := context.WithTimeout(c.ctx, probeTimeout)
	defer cancel()

	shell := src.PID()
	fg, err := src.ForegroundPGID()
	if err != nil || fg <= 0 {
		fg = shell
	}

	st := Status{PID: fg, HasChildren: fg != shell, Checked: c.now()}
	if name, err := c.prober.Name(ctx, fg); err == nil {
		st.Name = name
	} else if fg != shell {
		// The group leader may already be gone (pipelines); fall back to
		// the shell.
		statusLog.Debug("probe_name_failed", slog.Int("pid", fg), slog.String("error", err.Error()))
		if name, err := c.prober.Name(ctx, shell); err == nil {
			st.Name = name
		}
	}
	if cwd, err := c.prober.Cwd(ctx, fg); err == nil {
		st.Cwd = cwd
	} else if fg != shell {
		if cwd, err := c.prober.Cwd(ctx, shell); err == nil {
			st.Cwd = cwd
		}
	}
	return st
}

// Forget drops key; an in-flight probe for it is discarded.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	delete(c.inflight, key)
	c.mu.Unlock()
	c.sf.Forget(key)
}

// Close cancels in-flight probes and waits for them to finish.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}
