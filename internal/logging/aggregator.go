package logging

import (
	"log/slog"
	"sync"
	"time"
)

// counterKey identifies one batched event stream.
type counterKey struct {
	component string
	event     string
}

// counter accumulates occurrences and an optional observed quantity
// (bytes drained, milliseconds stalled) between flushes.
type counter struct {
	hits  int64
	sum   int64
	max   int64
	attrs []slog.Attr
}

// Aggregator turns per-chunk and per-frame events into periodic summary
// records so the hot paths never log on every iteration.
type Aggregator struct {
	logger *slog.Logger
	every  time.Duration

	mu       sync.Mutex
	counters map[counterKey]*counter

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewAggregator creates an aggregator that flushes every intervalSecs seconds.
// A nil logger discards everything.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &Aggregator{
		logger:   logger,
		every:    time.Duration(intervalSecs) * time.Second,
		counters: make(map[counterKey]*counter),
		stop:     make(chan struct{}),
	}
}

// Start launches the flush loop.
func (a *Aggregator) Start() {
	a.wg.Add(1)
	go a.loop()
}

// Stop ends the flush loop and emits whatever is still pending. Safe to call twice.
func (a *Aggregator) Stop() {
	a.once.Do(func() { close(a.stop) })
	a.wg.Wait()
	a.flush()
}

// Record counts one occurrence of event. The attrs of the latest call are
// attached to the summary.
func (a *Aggregator) Record(component, event string, attrs ...slog.Attr) {
	a.Observe(component, event, 0, attrs...)
}

// Observe counts one occurrence of event carrying quantity n; the summary
// reports the total and the largest single value.
func (a *Aggregator) Observe(component, event string, n int64, attrs ...slog.Attr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := counterKey{component: component, event: event}
	c := a.counters[k]
	if c == nil {
		c = &counter{}
		a.counters[k] = c
	}
	c.hits++
	c.sum += n
	if n > c.max {
		c.max = n
	}
	if len(attrs) > 0 {
		c.attrs = attrs
	}
}

func (a *Aggregator) loop() {
	defer a.wg.Done()
	t := time.NewTicker(a.every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			a.flush()
		case <-a.stop:
			return
		}
	}
}

func (a *Aggregator) flush() {
	a.mu.Lock()
	if len(a.counters) == 0 {
		a.mu.Unlock()
		return
	}
	pending := a.counters
	a.counters = make(map[counterKey]*counter)
	a.mu.Unlock()

	if a.logger == nil {
		return
	}
	for k, c := range pending {
		args := []any{
			slog.String("component", k.component),
			slog.String("event", k.event),
			slog.Int64("count", c.hits),
			slog.Int("window_seconds", int(a.every.Seconds())),
		}
		if c.sum > 0 {
			args = append(args, slog.Int64("total", c.sum), slog.Int64("max", c.max))
		}
		for _, attr := range c.attrs {
			args = append(args, attr)
		}
		a.logger.Info("event_summary", args...)
	}
}
