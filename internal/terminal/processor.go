package terminal

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/manav03panchal/humanssh/internal/logging"
)

var vtLog = logging.ForComponent(logging.CompVT)

const (
	// DefaultFrameInterval caps damage signals at roughly 60 per second.
	DefaultFrameInterval = 16 * time.Millisecond

	// DefaultIdleTimeout bounds a single wait for output.
	DefaultIdleTimeout = 100 * time.Millisecond

	batchSize = 64 * 1024
	// feedSlice bounds how long one Feed holds the grid lock.
	feedSlice = 64 * 1024
	// maxBatch stops the drain so a flood cannot starve damage signals.
	maxBatch = 1 << 20
)

// ProcessorOptions configures a Processor. Zero values take defaults.
type ProcessorOptions struct {
	FrameInterval time.Duration
	IdleTimeout   time.Duration

	// Reply receives interpreter answers (cursor reports and the like),
	// called without the grid lock held.
	Reply func([]byte)

	// OnDamage is called from the processor goroutine after each damage
	// signal. It must not block.
	OnDamage func()

	Logger *slog.Logger
}

// Processor drains a session's output channel into its grid and emits
// throttled damage signals. Every byte reaches the grid in the order it
// arrived, and a damage signal is only sent after the bytes it covers were
// fed.
type Processor struct {
	grid    *Grid
	in      <-chan []byte
	opts    ProcessorOptions
	limiter *rate.Limiter
	log     *slog.Logger

	damage  chan struct{}
	pending bool
	tap     atomic.Pointer[Recorder]

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  atomic.Bool
}

// NewProcessor builds a processor reading from in. Call Start to run it.
func NewProcessor(grid *Grid, in <-chan []byte, opts ProcessorOptions) *Processor {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	log := opts.Logger
	if log == nil {
		log = vtLog
	}
	return &Processor{
		grid:    grid,
		in:      in,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.FrameInterval), 1),
		log:     log,
		damage:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the processing goroutine. Only the first call has effect.
func (p *Processor) Start() {
	if p.started.CompareAndSwap(false, true) {
		go p.run()
	}
}

// Damage delivers coalesced "grid changed" signals.
func (p *Processor) Damage() <-chan struct{} { return p.damage }

// Done is closed when the processor has exited.
func (p *Processor) Done() <-chan struct{} { return p.done }

// Signal asks the processor to stop without waiting for it.
func (p *Processor) Signal() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Stop signals the processor and waits for it to exit.
func (p *Processor) Stop() {
	p.Signal()
	if p.started.Load() {
		<-p.done
	}
}

// SetRecorder tees every batch to r before it is fed; nil stops teeing.
func (p *Processor) SetRecorder(r *Recorder) {
	p.tap.Store(r)
}

func (p *Processor) run() {
	defer close(p.done)

	batch := make([]byte, 0, batchSize)
	timer := time.NewTimer(p.opts.IdleTimeout)
	defer timer.Stop()

	for {
		if p.pending && p.limiter.Allow() {
			p.emit()
		}
		timer.Reset(p.nextWait())

		select {
		case <-p.stop:
			p.emit()
			return

		case chunk, ok := <-p.in:
			if !ok {
				p.emit()
				return
			}
			batch = append(batch[:0], chunk...)
			closed := p.drain(&batch)
			p.feed(batch)
			p.pending = true
			if closed {
				p.emit()
				return
			}
			if cap(batch) > maxBatch {
				batch = make([]byte, 0, batchSize)
			}

		case <-timer.C:
		}
	}
}

// nextWait is the idle timeout, shortened to the next frame slot while a
// damage signal is owed.
func (p *Processor) nextWait() time.Duration {
	wait := p.opts.IdleTimeout
	if !p.pending {
		return wait
	}
	tokens := p.limiter.Tokens()
	if tokens >= 1 {
		return time.Millisecond
	}
	untilToken := time.Duration((1 - tokens) / float64(p.limiter.Limit()) * float64(time.Second))
	return max(min(wait, untilToken), time.Millisecond)
}

// drain appends every chunk already queued, up to maxBatch bytes, and
// reports whether the channel was closed.
func (p *Processor) drain(batch *[]byte) bool {
	for len(*batch) < maxBatch {
		select {
		case chunk, ok := <-p.in:
			if !ok {
				return true
			}
			*batch = append(*batch, chunk...)
		default:
			return false
		}
	}
	return false
}

func (p *Processor) feed(batch []byte) {
	if r := p.tap.Load(); r != nil {
		if err := r.Output(batch); err != nil {
			p.log.Warn("recording_write_failed", slog.String("error", err.Error()))
			p.tap.CompareAndSwap(r, nil)
		}
	}
	logging.AggregateValue(logging.CompVT, "bytes_fed", int64(len(batch)))
	for len(batch) > 0 {
		n := min(len(batch), feedSlice)
		reply := p.grid.Feed(batch[:n])
		batch = batch[n:]
		if len(reply) > 0 && p.opts.Reply != nil {
			p.opts.Reply(reply)
		}
	}
}

func (p *Processor) emit() {
	p.pending = false
	select {
	case p.damage <- struct{}{}:
	default:
		logging.Aggregate(logging.CompVT, "damage_coalesced")
	}
	if p.opts.OnDamage != nil {
		p.opts.OnDamage()
	}
}
