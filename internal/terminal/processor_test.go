package terminal

import (
	"bytes"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, p *Processor) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("processor did not exit")
	}
}

func TestProcessorFeedsInOrderAndExitsOnClose(t *testing.T) {
	in := make(chan []byte, 16)
	g := NewGrid(40, 4)
	p := NewProcessor(g, in, ProcessorOptions{})
	p.Start()

	for _, s := range []string{"one ", "two ", "thr", "ee"} {
		in <- []byte(s)
	}
	close(in)
	waitDone(t, p)

	assert.Equal(t, "one two three", g.Text())
	select {
	case <-p.Damage():
	default:
		t.Fatal("no final damage signal")
	}
}

func TestProcessorDamageCoversFedBytes(t *testing.T) {
	in := make(chan []byte, 4)
	g := NewGrid(40, 4)
	p := NewProcessor(g, in, ProcessorOptions{})
	p.Start()
	defer p.Stop()

	in <- []byte("visible")
	select {
	case <-p.Damage():
	case <-time.After(time.Second):
		t.Fatal("no damage signal")
	}
	assert.Equal(t, "visible", g.Text())
}

func TestProcessorStopEmitsFinalSignal(t *testing.T) {
	in := make(chan []byte)
	var calls atomic.Int32
	p := NewProcessor(NewGrid(10, 2), in, ProcessorOptions{
		IdleTimeout: 10 * time.Millisecond,
		OnDamage:    func() { calls.Add(1) },
	})
	p.Start()
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, calls.Load())

	p.Stop()
	assert.Equal(t, int32(1), calls.Load())
	p.Stop()
}

func TestProcessorThrottlesDamage(t *testing.T) {
	in := make(chan []byte, 1024)
	var calls atomic.Int32
	p := NewProcessor(NewGrid(80, 24), in, ProcessorOptions{
		FrameInterval: 50 * time.Millisecond,
		OnDamage:      func() { calls.Add(1) },
	})
	p.Start()

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		in <- []byte("x")
		time.Sleep(time.Millisecond)
	}
	close(in)
	waitDone(t, p)

	// ~300ms at one frame per 50ms, plus the burst token and the final signal.
	n := calls.Load()
	assert.GreaterOrEqual(t, n, int32(3))
	assert.LessOrEqual(t, n, int32(10))
}

func TestProcessorForwardsReplies(t *testing.T) {
	in := make(chan []byte, 1)
	replies := make(chan []byte, 1)
	p := NewProcessor(NewGrid(10, 2), in, ProcessorOptions{
		Reply: func(b []byte) { replies <- b },
	})
	p.Start()

	in <- []byte("\x1b[6n")
	close(in)
	waitDone(t, p)

	select {
	case r := <-replies:
		assert.True(t, bytes.HasPrefix(r, []byte("\x1b[")))
	default:
		// The interpreter may not answer DSR; feeding must still succeed.
	}
}

func TestProcessorRecordsBatches(t *testing.T) {
	in := make(chan []byte, 4)
	rec, path := newTestRecorder(t)
	p := NewProcessor(NewGrid(20, 2), in, ProcessorOptions{})
	p.SetRecorder(rec)
	p.Start()

	in <- []byte("rec")
	in <- []byte("orded")
	close(in)
	waitDone(t, p)
	require.NoError(t, rec.Close())

	c, err := LoadCastFile(path)
	require.NoError(t, err)
	assert.Equal(t, "recorded", c.Output())
}

// A flood of output must not keep the control goroutine from snapshotting.
func TestProcessorKeepsSnapshotsResponsive(t *testing.T) {
	in := make(chan []byte, 64)
	g := NewGrid(80, 24)
	p := NewProcessor(g, in, ProcessorOptions{})
	p.Start()

	line := []byte(strings.Repeat("0123456789", 7) + "\r\n")
	chunk := bytes.Repeat(line, 300)
	go func() {
		for range 150 {
			in <- chunk
		}
		close(in)
	}()

	var worst time.Duration
	for {
		select {
		case <-p.Done():
			assert.Less(t, worst, 250*time.Millisecond)
			return
		default:
		}
		start := time.Now()
		_, err := g.Snapshot(Viewport{})
		require.NoError(t, err)
		worst = max(worst, time.Since(start))
		time.Sleep(2 * time.Millisecond)
	}
}
