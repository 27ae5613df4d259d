package terminal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Event kinds in an asciinema v2 stream.
const (
	EventOutput = "o"
	EventInput  = "i"
	EventResize = "r"
)

// CastHeader is the first line of a .cast file.
type CastHeader struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp,omitempty"`
	Title     string            `json:"title,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// CastEvent is one [time, kind, data] line.
type CastEvent struct {
	Time float64
	Kind string
	Data string
}

func (e CastEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Time, e.Kind, e.Data})
}

func (e *CastEvent) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("cast event: want 3 fields, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.Time); err != nil {
		return fmt.Errorf("cast event time: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.Kind); err != nil {
		return fmt.Errorf("cast event kind: %w", err)
	}
	if err := json.Unmarshal(raw[2], &e.Data); err != nil {
		return fmt.Errorf("cast event data: %w", err)
	}
	return nil
}

// Cast is a parsed recording.
type Cast struct {
	Header CastHeader
	Events []CastEvent
}

// Output concatenates every output event.
func (c *Cast) Output() string {
	var n int
	for _, ev := range c.Events {
		if ev.Kind == EventOutput {
			n += len(ev.Data)
		}
	}
	b := make([]byte, 0, n)
	for _, ev := range c.Events {
		if ev.Kind == EventOutput {
			b = append(b, ev.Data...)
		}
	}
	return string(b)
}

// LoadCast parses an asciinema v2 stream.
func LoadCast(r io.Reader) (*Cast, error) {
	dec := json.NewDecoder(r)
	var c Cast
	if err := dec.Decode(&c.Header); err != nil {
		return nil, fmt.Errorf("cast header: %w", err)
	}
	if c.Header.Version != 2 {
		return nil, fmt.Errorf("cast version %d not supported", c.Header.Version)
	}
	for {
		var ev CastEvent
		err := dec.Decode(&ev)
		if errors.Is(err, io.EOF) {
			return &c, nil
		}
		if err != nil {
			return nil, fmt.Errorf("cast event %d: %w", len(c.Events)+1, err)
		}
		c.Events = append(c.Events, ev)
	}
}

// LoadCastFile reads a .cast file from disk.
func LoadCastFile(path string) (*Cast, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCast(f)
}

// Recorder writes session output to an asciinema v2 file. Methods are safe
// for concurrent use; writes after Close are ignored.
type Recorder struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	enc    *json.Encoder
	path   string
	start  time.Time
	carry  []byte
	closed bool
}

// NewRecorder creates path and writes the header.
func NewRecorder(path string, cols, rows int, env map[string]string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	w := bufio.NewWriter(f)
	r := &Recorder{f: f, w: w, enc: json.NewEncoder(w), path: path, start: time.Now()}
	r.enc.SetEscapeHTML(false)

	hdr := CastHeader{Version: 2, Width: cols, Height: rows, Timestamp: r.start.Unix(), Env: env}
	if err := r.enc.Encode(hdr); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write recording header: %w", err)
	}
	return r, nil
}

// Path of the .cast file.
func (r *Recorder) Path() string { return r.path }

// Output records b as an output event. A partial UTF-8 sequence at the end
// is held back so events always carry whole characters.
func (r *Recorder) Output(b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if len(r.carry) > 0 {
		b = append(r.carry, b...)
		r.carry = nil
	}
	complete, tail := splitIncomplete(b)
	if len(tail) > 0 {
		r.carry = append([]byte(nil), tail...)
	}
	if len(complete) == 0 {
		return nil
	}
	return r.writeLocked(EventOutput, toValidUTF8(complete))
}

// Resize records a terminal size change.
func (r *Recorder) Resize(cols, rows int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.writeLocked(EventResize, strconv.Itoa(cols)+"x"+strconv.Itoa(rows))
}

func (r *Recorder) writeLocked(kind, data string) error {
	ev := CastEvent{Time: time.Since(r.start).Seconds(), Kind: kind, Data: data}
	return r.enc.Encode(ev)
}

// Close flushes and closes the file. Safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if len(r.carry) > 0 {
		_ = r.writeLocked(EventOutput, toValidUTF8(r.carry))
		r.carry = nil
	}
	flushErr := r.w.Flush()
	closeErr := r.f.Close()
	if flushErr != nil {
		return fmt.Errorf("flush recording: %w", flushErr)
	}
	return closeErr
}

func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
