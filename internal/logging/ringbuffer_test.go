package logging

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferKeepsNewestBytes(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		writes []string
		want   string
	}{
		{"under capacity", 64, []string{"hello"}, "hello"},
		{"exact fill", 8, []string{"AA", "BB", "CC", "DD"}, "AABBCCDD"},
		{"wrap after fill", 8, []string{"AA", "BB", "CC", "DD", "EE"}, "BBCCDDEE"},
		{"wrap across end", 10, []string{"abcdefghij", "12345"}, "fghij12345"},
		{"single oversized write", 5, []string{"0123456789"}, "56789"},
		{"straddling write", 6, []string{"abcd", "wxyz"}, "cdwxyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := NewRingBuffer(tt.size)
			for _, w := range tt.writes {
				n, err := rb.Write([]byte(w))
				require.NoError(t, err)
				assert.Equal(t, len(w), n)
			}
			assert.Equal(t, tt.want, string(rb.Bytes()))
			assert.Equal(t, len(tt.want), rb.Len())
		})
	}
}

func TestRingBufferDumpToFile(t *testing.T) {
	rb := NewRingBuffer(32)
	_, _ = rb.Write([]byte("recent output"))

	path := filepath.Join(t.TempDir(), "ring.jsonl")
	require.NoError(t, rb.DumpToFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "recent output", string(data))
}

func TestRingBufferConcurrentWriters(t *testing.T) {
	rb := NewRingBuffer(1024)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_, _ = rb.Write([]byte("x"))
			}
		}()
	}
	wg.Wait()
	assert.Len(t, rb.Bytes(), 800)
}
