// Package pty supervises a shell bound to a pseudo-terminal. It spawns the
// shell, pumps its output into a bounded channel, queues input, and tears
// the child down in a fixed order.
package pty

import (
	"errors"
	"fmt"
)

var (
	// ErrUntrustedShell is returned when the requested shell is not an
	// absolute path to an allow-listed interactive shell.
	ErrUntrustedShell = errors.New("shell not in allow-list")

	// ErrShellNotFound is returned when the shell path does not exist.
	ErrShellNotFound = errors.New("shell not found")

	// ErrClosed is returned by operations on a closed Process.
	ErrClosed = errors.New("pty closed")

	// ErrInvalidSize is returned for non-positive terminal dimensions.
	ErrInvalidSize = errors.New("invalid terminal size")
)

// SpawnError reports an OS failure while starting the child.
type SpawnError struct {
	Shell string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Shell, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// WriteError is the sticky failure of the input writer. Every Write after
// the first failure returns it.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("pty write: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
