package pty

import (
	"os"
	"strconv"
	"syscall"
)

// ExitStatus is Running until the child is reaped, then Exited(code).
// The zero value is Running.
type ExitStatus struct {
	exited bool
	code   int
}

// Running is the status of a live child.
func Running() ExitStatus { return ExitStatus{} }

// Exited is the status of a reaped child. Signal deaths use 128+signo,
// the shell convention.
func Exited(code int) ExitStatus { return ExitStatus{exited: true, code: code} }

// IsRunning reports whether the child has not been reaped yet.
func (s ExitStatus) IsRunning() bool { return !s.exited }

// Code returns the exit code and whether the child has exited.
func (s ExitStatus) Code() (int, bool) { return s.code, s.exited }

func (s ExitStatus) String() string {
	if !s.exited {
		return "running"
	}
	return "exited(" + strconv.Itoa(s.code) + ")"
}

func statusFromState(ps *os.ProcessState) ExitStatus {
	if ps == nil {
		return Exited(-1)
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Exited(128 + int(ws.Signal()))
	}
	return Exited(ps.ExitCode())
}
