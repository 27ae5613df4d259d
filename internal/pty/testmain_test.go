package pty

import (
	"os"
	"testing"
)

// skipIfNoPTY skips tests that need a real pseudo-terminal and /bin/sh,
// which sandboxed CI runners do not always provide.
func skipIfNoPTY(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skip("no /dev/ptmx")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
}

func TestMain(m *testing.M) {
	// Keep spawned shells from sourcing the developer's rc files.
	os.Setenv("SHELL", "/bin/sh")
	os.Setenv("ENV", "")
	os.Exit(m.Run())
}
