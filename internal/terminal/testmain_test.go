package terminal

import (
	"os"
	"testing"
)

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
	os.Setenv("SHELL", "/bin/sh")
	os.Setenv("ENV", "")
	os.Exit(m.Run())
}
