package procstatus

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/manav03panchal/humanssh/internal/platform"
)

// Prober looks up facts about a process by PID.
type Prober interface {
	Name(ctx context.Context, pid int) (string, error)
	Cwd(ctx context.Context, pid int) (string, error)
}

// DefaultProber picks /proc where it exists and ps/lsof elsewhere.
func DefaultProber() Prober {
	if platform.HasProcfs() {
		return ProcfsProber{Root: "/proc"}
	}
	return PsProber{}
}

// ProcfsProber reads /proc/<pid>/comm and /proc/<pid>/cwd.
type ProcfsProber struct {
	Root string
}

func (p ProcfsProber) Name(_ context.Context, pid int) (string, error) {
	b, err := os.ReadFile(filepath.Join(p.Root, strconv.Itoa(pid), "comm"))
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(string(b))
	if name == "" {
		return "", fmt.Errorf("pid %d: empty comm", pid)
	}
	return name, nil
}

func (p ProcfsProber) Cwd(_ context.Context, pid int) (string, error) {
	return os.Readlink(filepath.Join(p.Root, strconv.Itoa(pid), "cwd"))
}

// PsProber shells out to ps and lsof, for systems without procfs.
type PsProber struct{}

func (PsProber) Name(ctx context.Context, pid int) (string, error) {
	out, err := exec.CommandContext(ctx, "ps", "-o", "comm=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return "", fmt.Errorf("ps %d: %w", pid, err)
	}
	return parsePsComm(out)
}

func (PsProber) Cwd(ctx context.Context, pid int) (string, error) {
	out, err := exec.CommandContext(ctx, "lsof", "-a", "-p", strconv.Itoa(pid), "-d", "cwd", "-Fn").Output()
	if err != nil {
		return "", fmt.Errorf("lsof %d: %w", pid, err)
	}
	return parseLsofCwd(out)
}

// parsePsComm takes ps comm output, which may be a full path on macOS
// and may carry a leading "-" for login shells.
func parsePsComm(out []byte) (string, error) {
	line := strings.TrimSpace(string(out))
	if line == "" {
		return "", errors.New("ps: no such process")
	}
	return strings.TrimPrefix(filepath.Base(line), "-"), nil
}

// parseLsofCwd extracts the path from lsof -F output: the line tagged "n".
func parseLsofCwd(out []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "n") && len(line) > 1 {
			return line[1:], nil
		}
	}
	return "", errors.New("lsof: cwd not reported")
}
