// Package clipboard moves text between terminal selections and the system
// clipboard, through native tools where present and OSC 52 otherwise.
package clipboard

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/manav03panchal/humanssh/internal/logging"
	"github.com/manav03panchal/humanssh/internal/platform"
)

var clipLog = logging.ForComponent(logging.CompUI)

var (
	// ErrEmpty is returned when there is nothing to copy.
	ErrEmpty = errors.New("no content to copy")

	// ErrUnavailable is returned when no clipboard mechanism works here.
	ErrUnavailable = errors.New("no clipboard method available (install pbcopy, xclip, xsel, or wl-copy)")
)

// CopyResult describes a completed copy.
type CopyResult struct {
	Method    string // pbcopy, xclip, osc52, ...
	ByteSize  int
	LineCount int
}

// tool is an external clipboard command.
type tool struct {
	name string
	args []string
}

// Hooks for tests.
var (
	lookPath = exec.LookPath
	run      = runTool
	openTTY  = func() (io.WriteCloser, error) { return os.OpenFile("/dev/tty", os.O_WRONLY, 0) }
)

// Copy puts text on the clipboard. Native tools are tried first; when none
// is available and allowOSC52 is set, the text is sent to the controlling
// terminal as an OSC 52 sequence.
func Copy(text string, allowOSC52 bool) (*CopyResult, error) {
	if text == "" {
		return nil, ErrEmpty
	}
	res := &CopyResult{ByteSize: len(text), LineCount: countLines(text)}

	for _, t := range copyTools(platform.Detect(), os.Getenv("WAYLAND_DISPLAY") != "") {
		path, err := lookPath(t.name)
		if err != nil {
			continue
		}
		if _, err := run(path, t.args, text); err != nil {
			clipLog.Debug("clipboard_tool_failed", slog.String("tool", t.name), slog.String("error", err.Error()))
			continue
		}
		res.Method = t.name
		return res, nil
	}

	if !allowOSC52 {
		return nil, ErrUnavailable
	}
	if err := copyOSC52(text); err != nil {
		return nil, fmt.Errorf("OSC 52 clipboard failed: %w", err)
	}
	res.Method = "osc52"
	return res, nil
}

// Paste reads the clipboard through the first native tool that works.
func Paste() (string, error) {
	for _, t := range pasteTools(platform.Detect(), os.Getenv("WAYLAND_DISPLAY") != "") {
		path, err := lookPath(t.name)
		if err != nil {
			continue
		}
		out, err := run(path, t.args, "")
		if err != nil {
			clipLog.Debug("clipboard_tool_failed", slog.String("tool", t.name), slog.String("error", err.Error()))
			continue
		}
		if t.name == "powershell.exe" {
			out = strings.ReplaceAll(out, "\r\n", "\n")
			out = strings.TrimSuffix(out, "\n")
		}
		return out, nil
	}
	return "", ErrUnavailable
}

func copyTools(p platform.Platform, wayland bool) []tool {
	switch p {
	case platform.MacOS:
		return []tool{{name: "pbcopy"}}
	case platform.WSL1, platform.WSL2:
		return []tool{{name: "clip.exe"}}
	case platform.Linux:
		var tools []tool
		if wayland {
			tools = append(tools, tool{name: "wl-copy"})
		}
		return append(tools,
			tool{name: "xclip", args: []string{"-selection", "clipboard"}},
			tool{name: "xsel", args: []string{"--clipboard", "--input"}},
		)
	default:
		return nil
	}
}

func pasteTools(p platform.Platform, wayland bool) []tool {
	switch p {
	case platform.MacOS:
		return []tool{{name: "pbpaste"}}
	case platform.WSL1, platform.WSL2:
		return []tool{{name: "powershell.exe", args: []string{"-NoProfile", "-Command", "Get-Clipboard"}}}
	case platform.Linux:
		var tools []tool
		if wayland {
			tools = append(tools, tool{name: "wl-paste", args: []string{"--no-newline"}})
		}
		return append(tools,
			tool{name: "xclip", args: []string{"-selection", "clipboard", "-o"}},
			tool{name: "xsel", args: []string{"--clipboard", "--output"}},
		)
	default:
		return nil
	}
}

func runTool(path string, args []string, stdin string) (string, error) {
	cmd := exec.Command(path, args...)
	cmd.Stdin = strings.NewReader(stdin)
	var out bytes.Buffer
	cmd.Stdout = &out
	err := cmd.Run()
	return out.String(), err
}

// copyOSC52 writes the sequence to /dev/tty so it reaches the outer
// terminal even while stdout belongs to the renderer.
func copyOSC52(text string) error {
	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	seq := generateOSC52(encoded, os.Getenv("TMUX") != "")

	tty, err := openTTY()
	if err != nil {
		return fmt.Errorf("cannot open /dev/tty: %w", err)
	}
	defer tty.Close()

	_, err = io.WriteString(tty, seq)
	return err
}

// generateOSC52 builds the OSC 52 sequence, wrapped in a DCS passthrough
// when running inside tmux.
func generateOSC52(base64Content string, inTmux bool) string {
	osc := "\x1b]52;c;" + base64Content + "\x07"
	if inTmux {
		return "\x1bPtmux;\x1b" + osc + "\x1b\\"
	}
	return osc
}

// countLines counts lines; a trailing newline does not start a new one.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
