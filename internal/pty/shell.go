package pty

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/manav03panchal/humanssh/internal/logging"
)

var ptyLog = logging.ForComponent(logging.CompPTY)

// trustedShells are the interactive shells we are willing to spawn.
var trustedShells = map[string]bool{
	"/bin/sh":   true,
	"/bin/bash": true,
	"/bin/zsh":  true,
	"/bin/fish": true,
	"/bin/dash": true,
	"/bin/ksh":  true,
	"/bin/tcsh": true,
	"/bin/csh":  true,

	"/usr/bin/sh":   true,
	"/usr/bin/bash": true,
	"/usr/bin/zsh":  true,
	"/usr/bin/fish": true,
	"/usr/bin/dash": true,
	"/usr/bin/ksh":  true,
	"/usr/bin/tcsh": true,
	"/usr/bin/csh":  true,

	"/usr/local/bin/bash": true,
	"/usr/local/bin/zsh":  true,
	"/usr/local/bin/fish": true,

	"/opt/homebrew/bin/bash": true,
	"/opt/homebrew/bin/zsh":  true,
	"/opt/homebrew/bin/fish": true,

	"/run/current-system/sw/bin/bash": true,
	"/run/current-system/sw/bin/zsh":  true,
	"/run/current-system/sw/bin/fish": true,
}

// FallbackShell is used when neither config nor $SHELL names a usable shell.
const FallbackShell = "/bin/sh"

// ValidateShell checks path against the allow-list plus extra and returns
// the cleaned path. A path outside the list is accepted when it is a
// symlink whose target has the base name of a trusted shell (Nix and
// Homebrew install shells this way).
func ValidateShell(path string, extra []string) (string, error) {
	if path == "" || !filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %q is not an absolute path", ErrUntrustedShell, path)
	}
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrShellNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("stat shell %s: %w", path, err)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("%w: %s is not executable", ErrUntrustedShell, path)
	}

	allowed := allowSet(extra)
	if allowed[path] {
		return path, nil
	}

	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUntrustedShell, path)
	}
	if target != path && trustedBase(filepath.Base(target), allowed) {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUntrustedShell, path)
}

// ResolveShell picks the shell for a new session: configured, then $SHELL,
// then FallbackShell. Candidates that fail validation are skipped.
func ResolveShell(configured string, extra []string) string {
	for _, candidate := range []string{configured, os.Getenv("SHELL")} {
		if candidate == "" {
			continue
		}
		if shell, err := ValidateShell(candidate, extra); err == nil {
			return shell
		}
		ptyLog.Warn("shell_rejected", "shell", candidate)
	}
	return FallbackShell
}

func allowSet(extra []string) map[string]bool {
	set := make(map[string]bool, len(trustedShells)+len(extra))
	for p := range trustedShells {
		set[p] = true
	}
	for _, p := range extra {
		if filepath.IsAbs(p) {
			set[filepath.Clean(p)] = true
		}
	}
	return set
}

func trustedBase(base string, allowed map[string]bool) bool {
	for p := range allowed {
		if filepath.Base(p) == base {
			return true
		}
	}
	return false
}
