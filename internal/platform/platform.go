// Package platform answers the handful of OS questions the session engine
// cares about: where process information lives, which directories belong on
// a spawned shell's PATH, and whether file watching can be trusted.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform identifies the host OS flavour.
type Platform string

const (
	MacOS   Platform = "macos"
	Linux   Platform = "linux"
	WSL1    Platform = "wsl1"
	WSL2    Platform = "wsl2"
	Windows Platform = "windows"
	Unknown Platform = "unknown"
)

var (
	detectOnce sync.Once
	detected   Platform
)

// Detect returns the current platform. The result is computed once.
func Detect() Platform {
	detectOnce.Do(func() {
		detected = classify(runtime.GOOS, os.Getenv("WSL_DISTRO_NAME"), readProcVersion())
	})
	return detected
}

func readProcVersion() string {
	b, err := os.ReadFile("/proc/version")
	if err != nil {
		return ""
	}
	return string(b)
}

// classify maps GOOS plus WSL hints to a Platform. WSL2 kernels report
// "microsoft-standard"; WSL1 reports a capitalised "Microsoft".
func classify(goos, distro, procVersion string) Platform {
	switch goos {
	case "darwin":
		return MacOS
	case "windows":
		return Windows
	case "linux":
	default:
		return Unknown
	}

	wsl := distro != "" || strings.Contains(strings.ToLower(procVersion), "microsoft")
	if !wsl {
		return Linux
	}
	if strings.Contains(procVersion, "microsoft-standard") {
		return WSL2
	}
	if strings.Contains(procVersion, "Microsoft") {
		return WSL1
	}
	if _, err := os.Stat("/run/WSL"); err == nil {
		return WSL2
	}
	return WSL1
}

// IsWSL reports whether we run under either WSL generation.
func IsWSL() bool {
	p := Detect()
	return p == WSL1 || p == WSL2
}

// HasProcfs reports whether process name and cwd can be read from /proc.
// Linux and WSL expose it; macOS needs ps and lsof instead.
func HasProcfs() bool {
	switch Detect() {
	case Linux, WSL1, WSL2:
		return true
	default:
		return false
	}
}

// String returns a display name.
func (p Platform) String() string {
	switch p {
	case MacOS:
		return "macOS"
	case Linux:
		return "Linux"
	case WSL1:
		return "WSL1"
	case WSL2:
		return "WSL2"
	case Windows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// ExtraPathDirs lists directories a GUI-launched process often lacks on
// PATH but a login shell expects (Homebrew on macOS, /usr/local elsewhere).
func ExtraPathDirs() []string {
	if Detect() == MacOS {
		return []string{"/opt/homebrew/bin", "/opt/homebrew/sbin", "/usr/local/bin"}
	}
	return []string{"/usr/local/bin"}
}

// AugmentPath appends each of extra to the PATH value current unless it is
// already present. Order of current entries is preserved.
func AugmentPath(current string, extra []string) string {
	seen := make(map[string]bool)
	var parts []string
	for _, p := range filepath.SplitList(current) {
		if p == "" {
			continue
		}
		seen[p] = true
		parts = append(parts, p)
	}
	for _, p := range extra {
		if !seen[p] {
			seen[p] = true
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, string(os.PathListSeparator))
}

// CheckFsnotifySupport returns a warning when path sits on a filesystem whose
// change notifications are unreliable (9p, NFS, CIFS, SSHFS), or "" when
// watching should work.
func CheckFsnotifySupport(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}
	return fsWarning(mountFsType(string(mounts), abs))
}

// mountFsType finds the filesystem type of the longest mount point
// containing abs in a /proc/mounts style table.
func mountFsType(table, abs string) string {
	var best, fsType string
	for _, line := range strings.Split(table, "\n") {
		f := strings.Fields(line)
		if len(f) < 3 {
			continue
		}
		if strings.HasPrefix(abs, f[1]) && len(f[1]) > len(best) {
			best, fsType = f[1], f[2]
		}
	}
	return fsType
}

func fsWarning(fsType string) string {
	switch {
	case fsType == "9p":
		return "config on 9p mount (WSL2 Windows filesystem): live reload disabled"
	case fsType == "nfs" || fsType == "nfs4":
		return "config on NFS mount: live reload may miss changes"
	case fsType == "cifs" || fsType == "smbfs":
		return "config on CIFS/SMB mount: live reload may miss changes"
	case strings.HasPrefix(fsType, "fuse.sshfs"):
		return "config on SSHFS mount: live reload disabled"
	}
	return ""
}
