package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform represents the detected platform
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWSL1    Platform = "wsl1"
	PlatformWSL2    Platform = "wsl2"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

var (
	detectOnce       sync.Once
	detectedPlatform Platform
)

// Detect returns the current platform. The result is computed once.
func Detect() Platform {
	detectOnce.Do(func() {
		detectedPlatform = detectPlatform()
	})
	return detectedPlatform
}

func detectPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
		return detectLinuxOrWSL(readProcVersion())
	default:
		return PlatformUnknown
	}
}

func readProcVersion() string {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return ""
	}
	return string(data)
}

// detectLinuxOrWSL distinguishes native Linux from WSL using the kernel
// version string. WSL2 kernels report "microsoft-standard"; WSL1 reports a
// capitalized "Microsoft" build string.
func detectLinuxOrWSL(procVersion string) Platform {
	inWSL := os.Getenv("WSL_DISTRO_NAME") != "" ||
		strings.Contains(strings.ToLower(procVersion), "microsoft")
	if !inWSL {
		return PlatformLinux
	}

	switch {
	case strings.Contains(procVersion, "microsoft-standard"):
		return PlatformWSL2
	case strings.Contains(procVersion, "Microsoft"):
		return PlatformWSL1
	}

	// /run/WSL and /dev/vsock only exist under the WSL2 VM
	if _, err := os.Stat("/run/WSL"); err == nil {
		return PlatformWSL2
	}
	if _, err := os.Stat("/dev/vsock"); err == nil {
		return PlatformWSL2
	}
	return PlatformWSL1
}

// IsWSL returns true if running in any WSL environment
func IsWSL() bool {
	p := Detect()
	return p == PlatformWSL1 || p == PlatformWSL2
}

// SupportsPTY reports whether the platform can host pseudo-terminal sessions.
// WSL1 has a working pty layer but no TIOCGPGRP on the Windows console bridge,
// so foreground process lookup falls back to the shell pid there.
func SupportsPTY() bool {
	switch Detect() {
	case PlatformMacOS, PlatformLinux, PlatformWSL1, PlatformWSL2:
		return true
	default:
		return false
	}
}

// String returns a human-readable platform name
func (p Platform) String() string {
	switch p {
	case PlatformMacOS:
		return "macOS"
	case PlatformLinux:
		return "Linux"
	case PlatformWSL1:
		return "WSL1"
	case PlatformWSL2:
		return "WSL2"
	case PlatformWindows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// FilesystemType returns the filesystem type backing path according to
// /proc/mounts (longest mountpoint prefix wins). Returns "" when unknown.
func FilesystemType(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}
	return mountFsType(string(mounts), absPath)
}

func mountFsType(mounts, absPath string) string {
	var matchedMount, matchedFsType string
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mountPoint := fields[1]
		if !strings.HasPrefix(absPath, mountPoint) {
			continue
		}
		if len(mountPoint) > len(matchedMount) {
			matchedMount = mountPoint
			matchedFsType = fields[2]
		}
	}
	return matchedFsType
}

// SupportsSQLiteWAL reports whether SQLite write-ahead logging is safe for a
// database stored under dir. WAL needs shared memory, which network and 9p
// mounts do not provide reliably.
func SupportsSQLiteWAL(dir string) bool {
	fsType := FilesystemType(dir)
	switch {
	case fsType == "9p", fsType == "nfs", fsType == "nfs4", fsType == "cifs", fsType == "smbfs":
		return false
	case strings.HasPrefix(fsType, "fuse.sshfs"):
		return false
	}
	return true
}
