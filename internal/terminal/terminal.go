// Package terminal runs shell processes on pseudo-terminals and exposes
// nonblocking reads, an independent write handle, resize and liveness.
package terminal

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strings"

	"github.com/asheshgoplani/termdeck/internal/procinfo"
)

var (
	// ErrCreation is returned when the pty or the child process cannot be
	// started. Nothing is left running when it is returned.
	ErrCreation = errors.New("terminal creation failed")

	// ErrIO wraps read and write faults other than "would block".
	ErrIO = errors.New("terminal i/o failed")

	// ErrResize is returned when the pty geometry cannot be changed.
	ErrResize = errors.New("terminal resize failed")

	// ErrClosed is returned for operations on a closed session.
	ErrClosed = errors.New("terminal closed")

	// ErrUnsupported is returned on platforms without pty support.
	ErrUnsupported = errors.New("pty sessions are not supported on this platform")
)

// ReadBufferSize is the buffer size callers should pass to TryRead.
const ReadBufferSize = 8192

// Options configures Open.
type Options struct {
	Cols  int
	Rows  int
	Shell string
	Args  []string
	Dir   string
	// Env is appended to the inherited environment, before the terminal
	// variables that are always forced.
	Env []string
}

// forcedEnv is set on every child so that packaged or daemonized parents
// without a terminal environment still get a color-capable UTF-8 shell.
var forcedEnv = []string{
	"TERM=xterm-256color",
	"COLORTERM=truecolor",
	"LANG=en_US.UTF-8",
}

// Environ merges base, extra and the forced terminal variables. Later entries
// replace earlier ones with the same key.
func Environ(base, extra []string) []string {
	merged := make([]string, 0, len(base)+len(extra)+len(forcedEnv))
	index := make(map[string]int, cap(merged))
	add := func(kv string) {
		key, _, _ := strings.Cut(kv, "=")
		if i, ok := index[key]; ok {
			merged[i] = kv
			return
		}
		index[key] = len(merged)
		merged = append(merged, kv)
	}
	for _, list := range [][]string{base, extra, forcedEnv} {
		for _, kv := range list {
			add(kv)
		}
	}
	return merged
}

// DefaultShell returns $SHELL, then the first of /bin/zsh, /bin/bash and
// /bin/sh that exists. On Windows it returns %COMSPEC%.
func DefaultShell() string {
	if runtime.GOOS == "windows" {
		if c := os.Getenv("COMSPEC"); c != "" {
			return c
		}
		return "cmd.exe"
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	for _, sh := range []string{"/bin/zsh", "/bin/bash", "/bin/sh"} {
		if _, err := os.Stat(sh); err == nil {
			return sh
		}
	}
	return "/bin/sh"
}

// ForegroundProcessInfo reports the name and working directory of the
// process group in the foreground of the terminal, falling back to the shell
// itself. It never fails; a failed lookup yields false.
func (s *Session) ForegroundProcessInfo(ctx context.Context, insp procinfo.Inspector) (procinfo.Info, bool) {
	return procinfo.Lookup(ctx, insp, s.ForegroundPID())
}
