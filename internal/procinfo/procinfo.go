// Package procinfo resolves the name and working directory of a process.
package procinfo

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// HomeDir is reported as the working directory when it cannot be resolved.
const HomeDir = "~"

// Info describes the process in the foreground of a terminal.
type Info struct {
	Name string `json:"name"`
	Cwd  string `json:"cwd"`
}

// Inspector looks up process attributes by pid.
type Inspector interface {
	Name(ctx context.Context, pid int) (string, error)
	// Cwd reports false when the platform cannot resolve a working directory.
	Cwd(ctx context.Context, pid int) (string, bool)
}

// Lookup resolves pid through insp. A failed name lookup yields no info; an
// unresolvable working directory is reported as HomeDir.
func Lookup(ctx context.Context, insp Inspector, pid int) (Info, bool) {
	if insp == nil || pid <= 0 {
		return Info{}, false
	}
	name, err := insp.Name(ctx, pid)
	if err != nil || name == "" {
		return Info{}, false
	}
	cwd, ok := insp.Cwd(ctx, pid)
	if !ok || cwd == "" {
		cwd = HomeDir
	}
	return Info{Name: name, Cwd: cwd}, true
}

// System reads the live process table.
type System struct {
	// Timeout bounds a single lookup. Zero means one second.
	Timeout time.Duration
}

// NewSystem returns an Inspector backed by the OS process table.
func NewSystem() *System {
	return &System{Timeout: time.Second}
}

func (s *System) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// Name returns the executable name of pid.
func (s *System) Name(ctx context.Context, pid int) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", fmt.Errorf("process %d: %w", pid, err)
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("process %d name: %w", pid, err)
	}
	return name, nil
}

// Cwd returns the working directory of pid where the platform supports it.
func (s *System) Cwd(ctx context.Context, pid int) (string, bool) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return platformCwd(ctx, pid)
}
