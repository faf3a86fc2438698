// Package session runs pty-backed shell sessions: a registry of open
// sessions, the per-session update loop that feeds shell output into the
// terminal emulator, and the Manager command surface used by the display
// layer.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/asheshgoplani/termdeck/internal/procinfo"
	"github.com/asheshgoplani/termdeck/internal/statedb"
	"github.com/asheshgoplani/termdeck/internal/terminal"
)

var (
	// ErrInvalidSize is returned when cols or rows are outside [MinSize, MaxSize].
	ErrInvalidSize = errors.New("invalid terminal size")

	// ErrNoGrid is returned by Snapshot for passthrough sessions.
	ErrNoGrid = errors.New("session has no grid")

	// ErrShutdown is returned by Open after Shutdown.
	ErrShutdown = errors.New("session manager shut down")

	// Errors raised by the pty layer, re-exported for callers that only
	// import this package.
	ErrCreation = terminal.ErrCreation
	ErrIO       = terminal.ErrIO
	ErrResize   = terminal.ErrResize
)

// Size limits for Open and Resize.
const (
	MinSize = 1
	MaxSize = 1000
)

// ValidateSize checks cols and rows against the size limits.
func ValidateSize(cols, rows int) error {
	if cols < MinSize || cols > MaxSize || rows < MinSize || rows > MaxSize {
		return fmt.Errorf("%w: %dx%d (each dimension must be %d..%d)", ErrInvalidSize, cols, rows, MinSize, MaxSize)
	}
	return nil
}

// Mode selects how shell output reaches the display layer.
type Mode string

const (
	// ModeGrid interprets output and publishes grid snapshots.
	ModeGrid Mode = "grid"
	// ModePassthrough publishes raw output bytes for an external renderer.
	ModePassthrough Mode = "passthrough"
)

// ParseMode accepts "grid" or "passthrough". The empty string means grid.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeGrid:
		return ModeGrid, nil
	case ModePassthrough:
		return ModePassthrough, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// PTY is the part of a terminal session the manager and loop depend on.
// *terminal.Session implements it.
type PTY interface {
	// TryRead must never block; (0, nil) means no data right now and
	// io.EOF means the stream ended.
	TryRead(buf []byte) (int, error)
	Resize(cols, rows int) error
	IsAlive() bool
	ExitCode() int
	ForegroundProcessInfo(ctx context.Context, insp procinfo.Inspector) (procinfo.Info, bool)
	Close() error
}

// Opener starts a shell on a new pty, returning the session, its write
// handle and the shell pid.
type Opener func(terminal.Options) (PTY, io.Writer, int, error)

// SystemOpener opens real pseudo-terminals.
func SystemOpener(opts terminal.Options) (PTY, io.Writer, int, error) {
	s, w, pid, err := terminal.Open(opts)
	if err != nil {
		return nil, nil, 0, err
	}
	return s, w, pid, nil
}

// Journal records session lifecycles. *statedb.StateDB implements it.
type Journal interface {
	RecordOpen(row statedb.SessionRow) error
	RecordExit(id string, exitCode int, reason string, at time.Time) error
	RecordResize(id string, cols, rows int) error
}

// Summary describes an open session.
type Summary struct {
	ID        string    `json:"id"`
	Shell     string    `json:"shell"`
	Pid       int       `json:"pid"`
	Mode      Mode      `json:"mode"`
	Cols      int       `json:"cols"`
	Rows      int       `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
}

func summarize(c *Control) Summary {
	cols, rows := c.Size()
	return Summary{
		ID:        c.ID,
		Shell:     c.Shell,
		Pid:       c.Pid,
		Mode:      c.Mode,
		Cols:      cols,
		Rows:      rows,
		CreatedAt: c.CreatedAt,
	}
}
