package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/asheshgoplani/termdeck/internal/session"
	"github.com/asheshgoplani/termdeck/internal/vterm"
)

// GridMsg carries a new snapshot of the viewed session.
type GridMsg struct {
	Snapshot vterm.Snapshot
}

// ExitMsg reports that the viewed session ended.
type ExitMsg struct {
	ExitCode int
	Reason   string
}

// Forwarder is a session.Sink that hands grid and exit events to a
// bubbletea program. Program.Send blocks until the program reads the
// message, so Publish only records the latest state and Run delivers it.
type Forwarder struct {
	mu        sync.Mutex
	sessionID string
	grid      *vterm.Snapshot
	exit      *session.Event
	wake      chan struct{}
}

// NewForwarder creates a forwarder. Until SetSession is called it accepts
// events from every session.
func NewForwarder() *Forwarder {
	return &Forwarder{wake: make(chan struct{}, 1)}
}

// SetSession restricts forwarding to one session.
func (f *Forwarder) SetSession(id string) {
	f.mu.Lock()
	f.sessionID = id
	f.mu.Unlock()
}

// Publish implements session.Sink.
func (f *Forwarder) Publish(e session.Event) {
	f.mu.Lock()
	if f.sessionID != "" && e.SessionID != f.sessionID {
		f.mu.Unlock()
		return
	}
	switch e.Type {
	case session.EventGrid:
		f.grid = e.Grid
	case session.EventExit:
		ev := e
		f.exit = &ev
	default:
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Run delivers pending updates through send until ctx is done or the exit
// has been delivered.
func (f *Forwarder) Run(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.wake:
		}

		f.mu.Lock()
		grid, exit := f.grid, f.exit
		f.grid = nil
		f.mu.Unlock()

		if grid != nil {
			send(GridMsg{Snapshot: *grid})
		}
		if exit != nil {
			send(ExitMsg{ExitCode: exit.ExitCode, Reason: exit.Reason})
			return
		}
	}
}
