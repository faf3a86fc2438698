package session

import (
	"time"

	"github.com/asheshgoplani/termdeck/internal/vterm"
)

// EventType identifies what an Event carries.
type EventType string

const (
	// EventOpened is published once a session is registered.
	EventOpened EventType = "opened"

	// EventOutput carries raw pty bytes (passthrough mode).
	EventOutput EventType = "output"

	// EventGrid carries a grid snapshot (grid mode).
	EventGrid EventType = "grid"

	// EventResized is published after a successful resize.
	EventResized EventType = "resized"

	// EventExit is the last event of a session.
	EventExit EventType = "exit"
)

// Exit reasons carried by EventExit.
const (
	ExitReasonExited = "exited" // the shell terminated
	ExitReasonClosed = "closed" // Close was called
	ExitReasonError  = "error"  // reading the pty failed
)

// Event is a per-session notification for the display layer.
type Event struct {
	Type      EventType
	SessionID string
	Time      time.Time

	// Data is set for EventOutput. Receivers must not modify it.
	Data []byte

	// Grid is set for EventGrid.
	Grid *vterm.Snapshot

	// Cols and Rows are set for EventOpened and EventResized.
	Cols int
	Rows int

	// ExitCode and Reason are set for EventExit. ExitCode is -1 when the
	// shell was killed by a signal or is still being torn down.
	ExitCode int
	Reason   string
}

// Sink receives session events. Publish is called from the update loop and
// must not block.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Publish calls f(e).
func (f SinkFunc) Publish(e Event) { f(e) }

// MultiSink publishes every event to each sink in order.
type MultiSink []Sink

// Publish implements Sink.
func (m MultiSink) Publish(e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(e)
		}
	}
}

type discardSink struct{}

func (discardSink) Publish(Event) {}
