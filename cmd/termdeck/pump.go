package main

import (
	"io"
	"sync"

	"github.com/asheshgoplani/termdeck/internal/session"
)

// outputPump is a session.Sink that copies one session's passthrough output
// to a writer from its own goroutine, so Publish never waits on the writer.
type outputPump struct {
	mu        sync.Mutex
	sessionID string
	pending   []byte
	exit      *session.Event
	wake      chan struct{}
	done      chan struct{}
}

func newOutputPump() *outputPump {
	return &outputPump{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// SetSession restricts the pump to one session.
func (p *outputPump) SetSession(id string) {
	p.mu.Lock()
	p.sessionID = id
	p.mu.Unlock()
}

// Publish implements session.Sink.
func (p *outputPump) Publish(e session.Event) {
	p.mu.Lock()
	if p.sessionID != "" && e.SessionID != p.sessionID {
		p.mu.Unlock()
		return
	}
	switch e.Type {
	case session.EventOutput:
		p.pending = append(p.pending, e.Data...)
	case session.EventExit:
		ev := e
		p.exit = &ev
	default:
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run writes output to w until the session exits and everything published
// before the exit has been written. Write errors drop output but keep the
// pump running so the exit is still observed.
func (p *outputPump) Run(w io.Writer) {
	defer close(p.done)
	for range p.wake {
		p.mu.Lock()
		data, exit := p.pending, p.exit
		p.pending = nil
		p.mu.Unlock()

		if len(data) > 0 {
			_, _ = w.Write(data)
		}
		if exit != nil {
			return
		}
	}
}

// Done is closed once Run has returned.
func (p *outputPump) Done() <-chan struct{} { return p.done }

// Exit returns the exit event, if one was published.
func (p *outputPump) Exit() (session.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exit == nil {
		return session.Event{}, false
	}
	return *p.exit, true
}
