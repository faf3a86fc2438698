package session

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/terminal"
)

const (
	// maxDrainPerTick caps how much output one tick consumes so a flooding
	// shell cannot starve snapshot publication.
	maxDrainPerTick = 64 * 1024

	// finalDrainReads bounds the reads made after the shell is gone.
	finalDrainReads = 16
)

// run is the update loop of one session. It keeps only the id and resolves
// the control handle from the registry on every tick, so a concurrent Close
// simply makes the next lookup fail.
func (m *Manager) run(id string) {
	defer m.loops.Done()

	log := logging.ForComponent(logging.CompLoop).With(slog.String("session_id", id))
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	buf := make([]byte, terminal.ReadBufferSize)
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		}
		if !m.step(id, buf, log) {
			return
		}
	}
}

// step runs one tick. It returns false when the loop should stop.
func (m *Manager) step(id string, buf []byte, log *slog.Logger) bool {
	c, err := m.reg.Control(id)
	if err != nil {
		return false
	}

	_, rerr := m.drain(c, buf, maxDrainPerTick)
	m.publishGrid(c)

	reason := ""
	switch {
	case rerr == nil && c.pty.IsAlive():
		return true
	case rerr == nil, errors.Is(rerr, io.EOF):
		reason = ExitReasonExited
	default:
		reason = ExitReasonError
		log.Warn("pty_read_failed", slog.String("error", rerr.Error()))
	}

	// Output written just before exit can still be buffered in the pty.
	if rerr == nil {
		for i := 0; i < finalDrainReads; i++ {
			n, err := m.drain(c, buf, maxDrainPerTick)
			if n == 0 || err != nil {
				break
			}
		}
		m.publishGrid(c)
	}

	if _, ok := m.reg.Remove(id); !ok {
		// Close got there first and reported the exit.
		return false
	}
	if err := c.pty.Close(); err != nil {
		log.Debug("pty_close_failed", slog.String("error", err.Error()))
	}
	m.finish(c, c.pty.ExitCode(), reason)
	return false
}

// drain reads available output, up to limit bytes, without blocking. In grid
// mode the bytes go to the interpreter; in passthrough mode they are
// published as one output event.
func (m *Manager) drain(c *Control, buf []byte, limit int) (int, error) {
	var out []byte
	total := 0
	var rerr error
	for total < limit {
		n, err := c.pty.TryRead(buf)
		if n > 0 {
			total += n
			if c.term != nil {
				_, _ = c.term.Write(buf[:n])
			} else {
				out = append(out, buf[:n]...)
			}
		}
		if err != nil {
			rerr = err
			break
		}
		if n == 0 {
			break
		}
	}

	if total > 0 {
		logging.AggregateN(logging.CompLoop, "pty_bytes", int64(total), slog.String("session_id", c.ID))
	}
	if len(out) > 0 {
		c.publish(m.sink, Event{Type: EventOutput, SessionID: c.ID, Time: time.Now(), Data: out})
	}
	return total, rerr
}

// publishGrid emits a snapshot if the grid changed since the last one.
func (m *Manager) publishGrid(c *Control) {
	if c.term == nil {
		return
	}
	snap, ok := c.term.TakeSnapshot()
	if !ok {
		return
	}
	c.publish(m.sink, Event{Type: EventGrid, SessionID: c.ID, Time: time.Now(), Grid: &snap})
}
