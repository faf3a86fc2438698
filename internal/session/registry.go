package session

import (
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asheshgoplani/termdeck/internal/vterm"
)

// ErrNotFound is returned for operations on an unknown or removed session.
var ErrNotFound = errors.New("session not found")

// Control is the registry entry used for everything except writing: resize,
// liveness, grid access and teardown.
type Control struct {
	ID        string
	Shell     string
	Pid       int
	Mode      Mode
	CreatedAt time.Time

	pty  PTY
	term *vterm.Terminal // nil in passthrough mode

	mu   sync.Mutex
	cols int
	rows int

	// pub serializes the session's events; once ended is set (with the
	// exit event) nothing more is published.
	pub   sync.Mutex
	ended bool
}

// publish delivers e unless the session has already reported its exit.
func (c *Control) publish(sink Sink, e Event) {
	c.pub.Lock()
	defer c.pub.Unlock()
	if !c.ended {
		sink.Publish(e)
	}
}

// end delivers the exit event and closes the session's event stream.
func (c *Control) end(sink Sink, e Event) {
	c.pub.Lock()
	defer c.pub.Unlock()
	c.ended = true
	sink.Publish(e)
}

// Size returns the last size applied to the session.
func (c *Control) Size() (cols, rows int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cols, c.rows
}

func (c *Control) setSize(cols, rows int) {
	c.mu.Lock()
	c.cols, c.rows = cols, rows
	c.mu.Unlock()
}

// Registry maps session ids to their control and write handles. Every method
// holds the lock only long enough to read or update the maps; callers do I/O
// on the returned handles after the lock is released.
type Registry struct {
	mu       sync.RWMutex
	controls map[string]*Control
	writers  map[string]io.Writer
	newID    func() string
}

// NewRegistry returns an empty registry that issues random UUIDs.
func NewRegistry() *Registry {
	return &Registry{
		controls: make(map[string]*Control),
		writers:  make(map[string]io.Writer),
		newID:    uuid.NewString,
	}
}

// Create registers c and w under a fresh id, stores the id in c.ID and
// returns it. Ids are never reused while a session holds them.
func (r *Registry) Create(c *Control, w io.Writer) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.newID()
	for {
		if _, taken := r.controls[id]; !taken {
			break
		}
		id = r.newID()
	}
	c.ID = id
	r.controls[id] = c
	r.writers[id] = w
	return id
}

// Writer returns the write handle for id.
func (r *Registry) Writer(id string) (io.Writer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.writers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return w, nil
}

// Control returns the control handle for id.
func (r *Registry) Control(id string) (*Control, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controls[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// Remove drops both handles for id and returns the control handle. Later
// lookups of id fail with ErrNotFound.
func (r *Registry) Remove(id string) (*Control, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controls[id]
	delete(r.controls, id)
	delete(r.writers, id)
	return c, ok
}

// Controls returns the registered sessions, oldest first.
func (r *Registry) Controls() []*Control {
	r.mu.RLock()
	out := make([]*Control, 0, len(r.controls))
	for _, c := range r.controls {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IDs returns the registered session ids, oldest first.
func (r *Registry) IDs() []string {
	controls := r.Controls()
	ids := make([]string, len(controls))
	for i, c := range controls {
		ids[i] = c.ID
	}
	return ids
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.controls)
}
