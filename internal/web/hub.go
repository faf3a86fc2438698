package web

import (
	"log/slog"
	"sync"

	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/session"
	"github.com/asheshgoplani/termdeck/internal/vterm"
)

const (
	// outputQueueSize is how many passthrough chunks a subscriber may lag
	// behind before it is disconnected. Dropping bytes would corrupt the
	// client's terminal state, so a lagging byte stream is cut instead.
	outputQueueSize = 256

	statusQueueSize    = 16
	lifecycleQueueSize = 64
)

// Subscription receives the events of one session. Grid snapshots are
// coalesced (only the latest is kept); output chunks are queued in order.
type Subscription struct {
	SessionID string

	output chan []byte
	status chan session.Event

	gridMu    sync.Mutex
	grid      *vterm.Snapshot
	gridReady chan struct{}

	exitOnce sync.Once
	exit     session.Event
	exited   chan struct{}

	lostOnce sync.Once
	lost     chan struct{}
}

func newSubscription(id string) *Subscription {
	return &Subscription{
		SessionID: id,
		output:    make(chan []byte, outputQueueSize),
		status:    make(chan session.Event, statusQueueSize),
		gridReady: make(chan struct{}, 1),
		exited:    make(chan struct{}),
		lost:      make(chan struct{}),
	}
}

// Output delivers passthrough bytes.
func (s *Subscription) Output() <-chan []byte { return s.output }

// Status delivers resize events.
func (s *Subscription) Status() <-chan session.Event { return s.status }

// GridReady signals that TakeGrid has a new snapshot.
func (s *Subscription) GridReady() <-chan struct{} { return s.gridReady }

// TakeGrid returns the latest unsent snapshot, or nil.
func (s *Subscription) TakeGrid() *vterm.Snapshot {
	s.gridMu.Lock()
	defer s.gridMu.Unlock()
	g := s.grid
	s.grid = nil
	return g
}

// Exited is closed after the session's exit event.
func (s *Subscription) Exited() <-chan struct{} { return s.exited }

// ExitEvent returns the exit event once Exited is closed.
func (s *Subscription) ExitEvent() session.Event {
	<-s.exited
	return s.exit
}

// Lost is closed when the subscriber fell too far behind the byte stream.
func (s *Subscription) Lost() <-chan struct{} { return s.lost }

func (s *Subscription) offerGrid(g *vterm.Snapshot) {
	s.gridMu.Lock()
	s.grid = g
	s.gridMu.Unlock()
	select {
	case s.gridReady <- struct{}{}:
	default:
	}
}

func (s *Subscription) markExited(e session.Event) {
	s.exitOnce.Do(func() {
		s.exit = e
		close(s.exited)
	})
}

func (s *Subscription) markLost() {
	s.lostOnce.Do(func() { close(s.lost) })
}

// Hub fans session events out to websocket subscribers and lifecycle
// watchers. It implements session.Sink; Publish never blocks.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]map[*Subscription]struct{}
	watchers map[chan session.Event]struct{}
	log      *slog.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs:     make(map[string]map[*Subscription]struct{}),
		watchers: make(map[chan session.Event]struct{}),
		log:      logging.ForComponent(logging.CompWeb),
	}
}

// Subscribe registers a subscriber for session id.
func (h *Hub) Subscribe(id string) *Subscription {
	sub := newSubscription(id)
	h.mu.Lock()
	set, ok := h.subs[id]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[id] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes sub. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[sub.SessionID]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.SessionID)
	}
}

// Subscribers returns the number of subscribers for session id.
func (h *Hub) Subscribers(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[id])
}

// Watch registers a lifecycle watcher (opened, resized, exit of every
// session). Call the returned function to stop watching.
func (h *Hub) Watch() (<-chan session.Event, func()) {
	ch := make(chan session.Event, lifecycleQueueSize)
	h.mu.Lock()
	h.watchers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.watchers, ch)
			h.mu.Unlock()
		})
	}
}

// Publish implements session.Sink.
func (h *Hub) Publish(e session.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	switch e.Type {
	case session.EventOpened, session.EventResized, session.EventExit:
		for ch := range h.watchers {
			select {
			case ch <- e:
			default:
				logging.Aggregate(logging.CompWeb, "lifecycle_event_dropped")
			}
		}
	}

	for sub := range h.subs[e.SessionID] {
		switch e.Type {
		case session.EventOutput:
			select {
			case sub.output <- e.Data:
			default:
				h.log.Warn("subscriber_lagging", slog.String("session_id", e.SessionID))
				sub.markLost()
			}
		case session.EventGrid:
			sub.offerGrid(e.Grid)
		case session.EventResized:
			select {
			case sub.status <- e:
			default:
			}
		case session.EventExit:
			sub.markExited(e)
		}
	}
}
