package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/asheshgoplani/termdeck/internal/procinfo"
	"github.com/asheshgoplani/termdeck/internal/session"
	"github.com/asheshgoplani/termdeck/internal/statedb"
	"github.com/asheshgoplani/termdeck/internal/vterm"
)

// fakeSessions is an in-memory Sessions that publishes lifecycle events to
// a hub the way session.Manager does.
type fakeSessions struct {
	mu        sync.Mutex
	hub       *Hub
	nextID    int
	sessions  map[string]session.Summary
	snapshots map[string]vterm.Snapshot
	written   map[string][]byte
	info      map[string]procinfo.Info
	lastOpen  session.OpenRequest
	openErr   error
}

func newFakeSessions(hub *Hub) *fakeSessions {
	return &fakeSessions{
		hub:       hub,
		sessions:  make(map[string]session.Summary),
		snapshots: make(map[string]vterm.Snapshot),
		written:   make(map[string][]byte),
		info:      make(map[string]procinfo.Info),
	}
}

func (f *fakeSessions) add(mode session.Mode, cols, rows int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("sess-%d", f.nextID)
	f.sessions[id] = session.Summary{
		ID:        id,
		Shell:     "/bin/sh",
		Pid:       4000 + f.nextID,
		Mode:      mode,
		Cols:      cols,
		Rows:      rows,
		CreatedAt: time.Unix(int64(1700000000+f.nextID), 0),
	}
	if mode == session.ModeGrid {
		g := vterm.NewGrid(cols, rows, vterm.DarkPalette())
		f.snapshots[id] = g.Snapshot()
	}
	return id
}

func (f *fakeSessions) Open(ctx context.Context, req session.OpenRequest) (string, error) {
	if err := session.ValidateSize(req.Cols, req.Rows); err != nil {
		return "", err
	}
	if f.openErr != nil {
		return "", f.openErr
	}
	mode := req.Mode
	if mode == "" {
		mode = session.ModeGrid
	}
	f.mu.Lock()
	f.lastOpen = req
	f.mu.Unlock()
	id := f.add(mode, req.Cols, req.Rows)
	f.hub.Publish(session.Event{Type: session.EventOpened, SessionID: id, Time: time.Now(), Cols: req.Cols, Rows: req.Rows})
	return id, nil
}

func (f *fakeSessions) Write(id string, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return session.ErrNotFound
	}
	f.written[id] = append(f.written[id], p...)
	return nil
}

func (f *fakeSessions) writtenTo(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.written[id])
}

func (f *fakeSessions) Resize(id string, cols, rows int) error {
	if err := session.ValidateSize(cols, rows); err != nil {
		return err
	}
	f.mu.Lock()
	sum, ok := f.sessions[id]
	if ok {
		sum.Cols, sum.Rows = cols, rows
		f.sessions[id] = sum
	}
	f.mu.Unlock()
	if !ok {
		return session.ErrNotFound
	}
	f.hub.Publish(session.Event{Type: session.EventResized, SessionID: id, Time: time.Now(), Cols: cols, Rows: rows})
	return nil
}

func (f *fakeSessions) Close(id string) error {
	f.mu.Lock()
	_, ok := f.sessions[id]
	delete(f.sessions, id)
	f.mu.Unlock()
	if ok {
		f.hub.Publish(session.Event{Type: session.EventExit, SessionID: id, Time: time.Now(), ExitCode: -1, Reason: session.ExitReasonClosed})
	}
	return nil
}

func (f *fakeSessions) ProcessInfo(_ context.Context, id string) (procinfo.Info, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.info[id]
	return info, ok
}

func (f *fakeSessions) Snapshot(id string) (vterm.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum, ok := f.sessions[id]
	if !ok {
		return vterm.Snapshot{}, session.ErrNotFound
	}
	if sum.Mode != session.ModeGrid {
		return vterm.Snapshot{}, session.ErrNoGrid
	}
	return f.snapshots[id], nil
}

func (f *fakeSessions) Get(id string) (session.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum, ok := f.sessions[id]
	if !ok {
		return session.Summary{}, session.ErrNotFound
	}
	return sum, nil
}

func (f *fakeSessions) Sessions() []session.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]session.Summary, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out
}

type fakeHistory struct {
	rows  []*statedb.SessionRow
	err   error
	limit int
}

func (h *fakeHistory) ListSessions(limit int) ([]*statedb.SessionRow, error) {
	h.limit = limit
	if h.err != nil {
		return nil, h.err
	}
	if limit < len(h.rows) {
		return h.rows[:limit], nil
	}
	return h.rows, nil
}

// newTestServer builds a server over fakes.
func newTestServer(cfg Config) (*Server, *fakeSessions, *Hub) {
	hub := NewHub()
	sessions := newFakeSessions(hub)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	return NewServer(cfg, sessions, hub, nil), sessions, hub
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func httptestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	return serveHandler(srv.Handler(), req)
}

func serveHandler(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
