package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/termdeck/internal/procinfo"
	"github.com/asheshgoplani/termdeck/internal/statedb"
	"github.com/asheshgoplani/termdeck/internal/terminal"
)

// fakePTY is an in-memory PTY. Output queued with emit is returned by
// TryRead; exit marks the shell dead.
type fakePTY struct {
	mu        sync.Mutex
	pending   bytes.Buffer
	alive     bool
	exitCode  int
	closed    int
	readErr   error
	resizeErr error
	cols      int
	rows      int

	info      procinfo.Info
	infoOK    bool
	infoCalls atomic.Int32
	infoGate  chan struct{}
}

func newFakePTY(cols, rows int) *fakePTY {
	return &fakePTY{alive: true, exitCode: -1, cols: cols, rows: rows}
}

func (p *fakePTY) emit(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.WriteString(s)
}

func (p *fakePTY) exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = false
	p.exitCode = code
}

func (p *fakePTY) failReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

func (p *fakePTY) TryRead(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending.Len() > 0 {
		return p.pending.Read(buf)
	}
	if p.readErr != nil {
		return 0, p.readErr
	}
	if p.closed > 0 {
		return 0, io.EOF
	}
	return 0, nil
}

func (p *fakePTY) Resize(cols, rows int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resizeErr != nil {
		return p.resizeErr
	}
	p.cols, p.rows = cols, rows
	return nil
}

func (p *fakePTY) size() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cols, p.rows
}

func (p *fakePTY) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

func (p *fakePTY) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *fakePTY) ForegroundProcessInfo(ctx context.Context, _ procinfo.Inspector) (procinfo.Info, bool) {
	p.infoCalls.Add(1)
	if p.infoGate != nil {
		<-p.infoGate
	}
	if ctx.Err() != nil {
		return procinfo.Info{}, false
	}
	return p.info, p.infoOK
}

func (p *fakePTY) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	p.alive = false
	return nil
}

func (p *fakePTY) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
	err error
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return 0, w.err
	}
	return w.buf.Write(p)
}

func (w *fakeWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

// fakeOpener records every opened pty.
type fakeOpener struct {
	mu      sync.Mutex
	ptys    []*fakePTY
	writers []*fakeWriter
	opts    []terminal.Options
	err     error

	// entered and gate, when set, hold open until gate is closed after
	// signalling entered.
	entered chan struct{}
	gate    chan struct{}
}

func (o *fakeOpener) open(opts terminal.Options) (PTY, io.Writer, int, error) {
	if o.gate != nil {
		close(o.entered)
		<-o.gate
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, nil, 0, o.err
	}
	p := newFakePTY(opts.Cols, opts.Rows)
	w := &fakeWriter{}
	o.ptys = append(o.ptys, p)
	o.writers = append(o.writers, w)
	o.opts = append(o.opts, opts)
	return p, w, 1000 + len(o.ptys), nil
}

func (o *fakeOpener) last() (*fakePTY, *fakeWriter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ptys[len(o.ptys)-1], o.writers[len(o.writers)-1]
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.ptys)
}

// captureSink stores every published event.
type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *captureSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *captureSink) ofType(id string, typ EventType) []Event {
	var out []Event
	for _, e := range s.all() {
		if e.SessionID == id && e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// waitFor polls until an event of typ for id satisfies match.
func (s *captureSink) waitFor(t *testing.T, id string, typ EventType, match func(Event) bool) Event {
	t.Helper()
	var found Event
	require.Eventually(t, func() bool {
		for _, e := range s.ofType(id, typ) {
			if match == nil || match(e) {
				found = e
				return true
			}
		}
		return false
	}, 5*time.Second, 2*time.Millisecond, "no %s event for %s", typ, id)
	return found
}

type exitRecord struct {
	id     string
	code   int
	reason string
}

type fakeJournal struct {
	mu      sync.Mutex
	opens   []statedb.SessionRow
	exits   []exitRecord
	resizes [][2]int
	fail    bool
}

var errJournal = errors.New("journal unavailable")

func (j *fakeJournal) RecordOpen(row statedb.SessionRow) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.opens = append(j.opens, row)
	if j.fail {
		return errJournal
	}
	return nil
}

func (j *fakeJournal) RecordExit(id string, exitCode int, reason string, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.exits = append(j.exits, exitRecord{id: id, code: exitCode, reason: reason})
	if j.fail {
		return errJournal
	}
	return nil
}

func (j *fakeJournal) RecordResize(_ string, cols, rows int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.resizes = append(j.resizes, [2]int{cols, rows})
	if j.fail {
		return errJournal
	}
	return nil
}

func (j *fakeJournal) snapshot() ([]statedb.SessionRow, []exitRecord, [][2]int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]statedb.SessionRow(nil), j.opens...),
		append([]exitRecord(nil), j.exits...),
		append([][2]int(nil), j.resizes...)
}

// newTestManager returns a manager wired to fakes with a 1ms tick.
func newTestManager(t *testing.T, mode Mode) (*Manager, *fakeOpener, *captureSink, *fakeJournal) {
	t.Helper()
	opener := &fakeOpener{}
	sink := &captureSink{}
	journal := &fakeJournal{}
	m := NewManager(Options{
		Sink:    sink,
		Mode:    mode,
		Tick:    time.Millisecond,
		Journal: journal,
		Opener:  opener.open,
		Shell:   "/bin/fake",
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, opener, sink, journal
}
