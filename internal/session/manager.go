package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/procinfo"
	"github.com/asheshgoplani/termdeck/internal/statedb"
	"github.com/asheshgoplani/termdeck/internal/terminal"
	"github.com/asheshgoplani/termdeck/internal/vterm"
)

// DefaultTick is the update loop interval.
const DefaultTick = 16 * time.Millisecond

// Options configures a Manager. Zero values select defaults.
type Options struct {
	Registry  *Registry
	Sink      Sink
	Mode      Mode
	Tick      time.Duration
	Palette   vterm.Palette
	Journal   Journal
	Inspector procinfo.Inspector
	Opener    Opener

	// Shell is used when OpenRequest.Shell is empty.
	Shell string
	// Env is added to every shell's environment.
	Env []string

	// Context bounds every update loop. Cancelling it stops the loops
	// without closing the sessions; use Shutdown for an orderly stop.
	Context context.Context
}

// OpenRequest describes a session to open.
type OpenRequest struct {
	Shell string
	Args  []string
	Dir   string
	Cols  int
	Rows  int
	// Mode overrides the manager's default mode.
	Mode Mode
}

// Manager is the command surface over a Registry: open, write, resize,
// close and process info. It holds no package-level state; several managers
// can run side by side.
type Manager struct {
	reg     *Registry
	sink    Sink
	mode    Mode
	tick    time.Duration
	palette vterm.Palette
	journal Journal
	insp    procinfo.Inspector
	open    Opener
	shell   string
	env     []string

	ctx    context.Context
	cancel context.CancelFunc

	// admit orders session admission against Shutdown: a session is
	// registered and its loop counted only while closed is false.
	admit  sync.Mutex
	closed bool
	loops  sync.WaitGroup
	info   singleflight.Group
	log    *slog.Logger
}

// NewManager builds a Manager from opts.
func NewManager(opts Options) *Manager {
	m := &Manager{
		reg:     opts.Registry,
		sink:    opts.Sink,
		mode:    opts.Mode,
		tick:    opts.Tick,
		palette: opts.Palette,
		journal: opts.Journal,
		insp:    opts.Inspector,
		open:    opts.Opener,
		shell:   opts.Shell,
		env:     opts.Env,
		log:     logging.ForComponent(logging.CompSession),
	}
	if m.reg == nil {
		m.reg = NewRegistry()
	}
	if m.sink == nil {
		m.sink = discardSink{}
	}
	if m.mode == "" {
		m.mode = ModeGrid
	}
	if m.tick <= 0 {
		m.tick = DefaultTick
	}
	if m.palette.Name == "" {
		m.palette = vterm.DarkPalette()
	}
	if m.insp == nil {
		m.insp = procinfo.NewSystem()
	}
	if m.open == nil {
		m.open = SystemOpener
	}
	parent := opts.Context
	if parent == nil {
		parent = context.Background()
	}
	m.ctx, m.cancel = context.WithCancel(parent)
	return m
}

// Registry returns the registry the manager operates on.
func (m *Manager) Registry() *Registry { return m.reg }

// Open starts a shell on a new pty, registers it and starts its update loop.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (string, error) {
	if err := ValidateSize(req.Cols, req.Rows); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.ctx.Err() != nil {
		return "", ErrShutdown
	}

	mode := req.Mode
	if mode == "" {
		mode = m.mode
	}
	shell := req.Shell
	if shell == "" {
		shell = m.shell
	}
	if shell == "" {
		shell = terminal.DefaultShell()
	}

	pty, w, pid, err := m.open(terminal.Options{
		Cols:  req.Cols,
		Rows:  req.Rows,
		Shell: shell,
		Args:  req.Args,
		Dir:   req.Dir,
		Env:   m.env,
	})
	if err != nil {
		m.log.Error("open_failed", slog.String("shell", shell), slog.String("error", err.Error()))
		return "", err
	}

	c := &Control{
		Shell:     shell,
		Pid:       pid,
		Mode:      mode,
		CreatedAt: time.Now(),
		pty:       pty,
		cols:      req.Cols,
		rows:      req.Rows,
	}
	if mode == ModeGrid {
		c.term = vterm.New(req.Cols, req.Rows, m.palette)
	}
	m.admit.Lock()
	defer m.admit.Unlock()
	if m.closed {
		if err := pty.Close(); err != nil {
			m.log.Warn("pty_close_failed", slog.String("shell", shell), slog.String("error", err.Error()))
		}
		return "", ErrShutdown
	}
	id := m.reg.Create(c, w)
	if c.term != nil {
		c.term.SetDiscardCallback(func(kind string) {
			logging.Aggregate(logging.CompVTerm, "sequence_discarded", slog.String("kind", kind))
		})
	}

	m.log.Info("session_opened",
		slog.String("session_id", id),
		slog.String("shell", shell),
		slog.Int("pid", pid),
		slog.String("mode", string(mode)),
		slog.Int("cols", req.Cols),
		slog.Int("rows", req.Rows))

	if m.journal != nil {
		row := statedb.SessionRow{
			ID:       id,
			Shell:    shell,
			Pid:      pid,
			Cols:     req.Cols,
			Rows:     req.Rows,
			Mode:     string(mode),
			OpenedAt: c.CreatedAt,
		}
		if err := m.journal.RecordOpen(row); err != nil {
			m.log.Warn("journal_open_failed", slog.String("session_id", id), slog.String("error", err.Error()))
		}
	}

	c.publish(m.sink, Event{Type: EventOpened, SessionID: id, Time: c.CreatedAt, Cols: req.Cols, Rows: req.Rows})

	m.loops.Add(1)
	go m.run(id)
	return id, nil
}

// Write sends p to the session's shell.
func (m *Manager) Write(id string, p []byte) error {
	w, err := m.reg.Writer(id)
	if err != nil {
		return err
	}
	if _, err := w.Write(p); err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	return nil
}

// Resize changes the pty size and, in grid mode, reinitializes the grid.
// A failed pty resize leaves the session and its grid untouched.
func (m *Manager) Resize(id string, cols, rows int) error {
	if err := ValidateSize(cols, rows); err != nil {
		return err
	}
	c, err := m.reg.Control(id)
	if err != nil {
		return err
	}
	if err := c.pty.Resize(cols, rows); err != nil {
		m.log.Warn("resize_failed", slog.String("session_id", id), slog.String("error", err.Error()))
		return fmt.Errorf("session %s: %w", id, err)
	}
	if c.term != nil {
		c.term.Resize(cols, rows)
	}
	c.setSize(cols, rows)

	if m.journal != nil {
		if err := m.journal.RecordResize(id, cols, rows); err != nil {
			m.log.Warn("journal_resize_failed", slog.String("session_id", id), slog.String("error", err.Error()))
		}
	}
	c.publish(m.sink, Event{Type: EventResized, SessionID: id, Time: time.Now(), Cols: cols, Rows: rows})
	return nil
}

// Close removes the session and terminates its shell. Closing an unknown or
// already closed session succeeds.
func (m *Manager) Close(id string) error {
	c, ok := m.reg.Remove(id)
	if !ok {
		return nil
	}
	if err := c.pty.Close(); err != nil {
		m.log.Warn("pty_close_failed", slog.String("session_id", id), slog.String("error", err.Error()))
	}
	m.finish(c, c.pty.ExitCode(), ExitReasonClosed)
	return nil
}

// finish emits the exit event and journals the exit. It is called exactly
// once per session, by whoever removed it from the registry.
func (m *Manager) finish(c *Control, exitCode int, reason string) {
	now := time.Now()
	m.log.Info("session_ended",
		slog.String("session_id", c.ID),
		slog.Int("exit_code", exitCode),
		slog.String("reason", reason),
		slog.Duration("lifetime", now.Sub(c.CreatedAt)))

	if m.journal != nil {
		if err := m.journal.RecordExit(c.ID, exitCode, reason, now); err != nil {
			m.log.Warn("journal_exit_failed", slog.String("session_id", c.ID), slog.String("error", err.Error()))
		}
	}
	c.end(m.sink, Event{Type: EventExit, SessionID: c.ID, Time: now, ExitCode: exitCode, Reason: reason})
}

// ProcessInfo reports the foreground process of the session's terminal.
// Concurrent lookups for the same session share one result. It never fails;
// unknown sessions and failed lookups yield false.
func (m *Manager) ProcessInfo(ctx context.Context, id string) (procinfo.Info, bool) {
	c, err := m.reg.Control(id)
	if err != nil {
		return procinfo.Info{}, false
	}
	// The shared lookup outlives any one caller's context; each caller
	// stops waiting on its own.
	flight := context.WithoutCancel(ctx)
	ch := m.info.DoChan(id, func() (any, error) {
		info, ok := c.pty.ForegroundProcessInfo(flight, m.insp)
		if !ok {
			return nil, nil
		}
		return info, nil
	})
	select {
	case res := <-ch:
		info, ok := res.Val.(procinfo.Info)
		return info, ok
	case <-ctx.Done():
		return procinfo.Info{}, false
	}
}

// Snapshot returns the current grid of a grid-mode session without
// affecting what the update loop publishes.
func (m *Manager) Snapshot(id string) (vterm.Snapshot, error) {
	c, err := m.reg.Control(id)
	if err != nil {
		return vterm.Snapshot{}, err
	}
	if c.term == nil {
		return vterm.Snapshot{}, ErrNoGrid
	}
	return c.term.Peek(), nil
}

// Get returns the summary of one session.
func (m *Manager) Get(id string) (Summary, error) {
	c, err := m.reg.Control(id)
	if err != nil {
		return Summary{}, err
	}
	return summarize(c), nil
}

// Sessions returns summaries of all open sessions, oldest first.
func (m *Manager) Sessions() []Summary {
	controls := m.reg.Controls()
	out := make([]Summary, len(controls))
	for i, c := range controls {
		out[i] = summarize(c)
	}
	return out
}

// Shutdown closes every session and waits for the update loops to return.
// Open fails with ErrShutdown afterwards, including an Open already past its
// pty start when Shutdown began.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.admit.Lock()
	m.closed = true
	m.admit.Unlock()
	m.cancel()

	var g errgroup.Group
	g.SetLimit(8)
	for _, id := range m.reg.IDs() {
		g.Go(func() error { return m.Close(id) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		m.loops.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
