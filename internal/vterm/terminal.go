package vterm

import "sync"

// Terminal couples a Grid with its Interpreter behind one mutex so that a
// feeding goroutine and control operations (resize, snapshots) can share it.
type Terminal struct {
	mu     sync.Mutex
	grid   *Grid
	interp *Interpreter
}

// New creates a terminal of the given size.
func New(cols, rows int, palette Palette) *Terminal {
	g := NewGrid(cols, rows, palette)
	return &Terminal{grid: g, interp: NewInterpreter(g)}
}

// SetDiscardCallback forwards to Interpreter.SetDiscardCallback.
func (t *Terminal) SetDiscardCallback(fn func(kind string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interp.SetDiscardCallback(fn)
}

// Write feeds p to the interpreter. It never fails.
func (t *Terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interp.Feed(p)
	return len(p), nil
}

// Resize reinitializes the grid at the new size. Interpreter state (a
// partially received sequence) is kept.
func (t *Terminal) Resize(cols, rows int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.grid.Resize(cols, rows)
}

// Size returns the current grid size.
func (t *Terminal) Size() (cols, rows int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.grid.Size()
}

// Dirty reports whether the grid changed since the last snapshot.
func (t *Terminal) Dirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.grid.Dirty()
}

// TakeSnapshot returns a snapshot and clears the dirty flag, but only if the
// grid changed since the previous one.
func (t *Terminal) TakeSnapshot() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.grid.Dirty() {
		return Snapshot{}, false
	}
	return t.grid.Snapshot(), true
}

// Peek returns a snapshot without clearing the dirty flag.
func (t *Terminal) Peek() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.grid.Peek()
}
