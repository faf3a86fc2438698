package vterm

import (
	"encoding/json"
	"strings"
)

// Style is the pen applied to newly written cells.
type Style struct {
	Fg     string
	Bg     string
	Bold   bool
	Italic bool
}

// Cell is one character position of the grid. A zero Char marks the second
// column of a double-width glyph.
type Cell struct {
	Char   rune
	Fg     string
	Bg     string
	Bold   bool
	Italic bool
}

type cellJSON struct {
	Char   string `json:"char"`
	Fg     string `json:"fg"`
	Bg     string `json:"bg"`
	Bold   bool   `json:"bold"`
	Italic bool   `json:"italic"`
}

// MarshalJSON encodes the glyph as a string, empty for wide-glyph spacers.
func (c Cell) MarshalJSON() ([]byte, error) {
	out := cellJSON{Fg: c.Fg, Bg: c.Bg, Bold: c.Bold, Italic: c.Italic}
	if c.Char != 0 {
		out.Char = string(c.Char)
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Cell) UnmarshalJSON(data []byte) error {
	var in cellJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = Cell{Fg: in.Fg, Bg: in.Bg, Bold: in.Bold, Italic: in.Italic}
	for _, r := range in.Char {
		c.Char = r
		break
	}
	return nil
}

// Cursor is a zero-based grid position.
type Cursor struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// Snapshot is an immutable copy of the visible grid.
type Snapshot struct {
	Cols   int    `json:"cols"`
	Rows   int    `json:"rows"`
	Cells  []Cell `json:"cells"`
	Cursor Cursor `json:"cursor"`
}

// Cell returns the cell at (col, row).
func (s Snapshot) Cell(col, row int) Cell {
	return s.Cells[row*s.Cols+col]
}

// Row returns the text of a row with trailing blanks trimmed.
func (s Snapshot) Row(row int) string {
	var b strings.Builder
	for _, c := range s.Cells[row*s.Cols : (row+1)*s.Cols] {
		if c.Char != 0 {
			b.WriteRune(c.Char)
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Grid is a fixed-size cell buffer with a cursor and current style.
// len(cells) == cols*rows holds across every operation. Grid is not safe for
// concurrent use; Terminal adds locking.
type Grid struct {
	cols, rows int
	cells      []Cell
	cursor     Cursor
	style      Style
	palette    Palette
	dirty      bool
}

// NewGrid creates a blank grid. Non-positive sizes are raised to 1.
func NewGrid(cols, rows int, palette Palette) *Grid {
	g := &Grid{palette: palette}
	g.style = g.defaultStyle()
	g.Resize(cols, rows)
	return g
}

func (g *Grid) defaultStyle() Style {
	return Style{Fg: g.palette.Foreground, Bg: g.palette.Background}
}

func (g *Grid) blank() Cell {
	return Cell{Char: ' ', Fg: g.palette.Foreground, Bg: g.palette.Background}
}

// Size returns the grid dimensions.
func (g *Grid) Size() (cols, rows int) { return g.cols, g.rows }

// Cursor returns the cursor position.
func (g *Grid) Cursor() Cursor { return g.cursor }

// Style returns the current pen.
func (g *Grid) Style() Style { return g.style }

// Palette returns the palette used to resolve colors.
func (g *Grid) Palette() Palette { return g.palette }

// Dirty reports whether the grid changed since the last Snapshot.
func (g *Grid) Dirty() bool { return g.dirty }

// Resize reallocates the grid at the new size, blank, cursor at origin.
// Previous content is not reflowed.
func (g *Grid) Resize(cols, rows int) {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	g.cols, g.rows = cols, rows
	g.cells = make([]Cell, cols*rows)
	g.fill(g.cells)
	g.cursor = Cursor{}
	g.dirty = true
}

func (g *Grid) fill(cells []Cell) {
	b := g.blank()
	for i := range cells {
		cells[i] = b
	}
}

// index maps (col, row) into cells, wrapping out-of-range input back into
// the buffer instead of panicking.
func (g *Grid) index(col, row int) int {
	n := len(g.cells)
	i := (row*g.cols + col) % n
	if i < 0 {
		i += n
	}
	return i
}

// Put writes r at the cursor with the current style and advances. Writing the
// last column wraps to the start of the next row immediately; wrapping past
// the last row scrolls. Double-width runes take two cells.
func (g *Grid) Put(r rune, width int) {
	if width == 2 && g.cols > 1 && g.cursor.Col == g.cols-1 {
		g.blankCell(g.cursor.Col, g.cursor.Row)
		g.wrap()
	}
	g.cells[g.index(g.cursor.Col, g.cursor.Row)] = g.styled(r)
	g.advance()
	if width == 2 && g.cols > 1 {
		g.cells[g.index(g.cursor.Col, g.cursor.Row)] = g.styled(0)
		g.advance()
	}
	g.dirty = true
}

func (g *Grid) styled(r rune) Cell {
	return Cell{Char: r, Fg: g.style.Fg, Bg: g.style.Bg, Bold: g.style.Bold, Italic: g.style.Italic}
}

func (g *Grid) advance() {
	g.cursor.Col++
	if g.cursor.Col >= g.cols {
		g.wrap()
	}
}

func (g *Grid) wrap() {
	g.cursor.Col = 0
	g.LineFeed()
}

func (g *Grid) blankCell(col, row int) {
	g.cells[g.index(col, row)] = g.blank()
}

// LineFeed moves to the next row, scrolling at the bottom. The column is kept.
func (g *Grid) LineFeed() {
	if g.cursor.Row >= g.rows-1 {
		g.scrollUp()
		g.cursor.Row = g.rows - 1
	} else {
		g.cursor.Row++
	}
	g.dirty = true
}

// scrollUp discards the top row and blanks the bottom one. It is the only
// operation that drops content outside of Clear and Resize.
func (g *Grid) scrollUp() {
	copy(g.cells, g.cells[g.cols:])
	g.fill(g.cells[(g.rows-1)*g.cols:])
}

// CarriageReturn moves to column 0.
func (g *Grid) CarriageReturn() {
	g.cursor.Col = 0
	g.dirty = true
}

// Backspace moves one column left and blanks that cell. No-op at column 0.
func (g *Grid) Backspace() {
	if g.cursor.Col == 0 {
		return
	}
	g.cursor.Col--
	g.blankCell(g.cursor.Col, g.cursor.Row)
	g.dirty = true
}

// Tab moves to the next multiple-of-8 column, stopping at the last column.
func (g *Grid) Tab() {
	next := (g.cursor.Col/8 + 1) * 8
	if next > g.cols-1 {
		next = g.cols - 1
	}
	g.cursor.Col = next
	g.dirty = true
}

// MoveTo places the cursor at a zero-based position, clamped to the grid.
func (g *Grid) MoveTo(col, row int) {
	g.cursor.Col = clamp(col, 0, g.cols-1)
	g.cursor.Row = clamp(row, 0, g.rows-1)
	g.dirty = true
}

// MoveBy moves the cursor relative to its position, clamped to the grid.
func (g *Grid) MoveBy(dCol, dRow int) {
	g.MoveTo(g.cursor.Col+dCol, g.cursor.Row+dRow)
}

// Clear blanks every cell and homes the cursor. The style is kept.
func (g *Grid) Clear() {
	g.fill(g.cells)
	g.cursor = Cursor{}
	g.dirty = true
}

// SetStyle replaces the current pen.
func (g *Grid) SetStyle(s Style) {
	g.style = s
}

// ResetStyle restores the palette's default pen.
func (g *Grid) ResetStyle() {
	g.style = g.defaultStyle()
}

// Snapshot copies the grid and clears the dirty flag.
func (g *Grid) Snapshot() Snapshot {
	s := g.Peek()
	g.dirty = false
	return s
}

// Peek copies the grid without touching the dirty flag.
func (g *Grid) Peek() Snapshot {
	cells := make([]Cell, len(g.cells))
	copy(cells, g.cells)
	return Snapshot{Cols: g.cols, Rows: g.rows, Cells: cells, Cursor: g.cursor}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
