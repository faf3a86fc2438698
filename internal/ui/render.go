package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/asheshgoplani/termdeck/internal/vterm"
)

// RenderSnapshot draws a grid snapshot with per-cell colors and attributes.
// Cells sharing a style are rendered as one run. When showCursor is set the
// cursor cell is drawn in reverse video.
func RenderSnapshot(snap vterm.Snapshot, showCursor bool) string {
	if snap.Cols <= 0 || snap.Rows <= 0 || len(snap.Cells) < snap.Cols*snap.Rows {
		return ""
	}

	var b strings.Builder
	for row := 0; row < snap.Rows; row++ {
		if row > 0 {
			b.WriteByte('\n')
		}
		var run strings.Builder
		var runStyle cellStyle
		flush := func() {
			if run.Len() == 0 {
				return
			}
			b.WriteString(runStyle.lipgloss().Render(run.String()))
			run.Reset()
		}

		for col := 0; col < snap.Cols; col++ {
			c := snap.Cell(col, row)
			if c.Char == 0 {
				// Second half of a wide glyph.
				continue
			}
			st := cellStyle{fg: c.Fg, bg: c.Bg, bold: c.Bold, italic: c.Italic}
			if showCursor && snap.Cursor.Col == col && snap.Cursor.Row == row {
				st.reverse = true
			}
			if st != runStyle {
				flush()
				runStyle = st
			}
			run.WriteRune(c.Char)
		}
		flush()
	}
	return b.String()
}

type cellStyle struct {
	fg, bg       string
	bold, italic bool
	reverse      bool
}

func (s cellStyle) lipgloss() lipgloss.Style {
	st := lipgloss.NewStyle().Bold(s.bold).Italic(s.italic).Reverse(s.reverse)
	if s.fg != "" {
		st = st.Foreground(lipgloss.Color(s.fg))
	}
	if s.bg != "" {
		st = st.Background(lipgloss.Color(s.bg))
	}
	return st
}
