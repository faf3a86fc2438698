// Package ui is the terminal viewer for grid-mode sessions: it renders
// snapshots with lipgloss and forwards key presses to the shell.
package ui

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/session"
	"github.com/asheshgoplani/termdeck/internal/vterm"
)

// Controller is the part of the session manager the viewer drives.
type Controller interface {
	Write(id string, p []byte) error
	Resize(id string, cols, rows int) error
}

// CopyFunc copies text to the clipboard and returns how it was copied.
type CopyFunc func(text string) (method string, err error)

// statusBarHeight is the number of rows reserved below the grid.
const statusBarHeight = 1

// Model is a bubbletea model showing one session.
type Model struct {
	id      string
	title   string
	ctrl    Controller
	palette vterm.Palette
	keys    keyMap
	copier  CopyFunc

	grid     *vterm.Snapshot
	width    int
	height   int
	exited   bool
	exitCode int
	reason   string
	detached bool
	lastErr  string
	notice   string
}

// NewModel creates a viewer for session id. title is shown in the status bar.
func NewModel(id, title string, ctrl Controller, palette vterm.Palette) Model {
	return Model{
		id:      id,
		title:   title,
		ctrl:    ctrl,
		palette: palette,
		keys:    defaultKeyMap(),
	}
}

// WithCopy enables the copy-screen key.
func (m Model) WithCopy(fn CopyFunc) Model {
	m.copier = fn
	return m
}

// copiedMsg reports the outcome of a copy-screen request.
type copiedMsg struct {
	lines  int
	method string
	err    error
}

// Detached reports whether the user left with the detach key (as opposed to
// the session ending).
func (m Model) Detached() bool { return m.detached }

// Exited reports whether the session ended, and how.
func (m Model) Exited() (bool, int, string) { return m.exited, m.exitCode, m.reason }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		cols := clampSize(msg.Width)
		rows := clampSize(msg.Height - statusBarHeight)
		if err := m.ctrl.Resize(m.id, cols, rows); err != nil {
			m.lastErr = err.Error()
			logging.ForComponent(logging.CompUI).Warn("resize_failed",
				slog.String("session_id", m.id), slog.String("error", err.Error()))
		}
		return m, nil

	case GridMsg:
		snap := msg.Snapshot
		m.grid = &snap
		return m, nil

	case ExitMsg:
		m.exited = true
		m.exitCode = msg.ExitCode
		m.reason = msg.Reason
		return m, tea.Quit

	case copiedMsg:
		if msg.err != nil {
			m.notice = ""
			m.lastErr = msg.err.Error()
		} else {
			m.notice = fmt.Sprintf("copied %d lines (%s)", msg.lines, msg.method)
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Detach) {
			m.detached = true
			return m, tea.Quit
		}
		if m.copier != nil && key.Matches(msg, m.keys.Copy) {
			return m, m.copyScreen()
		}
		m.notice = ""
		if b := keyBytes(msg); len(b) > 0 {
			if err := m.ctrl.Write(m.id, b); err != nil {
				m.lastErr = err.Error()
			}
		}
		return m, nil
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	if m.grid != nil {
		b.WriteString(RenderSnapshot(*m.grid, !m.exited))
	} else {
		rows := max(m.height-statusBarHeight, 0)
		b.WriteString(strings.Repeat("\n", rows))
	}
	b.WriteByte('\n')
	b.WriteString(m.statusBar())
	return b.String()
}

func (m Model) statusBar() string {
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color(m.palette.Background)).
		Background(lipgloss.Color(m.palette.Foreground))
	dim := style.Faint(true)

	left := " " + m.title
	if m.grid != nil {
		left += fmt.Sprintf(" · %dx%d", m.grid.Cols, m.grid.Rows)
	}
	switch {
	case m.exited:
		left += fmt.Sprintf(" · exited (%d)", m.exitCode)
	case m.lastErr != "":
		left += " · " + m.lastErr
	case m.notice != "":
		left += " · " + m.notice
	}
	help := m.keys.Detach.Help()
	right := fmt.Sprintf("%s %s ", help.Key, help.Desc)

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return style.Render(left)
	}
	return style.Render(left+strings.Repeat(" ", gap)) + dim.Render(right)
}

// copyScreen copies the visible text off the UI goroutine, since clipboard
// tools are external processes.
func (m Model) copyScreen() tea.Cmd {
	if m.grid == nil {
		return nil
	}
	text := ScreenText(*m.grid)
	fn := m.copier
	return func() tea.Msg {
		method, err := fn(text)
		return copiedMsg{lines: strings.Count(text, "\n") + 1, method: method, err: err}
	}
}

// ScreenText returns the grid's text, one line per row, without trailing
// blanks or trailing empty rows.
func ScreenText(snap vterm.Snapshot) string {
	lines := make([]string, snap.Rows)
	for r := range lines {
		lines[r] = snap.Row(r)
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

func clampSize(n int) int {
	return min(max(n, session.MinSize), session.MaxSize)
}
