package ui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// keyMap holds the keys the viewer handles itself. Everything else is
// forwarded to the shell.
type keyMap struct {
	Detach key.Binding
	Copy   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Detach: key.NewBinding(
			key.WithKeys("ctrl+q"),
			key.WithHelp("ctrl+q", "detach"),
		),
		Copy: key.NewBinding(
			key.WithKeys("ctrl+]"),
			key.WithHelp("ctrl+]", "copy screen"),
		),
	}
}

// keyBytes translates a key press into the bytes a terminal would send.
// It returns nil for keys with no terminal encoding.
func keyBytes(msg tea.KeyMsg) []byte {
	var out []byte
	switch msg.Type {
	case tea.KeyRunes:
		out = []byte(string(msg.Runes))
	case tea.KeySpace:
		out = []byte{' '}
	case tea.KeyUp:
		out = []byte("\x1b[A")
	case tea.KeyDown:
		out = []byte("\x1b[B")
	case tea.KeyRight:
		out = []byte("\x1b[C")
	case tea.KeyLeft:
		out = []byte("\x1b[D")
	case tea.KeyHome:
		out = []byte("\x1b[H")
	case tea.KeyEnd:
		out = []byte("\x1b[F")
	case tea.KeyPgUp:
		out = []byte("\x1b[5~")
	case tea.KeyPgDown:
		out = []byte("\x1b[6~")
	case tea.KeyDelete:
		out = []byte("\x1b[3~")
	case tea.KeyInsert:
		out = []byte("\x1b[2~")
	case tea.KeyShiftTab:
		out = []byte("\x1b[Z")
	default:
		// Control keys (including enter, tab, esc and backspace) carry
		// their byte value as the key type.
		if (msg.Type >= 0 && msg.Type < 0x20) || msg.Type == 0x7f {
			out = []byte{byte(msg.Type)}
		}
	}
	if len(out) > 0 && msg.Alt {
		out = append([]byte{0x1b}, out...)
	}
	return out
}
