// Package clipboard copies text to the system clipboard, falling back to an
// OSC 52 escape sequence when no clipboard tool is available.
package clipboard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"

	"github.com/asheshgoplani/termdeck/internal/platform"
)

// ErrEmpty is returned when there is nothing to copy.
var ErrEmpty = errors.New("no content to copy")

// Result describes a successful copy.
type Result struct {
	Method    string // "clip.exe", "system" or "osc52"
	ByteSize  int
	LineCount int
}

// Copier copies text. The zero value uses the native clipboard only.
type Copier struct {
	// OSC52 receives the escape sequence when the native clipboard fails.
	// Nil disables the fallback.
	OSC52 io.Writer

	// native overrides the native clipboard, for tests.
	native func(text string) (string, error)
}

// Copy copies text to the clipboard.
func (c Copier) Copy(text string) (*Result, error) {
	if text == "" {
		return nil, ErrEmpty
	}
	res := &Result{ByteSize: len(text), LineCount: countLines(text)}

	native := c.native
	if native == nil {
		native = copyNative
	}
	method, nerr := native(text)
	if nerr == nil {
		res.Method = method
		return res, nil
	}

	if c.OSC52 == nil {
		return nil, fmt.Errorf("no clipboard method available: %w", nerr)
	}
	seq := osc52.New(text)
	if os.Getenv("TMUX") != "" {
		seq = seq.Tmux()
	}
	if _, err := seq.WriteTo(c.OSC52); err != nil {
		return nil, fmt.Errorf("OSC 52 clipboard failed: %w", err)
	}
	res.Method = "osc52"
	return res, nil
}

// copyNative uses clip.exe under WSL, where the Linux tools usually have no
// display to talk to, and the system clipboard elsewhere.
func copyNative(text string) (string, error) {
	if platform.IsWSL() {
		cmd := exec.Command("clip.exe")
		cmd.Stdin = strings.NewReader(text)
		return "clip.exe", cmd.Run()
	}
	if clipboard.Unsupported {
		return "", errors.New("no clipboard utility found (install pbcopy, xclip, xsel or wl-copy)")
	}
	return "system", clipboard.WriteAll(text)
}

// countLines counts lines; a trailing newline does not add one.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
