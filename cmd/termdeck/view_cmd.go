package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/asheshgoplani/termdeck/internal/clipboard"
	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/session"
	"github.com/asheshgoplani/termdeck/internal/terminal"
	"github.com/asheshgoplani/termdeck/internal/ui"
	"github.com/asheshgoplani/termdeck/internal/vterm"
)

func handleView(args []string) int {
	cfg, _, err := bootstrap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer logging.Shutdown()

	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	shell := fs.String("shell", cfg.Terminal.Shell, "Shell to run")
	fs.Usage = func() {
		fmt.Println("Usage: termdeck view [options] [-- args...]")
		fmt.Println()
		fmt.Println("Run a shell in a grid-mode session and render the grid full screen.")
		fmt.Println("Ctrl+Q detaches and closes the session; Ctrl+] copies the screen.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if exit, code := parseFlags(fs, args); exit {
		return code
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "Error: view requires a terminal")
		return 1
	}

	cols, rows := cfg.Terminal.Cols, cfg.Terminal.Rows
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		// The viewer reserves the bottom row for its status bar.
		cols, rows = w, h-1
	}

	j := openJournal(cfg, "view")
	defer j.Close()

	fwd := ui.NewForwarder()
	mgr := newManager(cfg, fwd, session.ModeGrid, j)

	title := *shell
	if title == "" {
		title = terminal.DefaultShell()
	}
	id, err := mgr.Open(context.Background(), session.OpenRequest{
		Shell: *shell,
		Args:  fs.Args(),
		Cols:  clampTerminalSize(cols),
		Rows:  clampTerminalSize(rows),
		Mode:  session.ModeGrid,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fwd.SetSession(id)

	// The renderer owns stdout; OSC 52 goes to the same tty through stderr.
	copier := clipboard.Copier{OSC52: os.Stderr}
	model := ui.NewModel(id, filepath.Base(title), mgr, vterm.PaletteFor(cfg.ResolveTheme())).
		WithCopy(func(text string) (string, error) {
			res, err := copier.Copy(text)
			if err != nil {
				return "", err
			}
			return res.Method, nil
		})
	p := tea.NewProgram(model, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fwd.Run(ctx, p.Send)

	final, runErr := p.Run()
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	_ = mgr.Shutdown(shutdownCtx)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		return 1
	}

	m, ok := final.(ui.Model)
	if !ok {
		return 0
	}
	if exited, code, reason := m.Exited(); exited {
		fmt.Printf("Session ended (%s, exit code %d)\n", reason, code)
		if reason == session.ExitReasonError {
			return 1
		}
		if code > 0 {
			return code
		}
		return 0
	}
	if m.Detached() {
		fmt.Println("Detached; session closed")
	}
	return 0
}
