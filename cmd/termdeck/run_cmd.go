package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/term"

	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/session"
)

const (
	detachKey = 0x11 // Ctrl+Q
	eotKey    = 0x04 // Ctrl+D
)

func handleRun(args []string) int {
	cfg, _, err := bootstrap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer logging.Shutdown()

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	shell := fs.String("shell", cfg.Terminal.Shell, "Shell to run")
	fs.Usage = func() {
		fmt.Println("Usage: termdeck run [options] [-- args...]")
		fmt.Println()
		fmt.Println("Run a shell through a termdeck session, passing its output straight")
		fmt.Println("to this terminal. Ctrl+Q closes the session.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  termdeck run")
		fmt.Println("  termdeck run --shell /bin/bash -- --norc")
	}
	if exit, code := parseFlags(fs, args); exit {
		return code
	}

	stdin := int(os.Stdin.Fd())
	interactive := term.IsTerminal(stdin)
	cols, rows := cfg.Terminal.Cols, cfg.Terminal.Rows
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && h > 0 {
		cols, rows = w, h
	}

	j := openJournal(cfg, "run")
	defer j.Close()

	pump := newOutputPump()
	mgr := newManager(cfg, pump, session.ModePassthrough, j)
	log := logging.ForComponent(logging.CompSession)

	ctx := context.Background()
	id, err := mgr.Open(ctx, session.OpenRequest{
		Shell: *shell,
		Args:  fs.Args(),
		Cols:  clampTerminalSize(cols),
		Rows:  clampTerminalSize(rows),
		Mode:  session.ModePassthrough,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	pump.SetSession(id)
	go pump.Run(os.Stdout)

	if interactive {
		oldState, err := term.MakeRaw(stdin)
		if err != nil {
			_ = mgr.Close(id)
			fmt.Fprintf(os.Stderr, "Error: failed to set raw mode: %v\n", err)
			return 1
		}
		defer func() { _ = term.Restore(stdin, oldState) }()
	}

	winch := make(chan os.Signal, 1)
	notifyResize(winch)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			w, h, err := term.GetSize(int(os.Stdout.Fd()))
			if err != nil {
				continue
			}
			if err := mgr.Resize(id, clampTerminalSize(w), clampTerminalSize(h)); err != nil {
				log.Debug("resize_failed", slog.String("session_id", id), slog.String("error", err.Error()))
			}
		}
	}()

	detached := make(chan struct{})
	go func() {
		err := copyInput(os.Stdin, mgr, id)
		switch {
		case errors.Is(err, errDetach):
			close(detached)
		case err == nil && !interactive:
			// Piped input ended; hand the shell an end-of-file.
			_ = mgr.Write(id, []byte{eotKey})
		}
	}()

	select {
	case <-pump.Done():
	case <-detached:
		_ = mgr.Close(id)
		<-pump.Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = mgr.Shutdown(shutdownCtx)

	exit, _ := pump.Exit()
	if exit.Reason == session.ExitReasonError {
		return 1
	}
	if exit.ExitCode < 0 {
		return 0
	}
	return exit.ExitCode
}

var errDetach = errors.New("detach requested")

// inputWriter is the part of the manager copyInput needs.
type inputWriter interface {
	Write(id string, p []byte) error
}

// copyInput forwards r to the session until EOF, a write failure or the
// detach key. Bytes before the detach key in the same read are delivered.
func copyInput(r io.Reader, w inputWriter, id string) error {
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			detach := false
			for i, b := range chunk {
				if b == detachKey {
					chunk, detach = chunk[:i], true
					break
				}
			}
			if len(chunk) > 0 {
				if werr := w.Write(id, chunk); werr != nil {
					return werr
				}
			}
			if detach {
				return errDetach
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func clampTerminalSize(n int) int {
	switch {
	case n < session.MinSize:
		return session.MinSize
	case n > session.MaxSize:
		return session.MaxSize
	}
	return n
}
