//go:build unix

package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

const (
	writePollMillis = 100
	closeGrace      = 2 * time.Second
)

// ptyFile guards the master descriptor. Syscalls run under the read lock;
// close takes the write lock so the descriptor number is never reused while
// a syscall is still using it.
type ptyFile struct {
	mu     sync.RWMutex
	f      *os.File
	fd     int
	closed bool
}

func (p *ptyFile) with(fn func(fd int) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	return fn(p.fd)
}

func (p *ptyFile) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func (p *ptyFile) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.f.Close()
}

// Session is a shell process attached to a pty master.
type Session struct {
	cmd    *exec.Cmd
	pid    int
	master *ptyFile
	writer *Writer

	readMu sync.Mutex

	done     chan struct{}
	exitCode int

	closeOnce sync.Once
	closeErr  error
}

// Writer sends input to a session. It has its own lock, so writes never
// wait on a reader.
type Writer struct {
	mu     sync.Mutex
	master *ptyFile
}

// Open starts opts.Shell (or DefaultShell) on a new pty of the given size. It
// returns the session, its write handle and the child pid.
func Open(opts Options) (*Session, *Writer, int, error) {
	if opts.Cols <= 0 || opts.Rows <= 0 || opts.Cols > 0xFFFF || opts.Rows > 0xFFFF {
		return nil, nil, 0, fmt.Errorf("%w: invalid size %dx%d", ErrCreation, opts.Cols, opts.Rows)
	}
	shell := opts.Shell
	if shell == "" {
		shell = DefaultShell()
	}

	cmd := exec.Command(shell, opts.Args...)
	cmd.Env = Environ(os.Environ(), opts.Env)
	cmd.Dir = opts.Dir

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(opts.Cols), Rows: uint16(opts.Rows)})
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: start %s: %w", ErrCreation, shell, err)
	}

	// Fd switches the file to blocking mode; the raw descriptor is then set
	// nonblocking and only ever used through unix syscalls.
	fd := int(f.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = f.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, nil, 0, fmt.Errorf("%w: set nonblocking: %w", ErrCreation, err)
	}

	master := &ptyFile{f: f, fd: fd}
	s := &Session{
		cmd:      cmd,
		pid:      cmd.Process.Pid,
		master:   master,
		writer:   &Writer{master: master},
		done:     make(chan struct{}),
		exitCode: -1,
	}
	go s.reap()
	return s, s.writer, s.pid, nil
}

func (s *Session) reap() {
	_ = s.cmd.Wait()
	if s.cmd.ProcessState != nil {
		s.exitCode = s.cmd.ProcessState.ExitCode()
	}
	close(s.done)
}

// Pid returns the shell's process id.
func (s *Session) Pid() int { return s.pid }

// Writer returns the session's write handle.
func (s *Session) Writer() *Writer { return s.writer }

// TryRead reads whatever output is immediately available into buf. It never
// blocks: no data, or another read already in progress, yields (0, nil).
// End of stream yields io.EOF.
func (s *Session) TryRead(buf []byte) (int, error) {
	if !s.readMu.TryLock() {
		return 0, nil
	}
	defer s.readMu.Unlock()

	var n int
	err := s.master.with(func(fd int) error {
		var rerr error
		n, rerr = unix.Read(fd, buf)
		return rerr
	})
	switch {
	case err == nil && n > 0:
		return n, nil
	case err == nil:
		return 0, io.EOF
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return 0, nil
	case errors.Is(err, unix.EIO), errors.Is(err, ErrClosed):
		// Linux reports EIO once the slave side has no open descriptors.
		return 0, io.EOF
	default:
		return 0, fmt.Errorf("%w: read: %w", ErrIO, err)
	}
}

// Write sends p to the shell, waiting for the pty to drain when its buffer
// is full.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	written := 0
	for len(p) > 0 {
		var n int
		err := w.master.with(func(fd int) error {
			var werr error
			n, werr = unix.Write(fd, p)
			if errors.Is(werr, unix.EAGAIN) {
				fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
				_, _ = unix.Poll(fds, writePollMillis)
			}
			return werr
		})
		if n > 0 {
			written += n
			p = p[n:]
		}
		switch {
		case err == nil, errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			continue
		default:
			return written, fmt.Errorf("%w: write: %w", ErrIO, err)
		}
	}
	return written, nil
}

// Resize sets the pty window size (TIOCSWINSZ). The kernel then sends SIGWINCH
// to the foreground process group.
func (s *Session) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 || cols > 0xFFFF || rows > 0xFFFF {
		return fmt.Errorf("%w: invalid size %dx%d", ErrResize, cols, rows)
	}
	err := s.master.with(func(fd int) error {
		return unix.IoctlSetWinsize(fd, unix.TIOCSWINSZ, &unix.Winsize{Col: uint16(cols), Row: uint16(rows)})
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResize, err)
	}
	return nil
}

// Size returns the pty window size as reported by the kernel.
func (s *Session) Size() (cols, rows int, err error) {
	err = s.master.with(func(fd int) error {
		ws, werr := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
		if werr != nil {
			return werr
		}
		cols, rows = int(ws.Col), int(ws.Row)
		return nil
	})
	return cols, rows, err
}

// IsAlive reports whether the shell is still running.
func (s *Session) IsAlive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Done is closed when the shell exits.
func (s *Session) Done() <-chan struct{} { return s.done }

// ExitCode returns the shell's exit code, or -1 while it is running or when
// it was killed by a signal.
func (s *Session) ExitCode() int {
	select {
	case <-s.done:
		return s.exitCode
	default:
		return -1
	}
}

// ForegroundPID returns the foreground process group of the terminal, or the
// shell pid when it cannot be determined.
func (s *Session) ForegroundPID() int {
	pgrp := 0
	err := s.master.with(func(fd int) error {
		var gerr error
		pgrp, gerr = unix.IoctlGetInt(fd, unix.TIOCGPGRP)
		return gerr
	})
	if err != nil || pgrp <= 0 {
		return s.pid
	}
	return pgrp
}

// Close hangs up the terminal, signals the shell's process group and reaps
// the shell, killing it if it ignores the hang-up. Safe to call repeatedly.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.master.close()
		if s.IsAlive() {
			if pgid, err := unix.Getpgid(s.pid); err == nil {
				_ = unix.Kill(-pgid, unix.SIGHUP)
			} else {
				_ = unix.Kill(s.pid, unix.SIGHUP)
			}
		}
		select {
		case <-s.done:
		case <-time.After(closeGrace):
			_ = s.cmd.Process.Kill()
			<-s.done
		}
	})
	return s.closeErr
}
