//go:build !unix

package terminal

import "fmt"

// Session is unavailable on this platform; Open always fails.
type Session struct{}

// Writer is unavailable on this platform.
type Writer struct{}

// Open always returns ErrCreation wrapping ErrUnsupported.
func Open(Options) (*Session, *Writer, int, error) {
	return nil, nil, 0, fmt.Errorf("%w: %w", ErrCreation, ErrUnsupported)
}

func (s *Session) Pid() int { return 0 }
func (s *Session) Writer() *Writer { return &Writer{} }
func (s *Session) TryRead([]byte) (int, error) { return 0, ErrUnsupported }
func (w *Writer) Write([]byte) (int, error) { return 0, ErrUnsupported }
func (s *Session) Resize(int, int) error { return ErrUnsupported }
func (s *Session) Size() (int, int, error) { return 0, 0, ErrUnsupported }
func (s *Session) IsAlive() bool { return false }
func (s *Session) Done() <-chan struct{} { return closedChan }
func (s *Session) ExitCode() int { return -1 }
func (s *Session) ForegroundPID() int { return 0 }
func (s *Session) Close() error { return nil }

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()
