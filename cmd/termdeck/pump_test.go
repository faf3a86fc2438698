package main

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/termdeck/internal/session"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestOutputPumpFlushesBeforeExit(t *testing.T) {
	p := newOutputPump()
	p.SetSession("a")
	var out lockedBuffer
	go p.Run(&out)

	p.Publish(session.Event{Type: session.EventOutput, SessionID: "a", Data: []byte("hello ")})
	p.Publish(session.Event{Type: session.EventOutput, SessionID: "b", Data: []byte("other")})
	p.Publish(session.Event{Type: session.EventOutput, SessionID: "a", Data: []byte("world")})
	p.Publish(session.Event{Type: session.EventExit, SessionID: "a", ExitCode: 4, Reason: session.ExitReasonExited})

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("pump did not finish")
	}
	assert.Equal(t, "hello world", out.String())

	exit, ok := p.Exit()
	require.True(t, ok)
	assert.Equal(t, 4, exit.ExitCode)
}

func TestOutputPumpIgnoresGrids(t *testing.T) {
	p := newOutputPump()
	p.Publish(session.Event{Type: session.EventGrid, SessionID: "a"})
	_, ok := p.Exit()
	assert.False(t, ok)
	assert.Len(t, p.wake, 0)
}

type recordingWriter struct {
	id   string
	data bytes.Buffer
	err  error
}

func (w *recordingWriter) Write(id string, p []byte) error {
	w.id = id
	if w.err != nil {
		return w.err
	}
	w.data.Write(p)
	return nil
}

func TestCopyInput(t *testing.T) {
	w := &recordingWriter{}
	err := copyInput(strings.NewReader("ls -la\n"), w, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", w.id)
	assert.Equal(t, "ls -la\n", w.data.String())
}

func TestCopyInputDetach(t *testing.T) {
	w := &recordingWriter{}
	err := copyInput(strings.NewReader("abc\x11def"), w, "s1")
	assert.ErrorIs(t, err, errDetach)
	assert.Equal(t, "abc", w.data.String())
}

func TestCopyInputWriteError(t *testing.T) {
	boom := errors.New("boom")
	err := copyInput(strings.NewReader("x"), &recordingWriter{err: boom}, "s1")
	assert.ErrorIs(t, err, boom)
}
