//go:build unix

package session

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestRealShellRoundTrip drives /bin/sh through the default opener.
func TestRealShellRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a shell")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	sink := &captureSink{}
	m := NewManager(Options{Sink: sink, Tick: 5 * time.Millisecond, Shell: "/bin/sh"})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})

	id, err := m.Open(context.Background(), OpenRequest{Cols: 80, Rows: 24})
	require.NoError(t, err)

	require.NoError(t, m.Write(id, []byte("echo termdeck-$((6*7))\n")))
	sink.waitFor(t, id, EventGrid, func(e Event) bool {
		for r := 0; r < e.Grid.Rows; r++ {
			if strings.TrimSpace(e.Grid.Row(r)) == "termdeck-42" {
				return true
			}
		}
		return false
	})

	require.NoError(t, m.Write(id, []byte("exit 7\n")))
	ev := sink.waitFor(t, id, EventExit, nil)
	require.Equal(t, 7, ev.ExitCode)
	require.Equal(t, ExitReasonExited, ev.Reason)
}
