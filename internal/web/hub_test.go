package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/termdeck/internal/session"
	"github.com/asheshgoplani/termdeck/internal/vterm"
)

func TestHubCoalescesGrids(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("s1")

	for i := 1; i <= 3; i++ {
		snap := vterm.Snapshot{Cols: i, Rows: 1}
		hub.Publish(session.Event{Type: session.EventGrid, SessionID: "s1", Grid: &snap})
	}

	<-sub.GridReady()
	g := sub.TakeGrid()
	require.NotNil(t, g)
	assert.Equal(t, 3, g.Cols, "only the latest grid is kept")
	assert.Nil(t, sub.TakeGrid())
}

func TestHubRoutesBySession(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe("a")
	b := hub.Subscribe("b")

	hub.Publish(session.Event{Type: session.EventOutput, SessionID: "a", Data: []byte("for a")})

	assert.Equal(t, []byte("for a"), <-a.Output())
	assert.Empty(t, b.Output())
}

func TestHubDropsLaggingOutputSubscriber(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("s1")

	for i := 0; i < outputQueueSize+1; i++ {
		hub.Publish(session.Event{Type: session.EventOutput, SessionID: "s1", Data: []byte("x")})
	}

	select {
	case <-sub.Lost():
	default:
		t.Fatal("expected lagging subscriber to be marked lost")
	}
	assert.Len(t, sub.Output(), outputQueueSize)
}

func TestHubExit(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("s1")

	hub.Publish(session.Event{Type: session.EventExit, SessionID: "s1", ExitCode: 4, Reason: session.ExitReasonExited})
	hub.Publish(session.Event{Type: session.EventExit, SessionID: "s1", ExitCode: 9})

	<-sub.Exited()
	assert.Equal(t, 4, sub.ExitEvent().ExitCode)
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("s1")
	assert.Equal(t, 1, hub.Subscribers("s1"))

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	hub.Unsubscribe(nil)
	assert.Zero(t, hub.Subscribers("s1"))

	hub.Publish(session.Event{Type: session.EventOutput, SessionID: "s1", Data: []byte("x")})
	assert.Empty(t, sub.Output())
}

func TestHubWatchLifecycle(t *testing.T) {
	hub := NewHub()
	events, stop := hub.Watch()

	hub.Publish(session.Event{Type: session.EventOpened, SessionID: "s1"})
	hub.Publish(session.Event{Type: session.EventOutput, SessionID: "s1", Data: []byte("x")})
	hub.Publish(session.Event{Type: session.EventResized, SessionID: "s1", Cols: 9})

	assert.Equal(t, session.EventOpened, (<-events).Type)
	assert.Equal(t, session.EventResized, (<-events).Type)
	assert.Empty(t, events)

	stop()
	stop()
	hub.Publish(session.Event{Type: session.EventExit, SessionID: "s1"})
	assert.Empty(t, events)
}

var _ session.Sink = (*Hub)(nil)
