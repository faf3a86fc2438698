package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/asheshgoplani/termdeck/internal/session"
)

var sessionEventsHeartbeatInterval = 15 * time.Second

type lifecycleMessage struct {
	SessionID string    `json:"sessionId"`
	Cols      int       `json:"cols,omitempty"`
	Rows      int       `json:"rows,omitempty"`
	ExitCode  *int      `json:"exitCode,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Time      time.Time `json:"time"`
}

func toLifecycleMessage(e session.Event) lifecycleMessage {
	msg := lifecycleMessage{SessionID: e.SessionID, Time: e.Time.UTC()}
	switch e.Type {
	case session.EventExit:
		code := e.ExitCode
		msg.ExitCode = &code
		msg.Reason = e.Reason
	default:
		msg.Cols, msg.Rows = e.Cols, e.Rows
	}
	return msg
}

// handleSessionEvents streams session lifecycle changes. The first event
// ("sessions") lists every open session; "opened", "resized" and "exit"
// follow as they happen.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, false, http.MethodGet) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "stream unavailable")
		return
	}

	// Watch before listing so nothing between the two is missed.
	events, stop := s.hub.Watch()
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeSSEEvent(w, flusher, "sessions", sessionListResponse{Sessions: s.sessions.Sessions()}); err != nil {
		return
	}

	heartbeatTicker := time.NewTicker(sessionEventsHeartbeatInterval)
	defer heartbeatTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeatTicker.C:
			if err := writeSSEComment(w, flusher, "keepalive"); err != nil {
				return
			}
		case e := <-events:
			if err := writeSSEEvent(w, flusher, string(e.Type), toLifecycleMessage(e)); err != nil {
				return
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeSSEComment(w http.ResponseWriter, flusher http.Flusher, comment string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", comment); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
