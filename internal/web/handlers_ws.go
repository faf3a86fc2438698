package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/session"
	"github.com/asheshgoplani/termdeck/internal/vterm"
)

type wsClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

type wsServerMessage struct {
	Type      string       `json:"type"` // status, error
	Event     string       `json:"event,omitempty"`
	Code      string       `json:"code,omitempty"`
	Message   string       `json:"message,omitempty"`
	SessionID string       `json:"sessionId,omitempty"`
	Mode      session.Mode `json:"mode,omitempty"`
	Cols      int          `json:"cols,omitempty"`
	Rows      int          `json:"rows,omitempty"`
	ExitCode  *int         `json:"exitCode,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	ReadOnly  bool         `json:"readOnly,omitempty"`
	Time      time.Time    `json:"time,omitempty"`
}

type wsGridMessage struct {
	Type      string `json:"type"` // grid
	SessionID string `json:"sessionId"`
	vterm.Snapshot
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowSameOrigin,
}

const wsMaxMessageSize = 1 << 20

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, false, http.MethodGet) {
		return
	}

	const prefix = "/ws/session/"
	sessionID := strings.TrimPrefix(r.URL.Path, prefix)
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "session id is required")
		return
	}
	summary, err := s.sessions.Get(sessionID)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessageSize)

	log := logging.ForComponent(logging.CompWeb).With(slog.String("session_id", sessionID))
	writer := newWSConnWriter(conn)

	sub := s.hub.Subscribe(sessionID)
	defer s.hub.Unsubscribe(sub)

	_ = writer.WriteJSON(wsServerMessage{
		Type:      "status",
		Event:     "connected",
		SessionID: sessionID,
		Mode:      summary.Mode,
		Cols:      summary.Cols,
		Rows:      summary.Rows,
		ReadOnly:  s.cfg.ReadOnly,
		Time:      time.Now().UTC(),
	})

	// The session may have ended between the lookup and Subscribe, in which
	// case its exit event was never delivered to sub.
	if _, err := s.sessions.Get(sessionID); err != nil {
		_ = writer.WriteJSON(wsServerMessage{
			Type:      "status",
			Event:     "exit",
			SessionID: sessionID,
			Time:      time.Now().UTC(),
		})
		return
	}
	if summary.Mode == session.ModeGrid {
		if snap, err := s.sessions.Snapshot(sessionID); err == nil {
			_ = writer.WriteJSON(wsGridMessage{Type: "grid", SessionID: sessionID, Snapshot: snap})
		}
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		s.pumpSession(ctx, writer, sub, log)
		// Unblock ReadMessage below.
		_ = conn.Close()
	}()

	limiter := rate.NewLimiter(rate.Limit(s.cfg.InputRate), s.cfg.InputRate)
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) && ctx.Err() == nil {
				log.Warn("websocket_closed_unexpectedly", slog.String("error", err.Error()))
			}
			return
		}
		if !limiter.Allow() {
			logging.Aggregate(logging.CompWeb, "ws_rate_limited", slog.String("session_id", sessionID))
			_ = writer.WriteJSON(wsServerMessage{
				Type:      "error",
				Code:      "RATE_LIMITED",
				Message:   "too many messages",
				SessionID: sessionID,
				Time:      time.Now().UTC(),
			})
			continue
		}

		// Binary frames are raw keyboard input.
		if msgType == websocket.BinaryMessage {
			s.handleWSInput(writer, sessionID, payload)
			continue
		}

		var msg wsClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = writer.WriteJSON(wsServerMessage{
				Type:      "error",
				Code:      "INVALID_MESSAGE",
				Message:   "invalid json payload",
				SessionID: sessionID,
				Time:      time.Now().UTC(),
			})
			continue
		}

		switch msg.Type {
		case "ping":
			_ = writer.WriteJSON(wsServerMessage{
				Type:      "status",
				Event:     "pong",
				SessionID: sessionID,
				Time:      time.Now().UTC(),
			})
		case "input":
			s.handleWSInput(writer, sessionID, []byte(msg.Data))
		case "resize":
			if s.cfg.ReadOnly {
				writeReadOnlyError(writer, sessionID)
				continue
			}
			if err := s.sessions.Resize(sessionID, msg.Cols, msg.Rows); err != nil {
				_ = writer.WriteJSON(wsServerMessage{
					Type:      "error",
					Code:      "RESIZE_FAILED",
					Message:   err.Error(),
					SessionID: sessionID,
					Time:      time.Now().UTC(),
				})
			}
		default:
			_ = writer.WriteJSON(wsServerMessage{
				Type:      "error",
				Code:      "UNSUPPORTED_MESSAGE",
				Message:   "supported message types: ping,input,resize",
				SessionID: sessionID,
				Time:      time.Now().UTC(),
			})
		}
	}
}

func (s *Server) handleWSInput(writer *wsConnWriter, sessionID string, data []byte) {
	if s.cfg.ReadOnly {
		writeReadOnlyError(writer, sessionID)
		return
	}
	if err := s.sessions.Write(sessionID, data); err != nil {
		_ = writer.WriteJSON(wsServerMessage{
			Type:      "error",
			Code:      "INPUT_WRITE_FAILED",
			Message:   "failed to send input to terminal",
			SessionID: sessionID,
			Time:      time.Now().UTC(),
		})
	}
}

func writeReadOnlyError(writer *wsConnWriter, sessionID string) {
	_ = writer.WriteJSON(wsServerMessage{
		Type:      "error",
		Code:      "READ_ONLY",
		Message:   "input is disabled in read-only mode",
		SessionID: sessionID,
		Time:      time.Now().UTC(),
	})
}

// pumpSession forwards hub events for one subscriber until the session
// exits, the subscriber falls behind, the client goes away or ctx ends.
func (s *Server) pumpSession(ctx context.Context, writer *wsConnWriter, sub *Subscription, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return

		case data := <-sub.Output():
			if err := writer.WriteBinary(data); err != nil {
				return
			}

		case <-sub.GridReady():
			if g := sub.TakeGrid(); g != nil {
				if err := writer.WriteJSON(wsGridMessage{Type: "grid", SessionID: sub.SessionID, Snapshot: *g}); err != nil {
					return
				}
			}

		case e := <-sub.Status():
			if err := writer.WriteJSON(wsServerMessage{
				Type:      "status",
				Event:     "resized",
				SessionID: sub.SessionID,
				Cols:      e.Cols,
				Rows:      e.Rows,
				Time:      e.Time.UTC(),
			}); err != nil {
				return
			}

		case <-sub.Lost():
			log.Warn("websocket_subscriber_dropped")
			_ = writer.WriteJSON(wsServerMessage{
				Type:      "error",
				Code:      "SLOW_CONSUMER",
				Message:   "client fell behind the terminal output",
				SessionID: sub.SessionID,
				Time:      time.Now().UTC(),
			})
			_ = writer.WriteClose(websocket.ClosePolicyViolation, "slow consumer")
			return

		case <-sub.Exited():
			s.flushPending(writer, sub)
			e := sub.ExitEvent()
			code := e.ExitCode
			_ = writer.WriteJSON(wsServerMessage{
				Type:      "status",
				Event:     "exit",
				SessionID: sub.SessionID,
				ExitCode:  &code,
				Reason:    e.Reason,
				Time:      e.Time.UTC(),
			})
			_ = writer.WriteClose(websocket.CloseNormalClosure, "session ended")
			return
		}
	}
}

// flushPending sends output and the last grid queued before the exit event.
func (s *Server) flushPending(writer *wsConnWriter, sub *Subscription) {
	for {
		select {
		case data := <-sub.Output():
			if err := writer.WriteBinary(data); err != nil {
				return
			}
		default:
			if g := sub.TakeGrid(); g != nil {
				_ = writer.WriteJSON(wsGridMessage{Type: "grid", SessionID: sub.SessionID, Snapshot: *g})
			}
			return
		}
	}
}
