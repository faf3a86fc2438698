package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/asheshgoplani/termdeck/internal/procinfo"
	"github.com/asheshgoplani/termdeck/internal/session"
	"github.com/asheshgoplani/termdeck/internal/statedb"
)

const (
	maxRequestBody      = 1 << 20
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

type openSessionRequest struct {
	Shell string `json:"shell"`
	Dir   string `json:"dir"`
	Cols  int    `json:"cols"`
	Rows  int    `json:"rows"`
	Mode  string `json:"mode"`
}

type openSessionResponse struct {
	ID      string          `json:"id"`
	Session session.Summary `json:"session"`
}

type sessionListResponse struct {
	Sessions []session.Summary `json:"sessions"`
}

type inputRequest struct {
	Data string `json:"data"`
}

type resizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type processResponse struct {
	SessionID string         `json:"sessionId"`
	Process   *procinfo.Info `json:"process"`
}

type historyEntry struct {
	ID         string `json:"id"`
	Shell      string `json:"shell"`
	Pid        int    `json:"pid"`
	Cols       int    `json:"cols"`
	Rows       int    `json:"rows"`
	Mode       string `json:"mode"`
	OpenedAt   string `json:"openedAt"`
	ClosedAt   string `json:"closedAt,omitempty"`
	ExitCode   *int   `json:"exitCode,omitempty"`
	ExitReason string `json:"exitReason,omitempty"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !s.allow(w, r, false, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, sessionListResponse{Sessions: s.sessions.Sessions()})
	default:
		if !s.allow(w, r, true, http.MethodGet, http.MethodPost) {
			return
		}
		s.openSession(w, r)
	}
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Cols == 0 {
		req.Cols = s.cfg.DefaultCols
	}
	if req.Rows == 0 {
		req.Rows = s.cfg.DefaultRows
	}
	var mode session.Mode
	if req.Mode != "" {
		m, err := session.ParseMode(req.Mode)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "INVALID_MODE", err.Error())
			return
		}
		mode = m
	}

	id, err := s.sessions.Open(r.Context(), session.OpenRequest{
		Shell: req.Shell,
		Dir:   req.Dir,
		Cols:  req.Cols,
		Rows:  req.Rows,
		Mode:  mode,
	})
	if err != nil {
		writeSessionError(w, err)
		return
	}
	sum, err := s.sessions.Get(id)
	if err != nil {
		// The shell exited before we could describe it.
		sum = session.Summary{ID: id}
	}
	writeJSON(w, http.StatusCreated, openSessionResponse{ID: id, Session: sum})
}

// handleSessionByID routes /api/sessions/{id}[/{action}].
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/sessions/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "session id is required")
		return
	}

	switch action {
	case "":
		if r.Method == http.MethodDelete {
			if !s.allow(w, r, true, http.MethodDelete) {
				return
			}
			if err := s.sessions.Close(id); err != nil {
				writeSessionError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		if !s.allow(w, r, false, http.MethodGet, http.MethodDelete) {
			return
		}
		sum, err := s.sessions.Get(id)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)

	case "input":
		if !s.allow(w, r, true, http.MethodPost) {
			return
		}
		var req inputRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := s.sessions.Write(id, []byte(req.Data)); err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case "resize":
		if !s.allow(w, r, true, http.MethodPost) {
			return
		}
		var req resizeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := s.sessions.Resize(id, req.Cols, req.Rows); err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case "process":
		if !s.allow(w, r, false, http.MethodGet) {
			return
		}
		if _, err := s.sessions.Get(id); err != nil {
			writeSessionError(w, err)
			return
		}
		resp := processResponse{SessionID: id}
		if info, ok := s.sessions.ProcessInfo(r.Context(), id); ok {
			resp.Process = &info
		}
		writeJSON(w, http.StatusOK, resp)

	case "snapshot":
		if !s.allow(w, r, false, http.MethodGet) {
			return
		}
		snap, err := s.sessions.Snapshot(id)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)

	default:
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, false, http.MethodGet) {
		return
	}
	if s.history == nil {
		writeAPIError(w, http.StatusNotFound, "HISTORY_DISABLED", "session history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	rows, err := s.history.ListSessions(limit)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load history")
		return
	}
	entries := make([]historyEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toHistoryEntry(row))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": entries})
}

func toHistoryEntry(row *statedb.SessionRow) historyEntry {
	e := historyEntry{
		ID:       row.ID,
		Shell:    row.Shell,
		Pid:      row.Pid,
		Cols:     row.Cols,
		Rows:     row.Rows,
		Mode:     row.Mode,
		OpenedAt: row.OpenedAt.UTC().Format(timeFormat),
	}
	if !row.Open() {
		code := row.ExitCode
		e.ClosedAt = row.ClosedAt.UTC().Format(timeFormat)
		e.ExitCode = &code
		e.ExitReason = row.ExitReason
	}
	return e
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// decodeBody parses a JSON request body into v, writing a 400 on failure.
// An empty body leaves v untouched; any other body must be application/json.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength != 0 {
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "application/json" {
			writeAPIError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "request body must be application/json")
			return false
		}
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json body: "+err.Error())
		return false
	}
	return true
}
