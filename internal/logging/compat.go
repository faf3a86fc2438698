package logging

import (
	"bytes"
	"context"
	"log"
	"log/slog"
	"strings"
)

// BridgeWriter adapts slog to io.Writer for libraries that only accept a
// *log.Logger (net/http.Server.ErrorLog). A leading "package: " or
// "[category] " prefix becomes the component field.
type BridgeWriter struct {
	component string
	level     slog.Level
}

// NewBridgeWriter creates a writer that forwards each write as one record.
func NewBridgeWriter(defaultComponent string, level slog.Level) *BridgeWriter {
	return &BridgeWriter{component: defaultComponent, level: level}
}

// NewStdLogger returns a *log.Logger whose output flows into slog.
func NewStdLogger(component string, level slog.Level) *log.Logger {
	return log.New(NewBridgeWriter(component, level), "", 0)
}

// Write implements io.Writer.
func (bw *BridgeWriter) Write(p []byte) (int, error) {
	n := len(p)
	msg := string(bytes.TrimSpace(p))
	if msg == "" {
		return n, nil
	}
	msg = stripLogTimestamp(msg)

	component := bw.component
	if strings.HasPrefix(msg, "[") {
		if idx := strings.Index(msg, "] "); idx > 0 {
			component = strings.ToLower(msg[1:idx])
			msg = msg[idx+2:]
		}
	} else if idx := strings.Index(msg, ": "); idx > 0 && !strings.ContainsAny(msg[:idx], " \t") {
		component = strings.ToLower(msg[:idx])
		msg = msg[idx+2:]
	}

	Logger().Log(context.Background(), bw.level, msg, slog.String("component", canonicalComponent(component, bw.component)))
	return n, nil
}

// stripLogTimestamp removes the prefix added by log.Ltime[|log.Lmicroseconds].
func stripLogTimestamp(s string) string {
	if len(s) > 16 && s[2] == ':' && s[5] == ':' && s[8] == '.' && s[15] == ' ' {
		return s[16:]
	}
	if len(s) > 9 && s[2] == ':' && s[5] == ':' && s[8] == ' ' {
		return s[9:]
	}
	return s
}

// canonicalComponent maps prefixes emitted by third-party code to component
// names. Unknown prefixes fall back to def.
func canonicalComponent(cat, def string) string {
	switch cat {
	case CompPTY, CompVTerm, CompSession, CompLoop, CompWeb, CompStorage, CompUI, CompPerf:
		return cat
	case "http", "http2", "websocket":
		return CompWeb
	case "sqlite", "statedb":
		return CompStorage
	case "bubbletea", "tea":
		return CompUI
	default:
		return def
	}
}
