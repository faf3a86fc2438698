package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component constants for structured logging.
const (
	CompPTY     = "pty"
	CompVTerm   = "vterm"
	CompSession = "session"
	CompLoop    = "loop"
	CompWeb     = "web"
	CompStorage = "storage"
	CompUI      = "ui"
	CompConfig  = "config"
	CompPerf    = "perf"
)

// LogFileName is the rotated log file created inside Config.LogDir.
const LogFileName = "debug.log"

// Config holds logging configuration.
type Config struct {
	// LogDir is the directory for log files (e.g. ~/.termdeck)
	LogDir string

	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string

	// Format is "json" (default) or "text"
	Format string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// RingBufferSize is the in-memory crash buffer size in bytes (default: 4MB)
	RingBufferSize int

	// AggregateIntervalSecs is the event_summary flush interval (default: 30)
	AggregateIntervalSecs int

	// PprofEnabled starts a pprof server on localhost:6060
	PprofEnabled bool

	// Debug forces debug level and enables file output even without LogDir.
	Debug bool
}

type state struct {
	logger *slog.Logger
	ring   *RingBuffer
	agg    *Aggregator
	file   *lumberjack.Logger
}

var (
	globalMu sync.RWMutex
	global   state
)

var discardLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init initializes the global logging system. Calling Init again replaces the
// previous configuration. Without LogDir, logs are discarded.
func Init(cfg Config) {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 10
	}
	if cfg.RingBufferSize <= 0 {
		cfg.RingBufferSize = 4 * 1024 * 1024
	}

	level := ParseLevel(cfg.Level)
	if cfg.Debug {
		level = slog.LevelDebug
	}

	Shutdown()

	globalMu.Lock()
	defer globalMu.Unlock()

	if cfg.LogDir == "" {
		global = state{
			logger: discardLogger,
			ring:   NewRingBuffer(1024),
			agg:    NewAggregator(nil, cfg.AggregateIntervalSecs),
		}
		return
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, LogFileName),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	ring := NewRingBuffer(cfg.RingBufferSize)
	out := io.MultiWriter(file, ring)

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	logger := slog.New(handler)

	agg := NewAggregator(logger, cfg.AggregateIntervalSecs)
	agg.Start()

	global = state{logger: logger, ring: ring, agg: agg, file: file}

	if cfg.PprofEnabled {
		startPprof(logger)
	}
}

// Logger returns the global logger. Safe to call before Init.
func Logger() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global.logger == nil {
		return discardLogger
	}
	return global.logger
}

// ForComponent returns a logger tagged with component=name. The handler is
// resolved on every record, so package-level loggers declared before Init
// still reach the configured output.
func ForComponent(name string) *slog.Logger {
	return slog.New(&dynamicHandler{component: name})
}

type dynamicHandler struct {
	component string
	attrs     []slog.Attr
	groups    []string
}

func (h *dynamicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *dynamicHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := Logger().Handler().WithAttrs([]slog.Attr{slog.String("component", h.component)})
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	for _, g := range h.groups {
		handler = handler.WithGroup(g)
	}
	return handler.Handle(ctx, r)
}

func (h *dynamicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &dynamicHandler{component: h.component, attrs: merged, groups: h.groups}
}

func (h *dynamicHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &dynamicHandler{component: h.component, attrs: h.attrs, groups: groups}
}

// Aggregate records a high-frequency event for batched logging.
func Aggregate(component, event string, fields ...slog.Attr) {
	AggregateN(component, event, 1, fields...)
}

// AggregateN records n occurrences (or n units, e.g. bytes) of an event.
func AggregateN(component, event string, n int64, fields ...slog.Attr) {
	globalMu.RLock()
	agg := global.agg
	globalMu.RUnlock()
	if agg != nil {
		agg.Add(component, event, n, fields...)
	}
}

// DumpRingBuffer writes the recent log history to path.
func DumpRingBuffer(path string) error {
	globalMu.RLock()
	ring := global.ring
	globalMu.RUnlock()
	if ring == nil {
		return nil
	}
	return ring.DumpToFile(path)
}

// Shutdown flushes the aggregator and closes the log file.
func Shutdown() {
	globalMu.Lock()
	old := global
	global = state{}
	globalMu.Unlock()

	if old.agg != nil {
		old.agg.Stop()
	}
	if old.file != nil {
		_ = old.file.Close()
	}
}
