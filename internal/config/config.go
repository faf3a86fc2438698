package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	dark "github.com/thiagokokada/dark-mode-go"

	"github.com/asheshgoplani/termdeck/internal/logging"
)

const (
	// DirName is the state directory created under the user's home.
	DirName = ".termdeck"

	// FileName is the config file inside the state directory.
	FileName = "config.toml"

	// DBFileName is the session journal inside the state directory.
	DBFileName = "state.db"

	// HomeEnv overrides the state directory.
	HomeEnv = "TERMDECK_HOME"

	// DebugEnv enables debug logging when set to a non-empty value.
	DebugEnv = "TERMDECK_DEBUG"
)

// Terminal modes.
const (
	ModeGrid        = "grid"
	ModePassthrough = "passthrough"
)

// Theme names.
const (
	ThemeDark   = "dark"
	ThemeLight  = "light"
	ThemeSystem = "system"
)

// Size limits accepted for a terminal.
const (
	MinSize = 1
	MaxSize = 1000
)

// Config is the contents of config.toml.
type Config struct {
	Terminal TerminalSettings `toml:"terminal"`
	Web      WebSettings      `toml:"web"`
	History  HistorySettings  `toml:"history"`
	Logs     LogSettings      `toml:"logs"`
}

// TerminalSettings configures new sessions.
type TerminalSettings struct {
	// Shell to launch. Empty means $SHELL, then /bin/zsh, /bin/bash, /bin/sh.
	Shell string `toml:"shell"`

	// Cols and Rows are the initial size (default 80x24).
	Cols int `toml:"cols"`
	Rows int `toml:"rows"`

	// Mode is "grid" (interpret escape sequences into a cell grid) or
	// "passthrough" (forward raw output to the display).
	Mode string `toml:"mode"`

	// TickMillis is the update loop period (default 16).
	TickMillis int `toml:"tick_ms"`

	// Theme is "dark", "light" or "system".
	Theme string `toml:"theme"`

	// Env is extra KEY=VALUE pairs for every shell.
	Env []string `toml:"env"`
}

// WebSettings configures `termdeck serve`.
type WebSettings struct {
	Listen   string `toml:"listen"`
	Token    string `toml:"token"`
	ReadOnly bool   `toml:"read_only"`

	// InputRate is the websocket messages per second accepted per client
	// (default 200).
	InputRate int `toml:"input_rate"`
}

// HistorySettings configures the session journal.
type HistorySettings struct {
	// Enabled defaults to true.
	Enabled *bool `toml:"enabled"`

	// RetentionDays prunes finished sessions older than this (default 30).
	RetentionDays int `toml:"retention_days"`
}

// LogSettings configures debug.log.
type LogSettings struct {
	// Level is "debug", "info", "warn" or "error" (default "info").
	Level string `toml:"level"`

	// Format is "json" (default) or "text".
	Format string `toml:"format"`

	MaxSizeMB  int `toml:"max_size_mb"`
	MaxBackups int `toml:"max_backups"`
	MaxAgeDays int `toml:"max_age_days"`

	// Compress rotated logs. Defaults to true.
	Compress *bool `toml:"compress"`

	// RingBufferMB is the in-memory crash buffer (default 4).
	RingBufferMB int `toml:"ring_buffer_mb"`

	// AggregateIntervalSecs is the event_summary period (default 30).
	AggregateIntervalSecs int `toml:"aggregate_interval_secs"`

	// Pprof starts a pprof server on localhost:6060.
	Pprof bool `toml:"pprof"`
}

// Default returns a config with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	t := &c.Terminal
	if t.Cols <= 0 {
		t.Cols = 80
	}
	if t.Rows <= 0 {
		t.Rows = 24
	}
	if t.Mode == "" {
		t.Mode = ModeGrid
	}
	if t.TickMillis <= 0 {
		t.TickMillis = 16
	}
	if t.Theme == "" {
		t.Theme = ThemeDark
	}

	if c.Web.Listen == "" {
		c.Web.Listen = "127.0.0.1:8430"
	}
	if c.Web.InputRate <= 0 {
		c.Web.InputRate = 200
	}

	if c.History.RetentionDays <= 0 {
		c.History.RetentionDays = 30
	}

	l := &c.Logs
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
	if l.MaxSizeMB <= 0 {
		l.MaxSizeMB = 10
	}
	if l.MaxBackups <= 0 {
		l.MaxBackups = 5
	}
	if l.MaxAgeDays <= 0 {
		l.MaxAgeDays = 10
	}
	if l.RingBufferMB <= 0 {
		l.RingBufferMB = 4
	}
	if l.AggregateIntervalSecs <= 0 {
		l.AggregateIntervalSecs = 30
	}
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	var errs []error
	t := c.Terminal
	if t.Mode != ModeGrid && t.Mode != ModePassthrough {
		errs = append(errs, fmt.Errorf("terminal.mode must be %q or %q, got %q", ModeGrid, ModePassthrough, t.Mode))
	}
	if t.Cols < MinSize || t.Cols > MaxSize || t.Rows < MinSize || t.Rows > MaxSize {
		errs = append(errs, fmt.Errorf("terminal size %dx%d out of range %d-%d", t.Cols, t.Rows, MinSize, MaxSize))
	}
	switch t.Theme {
	case ThemeDark, ThemeLight, ThemeSystem:
	default:
		errs = append(errs, fmt.Errorf("terminal.theme must be dark, light or system, got %q", t.Theme))
	}
	for _, kv := range t.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			errs = append(errs, fmt.Errorf("terminal.env entry %q is not KEY=VALUE", kv))
		}
	}
	return errors.Join(errs...)
}

// Tick returns the update loop period.
func (t TerminalSettings) Tick() time.Duration {
	return time.Duration(t.TickMillis) * time.Millisecond
}

// HistoryEnabled reports whether sessions are journaled (default true).
func (h HistorySettings) HistoryEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// Retention returns how long finished sessions are kept in the journal.
func (h HistorySettings) Retention() time.Duration {
	return time.Duration(h.RetentionDays) * 24 * time.Hour
}

// CompressEnabled reports whether rotated logs are gzipped (default true).
func (l LogSettings) CompressEnabled() bool {
	return l.Compress == nil || *l.Compress
}

// LoggingConfig maps the log settings onto logging.Config for dir.
func (c *Config) LoggingConfig(dir string) logging.Config {
	l := c.Logs
	return logging.Config{
		LogDir:                dir,
		Level:                 l.Level,
		Format:                l.Format,
		MaxSizeMB:             l.MaxSizeMB,
		MaxBackups:            l.MaxBackups,
		MaxAgeDays:            l.MaxAgeDays,
		Compress:              l.CompressEnabled(),
		RingBufferSize:        l.RingBufferMB * 1024 * 1024,
		AggregateIntervalSecs: l.AggregateIntervalSecs,
		PprofEnabled:          l.Pprof,
		Debug:                 os.Getenv(DebugEnv) != "",
	}
}

// ResolveTheme resolves the configured theme to "dark" or "light". "system"
// asks the OS and falls back to dark when detection fails.
func (c *Config) ResolveTheme() string {
	return resolveTheme(c.Terminal.Theme, dark.IsDarkMode)
}

func resolveTheme(theme string, isDark func() (bool, error)) string {
	switch theme {
	case ThemeLight:
		return ThemeLight
	case ThemeSystem:
		d, err := isDark()
		if err == nil && !d {
			return ThemeLight
		}
		return ThemeDark
	default:
		return ThemeDark
	}
}

// Dir returns the state directory: $TERMDECK_HOME or ~/.termdeck.
func Dir() (string, error) {
	if d := os.Getenv(HomeEnv); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Path returns the config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// DBPath returns the session journal path.
func DBPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DBFileName), nil
}

var (
	cacheMu sync.RWMutex
	cache   *Config
)

// Load returns the cached config, reading config.toml on first use. A missing
// file yields defaults. A parse error is returned together with defaults,
// which are cached so the file is not re-parsed on every call.
func Load() (*Config, error) {
	cacheMu.RLock()
	if cache != nil {
		defer cacheMu.RUnlock()
		return cache, nil
	}
	cacheMu.RUnlock()

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cache != nil {
		return cache, nil
	}

	path, err := Path()
	if err != nil {
		cache = Default()
		return cache, nil
	}
	cfg, err := LoadFile(path)
	if err != nil {
		cache = Default()
		return cache, err
	}
	cache = cfg
	return cache, nil
}

// Reload drops the cache and reads config.toml again.
func Reload() (*Config, error) {
	ClearCache()
	return Load()
}

// ClearCache forgets the cached config without reloading.
func ClearCache() {
	cacheMu.Lock()
	cache = nil
	cacheMu.Unlock()
}

// LoadFile reads and validates a config file. A missing file yields defaults.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s parse error: %w", filepath.Base(path), err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		logging.ForComponent(logging.CompConfig).Warn("config_unknown_keys",
			"path", path, "keys", strings.Join(keys, ","))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Save writes cfg to config.toml atomically and clears the cache.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := SaveFile(path, cfg); err != nil {
		return err
	}
	ClearCache()
	return nil
}

// SaveFile writes cfg to path via a synced temp file and rename.
func SaveFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# termdeck configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+FileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to finalize config save: %w", err)
	}
	return nil
}
