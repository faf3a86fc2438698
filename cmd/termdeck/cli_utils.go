package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/asheshgoplani/termdeck/internal/config"
	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/procinfo"
	"github.com/asheshgoplani/termdeck/internal/session"
	"github.com/asheshgoplani/termdeck/internal/statedb"
	"github.com/asheshgoplani/termdeck/internal/vterm"
)

const (
	heartbeatInterval = 10 * time.Second
	heartbeatTimeout  = 30 * time.Second

	// metaAppVersion is the journal metadata key holding the version of
	// the last termdeck that opened it.
	metaAppVersion = "app_version"
)

// normalizeArgs reorders args so flags come before positional arguments.
// The flag package stops at the first non-flag argument, so
// "history 20 --json" would otherwise ignore --json.
func normalizeArgs(fs *flag.FlagSet, args []string) []string {
	boolFlags := make(map[string]bool)
	fs.VisitAll(func(f *flag.Flag) {
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			boolFlags[f.Name] = true
		}
	})

	var flags, positional, rest []string
	terminated := false
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			terminated = true
			rest = args[i+1:]
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			positional = append(positional, arg)
			continue
		}
		flags = append(flags, arg)
		name := strings.TrimLeft(arg, "-")
		if strings.Contains(name, "=") {
			continue
		}
		if !boolFlags[name] && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	if terminated {
		// Keep the terminator so arguments after it are never parsed as flags.
		flags = append(flags, "--")
		return append(append(flags, positional...), rest...)
	}
	return append(flags, positional...)
}

// parseFlags parses args into fs. It returns (false, 0) on success and
// (true, code) when the caller should exit with code.
func parseFlags(fs *flag.FlagSet, args []string) (bool, int) {
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return true, 0
		}
		return true, 2
	}
	return false, 0
}

// bootstrap loads the configuration and starts logging. Callers must defer
// logging.Shutdown.
func bootstrap() (*config.Config, string, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, "", fmt.Errorf("create %s: %w", dir, err)
	}
	cfg, err := config.Load()
	if err != nil {
		// Load still returns usable defaults.
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
	logging.Init(cfg.LoggingConfig(dir))
	return cfg, dir, nil
}

// journal wraps the session database with this process's heartbeat.
type journal struct {
	db   *statedb.StateDB
	stop chan struct{}
	done chan struct{}
}

// openJournal opens the session journal, registers this process and prunes
// old entries. It returns nil when history is disabled or unavailable; the
// failure is logged, not fatal.
func openJournal(cfg *config.Config, role string) *journal {
	if !cfg.History.HistoryEnabled() {
		return nil
	}
	log := logging.ForComponent(logging.CompStorage)

	path, err := config.DBPath()
	if err != nil {
		log.Warn("journal_unavailable", slog.String("error", err.Error()))
		return nil
	}
	db, err := statedb.Open(path)
	if err == nil {
		err = db.Migrate()
		if err != nil {
			_ = db.Close()
		}
	}
	if err != nil {
		log.Warn("journal_unavailable", slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}

	if prev, err := db.GetMeta(metaAppVersion); err == nil && prev != "" && prev != Version {
		log.Info("journal_version_changed", slog.String("from", prev), slog.String("to", Version))
	}
	if err := db.SetMeta(metaAppVersion, Version); err != nil {
		log.Warn("journal_meta_failed", slog.String("error", err.Error()))
	}
	if err := db.RegisterServer(role); err != nil {
		log.Warn("heartbeat_register_failed", slog.String("error", err.Error()))
	}
	if n, err := db.ReconcileOrphans(heartbeatTimeout); err != nil {
		log.Warn("reconcile_failed", slog.String("error", err.Error()))
	} else if n > 0 {
		log.Info("orphans_reconciled", slog.Int64("sessions", n))
	}
	if pids, err := db.AliveServers(heartbeatTimeout); err == nil && len(pids) > 1 {
		log.Info("journal_shared", slog.Int("servers", len(pids)))
	}
	if retention := cfg.History.Retention(); retention > 0 {
		if n, err := db.PruneBefore(time.Now().Add(-retention)); err != nil {
			log.Warn("prune_failed", slog.String("error", err.Error()))
		} else if n > 0 {
			log.Info("history_pruned", slog.Int64("sessions", n))
		}
	}

	j := &journal{db: db, stop: make(chan struct{}), done: make(chan struct{})}
	go j.heartbeat()
	return j
}

func (j *journal) heartbeat() {
	defer close(j.done)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			if err := j.db.Heartbeat(); err != nil {
				logging.Aggregate(logging.CompStorage, "heartbeat_failed")
			}
		}
	}
}

// Close stops the heartbeat, unregisters and closes the database. Safe on a
// nil journal.
func (j *journal) Close() {
	if j == nil {
		return
	}
	close(j.stop)
	<-j.done
	_ = j.db.UnregisterServer()
	_ = j.db.Close()
}

// newManager builds a session manager from the configuration. j may be nil.
func newManager(cfg *config.Config, sink session.Sink, mode session.Mode, j *journal) *session.Manager {
	opts := session.Options{
		Sink:      sink,
		Mode:      mode,
		Tick:      cfg.Terminal.Tick(),
		Palette:   vterm.PaletteFor(cfg.ResolveTheme()),
		Inspector: procinfo.NewSystem(),
		Shell:     cfg.Terminal.Shell,
		Env:       cfg.Terminal.Env,
	}
	if j != nil {
		opts.Journal = j.db
	}
	return session.NewManager(opts)
}

// configuredMode parses the configured terminal mode.
func configuredMode(cfg *config.Config) session.Mode {
	mode, err := session.ParseMode(cfg.Terminal.Mode)
	if err != nil {
		return session.ModeGrid
	}
	return mode
}
