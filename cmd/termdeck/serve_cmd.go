package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/asheshgoplani/termdeck/internal/config"
	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/session"
	"github.com/asheshgoplani/termdeck/internal/web"
)

const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	listen   string
	token    string
	readOnly bool
	mode     string
	shell    string
}

// parseServeFlags parses serve flags over the configured defaults.
func parseServeFlags(cfg *config.Config, args []string) (serveOptions, bool, int) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	opts := serveOptions{}
	fs.StringVar(&opts.listen, "listen", cfg.Web.Listen, "Listen address for the web server")
	fs.StringVar(&opts.token, "token", cfg.Web.Token, "Bearer token for API/WS access")
	fs.BoolVar(&opts.readOnly, "read-only", cfg.Web.ReadOnly, "Reject input, resize and session changes")
	fs.StringVar(&opts.mode, "mode", cfg.Terminal.Mode, "Default session mode: grid or passthrough")
	fs.StringVar(&opts.shell, "shell", cfg.Terminal.Shell, "Shell for new sessions")

	fs.Usage = func() {
		fmt.Println("Usage: termdeck serve [options]")
		fmt.Println()
		fmt.Println("Serve terminal sessions over HTTP, server-sent events and websockets.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  termdeck serve")
		fmt.Println("  termdeck serve --listen 127.0.0.1:9000 --token secret")
		fmt.Println("  termdeck serve --read-only")
		fmt.Println("  termdeck serve --mode passthrough --shell /bin/bash")
	}

	if exit, code := parseFlags(fs, args); exit {
		return opts, true, code
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected arguments: %v\n", fs.Args())
		return opts, true, 2
	}
	return opts, false, 0
}

func handleServe(args []string) int {
	cfg, baseDir, err := bootstrap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer logging.Shutdown()

	opts, exit, code := parseServeFlags(cfg, args)
	if exit {
		return code
	}
	mode, err := session.ParseMode(opts.mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	log := logging.ForComponent(logging.CompWeb)
	j := openJournal(cfg, opts.listen)
	defer j.Close()

	hub := web.NewHub()
	serveCfg := *cfg
	serveCfg.Terminal.Shell = opts.shell
	mgr := newManager(&serveCfg, hub, mode, j)

	var history web.History
	if j != nil {
		history = j.db
	}
	server := web.NewServer(web.Config{
		ListenAddr:  opts.listen,
		ReadOnly:    opts.readOnly,
		Token:       opts.token,
		InputRate:   cfg.Web.InputRate,
		DefaultCols: cfg.Terminal.Cols,
		DefaultRows: cfg.Terminal.Rows,
		Version:     Version,
	}, mgr, hub, history)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGUSR1 dumps the ring buffer for post-mortem debugging.
	usr1 := make(chan os.Signal, 1)
	notifyDump(usr1)
	defer signal.Stop(usr1)
	go func() {
		for range usr1 {
			dumpPath := filepath.Join(baseDir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
			if err := logging.DumpRingBuffer(dumpPath); err != nil {
				log.Error("crash_dump_failed", slog.String("error", err.Error()))
			} else {
				log.Info("crash_dump_written", slog.String("path", dumpPath))
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()
	fmt.Printf("termdeck serving on http://%s\n", opts.listen)

	status := 0
	select {
	case <-ctx.Done():
		log.Info("shutdown_requested")
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			status = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server_shutdown_failed", slog.String("error", err.Error()))
	}
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		log.Warn("session_shutdown_incomplete", slog.String("error", err.Error()))
	}
	return status
}
