package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/asheshgoplani/termdeck/internal/config"
	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/statedb"
)

const (
	tableColID     = 8
	tableColShell  = 12
	tableColMode   = 11
	tableColSize   = 9
	tableColOpened = 19
	tableColStatus = 16
)

type historyJSON struct {
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

func handleHistory(args []string) int {
	cfg, _, err := bootstrap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer logging.Shutdown()

	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "Maximum sessions to list (0 for all)")
	jsonOut := fs.Bool("json", false, "Output JSON")
	id := fs.String("id", "", "Show only the session with this id")
	fs.Usage = func() {
		fmt.Println("Usage: termdeck history [options] [limit]")
		fmt.Println()
		fmt.Println("List journaled sessions, most recent first.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if exit, code := parseFlags(fs, args); exit {
		return code
	}
	if fs.NArg() > 0 {
		n, err := strconv.Atoi(fs.Arg(0))
		if err != nil || n < 0 {
			fmt.Fprintf(os.Stderr, "Error: invalid limit %q\n", fs.Arg(0))
			return 2
		}
		*limit = n
	}
	if !cfg.History.HistoryEnabled() {
		fmt.Fprintln(os.Stderr, "Error: history is disabled in config.toml")
		return 1
	}

	path, err := config.DBPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	db, err := statedb.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	rows, err := loadHistory(db, *id, *limit)
	if errors.Is(err, sql.ErrNoRows) {
		fmt.Fprintf(os.Stderr, "Error: no session %q in history\n", *id)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *jsonOut {
		if err := printHistoryJSON(os.Stdout, rows); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to format JSON: %v\n", err)
			return 1
		}
		return 0
	}
	printHistoryTable(os.Stdout, rows)
	return 0
}

// loadHistory returns the session with the given id, or the latest limit
// sessions when id is empty.
func loadHistory(db *statedb.StateDB, id string, limit int) ([]*statedb.SessionRow, error) {
	if id == "" {
		return db.ListSessions(limit)
	}
	row, err := db.GetSession(id)
	if err != nil {
		return nil, err
	}
	return []*statedb.SessionRow{row}, nil
}

func printHistoryJSON(w io.Writer, rows []*statedb.SessionRow) error {
	out := make([]historyJSON, 0, len(rows))
	for _, r := range rows {
		e := historyJSON{
			ID:       r.ID,
			Shell:    r.Shell,
			Pid:      r.Pid,
			Cols:     r.Cols,
			Rows:     r.Rows,
			Mode:     r.Mode,
			OpenedAt: r.OpenedAt.UTC().Format(time.RFC3339),
		}
		if !r.Open() {
			code := r.ExitCode
			e.ClosedAt = r.ClosedAt.UTC().Format(time.RFC3339)
			e.ExitCode = &code
			e.ExitReason = r.ExitReason
		}
		out = append(out, e)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printHistoryTable(w io.Writer, rows []*statedb.SessionRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return
	}
	fmt.Fprintf(w, "%-*s %-*s %-*s %-*s %-*s %s\n",
		tableColID, "ID", tableColShell, "SHELL", tableColMode, "MODE",
		tableColSize, "SIZE", tableColOpened, "OPENED", "STATUS")
	for _, r := range rows {
		fmt.Fprintf(w, "%-*s %-*s %-*s %-*s %-*s %s\n",
			tableColID, truncate(r.ID, tableColID),
			tableColShell, truncate(filepath.Base(r.Shell), tableColShell),
			tableColMode, r.Mode,
			tableColSize, fmt.Sprintf("%dx%d", r.Cols, r.Rows),
			tableColOpened, r.OpenedAt.Local().Format("2006-01-02 15:04:05"),
			truncate(historyStatus(r), tableColStatus))
	}
}

func historyStatus(r *statedb.SessionRow) string {
	if r.Open() {
		return "open"
	}
	if r.ExitReason == statedb.ReasonExited {
		return fmt.Sprintf("exited (%d)", r.ExitCode)
	}
	return r.ExitReason
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
