package statedb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/asheshgoplani/termdeck/internal/platform"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// Exit reasons recorded for finished sessions.
const (
	ReasonExited   = "exited"
	ReasonClosed   = "closed"
	ReasonError    = "error"
	ReasonOrphaned = "orphaned"
)

// StateDB is the SQLite session journal. It records when sessions were opened
// and how they ended; terminal content is never stored.
// Safe for concurrent use. Multiple processes share it via WAL + busy timeout.
type StateDB struct {
	db  *sql.DB
	pid int
}

// SessionRow is one journaled session.
type SessionRow struct {
	ID         string
	Shell      string
	Pid        int
	Cols       int
	Rows       int
	Mode       string
	ServerPid  int
	OpenedAt   time.Time
	ClosedAt   time.Time // zero while open
	ExitCode   int
	ExitReason string
}

// Open reports whether the session has not been recorded as finished.
func (r *SessionRow) Open() bool {
	return r.ClosedAt.IsZero()
}

// Open creates or opens the database at dbPath.
func Open(dbPath string) (*StateDB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	// WAL needs shared memory, which network and 9p mounts lack.
	journalMode := "WAL"
	if !platform.SupportsSQLiteWAL(dir) {
		journalMode = "DELETE"
	}
	pragmas := []struct{ name, stmt string }{
		{"journal mode", "PRAGMA journal_mode=" + journalMode},
		{"busy timeout", "PRAGMA busy_timeout=5000"},
		{"foreign keys", "PRAGMA foreign_keys=ON"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("statedb: %s: %w", p.name, err)
		}
	}

	return &StateDB{db: db, pid: os.Getpid()}, nil
}

// Close checkpoints WAL and closes the database.
func (s *StateDB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Migrate creates tables if they don't exist and records the schema version.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []struct{ name, ddl string }{
		{"metadata", `
			CREATE TABLE IF NOT EXISTS metadata (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`},
		{"sessions", `
			CREATE TABLE IF NOT EXISTS sessions (
				id          TEXT PRIMARY KEY,
				shell       TEXT NOT NULL,
				pid         INTEGER NOT NULL DEFAULT 0,
				cols        INTEGER NOT NULL,
				rows        INTEGER NOT NULL,
				mode        TEXT NOT NULL DEFAULT 'grid',
				server_pid  INTEGER NOT NULL DEFAULT 0,
				opened_at   INTEGER NOT NULL,
				closed_at   INTEGER NOT NULL DEFAULT 0,
				exit_code   INTEGER NOT NULL DEFAULT -1,
				exit_reason TEXT NOT NULL DEFAULT ''
			)`},
		{"sessions index", `
			CREATE INDEX IF NOT EXISTS sessions_opened_at ON sessions (opened_at)`},
		{"server heartbeats", `
			CREATE TABLE IF NOT EXISTS server_heartbeats (
				pid       INTEGER PRIMARY KEY,
				started   INTEGER NOT NULL,
				heartbeat INTEGER NOT NULL,
				listen    TEXT NOT NULL DEFAULT ''
			)`},
	}
	for _, st := range stmts {
		if _, err := tx.Exec(st.ddl); err != nil {
			return fmt.Errorf("statedb: create %s: %w", st.name, err)
		}
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)",
		strconv.Itoa(SchemaVersion),
	); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}

	return tx.Commit()
}

// --- Session journal ---

// RecordOpen journals a newly opened session. ServerPid defaults to this
// process.
func (s *StateDB) RecordOpen(row SessionRow) error {
	if row.ServerPid == 0 {
		row.ServerPid = s.pid
	}
	if row.OpenedAt.IsZero() {
		row.OpenedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sessions (
			id, shell, pid, cols, rows, mode, server_pid, opened_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.ID, row.Shell, row.Pid, row.Cols, row.Rows, row.Mode, row.ServerPid,
		row.OpenedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("statedb: record open %s: %w", row.ID, err)
	}
	return nil
}

// RecordExit marks a session finished. Only the first exit is kept.
func (s *StateDB) RecordExit(id string, exitCode int, reason string, at time.Time) error {
	_, err := s.db.Exec(`
		UPDATE sessions SET closed_at = ?, exit_code = ?, exit_reason = ?
		WHERE id = ? AND closed_at = 0
	`, at.UnixMilli(), exitCode, reason, id)
	if err != nil {
		return fmt.Errorf("statedb: record exit %s: %w", id, err)
	}
	return nil
}

// RecordResize updates the stored geometry of a session.
func (s *StateDB) RecordResize(id string, cols, rows int) error {
	_, err := s.db.Exec("UPDATE sessions SET cols = ?, rows = ? WHERE id = ?", cols, rows, id)
	if err != nil {
		return fmt.Errorf("statedb: record resize %s: %w", id, err)
	}
	return nil
}

const sessionColumns = `id, shell, pid, cols, rows, mode, server_pid,
	opened_at, closed_at, exit_code, exit_reason`

func scanSession(sc interface{ Scan(...any) error }) (*SessionRow, error) {
	r := &SessionRow{}
	var opened, closed int64
	if err := sc.Scan(
		&r.ID, &r.Shell, &r.Pid, &r.Cols, &r.Rows, &r.Mode, &r.ServerPid,
		&opened, &closed, &r.ExitCode, &r.ExitReason,
	); err != nil {
		return nil, err
	}
	r.OpenedAt = time.UnixMilli(opened)
	if closed != 0 {
		r.ClosedAt = time.UnixMilli(closed)
	}
	return r, nil
}

// GetSession returns one session, or sql.ErrNoRows wrapped when unknown.
func (s *StateDB) GetSession(id string) (*SessionRow, error) {
	row := s.db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	r, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("statedb: get session %s: %w", id, err)
	}
	return r, nil
}

// ListSessions returns the most recently opened sessions first. limit <= 0
// returns all of them.
func (s *StateDB) ListSessions(limit int) ([]*SessionRow, error) {
	query := "SELECT " + sessionColumns + " FROM sessions ORDER BY opened_at DESC, id"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("statedb: list sessions: %w", err)
	}
	defer rows.Close()

	var result []*SessionRow
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("statedb: scan session: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// PruneBefore deletes finished sessions that closed before cutoff and
// returns how many were removed.
func (s *StateDB) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(
		"DELETE FROM sessions WHERE closed_at != 0 AND closed_at < ?",
		cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("statedb: prune: %w", err)
	}
	return res.RowsAffected()
}

// --- Server heartbeats ---

// RegisterServer records this process as a running server.
func (s *StateDB) RegisterServer(listen string) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO server_heartbeats (pid, started, heartbeat, listen)
		VALUES (?, ?, ?, ?)
	`, s.pid, now, now, listen)
	return err
}

// Heartbeat refreshes this server's heartbeat timestamp.
func (s *StateDB) Heartbeat() error {
	_, err := s.db.Exec(
		"UPDATE server_heartbeats SET heartbeat = ? WHERE pid = ?",
		time.Now().Unix(), s.pid,
	)
	return err
}

// UnregisterServer removes this process from the heartbeat table.
func (s *StateDB) UnregisterServer() error {
	_, err := s.db.Exec("DELETE FROM server_heartbeats WHERE pid = ?", s.pid)
	return err
}

// AliveServers returns the pids of servers with a heartbeat newer than timeout.
func (s *StateDB) AliveServers(timeout time.Duration) ([]int, error) {
	cutoff := time.Now().Add(-timeout).Unix()
	rows, err := s.db.Query("SELECT pid FROM server_heartbeats WHERE heartbeat >= ? ORDER BY pid", cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pids []int
	for rows.Next() {
		var pid int
		if err := rows.Scan(&pid); err != nil {
			return nil, err
		}
		pids = append(pids, pid)
	}
	return pids, rows.Err()
}

// ReconcileOrphans closes the journal entries of sessions whose owning server
// stopped heartbeating (crashed or killed) and drops the stale heartbeats.
// Returns the number of sessions marked orphaned.
func (s *StateDB) ReconcileOrphans(timeout time.Duration) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("statedb: begin reconcile: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := time.Now().Add(-timeout).Unix()
	res, err := tx.Exec(`
		UPDATE sessions SET closed_at = ?, exit_reason = ?
		WHERE closed_at = 0 AND server_pid != ? AND server_pid NOT IN (
			SELECT pid FROM server_heartbeats WHERE heartbeat >= ?
		)
	`, time.Now().UnixMilli(), ReasonOrphaned, s.pid, cutoff)
	if err != nil {
		return 0, fmt.Errorf("statedb: mark orphans: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM server_heartbeats WHERE heartbeat < ?", cutoff); err != nil {
		return 0, fmt.Errorf("statedb: clean heartbeats: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("statedb: commit reconcile: %w", err)
	}
	return res.RowsAffected()
}

// --- Metadata ---

// SetMeta sets a key-value pair in the metadata table.
func (s *StateDB) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta gets a value from the metadata table. Returns "" if not found.
func (s *StateDB) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}
