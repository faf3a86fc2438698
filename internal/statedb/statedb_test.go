package statedb

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *StateDB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate())

	v, err := db.GetMeta("schema_version")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestReopenKeepsSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	db1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db1.Migrate())
	require.NoError(t, db1.RecordOpen(SessionRow{ID: "s1", Shell: "/bin/sh", Cols: 80, Rows: 24, Mode: "grid"}))
	require.NoError(t, db1.Close())

	db2, err := Open(path)
	require.NoError(t, err)
	defer db2.Close()
	require.NoError(t, db2.Migrate())

	row, err := db2.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, "/bin/sh", row.Shell)
	assert.True(t, row.Open())
}

func TestRecordOpenAndExit(t *testing.T) {
	db := newTestDB(t)
	opened := time.UnixMilli(time.Now().UnixMilli())

	require.NoError(t, db.RecordOpen(SessionRow{
		ID: "abc", Shell: "/bin/zsh", Pid: 4242, Cols: 120, Rows: 40, Mode: "passthrough", OpenedAt: opened,
	}))

	row, err := db.GetSession("abc")
	require.NoError(t, err)
	assert.Equal(t, 4242, row.Pid)
	assert.Equal(t, 120, row.Cols)
	assert.Equal(t, "passthrough", row.Mode)
	assert.Equal(t, db.pid, row.ServerPid)
	assert.True(t, opened.Equal(row.OpenedAt))
	assert.Equal(t, -1, row.ExitCode)

	closed := opened.Add(time.Minute)
	require.NoError(t, db.RecordExit("abc", 0, ReasonExited, closed))
	require.NoError(t, db.RecordExit("abc", 1, ReasonClosed, closed.Add(time.Minute)))

	row, err = db.GetSession("abc")
	require.NoError(t, err)
	assert.False(t, row.Open())
	assert.Equal(t, ReasonExited, row.ExitReason, "first exit wins")
	assert.Equal(t, 0, row.ExitCode)
	assert.True(t, closed.Equal(row.ClosedAt))
}

func TestRecordResize(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.RecordOpen(SessionRow{ID: "r", Shell: "sh", Cols: 80, Rows: 24}))
	require.NoError(t, db.RecordResize("r", 40, 10))

	row, err := db.GetSession("r")
	require.NoError(t, err)
	assert.Equal(t, 40, row.Cols)
	assert.Equal(t, 10, row.Rows)
}

func TestGetSessionUnknown(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetSession("missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestListSessionsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.RecordOpen(SessionRow{
			ID: id, Shell: "sh", Cols: 80, Rows: 24, OpenedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	rows, err := db.ListSessions(0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "c", rows[0].ID)
	assert.Equal(t, "a", rows[2].ID)

	rows, err = db.ListSessions(2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestPruneBefore(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	require.NoError(t, db.RecordOpen(SessionRow{ID: "old", Shell: "sh", Cols: 1, Rows: 1}))
	require.NoError(t, db.RecordExit("old", 0, ReasonExited, now.Add(-48*time.Hour)))
	require.NoError(t, db.RecordOpen(SessionRow{ID: "recent", Shell: "sh", Cols: 1, Rows: 1}))
	require.NoError(t, db.RecordExit("recent", 0, ReasonExited, now))
	require.NoError(t, db.RecordOpen(SessionRow{ID: "running", Shell: "sh", Cols: 1, Rows: 1}))

	n, err := db.PruneBefore(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rows, err := db.ListSessions(0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestServerHeartbeats(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.RegisterServer("127.0.0.1:8430"))
	require.NoError(t, db.Heartbeat())

	pids, err := db.AliveServers(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []int{db.pid}, pids)

	require.NoError(t, db.UnregisterServer())
	pids, err = db.AliveServers(time.Minute)
	require.NoError(t, err)
	assert.Empty(t, pids)
}

func TestReconcileOrphans(t *testing.T) {
	db := newTestDB(t)
	deadServer := db.pid + 100000
	stale := time.Now().Add(-time.Hour).Unix()
	_, err := db.db.Exec(
		"INSERT INTO server_heartbeats (pid, started, heartbeat) VALUES (?, ?, ?)",
		deadServer, stale, stale,
	)
	require.NoError(t, err)

	require.NoError(t, db.RecordOpen(SessionRow{ID: "orphan", Shell: "sh", Cols: 1, Rows: 1, ServerPid: deadServer}))
	require.NoError(t, db.RecordOpen(SessionRow{ID: "mine", Shell: "sh", Cols: 1, Rows: 1}))

	n, err := db.ReconcileOrphans(30 * time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	orphan, err := db.GetSession("orphan")
	require.NoError(t, err)
	assert.Equal(t, ReasonOrphaned, orphan.ExitReason)
	assert.False(t, orphan.Open())

	mine, err := db.GetSession("mine")
	require.NoError(t, err)
	assert.True(t, mine.Open())

	pids, err := db.AliveServers(24 * time.Hour)
	require.NoError(t, err)
	assert.Empty(t, pids, "stale heartbeat removed")
}

func TestMeta(t *testing.T) {
	db := newTestDB(t)
	v, err := db.GetMeta("nope")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, db.SetMeta("k", "v"))
	v, err = db.GetMeta("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
