package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readRecords parses every JSON line of the log file in dir.
func readRecords(t *testing.T, dir string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)

	var records []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var r map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), "line: %s", sc.Text())
		records = append(records, r)
	}
	return records
}

func TestInitWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir})
	t.Cleanup(Shutdown)

	Logger().Info("session_opened", "session_id", "abc")

	records := readRecords(t, dir)
	require.Len(t, records, 1)
	assert.Equal(t, "session_opened", records[0]["msg"])
	assert.Equal(t, "abc", records[0]["session_id"])
}

func TestInitWithoutDirDiscards(t *testing.T) {
	Init(Config{})
	t.Cleanup(Shutdown)

	require.NotNil(t, Logger())
	Logger().Info("goes_nowhere")
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "warn"})
	t.Cleanup(Shutdown)

	Logger().Info("dropped")
	Logger().Warn("kept")

	records := readRecords(t, dir)
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0]["msg"])
}

func TestDebugOverridesLevel(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "error", Debug: true})
	t.Cleanup(Shutdown)

	Logger().Debug("visible")
	assert.Len(t, readRecords(t, dir), 1)
}

func TestForComponentBeforeInit(t *testing.T) {
	Shutdown()
	log := ForComponent(CompLoop).With("session_id", "s1")

	dir := t.TempDir()
	Init(Config{LogDir: dir})
	t.Cleanup(Shutdown)

	log.Info("tick_drained", "bytes", 42)

	records := readRecords(t, dir)
	require.Len(t, records, 1)
	assert.Equal(t, CompLoop, records[0]["component"])
	assert.Equal(t, "s1", records[0]["session_id"])
	assert.EqualValues(t, 42, records[0]["bytes"])
}

func TestForComponentWithGroup(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir})
	t.Cleanup(Shutdown)

	ForComponent(CompPTY).WithGroup("size").Info("resized", "cols", 80)

	records := readRecords(t, dir)
	require.Len(t, records, 1)
	group, ok := records[0]["size"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 80, group["cols"])
}

func TestDumpRingBuffer(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir})
	t.Cleanup(Shutdown)

	Logger().Error("crash_marker")

	dump := filepath.Join(dir, "crash.log")
	require.NoError(t, DumpRingBuffer(dump))
	data, err := os.ReadFile(dump)
	require.NoError(t, err)
	assert.Contains(t, string(data), "crash_marker")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
