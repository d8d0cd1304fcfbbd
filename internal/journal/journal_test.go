package journal

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testSession() *Session {
	return &Session{
		SourcePath:  "/media/ambilight/demo.amb",
		Destination: "10.0.0.40:19446",
		Zones:       254,
		Leds:        254,
		FPS:         23.976,
		Format:      "rgb",
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"sessions", "events", "tick_stats"} {
		var n int
		err := db.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s should exist", table)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	db := openTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var synchronous int
	require.NoError(t, db.QueryRow("PRAGMA synchronous").Scan(&synchronous))
	assert.Equal(t, 1, synchronous)
}

func TestStartSession_FillsIDAndStart(t *testing.T) {
	db := openTestDB(t)

	s := testSession()
	require.NoError(t, db.StartSession(s))

	assert.NotEmpty(t, s.ID)
	_, err := uuid.Parse(s.ID)
	assert.NoError(t, err, "generated id should be a uuid")
	assert.Greater(t, s.StartedAt, 0.0)

	got, err := db.Session(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.SourcePath, got.SourcePath)
	assert.Equal(t, s.Destination, got.Destination)
	assert.Equal(t, s.Zones, got.Zones)
	assert.Equal(t, s.Leds, got.Leds)
	assert.InDelta(t, s.FPS, got.FPS, 1e-9)
	assert.Equal(t, s.Format, got.Format)
	assert.Nil(t, got.EndedAt)
}

func TestStartSession_KeepsCallerValues(t *testing.T) {
	db := openTestDB(t)

	s := testSession()
	s.ID = "session-fixed"
	s.StartedAt = 42.5
	require.NoError(t, db.StartSession(s))

	got, err := db.Session("session-fixed")
	require.NoError(t, err)
	assert.Equal(t, "session-fixed", got.ID)
	assert.InDelta(t, 42.5, got.StartedAt, 1e-9)
}

func TestEndSession(t *testing.T) {
	db := openTestDB(t)

	s := testSession()
	require.NoError(t, db.StartSession(s))
	require.NoError(t, db.EndSession(s.ID))

	got, err := db.Session(s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.GreaterOrEqual(t, *got.EndedAt, got.StartedAt)
}

func TestEndSession_Unknown(t *testing.T) {
	db := openTestDB(t)
	assert.Error(t, db.EndSession("no-such-session"))
}

func TestSession_NotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Session("no-such-session")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestRecordEvent_RoundTrip(t *testing.T) {
	db := openTestDB(t)

	s := testSession()
	require.NoError(t, db.StartSession(s))
	other := testSession()
	require.NoError(t, db.StartSession(other))

	require.NoError(t, db.RecordEvent(s.ID, KindStart, 0, ""))
	require.NoError(t, db.RecordEvent(s.ID, "seek", 90.5, ""))
	require.NoError(t, db.RecordEvent(s.ID, "beat", 12.5, "epoch=1750719826.031"))
	require.NoError(t, db.RecordEvent(s.ID, KindTransmitError, 3, ""))
	require.NoError(t, db.RecordEvent(other.ID, "stop", 0, ""))

	events, err := db.SessionEvents(s.ID)
	require.NoError(t, err)
	require.Len(t, events, 4, "events from other sessions must not leak in")

	assert.Equal(t, KindStart, events[0].Kind)
	assert.Equal(t, "seek", events[1].Kind)
	assert.InDelta(t, 90.5, events[1].Value, 1e-9)
	assert.Equal(t, "epoch=1750719826.031", events[2].Detail)
	assert.Equal(t, KindTransmitError, events[3].Kind)
	assert.InDelta(t, 3, events[3].Value, 1e-9)
	for _, e := range events {
		assert.Equal(t, s.ID, e.SessionID)
		assert.Greater(t, e.WallTime, 0.0)
	}
}

func TestRecordTickStats_RoundTrip(t *testing.T) {
	db := openTestDB(t)

	s := testSession()
	require.NoError(t, db.StartSession(s))

	require.NoError(t, db.RecordTickStats(TickStats{
		SessionID:     s.ID,
		WallTime:      1000.5,
		FramesSent:    2400,
		SendErrors:    2,
		MeanLatencyUs: 350,
		MeanLuminance: 41.25,
	}))
	require.NoError(t, db.RecordTickStats(TickStats{
		SessionID:     s.ID,
		FramesSent:    4800,
		SendErrors:    2,
		MeanLatencyUs: 340,
		MeanLuminance: 44.75,
	}))

	stats, err := db.SessionTickStats(s.ID)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.InDelta(t, 1000.5, stats[0].WallTime, 1e-9)
	assert.Equal(t, int64(2400), stats[0].FramesSent)
	assert.Equal(t, int64(2), stats[0].SendErrors)
	assert.Equal(t, int64(350), stats[0].MeanLatencyUs)
	assert.InDelta(t, 41.25, stats[0].MeanLuminance, 1e-9)

	assert.Greater(t, stats[1].WallTime, 0.0, "unset wall time is stamped on write")
	assert.Equal(t, int64(4800), stats[1].FramesSent)
}

func TestSessions_NewestFirst(t *testing.T) {
	db := openTestDB(t)

	for _, start := range []float64{100, 300, 200} {
		s := testSession()
		s.StartedAt = start
		require.NoError(t, db.StartSession(s))
	}

	sessions, err := db.Sessions(0)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.InDelta(t, 300, sessions[0].StartedAt, 1e-9)
	assert.InDelta(t, 200, sessions[1].StartedAt, 1e-9)
	assert.InDelta(t, 100, sessions[2].StartedAt, 1e-9)

	limited, err := db.Sessions(2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.InDelta(t, 300, limited[0].StartedAt, 1e-9)
}

func TestStats_CountsRows(t *testing.T) {
	db := openTestDB(t)

	s := testSession()
	require.NoError(t, db.StartSession(s))
	require.NoError(t, db.RecordEvent(s.ID, "seek", 1, ""))
	require.NoError(t, db.RecordEvent(s.ID, "stop", 0, ""))

	stats, err := db.Stats()
	require.NoError(t, err)
	require.Len(t, stats.Tables, 3)

	byName := map[string]int64{}
	for _, tbl := range stats.Tables {
		byName[tbl.Name] = tbl.RowCount
	}
	assert.Equal(t, int64(1), byName["sessions"])
	assert.Equal(t, int64(2), byName["events"])
	assert.Equal(t, int64(0), byName["tick_stats"])
	assert.Greater(t, stats.SizeBytes, int64(0))
}
