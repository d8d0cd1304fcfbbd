// Package journal persists playback activity to sqlite: one row per
// session, one per control event, and periodic tick rollups for offline
// analysis. The schema is created on open and evolved by golang-migrate
// from the migrations directory.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Event kinds the daemon writes directly. Command events reuse the
// control package's kind strings (seek, pause, resume, stop, beat).
const (
	KindStart         = "start"
	KindTransmitError = "transmit-error"
)

// DB wraps the journal database.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the journal at path, applies the
// connection pragmas and ensures the baseline schema. The single writer
// plus the occasional admin query share one pooled connection so the
// pragmas hold for every statement.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(baselineSchema); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{DB: db, path: path}, nil
}

// baselineSchema matches migration 000002; IF NOT EXISTS keeps it
// compatible with databases managed by the migration files.
const baselineSchema = `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id   TEXT PRIMARY KEY,
		source_path  TEXT NOT NULL,
		destination  TEXT NOT NULL,
		zones        INTEGER NOT NULL,
		leds         INTEGER NOT NULL,
		fps          DOUBLE NOT NULL,
		format       TEXT NOT NULL,
		started_at   DOUBLE NOT NULL,
		ended_at     DOUBLE
	);
	CREATE TABLE IF NOT EXISTS events (
		event_id     INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id   TEXT NOT NULL,
		wall_time    DOUBLE NOT NULL,
		kind         TEXT NOT NULL,
		value        DOUBLE NOT NULL DEFAULT 0,
		detail       TEXT NOT NULL DEFAULT '',
		FOREIGN KEY(session_id) REFERENCES sessions(session_id)
	);
	CREATE TABLE IF NOT EXISTS tick_stats (
		stat_id          INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id       TEXT NOT NULL,
		wall_time        DOUBLE NOT NULL,
		frames_sent      BIGINT NOT NULL,
		send_errors      BIGINT NOT NULL,
		mean_latency_us  BIGINT NOT NULL,
		mean_luminance   DOUBLE NOT NULL,
		FOREIGN KEY(session_id) REFERENCES sessions(session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, wall_time);
	CREATE INDEX IF NOT EXISTS idx_tick_stats_session ON tick_stats(session_id, wall_time);
	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
`

// Session is one playback run of an .amb file against a destination.
type Session struct {
	ID          string   `json:"id"`
	SourcePath  string   `json:"source_path"`
	Destination string   `json:"destination"`
	Zones       int      `json:"zones"`
	Leds        int      `json:"leds"`
	FPS         float64  `json:"fps"`
	Format      string   `json:"format"`
	StartedAt   float64  `json:"started_at"`
	EndedAt     *float64 `json:"ended_at,omitempty"`
}

// Event is one journaled control command or daemon occurrence.
type Event struct {
	SessionID string  `json:"session_id"`
	WallTime  float64 `json:"wall_time"`
	Kind      string  `json:"kind"`
	Value     float64 `json:"value"`
	Detail    string  `json:"detail,omitempty"`
}

// TickStats is one periodic rollup of engine counters.
type TickStats struct {
	SessionID     string  `json:"session_id"`
	WallTime      float64 `json:"wall_time"`
	FramesSent    int64   `json:"frames_sent"`
	SendErrors    int64   `json:"send_errors"`
	MeanLatencyUs int64   `json:"mean_latency_us"`
	MeanLuminance float64 `json:"mean_luminance"`
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// StartSession inserts a new session row, filling in the id and start
// time when the caller has not set them.
func (db *DB) StartSession(s *Session) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.StartedAt == 0 {
		s.StartedAt = unixNow()
	}

	_, err := db.Exec(
		`INSERT INTO sessions (session_id, source_path, destination, zones, leds, fps, format, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.SourcePath, s.Destination, s.Zones, s.Leds, s.FPS, s.Format, s.StartedAt,
	)
	return err
}

// EndSession stamps the session's end time.
func (db *DB) EndSession(id string) error {
	res, err := db.Exec(`UPDATE sessions SET ended_at = ? WHERE session_id = ?`, unixNow(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("journal: unknown session %q", id)
	}
	return nil
}

// RecordEvent writes one event row.
func (db *DB) RecordEvent(sessionID, kind string, value float64, detail string) error {
	_, err := db.Exec(
		`INSERT INTO events (session_id, wall_time, kind, value, detail) VALUES (?, ?, ?, ?, ?)`,
		sessionID, unixNow(), kind, value, detail,
	)
	return err
}

// RecordTickStats writes one rollup row, stamping the wall time when the
// caller has not set it.
func (db *DB) RecordTickStats(s TickStats) error {
	if s.WallTime == 0 {
		s.WallTime = unixNow()
	}
	_, err := db.Exec(
		`INSERT INTO tick_stats (session_id, wall_time, frames_sent, send_errors, mean_latency_us, mean_luminance)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.WallTime, s.FramesSent, s.SendErrors, s.MeanLatencyUs, s.MeanLuminance,
	)
	return err
}

// Sessions returns the most recent sessions, newest first. limit ≤ 0
// selects 100.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT session_id, source_path, destination, zones, leds, fps, format, started_at, ended_at
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var ended sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.SourcePath, &s.Destination, &s.Zones, &s.Leds, &s.FPS, &s.Format, &s.StartedAt, &ended); err != nil {
			return nil, err
		}
		if ended.Valid {
			s.EndedAt = &ended.Float64
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Session returns one session by id; sql.ErrNoRows when it does not
// exist.
func (db *DB) Session(id string) (*Session, error) {
	var s Session
	var ended sql.NullFloat64
	err := db.QueryRow(
		`SELECT session_id, source_path, destination, zones, leds, fps, format, started_at, ended_at
		 FROM sessions WHERE session_id = ?`, id).
		Scan(&s.ID, &s.SourcePath, &s.Destination, &s.Zones, &s.Leds, &s.FPS, &s.Format, &s.StartedAt, &ended)
	if err != nil {
		return nil, err
	}
	if ended.Valid {
		s.EndedAt = &ended.Float64
	}
	return &s, nil
}

// SessionEvents returns a session's events in write order.
func (db *DB) SessionEvents(sessionID string) ([]Event, error) {
	rows, err := db.Query(
		`SELECT session_id, wall_time, kind, value, detail
		 FROM events WHERE session_id = ? ORDER BY event_id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.SessionID, &e.WallTime, &e.Kind, &e.Value, &e.Detail); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// SessionTickStats returns a session's rollups in write order.
func (db *DB) SessionTickStats(sessionID string) ([]TickStats, error) {
	rows, err := db.Query(
		`SELECT session_id, wall_time, frames_sent, send_errors, mean_latency_us, mean_luminance
		 FROM tick_stats WHERE session_id = ? ORDER BY stat_id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []TickStats
	for rows.Next() {
		var s TickStats
		if err := rows.Scan(&s.SessionID, &s.WallTime, &s.FramesSent, &s.SendErrors, &s.MeanLatencyUs, &s.MeanLuminance); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
