package journal

// SessionRecorder scopes event writes to one session so the command
// dispatcher can journal without knowing about session ids.
type SessionRecorder struct {
	db        *DB
	sessionID string
}

// Recorder returns an event recorder bound to the given session.
func (db *DB) Recorder(sessionID string) *SessionRecorder {
	return &SessionRecorder{db: db, sessionID: sessionID}
}

// RecordEvent writes one event row under the recorder's session.
func (r *SessionRecorder) RecordEvent(kind string, value float64, detail string) error {
	return r.db.RecordEvent(r.sessionID, kind, value, detail)
}
