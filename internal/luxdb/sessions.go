package luxdb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session groups the samples and estimates recorded over one contiguous
// stretch, typically from daemon start to shutdown or between explicit
// API calls. Counts are filled in when the session ends.
type Session struct {
	ID            string   `json:"id"`
	StartedUnix   float64  `json:"started_unix"`
	EndedUnix     *float64 `json:"ended_unix,omitempty"`
	Source        string   `json:"source"`
	Notes         string   `json:"notes"`
	SampleCount   int64    `json:"sample_count"`
	EstimateCount int64    `json:"estimate_count"`
}

// Active reports whether the session is still recording.
func (s *Session) Active() bool {
	return s.EndedUnix == nil
}

// StartSession opens a new recording session and returns it. Source
// names the feed ("udp", "serial", "replay"); notes are free-form.
func (db *DB) StartSession(source, notes string) (*Session, error) {
	s := &Session{
		ID:          uuid.NewString(),
		StartedUnix: float64(time.Now().UnixNano()) / 1e9,
		Source:      source,
		Notes:       notes,
	}

	_, err := db.Exec(`
		INSERT INTO recording_sessions (id, started_unix, source, notes)
		VALUES (?, ?, ?, ?)`,
		s.ID, s.StartedUnix, s.Source, s.Notes)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	return s, nil
}

// EndSession closes an active session, stamping its end time and
// freezing the row counts it covers.
func (db *DB) EndSession(id string) error {
	res, err := db.Exec(`
		UPDATE recording_sessions
		SET
			ended_unix = UNIXEPOCH('subsec'),
			sample_count = (SELECT COUNT(*) FROM lux_samples WHERE session_id = recording_sessions.id),
			estimate_count = (SELECT COUNT(*) FROM lux_estimates WHERE session_id = recording_sessions.id)
		WHERE id = ? AND ended_unix IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s not found or already ended", id)
	}

	return nil
}

// SessionByID returns one session. The wrapped error is sql.ErrNoRows
// when no such session exists.
func (db *DB) SessionByID(id string) (*Session, error) {
	row := db.QueryRow(`
		SELECT id, started_unix, ended_unix, source, notes, sample_count, estimate_count
		FROM recording_sessions
		WHERE id = ?`, id)

	s, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	return s, nil
}

// ActiveSession returns the most recently started session that has not
// ended, or nil when none is recording.
func (db *DB) ActiveSession() (*Session, error) {
	row := db.QueryRow(`
		SELECT id, started_unix, ended_unix, source, notes, sample_count, estimate_count
		FROM recording_sessions
		WHERE ended_unix IS NULL
		ORDER BY started_unix DESC
		LIMIT 1`)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active session: %w", err)
	}
	return s, nil
}

// Sessions returns sessions newest first, up to limit.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, started_unix, ended_unix, source, notes, sample_count, estimate_count
		FROM recording_sessions
		ORDER BY started_unix DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	return sessions, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var ended sql.NullFloat64
	if err := row.Scan(&s.ID, &s.StartedUnix, &ended, &s.Source, &s.Notes,
		&s.SampleCount, &s.EstimateCount); err != nil {
		return nil, err
	}
	if ended.Valid {
		s.EndedUnix = &ended.Float64
	}
	return &s, nil
}
