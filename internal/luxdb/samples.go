package luxdb

import (
	"database/sql"
	"fmt"

	"github.com/fieldsense/lux.report/internal/photometer"
)

// SampleRecord is one decoded evidence sample as stored. All times are
// wall-clock unix seconds; StartUnix and EndUnix span the half-open
// validity interval of the assertion.
type SampleRecord struct {
	ID         int64   `json:"id"`
	SessionID  string  `json:"session_id,omitempty"`
	WriteUnix  float64 `json:"write_unix"`
	StartUnix  float64 `json:"start_unix"`
	EndUnix    float64 `json:"end_unix"`
	Direction  string  `json:"direction"`
	Lux        float64 `json:"lux"`
	Confidence uint8   `json:"confidence"`
	Clear      bool    `json:"clear"`
	RawWord    uint16  `json:"raw_word"`
}

// NewSampleRecord flattens a decoded sample for storage. The sample's
// validity interval is on the daemon's monotonic timebase; epochOffset
// is added to translate it to wall-clock unix seconds.
func NewSampleRecord(sessionID string, s photometer.Sample, raw photometer.RawSample, writeUnix, epochOffset float64) SampleRecord {
	return SampleRecord{
		SessionID:  sessionID,
		WriteUnix:  writeUnix,
		StartUnix:  s.Start + epochOffset,
		EndUnix:    s.End + epochOffset,
		Direction:  s.Direction.String(),
		Lux:        s.Lux,
		Confidence: s.Confidence,
		Clear:      s.Clear,
		RawWord:    uint16(raw),
	}
}

// RecordSample inserts one evidence sample.
func (db *DB) RecordSample(rec SampleRecord) error {
	_, err := db.Exec(`
		INSERT INTO lux_samples
			(session_id, write_unix, start_unix, end_unix, direction, lux, confidence, clear_evidence, raw_word)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableSession(rec.SessionID), rec.WriteUnix, rec.StartUnix, rec.EndUnix,
		rec.Direction, rec.Lux, rec.Confidence, rec.Clear, rec.RawWord)
	if err != nil {
		return fmt.Errorf("failed to record sample: %w", err)
	}
	return nil
}

// RecentSamples returns the most recently written samples, newest
// first, up to limit.
func (db *DB) RecentSamples(limit int) ([]SampleRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, session_id, write_unix, start_unix, end_unix, direction, lux, confidence, clear_evidence, raw_word
		FROM lux_samples
		ORDER BY write_unix DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// SamplesRange returns samples written within [startUnix, endUnix],
// oldest first. A non-empty sessionID restricts to that session.
func (db *DB) SamplesRange(startUnix, endUnix float64, sessionID string, limit int) ([]SampleRecord, error) {
	if limit <= 0 {
		limit = 10000
	}

	query := `
		SELECT id, session_id, write_unix, start_unix, end_unix, direction, lux, confidence, clear_evidence, raw_word
		FROM lux_samples
		WHERE write_unix >= ? AND write_unix <= ?`
	args := []interface{}{startUnix, endUnix}

	if sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY write_unix ASC, id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

func scanSamples(rows *sql.Rows) ([]SampleRecord, error) {
	samples := []SampleRecord{}
	for rows.Next() {
		var rec SampleRecord
		var session sql.NullString
		if err := rows.Scan(&rec.ID, &session, &rec.WriteUnix, &rec.StartUnix, &rec.EndUnix,
			&rec.Direction, &rec.Lux, &rec.Confidence, &rec.Clear, &rec.RawWord); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		rec.SessionID = session.String
		samples = append(samples, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}
	return samples, nil
}

// nullableSession maps the empty session id to NULL so unsessioned rows
// do not trip the foreign key.
func nullableSession(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}
