package luxdb

import (
	"database/sql"
	"fmt"
)

// EstimateRecord is one flushed point estimate with the effective
// bounds it was derived from. SampleCount is the number of live
// evidence samples at flush time.
type EstimateRecord struct {
	ID          int64   `json:"id"`
	SessionID   string  `json:"session_id,omitempty"`
	WriteUnix   float64 `json:"write_unix"`
	EstimateLux float64 `json:"estimate_lux"`
	LowerLux    float64 `json:"lower_lux"`
	UpperLux    float64 `json:"upper_lux"`
	SampleCount int     `json:"sample_count"`
}

// RecordEstimate inserts one point estimate.
func (db *DB) RecordEstimate(rec EstimateRecord) error {
	_, err := db.Exec(`
		INSERT INTO lux_estimates
			(session_id, write_unix, estimate_lux, lower_lux, upper_lux, sample_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		nullableSession(rec.SessionID), rec.WriteUnix, rec.EstimateLux,
		rec.LowerLux, rec.UpperLux, rec.SampleCount)
	if err != nil {
		return fmt.Errorf("failed to record estimate: %w", err)
	}
	return nil
}

// RecentEstimates returns the most recently written estimates, newest
// first, up to limit.
func (db *DB) RecentEstimates(limit int) ([]EstimateRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, session_id, write_unix, estimate_lux, lower_lux, upper_lux, sample_count
		FROM lux_estimates
		ORDER BY write_unix DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query estimates: %w", err)
	}
	defer rows.Close()

	return scanEstimates(rows)
}

// EstimatesRange returns estimates written within [startUnix, endUnix],
// oldest first. A non-empty sessionID restricts to that session.
func (db *DB) EstimatesRange(startUnix, endUnix float64, sessionID string, limit int) ([]EstimateRecord, error) {
	if limit <= 0 {
		limit = 10000
	}

	query := `
		SELECT id, session_id, write_unix, estimate_lux, lower_lux, upper_lux, sample_count
		FROM lux_estimates
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
		return nil, fmt.Errorf("failed to query estimates: %w", err)
	}
	defer rows.Close()

	return scanEstimates(rows)
}

func scanEstimates(rows *sql.Rows) ([]EstimateRecord, error) {
	estimates := []EstimateRecord{}
	for rows.Next() {
		var rec EstimateRecord
		var session sql.NullString
		if err := rows.Scan(&rec.ID, &session, &rec.WriteUnix, &rec.EstimateLux,
			&rec.LowerLux, &rec.UpperLux, &rec.SampleCount); err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}
		rec.SessionID = session.String
		estimates = append(estimates, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read estimates: %w", err)
	}
	return estimates, nil
}

// DataRange is the time span covered by stored rows.
type DataRange struct {
	StartUnix float64 `json:"start_unix"`
	EndUnix   float64 `json:"end_unix"`
	Estimates int64   `json:"estimates"`
	Samples   int64   `json:"samples"`
}

// LuxDataRange reports the earliest and latest estimate write times
// together with total row counts. With no stored estimates the range
// is zero and only counts are meaningful.
func (db *DB) LuxDataRange() (*DataRange, error) {
	r := &DataRange{}

	var start, end sql.NullFloat64
	err := db.QueryRow(`
		SELECT MIN(write_unix), MAX(write_unix), COUNT(*)
		FROM lux_estimates`).Scan(&start, &end, &r.Estimates)
	if err != nil {
		return nil, fmt.Errorf("failed to query estimate range: %w", err)
	}
	r.StartUnix = start.Float64
	r.EndUnix = end.Float64

	if err := db.QueryRow("SELECT COUNT(*) FROM lux_samples").Scan(&r.Samples); err != nil {
		return nil, fmt.Errorf("failed to count samples: %w", err)
	}

	return r, nil
}
