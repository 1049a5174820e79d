package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/lanecount/internal/counting"
)

// SessionStatus is the lifecycle state of a stored session.
type SessionStatus string

const (
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
	StatusFailed    SessionStatus = "failed"
)

// Session is a stored counting session.
type Session struct {
	ID             string            `json:"session_id"`
	Source         string            `json:"source"`
	LinePosition   float64           `json:"line_position"`
	ConfigJSON     string            `json:"config"`
	Status         SessionStatus     `json:"status"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     *time.Time        `json:"finished_at,omitempty"`
	TotalCounted   int               `json:"total_counted"`
	Frames         int64             `json:"frames"`
	ProcessingFPS  float64           `json:"processing_fps"`
	ProcessingTime time.Duration     `json:"processing_time"`
	Summary        *counting.Summary `json:"summary,omitempty"`
}

// SessionOutcome is what FinishSession records about a finished run.
type SessionOutcome struct {
	Status         SessionStatus
	Summary        counting.Summary
	Frames         int64
	ProcessingTime time.Duration
	ProcessingFPS  float64
	FinishedAt     time.Time
}

// CreateSession inserts a new session in the running state.
func (db *DB) CreateSession(s *Session) error {
	if s.Status == "" {
		s.Status = StatusRunning
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	if s.ConfigJSON == "" {
		s.ConfigJSON = "{}"
	}

	_, err := db.Exec(`
		INSERT INTO sessions (session_id, source, line_position, config_json, status, started_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Source, s.LinePosition, s.ConfigJSON, string(s.Status), s.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", s.ID, err)
	}
	diagf("session %s created (source %q)", s.ID, s.Source)
	return nil
}

// FinishSession stores the final summary and status of a session.
func (db *DB) FinishSession(id string, out SessionOutcome) error {
	summaryJSON, err := json.Marshal(out.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if out.FinishedAt.IsZero() {
		out.FinishedAt = time.Now()
	}

	res, err := db.Exec(`
		UPDATE sessions
		SET status = ?, finished_unix_nanos = ?, total_counted = ?, frames = ?,
		    processing_fps = ?, processing_nanos = ?, summary_json = ?
		WHERE session_id = ?`,
		string(out.Status), out.FinishedAt.UnixNano(), out.Summary.TotalCounted, out.Frames,
		out.ProcessingFPS, int64(out.ProcessingTime), string(summaryJSON), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish session %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("finish %s: %w", id, ErrSessionNotFound)
	}
	diagf("session %s %s with %d counted", id, out.Status, out.Summary.TotalCounted)
	return nil
}

const sessionColumns = `session_id, source, line_position, config_json, status,
	started_unix_nanos, finished_unix_nanos, total_counted, frames,
	processing_fps, processing_nanos, summary_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s           Session
		status      string
		started     int64
		finished    sql.NullInt64
		procNanos   int64
		summaryJSON sql.NullString
	)
	err := row.Scan(&s.ID, &s.Source, &s.LinePosition, &s.ConfigJSON, &status,
		&started, &finished, &s.TotalCounted, &s.Frames,
		&s.ProcessingFPS, &procNanos, &summaryJSON)
	if err != nil {
		return nil, err
	}
	s.Status = SessionStatus(status)
	s.StartedAt = time.Unix(0, started)
	s.ProcessingTime = time.Duration(procNanos)
	if finished.Valid {
		t := time.Unix(0, finished.Int64)
		s.FinishedAt = &t
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		var sum counting.Summary
		if err := json.Unmarshal([]byte(summaryJSON.String), &sum); err != nil {
			return nil, fmt.Errorf("failed to decode summary of session %s: %w", s.ID, err)
		}
		s.Summary = &sum
	}
	return &s, nil
}

// GetSession returns the session with the given ID or ErrSessionNotFound.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return s, nil
}

// ListSessions returns the most recently started sessions first. A limit
// of 0 or less returns all sessions.
func (db *DB) ListSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT `+sessionColumns+` FROM sessions
		ORDER BY started_unix_nanos DESC, session_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its crossings.
func (db *DB) DeleteSession(id string) error {
	res, err := db.Exec(`DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s: %w", id, ErrSessionNotFound)
	}
	return nil
}
