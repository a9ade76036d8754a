package store

import (
	"context"
	"time"
)

// EventType enumerates the recognized job_events event types of spec.md §4.3.
type EventType string

const (
	EventSubmitted      EventType = "submitted"
	EventStarted        EventType = "started"
	EventProgress       EventType = "progress"
	EventAgentStarted   EventType = "agent_started"
	EventAgentCompleted EventType = "agent_completed"
	EventAgentUsage     EventType = "agent_usage"
	EventSynthesisToken EventType = "synthesis_token"
	EventSynthesisError EventType = "synthesis_error"
	EventReportSaved    EventType = "report_saved"
	EventUIHint         EventType = "ui_hint"
	EventAbandoned      EventType = "abandoned"
	EventError          EventType = "error"
	EventCompleted      EventType = "completed"
	EventCanceled       EventType = "canceled"
)

// JobEvent is one append-only journal row, per spec.md §3.
type JobEvent struct {
	ID        int64
	JobID     string
	EventType EventType
	Payload   []byte
	CreatedAt time.Time
}

// AppendEvent inserts a new journal row and returns its strictly-increasing id.
func (s *Store) AppendEvent(ctx context.Context, jobID string, eventType EventType, payload []byte) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO job_events (job_id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`,
		jobID, eventType, payload, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// EventsSince returns events for jobID with id > sinceID, in ascending id
// order, implementing the cursor-resume contract of spec.md §4.1/§4.3.
func (s *Store) EventsSince(ctx context.Context, jobID string, sinceID int64, limit int) ([]JobEvent, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, event_type, payload, created_at FROM job_events
		WHERE job_id = ? AND id > ? ORDER BY id ASC LIMIT ?`, jobID, sinceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobEvent
	for rows.Next() {
		var e JobEvent
		if err := rows.Scan(&e.ID, &e.JobID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LastEventID returns the highest event id recorded for jobID, or 0 if none.
func (s *Store) LastEventID(ctx context.Context, jobID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM job_events WHERE job_id = ?`, jobID).Scan(&id)
	return id, err
}
