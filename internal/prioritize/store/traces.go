package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AppendReasoningTrace records one hybrid-loop iteration's chain-of-thought
// payload, append-only, grounded on processing_logs' audit-trail shape.
func (s *SQLiteStore) AppendReasoningTrace(sessionID string, iteration int, payload any, now time.Time) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal reasoning trace payload: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO reasoning_traces (session_id, iteration, payload, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, iteration, string(b), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert reasoning trace: %w", err)
	}
	return nil
}

// ReasoningTraceRow is one persisted chain-of-thought entry.
type ReasoningTraceRow struct {
	SessionID string
	Iteration int
	Payload   string
	CreatedAt time.Time
}

// ListReasoningTraces returns every trace for a session, in iteration order.
func (s *SQLiteStore) ListReasoningTraces(sessionID string) ([]ReasoningTraceRow, error) {
	rows, err := s.db.Query(`SELECT session_id, iteration, payload, created_at FROM reasoning_traces WHERE session_id = ? ORDER BY iteration ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list reasoning traces: %w", err)
	}
	defer rows.Close()

	var out []ReasoningTraceRow
	for rows.Next() {
		var r ReasoningTraceRow
		var createdAt string
		if err := rows.Scan(&r.SessionID, &r.Iteration, &r.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reasoning trace: %w", err)
		}
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ProcessingLogEntry is one row in the retry/failure audit log (§7).
type ProcessingLogEntry struct {
	Operation string
	Status    string
	SessionID string
	TaskID    string
	Attempts  int
	LastError string
	Metadata  map[string]any
	CreatedAt time.Time
}

// InsertProcessingLog records one retry-queue attempt outcome.
func (s *SQLiteStore) InsertProcessingLog(e ProcessingLogEntry) error {
	var metadata *string
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal processing log metadata: %w", err)
		}
		m := string(b)
		metadata = &m
	}
	_, err := s.db.Exec(`
		INSERT INTO processing_logs (operation, status, session_id, task_id, attempts, last_error, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Operation, e.Status, nullIfEmpty(e.SessionID), nullIfEmpty(e.TaskID), e.Attempts, nullIfEmpty(e.LastError),
		metadata, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert processing log: %w", err)
	}
	return nil
}

// ListProcessingLogsBySession returns every log entry for a session, in
// insertion order, for the reflection/adjustment audit trail.
func (s *SQLiteStore) ListProcessingLogsBySession(sessionID string) ([]ProcessingLogEntry, error) {
	rows, err := s.db.Query(`
		SELECT operation, status, session_id, task_id, attempts, last_error, metadata, created_at
		FROM processing_logs WHERE session_id = ? ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list processing logs: %w", err)
	}
	defer rows.Close()

	var out []ProcessingLogEntry
	for rows.Next() {
		var e ProcessingLogEntry
		var sess, taskID, lastError, metadata sql.NullString
		var createdAt string
		if err := rows.Scan(&e.Operation, &e.Status, &sess, &taskID, &e.Attempts, &lastError, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan processing log: %w", err)
		}
		e.SessionID = sess.String
		e.TaskID = taskID.String
		e.LastError = lastError.String
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal processing log metadata: %w", err)
			}
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
