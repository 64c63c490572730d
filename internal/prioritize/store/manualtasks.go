package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
)

// UpsertManualTask inserts or updates a manual task placement record.
func (s *SQLiteStore) UpsertManualTask(m *models.ManualTask) error {
	_, err := s.db.Exec(`
		INSERT INTO manual_tasks (task_id, outcome_id, status, agent_rank, placement_reason, exclusion_reason, duplicate_task_id, similarity_score, marked_done_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			status = excluded.status, agent_rank = excluded.agent_rank, placement_reason = excluded.placement_reason,
			exclusion_reason = excluded.exclusion_reason, duplicate_task_id = excluded.duplicate_task_id,
			similarity_score = excluded.similarity_score, marked_done_at = excluded.marked_done_at, deleted_at = excluded.deleted_at
	`, m.TaskID, m.OutcomeID, string(m.Status), nullIfZero(m.AgentRank), nullIfEmpty(m.PlacementReason),
		nullIfEmpty(m.ExclusionReason), nullIfEmpty(m.DuplicateTaskID), nullIfZeroFloat(m.SimilarityScore),
		formatTimePtr(m.MarkedDoneAt), formatTimePtr(m.DeletedAt))
	if err != nil {
		return fmt.Errorf("upsert manual task: %w", err)
	}
	return nil
}

// SoftDeleteManualTask marks a manual task deleted (discard pile), kept
// recoverable for 30 days per ManualTask.IsRecoverable.
func (s *SQLiteStore) SoftDeleteManualTask(taskID string, now time.Time) error {
	res, err := s.db.Exec(`UPDATE manual_tasks SET deleted_at = ? WHERE task_id = ?`, formatTime(now), taskID)
	if err != nil {
		return fmt.Errorf("soft delete manual task: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("manual task not found: %s", taskID)
	}
	return nil
}

// InvalidateManualTasksForOutcome atomically soft-deletes every
// prioritized manual task belonging to outcomeID, used when the active
// outcome changes underneath a plan (§4.6 "Invalidation"). Returns the
// number of rows invalidated.
func (s *SQLiteStore) InvalidateManualTasksForOutcome(outcomeID string, now time.Time) (int, error) {
	res, err := s.db.Exec(`
		UPDATE manual_tasks SET deleted_at = ?
		WHERE outcome_id = ? AND status = ? AND deleted_at IS NULL
	`, formatTime(now), outcomeID, string(models.ManualTaskPrioritized))
	if err != nil {
		return 0, fmt.Errorf("invalidate manual tasks: %w", err)
	}
	rows, _ := res.RowsAffected()
	return int(rows), nil
}

// GetManualTask fetches one manual task placement record by task id,
// including soft-deleted rows so an override-of-discard can read the
// prior exclusion reason.
func (s *SQLiteStore) GetManualTask(taskID string) (*models.ManualTask, error) {
	row := s.db.QueryRow(`
		SELECT task_id, outcome_id, status, agent_rank, placement_reason, exclusion_reason, duplicate_task_id, similarity_score, marked_done_at, deleted_at
		FROM manual_tasks WHERE task_id = ?
	`, taskID)
	m, err := scanManualTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// ListManualTasksByOutcome returns every non-deleted manual task for an outcome.
func (s *SQLiteStore) ListManualTasksByOutcome(outcomeID string) ([]*models.ManualTask, error) {
	rows, err := s.db.Query(`
		SELECT task_id, outcome_id, status, agent_rank, placement_reason, exclusion_reason, duplicate_task_id, similarity_score, marked_done_at, deleted_at
		FROM manual_tasks WHERE outcome_id = ? AND deleted_at IS NULL
	`, outcomeID)
	if err != nil {
		return nil, fmt.Errorf("list manual tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.ManualTask
	for rows.Next() {
		m, err := scanManualTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanManualTask(row rowScanner) (*models.ManualTask, error) {
	var m models.ManualTask
	var status string
	var agentRank sql.NullInt64
	var placementReason, exclusionReason, duplicateTaskID sql.NullString
	var similarity sql.NullFloat64
	var markedDoneAt, deletedAt sql.NullString
	err := row.Scan(&m.TaskID, &m.OutcomeID, &status, &agentRank, &placementReason, &exclusionReason,
		&duplicateTaskID, &similarity, &markedDoneAt, &deletedAt)
	if err != nil {
		return nil, fmt.Errorf("scan manual task: %w", err)
	}
	m.Status = models.ManualTaskStatus(status)
	m.AgentRank = int(agentRank.Int64)
	m.PlacementReason = placementReason.String
	m.ExclusionReason = exclusionReason.String
	m.DuplicateTaskID = duplicateTaskID.String
	m.SimilarityScore = similarity.Float64
	if markedDoneAt.Valid && markedDoneAt.String != "" {
		m.MarkedDoneAt = parseTimePtr(&markedDoneAt.String)
	}
	if deletedAt.Valid && deletedAt.String != "" {
		m.DeletedAt = parseTimePtr(&deletedAt.String)
	}
	return &m, nil
}

func nullIfZero(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}

func nullIfZeroFloat(f float64) *float64 {
	if f == 0 {
		return nil
	}
	return &f
}
