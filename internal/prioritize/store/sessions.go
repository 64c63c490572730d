package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
)

// CreateSession inserts a new agent session row.
func (s *SQLiteStore) CreateSession(sess *models.AgentSession) error {
	cols, err := marshalSessionColumns(sess)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO agent_sessions (id, user_id, outcome_id, status, prioritized_plan, baseline_plan, adjusted_plan, strategic_scores, excluded_tasks, evaluation_metadata, execution_metadata, result, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.UserID, sess.OutcomeID, string(sess.Status), cols.prioritizedPlan, cols.baselinePlan,
		cols.adjustedPlan, cols.strategicScores, cols.excludedTasks, cols.evaluationMetadata, cols.executionMetadata,
		cols.result, formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession fetches a session by id. The prioritized plan column is
// returned as a raw PlanPayload; normalization through
// PlanPayload.Normalize is left to session.Service on read.
func (s *SQLiteStore) GetSession(id string) (*models.AgentSession, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, outcome_id, status, prioritized_plan, baseline_plan, adjusted_plan, strategic_scores, excluded_tasks, evaluation_metadata, execution_metadata, result, created_at, updated_at
		FROM agent_sessions WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, perrors.NotFound("session", id)
	}
	return sess, err
}

// CompareAndSwapSession applies update only if the stored session's
// updated_at still matches expectedUpdatedAt, implementing the
// optimistic-concurrency guard against sessions replaced mid-bridging.
func (s *SQLiteStore) CompareAndSwapSession(update *models.AgentSession, expectedUpdatedAt string) error {
	cols, err := marshalSessionColumns(update)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE agent_sessions SET
			status = ?, prioritized_plan = ?, baseline_plan = ?, adjusted_plan = ?, strategic_scores = ?,
			excluded_tasks = ?, evaluation_metadata = ?, execution_metadata = ?, result = ?, updated_at = ?
		WHERE id = ? AND updated_at = ?
	`, string(update.Status), cols.prioritizedPlan, cols.baselinePlan, cols.adjustedPlan, cols.strategicScores,
		cols.excludedTasks, cols.evaluationMetadata, cols.executionMetadata, cols.result,
		formatTime(update.UpdatedAt), update.ID, expectedUpdatedAt)
	if err != nil {
		return fmt.Errorf("compare-and-swap session: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return perrors.Conflict("SESSION_CHANGED", "session was replaced by a concurrent write")
	}
	return nil
}

// ListSessionsByOutcome returns every session for an outcome, newest first.
func (s *SQLiteStore) ListSessionsByOutcome(outcomeID string) ([]*models.AgentSession, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, outcome_id, status, prioritized_plan, baseline_plan, adjusted_plan, strategic_scores, excluded_tasks, evaluation_metadata, execution_metadata, result, created_at, updated_at
		FROM agent_sessions WHERE outcome_id = ? ORDER BY created_at DESC
	`, outcomeID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.AgentSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type sessionColumns struct {
	prioritizedPlan    *string
	baselinePlan       *string
	adjustedPlan       *string
	strategicScores    *string
	excludedTasks      *string
	evaluationMetadata *string
	executionMetadata  *string
	result             *string
}

func marshalSessionColumns(sess *models.AgentSession) (sessionColumns, error) {
	var cols sessionColumns
	if sess.PrioritizedPlan != nil {
		plan, err := sess.PrioritizedPlan.Normalize()
		if err != nil {
			return cols, fmt.Errorf("normalize prioritized plan: %w", err)
		}
		b, err := json.Marshal(plan)
		if err != nil {
			return cols, fmt.Errorf("marshal prioritized plan: %w", err)
		}
		s := string(b)
		cols.prioritizedPlan = &s
	}
	var err error
	if cols.baselinePlan, err = marshalNullable(sess.BaselinePlan); err != nil {
		return cols, err
	}
	if cols.adjustedPlan, err = marshalNullable(sess.AdjustedPlan); err != nil {
		return cols, err
	}
	if len(sess.StrategicScores) > 0 {
		if cols.strategicScores, err = marshalNullable(sess.StrategicScores); err != nil {
			return cols, err
		}
	}
	if len(sess.ExcludedTasks) > 0 {
		if cols.excludedTasks, err = marshalNullable(sess.ExcludedTasks); err != nil {
			return cols, err
		}
	}
	if cols.evaluationMetadata, err = marshalNullable(sess.EvaluationMetadata); err != nil {
		return cols, err
	}
	if cols.executionMetadata, err = marshalNullable(sess.ExecutionMetadata); err != nil {
		return cols, err
	}
	if cols.result, err = marshalNullable(sess.Result); err != nil {
		return cols, err
	}
	return cols, nil
}

func marshalNullable(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	s := string(b)
	return &s, nil
}

func scanSession(row rowScanner) (*models.AgentSession, error) {
	var sess models.AgentSession
	var status string
	var prioritizedPlan, baselinePlan, adjustedPlan, strategicScores, excludedTasks, evaluationMetadata, executionMetadata, result sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&sess.ID, &sess.UserID, &sess.OutcomeID, &status, &prioritizedPlan, &baselinePlan, &adjustedPlan,
		&strategicScores, &excludedTasks, &evaluationMetadata, &executionMetadata, &result, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sess.Status = models.SessionStatus(status)
	if prioritizedPlan.Valid && prioritizedPlan.String != "" {
		sess.PrioritizedPlan = &models.PlanPayload{Raw: prioritizedPlan.String}
	}
	if baselinePlan.Valid && baselinePlan.String != "" {
		var p models.Plan
		if err := json.Unmarshal([]byte(baselinePlan.String), &p); err != nil {
			return nil, fmt.Errorf("unmarshal baseline plan: %w", err)
		}
		sess.BaselinePlan = &p
	}
	if adjustedPlan.Valid && adjustedPlan.String != "" {
		var p models.Plan
		if err := json.Unmarshal([]byte(adjustedPlan.String), &p); err != nil {
			return nil, fmt.Errorf("unmarshal adjusted plan: %w", err)
		}
		sess.AdjustedPlan = &p
	}
	if strategicScores.Valid && strategicScores.String != "" {
		var m map[string]models.StrategicScore
		if err := json.Unmarshal([]byte(strategicScores.String), &m); err != nil {
			return nil, fmt.Errorf("unmarshal strategic scores: %w", err)
		}
		sess.StrategicScores = m
	}
	if excludedTasks.Valid && excludedTasks.String != "" {
		var ids []string
		if err := json.Unmarshal([]byte(excludedTasks.String), &ids); err != nil {
			return nil, fmt.Errorf("unmarshal excluded tasks: %w", err)
		}
		sess.ExcludedTasks = ids
	}
	if evaluationMetadata.Valid && evaluationMetadata.String != "" {
		var m models.EvaluationMetadata
		if err := json.Unmarshal([]byte(evaluationMetadata.String), &m); err != nil {
			return nil, fmt.Errorf("unmarshal evaluation metadata: %w", err)
		}
		sess.EvaluationMetadata = &m
	}
	if executionMetadata.Valid && executionMetadata.String != "" {
		var m models.ExecutionMetadata
		if err := json.Unmarshal([]byte(executionMetadata.String), &m); err != nil {
			return nil, fmt.Errorf("unmarshal execution metadata: %w", err)
		}
		sess.ExecutionMetadata = &m
	}
	if result.Valid && result.String != "" {
		var r models.SessionResult
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, fmt.Errorf("unmarshal session result: %w", err)
		}
		sess.Result = &r
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}
