package store

import (
	"fmt"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
)

// UpsertTaskDependency records a persistent dependency edge, deduplicated
// on (source, target, relationship) by the schema's UNIQUE constraint.
func (s *SQLiteStore) UpsertTaskDependency(d *models.TaskDependency, now time.Time) error {
	if err := d.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO task_relationships (source_task_id, target_task_id, relationship_type, confidence, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_task_id, target_task_id, relationship_type) DO UPDATE SET
			confidence = excluded.confidence
	`, d.SourceTaskID, d.TargetTaskID, string(d.Relationship), d.Confidence, formatTime(now))
	if err != nil {
		return fmt.Errorf("upsert task dependency: %w", err)
	}
	return nil
}

// ListTaskDependencies returns every persisted edge touching any of the
// given task ids, as either source or target, for DAG reconstruction.
func (s *SQLiteStore) ListTaskDependencies(taskIDs []string) ([]*models.TaskDependency, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]any, 0, len(taskIDs)*2)
	q := `SELECT source_task_id, target_task_id, relationship_type, confidence FROM task_relationships WHERE source_task_id IN (`
	for i, id := range taskIDs {
		if i > 0 {
			q += ","
		}
		q += "?"
		placeholders = append(placeholders, id)
	}
	q += ") OR target_task_id IN ("
	for i, id := range taskIDs {
		if i > 0 {
			q += ","
		}
		q += "?"
		placeholders = append(placeholders, id)
	}
	q += ")"

	rows, err := s.db.Query(q, placeholders...)
	if err != nil {
		return nil, fmt.Errorf("list task dependencies: %w", err)
	}
	defer rows.Close()

	var out []*models.TaskDependency
	for rows.Next() {
		var d models.TaskDependency
		var relationship string
		if err := rows.Scan(&d.SourceTaskID, &d.TargetTaskID, &relationship, &d.Confidence); err != nil {
			return nil, fmt.Errorf("scan task dependency: %w", err)
		}
		d.Relationship = models.DependencyRelationship(relationship)
		out = append(out, &d)
	}
	return out, rows.Err()
}

// DeleteTaskDependency removes a single persisted edge.
func (s *SQLiteStore) DeleteTaskDependency(source, target string, relationship models.DependencyRelationship) error {
	_, err := s.db.Exec(`DELETE FROM task_relationships WHERE source_task_id = ? AND target_task_id = ? AND relationship_type = ?`,
		source, target, string(relationship))
	if err != nil {
		return fmt.Errorf("delete task dependency: %w", err)
	}
	return nil
}
