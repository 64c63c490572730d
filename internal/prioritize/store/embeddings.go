package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
)

// UpsertTaskEmbedding inserts or replaces a task embedding row.
func (s *SQLiteStore) UpsertTaskEmbedding(t *models.TaskEmbedding) error {
	var quality, overrides []byte
	var err error
	if t.QualityMetadata != nil {
		if quality, err = json.Marshal(t.QualityMetadata); err != nil {
			return fmt.Errorf("marshal quality metadata: %w", err)
		}
	}
	if t.ManualOverrides != nil {
		if overrides, err = json.Marshal(t.ManualOverrides); err != nil {
			return fmt.Errorf("marshal manual overrides: %w", err)
		}
	}
	_, err = s.db.Exec(`
		INSERT INTO task_embeddings (task_id, task_text, document_id, embedding, status, is_manual, created_by, quality_metadata, manual_overrides, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			task_text = excluded.task_text,
			document_id = excluded.document_id,
			embedding = excluded.embedding,
			status = excluded.status,
			is_manual = excluded.is_manual,
			created_by = excluded.created_by,
			quality_metadata = excluded.quality_metadata,
			manual_overrides = excluded.manual_overrides,
			updated_at = excluded.updated_at
	`, t.TaskID, t.TaskText, nullIfEmpty(t.DocumentID), encodeEmbedding(t.Embedding), string(t.Status),
		boolToInt(t.IsManual), nullIfEmpty(t.CreatedBy), nullIfEmpty(string(quality)), nullIfEmpty(string(overrides)),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert task embedding: %w", err)
	}
	return nil
}

// GetTaskEmbedding fetches a single task embedding by task id.
func (s *SQLiteStore) GetTaskEmbedding(taskID string) (*models.TaskEmbedding, error) {
	row := s.db.QueryRow(`
		SELECT task_id, task_text, document_id, embedding, status, is_manual, created_by, quality_metadata, manual_overrides, created_at, updated_at
		FROM task_embeddings WHERE task_id = ?
	`, taskID)
	return scanTaskEmbedding(row)
}

// ListActiveTaskEmbeddings returns every non-archived task embedding,
// the corpus the hybrid loop and gap detector reason over.
func (s *SQLiteStore) ListActiveTaskEmbeddings() ([]*models.TaskEmbedding, error) {
	rows, err := s.db.Query(`
		SELECT task_id, task_text, document_id, embedding, status, is_manual, created_by, quality_metadata, manual_overrides, created_at, updated_at
		FROM task_embeddings WHERE status != 'archived' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list task embeddings: %w", err)
	}
	defer rows.Close()

	var out []*models.TaskEmbedding
	for rows.Next() {
		t, err := scanTaskEmbedding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ArchiveTaskEmbedding soft-excludes a task from future runs.
func (s *SQLiteStore) ArchiveTaskEmbedding(taskID string) error {
	res, err := s.db.Exec(`UPDATE task_embeddings SET status = 'archived' WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("archive task embedding: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("task embedding not found: %s", taskID)
	}
	return nil
}

// DeleteTaskEmbedding hard-deletes a task embedding row, used by the
// gap-bridging rollback path to undo a partial AcceptBridging insert.
func (s *SQLiteStore) DeleteTaskEmbedding(taskID string) error {
	_, err := s.db.Exec(`DELETE FROM task_embeddings WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("delete task embedding: %w", err)
	}
	return nil
}

func scanTaskEmbedding(row rowScanner) (*models.TaskEmbedding, error) {
	var t models.TaskEmbedding
	var documentID, createdBy, quality, overrides sql.NullString
	var embedding []byte
	var isManual int
	var createdAt, updatedAt string
	var status string
	err := row.Scan(&t.TaskID, &t.TaskText, &documentID, &embedding, &status, &isManual, &createdBy,
		&quality, &overrides, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task embedding not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan task embedding: %w", err)
	}
	t.DocumentID = documentID.String
	t.Embedding = decodeEmbedding(embedding)
	t.Status = models.TaskEmbeddingStatus(status)
	t.IsManual = isManual != 0
	t.CreatedBy = createdBy.String
	if quality.Valid && quality.String != "" {
		var q models.QualityMetadata
		if err := json.Unmarshal([]byte(quality.String), &q); err != nil {
			return nil, fmt.Errorf("unmarshal quality metadata: %w", err)
		}
		t.QualityMetadata = &q
	}
	if overrides.Valid && overrides.String != "" {
		var o models.ManualOverride
		if err := json.Unmarshal([]byte(overrides.String), &o); err != nil {
			return nil, fmt.Errorf("unmarshal manual overrides: %w", err)
		}
		t.ManualOverrides = &o
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
