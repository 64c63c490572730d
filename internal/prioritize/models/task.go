package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskEmbeddingStatus is the lifecycle state of a TaskEmbedding.
type TaskEmbeddingStatus string

const (
	TaskStatusPending   TaskEmbeddingStatus = "pending"
	TaskStatusCompleted TaskEmbeddingStatus = "completed"
	TaskStatusFailed    TaskEmbeddingStatus = "failed"
	TaskStatusArchived  TaskEmbeddingStatus = "archived"
)

// EmbeddingDims is the fixed vector length required of every embedding.
const EmbeddingDims = 1536

// QualityMetadata holds AI-assessed clarity info for a task's text.
type QualityMetadata struct {
	ClarityScore          float64  `json:"clarityScore"`
	ImprovementSuggestions []string `json:"improvementSuggestions,omitempty"`
}

// ManualOverride is a user-supplied correction to AI-derived scores.
type ManualOverride struct {
	Impact    float64   `json:"impact" validate:"gte=0,lte=10"`
	Effort    float64   `json:"effort" validate:"gte=0.5"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId"`
}

// Validate enforces the override's own invariants (impact/effort bounds).
func (m *ManualOverride) Validate() error {
	if m.Impact < 0 || m.Impact > 10 {
		return fmt.Errorf("manual override: impact must be in [0,10]")
	}
	if m.Effort < 0.5 {
		return fmt.Errorf("manual override: effort must be >= 0.5h")
	}
	return nil
}

// TaskEmbedding is the atomic unit the engine ranks.
type TaskEmbedding struct {
	TaskID          string              `json:"taskId" validate:"required"`
	TaskText        string              `json:"taskText" validate:"required,min=10,max=500"`
	DocumentID      string              `json:"documentId,omitempty"`
	Embedding       []float32           `json:"-"`
	Status          TaskEmbeddingStatus `json:"status" validate:"required,oneof=pending completed failed archived"`
	IsManual        bool                `json:"isManual"`
	CreatedBy       string              `json:"createdBy,omitempty"`
	QualityMetadata *QualityMetadata    `json:"qualityMetadata,omitempty"`
	ManualOverrides *ManualOverride     `json:"manualOverrides,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// Validate checks field-level invariants, trimming task text first as the
// spec requires (10-500 chars trimmed).
func (t *TaskEmbedding) Validate() error {
	trimmed := strings.TrimSpace(t.TaskText)
	if len(trimmed) < 10 || len(trimmed) > 500 {
		return fmt.Errorf("task embedding: task_text must be 10-500 chars trimmed (got %d)", len(trimmed))
	}
	if t.Embedding != nil && len(t.Embedding) != EmbeddingDims {
		return fmt.Errorf("task embedding: embedding must have %d dims, got %d", EmbeddingDims, len(t.Embedding))
	}
	if t.ManualOverrides != nil {
		if err := t.ManualOverrides.Validate(); err != nil {
			return err
		}
	}
	return Validate(t)
}

// IsArchived reports whether the task is archived and should be excluded
// from any corpus the hybrid loop considers.
func (t *TaskEmbedding) IsArchived() bool {
	return t.Status == TaskStatusArchived
}
