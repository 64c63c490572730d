package models

import "time"

// ManualTaskStatus is the lifecycle state of a ManualTask placement.
type ManualTaskStatus string

const (
	ManualTaskAnalyzing   ManualTaskStatus = "analyzing"
	ManualTaskPrioritized ManualTaskStatus = "prioritized"
	ManualTaskNotRelevant ManualTaskStatus = "not_relevant"
	ManualTaskConflict    ManualTaskStatus = "conflict"
)

// ManualTask tracks the placement of a single user-added task (§3).
type ManualTask struct {
	TaskID           string           `json:"taskId" validate:"required"`
	OutcomeID        string           `json:"outcomeId" validate:"required"`
	Status           ManualTaskStatus `json:"status" validate:"required,oneof=analyzing prioritized not_relevant conflict"`
	AgentRank        int              `json:"agentRank,omitempty"`
	PlacementReason  string           `json:"placementReason,omitempty"`
	ExclusionReason  string           `json:"exclusionReason,omitempty"`
	DuplicateTaskID  string           `json:"duplicateTaskId,omitempty"`
	SimilarityScore  float64          `json:"similarityScore,omitempty"`
	MarkedDoneAt     *time.Time       `json:"markedDoneAt,omitempty"`
	DeletedAt        *time.Time       `json:"deletedAt,omitempty"`
}

// IsRecoverable reports whether a soft-deleted manual task is still
// within the 30-day recoverable window (the "discard pile").
func (m *ManualTask) IsRecoverable(now time.Time) bool {
	if m.DeletedAt == nil {
		return false
	}
	return now.Sub(*m.DeletedAt) <= 30*24*time.Hour
}
