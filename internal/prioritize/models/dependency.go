package models

import "errors"

// TaskDependency is a persistent edge in the global task dependency
// graph (§3), independent of any single plan's Dependency list.
type TaskDependency struct {
	SourceTaskID string                 `json:"sourceTaskId" validate:"required"`
	TargetTaskID string                 `json:"targetTaskId" validate:"required"`
	Relationship DependencyRelationship `json:"relationship"`
	Confidence   float64                `json:"confidence" validate:"gte=0,lte=1"`
}

var errSelfEdge = errors.New("task dependency: source and target must differ (no self-edges)")

// Validate rejects self-edges, the graph's one universal invariant.
func (d *TaskDependency) Validate() error {
	if d.SourceTaskID == d.TargetTaskID {
		return errSelfEdge
	}
	return nil
}
