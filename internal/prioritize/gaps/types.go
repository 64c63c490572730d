// Package gaps implements Gap Detection & Bridging Generation (§4.4):
// scanning an ordered task list for skill/topic discontinuities between
// adjacent tasks, proposing bridging tasks to fill high-confidence gaps,
// and accepting/rolling-back the resulting insertions into a plan and
// the dependency graph.
//
// Grounded on internal/task/dag.go's VerifyDAG (generalized to an
// induced-subgraph cycle check over the accepted insertions) and
// internal/knowledge/embed.go's semantic-search-then-generate shape.
package gaps

import "github.com/taskwing-labs/prioritizer/internal/prioritize/models"

// TaskLookup resolves a task_id to its text and estimated effort
// hours, the minimum a gap detector needs per task.
type TaskLookup func(taskID string) (text string, effortHours float64, ok bool)

// EmbeddingLookup resolves a task_id to its embedding vector.
type EmbeddingLookup func(taskID string) (vec []float32, ok bool)

// Acceptance is one bridging suggestion a caller has chosen to keep.
type Acceptance struct {
	Task            models.BridgingTask `json:"task"`
	PredecessorID   string              `json:"predecessorId"`
	SuccessorID     string              `json:"successorId"`
}

// AcceptResult is what AcceptBridging returns on success.
type AcceptResult struct {
	InsertedTaskIDs []string     `json:"insertedTaskIds"`
	UpdatedPlan     *models.Plan `json:"updatedPlan"`
}
