package gaps

import (
	"context"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
)

// DependencyStore is the subset of the Persistent Store AcceptBridging
// needs, narrowed so the package does not depend on the full store type.
type DependencyStore interface {
	UpsertTaskDependency(d *models.TaskDependency, now time.Time) error
	DeleteTaskDependency(source, target string, relationship models.DependencyRelationship) error
	ListTaskDependencies(taskIDs []string) ([]*models.TaskDependency, error)
}

// EmbeddingStore is the subset of embedstore.Service AcceptBridging
// needs to persist and roll back a bridging task's embedding.
type EmbeddingStore interface {
	IngestTask(ctx context.Context, taskID, taskText string, isManual bool, createdBy string, now time.Time) (*models.TaskEmbedding, error)
	DeleteTaskEmbedding(taskID string) error
}

// Acceptor applies accepted bridging suggestions to the persistent
// dependency graph and a plan's ordered task list, rolling back any
// partial insert that would introduce a cycle.
type Acceptor struct {
	deps      DependencyStore
	embedding EmbeddingStore
}

// NewAcceptor constructs an Acceptor.
func NewAcceptor(deps DependencyStore, embedding EmbeddingStore) *Acceptor {
	return &Acceptor{deps: deps, embedding: embedding}
}

// AcceptBridging inserts each accepted bridging task's embedding and
// dependency edges (predecessor->new, new->successor), updates plan's
// ordered_task_ids by inserting the new task between its predecessor
// and successor, and rejects (with full rollback of anything already
// inserted this call) any acceptance that would create a cycle.
func (a *Acceptor) AcceptBridging(ctx context.Context, plan *models.Plan, accepted []Acceptance, now time.Time) (*AcceptResult, error) {
	existingDeps, err := a.deps.ListTaskDependencies(plan.OrderedTaskIDs)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindInternal, "list existing dependencies for cycle check", err)
	}
	graph := buildAdjacency(existingDeps)

	var insertedTaskIDs []string
	var insertedEdges [][2]string
	updatedOrder := append([]string(nil), plan.OrderedTaskIDs...)

	rollback := func() {
		for _, taskID := range insertedTaskIDs {
			_ = a.embedding.DeleteTaskEmbedding(taskID)
		}
		for _, e := range insertedEdges {
			_ = a.deps.DeleteTaskDependency(e[0], e[1], models.RelationPrerequisite)
		}
	}

	for _, acc := range accepted {
		if err := acc.Task.Validate(); err != nil {
			rollback()
			return nil, perrors.Wrap(perrors.KindValidation, "invalid bridging task", err)
		}

		graph[acc.PredecessorID] = append(graph[acc.PredecessorID], acc.Task.TaskID)
		graph[acc.Task.TaskID] = append(graph[acc.Task.TaskID], acc.SuccessorID)
		if hasCycle(graph) {
			rollback()
			return nil, perrors.Conflict("CYCLE_DETECTED", "accepting this bridging task would introduce a cycle")
		}

		if _, err := a.embedding.IngestTask(ctx, acc.Task.TaskID, acc.Task.TaskText, true, "gap_bridging", now); err != nil {
			rollback()
			return nil, perrors.Wrap(perrors.KindInternal, "persist bridging task embedding", err)
		}
		insertedTaskIDs = append(insertedTaskIDs, acc.Task.TaskID)

		if err := a.deps.UpsertTaskDependency(&models.TaskDependency{
			SourceTaskID: acc.PredecessorID, TargetTaskID: acc.Task.TaskID, Relationship: models.RelationPrerequisite, Confidence: acc.Task.Confidence,
		}, now); err != nil {
			rollback()
			return nil, perrors.Wrap(perrors.KindInternal, "insert predecessor->new dependency", err)
		}
		insertedEdges = append(insertedEdges, [2]string{acc.PredecessorID, acc.Task.TaskID})

		if err := a.deps.UpsertTaskDependency(&models.TaskDependency{
			SourceTaskID: acc.Task.TaskID, TargetTaskID: acc.SuccessorID, Relationship: models.RelationPrerequisite, Confidence: acc.Task.Confidence,
		}, now); err != nil {
			rollback()
			return nil, perrors.Wrap(perrors.KindInternal, "insert new->successor dependency", err)
		}
		insertedEdges = append(insertedEdges, [2]string{acc.Task.TaskID, acc.SuccessorID})

		updatedOrder = insertBetween(updatedOrder, acc.PredecessorID, acc.SuccessorID, acc.Task.TaskID)
	}

	updatedPlan := *plan
	updatedPlan.OrderedTaskIDs = updatedOrder
	updatedPlan.Dependencies = append(append([]models.Dependency(nil), plan.Dependencies...), bridgingDependencies(accepted)...)

	return &AcceptResult{InsertedTaskIDs: insertedTaskIDs, UpdatedPlan: &updatedPlan}, nil
}

// insertBetween places newID immediately after predID in order,
// appending at the end if predID is absent (defensive: the caller's
// plan should always contain it).
func insertBetween(order []string, predID, succID, newID string) []string {
	for i, id := range order {
		if id == predID {
			out := append([]string(nil), order[:i+1]...)
			out = append(out, newID)
			out = append(out, order[i+1:]...)
			return out
		}
	}
	return append(order, newID)
}

func bridgingDependencies(accepted []Acceptance) []models.Dependency {
	var deps []models.Dependency
	for _, acc := range accepted {
		deps = append(deps,
			models.Dependency{Source: acc.PredecessorID, Target: acc.Task.TaskID, Relationship: models.RelationPrerequisite, Confidence: acc.Task.Confidence, DetectionMethod: models.DetectionGapBridge},
			models.Dependency{Source: acc.Task.TaskID, Target: acc.SuccessorID, Relationship: models.RelationPrerequisite, Confidence: acc.Task.Confidence, DetectionMethod: models.DetectionGapBridge},
		)
	}
	return deps
}

// buildAdjacency converts a flat edge list into an adjacency map for
// cycle detection, grounded on internal/task/dag.go's VerifyDAG.
func buildAdjacency(edges []*models.TaskDependency) map[string][]string {
	graph := make(map[string][]string)
	for _, e := range edges {
		graph[e.SourceTaskID] = append(graph[e.SourceTaskID], e.TargetTaskID)
	}
	return graph
}

// hasCycle runs a DFS cycle check over the induced subgraph, the same
// visited/recursionStack algorithm as internal/task/dag.go's VerifyDAG,
// generalized from a task slice to an adjacency map.
func hasCycle(graph map[string][]string) bool {
	visited := make(map[string]bool)
	inStack := make(map[string]bool)

	var visit func(node string) bool
	visit = func(node string) bool {
		visited[node] = true
		inStack[node] = true
		for _, next := range graph[node] {
			if !visited[next] {
				if visit(next) {
					return true
				}
			} else if inStack[next] {
				return true
			}
		}
		inStack[node] = false
		return false
	}

	for node := range graph {
		if !visited[node] {
			if visit(node) {
				return true
			}
		}
	}
	return false
}
