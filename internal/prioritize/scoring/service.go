package scoring

import (
	"context"
	"fmt"
	"sync"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
)

// TaskLookup resolves a task_id to its text, so the estimator has
// something to score; narrowed to avoid a dependency on the full task
// store shape.
type TaskLookup func(taskID string) (text string, ok bool)

// ImpactEstimator is the subset of *Estimator the Service depends on,
// narrowed so tests can substitute a fake without a live provider.
type ImpactEstimator interface {
	EstimateImpact(ctx context.Context, taskText, outcomeText string) (*ImpactEstimate, error)
}

// ScoreStore persists strategic scores, narrowed from store.SQLiteStore.
type ScoreStore interface {
	Log
}

// Service computes and persists a StrategicScore for every task in a
// plan, using the RetryQueue to absorb transient LLM failures.
type Service struct {
	estimator ImpactEstimator
	queue     *RetryQueue

	mu     sync.Mutex
	scores map[string]models.StrategicScore // taskID -> score, scoped to the active session
}

// NewService constructs a Service wired to an ImpactEstimator and RetryQueue.
func NewService(estimator ImpactEstimator, queue *RetryQueue) *Service {
	return &Service{estimator: estimator, queue: queue, scores: make(map[string]models.StrategicScore)}
}

// ScoreSession computes strategic scores for every task_id in
// orderedTaskIDs lacking a manual override, against outcomeText.
// Existing manual overrides in overrides are kept verbatim (§4.3's
// "tasks with a manual override skip re-estimation" rule). Returns
// once every task has either succeeded or exhausted its retries;
// failed tasks are simply absent from the returned map, leaving the
// caller free to treat a partial result as a degraded-but-usable plan.
func (s *Service) ScoreSession(ctx context.Context, sessionID, outcomeText string, orderedTaskIDs []string, lookup TaskLookup, overrides map[string]models.StrategicScore) map[string]models.StrategicScore {
	s.queue.SetActiveSession(sessionID)

	s.mu.Lock()
	s.scores = make(map[string]models.StrategicScore, len(orderedTaskIDs))
	for id, score := range overrides {
		s.scores[id] = score
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, taskID := range orderedTaskIDs {
		if _, overridden := overrides[taskID]; overridden {
			continue
		}
		taskID := taskID
		text, ok := lookup(taskID)
		if !ok {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.queue.Enqueue(sessionID, taskID,
				func(id string) error {
					return s.estimateOne(ctx, id, text, outcomeText)
				},
				func() {},
				func(err error) {},
			)
		}()
	}
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.StrategicScore, len(s.scores))
	for k, v := range s.scores {
		out[k] = v
	}
	return out
}

// estimateOne computes and records a single task's strategic score.
func (s *Service) estimateOne(ctx context.Context, taskID, taskText, outcomeText string) error {
	impact, err := s.estimator.EstimateImpact(ctx, taskText, outcomeText)
	if err != nil {
		return fmt.Errorf("estimate impact for %s: %w", taskID, err)
	}
	effort := EstimateEffortHeuristic(taskText)
	score := Score(taskID, *impact, effort)

	s.mu.Lock()
	s.scores[taskID] = score
	s.mu.Unlock()
	return nil
}

// Diagnostics exposes the underlying retry queue's load for monitoring.
func (s *Service) Diagnostics() Diagnostics {
	return s.queue.GetDiagnostics()
}

// GetStatusSnapshot exposes per-task retry status for a session.
func (s *Service) GetStatusSnapshot(sessionID string) map[string]StatusSnapshot {
	return s.queue.GetStatusSnapshot(sessionID)
}
