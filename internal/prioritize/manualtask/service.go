package manualtask

import (
	"context"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
)

// Store is the subset of the Persistent Store the manual task service
// needs, narrowed the same way session.Repository narrows store.SQLiteStore.
type Store interface {
	UpsertManualTask(m *models.ManualTask) error
	GetManualTask(taskID string) (*models.ManualTask, error)
	SoftDeleteManualTask(taskID string, now time.Time) error
	ListManualTasksByOutcome(outcomeID string) ([]*models.ManualTask, error)
	InvalidateManualTasksForOutcome(outcomeID string, now time.Time) (int, error)
}

// Service implements the §4.6/§6 manual task surfaces: analyze
// placement, override a discard, and invalidate on outcome change.
type Service struct {
	store  Store
	placer *Placer
}

// NewService constructs a manual task Service.
func NewService(store Store, placer *Placer) *Service {
	return &Service{store: store, placer: placer}
}

// CheckDuplicate exposes the placer's near-duplicate search directly,
// for callers that need to reject a duplicate before ever creating a
// row. (The engine's CreateManualTask goes through AnalyzeTask instead.)
func (s *Service) CheckDuplicate(ctx context.Context, taskText string) (DuplicateCheck, error) {
	return s.placer.CheckDuplicate(ctx, taskText)
}

// AnalyzeTask runs the full §4.6 flow for one newly-added task: mark
// analyzing, check for a near-duplicate, else judge placement, and
// persist the final row. A timeout from JudgePlacement is intentionally
// NOT treated as failure: the row is left in status=analyzing so the
// caller can retry, per §4.6's ETIMEDOUT handling.
func (s *Service) AnalyzeTask(ctx context.Context, taskID, outcomeID, taskText, outcomeText string, existingPlanTaskTexts []string) (*models.ManualTask, error) {
	m := &models.ManualTask{TaskID: taskID, OutcomeID: outcomeID, Status: models.ManualTaskAnalyzing}
	if err := s.store.UpsertManualTask(m); err != nil {
		return nil, err
	}

	dup, err := s.placer.CheckDuplicate(ctx, taskText)
	if err != nil {
		return m, nil // left in analyzing, caller may retry
	}
	if dup.Found {
		m.Status = models.ManualTaskConflict
		m.DuplicateTaskID = dup.DuplicateTaskID
		m.SimilarityScore = dup.SimilarityScore
		if err := s.store.UpsertManualTask(m); err != nil {
			return nil, err
		}
		return m, nil
	}

	judgment, err := s.placer.JudgePlacement(ctx, outcomeText, existingPlanTaskTexts, taskText)
	if err != nil {
		// Any judgment failure (timeout, upstream error, bad JSON) leaves
		// the row in analyzing rather than surfacing a user-facing
		// failure, so the caller can retry the analyze cycle.
		return m, nil
	}

	switch judgment.Decision {
	case DecisionInclude:
		m.Status = models.ManualTaskPrioritized
		m.AgentRank = judgment.AgentRank
		m.PlacementReason = judgment.PlacementReason
	case DecisionExclude:
		m.Status = models.ManualTaskNotRelevant
		m.ExclusionReason = judgment.ExclusionReason
	}
	if err := s.store.UpsertManualTask(m); err != nil {
		return nil, err
	}
	return m, nil
}

// OverrideDiscard moves a not_relevant manual task back to analyzing
// with an optional justification appended to its placement reason, then
// re-runs the analyze cycle (§4.6 "Override of discard").
func (s *Service) OverrideDiscard(ctx context.Context, taskID, outcomeID, taskText, outcomeText, justification string, existingPlanTaskTexts []string) (*models.ManualTask, error) {
	existing, err := s.store.GetManualTask(taskID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, perrors.New(perrors.KindNotFound, "manual task not found: "+taskID)
	}
	if existing.Status != models.ManualTaskNotRelevant {
		return nil, perrors.New(perrors.KindConflict, "manual task is not in the not_relevant discard pile")
	}

	reset := &models.ManualTask{TaskID: taskID, OutcomeID: outcomeID, Status: models.ManualTaskAnalyzing, PlacementReason: justification}
	if err := s.store.UpsertManualTask(reset); err != nil {
		return nil, err
	}
	return s.AnalyzeTask(ctx, taskID, outcomeID, taskText, outcomeText, existingPlanTaskTexts)
}

// InvalidateForOutcome transitions every prioritized manual task for
// outcomeID to the discard pile ("outcome changed") as a single atomic
// operation, returning the count invalidated (§4.6 "Invalidation").
func (s *Service) InvalidateForOutcome(outcomeID string, now time.Time) (int, error) {
	return s.store.InvalidateManualTasksForOutcome(outcomeID, now)
}

// ListForOutcome returns every non-deleted manual task for an outcome.
func (s *Service) ListForOutcome(outcomeID string) ([]*models.ManualTask, error) {
	return s.store.ListManualTasksByOutcome(outcomeID)
}
