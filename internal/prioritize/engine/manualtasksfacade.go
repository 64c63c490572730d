package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
)

// CreateManualTask runs the placement analysis for a user-added task
// against the session's current plan (§4.6), then ingests the task into
// the embedding corpus. The duplicate check inside AnalyzeTask runs
// before ingestion, so the new task is never matched against itself.
func (s *Service) CreateManualTask(ctx context.Context, sessionID, taskText, createdBy string) (*models.ManualTask, error) {
	sess, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	outcome, err := s.store.GetOutcome(sess.OutcomeID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	newTaskID := uuid.NewString()

	var existingTexts []string
	if sess.BaselinePlan != nil {
		for _, taskID := range sess.BaselinePlan.OrderedTaskIDs {
			if t, err := s.store.GetTaskEmbedding(taskID); err == nil && t != nil {
				existingTexts = append(existingTexts, t.TaskText)
			}
		}
	}

	m, err := s.manualtask.AnalyzeTask(ctx, newTaskID, sess.OutcomeID, taskText, outcome.AssembledText, existingTexts)
	if err != nil {
		return nil, err
	}
	if _, err := s.embeds.IngestTask(ctx, newTaskID, taskText, true, createdBy, now); err != nil {
		return nil, err
	}
	return m, nil
}

// OverrideDiscard resets a not_relevant manual task back to analyzing
// and re-runs placement (§4.6 "Override of discard").
func (s *Service) OverrideDiscard(ctx context.Context, sessionID, taskID, justification string) (*models.ManualTask, error) {
	sess, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	outcome, err := s.store.GetOutcome(sess.OutcomeID)
	if err != nil {
		return nil, err
	}
	te, err := s.store.GetTaskEmbedding(taskID)
	if err != nil {
		return nil, err
	}
	if te == nil {
		return nil, perrors.NotFound("task embedding", taskID)
	}

	var existingTexts []string
	if sess.BaselinePlan != nil {
		for _, id := range sess.BaselinePlan.OrderedTaskIDs {
			if t, err := s.store.GetTaskEmbedding(id); err == nil && t != nil {
				existingTexts = append(existingTexts, t.TaskText)
			}
		}
	}

	return s.manualtask.OverrideDiscard(ctx, taskID, sess.OutcomeID, te.TaskText, outcome.AssembledText, justification, existingTexts)
}

// InvalidateManualTasks discards every prioritized manual task for an
// outcome in one atomic pass, per §4.6 "Invalidation" (triggered when
// the outcome itself changes underneath a session).
func (s *Service) InvalidateManualTasks(outcomeID string) (int, error) {
	return s.manualtask.InvalidateForOutcome(outcomeID, s.clock.Now())
}
