package engine

import (
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
)

// ApplyManualOverride records a user-supplied impact/effort correction
// for one task in a session, recomputing its priority via
// models.ComputePriority and persisting the updated strategic score
// (§4.3 "Manual override"). Returns a conflict if the session named on
// the override is no longer the live session for its outcome, per
// §7's "409 if no current session or session replaced".
func (s *Service) ApplyManualOverride(override models.ManualOverride, taskID string) (models.StrategicScore, error) {
	if err := override.Validate(); err != nil {
		return models.StrategicScore{}, perrors.Wrap(perrors.KindValidation, "manual override", err)
	}

	sess, err := s.sessions.GetSession(override.SessionID)
	if err != nil {
		return models.StrategicScore{}, perrors.Conflict("NO_CURRENT_SESSION", "no live session for this override")
	}
	if sess.Status != models.SessionCompleted {
		return models.StrategicScore{}, perrors.Conflict("NO_CURRENT_SESSION", "session is not in a completed, overridable state")
	}

	existing, ok := sess.StrategicScores[taskID]
	confidence := 1.0
	if ok {
		confidence = existing.Confidence
	}
	reasoning := override.Reason
	if reasoning == "" {
		reasoning = "manual override"
	}
	updated := models.NewStrategicScore(taskID, override.Impact, override.Effort, confidence, reasoning)

	prior := sess.UpdatedAt
	if sess.StrategicScores == nil {
		sess.StrategicScores = map[string]models.StrategicScore{}
	}
	sess.StrategicScores[taskID] = updated
	sess.UpdatedAt = s.clock.Now()
	if err := s.store.CompareAndSwapSession(sess, formatTime(prior)); err != nil {
		if pe, ok := err.(*perrors.PrioritizerError); ok && pe.Kind == perrors.KindConflict {
			return models.StrategicScore{}, perrors.Conflict("SESSION_CHANGED", "session was replaced while applying the override")
		}
		return models.StrategicScore{}, err
	}
	return updated, nil
}
