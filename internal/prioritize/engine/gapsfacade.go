package engine

import (
	"context"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/gaps"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
)

// DetectGaps runs standalone gap detection over a session's baseline
// plan without persisting anything (§4.4 "Detection").
func (s *Service) DetectGaps(sessionID string) ([]models.Gap, models.GapDetectionMetadata, error) {
	sess, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, models.GapDetectionMetadata{}, err
	}
	if sess.BaselinePlan == nil {
		return nil, models.GapDetectionMetadata{}, perrors.New(perrors.KindValidation, "session has no baseline plan")
	}
	return s.gaps.DetectGaps(sess.BaselinePlan.OrderedTaskIDs, s.clock.Now())
}

// SuggestBridging runs detection + bridging generation for a session
// and persists the result as a GapAnalysisSession (§4.4 "Bridging").
func (s *Service) SuggestBridging(ctx context.Context, sessionID string) (*models.GapAnalysisSession, error) {
	sess, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.BaselinePlan == nil {
		return nil, perrors.New(perrors.KindValidation, "session has no baseline plan")
	}
	outcome, err := s.store.GetOutcome(sess.OutcomeID)
	if err != nil {
		return nil, err
	}

	lookup := func(taskID string) (string, float64, bool) {
		te, err := s.store.GetTaskEmbedding(taskID)
		if err != nil || te == nil {
			return "", 0, false
		}
		return te.TaskText, 0, true
	}
	return s.gaps.SuggestBridging(ctx, sessionID, sess.BaselinePlan.OrderedTaskIDs, lookup, outcome.AssembledText, s.clock.Now())
}

// AcceptBridging applies the caller's chosen bridging suggestions to
// the session's current plan, rejecting with SESSION_CHANGED if the
// session was replaced since the analysis was suggested (§9 Open
// Question, resolved: reject rather than write into a superseded plan).
func (s *Service) AcceptBridging(ctx context.Context, sessionID, analysisSessionID string, accepted []gaps.Acceptance) (*gaps.AcceptResult, error) {
	sess, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.BaselinePlan == nil {
		return nil, perrors.New(perrors.KindValidation, "session has no baseline plan")
	}

	result, err := s.gaps.AcceptBridging(ctx, analysisSessionID, sess.BaselinePlan, accepted, s.clock.Now())
	if err != nil {
		return nil, err
	}

	prior := sess.UpdatedAt
	sess.BaselinePlan = result.Plan
	sess.UpdatedAt = s.clock.Now()
	if err := s.store.CompareAndSwapSession(sess, formatTime(prior)); err != nil {
		if pe, ok := err.(*perrors.PrioritizerError); ok && pe.Kind == perrors.KindConflict {
			return nil, perrors.Conflict("SESSION_CHANGED", "session was replaced while bridging was being accepted")
		}
		return nil, err
	}
	return result, nil
}
