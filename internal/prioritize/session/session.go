// Package session implements the Session Controller (§4.1): the state
// machine owning one prioritization run per (user_id, outcome_id).
// Grounded on internal/task/service.go's Service-over-Repository shape
// (repository injection, ID resolution helpers, no package-level
// mutable state).
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/clockutil"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
)

// MaxWallTime is the running-session budget past which GetSession
// forcibly marks a session failed, per §4.1.
const MaxWallTime = 20 * time.Minute

// ExpiryWindow is the opportunistic-cleanup age beyond which a session
// is treated as expired on read.
const ExpiryWindow = 30 * 24 * time.Hour

// BaselineMaxAge is the upper bound on a usable baseline plan for
// AdjustPriorities (§4.1: "reject if baseline_plan is older than 7 days").
const BaselineMaxAge = 7 * 24 * time.Hour

// BaselineStaleWarning is the age past which AdjustPriorities still
// proceeds but reports a staleness warning.
const BaselineStaleWarning = 24 * time.Hour

// Repository defines the persistence operations the Session Controller
// requires, decoupling it from the concrete store the way
// internal/task/service.go's Repository decouples task.Service from
// internal/memory.
type Repository interface {
	GetActiveOutcome(userID string) (*models.Outcome, error)
	GetOutcome(id string) (*models.Outcome, error)
	ListSessionsByOutcome(outcomeID string) ([]*models.AgentSession, error)
	CreateSession(s *models.AgentSession) error
	GetSession(id string) (*models.AgentSession, error)
	CompareAndSwapSession(update *models.AgentSession, expectedUpdatedAt string) error
}

// Adjuster computes reflection-driven plan adjustments (§4.5),
// implemented by the reflection package; injected to avoid an import
// cycle between session and reflection.
type Adjuster interface {
	Adjust(ctx context.Context, baseline *models.Plan, reflections []*models.Reflection) (*models.Plan, *models.AdjustmentDiff, *models.AdjustmentMetadata, error)
}

// Service is the Session Controller.
type Service struct {
	repo     Repository
	clock    clockutil.Clock
	adjuster Adjuster
}

// NewService constructs a Session Controller.
func NewService(repo Repository, clock clockutil.Clock, adjuster Adjuster) *Service {
	return &Service{repo: repo, clock: clock, adjuster: adjuster}
}

// StartSession verifies the outcome is active and owned by userID,
// replaces any prior session for the pair, and inserts a new running
// session with zeroed execution metadata. Orchestration (the hybrid
// loop) is enqueued by the caller (internal/prioritize/engine); this
// call returns as soon as the row exists.
func (s *Service) StartSession(userID, outcomeID string) (*models.AgentSession, error) {
	outcome, err := s.repo.GetOutcome(outcomeID)
	if err != nil {
		return nil, perrors.NotFound("outcome", outcomeID)
	}
	if outcome.UserID != userID {
		return nil, perrors.New(perrors.KindPermission, "outcome does not belong to user")
	}
	if !outcome.IsActive {
		return nil, perrors.New(perrors.KindValidation, "outcome is not active")
	}

	now := s.clock.Now()
	sess := &models.AgentSession{
		ID:                uuid.NewString(),
		UserID:            userID,
		OutcomeID:         outcomeID,
		Status:            models.SessionRunning,
		ExecutionMetadata: &models.ExecutionMetadata{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.CreateSession(sess); err != nil {
		return nil, perrors.Wrap(perrors.KindInternal, "create session", err)
	}
	return sess, nil
}

// GetSession reads a session, opportunistically expiring it if older
// than ExpiryWindow and force-failing it if it has run past
// MaxWallTime, per §4.1's cooperative-cleanup-on-read model.
func (s *Service) GetSession(id string) (*models.AgentSession, error) {
	sess, err := s.repo.GetSession(id)
	if err != nil {
		return nil, err
	}
	return s.reconcileOnRead(sess)
}

// GetLatestCompleted returns the most recently completed session for
// an outcome, or NotFound if none exists.
func (s *Service) GetLatestCompleted(userID, outcomeID string) (*models.AgentSession, error) {
	sessions, err := s.repo.ListSessionsByOutcome(outcomeID)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindInternal, "list sessions", err)
	}
	var latest *models.AgentSession
	for _, sess := range sessions {
		if sess.UserID != userID || sess.Status != models.SessionCompleted {
			continue
		}
		if latest == nil || sess.CreatedAt.After(latest.CreatedAt) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, perrors.NotFound("completed session", outcomeID)
	}
	return s.reconcileOnRead(latest)
}

// reconcileOnRead applies the 30-day expiry and 20-minute stale-running
// rules a read must enforce before returning a session to the caller.
func (s *Service) reconcileOnRead(sess *models.AgentSession) (*models.AgentSession, error) {
	now := s.clock.Now()
	if sess.IsExpired(now) {
		return nil, perrors.NotFound("session", sess.ID)
	}
	if sess.IsStale(now, MaxWallTime) {
		prior := sess.UpdatedAt
		sess.Status = models.SessionFailed
		if sess.ExecutionMetadata == nil {
			sess.ExecutionMetadata = &models.ExecutionMetadata{}
		}
		sess.ExecutionMetadata.FailureReason = "exceeded max wall time"
		sess.UpdatedAt = now
		if err := s.repo.CompareAndSwapSession(sess, formatPrior(prior)); err != nil {
			if pe, ok := err.(*perrors.PrioritizerError); ok && pe.Kind == perrors.KindConflict {
				return s.repo.GetSession(sess.ID)
			}
			return nil, err
		}
	}
	if sess.PrioritizedPlan != nil {
		if _, err := sess.PrioritizedPlan.Normalize(); err != nil {
			return nil, perrors.Wrap(perrors.KindInternal, "reparse prioritized plan", err)
		}
	}
	return sess, nil
}

// AdjustPriorities recomputes an adjusted plan from the session's
// baseline plan and a caller-selected subset of active reflections
// (§4.5), rejecting baselines older than BaselineMaxAge.
func (s *Service) AdjustPriorities(ctx context.Context, sessionID string, reflections []*models.Reflection) (*models.Plan, *models.AdjustmentDiff, bool, error) {
	sess, err := s.repo.GetSession(sessionID)
	if err != nil {
		return nil, nil, false, err
	}
	if sess.BaselinePlan == nil {
		return nil, nil, false, perrors.New(perrors.KindValidation, "session has no baseline plan")
	}
	baselineCreated, err := time.Parse(time.RFC3339, sess.BaselinePlan.CreatedAt)
	if err != nil {
		return nil, nil, false, perrors.Wrap(perrors.KindInternal, "parse baseline plan created_at", err)
	}
	now := s.clock.Now()
	age := now.Sub(baselineCreated)
	if age > BaselineMaxAge {
		return nil, nil, false, perrors.New(perrors.KindValidation, "baseline plan is older than 7 days")
	}
	stale := age > BaselineStaleWarning

	adjusted, diff, meta, err := s.adjuster.Adjust(ctx, sess.BaselinePlan, reflections)
	if err != nil {
		return nil, nil, stale, err
	}
	adjusted.AdjustmentMeta = meta

	prior := sess.UpdatedAt
	sess.AdjustedPlan = adjusted
	sess.UpdatedAt = now
	if err := s.repo.CompareAndSwapSession(sess, formatPrior(prior)); err != nil {
		return nil, nil, stale, err
	}
	return adjusted, diff, stale, nil
}

func formatPrior(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
