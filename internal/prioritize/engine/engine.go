// Package engine ties every component into the §6 external surfaces:
// the transport-agnostic service-level facade a caller (a CLI, an HTTP
// handler, a test) drives instead of reaching into individual
// components directly.
//
// Grounded on internal/task/service.go and internal/knowledge/service.go's
// facade shape: a struct holding its collaborators by narrow interface
// or concrete pointer, constructed once at startup and handed to
// callers, never package-level mutable state.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/clockutil"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/embedstore"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/gaps"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/hybrid"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/manualtask"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/progress"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/reflection"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/scoring"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/session"
)

// Config holds the process-wide tunables §9's Open Questions leave as
// configuration rather than hard-coded constants.
type Config struct {
	// CoverageThreshold is the minimum fraction of an outcome an
	// embedding-backed coverage report must reach before it is
	// considered adequate (§9 Open Question: "retain as configuration").
	CoverageThreshold float64
	// FallbackCoverageThreshold is the second coverage bound; its
	// default (0.80) is stricter than CoverageThreshold's (0.70).
	FallbackCoverageThreshold float64
}

// DefaultConfig returns the thresholds named in spec.md §9.
func DefaultConfig() Config {
	return Config{CoverageThreshold: 0.70, FallbackCoverageThreshold: 0.80}
}

// Store is the subset of the Persistent Store the engine itself needs
// beyond what it delegates to its collaborators: outcome lookups and
// task-embedding corpus reads used to assemble a Hybrid Loop run.
type Store interface {
	GetOutcome(id string) (*models.Outcome, error)
	GetActiveOutcome(userID string) (*models.Outcome, error)
	ListActiveTaskEmbeddings() ([]*models.TaskEmbedding, error)
	GetTaskEmbedding(taskID string) (*models.TaskEmbedding, error)
	UpsertTaskEmbedding(t *models.TaskEmbedding) error
	CompareAndSwapSession(update *models.AgentSession, expectedUpdatedAt string) error
}

// Service is the external-facing facade implementing every §6 surface.
type Service struct {
	store      Store
	clock      clockutil.Clock
	cfg        Config
	sessions   *session.Service
	loop       *hybrid.Loop
	scoring    *scoring.Service
	gaps       *gaps.Service
	reflection *reflection.Service
	manualtask *manualtask.Service
	embeds     *embedstore.Service
	quality    *QualityEvaluator

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewService wires every collaborator into one facade.
func NewService(
	store Store,
	clock clockutil.Clock,
	cfg Config,
	sessions *session.Service,
	loop *hybrid.Loop,
	scoringSvc *scoring.Service,
	gapsSvc *gaps.Service,
	reflectionSvc *reflection.Service,
	manualtaskSvc *manualtask.Service,
	embeds *embedstore.Service,
	quality *QualityEvaluator,
) *Service {
	if clock == nil {
		clock = clockutil.System{}
	}
	return &Service{
		store:      store,
		clock:      clock,
		cfg:        cfg,
		sessions:   sessions,
		loop:       loop,
		scoring:    scoringSvc,
		gaps:       gapsSvc,
		reflection: reflectionSvc,
		manualtask: manualtaskSvc,
		embeds:     embeds,
		quality:    quality,
		cancels:    map[string]context.CancelFunc{},
	}
}

// StartPrioritization replaces any prior session for (userID, outcomeID)
// and enqueues the Hybrid Loop + Strategic Scoring orchestration in the
// background, returning the new session's id immediately (§4.1).
func (s *Service) StartPrioritization(userID, outcomeID string) (string, error) {
	sess, err := s.sessions.StartSession(userID, outcomeID)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[sess.ID] = cancel
	s.mu.Unlock()

	go s.runOrchestration(ctx, sess)

	return sess.ID, nil
}

// CancelSession propagates cancellation to an in-flight orchestration
// run (§5 "the session controller exposes a cancellation signal").
func (s *Service) CancelSession(sessionID string) {
	s.mu.Lock()
	cancel, ok := s.cancels[sessionID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *Service) clearCancel(sessionID string) {
	s.mu.Lock()
	delete(s.cancels, sessionID)
	s.mu.Unlock()
}

// runOrchestration runs the Hybrid Loop against the outcome's active
// task corpus, scores the resulting plan, and persists the terminal
// session state. Cancellation at any suspension point marks the
// session failed with reason "cancelled" rather than raising (§5).
func (s *Service) runOrchestration(ctx context.Context, sess *models.AgentSession) {
	defer s.clearCancel(sess.ID)
	start := s.clock.Now()

	outcome, err := s.store.GetOutcome(sess.OutcomeID)
	if err != nil {
		s.failSession(sess, start, "load outcome: "+err.Error())
		return
	}

	tasks, err := s.store.ListActiveTaskEmbeddings()
	if err != nil {
		s.failSession(sess, start, "load task corpus: "+err.Error())
		return
	}

	byID := make(map[string]*models.TaskEmbedding, len(tasks))
	genCtx := hybrid.GenerationContext{OutcomeText: outcome.AssembledText}
	if s.reflection != nil {
		if active, err := s.reflection.ActiveReflections(sess.UserID); err == nil {
			for _, r := range active {
				genCtx.ReflectionBullets = append(genCtx.ReflectionBullets, r.Text)
			}
		}
	}
	for _, t := range tasks {
		if t.IsArchived() {
			continue
		}
		byID[t.TaskID] = t
		genCtx.Tasks = append(genCtx.Tasks, hybrid.TaskInput{TaskID: t.TaskID, Text: t.TaskText})
	}

	if ctx.Err() != nil {
		s.cancelSession(sess, start)
		return
	}

	result, err := s.loop.Run(ctx, genCtx)
	if err != nil {
		if ctx.Err() != nil {
			s.cancelSession(sess, start)
			return
		}
		s.failSession(sess, start, "hybrid loop: "+err.Error())
		return
	}

	if ctx.Err() != nil {
		s.cancelSession(sess, start)
		return
	}

	lookup := func(taskID string) (string, bool) {
		t, ok := byID[taskID]
		if !ok {
			return "", false
		}
		return t.TaskText, true
	}
	scores := s.scoring.ScoreSession(ctx, sess.ID, outcome.AssembledText, result.Plan.OrderedTaskIDs, lookup, nil)

	now := s.clock.Now()
	prior := sess.UpdatedAt
	sess.Status = models.SessionCompleted
	sess.BaselinePlan = result.Plan
	sess.PrioritizedPlan = &models.PlanPayload{Parsed: result.Plan}
	sess.StrategicScores = scores
	sess.EvaluationMetadata = result.EvaluationMetadata
	sess.ExecutionMetadata = &models.ExecutionMetadata{
		StepsTaken:  result.EvaluationMetadata.Iterations,
		TotalMs:     s.clock.Now().Sub(start).Milliseconds(),
		SuccessRate: 1,
	}
	sess.UpdatedAt = now
	_ = s.store.CompareAndSwapSession(sess, formatTime(prior))
}

func (s *Service) failSession(sess *models.AgentSession, start time.Time, reason string) {
	now := s.clock.Now()
	prior := sess.UpdatedAt
	sess.Status = models.SessionFailed
	sess.ExecutionMetadata = &models.ExecutionMetadata{
		ErrorCount:    1,
		FailureReason: reason,
		TotalMs:       s.clock.Now().Sub(start).Milliseconds(),
	}
	sess.UpdatedAt = now
	_ = s.store.CompareAndSwapSession(sess, formatTime(prior))
}

func (s *Service) cancelSession(sess *models.AgentSession, start time.Time) {
	s.failSession(sess, start, "cancelled")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// GetSession reads one session by id.
func (s *Service) GetSession(sessionID string) (*models.AgentSession, error) {
	return s.sessions.GetSession(sessionID)
}

// GetLatestCompleted returns the most recently completed session for a
// (user, outcome) pair.
func (s *Service) GetLatestCompleted(userID, outcomeID string) (*models.AgentSession, error) {
	return s.sessions.GetLatestCompleted(userID, outcomeID)
}

// StreamSessionProgress opens a Progress Stream for one session (§4.7).
func (s *Service) StreamSessionProgress(ctx context.Context, sessionID string) <-chan progress.Event {
	stream := progress.NewStream(sessionID, s.sessions.GetSession, s.scoring, s.clock)
	return stream.Subscribe(ctx)
}

// ScoreSnapshot is GetScores's combined view: the persisted scores plus
// the retry queue's live status for tasks still being estimated.
type ScoreSnapshot struct {
	Scores      map[string]models.StrategicScore
	RetryStatus map[string]scoring.StatusSnapshot
	QueueState  scoring.Diagnostics
}

// GetScores returns a session's persisted scores, the retry queue's
// per-task status (optionally filtered by JobStatus), and the queue's
// overall load.
func (s *Service) GetScores(sessionID string, statusFilter scoring.JobStatus) (ScoreSnapshot, error) {
	sess, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return ScoreSnapshot{}, err
	}
	all := s.scoring.GetStatusSnapshot(sessionID)
	retry := all
	if statusFilter != "" {
		retry = map[string]scoring.StatusSnapshot{}
		for taskID, snap := range all {
			if snap.Status == statusFilter {
				retry[taskID] = snap
			}
		}
	}
	return ScoreSnapshot{
		Scores:      sess.StrategicScores,
		RetryStatus: retry,
		QueueState:  s.scoring.Diagnostics(),
	}, nil
}

