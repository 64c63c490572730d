package gaps

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
)

// SessionStore is the subset of the Persistent Store the gap service
// needs to persist one SuggestBridging call's results.
type SessionStore interface {
	CreateGapAnalysisSession(g *models.GapAnalysisSession) error
	GetGapAnalysisSession(id string) (*models.GapAnalysisSession, error)
	UpdateGapAnalysisSessionSuggestions(id string, suggestions []models.BridgingTask) error
}

// Service ties together gap detection, bridging generation, and
// acceptance into the three §6 surfaces: DetectGaps, SuggestBridging,
// AcceptBridging.
type Service struct {
	detector  *Detector
	bridging  *BridgingGenerator
	acceptor  *Acceptor
	sessions  SessionStore
}

// NewService constructs a Service wired to its three collaborators.
func NewService(detector *Detector, bridging *BridgingGenerator, acceptor *Acceptor, sessions SessionStore) *Service {
	return &Service{detector: detector, bridging: bridging, acceptor: acceptor, sessions: sessions}
}

// DetectGaps is the standalone detection surface: it does not persist a
// gap analysis session, only returns the detected gaps and metadata.
func (s *Service) DetectGaps(orderedTaskIDs []string, now time.Time) ([]models.Gap, models.GapDetectionMetadata, error) {
	return s.detector.DetectGaps(orderedTaskIDs, now)
}

// SuggestBridging runs detection over agentSessionID's plan, generates
// bridging suggestions for every gap clearing the confidence threshold,
// and persists the result as a new GapAnalysisSession.
func (s *Service) SuggestBridging(ctx context.Context, agentSessionID string, orderedTaskIDs []string, lookup TaskLookup, outcomeText string, now time.Time) (*models.GapAnalysisSession, error) {
	start := now
	gaps, _, err := s.detector.DetectGaps(orderedTaskIDs, now)
	if err != nil {
		return nil, err
	}

	var suggestions []models.BridgingTask
	searchCalls := 0
	for _, gap := range gaps {
		predText, _, _ := lookup(gap.PredecessorTaskID)
		succText, _, _ := lookup(gap.SuccessorTaskID)
		tasks, err := s.bridging.SuggestBridging(ctx, gap, predText, succText, outcomeText)
		if err != nil {
			return nil, err
		}
		searchCalls++
		suggestions = append(suggestions, tasks...)
	}

	session := &models.GapAnalysisSession{
		ID:             uuid.NewString(),
		AgentSessionID: agentSessionID,
		Gaps:           gaps,
		Suggestions:    suggestions,
		PerformanceMetrics: models.GapPerformanceMetrics{
			AnalysisDurationMs:  now.Sub(start).Milliseconds(),
			BridgingDurationMs:  now.Sub(start).Milliseconds(),
			SemanticSearchCalls: searchCalls,
		},
		CreatedAt: now.UTC().Format(time.RFC3339Nano),
	}
	if err := s.sessions.CreateGapAnalysisSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// AcceptBridging applies the caller's chosen acceptances to plan and
// marks the corresponding suggestions accepted in the stored analysis
// session.
func (s *Service) AcceptBridging(ctx context.Context, analysisSessionID string, plan *models.Plan, accepted []Acceptance, now time.Time) (*AcceptResult, error) {
	result, err := s.acceptor.AcceptBridging(ctx, plan, accepted, now)
	if err != nil {
		return nil, err
	}

	analysis, err := s.sessions.GetGapAnalysisSession(analysisSessionID)
	if err != nil {
		return result, nil
	}
	acceptedByGap := make(map[string]bool, len(accepted))
	for _, acc := range accepted {
		acceptedByGap[acc.Task.GapID] = true
	}
	for i := range analysis.Suggestions {
		if acceptedByGap[analysis.Suggestions[i].GapID] {
			analysis.Suggestions[i].Status = models.BridgingStatusAccepted
		}
	}
	_ = s.sessions.UpdateGapAnalysisSessionSuggestions(analysisSessionID, analysis.Suggestions)

	return result, nil
}
