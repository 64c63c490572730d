package models

import "time"

// SessionStatus is the state-machine status of an AgentSession.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// ChainOfThoughtEntry records one hybrid-loop iteration's trace.
type ChainOfThoughtEntry struct {
	Iteration         int       `json:"iteration"`
	Confidence        float64   `json:"confidence"`
	Corrections       []string  `json:"corrections,omitempty"`
	EvaluatorFeedback string    `json:"evaluatorFeedback,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// EvaluationMetadata is the hybrid loop's persisted trace (§6).
type EvaluationMetadata struct {
	Iterations          int                   `json:"iterations"`
	DurationMs          int64                 `json:"durationMs"`
	EvaluationTriggered bool                  `json:"evaluationTriggered"`
	ChainOfThought      []ChainOfThoughtEntry `json:"chainOfThought"`
	Converged           bool                  `json:"converged"`
	FinalConfidence     float64               `json:"finalConfidence"`
}

// ExecutionMetadata records terminal-state counters for a session.
type ExecutionMetadata struct {
	StepsTaken    int     `json:"stepsTaken"`
	ToolCallCount int     `json:"toolCallCount"`
	ThinkingMs    int64   `json:"thinkingMs"`
	ToolMs        int64   `json:"toolMs"`
	TotalMs       int64   `json:"totalMs"`
	ErrorCount    int     `json:"errorCount"`
	SuccessRate   float64 `json:"successRate"`
	FailureReason string  `json:"failureReason,omitempty"`
}

// GapAnalysisResult is appended onto a session's Result once gap
// detection/bridging has run against its plan.
type GapAnalysisResult struct {
	SessionID          string              `json:"sessionId"`
	PlanSnapshot        []PlanSnapshotEntry `json:"planSnapshot"`
	DetectedGaps        []Gap               `json:"detectedGaps"`
	GeneratedTasks      []BridgingTask      `json:"generatedTasks"`
	UserAcceptances     []string            `json:"userAcceptances,omitempty"`
	InsertionResult     string              `json:"insertionResult,omitempty"`
	PerformanceMetrics  GapPerformanceMetrics `json:"performanceMetrics"`
}

// PlanSnapshotEntry is one row of a gap-analysis plan snapshot.
type PlanSnapshotEntry struct {
	TaskID     string   `json:"taskId"`
	Text       string   `json:"text"`
	DependsOn  []string `json:"dependsOn,omitempty"`
}

// SessionResult holds post-plan attachments: gap analysis and coverage.
type SessionResult struct {
	GapAnalysis *GapAnalysisResult `json:"gapAnalysis,omitempty"`
	Coverage    *CoverageReport    `json:"coverage,omitempty"`
}

// CoverageReport is the outcome-coverage assessment (§4.4 draft pipeline).
type CoverageReport struct {
	CoveragePct           float64  `json:"coveragePct"`
	MissingAreas          []string `json:"missingAreas,omitempty"`
	Degraded              bool     `json:"degraded"`
	DegradedReason        string   `json:"degradedReason,omitempty"`
}

// AgentSession is one prioritization run (§3).
type AgentSession struct {
	ID                 string                         `json:"id" validate:"required"`
	UserID             string                         `json:"userId" validate:"required"`
	OutcomeID          string                         `json:"outcomeId" validate:"required"`
	Status             SessionStatus                  `json:"status" validate:"required,oneof=running completed failed"`
	PrioritizedPlan    *PlanPayload                   `json:"-"`
	BaselinePlan       *Plan                           `json:"baselinePlan,omitempty"`
	AdjustedPlan       *Plan                           `json:"adjustedPlan,omitempty"`
	StrategicScores    map[string]StrategicScore       `json:"strategicScores,omitempty"`
	ExcludedTasks      []string                        `json:"excludedTasks,omitempty"`
	EvaluationMetadata *EvaluationMetadata             `json:"evaluationMetadata,omitempty"`
	ExecutionMetadata  *ExecutionMetadata               `json:"executionMetadata,omitempty"`
	Result             *SessionResult                   `json:"result,omitempty"`
	CreatedAt          time.Time                        `json:"createdAt"`
	UpdatedAt          time.Time                        `json:"updatedAt"`
}

// IsExpired reports whether the session is older than the 30-day
// opportunistic-cleanup window.
func (s *AgentSession) IsExpired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > 30*24*time.Hour
}

// IsStale reports whether a running session has exceeded the max
// wall-time budget and should be force-failed.
func (s *AgentSession) IsStale(now time.Time, maxWallTime time.Duration) bool {
	return s.Status == SessionRunning && now.Sub(s.CreatedAt) > maxWallTime
}
