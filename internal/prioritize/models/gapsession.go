package models

// GapAnalysisSession persists one SuggestBridging call's results so a
// later AcceptBridging call can be traced back to the gaps and
// suggestions it is accepting against (§4.4, §6).
type GapAnalysisSession struct {
	ID                string                 `json:"id" validate:"required"`
	AgentSessionID    string                 `json:"agentSessionId" validate:"required"`
	Gaps              []Gap                  `json:"gaps"`
	Suggestions       []BridgingTask         `json:"suggestions"`
	PerformanceMetrics GapPerformanceMetrics `json:"performanceMetrics"`
	CreatedAt         string                 `json:"createdAt"`
}

// Validate checks the session's own invariants.
func (s *GapAnalysisSession) Validate() error {
	return Validate(s)
}
