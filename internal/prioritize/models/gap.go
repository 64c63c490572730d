package models

// GapIndicators are the raw signals behind a detected gap's confidence.
type GapIndicators struct {
	CosineDistance  float64 `json:"cosineDistance"`
	ActionTypeJump  bool    `json:"actionTypeJump"`
	SkillJump       bool    `json:"skillJump"`
	TimeGap         bool    `json:"timeGap"`
}

// Gap is a detected dependency/skill/time discontinuity between two
// adjacent tasks in an ordered plan (§4.4).
type Gap struct {
	ID                string        `json:"id"`
	PredecessorTaskID string        `json:"predecessorTaskId"`
	SuccessorTaskID   string        `json:"successorTaskId"`
	Indicators        GapIndicators `json:"indicators"`
	Confidence        float64       `json:"confidence"`
}

// GapDetectionMetadata summarizes one DetectGaps call.
type GapDetectionMetadata struct {
	TotalPairsAnalyzed int   `json:"totalPairsAnalyzed"`
	GapsDetected       int   `json:"gapsDetected"`
	AnalysisDurationMs int64 `json:"analysisDurationMs"`
}

// GapPerformanceMetrics is the performance attachment on a gap-analysis
// session result.
type GapPerformanceMetrics struct {
	AnalysisDurationMs   int64 `json:"analysisDurationMs"`
	BridgingDurationMs   int64 `json:"bridgingDurationMs"`
	SemanticSearchCalls  int   `json:"semanticSearchCalls"`
}

// BridgingTaskStatus captures why/whether a bridging suggestion landed.
type BridgingTaskStatus string

const (
	BridgingStatusSuggested       BridgingTaskStatus = "suggested"
	BridgingStatusRequiresExamples BridgingTaskStatus = "requires_examples"
	BridgingStatusAccepted        BridgingTaskStatus = "accepted"
)

// BridgingTask is a new task proposed to fill a detected gap.
type BridgingTask struct {
	TaskID         string             `json:"taskId"`
	GapID          string             `json:"gapId"`
	TaskText       string             `json:"taskText" validate:"required,min=10,max=500"`
	EstimatedHours float64            `json:"estimatedHours" validate:"gte=8,lte=160"`
	CognitionLevel string             `json:"cognitionLevel,omitempty"`
	Confidence     float64            `json:"confidence" validate:"gte=0,lte=1"`
	Reasoning      string             `json:"reasoning,omitempty"`
	Status         BridgingTaskStatus `json:"status"`
}

// Validate checks the bridging task's numeric bounds (§4.4:
// estimated_hours in [8,160]).
func (b *BridgingTask) Validate() error {
	return Validate(b)
}
