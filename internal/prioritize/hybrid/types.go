// Package hybrid implements the Hybrid Loop (§4.2): a bounded
// generate→evaluate→decide cycle that produces a prioritized plan for
// one session. Grounded on internal/planner/generator.go's
// generateWithRetry[T] generic retry/validate/repair machinery,
// generalized from a single-pass plan generator to the spec's
// 3-iteration loop with a distinct evaluator stage.
package hybrid

import "fmt"

// TaskInput is one corpus entry offered to the generator: its id,
// truncated text, and optional context carried over from a prior plan.
type TaskInput struct {
	TaskID           string
	Text             string
	PriorRank        int
	PriorConfidence  float64
	State            string
	RemovalReason    string
}

// GenerationContext is everything the generator prompt needs (§4.2).
type GenerationContext struct {
	OutcomeText        string
	ReflectionBullets  []string
	Tasks              []TaskInput
	PreviousPlanSummary string
	DependencyConstraints []string
}

// PerTaskScore is one entry of a GeneratorResponse.PerTaskScores.
type PerTaskScore struct {
	TaskID             string   `json:"task_id" validate:"required"`
	Impact             float64  `json:"impact" validate:"gte=0,lte=10"`
	Effort             float64  `json:"effort" validate:"gte=0.5"`
	Confidence         float64  `json:"confidence" validate:"gte=0,lte=1"`
	Reasoning          string   `json:"reasoning"`
	BriefReasoning     string   `json:"brief_reasoning" validate:"required"`
	Dependencies       []string `json:"dependencies,omitempty"`
	ReflectionInfluence string  `json:"reflection_influence,omitempty"`
}

// GeneratorResponse is the Generator LLM's structured output (§4.2).
type GeneratorResponse struct {
	IncludedTasks        []string                `json:"included_tasks" validate:"required,min=1"`
	ExcludedTasks        []string                `json:"excluded_tasks"`
	OrderedTaskIDs       []string                `json:"ordered_task_ids" validate:"required,min=1"`
	PerTaskScores        []PerTaskScore          `json:"per_task_scores" validate:"required,min=1,dive"`
	Confidence           float64                 `json:"confidence" validate:"gte=0,lte=1"`
	Thoughts             map[string]string        `json:"thoughts,omitempty"`
	CriticalPathReasoning string                 `json:"critical_path_reasoning,omitempty"`
	CorrectionsMade      []string                `json:"corrections_made,omitempty"`
}

// EvaluatorStatus is the Evaluator's verdict on a generated plan.
type EvaluatorStatus string

const (
	EvalPass              EvaluatorStatus = "PASS"
	EvalNeedsImprovement  EvaluatorStatus = "NEEDS_IMPROVEMENT"
	EvalFail              EvaluatorStatus = "FAIL"
)

// EvaluatorResponse is the Evaluator LLM's structured output (§4.2).
type EvaluatorResponse struct {
	Status               EvaluatorStatus `json:"status" validate:"required,oneof=PASS NEEDS_IMPROVEMENT FAIL"`
	OutcomeAlignment     float64         `json:"outcome_alignment" validate:"gte=0,lte=10"`
	StrategicCoherence   float64         `json:"strategic_coherence" validate:"gte=0,lte=10"`
	ReflectionIntegration float64        `json:"reflection_integration" validate:"gte=0,lte=10"`
	Continuity           float64         `json:"continuity" validate:"gte=0,lte=10"`
	Feedback             string          `json:"feedback"`
}

// ValidationError mirrors planner.ValidationError's shape: a single
// struct-tag failure with a human-readable message.
type ValidationError struct {
	Field   string
	Tag     string
	Value   any
	Message string
}

// ValidationResult mirrors planner.ValidationResult, kept local to
// hybrid so the package has no cross-domain coupling to planner.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ErrorSummary renders every validation error as one semicolon-joined string.
func (r ValidationResult) ErrorSummary() string {
	if r.Valid {
		return ""
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return joinStrings(msgs, "; ")
}

func joinStrings(ss []string, sep string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += sep
		}
		out += s
	}
	return out
}

func (e ValidationError) String() string {
	return fmt.Sprintf("field '%s': %s", e.Field, e.Message)
}
