package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/taskwing-labs/prioritizer/internal/llm"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/utils"
)

// qualityPromptTemplate asks for a single strict-JSON clarity judgment,
// the same restricted-call shape manualtask.Placer.JudgePlacement uses
// for its one-task decision.
const qualityPromptTemplate = `Rate how clearly-specified the following task description is for planning
purposes, on a 0.0-1.0 scale, and suggest concrete improvements if it is
ambiguous, missing a concrete outcome, or missing an estimate of scope.

TASK:
%s

Output ONLY a JSON object with this exact schema:
{
  "clarity_score": 0.0-1.0,
  "improvement_suggestions": ["string", ...]
}
`

type qualityResponse struct {
	ClarityScore           float64  `json:"clarity_score" validate:"gte=0,lte=1"`
	ImprovementSuggestions []string `json:"improvement_suggestions,omitempty"`
}

// QualityChatModelFactory builds a chat model for quality evaluation,
// mirroring manualtask.ChatModelFactory.
type QualityChatModelFactory func(ctx context.Context, cfg llm.Config) (*llm.CloseableChatModel, error)

// QualityEvaluator implements EvaluateQuality (§6): an LLM clarity
// judgment with a keyword-heuristic fallback. Unlike
// scoring.Estimator.EstimateImpact (which always propagates an LLM
// failure to the retry queue because a missing strategic score blocks
// the plan), a missing quality judgment blocks nothing — it is purely
// advisory — so a failure here degrades to the heuristic rather than
// erroring out, the same tradeoff scoring.EstimateEffortHeuristic makes
// available as a fallback path elsewhere in the pipeline.
type QualityEvaluator struct {
	llmCfg  llm.Config
	factory QualityChatModelFactory
}

// NewQualityEvaluator constructs a QualityEvaluator.
func NewQualityEvaluator(cfg llm.Config) *QualityEvaluator {
	return &QualityEvaluator{llmCfg: cfg, factory: llm.NewCloseableChatModel}
}

// WithChatModelFactory overrides the chat model factory, used by tests.
func (q *QualityEvaluator) WithChatModelFactory(f QualityChatModelFactory) *QualityEvaluator {
	q.factory = f
	return q
}

var vagueWords = regexp.MustCompile(`(?i)\b(stuff|things|improve|better|some|various|etc)\b`)

// heuristicClarity scores a task description by penalizing vague
// language and very short descriptions, mirroring
// scoring.EstimateEffortHeuristic's keyword-table-plus-length-signal shape.
func heuristicClarity(taskText string) models.QualityMetadata {
	trimmed := strings.TrimSpace(taskText)
	words := strings.Fields(trimmed)
	score := 0.9
	var suggestions []string

	if len(words) < 6 {
		score -= 0.3
		suggestions = append(suggestions, "add more detail: the description is very short")
	}
	if n := len(vagueWords.FindAllString(trimmed, -1)); n > 0 {
		score -= 0.15 * float64(n)
		suggestions = append(suggestions, "replace vague terms with specific nouns or outcomes")
	}
	if !strings.ContainsAny(trimmed, "0123456789") && len(words) < 15 {
		suggestions = append(suggestions, "consider adding a concrete scope or estimate")
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return models.QualityMetadata{ClarityScore: score, ImprovementSuggestions: suggestions}
}

// EvaluateQuality judges a task description's clarity (§6), trying the
// LLM path first and degrading to the heuristic on any failure.
func (q *QualityEvaluator) EvaluateQuality(ctx context.Context, taskText string) models.QualityMetadata {
	model, err := q.factory(ctx, q.llmCfg)
	if err != nil {
		return heuristicClarity(taskText)
	}

	prompt := fmt.Sprintf(qualityPromptTemplate, taskText)
	resp, err := model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return heuristicClarity(taskText)
	}

	parsed, err := utils.ExtractAndParseJSON[qualityResponse](resp.Content)
	if err != nil {
		return heuristicClarity(taskText)
	}
	if parsed.ClarityScore < 0 || parsed.ClarityScore > 1 {
		return heuristicClarity(taskText)
	}
	return models.QualityMetadata{
		ClarityScore:           parsed.ClarityScore,
		ImprovementSuggestions: parsed.ImprovementSuggestions,
	}
}

// EvaluateQuality is the engine-level §6 surface wrapping QualityEvaluator.
func (s *Service) EvaluateQuality(ctx context.Context, taskText string) models.QualityMetadata {
	return s.quality.EvaluateQuality(ctx, taskText)
}
