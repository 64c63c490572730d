// Package scoring implements the Strategic Scoring Service and its
// Retry Queue (§4.3): ensuring every included task in a stored plan
// carries a persisted StrategicScore, with bounded-backoff retry on
// LLM failure. Grounded on internal/planner/generator.go's
// retry/backoff shape and internal/task/models.go's EnrichAIFields
// keyword-matching heuristic, generalized to effort estimation.
package scoring

import (
	"context"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/taskwing-labs/prioritizer/internal/llm"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
	"github.com/taskwing-labs/prioritizer/internal/utils"
)

// ImpactEstimate is the EstimateImpact LLM call's structured output.
type ImpactEstimate struct {
	Impact     float64  `json:"impact" validate:"gte=0,lte=10"`
	Reasoning  string   `json:"reasoning"`
	Keywords   []string `json:"keywords,omitempty"`
	Confidence float64  `json:"confidence" validate:"gte=0,lte=1"`
}

// ChatModelFactory builds a chat model, mirroring hybrid.ChatModelFactory
// so tests can substitute a fake without a live provider.
type ChatModelFactory func(ctx context.Context, cfg llm.Config) (*llm.CloseableChatModel, error)

// Estimator computes impact (via LLM) for a task against an outcome.
// Effort comes only from EstimateEffortHeuristic; no LLM path estimates effort.
type Estimator struct {
	llmCfg  llm.Config
	factory ChatModelFactory
}

// NewEstimator constructs an Estimator against the given LLM config.
func NewEstimator(cfg llm.Config) *Estimator {
	return &Estimator{llmCfg: cfg, factory: llm.NewCloseableChatModel}
}

// WithChatModelFactory overrides the chat model factory, used by tests.
func (e *Estimator) WithChatModelFactory(f ChatModelFactory) *Estimator {
	e.factory = f
	return e
}

const impactPromptTemplate = `Rate how much the following task advances the stated outcome.

OUTCOME:
{{.OutcomeText}}

TASK:
{{.TaskText}}

Output ONLY a JSON object:
{
  "impact": 0-10,
  "reasoning": "string",
  "keywords": ["string", ...],
  "confidence": 0-1
}
`

// EstimateImpact calls the Impact LLM (§4.3) for one task.
func (e *Estimator) EstimateImpact(ctx context.Context, taskText, outcomeText string) (*ImpactEstimate, error) {
	model, err := e.factory(ctx, e.llmCfg)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindUpstreamUnavailable, "create chat model", err)
	}
	prompt := strings.NewReplacer(
		"{{.OutcomeText}}", outcomeText,
		"{{.TaskText}}", taskText,
	).Replace(impactPromptTemplate)

	resp, err := model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return nil, perrors.Wrap(perrors.KindUpstreamUnavailable, "LLM generate", err)
	}
	estimate, err := utils.ExtractAndParseJSON[ImpactEstimate](resp.Content)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindValidation, "parse impact estimate", err)
	}
	if estimate.Impact < 0 || estimate.Impact > 10 {
		return nil, perrors.New(perrors.KindValidation, "impact out of [0,10]")
	}
	return &estimate, nil
}

// effortKeywords maps size-signaling words to an hours delta, a small
// weighted table in the style of internal/task/models.go's keyword
// scope-matching, repurposed for effort sizing instead of scoping.
var effortKeywords = map[string]float64{
	"research":  4,
	"explore":   4,
	"draft":     4,
	"prototype": 8,
	"implement": 8,
	"build":     8,
	"migrate":   16,
	"rewrite":   24,
	"overhaul":  24,
	"redesign":  16,
	"audit":     8,
	"refactor":  12,
}

var wordSplitter = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// EstimateEffortHeuristic derives an hours estimate from a keyword table
// and a word-count size signal. It is the only effort estimator; there
// is no LLM fallback.
func EstimateEffortHeuristic(taskText string) float64 {
	words := wordSplitter.Split(strings.ToLower(taskText), -1)
	effort := 4.0 // smallest atomic task: half a day
	for _, w := range words {
		if delta, ok := effortKeywords[w]; ok && delta > effort {
			effort = delta
		}
	}
	// Long descriptions correlate with larger scope; add 1h per 20 words
	// past the first 20, capped so a single heuristic call never exceeds
	// a sane ceiling.
	if extra := len(words) - 20; extra > 0 {
		effort += float64(extra) / 20
	}
	if effort > 80 {
		effort = 80
	}
	return effort
}

// Score combines an impact estimate and an effort figure into a
// persisted StrategicScore via models.NewStrategicScore's clamp formula.
func Score(taskID string, impact ImpactEstimate, effortHours float64) models.StrategicScore {
	return models.NewStrategicScore(taskID, impact.Impact, effortHours, impact.Confidence, impact.Reasoning)
}
