// Package manualtask implements Manual Task Placement (§4.6): deciding
// where a single task added after a plan already exists should land,
// without re-running the full hybrid loop.
//
// Grounded on internal/prioritize/gaps.BridgingGenerator's single
// strict-JSON LLM call shape (one restricted judgment instead of a
// repair-retry loop) and internal/prioritize/embedstore's near-duplicate
// search.
package manualtask

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/taskwing-labs/prioritizer/internal/llm"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/embedstore"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
	"github.com/taskwing-labs/prioritizer/internal/utils"
)

// DuplicateThreshold is the cosine similarity at or above which a newly
// added task is treated as a near-duplicate of an existing one (§4.6).
const DuplicateThreshold = 0.88

// Decision is the restricted one-task LLM judgment's verdict.
type Decision string

const (
	DecisionInclude Decision = "include"
	DecisionExclude Decision = "exclude"
)

// ChatModelFactory builds a chat model, mirroring gaps.ChatModelFactory.
type ChatModelFactory func(ctx context.Context, cfg llm.Config) (*llm.CloseableChatModel, error)

// judgmentResponse is the restricted placement LLM's strict-JSON shape.
type judgmentResponse struct {
	Decision        Decision `json:"decision" validate:"required,oneof=include exclude"`
	AgentRank       int      `json:"agent_rank,omitempty"`
	PlacementReason string   `json:"placement_reason,omitempty"`
	ExclusionReason string   `json:"exclusion_reason,omitempty"`
}

const manualTaskPromptTemplate = `A user has added a single new task after a plan for the outcome below already exists.
Decide whether it should be included in the plan and, if so, where it ranks.

OUTCOME:
%s

EXISTING PLAN (in rank order):
%s

NEW TASK:
%s

Output ONLY a JSON object with this exact schema:
{
  "decision": "include|exclude",
  "agent_rank": 1-based rank if included, 0 if excluded,
  "placement_reason": "string, required if included",
  "exclusion_reason": "string, required if excluded"
}
`

// Placer judges the placement of one manually-added task: first
// checking for a near-duplicate in the embedding store, then (absent a
// duplicate) calling a restricted one-task LLM judgment.
type Placer struct {
	llmCfg    llm.Config
	factory   ChatModelFactory
	embedding *embedstore.Service
}

// NewPlacer constructs a Placer.
func NewPlacer(cfg llm.Config, embedding *embedstore.Service) *Placer {
	return &Placer{llmCfg: cfg, factory: llm.NewCloseableChatModel, embedding: embedding}
}

// WithChatModelFactory overrides the chat model factory, used by tests.
func (p *Placer) WithChatModelFactory(f ChatModelFactory) *Placer {
	p.factory = f
	return p
}

// DuplicateCheck is the outcome of near-duplicate detection: Found is
// false when no existing task clears DuplicateThreshold.
type DuplicateCheck struct {
	Found           bool
	DuplicateTaskID string
	SimilarityScore float64
}

// CheckDuplicate embeds taskText and searches the corpus for a near
// duplicate, per §4.6's cosine >= 0.88 conflict rule.
func (p *Placer) CheckDuplicate(ctx context.Context, taskText string) (DuplicateCheck, error) {
	vec, err := p.embedding.Embed(ctx, taskText)
	if err != nil {
		return DuplicateCheck{}, perrors.Wrap(perrors.KindUpstreamUnavailable, "embed manual task", err)
	}
	ranked, err := p.embedding.RankBySimilarity(vec, 1)
	if err != nil {
		return DuplicateCheck{}, perrors.Wrap(perrors.KindInternal, "search for near duplicate", err)
	}
	if len(ranked) == 0 || float64(ranked[0].Similarity) < DuplicateThreshold {
		return DuplicateCheck{}, nil
	}
	return DuplicateCheck{
		Found:           true,
		DuplicateTaskID: ranked[0].Task.TaskID,
		SimilarityScore: float64(ranked[0].Similarity),
	}, nil
}

// Judgment is the restricted placement LLM's parsed decision.
type Judgment struct {
	Decision        Decision
	AgentRank       int
	PlacementReason string
	ExclusionReason string
}

// JudgePlacement calls the restricted one-task LLM judgment: given the
// outcome and the existing plan's ordered task texts, decide whether
// the new task belongs and where.
func (p *Placer) JudgePlacement(ctx context.Context, outcomeText string, existingPlanTaskTexts []string, newTaskText string) (Judgment, error) {
	model, err := p.factory(ctx, p.llmCfg)
	if err != nil {
		return Judgment{}, perrors.Wrap(perrors.KindUpstreamUnavailable, "create chat model", err)
	}

	var planText string
	for i, t := range existingPlanTaskTexts {
		planText += fmt.Sprintf("%d. %s\n", i+1, t)
	}

	prompt := fmt.Sprintf(manualTaskPromptTemplate, outcomeText, planText, newTaskText)
	resp, err := model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return Judgment{}, perrors.Wrap(perrors.KindTimeout, "TIMEOUT: manual task judgment", err)
	}

	parsed, err := utils.ExtractAndParseJSON[judgmentResponse](resp.Content)
	if err != nil {
		return Judgment{}, perrors.Wrap(perrors.KindValidation, "parse manual task judgment", err)
	}
	if parsed.Decision != DecisionInclude && parsed.Decision != DecisionExclude {
		return Judgment{}, perrors.New(perrors.KindValidation, "manual task judgment: invalid decision")
	}
	return Judgment{
		Decision:        parsed.Decision,
		AgentRank:       parsed.AgentRank,
		PlacementReason: parsed.PlacementReason,
		ExclusionReason: parsed.ExclusionReason,
	}, nil
}
