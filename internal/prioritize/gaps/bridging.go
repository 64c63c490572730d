package gaps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/taskwing-labs/prioritizer/internal/llm"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/embedstore"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
	"github.com/taskwing-labs/prioritizer/internal/utils"
)

// bridgingConfidenceThreshold is the minimum gap confidence that
// triggers bridging-task generation (§4.4).
const bridgingConfidenceThreshold = 0.75

// similarCompletionThreshold is the minimum cosine similarity for a
// prior task to count as an example completion.
const similarCompletionThreshold = 0.7

// minExamplesRequired is the fewest neighbor examples the generator
// needs before it will attempt generation at all.
const minExamplesRequired = 2

// maxBridgingTasks bounds how many tasks one gap may produce (§4.4: 1-3).
const maxBridgingTasks = 3

// ChatModelFactory builds a chat model, mirroring scoring.ChatModelFactory.
type ChatModelFactory func(ctx context.Context, cfg llm.Config) (*llm.CloseableChatModel, error)

// bridgingResponse is the Gap-Filling LLM's strict-JSON output shape.
type bridgingResponse struct {
	BridgingTasks []bridgingTaskResponse `json:"bridging_tasks"`
}

type bridgingTaskResponse struct {
	TaskText       string  `json:"task_text"`
	EstimatedHours float64 `json:"estimated_hours"`
	CognitionLevel string  `json:"cognition_level"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

// BridgingGenerator produces bridging task suggestions for high-
// confidence gaps, backed by semantic search over prior completions and
// a single strict-JSON LLM call per gap.
type BridgingGenerator struct {
	llmCfg    llm.Config
	factory   ChatModelFactory
	embedding *embedstore.Service
}

// NewBridgingGenerator constructs a BridgingGenerator.
func NewBridgingGenerator(cfg llm.Config, embedding *embedstore.Service) *BridgingGenerator {
	return &BridgingGenerator{llmCfg: cfg, factory: llm.NewCloseableChatModel, embedding: embedding}
}

// WithChatModelFactory overrides the chat model factory, used by tests.
func (g *BridgingGenerator) WithChatModelFactory(f ChatModelFactory) *BridgingGenerator {
	g.factory = f
	return g
}

const bridgingPromptTemplate = `You are filling a gap between two tasks in a prioritized plan.

OUTCOME:
%s

PREDECESSOR TASK:
%s

SUCCESSOR TASK:
%s

SIMILAR PRIOR COMPLETIONS:
%s

Propose 1-3 bridging tasks that connect the predecessor to the successor.
Output ONLY a JSON object with this exact schema:
{
  "bridging_tasks": [
    {
      "task_text": "string",
      "estimated_hours": 8-160,
      "cognition_level": "string",
      "confidence": 0-1,
      "reasoning": "string"
    }
  ]
}
`

// SuggestBridging generates bridging tasks for one gap, or returns a
// requires_examples result if semantic search finds fewer than
// minExamplesRequired neighbor completions. Gaps below the confidence
// threshold are skipped here: the method returns nil, nil for them.
func (g *BridgingGenerator) SuggestBridging(ctx context.Context, gap models.Gap, predText, succText, outcomeText string) ([]models.BridgingTask, error) {
	if gap.Confidence < bridgingConfidenceThreshold {
		return nil, nil
	}

	queryVec, err := g.embedding.Embed(ctx, predText+" "+succText)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindUpstreamUnavailable, "AI_SERVICE_ERROR: embed gap query", err)
	}
	ranked, err := g.embedding.RankBySimilarity(queryVec, 5)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindInternal, "AI_SERVICE_ERROR: semantic search", err)
	}

	var examples []embedstore.RankedTask
	for _, r := range ranked {
		if float64(r.Similarity) >= similarCompletionThreshold {
			examples = append(examples, r)
		}
	}
	if len(examples) < minExamplesRequired {
		return []models.BridgingTask{{
			GapID:  gap.ID,
			Status: models.BridgingStatusRequiresExamples,
		}}, nil
	}

	model, err := g.factory(ctx, g.llmCfg)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindUpstreamUnavailable, "AI_SERVICE_ERROR: create chat model", err)
	}

	var examplesText strings.Builder
	for _, e := range examples {
		examplesText.WriteString("- " + e.Task.TaskText + "\n")
	}

	prompt := fmt.Sprintf(bridgingPromptTemplate, outcomeText, predText, succText, examplesText.String())
	resp, err := model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return nil, perrors.Wrap(perrors.KindTimeout, "TIMEOUT: bridging generation", err)
	}

	parsed, err := utils.ExtractAndParseJSON[bridgingResponse](resp.Content)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindValidation, "GENERATION_FAILED: parse bridging response", err)
	}
	if len(parsed.BridgingTasks) == 0 {
		return nil, perrors.New(perrors.KindValidation, "GENERATION_FAILED: no bridging tasks returned")
	}
	if len(parsed.BridgingTasks) > maxBridgingTasks {
		parsed.BridgingTasks = parsed.BridgingTasks[:maxBridgingTasks]
	}

	out := make([]models.BridgingTask, 0, len(parsed.BridgingTasks))
	for _, t := range parsed.BridgingTasks {
		bt := models.BridgingTask{
			TaskID:         uuid.NewString(),
			GapID:          gap.ID,
			TaskText:       t.TaskText,
			EstimatedHours: t.EstimatedHours,
			CognitionLevel: t.CognitionLevel,
			Confidence:     t.Confidence,
			Reasoning:      t.Reasoning,
			Status:         models.BridgingStatusSuggested,
		}
		if err := bt.Validate(); err != nil {
			return nil, perrors.Wrap(perrors.KindValidation, "GENERATION_FAILED: invalid bridging task", err)
		}
		out = append(out, bt)
	}
	return out, nil
}

// EmbedAndPersistBridgingTasks embeds each accepted bridging task's text
// and persists its embedding, so it becomes a ranked member of the
// corpus going forward.
func (g *BridgingGenerator) EmbedAndPersistBridgingTasks(ctx context.Context, tasks []models.BridgingTask, now time.Time) error {
	for _, t := range tasks {
		if _, err := g.embedding.IngestTask(ctx, t.TaskID, t.TaskText, true, "gap_bridging", now); err != nil {
			return perrors.Wrap(perrors.KindInternal, "embed bridging task", err)
		}
	}
	return nil
}
