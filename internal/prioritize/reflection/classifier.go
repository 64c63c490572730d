// Package reflection implements the Reflection Interpreter and
// Adjustment pipeline (§4.5): classifying a free-text reflection into a
// ReflectionIntent and applying active reflections to a baseline plan.
//
// Grounded on internal/task/scope_config.go's keyword-bucket classifier
// (generalized from scope inference to intent-type inference) and
// internal/planner/generator.go's LLM-call shape, with the timeout
// precedence pattern from internal/llm/client.go's GetEffectiveTimeout.
package reflection

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/taskwing-labs/prioritizer/internal/llm"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
	"github.com/taskwing-labs/prioritizer/internal/utils"
)

// InterpretTimeout is the §4.5/§5 latency budget for one interpretation
// call; on expiry the heuristic classifier is used instead.
const InterpretTimeout = 5 * time.Second

// intentKeywords maps each intent type to the words that signal it, the
// same shape as scope_config.go's defaultScopeKeywords but classifying
// intent rather than domain scope.
var intentKeywords = map[models.ReflectionIntentType][]string{
	models.IntentFocus:      {"focus", "prioritize", "emphasize", "concentrate", "double down", "lean into"},
	models.IntentAvoid:      {"avoid", "ignore", "skip", "deprioritize", "stop", "pause", "not now", "later"},
	models.IntentUrgency:    {"urgent", "asap", "immediately", "deadline", "rush", "critical", "now"},
	models.IntentConstraint: {"waiting on", "blocked", "can't", "cannot", "pending", "legal", "approval", "unavailable"},
	models.IntentContext:    {"because", "since", "given that", "context", "fyi", "heads up"},
}

var wordSplitter = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// words lowercases and tokenizes text into a membership set, matching
// internal/task/models.go's EnrichAIFields keyword-matching shape.
func words(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range wordSplitter.Split(strings.ToLower(text), -1) {
		if w != "" {
			set[w] = true
		}
	}
	return set
}

// stopwords are filler words stripped when extracting a reflection's
// topical content words, so "focus on the checkout launch work" yields
// "checkout launch work" rather than matching nothing downstream.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "on": true, "in": true, "of": true, "to": true,
	"and": true, "is": true, "are": true, "was": true, "were": true, "be": true, "by": true,
	"at": true, "as": true, "from": true, "or": true, "but": true, "not": true, "so": true,
	"if": true, "than": true, "then": true, "into": true, "about": true, "up": true,
	"down": true, "out": true, "over": true, "under": true, "again": true, "here": true,
	"there": true, "all": true, "any": true, "both": true, "each": true, "few": true,
	"more": true, "most": true, "other": true, "some": true, "such": true, "only": true,
	"own": true, "same": true, "too": true, "very": true, "can": true, "will": true,
	"just": true, "it": true, "this": true, "that": true, "for": true, "with": true,
}

// contentWords extracts text's topical content tokens (lowercased,
// stopwords removed, de-duplicated, order preserved) for use as a
// ReflectionIntent's Keywords. Unlike the intentKeywords buckets, which
// only say what TYPE of intent the text signals, these are what the
// text is actually ABOUT, which is what matchingTasks needs to find the
// tasks a reflection refers to.
func contentWords(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range wordSplitter.Split(strings.ToLower(text), -1) {
		if w == "" || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// ClassifyHeuristic infers a ReflectionIntent from keyword buckets when
// no LLM is available or the interpret timeout has elapsed. Returns
// IntentContext with low strength if no bucket matches, matching
// scope_config.go's InferScope "general" fallback.
func ClassifyHeuristic(reflectionID, text string) models.ReflectionIntent {
	lower := strings.ToLower(text)
	set := words(text)

	bestType := models.IntentContext
	bestScore := 0

	for intentType, keywords := range intentKeywords {
		score := 0
		for _, kw := range keywords {
			if strings.Contains(kw, " ") {
				if strings.Contains(lower, kw) {
					score++
				}
				continue
			}
			if set[kw] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestType = intentType
		}
	}

	strength := 0.4
	if bestScore > 0 {
		strength = clamp01(0.5 + 0.15*float64(bestScore))
	}

	return models.ReflectionIntent{
		ReflectionID: reflectionID,
		Type:         bestType,
		Keywords:     contentWords(text),
		Strength:     strength,
		Summary:      text,
	}
}

// ChatModelFactory builds a chat model, mirroring scoring.ChatModelFactory
// so tests can substitute a fake.
type ChatModelFactory func(ctx context.Context, cfg llm.Config) (*llm.CloseableChatModel, error)

type intentResponse struct {
	Type     models.ReflectionIntentType `json:"type" validate:"required,oneof=focus avoid urgency constraint context"`
	Subtype  string                      `json:"subtype,omitempty"`
	Keywords []string                    `json:"keywords,omitempty"`
	Strength float64                     `json:"strength" validate:"gte=0,lte=1"`
	Duration string                      `json:"duration,omitempty"`
	Summary  string                      `json:"summary,omitempty"`
}

const reflectionIntentPromptTemplate = `Classify the intent behind this user reflection about their task priorities.

REFLECTION:
{{.Text}}

Output ONLY a JSON object:
{
  "type": "focus|avoid|urgency|constraint|context",
  "subtype": "string, optional",
  "keywords": ["string", ...],
  "strength": 0-1,
  "duration": "string, optional (e.g. this week, until Friday)",
  "summary": "one-sentence paraphrase"
}
`

// Classifier interprets reflection text into a ReflectionIntent, trying
// an LLM call first and falling back to the heuristic on timeout or
// upstream failure.
type Classifier struct {
	llmCfg   llm.Config
	factory  ChatModelFactory
	timeout  time.Duration
}

// NewClassifier constructs a Classifier against the given LLM config.
func NewClassifier(cfg llm.Config) *Classifier {
	return &Classifier{llmCfg: cfg, factory: llm.NewCloseableChatModel, timeout: InterpretTimeout}
}

// WithChatModelFactory overrides the chat model factory, used by tests.
func (c *Classifier) WithChatModelFactory(f ChatModelFactory) *Classifier {
	c.factory = f
	return c
}

// WithTimeout overrides the interpret timeout, used by tests that need
// to force the timeout fallback path deterministically.
func (c *Classifier) WithTimeout(d time.Duration) *Classifier {
	c.timeout = d
	return c
}

// Classify interprets reflectionID's text, trying the LLM under the
// configured interpret timeout and falling back to ClassifyHeuristic
// when that timeout elapses or the call otherwise fails. A cancellation
// originating from the caller's own ctx (not our internal timeout) is
// propagated instead of masked, since that reflects the caller giving
// up rather than the interpreter being slow.
func (c *Classifier) Classify(ctx context.Context, reflectionID, text string) (models.ReflectionIntent, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	intent, err := c.classifyLLM(callCtx, reflectionID, text)
	if err != nil {
		if ctx.Err() != nil {
			return models.ReflectionIntent{}, perrors.Wrap(perrors.KindTimeout, "reflection interpreter: caller context done", ctx.Err())
		}
		return ClassifyHeuristic(reflectionID, text), nil
	}
	return intent, nil
}

func (c *Classifier) classifyLLM(ctx context.Context, reflectionID, text string) (models.ReflectionIntent, error) {
	model, err := c.factory(ctx, c.llmCfg)
	if err != nil {
		return models.ReflectionIntent{}, perrors.Wrap(perrors.KindUpstreamUnavailable, "create chat model", err)
	}
	prompt := strings.NewReplacer("{{.Text}}", text).Replace(reflectionIntentPromptTemplate)

	resp, err := model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return models.ReflectionIntent{}, perrors.Wrap(perrors.KindUpstreamUnavailable, "LLM generate", err)
	}
	parsed, err := utils.ExtractAndParseJSON[intentResponse](resp.Content)
	if err != nil {
		return models.ReflectionIntent{}, perrors.Wrap(perrors.KindValidation, "parse reflection intent", err)
	}
	return models.ReflectionIntent{
		ReflectionID: reflectionID,
		Type:         parsed.Type,
		Subtype:      parsed.Subtype,
		Keywords:     parsed.Keywords,
		Strength:     clamp01(parsed.Strength),
		Duration:     parsed.Duration,
		Summary:      parsed.Summary,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
