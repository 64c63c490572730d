package hybrid

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"strings"
	"text/template"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/taskwing-labs/prioritizer/internal/llm"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/clockutil"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
	"github.com/taskwing-labs/prioritizer/internal/utils"
)

// MaxAttempts bounds the repair retries within a single generate or
// evaluate call, matching planner.MaxGenerationRetries.
const MaxAttempts = 3

// RetryDelay is the backoff between repair attempts within one call.
const RetryDelay = 500 * time.Millisecond

// ChatModelFactory builds a chat model for the given LLM config; a
// function value so tests can substitute a fake, mirroring
// internal/knowledge.Service's chatModelFactory seam.
type ChatModelFactory func(ctx context.Context, cfg llm.Config) (*llm.CloseableChatModel, error)

// Generator produces validated structured output from an LLM, reusing
// the repair-on-validation-failure shape of
// internal/planner/generator.go's generateWithRetry[T].
type Generator struct {
	llmCfg  llm.Config
	clock   clockutil.Clock
	factory ChatModelFactory
	model   *llm.CloseableChatModel
}

// NewGenerator constructs a Generator against the given LLM config.
func NewGenerator(cfg llm.Config, clock clockutil.Clock) *Generator {
	return &Generator{llmCfg: cfg, clock: clock, factory: llm.NewCloseableChatModel}
}

// WithChatModelFactory overrides the chat model factory, used by tests.
func (g *Generator) WithChatModelFactory(f ChatModelFactory) *Generator {
	g.factory = f
	return g
}

// Close releases the underlying chat model resources, if any were created.
func (g *Generator) Close() error {
	if g.model != nil {
		return g.model.Close()
	}
	return nil
}

type generationResult[T any] struct {
	result   T
	rawText  string
	attempts int
}

func generateWithRetry[T any](
	ctx context.Context,
	g *Generator,
	promptTemplate string,
	input map[string]any,
	validateFn func(*T) ValidationResult,
) (*generationResult[T], error) {
	if g.model == nil {
		model, err := g.factory(ctx, g.llmCfg)
		if err != nil {
			return nil, perrors.Wrap(perrors.KindUpstreamUnavailable, "create chat model", err)
		}
		g.model = model
	}

	tmpl, err := template.New("prompt").Parse(promptTemplate)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindInternal, "parse prompt template", err)
	}

	var lastErr error
	var validationFeedback string

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		promptInput := copyMap(input)
		if validationFeedback != "" {
			promptInput["ValidationErrors"] = validationFeedback
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, promptInput); err != nil {
			return nil, perrors.Wrap(perrors.KindInternal, "render prompt template", err)
		}

		messages := []*schema.Message{schema.UserMessage(buf.String())}
		resp, err := g.model.Generate(ctx, messages)
		if err != nil {
			lastErr = perrors.Wrap(perrors.KindUpstreamUnavailable, "LLM generate", err)
			if attempt < MaxAttempts {
				g.sleep(RetryDelay * time.Duration(attempt))
				continue
			}
			return nil, lastErr
		}

		var result T
		result, err = utils.ExtractAndParseJSON[T](resp.Content)
		if err != nil {
			lastErr = perrors.Wrap(perrors.KindValidation, fmt.Sprintf("parse JSON (attempt %d)", attempt), err)
			validationFeedback = formatErrorFeedback("JSON Parse Error", err.Error(), resp.Content)
			if attempt < MaxAttempts {
				g.sleep(RetryDelay)
				continue
			}
			return nil, lastErr
		}

		vr := validateFn(&result)
		if !vr.Valid {
			lastErr = perrors.New(perrors.KindValidation, fmt.Sprintf("validation failed (attempt %d): %s", attempt, vr.ErrorSummary()))
			validationFeedback = formatValidationFeedback(vr)
			if attempt < MaxAttempts {
				g.sleep(RetryDelay)
				continue
			}
			return nil, lastErr
		}

		return &generationResult[T]{result: result, rawText: resp.Content, attempts: attempt}, nil
	}

	return nil, lastErr
}

func (g *Generator) sleep(d time.Duration) {
	if g.clock == nil {
		return
	}
	<-g.clock.After(d)
}

func formatErrorFeedback(errorType, errMsg, rawOutput string) string {
	truncated := rawOutput
	if len(truncated) > 500 {
		truncated = truncated[:500] + "... [truncated]"
	}
	return fmt.Sprintf(`
PREVIOUS ATTEMPT FAILED - PLEASE FIX

Error Type: %s
Error: %s

Your previous output (which failed):
%s

Please ensure your response is valid JSON matching the required schema.
`, errorType, errMsg, truncated)
}

func formatValidationFeedback(vr ValidationResult) string {
	var sb strings.Builder
	sb.WriteString("\nPREVIOUS ATTEMPT FAILED - SCHEMA VALIDATION ERRORS\n\n")
	for i, e := range vr.Errors {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, e.Message))
	}
	sb.WriteString("\nPlease regenerate the response with these issues corrected.\n")
	return sb.String()
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	maps.Copy(out, m)
	return out
}
