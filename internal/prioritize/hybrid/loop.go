package hybrid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/clockutil"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
)

// MaxIterations bounds the generate→evaluate→decide cycle (§4.2).
const MaxIterations = 3

// EarlyStopConfidence lets the loop skip evaluation after iteration 1
// when the generator is already highly confident.
const EarlyStopConfidence = 0.9

// Loop runs the bounded Hybrid Loop for one session.
type Loop struct {
	generator *Generator
	evaluator *Generator
	clock     clockutil.Clock
}

// NewLoop constructs a Hybrid Loop. generator and evaluator may be the
// same *Generator (distinct prompt templates select behavior) or two
// separate instances pointed at different models.
func NewLoop(generator, evaluator *Generator, clock clockutil.Clock) *Loop {
	return &Loop{generator: generator, evaluator: evaluator, clock: clock}
}

// Outcome is everything the Session Controller needs to persist after
// one Hybrid Loop run.
type Outcome struct {
	Plan               *models.Plan
	PerTaskScores       map[string]PerTaskScore
	EvaluationMetadata *models.EvaluationMetadata
}

// Run executes the bounded iteration loop described in §4.2.
func (l *Loop) Run(ctx context.Context, genCtx GenerationContext) (*Outcome, error) {
	start := l.clock.Now()
	var entries []models.ChainOfThoughtEntry
	var lastResp *GeneratorResponse
	var lastFeedback string
	converged := false
	evaluationRan := false

	for i := 1; i <= MaxIterations; i++ {
		input := genInput(genCtx, lastFeedback)
		genResult, err := generateWithRetry(ctx, l.generator, generatorPromptTemplate, input, func(r *GeneratorResponse) ValidationResult {
			return r.Validate()
		})
		if err != nil {
			return nil, err
		}
		lastResp = &genResult.result

		entry := models.ChainOfThoughtEntry{
			Iteration:  i,
			Confidence: lastResp.Confidence,
			Timestamp:  l.clock.Now(),
		}

		skipEval := i == 1 && lastResp.Confidence >= EarlyStopConfidence
		if skipEval {
			entries = append(entries, entry)
			converged = true
			break
		}

		evalInput := evalInput(genCtx.OutcomeText, *lastResp)
		evalResult, err := generateWithRetry(ctx, l.evaluator, evaluatorPromptTemplate, evalInput, func(r *EvaluatorResponse) ValidationResult {
			return r.Validate()
		})
		if err != nil {
			return nil, err
		}
		evaluationRan = true
		evaluation := evalResult.result
		entry.EvaluatorFeedback = evaluation.Feedback
		entry.Corrections = lastResp.CorrectionsMade
		entries = append(entries, entry)

		switch evaluation.Status {
		case EvalPass:
			converged = true
		case EvalNeedsImprovement, EvalFail:
			if i < MaxIterations {
				lastFeedback = formatEvaluatorFeedback(evaluation)
				continue
			}
			converged = false
		}
		break
	}

	if lastResp == nil {
		return nil, perrors.New(perrors.KindFatalUpstream, "hybrid loop produced no generation")
	}

	plan := buildPlan(genCtx, *lastResp, l.clock.Now())
	scores := make(map[string]PerTaskScore, len(lastResp.PerTaskScores))
	for _, s := range lastResp.PerTaskScores {
		scores[s.TaskID] = s
	}

	meta := &models.EvaluationMetadata{
		Iterations:          len(entries),
		DurationMs:          l.clock.Now().Sub(start).Milliseconds(),
		EvaluationTriggered: evaluationRan,
		ChainOfThought:      entries,
		Converged:           converged,
		FinalConfidence:     lastResp.Confidence,
	}

	return &Outcome{Plan: plan, PerTaskScores: scores, EvaluationMetadata: meta}, nil
}

func genInput(genCtx GenerationContext, feedback string) map[string]any {
	m := map[string]any{
		"OutcomeText":           genCtx.OutcomeText,
		"ReflectionBullets":     genCtx.ReflectionBullets,
		"Tasks":                 genCtx.Tasks,
		"PreviousPlanSummary":   genCtx.PreviousPlanSummary,
		"DependencyConstraints": genCtx.DependencyConstraints,
	}
	if feedback != "" {
		m["ValidationErrors"] = feedback
	}
	return m
}

func evalInput(outcomeText string, resp GeneratorResponse) map[string]any {
	return map[string]any{
		"OutcomeText":      outcomeText,
		"OrderedTaskIDs":   strings.Join(resp.OrderedTaskIDs, ", "),
		"SynthesisSummary": resp.CriticalPathReasoning,
	}
}

func formatEvaluatorFeedback(e EvaluatorResponse) string {
	return fmt.Sprintf(`
EVALUATOR FEEDBACK (status=%s)
%s

Scores: outcome_alignment=%.1f strategic_coherence=%.1f reflection_integration=%.1f continuity=%.1f
Please revise the plan accordingly.
`, e.Status, e.Feedback, e.OutcomeAlignment, e.StrategicCoherence, e.ReflectionIntegration, e.Continuity)
}

func buildPlan(genCtx GenerationContext, resp GeneratorResponse, now time.Time) *models.Plan {
	confidence := make(map[string]float64, len(resp.PerTaskScores))
	var removed []models.RemovedTask
	for _, s := range resp.PerTaskScores {
		confidence[s.TaskID] = s.Confidence
	}
	for _, id := range resp.ExcludedTasks {
		removed = append(removed, models.RemovedTask{TaskID: id, Reason: "excluded by generator"})
	}

	waves := []models.ExecutionWave{{WaveNumber: 1, TaskIDs: resp.OrderedTaskIDs, Parallel: false}}

	var deps []models.Dependency
	for _, s := range resp.PerTaskScores {
		for _, dep := range s.Dependencies {
			deps = append(deps, models.Dependency{
				Source:          dep,
				Target:          s.TaskID,
				Relationship:    models.RelationPrerequisite,
				Confidence:      s.Confidence,
				DetectionMethod: models.DetectionLLM,
			})
		}
	}

	return &models.Plan{
		OrderedTaskIDs:   resp.OrderedTaskIDs,
		ExecutionWaves:   waves,
		Dependencies:     deps,
		ConfidenceScores: confidence,
		RemovedTasks:     removed,
		SynthesisSummary: resp.CriticalPathReasoning,
		CreatedAt:        now.UTC().Format(time.RFC3339Nano),
	}
}
