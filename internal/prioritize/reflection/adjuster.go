package reflection

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
)

// focusDelta/avoidDelta/urgencyDelta/contextDelta are the additive
// rank-delta magnitudes §4.5 assigns per matching intent, scaled by the
// intent's strength and the reflection's recency weight. Lower rank
// numbers sort earlier, so "boost" subtracts and "demote" adds.
const (
	focusDelta   = -5.0
	urgencyDelta = -8.0
	contextDelta = -1.0
	avoidDelta   = 6.0
)

// Adjuster applies active reflections to a baseline plan per §4.5's
// adjustment algorithm: additive per-task deltas from matching intents,
// stable-sort by original_rank+delta, emit a diff and metadata.
//
// Grounded on spec.md §4.5 directly (no teacher analogue for the
// algorithm itself); the intent classifier it depends on is grounded on
// internal/task/scope_config.go.
type Adjuster struct {
	classifier *Classifier
}

// NewAdjuster constructs an Adjuster around a Classifier used only for
// reflections that arrive without a precomputed ReflectionIntent.
func NewAdjuster(classifier *Classifier) *Adjuster {
	return &Adjuster{classifier: classifier}
}

// Adjust implements session.Adjuster. It weights recency against the
// wall clock (time.Now()); use AdjustAt for a deterministic now.
func (a *Adjuster) Adjust(ctx context.Context, baseline *models.Plan, reflections []*models.Reflection) (*models.Plan, *models.AdjustmentDiff, *models.AdjustmentMetadata, error) {
	return a.adjustAt(ctx, baseline, reflections, time.Now())
}

// AdjustAt is the deterministic entry point tests use directly, taking
// now explicitly instead of sampling the wall clock.
func (a *Adjuster) AdjustAt(ctx context.Context, baseline *models.Plan, reflections []*models.Reflection, now time.Time) (*models.Plan, *models.AdjustmentDiff, *models.AdjustmentMetadata, error) {
	return a.adjustAt(ctx, baseline, reflections, now)
}

func (a *Adjuster) adjustAt(ctx context.Context, baseline *models.Plan, reflections []*models.Reflection, now time.Time) (*models.Plan, *models.AdjustmentDiff, *models.AdjustmentMetadata, error) {
	start := now

	type weightedIntent struct {
		intent models.ReflectionIntent
		weight float64
	}
	var intents []weightedIntent
	for _, r := range reflections {
		if !r.IsActiveForPrioritization {
			continue
		}
		intent, err := a.classifier.Classify(ctx, r.ID, r.Text)
		if err != nil {
			return nil, nil, nil, err
		}
		intents = append(intents, weightedIntent{intent: intent, weight: r.RecencyWeight(now)})
	}

	originalRank := make(map[string]int, len(baseline.OrderedTaskIDs))
	for i, id := range baseline.OrderedTaskIDs {
		originalRank[id] = i
	}

	// taskWords caches each task's matchable text for keyword lookups;
	// annotations and the task id itself are the only per-task text the
	// plan carries, so they stand in for "task keywords" per §4.5.
	taskWords := make(map[string]map[string]bool, len(baseline.OrderedTaskIDs))
	for _, ann := range baseline.TaskAnnotations {
		taskWords[ann.TaskID] = words(ann.TaskID + " " + ann.Note)
	}
	for _, id := range baseline.OrderedTaskIDs {
		if _, ok := taskWords[id]; !ok {
			taskWords[id] = words(id)
		}
	}

	type adjusted struct {
		taskID  string
		delta   float64
		filter  bool
		reasons []string
	}
	adjustments := make(map[string]*adjusted, len(baseline.OrderedTaskIDs))
	for _, id := range baseline.OrderedTaskIDs {
		adjustments[id] = &adjusted{taskID: id}
	}

	for _, wi := range intents {
		matches := matchingTasks(taskWords, wi.intent)
		for _, taskID := range matches {
			adj := adjustments[taskID]
			if adj == nil {
				continue
			}
			switch wi.intent.Type {
			case models.IntentFocus:
				adj.delta += focusDelta * wi.intent.Strength * wi.weight
				adj.reasons = append(adj.reasons, fmt.Sprintf("focus reflection: %s", summaryOrText(wi.intent)))
			case models.IntentUrgency:
				adj.delta += urgencyDelta * wi.intent.Strength * wi.weight
				adj.reasons = append(adj.reasons, fmt.Sprintf("urgency reflection: %s", summaryOrText(wi.intent)))
			case models.IntentContext:
				adj.delta += contextDelta * wi.intent.Strength * wi.weight
				adj.reasons = append(adj.reasons, fmt.Sprintf("context reflection: %s", summaryOrText(wi.intent)))
			case models.IntentAvoid:
				adj.delta += avoidDelta * wi.intent.Strength * wi.weight
				adj.filter = adj.filter || wi.intent.Strength*wi.weight >= 0.5
				adj.reasons = append(adj.reasons, fmt.Sprintf("ignore reflection: %s", summaryOrText(wi.intent)))
			case models.IntentConstraint:
				adj.filter = true
				adj.reasons = append(adj.reasons, fmt.Sprintf("constraint reflection: %s", summaryOrText(wi.intent)))
			}
		}
	}

	var filtered []models.FilteredTask
	var kept []string
	for _, id := range baseline.OrderedTaskIDs {
		adj := adjustments[id]
		if adj.filter {
			reason := "reflection-driven filter"
			if len(adj.reasons) > 0 {
				reason = strings.Join(adj.reasons, "; ")
			}
			filtered = append(filtered, models.FilteredTask{TaskID: id, Reason: reason})
			continue
		}
		kept = append(kept, id)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		idI, idJ := kept[i], kept[j]
		scoreI := float64(originalRank[idI]) + adjustments[idI].delta
		scoreJ := float64(originalRank[idJ]) + adjustments[idJ].delta
		if scoreI != scoreJ {
			return scoreI < scoreJ
		}
		return originalRank[idI] < originalRank[idJ]
	})

	var moved []models.MovedTask
	for newRank, id := range kept {
		if oldRank := originalRank[id]; oldRank != newRank {
			reason := "reflection-driven reorder"
			if len(adjustments[id].reasons) > 0 {
				reason = strings.Join(adjustments[id].reasons, "; ")
			}
			moved = append(moved, models.MovedTask{TaskID: id, From: oldRank, To: newRank, Reason: reason})
		}
	}

	adjustedPlan := *baseline
	adjustedPlan.OrderedTaskIDs = kept
	diff := &models.AdjustmentDiff{Moved: moved, Filtered: filtered}
	adjustedPlan.Diff = diff
	metadata := &models.AdjustmentMetadata{
		Reflections:   len(intents),
		TasksMoved:    len(moved),
		TasksFiltered: len(filtered),
		DurationMs:    now.Sub(start).Milliseconds(),
	}
	adjustedPlan.AdjustmentMeta = metadata

	return &adjustedPlan, diff, metadata, nil
}

func summaryOrText(intent models.ReflectionIntent) string {
	if intent.Summary != "" {
		return intent.Summary
	}
	return string(intent.Type)
}

// matchingTasks returns every task whose words overlap the intent's
// keywords; an intent with no keywords matches nothing (global
// reflections are rare and should not silently reorder every task).
func matchingTasks(taskWords map[string]map[string]bool, intent models.ReflectionIntent) []string {
	if len(intent.Keywords) == 0 {
		return nil
	}
	var out []string
	for taskID, set := range taskWords {
		for _, kw := range intent.Keywords {
			kw = strings.ToLower(kw)
			if strings.Contains(kw, " ") {
				continue
			}
			if set[kw] {
				out = append(out, taskID)
				break
			}
		}
	}
	return out
}
