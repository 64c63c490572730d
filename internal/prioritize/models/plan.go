package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DependencyRelationship classifies an edge between two tasks.
type DependencyRelationship string

const (
	RelationPrerequisite DependencyRelationship = "prerequisite"
	RelationBlocks       DependencyRelationship = "blocks"
	RelationRelated      DependencyRelationship = "related"
)

// DetectionMethod records how a dependency edge was discovered.
type DetectionMethod string

const (
	DetectionLLM       DetectionMethod = "llm"
	DetectionGapBridge DetectionMethod = "gap_bridge"
	DetectionManual    DetectionMethod = "manual"
)

// Dependency is an edge in a plan's dependency graph.
type Dependency struct {
	Source         string                  `json:"source"`
	Target         string                  `json:"target"`
	Relationship   DependencyRelationship  `json:"relationship"`
	Confidence     float64                 `json:"confidence"`
	DetectionMethod DetectionMethod        `json:"detectionMethod"`
}

// ExecutionWave is a set of tasks that can run in the same pass.
type ExecutionWave struct {
	WaveNumber int      `json:"waveNumber"`
	TaskIDs    []string `json:"taskIds"`
	Parallel   bool     `json:"parallel"`
	EstHours   float64  `json:"estHours"`
}

// TaskAnnotation carries per-task narrative metadata attached to a plan.
type TaskAnnotation struct {
	TaskID  string `json:"taskId"`
	Note    string `json:"note,omitempty"`
}

// RemovedTask records a task the generator chose to exclude.
type RemovedTask struct {
	TaskID string `json:"taskId"`
	Reason string `json:"reason"`
}

// AdjustmentDiff is the result of applying reflection-driven adjustments
// to a baseline plan (§4.5).
type AdjustmentDiff struct {
	Moved    []MovedTask    `json:"moved"`
	Filtered []FilteredTask `json:"filtered"`
}

// MovedTask records a single task's rank change during adjustment.
type MovedTask struct {
	TaskID string `json:"taskId"`
	From   int    `json:"from"`
	To     int    `json:"to"`
	Reason string `json:"reason"`
}

// FilteredTask records a task removed during adjustment.
type FilteredTask struct {
	TaskID string `json:"taskId"`
	Reason string `json:"reason"`
}

// AdjustmentMetadata summarizes one adjustment pass.
type AdjustmentMetadata struct {
	Reflections  int   `json:"reflections"`
	TasksMoved   int   `json:"tasksMoved"`
	TasksFiltered int  `json:"tasksFiltered"`
	DurationMs   int64 `json:"durationMs"`
}

// Plan is the wire-stable persisted plan JSON (§6).
type Plan struct {
	OrderedTaskIDs   []string          `json:"ordered_task_ids"`
	ExecutionWaves   []ExecutionWave   `json:"execution_waves"`
	Dependencies     []Dependency      `json:"dependencies"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
	TaskAnnotations  []TaskAnnotation  `json:"task_annotations,omitempty"`
	RemovedTasks     []RemovedTask     `json:"removed_tasks,omitempty"`
	SynthesisSummary string            `json:"synthesis_summary,omitempty"`
	Diff             *AdjustmentDiff      `json:"diff,omitempty"`
	AdjustmentMeta   *AdjustmentMetadata  `json:"adjustment_metadata,omitempty"`
	CreatedAt        string            `json:"created_at"`
}

// Validate checks the plan invariants from spec.md §3/§8:
//   - every wave id appears in OrderedTaskIDs
//   - wave order respects dependency topology (no edge from a task in a
//     later-or-equal wave pointing backward into an earlier one in a way
//     that would require reordering)
//   - every confidence score is in [0,1]
func (p *Plan) Validate() error {
	ordered := make(map[string]bool, len(p.OrderedTaskIDs))
	for _, id := range p.OrderedTaskIDs {
		ordered[id] = true
	}
	waveOf := make(map[string]int)
	for _, w := range p.ExecutionWaves {
		for _, id := range w.TaskIDs {
			if !ordered[id] {
				return fmt.Errorf("plan: wave %d references task %q not present in ordered_task_ids", w.WaveNumber, id)
			}
			waveOf[id] = w.WaveNumber
		}
	}
	for _, d := range p.Dependencies {
		sw, sok := waveOf[d.Source]
		tw, tok := waveOf[d.Target]
		if sok && tok && sw > tw {
			return fmt.Errorf("plan: dependency %s->%s violates wave topology (source wave %d after target wave %d)", d.Source, d.Target, sw, tw)
		}
	}
	for id, c := range p.ConfidenceScores {
		if c < 0 || c > 1 {
			return fmt.Errorf("plan: confidence_scores[%s]=%f out of [0,1]", id, c)
		}
	}
	return nil
}

// PlanPayload is the validated sum type replacing ad hoc duck-typed plan
// fields (§9 design note): a plan arrives either already parsed, or as a
// raw string that must be normalized once, at the store boundary.
type PlanPayload struct {
	Parsed *Plan
	Raw    string
}

// Normalize extracts a Plan from a PlanPayload, parsing Raw if Parsed is
// unset. It extracts the first balanced `{...}` substring before
// unmarshalling, because the LLM-persistence layer may hand back
// stringified JSON (or JSON wrapped in prose).
func (p PlanPayload) Normalize() (*Plan, error) {
	if p.Parsed != nil {
		return p.Parsed, nil
	}
	raw := strings.TrimSpace(p.Raw)
	if raw == "" {
		return nil, fmt.Errorf("plan payload: empty")
	}
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("plan payload: no JSON object found in raw payload")
	}
	var plan Plan
	if err := json.Unmarshal([]byte(raw[start:end+1]), &plan); err != nil {
		return nil, fmt.Errorf("plan payload: parse: %w", err)
	}
	return &plan, nil
}

// MarshalJSON lets PlanPayload serialize as its underlying plan object
// (never as the Raw/Parsed wrapper) once normalized.
func (p PlanPayload) MarshalJSON() ([]byte, error) {
	plan, err := p.Normalize()
	if err != nil {
		return nil, err
	}
	return json.Marshal(plan)
}
