package hybrid

import (
	"strings"
	"testing"
	"time"
)

func TestValidateBriefReasoningRejectsGenericPhrases(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "specific reasoning", text: "unblocks checkout flow before Q3 launch", wantErr: false},
		{name: "generic filler", text: "this is important", wantErr: true},
		{name: "too long", text: strings.Repeat("word ", 21), wantErr: true},
		{name: "empty", text: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateBriefReasoning(tt.text)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateBriefReasoning(%q) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
		})
	}
}

func TestGeneratorResponseValidate(t *testing.T) {
	valid := &GeneratorResponse{
		IncludedTasks:  []string{"t1"},
		OrderedTaskIDs: []string{"t1"},
		PerTaskScores: []PerTaskScore{
			{TaskID: "t1", Impact: 7, Effort: 4, Confidence: 0.8, BriefReasoning: "unblocks the Q3 launch milestone directly"},
		},
		Confidence: 0.8,
	}
	if res := valid.Validate(); !res.Valid {
		t.Errorf("expected valid response, got errors: %v", res.Errors)
	}

	invalid := &GeneratorResponse{
		IncludedTasks:  []string{"t1"},
		OrderedTaskIDs: []string{"t1"},
		PerTaskScores: []PerTaskScore{
			{TaskID: "t1", Impact: 7, Effort: 4, Confidence: 0.8, BriefReasoning: "this is important"},
		},
		Confidence: 0.8,
	}
	if res := invalid.Validate(); res.Valid {
		t.Error("expected generic brief_reasoning to fail validation")
	}
}

func TestBuildPlanAssemblesWavesAndDependencies(t *testing.T) {
	resp := GeneratorResponse{
		OrderedTaskIDs: []string{"t1", "t2"},
		ExcludedTasks:  []string{"t3"},
		PerTaskScores: []PerTaskScore{
			{TaskID: "t1", Confidence: 0.9},
			{TaskID: "t2", Confidence: 0.7, Dependencies: []string{"t1"}},
		},
		CriticalPathReasoning: "t1 unblocks t2",
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	plan := buildPlan(GenerationContext{}, resp, now)

	if len(plan.ExecutionWaves) != 1 || len(plan.ExecutionWaves[0].TaskIDs) != 2 {
		t.Fatalf("expected single wave with 2 tasks, got %+v", plan.ExecutionWaves)
	}
	if len(plan.Dependencies) != 1 || plan.Dependencies[0].Source != "t1" || plan.Dependencies[0].Target != "t2" {
		t.Fatalf("expected t1->t2 dependency, got %+v", plan.Dependencies)
	}
	if len(plan.RemovedTasks) != 1 || plan.RemovedTasks[0].TaskID != "t3" {
		t.Fatalf("expected t3 removed, got %+v", plan.RemovedTasks)
	}
	if plan.ConfidenceScores["t1"] != 0.9 {
		t.Errorf("confidence_scores[t1] = %v, want 0.9", plan.ConfidenceScores["t1"])
	}
	if err := plan.Validate(); err != nil {
		t.Errorf("plan.Validate() error = %v", err)
	}
}

func TestEvaluatorResponseValidateRejectsUnknownStatus(t *testing.T) {
	r := &EvaluatorResponse{Status: "BOGUS"}
	if res := r.Validate(); res.Valid {
		t.Error("expected invalid status to fail validation")
	}
}
