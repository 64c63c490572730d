package gaps

import (
	"testing"
	"time"
)

func vec(dims int, fill float32) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestDetectGapsFindsActionTypeAndSkillJump(t *testing.T) {
	text := map[string]string{
		"t1": "research the competitive landscape for onboarding",
		"t2": "ship the v2 release to production",
	}
	effort := map[string]float64{"t1": 4, "t2": 8}
	embeds := map[string][]float32{
		"t1": vec(4, 1),
		"t2": vec(4, -1), // opposite of t1 / maximally distant
	}

	d := NewDetector(
		func(id string) (string, float64, bool) { text, ok := text[id]; return text, effort[id], ok },
		func(id string) ([]float32, bool) { v, ok := embeds[id]; return v, ok },
	)

	gaps, meta, err := d.DetectGaps([]string{"t1", "t2"}, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("DetectGaps error: %v", err)
	}
	if meta.TotalPairsAnalyzed != 1 {
		t.Errorf("TotalPairsAnalyzed = %d, want 1", meta.TotalPairsAnalyzed)
	}
	if len(gaps) != 1 {
		t.Fatalf("expected 1 gap, got %d: %+v", len(gaps), gaps)
	}
	g := gaps[0]
	if g.PredecessorTaskID != "t1" || g.SuccessorTaskID != "t2" {
		t.Errorf("unexpected gap pair: %+v", g)
	}
	if !g.Indicators.ActionTypeJump {
		t.Error("expected action_type_jump indicator")
	}
	if g.Confidence <= 0 {
		t.Errorf("expected positive confidence, got %v", g.Confidence)
	}
}

func TestDetectGapsNoGapForSimilarAdjacentTasks(t *testing.T) {
	text := map[string]string{
		"t1": "build the checkout API endpoint",
		"t2": "build the checkout UI form",
	}
	effort := map[string]float64{"t1": 8, "t2": 8}
	embeds := map[string][]float32{
		"t1": vec(4, 1),
		"t2": vec(4, 1), // identical
	}

	d := NewDetector(
		func(id string) (string, float64, bool) { text, ok := text[id]; return text, effort[id], ok },
		func(id string) ([]float32, bool) { v, ok := embeds[id]; return v, ok },
	)

	gaps, _, err := d.DetectGaps([]string{"t1", "t2"}, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("DetectGaps error: %v", err)
	}
	if len(gaps) != 0 {
		t.Fatalf("expected no gaps for near-identical tasks, got %+v", gaps)
	}
}

func TestDetectGapsMissingTaskReturnsNotFound(t *testing.T) {
	d := NewDetector(
		func(id string) (string, float64, bool) { return "", 0, false },
		func(id string) ([]float32, bool) { return nil, false },
	)

	_, _, err := d.DetectGaps([]string{"missing1", "missing2"}, time.Unix(0, 0))
	if err == nil {
		t.Fatal("expected error for missing task")
	}
}
