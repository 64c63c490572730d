package reflection

import (
	"context"
	"testing"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/llm"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
)

func basePlan() *models.Plan {
	return &models.Plan{
		OrderedTaskIDs: []string{"t1", "t2", "t3"},
		TaskAnnotations: []models.TaskAnnotation{
			{TaskID: "t1", Note: "marketing copy update"},
			{TaskID: "t2", Note: "checkout api launch"},
			{TaskID: "t3", Note: "legal review pending"},
		},
	}
}

func reflectionAt(id, userID, text string, createdAt time.Time) *models.Reflection {
	return &models.Reflection{
		ID: id, UserID: userID, Text: text,
		IsActiveForPrioritization: true, CreatedAt: createdAt,
	}
}

func TestAdjustWithNoActiveReflectionsReturnsBaselineOrder(t *testing.T) {
	adj := NewAdjuster(NewClassifier(llm.Config{}))
	now := time.Unix(1000, 0)
	plan, diff, meta, err := adj.AdjustAt(context.Background(), basePlan(), nil, now)
	if err != nil {
		t.Fatalf("AdjustAt error: %v", err)
	}
	if len(diff.Moved) != 0 || len(diff.Filtered) != 0 {
		t.Errorf("expected no moves/filters with no reflections, got %+v", diff)
	}
	if meta.Reflections != 0 {
		t.Errorf("Reflections = %d, want 0", meta.Reflections)
	}
	for i, id := range []string{"t1", "t2", "t3"} {
		if plan.OrderedTaskIDs[i] != id {
			t.Errorf("OrderedTaskIDs[%d] = %q, want %q", i, plan.OrderedTaskIDs[i], id)
		}
	}
}

func TestAdjustFocusReflectionBoostsMatchingTask(t *testing.T) {
	adj := NewAdjuster(NewClassifier(llm.Config{}))
	now := time.Unix(1000, 0)
	r := reflectionAt("r1", "u1", "focus on the checkout launch work", now)

	plan, diff, meta, err := adj.AdjustAt(context.Background(), basePlan(), []*models.Reflection{r}, now)
	if err != nil {
		t.Fatalf("AdjustAt error: %v", err)
	}
	if plan.OrderedTaskIDs[0] != "t2" {
		t.Errorf("expected t2 (checkout launch) to move to front, got order %v", plan.OrderedTaskIDs)
	}
	if meta.TasksMoved == 0 {
		t.Error("expected at least one moved task")
	}
	if len(diff.Moved) == 0 {
		t.Error("expected diff.Moved to be populated")
	}
}

func TestAdjustConstraintReflectionFiltersTask(t *testing.T) {
	adj := NewAdjuster(NewClassifier(llm.Config{}))
	now := time.Unix(1000, 0)
	r := reflectionAt("r1", "u1", "legal review is pending, waiting on approval", now)

	plan, diff, meta, err := adj.AdjustAt(context.Background(), basePlan(), []*models.Reflection{r}, now)
	if err != nil {
		t.Fatalf("AdjustAt error: %v", err)
	}
	if meta.TasksFiltered == 0 {
		t.Error("expected at least one filtered task")
	}
	for _, id := range plan.OrderedTaskIDs {
		if id == "t3" {
			t.Error("expected t3 (legal review) to be filtered out")
		}
	}
	found := false
	for _, f := range diff.Filtered {
		if f.TaskID == "t3" {
			found = true
		}
	}
	if !found {
		t.Error("expected diff.Filtered to record t3")
	}
}

func TestAdjustInactiveReflectionIsIgnored(t *testing.T) {
	adj := NewAdjuster(NewClassifier(llm.Config{}))
	now := time.Unix(1000, 0)
	r := reflectionAt("r1", "u1", "focus on the checkout launch work", now)
	r.IsActiveForPrioritization = false

	_, diff, meta, err := adj.AdjustAt(context.Background(), basePlan(), []*models.Reflection{r}, now)
	if err != nil {
		t.Fatalf("AdjustAt error: %v", err)
	}
	if meta.Reflections != 0 || len(diff.Moved) != 0 {
		t.Errorf("expected inactive reflection to contribute nothing, got meta=%+v diff=%+v", meta, diff)
	}
}

func TestAdjustRoundTripToggleReproducesBaseline(t *testing.T) {
	adj := NewAdjuster(NewClassifier(llm.Config{}))
	now := time.Unix(1000, 0)
	r := reflectionAt("r1", "u1", "focus on the checkout launch work", now)

	withReflection, _, _, err := adj.AdjustAt(context.Background(), basePlan(), []*models.Reflection{r}, now)
	if err != nil {
		t.Fatalf("AdjustAt(active) error: %v", err)
	}
	if withReflection.OrderedTaskIDs[0] != "t2" {
		t.Fatalf("sanity check failed: expected reordering with reflection active")
	}

	r.IsActiveForPrioritization = false
	reverted, _, _, err := adj.AdjustAt(context.Background(), basePlan(), []*models.Reflection{r}, now)
	if err != nil {
		t.Fatalf("AdjustAt(inactive) error: %v", err)
	}
	for i, id := range []string{"t1", "t2", "t3"} {
		if reverted.OrderedTaskIDs[i] != id {
			t.Errorf("reverted OrderedTaskIDs[%d] = %q, want %q (baseline order)", i, reverted.OrderedTaskIDs[i], id)
		}
	}
}
