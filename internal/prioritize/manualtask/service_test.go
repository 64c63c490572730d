package manualtask

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/llm"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
)

type memManualTaskStore struct {
	tasks map[string]*models.ManualTask
}

func newMemManualTaskStore() *memManualTaskStore {
	return &memManualTaskStore{tasks: map[string]*models.ManualTask{}}
}

func (s *memManualTaskStore) UpsertManualTask(m *models.ManualTask) error {
	cp := *m
	s.tasks[m.TaskID] = &cp
	return nil
}
func (s *memManualTaskStore) GetManualTask(taskID string) (*models.ManualTask, error) {
	return s.tasks[taskID], nil
}
func (s *memManualTaskStore) SoftDeleteManualTask(taskID string, now time.Time) error {
	if t, ok := s.tasks[taskID]; ok {
		t.DeletedAt = &now
	}
	return nil
}
func (s *memManualTaskStore) ListManualTasksByOutcome(outcomeID string) ([]*models.ManualTask, error) {
	var out []*models.ManualTask
	for _, t := range s.tasks {
		if t.OutcomeID == outcomeID && t.DeletedAt == nil {
			out = append(out, t)
		}
	}
	return out, nil
}
func (s *memManualTaskStore) InvalidateManualTasksForOutcome(outcomeID string, now time.Time) (int, error) {
	count := 0
	for _, t := range s.tasks {
		if t.OutcomeID == outcomeID && t.Status == models.ManualTaskPrioritized && t.DeletedAt == nil {
			t.DeletedAt = &now
			count++
		}
	}
	return count, nil
}

func TestAnalyzeTaskMarksConflictOnDuplicate(t *testing.T) {
	embedSvc := newEmbedSvc(&memEmbedStore{tasks: map[string]*models.TaskEmbedding{
		"existing1": {TaskID: "existing1", TaskText: "write the report", Embedding: dimsF32(models.EmbeddingDims, 0.5)},
	}}, 0.5)
	placer := NewPlacer(llm.Config{}, embedSvc)
	store := newMemManualTaskStore()
	svc := NewService(store, placer)

	m, err := svc.AnalyzeTask(context.Background(), "t1", "o1", "write the report draft", "ship v2", nil)
	if err != nil {
		t.Fatalf("AnalyzeTask error: %v", err)
	}
	if m.Status != models.ManualTaskConflict {
		t.Errorf("Status = %q, want conflict", m.Status)
	}
	if m.DuplicateTaskID != "existing1" {
		t.Errorf("DuplicateTaskID = %q, want existing1", m.DuplicateTaskID)
	}
}

func TestAnalyzeTaskLeftAnalyzingOnJudgmentFailure(t *testing.T) {
	embedSvc := newEmbedSvc(&memEmbedStore{tasks: map[string]*models.TaskEmbedding{}}, 0.1)
	placer := NewPlacer(llm.Config{}, embedSvc).WithChatModelFactory(
		func(ctx context.Context, cfg llm.Config) (*llm.CloseableChatModel, error) {
			return nil, errors.New("provider unavailable")
		},
	)
	store := newMemManualTaskStore()
	svc := NewService(store, placer)

	m, err := svc.AnalyzeTask(context.Background(), "t1", "o1", "a brand new task", "ship v2", []string{"task a"})
	if err != nil {
		t.Fatalf("AnalyzeTask error: %v", err)
	}
	if m.Status != models.ManualTaskAnalyzing {
		t.Errorf("Status = %q, want analyzing (left for retry)", m.Status)
	}
}

func TestOverrideDiscardRejectsNonDiscardedTask(t *testing.T) {
	embedSvc := newEmbedSvc(&memEmbedStore{tasks: map[string]*models.TaskEmbedding{}}, 0.1)
	placer := NewPlacer(llm.Config{}, embedSvc)
	store := newMemManualTaskStore()
	store.tasks["t1"] = &models.ManualTask{TaskID: "t1", OutcomeID: "o1", Status: models.ManualTaskPrioritized}
	svc := NewService(store, placer)

	_, err := svc.OverrideDiscard(context.Background(), "t1", "o1", "text", "outcome", "reconsidering", nil)
	if err == nil {
		t.Fatal("expected error overriding a non-discarded task")
	}
}

func TestInvalidateForOutcomeDiscardsPrioritizedTasks(t *testing.T) {
	store := newMemManualTaskStore()
	store.tasks["t1"] = &models.ManualTask{TaskID: "t1", OutcomeID: "o1", Status: models.ManualTaskPrioritized}
	store.tasks["t2"] = &models.ManualTask{TaskID: "t2", OutcomeID: "o1", Status: models.ManualTaskNotRelevant}
	store.tasks["t3"] = &models.ManualTask{TaskID: "t3", OutcomeID: "o2", Status: models.ManualTaskPrioritized}

	svc := NewService(store, nil)
	count, err := svc.InvalidateForOutcome("o1", time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("InvalidateForOutcome error: %v", err)
	}
	if count != 1 {
		t.Errorf("invalidated count = %d, want 1", count)
	}
	if store.tasks["t1"].DeletedAt == nil {
		t.Error("expected t1 to be soft-deleted")
	}
	if store.tasks["t2"].DeletedAt != nil {
		t.Error("expected t2 (not_relevant) to be untouched")
	}
	if store.tasks["t3"].DeletedAt != nil {
		t.Error("expected t3 (other outcome) to be untouched")
	}
}
