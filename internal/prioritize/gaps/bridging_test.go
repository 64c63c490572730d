package gaps

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/taskwing-labs/prioritizer/internal/llm"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/embedstore"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
)

type fakeEmbedder struct{ vectors [][]float64 }

func (f *fakeEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	return f.vectors, nil
}

type fakeEmbedStore struct {
	tasks map[string]*models.TaskEmbedding
}

func (s *fakeEmbedStore) UpsertTaskEmbedding(t *models.TaskEmbedding) error {
	s.tasks[t.TaskID] = t
	return nil
}
func (s *fakeEmbedStore) GetTaskEmbedding(taskID string) (*models.TaskEmbedding, error) {
	return s.tasks[taskID], nil
}
func (s *fakeEmbedStore) ListActiveTaskEmbeddings() ([]*models.TaskEmbedding, error) {
	var out []*models.TaskEmbedding
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out, nil
}
func (s *fakeEmbedStore) ArchiveTaskEmbedding(taskID string) error { return nil }
func (s *fakeEmbedStore) DeleteTaskEmbedding(taskID string) error {
	delete(s.tasks, taskID)
	return nil
}

func dimsF(n int, fill float64) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestSuggestBridgingSkipsLowConfidenceGaps(t *testing.T) {
	store := &fakeEmbedStore{tasks: map[string]*models.TaskEmbedding{}}
	embedSvc := embedstore.NewService(store, llm.Config{}).
		WithEmbedderFactory(func(ctx context.Context, cfg llm.Config) (embedding.Embedder, error) {
			return &fakeEmbedder{vectors: [][]float64{dimsF(models.EmbeddingDims, 0.1)}}, nil
		})
	gen := NewBridgingGenerator(llm.Config{}, embedSvc)

	tasks, err := gen.SuggestBridging(context.Background(), models.Gap{Confidence: 0.5}, "pred", "succ", "outcome")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tasks != nil {
		t.Errorf("expected no suggestions below confidence threshold, got %+v", tasks)
	}
}

func TestSuggestBridgingRequiresExamplesWhenTooFewNeighbors(t *testing.T) {
	store := &fakeEmbedStore{tasks: map[string]*models.TaskEmbedding{
		"existing1": {TaskID: "existing1", TaskText: "an unrelated prior task", Status: models.TaskStatusCompleted, Embedding: make([]float32, models.EmbeddingDims)},
	}}
	embedSvc := embedstore.NewService(store, llm.Config{}).
		WithEmbedderFactory(func(ctx context.Context, cfg llm.Config) (embedding.Embedder, error) {
			return &fakeEmbedder{vectors: [][]float64{dimsF(models.EmbeddingDims, 0.1)}}, nil
		})
	gen := NewBridgingGenerator(llm.Config{}, embedSvc)

	gap := models.Gap{ID: "gap1", Confidence: 0.9}
	tasks, err := gen.SuggestBridging(context.Background(), gap, "predecessor task", "successor task", "outcome")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Status != models.BridgingStatusRequiresExamples {
		t.Fatalf("expected a single requires_examples sentinel, got %+v", tasks)
	}
	if tasks[0].GapID != "gap1" {
		t.Errorf("GapID = %q, want gap1", tasks[0].GapID)
	}
}
