package embedstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/taskwing-labs/prioritizer/internal/llm"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
)

type mockEmbedder struct {
	vectors [][]float64
	err     error
}

func (m *mockEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.vectors, nil
}

type memStore struct {
	tasks map[string]*models.TaskEmbedding
}

func newMemStore() *memStore { return &memStore{tasks: map[string]*models.TaskEmbedding{}} }

func (m *memStore) UpsertTaskEmbedding(t *models.TaskEmbedding) error {
	cp := *t
	m.tasks[t.TaskID] = &cp
	return nil
}

func (m *memStore) GetTaskEmbedding(taskID string) (*models.TaskEmbedding, error) {
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, errors.New("not found")
	}
	return t, nil
}

func (m *memStore) ListActiveTaskEmbeddings() ([]*models.TaskEmbedding, error) {
	var out []*models.TaskEmbedding
	for _, t := range m.tasks {
		if t.Status != models.TaskStatusArchived {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) ArchiveTaskEmbedding(taskID string) error {
	t, ok := m.tasks[taskID]
	if !ok {
		return errors.New("not found")
	}
	t.Status = models.TaskStatusArchived
	return nil
}

func (m *memStore) DeleteTaskEmbedding(taskID string) error {
	delete(m.tasks, taskID)
	return nil
}

func dims(n int, fill float64) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestEmbed(t *testing.T) {
	tests := []struct {
		name    string
		mock    *mockEmbedder
		wantErr bool
	}{
		{name: "successful embedding", mock: &mockEmbedder{vectors: [][]float64{dims(models.EmbeddingDims, 0.1)}}},
		{name: "upstream error", mock: &mockEmbedder{err: errors.New("provider error")}, wantErr: true},
		{name: "empty response", mock: &mockEmbedder{vectors: [][]float64{}}, wantErr: true},
		{name: "wrong dimensionality", mock: &mockEmbedder{vectors: [][]float64{{0.1, 0.2}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newMemStore(), llm.Config{}).WithEmbedderFactory(
				func(ctx context.Context, cfg llm.Config) (embedding.Embedder, error) { return tt.mock, nil },
			)
			got, err := svc.Embed(context.Background(), "test text")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Embed() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(got) != models.EmbeddingDims {
				t.Errorf("Embed() got %d dims, want %d", len(got), models.EmbeddingDims)
			}
		})
	}
}

func TestIngestTaskMarksFailedStatusOnEmbedError(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, llm.Config{}).WithEmbedderFactory(
		func(ctx context.Context, cfg llm.Config) (embedding.Embedder, error) {
			return &mockEmbedder{err: errors.New("down")}, nil
		},
	)
	_, err := svc.IngestTask(context.Background(), "t1", "write the quarterly report draft", false, "", time.Now())
	if err == nil {
		t.Fatal("expected error from failed embed")
	}
	got, err := store.GetTaskEmbedding("t1")
	if err != nil {
		t.Fatalf("GetTaskEmbedding() error = %v", err)
	}
	if got.Status != models.TaskStatusFailed {
		t.Errorf("status = %v, want failed", got.Status)
	}
}

func TestRankBySimilarityOrdersDescending(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, llm.Config{})

	near := dims(models.EmbeddingDims, 0)
	near[0] = 1
	far := dims(models.EmbeddingDims, 0)
	far[1] = 1

	toFloat32 := func(v []float64) []float32 {
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = float32(f)
		}
		return out
	}

	store.tasks["near"] = &models.TaskEmbedding{TaskID: "near", TaskText: "closely related task", Status: models.TaskStatusCompleted, Embedding: toFloat32(near)}
	store.tasks["far"] = &models.TaskEmbedding{TaskID: "far", TaskText: "unrelated task text here", Status: models.TaskStatusCompleted, Embedding: toFloat32(far)}

	ranked, err := svc.RankBySimilarity(toFloat32(near), 0)
	if err != nil {
		t.Fatalf("RankBySimilarity() error = %v", err)
	}
	if len(ranked) != 2 || ranked[0].Task.TaskID != "near" {
		t.Fatalf("RankBySimilarity() = %+v, want near first", ranked)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{name: "identical", a: []float32{1, 0, 0}, b: []float32{1, 0, 0}, want: 1.0},
		{name: "orthogonal", a: []float32{1, 0, 0}, b: []float32{0, 1, 0}, want: 0.0},
		{name: "opposite", a: []float32{1, 0, 0}, b: []float32{-1, 0, 0}, want: -1.0},
		{name: "mismatched lengths", a: []float32{1, 0}, b: []float32{1, 0, 0}, want: 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 0.0001 || diff < -0.0001 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}
