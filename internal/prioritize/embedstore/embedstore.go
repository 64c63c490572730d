// Package embedstore implements the Embedding Store adapter (§3/§6):
// generating and caching task embeddings, and ranking a corpus by
// cosine similarity against a query vector. Grounded on
// internal/knowledge/embed.go's embedder-factory + cosine-similarity
// pattern, generalized from OpenAI's client to the eino
// embedding.Embedder abstraction internal/llm/client.go already wires
// every provider through.
package embedstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/taskwing-labs/prioritizer/internal/llm"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
)

// Store persists and ranks task embeddings.
type Store interface {
	UpsertTaskEmbedding(t *models.TaskEmbedding) error
	GetTaskEmbedding(taskID string) (*models.TaskEmbedding, error)
	ListActiveTaskEmbeddings() ([]*models.TaskEmbedding, error)
	ArchiveTaskEmbedding(taskID string) error
	DeleteTaskEmbedding(taskID string) error
}

// EmbedderFactory builds an embedder for the given LLM config. It is a
// function value (not a method) so tests can substitute a fake without
// touching network providers, matching internal/knowledge.Service's
// chatModelFactory seam.
type EmbedderFactory func(ctx context.Context, cfg llm.Config) (embedding.Embedder, error)

// DefaultEmbedderFactory adapts llm.NewCloseableEmbedder to the
// embedding.Embedder-only seam embedstore needs.
func DefaultEmbedderFactory(ctx context.Context, cfg llm.Config) (embedding.Embedder, error) {
	e, err := llm.NewCloseableEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Service is the Embedding Store adapter.
type Service struct {
	store           Store
	llmCfg          llm.Config
	embedderFactory EmbedderFactory
}

// NewService constructs an embedding store service.
func NewService(store Store, cfg llm.Config) *Service {
	return &Service{store: store, llmCfg: cfg, embedderFactory: DefaultEmbedderFactory}
}

// WithEmbedderFactory overrides the embedder factory, used by tests to
// inject a fake embedder.
func (s *Service) WithEmbedderFactory(f EmbedderFactory) *Service {
	s.embedderFactory = f
	return s
}

// Embed generates a []float32 embedding for text via the configured
// provider, validating the result is EmbeddingDims long.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	embedder, err := s.embedderFactory(ctx, s.llmCfg)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindUpstreamUnavailable, "create embedder", err)
	}
	vectors, err := embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, perrors.Wrap(perrors.KindUpstreamUnavailable, "embed text", err)
	}
	if len(vectors) == 0 {
		return nil, perrors.New(perrors.KindUpstreamUnavailable, "embedder returned no vectors")
	}
	v := vectors[0]
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	if len(out) != models.EmbeddingDims {
		return nil, perrors.New(perrors.KindValidation, fmt.Sprintf("embedding: expected %d dims, got %d", models.EmbeddingDims, len(out)))
	}
	return out, nil
}

// IngestTask embeds taskText and persists it as a TaskEmbedding, marking
// the status completed on success or failed on an embedding error (so
// the caller's retry-queue policy can re-attempt later).
func (s *Service) IngestTask(ctx context.Context, taskID, taskText string, isManual bool, createdBy string, now time.Time) (*models.TaskEmbedding, error) {
	t := &models.TaskEmbedding{
		TaskID:    taskID,
		TaskText:  taskText,
		IsManual:  isManual,
		CreatedBy: createdBy,
		Status:    models.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.Validate(); err != nil {
		return nil, perrors.Wrap(perrors.KindValidation, "invalid task embedding", err)
	}

	vec, err := s.Embed(ctx, taskText)
	if err != nil {
		t.Status = models.TaskStatusFailed
		_ = s.store.UpsertTaskEmbedding(t)
		return nil, err
	}
	t.Embedding = vec
	t.Status = models.TaskStatusCompleted
	t.UpdatedAt = now
	if err := s.store.UpsertTaskEmbedding(t); err != nil {
		return nil, perrors.Wrap(perrors.KindInternal, "persist task embedding", err)
	}
	return t, nil
}

// DeleteTaskEmbedding hard-deletes a task embedding, used by the gap
// bridging rollback path to undo a partial accept.
func (s *Service) DeleteTaskEmbedding(taskID string) error {
	return s.store.DeleteTaskEmbedding(taskID)
}

// RankedTask pairs a task embedding with its similarity to a query.
type RankedTask struct {
	Task       *models.TaskEmbedding
	Similarity float32
}

// RankBySimilarity returns the active corpus ordered by descending
// cosine similarity to query, the retrieval primitive the hybrid loop
// and gap/bridging generator both build on.
func (s *Service) RankBySimilarity(query []float32, limit int) ([]RankedTask, error) {
	tasks, err := s.store.ListActiveTaskEmbeddings()
	if err != nil {
		return nil, perrors.Wrap(perrors.KindInternal, "list task embeddings", err)
	}
	ranked := make([]RankedTask, 0, len(tasks))
	for _, t := range tasks {
		if len(t.Embedding) == 0 {
			continue
		}
		ranked = append(ranked, RankedTask{Task: t, Similarity: CosineSimilarity(query, t.Embedding)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Similarity > ranked[j].Similarity })
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// CosineSimilarity computes the cosine similarity between two vectors,
// returning 0 for mismatched or empty vectors.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
