package reflection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/llm"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
)

func TestClassifyHeuristicDetectsFocus(t *testing.T) {
	intent := ClassifyHeuristic("r1", "Let's focus on the onboarding flow this week")
	if intent.Type != models.IntentFocus {
		t.Errorf("Type = %q, want focus", intent.Type)
	}
	if intent.Strength <= 0.4 {
		t.Errorf("Strength = %v, want > 0.4 for a matched keyword", intent.Strength)
	}
}

func TestClassifyHeuristicDetectsAvoid(t *testing.T) {
	intent := ClassifyHeuristic("r1", "ignore marketing for now, we're not ready")
	if intent.Type != models.IntentAvoid {
		t.Errorf("Type = %q, want avoid", intent.Type)
	}
}

func TestClassifyHeuristicFallsBackToContext(t *testing.T) {
	intent := ClassifyHeuristic("r1", "the sky is blue today")
	if intent.Type != models.IntentContext {
		t.Errorf("Type = %q, want context fallback", intent.Type)
	}
}

func TestClassifyFallsBackToHeuristicOnUpstreamFailure(t *testing.T) {
	c := NewClassifier(llm.Config{}).WithChatModelFactory(func(ctx context.Context, cfg llm.Config) (*llm.CloseableChatModel, error) {
		return nil, errors.New("provider unavailable")
	})
	intent, err := c.Classify(context.Background(), "r1", "focus on the launch checklist")
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if intent.Type != models.IntentFocus {
		t.Errorf("Type = %q, want heuristic focus fallback", intent.Type)
	}
}

func TestClassifyFallsBackToHeuristicOnInternalTimeout(t *testing.T) {
	c := NewClassifier(llm.Config{}).
		WithTimeout(5 * time.Millisecond).
		WithChatModelFactory(func(ctx context.Context, cfg llm.Config) (*llm.CloseableChatModel, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	intent, err := c.Classify(context.Background(), "r1", "urgent: ship this asap")
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if intent.Type != models.IntentUrgency {
		t.Errorf("Type = %q, want heuristic urgency fallback", intent.Type)
	}
}

func TestClassifyPropagatesCallerCancellation(t *testing.T) {
	c := NewClassifier(llm.Config{}).WithChatModelFactory(func(ctx context.Context, cfg llm.Config) (*llm.CloseableChatModel, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Classify(ctx, "r1", "urgent: ship this asap")
	if err == nil {
		t.Fatal("expected caller cancellation to propagate as an error")
	}
}
