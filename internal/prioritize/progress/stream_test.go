package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/clockutil"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/scoring"
)

// driveClock repeatedly advances the fake clock until done fires, so
// the poll loop's ticker eventually fires without a real wall-clock
// sleep, mirroring scoring.driveClock / reflection.driveDebounceClock.
func driveClock(clock *clockutil.Fake, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
			clock.Advance(PollInterval)
			time.Sleep(time.Millisecond)
		}
	}
}

type fakeScoreReader struct {
	snapshot map[string]scoring.StatusSnapshot
	diag     scoring.Diagnostics
}

func (f *fakeScoreReader) GetStatusSnapshot(sessionID string) map[string]scoring.StatusSnapshot {
	return f.snapshot
}
func (f *fakeScoreReader) Diagnostics() scoring.Diagnostics { return f.diag }

func recvWithin(t *testing.T, ch <-chan Event, d time.Duration) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("channel closed unexpectedly")
		}
		return e
	case <-time.After(d):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestStreamEmitsSessionThenScores(t *testing.T) {
	clock := clockutil.NewFake(time.Unix(0, 0))
	sess := &models.AgentSession{ID: "s1", Status: models.SessionRunning, PrioritizedPlan: &models.PlanPayload{Raw: "{}"}}
	reader := func(sessionID string) (*models.AgentSession, error) { return sess, nil }
	scores := &fakeScoreReader{snapshot: map[string]scoring.StatusSnapshot{
		"t1": {Status: scoring.JobSucceeded},
		"t2": {Status: scoring.JobQueued},
	}}

	stream := NewStream("s1", reader, scores, clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := stream.Subscribe(ctx)

	done := make(chan struct{})
	defer close(done)
	go driveClock(clock, done)

	first := recvWithin(t, out, time.Second)
	if first.Type != EventSession {
		t.Fatalf("first event type = %q, want session", first.Type)
	}
	if first.Status != models.SessionRunning {
		t.Errorf("Status = %q, want running", first.Status)
	}
	if first.ProgressPct <= 0 || first.ProgressPct >= 100 {
		t.Errorf("ProgressPct = %v, want between 0 and 100 for a running session", first.ProgressPct)
	}

	second := recvWithin(t, out, time.Second)
	if second.Type != EventScores {
		t.Fatalf("second event type = %q, want scores", second.Type)
	}
	if len(second.Scores) != 2 {
		t.Errorf("Scores length = %d, want 2", len(second.Scores))
	}
	if second.Seq <= first.Seq {
		t.Errorf("Seq not monotonic: first=%d second=%d", first.Seq, second.Seq)
	}
}

func TestStreamEmitsHeartbeatWhenStatusUnchanged(t *testing.T) {
	clock := clockutil.NewFake(time.Unix(0, 0))
	sess := &models.AgentSession{ID: "s1", Status: models.SessionCompleted}
	reader := func(sessionID string) (*models.AgentSession, error) { return sess, nil }
	scores := &fakeScoreReader{snapshot: map[string]scoring.StatusSnapshot{}}

	stream := NewStream("s1", reader, scores, clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := stream.Subscribe(ctx)

	done := make(chan struct{})
	defer close(done)
	go driveClock(clock, done)

	first := recvWithin(t, out, time.Second)
	if first.Type != EventSession {
		t.Fatalf("first event type = %q, want session", first.Type)
	}
	if first.ProgressPct != 100 {
		t.Errorf("ProgressPct = %v, want 100 for a completed session", first.ProgressPct)
	}

	second := recvWithin(t, out, time.Second)
	if second.Type != EventScores {
		t.Fatalf("second event type = %q, want scores", second.Type)
	}

	third := recvWithin(t, out, time.Second)
	if third.Type != EventHeartbeat {
		t.Fatalf("third event type = %q, want heartbeat once status stops changing", third.Type)
	}
}

func TestStreamWarnsThenRecoversFromReadFailures(t *testing.T) {
	clock := clockutil.NewFake(time.Unix(0, 0))
	failures := 0
	sess := &models.AgentSession{ID: "s1", Status: models.SessionRunning}
	reader := func(sessionID string) (*models.AgentSession, error) {
		failures++
		if failures <= 2 {
			return nil, errors.New("store unavailable")
		}
		return sess, nil
	}
	scores := &fakeScoreReader{snapshot: map[string]scoring.StatusSnapshot{}}

	stream := NewStream("s1", reader, scores, clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := stream.Subscribe(ctx)

	done := make(chan struct{})
	defer close(done)
	go driveClock(clock, done)

	w1 := recvWithin(t, out, time.Second)
	if w1.Type != EventWarning {
		t.Fatalf("event 1 type = %q, want warning", w1.Type)
	}
	w2 := recvWithin(t, out, time.Second)
	if w2.Type != EventWarning {
		t.Fatalf("event 2 type = %q, want warning", w2.Type)
	}
	s1 := recvWithin(t, out, time.Second)
	if s1.Type != EventSession {
		t.Fatalf("event 3 type = %q, want session once the read recovers", s1.Type)
	}
}

func TestStreamClosesAfterMaxConsecutiveFailures(t *testing.T) {
	clock := clockutil.NewFake(time.Unix(0, 0))
	reader := func(sessionID string) (*models.AgentSession, error) {
		return nil, errors.New("store unavailable")
	}
	scores := &fakeScoreReader{snapshot: map[string]scoring.StatusSnapshot{}}

	stream := NewStream("s1", reader, scores, clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := stream.Subscribe(ctx)

	done := make(chan struct{})
	defer close(done)
	go driveClock(clock, done)

	var types []EventType
	for i := 0; i < MaxConsecutiveFailures+1; i++ {
		types = append(types, recvWithin(t, out, time.Second).Type)
	}
	if types[len(types)-2] != EventError {
		t.Errorf("second-to-last event = %q, want error", types[len(types)-2])
	}
	if types[len(types)-1] != EventClose {
		t.Errorf("last event = %q, want close", types[len(types)-1])
	}

	if _, ok := <-out; ok {
		t.Fatal("expected channel to be closed after close event")
	}
}

func TestStreamStopsOnContextCancellation(t *testing.T) {
	clock := clockutil.NewFake(time.Unix(0, 0))
	sess := &models.AgentSession{ID: "s1", Status: models.SessionRunning}
	reader := func(sessionID string) (*models.AgentSession, error) { return sess, nil }
	scores := &fakeScoreReader{snapshot: map[string]scoring.StatusSnapshot{}}

	stream := NewStream("s1", reader, scores, clock)
	ctx, cancel := context.WithCancel(context.Background())
	out := stream.Subscribe(ctx)

	cancel()

	var last Event
	for e := range out {
		last = e
	}
	if last.Type != EventClose {
		t.Errorf("final event type = %q, want close", last.Type)
	}
}
