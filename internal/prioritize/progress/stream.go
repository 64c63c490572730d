// Package progress implements the Progress Stream (§4.7): a
// server-initiated event feed over a running session, modeled as a Go
// channel rather than a literal SSE handler since the transport layer
// is out of scope.
//
// Grounded on internal/prioritize/scoring.RetryQueue's injected-clock
// background-worker shape; the teacher has no streaming component of
// its own to imitate here.
package progress

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/clockutil"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/scoring"
)

// PollInterval is the fixed poll cadence, per §4.7/§5 ("progress
// stream polls capped at 1.5s").
const PollInterval = 1500 * time.Millisecond

// MaxConsecutiveFailures is the read-failure budget before the stream
// emits error+close rather than continuing to warn.
const MaxConsecutiveFailures = 5

// EventType distinguishes the kinds of event the stream emits.
type EventType string

const (
	EventSession   EventType = "session"
	EventScores    EventType = "scores"
	EventWarning   EventType = "warning"
	EventError     EventType = "error"
	EventClose     EventType = "close"
	EventHeartbeat EventType = "heartbeat"
)

// Event is one message on the stream. Seq is monotonic per connection
// (§4.7 "Ordering: monotonic per connection"). ProgressPct and Status
// are populated on EventSession and are the authoritative fields a
// client should retain across reconnects ("clients consume the last
// progress event for the authoritative progress_pct and status").
type Event struct {
	Type        EventType
	Seq         int
	Session     *models.AgentSession
	Scores      map[string]scoring.StatusSnapshot
	Diagnostics scoring.Diagnostics
	ProgressPct float64
	Status      models.SessionStatus
	Message     string
}

// SessionReader is the subset of the Session Controller the stream
// needs, narrowed to a single read so the stream never depends on the
// full session.Repository.
type SessionReader func(sessionID string) (*models.AgentSession, error)

// ScoreReader is the subset of scoring.Service the stream needs.
type ScoreReader interface {
	GetStatusSnapshot(sessionID string) map[string]scoring.StatusSnapshot
	Diagnostics() scoring.Diagnostics
}

// Stream pushes progress events for one session id to subscribers.
type Stream struct {
	sessionID string
	readSess  SessionReader
	scores    ScoreReader
	clock     clockutil.Clock
}

// NewStream constructs a Stream for one session id.
func NewStream(sessionID string, readSess SessionReader, scores ScoreReader, clock clockutil.Clock) *Stream {
	if clock == nil {
		clock = clockutil.System{}
	}
	return &Stream{sessionID: sessionID, readSess: readSess, scores: scores, clock: clock}
}

// Subscribe opens the poll loop and returns the event channel. The
// loop stops and the channel is closed when ctx is cancelled, or after
// MaxConsecutiveFailures consecutive read failures. A session in a
// terminal status does not stop the loop; while nothing changes it
// keeps emitting heartbeats.
func (p *Stream) Subscribe(ctx context.Context) <-chan Event {
	out := make(chan Event, 8)
	go p.run(ctx, out)
	return out
}

func (p *Stream) run(ctx context.Context, out chan<- Event) {
	defer close(out)

	ticker := p.clock.NewTicker(PollInterval)
	defer ticker.Stop()

	seq := 0
	emit := func(e Event) {
		seq++
		e.Seq = seq
		out <- e
	}

	consecutiveFailures := 0
	lastStatus := models.SessionStatus("")
	lastFingerprint := ""
	idleStreak := 0

	for {
		select {
		case <-ctx.Done():
			emit(Event{Type: EventClose, Message: "downstream cancelled"})
			return
		case <-ticker.C():
			sess, err := p.readSess(p.sessionID)
			if err != nil {
				consecutiveFailures++
				if consecutiveFailures >= MaxConsecutiveFailures {
					emit(Event{Type: EventError, Message: err.Error()})
					emit(Event{Type: EventClose, Message: "too many consecutive read failures"})
					return
				}
				emit(Event{Type: EventWarning, Message: err.Error()})
				continue
			}
			consecutiveFailures = 0

			snapshot := map[string]scoring.StatusSnapshot{}
			var diag scoring.Diagnostics
			if p.scores != nil {
				snapshot = p.scores.GetStatusSnapshot(p.sessionID)
				diag = p.scores.Diagnostics()
			}

			fingerprint := scoreFingerprint(diag, snapshot)
			if sess.Status == lastStatus && fingerprint == lastFingerprint {
				idleStreak++
			} else {
				idleStreak = 0
			}
			lastStatus = sess.Status
			lastFingerprint = fingerprint

			if idleStreak > 0 {
				emit(Event{Type: EventHeartbeat, Status: sess.Status})
				continue
			}

			pct := ProgressPercent(sess, diag, snapshot)
			emit(Event{Type: EventSession, Session: sess, ProgressPct: pct, Status: sess.Status})
			emit(Event{Type: EventScores, Scores: snapshot, Diagnostics: diag})
		}
	}
}

// scoreFingerprint summarizes a poll's scoring state into a string that
// changes whenever any per-task status/attempt count or the queue's
// load changes, so a stable session status (e.g. still "running")
// doesn't mask live retry-queue progress as an idle tick.
func scoreFingerprint(diag scoring.Diagnostics, snapshot map[string]scoring.StatusSnapshot) string {
	taskIDs := make([]string, 0, len(snapshot))
	for taskID := range snapshot {
		taskIDs = append(taskIDs, taskID)
	}
	sort.Strings(taskIDs)

	var b strings.Builder
	fmt.Fprintf(&b, "q=%d,f=%d", diag.QueueDepth, diag.InFlight)
	for _, taskID := range taskIDs {
		s := snapshot[taskID]
		fmt.Fprintf(&b, ";%s=%s:%d", taskID, s.Status, s.Attempts)
	}
	return b.String()
}

// ProgressPercent derives an approximate completion percentage from
// session status and retry-queue load, since AgentSession carries no
// stored progress field of its own. Terminal sessions are always 100;
// a running session is scaled by how much of its strategic scoring
// work remains outstanding.
func ProgressPercent(sess *models.AgentSession, diag scoring.Diagnostics, snapshot map[string]scoring.StatusSnapshot) float64 {
	switch sess.Status {
	case models.SessionCompleted, models.SessionFailed:
		return 100
	}
	if sess.PrioritizedPlan == nil {
		return 10
	}
	total := len(snapshot)
	if total == 0 {
		return 50
	}
	settled := 0
	for _, s := range snapshot {
		if s.Status == scoring.JobSucceeded || s.Status == scoring.JobFailed {
			settled++
		}
	}
	frac := float64(settled) / float64(total)
	// Reserve the 50-90 band for scoring completion; plan generation
	// already accounts for the first half.
	pct := 50 + frac*40
	if diag.QueueDepth == 0 && diag.InFlight == 0 && settled == total {
		pct = 90
	}
	return pct
}
