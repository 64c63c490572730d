package scoring

import (
	"sync"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/clockutil"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/store"
)

// JobStatus is a retry job's lifecycle state.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRetrying  JobStatus = "retrying"
	JobFailed    JobStatus = "failed"
	JobSucceeded JobStatus = "succeeded"
)

// MaxAttempts bounds how many times a job is retried before it is
// marked failed and audited as retry_exhausted.
const MaxAttempts = 3

// backoffDelays are the fixed exponential delays between attempts;
// index 0 is the delay before attempt 2, etc.
var backoffDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// EstimateFunc performs the actual strategic-score estimation for one
// task; returning an error triggers a retry.
type EstimateFunc func(taskID string) error

// job is one in-flight or queued retry-queue entry.
type job struct {
	taskID        string
	sessionID     string
	attempts      int
	lastError     string
	nextAttemptAt time.Time
	status        JobStatus
}

// StatusSnapshot is the read-only view returned by GetStatusSnapshot.
type StatusSnapshot struct {
	Status        JobStatus
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
}

// Diagnostics summarizes the queue's current load.
type Diagnostics struct {
	QueueDepth int
	InFlight   int
}

// Log is the subset of store.SQLiteStore the queue needs for audit
// entries, narrowed to avoid coupling the queue to the concrete store.
type Log interface {
	InsertProcessingLog(e store.ProcessingLogEntry) error
}

// RetryQueue runs EstimateFunc for each enqueued task, retrying with
// exponential backoff on failure, and discarding results for any
// session superseded by a newer one (§4.3's concurrency rule).
//
// Grounded on internal/planner/generator.go's retry/backoff shape,
// generalized from a single in-loop retry into a standing queue with
// a background worker and persisted audit trail.
type RetryQueue struct {
	mu             sync.Mutex
	clock          clockutil.Clock
	log            Log
	jobs           map[string]*job // keyed by sessionID+":"+taskID
	currentSession string
	inFlight       int
	idleCond       *sync.Cond
}

// NewRetryQueue constructs a RetryQueue. clock drives the backoff delays
// in backoffDelays; the delays are the same under every clock, and under
// a clockutil.Fake each one elapses only when the clock is advanced past it.
func NewRetryQueue(clock clockutil.Clock, log Log) *RetryQueue {
	q := &RetryQueue{
		clock: clock,
		log:   log,
		jobs:  make(map[string]*job),
	}
	q.idleCond = sync.NewCond(&q.mu)
	return q
}

func jobKey(sessionID, taskID string) string {
	return sessionID + ":" + taskID
}

// SetActiveSession marks which session's results should be kept; jobs
// for any other session are discarded on completion rather than
// written, implementing the "late results from a superseded session
// are discarded" rule.
func (q *RetryQueue) SetActiveSession(sessionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.currentSession = sessionID
}

// Enqueue schedules estimateFn to run for taskID under sessionID,
// calling onSuccess or onFailure (MaxAttempts exhausted) once the job
// settles. Enqueue runs the job's attempts itself via runJob and returns
// only after the job has settled.
func (q *RetryQueue) Enqueue(sessionID, taskID string, estimateFn EstimateFunc, onSuccess func(), onFailure func(err error)) {
	q.mu.Lock()
	q.jobs[jobKey(sessionID, taskID)] = &job{
		taskID:        taskID,
		sessionID:     sessionID,
		status:        JobQueued,
		nextAttemptAt: q.clock.Now(),
	}
	q.mu.Unlock()

	q.runJob(sessionID, taskID, estimateFn, onSuccess, onFailure)
}

// runJob drives one job through attempts until success or exhaustion.
// Synchronous by design: callers that want concurrency across tasks
// run Enqueue in their own goroutines per task; the queue itself only
// serializes state transitions under mu.
func (q *RetryQueue) runJob(sessionID, taskID string, estimateFn EstimateFunc, onSuccess func(), onFailure func(err error)) {
	key := jobKey(sessionID, taskID)

	for {
		q.mu.Lock()
		j, ok := q.jobs[key]
		if !ok {
			q.mu.Unlock()
			return
		}
		q.inFlight++
		q.mu.Unlock()

		err := estimateFn(taskID)

		q.mu.Lock()
		q.inFlight--
		superseded := q.currentSession != "" && q.currentSession != sessionID
		j.attempts++

		if err == nil {
			j.status = JobSucceeded
			q.logAttempt(j, "succeeded", "")
			q.notifyIfIdle()
			q.mu.Unlock()
			if !superseded && onSuccess != nil {
				onSuccess()
			}
			return
		}

		j.lastError = err.Error()
		if j.attempts >= MaxAttempts {
			j.status = JobFailed
			q.logAttempt(j, "retry_exhausted", err.Error())
			q.notifyIfIdle()
			q.mu.Unlock()
			if !superseded && onFailure != nil {
				onFailure(err)
			}
			return
		}

		j.status = JobRetrying
		delay := backoffDelays[min(j.attempts-1, len(backoffDelays)-1)]
		j.nextAttemptAt = q.clock.Now().Add(delay)
		q.logAttempt(j, "retry", err.Error())
		q.mu.Unlock()

		if delay > 0 {
			<-q.clock.After(delay)
		}
	}
}

// logAttempt records one processing_log audit entry; called with mu held.
func (q *RetryQueue) logAttempt(j *job, status, lastErr string) {
	if q.log == nil {
		return
	}
	_ = q.log.InsertProcessingLog(store.ProcessingLogEntry{
		Operation: "strategic_score_retry",
		Status:    status,
		SessionID: j.sessionID,
		TaskID:    j.taskID,
		Attempts:  j.attempts,
		LastError: lastErr,
		CreatedAt: q.clock.Now(),
	})
}

func (q *RetryQueue) notifyIfIdle() {
	if !q.hasPendingLocked() && q.inFlight == 0 {
		q.idleCond.Broadcast()
	}
}

// hasPendingLocked reports whether any job is still queued or
// retrying. Completed jobs (succeeded/failed) stay in q.jobs so
// GetStatusSnapshot can observe their terminal state, so idleness can
// no longer be read off len(q.jobs) alone.
func (q *RetryQueue) hasPendingLocked() bool {
	for _, j := range q.jobs {
		if j.status == JobQueued || j.status == JobRetrying {
			return true
		}
	}
	return false
}

// GetStatusSnapshot returns the current status of every known job for
// a session, keyed by task_id.
func (q *RetryQueue) GetStatusSnapshot(sessionID string) map[string]StatusSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[string]StatusSnapshot)
	for _, j := range q.jobs {
		if j.sessionID != sessionID {
			continue
		}
		out[j.taskID] = StatusSnapshot{
			Status:        j.status,
			Attempts:      j.attempts,
			LastError:     j.lastError,
			NextAttemptAt: j.nextAttemptAt,
		}
	}
	return out
}

// GetDiagnostics reports the queue's current depth and in-flight count.
// QueueDepth only counts jobs still queued or retrying; completed jobs
// remain in the map for GetStatusSnapshot but aren't "depth".
func (q *RetryQueue) GetDiagnostics() Diagnostics {
	q.mu.Lock()
	defer q.mu.Unlock()
	depth := 0
	for _, j := range q.jobs {
		if j.status == JobQueued || j.status == JobRetrying {
			depth++
		}
	}
	return Diagnostics{QueueDepth: depth, InFlight: q.inFlight}
}

// Reset clears all tracked jobs, for use between test cases or after a
// session is abandoned.
func (q *RetryQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = make(map[string]*job)
	q.inFlight = 0
}

// WaitIdle blocks until no jobs are queued or in flight.
func (q *RetryQueue) WaitIdle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.hasPendingLocked() || q.inFlight != 0 {
		q.idleCond.Wait()
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
