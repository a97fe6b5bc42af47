// Package progress tracks download counters, a smoothed byte-rate, and a
// failure-ratio circuit breaker.
package progress

import (
	"sync"
	"time"
)

// State mirrors tiledl.DownloadState without importing the root package.
type State string

const (
	StateIdle        State = "idle"
	StateEstimating  State = "estimating"
	StateDownloading State = "downloading"
	StatePaused      State = "paused"
	StateCompleted   State = "completed"
	StateCancelled   State = "cancelled"
	StateFailed      State = "failed"
)

// Snapshot mirrors tiledl.LiveProgress without importing the root package.
type Snapshot struct {
	State           State
	Downloaded      int64
	Failed          int64
	Pending         int64
	Retrying        int64
	Total           int64
	DownloadedBytes int64
	EstimatedBytes  int64
	PercentComplete float64
	CurrentSpeed    float64
	ETA             float64
}

const speedWindow = 500 * time.Millisecond

// Tracker accumulates counters and a windowed speed estimate. Safe for
// concurrent use; the scheduler updates it from settlement callbacks that
// may run on different goroutines even though the dispatch loop itself is
// logically single-threaded.
type Tracker struct {
	mu sync.Mutex

	state          State
	total          int64
	estimatedBytes int64

	downloaded      int64
	failed          int64
	retrying        int64
	downloadedBytes int64

	windowStart    time.Time
	windowBytes    int64
	currentSpeed   float64
	now            func() time.Time
}

// New creates a Tracker for a run of total tiles with the given estimated
// total byte size.
func New(total int64, estimatedBytes int64) *Tracker {
	return &Tracker{
		state:          StateIdle,
		total:          total,
		estimatedBytes: estimatedBytes,
		windowStart:    time.Now(),
		now:            time.Now,
	}
}

// SetState updates the run's lifecycle state.
func (t *Tracker) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// RecordRetrying increments/decrements the in-retry counter as a tile
// enters or leaves a retry wait.
func (t *Tracker) RecordRetrying(delta int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retrying += delta
}

// RecordSuccess records a completed download of n bytes.
func (t *Tracker) RecordSuccess(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downloaded++
	t.downloadedBytes += n
	t.windowBytes += n
	t.maybeRotateWindow()
}

// RecordFailure records an exhausted-retries failure.
func (t *Tracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
}

func (t *Tracker) maybeRotateWindow() {
	now := t.now()
	elapsed := now.Sub(t.windowStart)
	if elapsed < speedWindow {
		return
	}
	t.currentSpeed = float64(t.windowBytes) / elapsed.Seconds()
	t.windowBytes = 0
	t.windowStart = now
}

// Snapshot returns a read-only copy of the current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending := t.total - t.downloaded - t.failed - t.retrying
	if pending < 0 {
		pending = 0
	}

	var percent float64
	if t.total > 0 {
		percent = float64(t.downloaded+t.failed) / float64(t.total)
	}

	var eta float64
	if t.currentSpeed > 0 {
		remaining := t.estimatedBytes - t.downloadedBytes
		if remaining < 0 {
			remaining = 0
		}
		eta = float64(remaining) / t.currentSpeed
	}

	return Snapshot{
		State:           t.state,
		Downloaded:      t.downloaded,
		Failed:          t.failed,
		Pending:         pending,
		Retrying:        t.retrying,
		Total:           t.total,
		DownloadedBytes: t.downloadedBytes,
		EstimatedBytes:  t.estimatedBytes,
		PercentComplete: percent,
		CurrentSpeed:    t.currentSpeed,
		ETA:             eta,
	}
}

// FailureMonitor trips the circuit breaker once a minimum sample size is
// reached and the observed failure ratio exceeds 25%.
type FailureMonitor struct {
	mu       sync.Mutex
	attempts int64
	failed   int64
}

const (
	minAttemptsForTrip = 10
	failureRatioLimit  = 0.25
)

// NewFailureMonitor creates an empty monitor.
func NewFailureMonitor() *FailureMonitor {
	return &FailureMonitor{}
}

// Record logs one post-retry attempt outcome.
func (f *FailureMonitor) Record(success bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if !success {
		f.failed++
	}
}

// ShouldAbort reports whether the failure ratio has tripped the breaker.
func (f *FailureMonitor) ShouldAbort() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attempts < minAttemptsForTrip {
		return false
	}
	return float64(f.failed)/float64(f.attempts) > failureRatioLimit
}
