// Package scheduler runs the bounded-concurrency, rate-limited,
// pause/resume/cancel-capable fetch dispatch loop described in the tile
// download engine's design: take an ordered coordinate queue, fetch each
// one with retry and pacing, and stream settled results to a single
// consumer.
//
// The original design describes a single-threaded cooperative event loop
// racing in-flight promises and tracking a "settled" set to avoid
// re-yielding a task. Go's channels make that bookkeeping unnecessary: each
// dispatched goroutine sends its result exactly once on a channel, so the
// channel itself is the settled set. The dispatch loop plays the role of
// the event loop. Each fetch goroutine records its own outcome in the
// progress tracker and failure monitor, which guard their counters with a
// mutex because those goroutines run concurrently; the reader of Results()
// is the single consumer of the output stream.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openbasemap/tiledl/internal/progress"
	"github.com/openbasemap/tiledl/internal/ratelimit"
	"github.com/openbasemap/tiledl/internal/retry"
)

// errFailureThreshold is returned into the errgroup when the failure
// monitor trips, so Wait() distinguishes a failure-threshold abort from a
// plain user Cancel() (whose derived context is simply cancelled with no
// group error).
var errFailureThreshold = errors.New("scheduler: failure threshold exceeded")

// Coordinate mirrors the subset of grid.Coordinate the scheduler needs.
type Coordinate struct {
	ServiceName string
	Z, X, Y     uint32
	URL         string
}

// Error mirrors tiledl.TileError without importing the root package.
type Error struct {
	Tile       Coordinate
	Kind       retry.Kind
	HTTPStatus int
	Message    string
	Attempts   int
	Timestamp  time.Time
	Retryable  bool
}

// Result is one settled fetch: exactly one of Payload or Err is set.
type Result struct {
	Coordinate Coordinate
	Payload    []byte
	Err        *Error
}

// FetchFunc performs the raw HTTP GET for one tile URL. It must respect
// ctx cancellation and deadlines.
type FetchFunc func(ctx context.Context, url string) (body []byte, status int, contentType string, err error)

const perAttemptTimeout = 10 * time.Second

// Scheduler drives one download run.
type Scheduler struct {
	coords      []Coordinate
	concurrency int
	fetch       FetchFunc
	limiter     *ratelimit.Limiter
	retrier     *retry.Controller
	tracker     *progress.Tracker
	monitor     *progress.FailureMonitor

	results chan Result

	mu       sync.Mutex
	cond     *sync.Cond
	state    progress.State
	cancelFn context.CancelFunc
	doneCh   chan struct{}
}

// New builds a Scheduler for the given ordered coordinate queue.
func New(coords []Coordinate, concurrency int, fetch FetchFunc, limiter *ratelimit.Limiter, retrier *retry.Controller, tracker *progress.Tracker, monitor *progress.FailureMonitor) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	retrier.SetRetryHooks(
		func() { tracker.RecordRetrying(1) },
		func() { tracker.RecordRetrying(-1) },
	)
	s := &Scheduler{
		coords:      coords,
		concurrency: concurrency,
		fetch:       fetch,
		limiter:     limiter,
		retrier:     retrier,
		tracker:     tracker,
		monitor:     monitor,
		results:     make(chan Result),
		state:       progress.StateDownloading,
		doneCh:      make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Results is the single-consumer output stream. It closes when the run
// reaches a terminal state.
func (s *Scheduler) Results() <-chan Result { return s.results }

// Done closes when the scheduler reaches a terminal state.
func (s *Scheduler) Done() <-chan struct{} { return s.doneCh }

// State returns the current lifecycle state.
func (s *Scheduler) State() progress.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pause suspends new dispatch; in-flight fetches continue to completion.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	if s.state == progress.StateDownloading {
		s.state = progress.StatePaused
		s.tracker.SetState(progress.StatePaused)
	}
	s.mu.Unlock()
}

// Resume wakes a paused dispatch loop.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	if s.state == progress.StatePaused {
		s.state = progress.StateDownloading
		s.tracker.SetState(progress.StateDownloading)
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Cancel is idempotent. It stops new dispatch and aborts in-flight
// fetches via the shared context.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	switch s.state {
	case progress.StateCompleted, progress.StateCancelled, progress.StateFailed:
		s.mu.Unlock()
		return
	}
	s.state = progress.StateCancelled
	s.tracker.SetState(progress.StateCancelled)
	cancelFn := s.cancelFn
	s.mu.Unlock()
	if cancelFn != nil {
		cancelFn()
	}
	s.cond.Broadcast()
}

// Run starts the dispatch loop and returns immediately; Results() and
// Done() report progress and completion. ctx governs the whole run; it is
// wrapped so Cancel() can trip it independently of the caller.
func (s *Scheduler) Run(ctx context.Context) {
	runCtx, cancelFn := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelFn = cancelFn
	s.mu.Unlock()

	go s.dispatch(runCtx)
}

func (s *Scheduler) dispatch(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.concurrency)

dispatchLoop:
	for _, coord := range s.coords {
		state := s.waitWhilePaused()
		if state == progress.StateCancelled {
			break
		}
		if s.monitor.ShouldAbort() {
			g.Go(func() error { return errFailureThreshold })
			break
		}

		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			break dispatchLoop
		}

		// coord is passed by value into the goroutine to avoid the classic
		// loop-variable capture bug.
		c := coord
		g.Go(func() error {
			defer func() { <-sem }()
			s.runOne(gctx, c)
			return nil
		})
	}

	groupErr := g.Wait()
	close(s.results)

	s.mu.Lock()
	if s.cancelFn != nil {
		s.cancelFn()
	}
	switch {
	case s.state == progress.StateCancelled:
		// already set by Cancel()
	case errors.Is(groupErr, errFailureThreshold):
		s.state = progress.StateFailed
		s.tracker.SetState(progress.StateFailed)
	case s.state == progress.StateDownloading:
		s.state = progress.StateCompleted
		s.tracker.SetState(progress.StateCompleted)
	}
	s.mu.Unlock()
	close(s.doneCh)
}

func (s *Scheduler) waitWhilePaused() progress.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.state == progress.StatePaused {
		s.cond.Wait()
	}
	return s.state
}

func (s *Scheduler) runOne(ctx context.Context, coord Coordinate) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return
	}

	fetchFn := func(callCtx context.Context) ([]byte, int, string, error) {
		attemptCtx, cancel := context.WithTimeout(callCtx, perAttemptTimeout)
		defer cancel()
		return s.fetch(attemptCtx, coord.URL)
	}

	body, outcome, attempts := s.retrier.Execute(ctx, fetchFn)

	if outcome.Kind == retry.KindCancelled {
		// Cancellation means this tile is neither yielded nor counted;
		// the stream must terminate without any further observable
		// progress from work that was in flight when cancel() fired.
		return
	}

	if outcome.Kind == "" {
		s.tracker.RecordSuccess(int64(len(body)))
		s.monitor.Record(true)
		select {
		case s.results <- Result{Coordinate: coord, Payload: body}:
		case <-ctx.Done():
		}
		return
	}

	s.tracker.RecordFailure()
	s.monitor.Record(false)
	tileErr := &Error{
		Tile:       coord,
		Kind:       outcome.Kind,
		HTTPStatus: outcome.HTTPStatus,
		Message:    outcome.Message,
		Attempts:   attempts,
		Timestamp:  time.Now(),
		Retryable:  outcome.Retryable,
	}
	select {
	case s.results <- Result{Coordinate: coord, Err: tileErr}:
	case <-ctx.Done():
	}
}
