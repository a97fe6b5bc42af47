package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbasemap/tiledl/internal/progress"
	"github.com/openbasemap/tiledl/internal/ratelimit"
	"github.com/openbasemap/tiledl/internal/retry"
)

func coords(n int) []Coordinate {
	out := make([]Coordinate, n)
	for i := range out {
		out[i] = Coordinate{ServiceName: "osm", Z: 1, X: uint32(i), Y: 0, URL: "u"}
	}
	return out
}

func drain(t *testing.T, s *Scheduler, timeout time.Duration) []Result {
	t.Helper()
	var results []Result
	deadline := time.After(timeout)
	for {
		select {
		case r, ok := <-s.Results():
			if !ok {
				return results
			}
			results = append(results, r)
		case <-deadline:
			t.Fatal("timed out draining results")
			return nil
		}
	}
}

func TestAllTilesSucceed(t *testing.T) {
	fetch := func(ctx context.Context, url string) ([]byte, int, string, error) {
		return []byte("data"), 200, "image/png", nil
	}
	s := New(coords(5), 2, fetch, ratelimit.New(0), retry.New(0, 1), progress.New(5, 500), progress.NewFailureMonitor())
	s.Run(context.Background())

	results := drain(t, s, time.Second)
	assert.Len(t, results, 5)
	for _, r := range results {
		assert.Nil(t, r.Err)
	}
	<-s.Done()
	assert.Equal(t, progress.StateCompleted, s.State())
}

func TestConcurrencyNeverExceedsLimit(t *testing.T) {
	var inFlight int32
	var maxSeen int32
	fetch := func(ctx context.Context, url string) ([]byte, int, string, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxSeen)
			if cur <= m || atomic.CompareAndSwapInt32(&maxSeen, m, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return []byte("x"), 200, "image/png", nil
	}
	s := New(coords(12), 3, fetch, ratelimit.New(0), retry.New(0, 1), progress.New(12, 1200), progress.NewFailureMonitor())
	s.Run(context.Background())
	drain(t, s, 2*time.Second)
	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxSeen)), 3)
}

func TestCancelStopsFurtherYields(t *testing.T) {
	fetch := func(ctx context.Context, url string) ([]byte, int, string, error) {
		select {
		case <-time.After(50 * time.Millisecond):
			return []byte("x"), 200, "image/png", nil
		case <-ctx.Done():
			return nil, 0, "", ctx.Err()
		}
	}
	s := New(coords(20), 4, fetch, ratelimit.New(0), retry.New(0, 1), progress.New(20, 2000), progress.NewFailureMonitor())
	s.Run(context.Background())

	go func() {
		time.Sleep(5 * time.Millisecond)
		s.Cancel()
	}()

	results := drain(t, s, 2*time.Second)
	assert.Less(t, len(results), 20)
	<-s.Done()
	assert.Equal(t, progress.StateCancelled, s.State())
}

func TestPauseStopsNewDispatchUntilResumed(t *testing.T) {
	var started int32
	fetch := func(ctx context.Context, url string) ([]byte, int, string, error) {
		atomic.AddInt32(&started, 1)
		return []byte("x"), 200, "image/png", nil
	}
	s := New(coords(10), 1, fetch, ratelimit.New(0), retry.New(0, 1), progress.New(10, 1000), progress.NewFailureMonitor())
	s.Pause()
	s.Run(context.Background())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&started))

	s.Resume()
	drain(t, s, time.Second)
	assert.Equal(t, int32(10), atomic.LoadInt32(&started))
}

func TestFailureThresholdTripsToFailed(t *testing.T) {
	fetch := func(ctx context.Context, url string) ([]byte, int, string, error) {
		return nil, 404, "", nil
	}
	s := New(coords(50), 4, fetch, ratelimit.New(0), retry.New(0, 1), progress.New(50, 5000), progress.NewFailureMonitor())
	s.Run(context.Background())

	drain(t, s, 2*time.Second)
	<-s.Done()
	assert.Equal(t, progress.StateFailed, s.State())
}

func TestCancelIsIdempotent(t *testing.T) {
	fetch := func(ctx context.Context, url string) ([]byte, int, string, error) {
		return []byte("x"), 200, "image/png", nil
	}
	s := New(coords(3), 1, fetch, ratelimit.New(0), retry.New(0, 1), progress.New(3, 300), progress.NewFailureMonitor())
	s.Run(context.Background())
	s.Cancel()
	s.Cancel()
	drain(t, s, time.Second)
	<-s.Done()
}

func TestRetryableFailureEventuallySucceeds(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, url string) ([]byte, int, string, error) {
		calls++
		if calls < 2 {
			return nil, 503, "", nil
		}
		return []byte("ok"), 200, "image/png", nil
	}
	tracker := progress.New(1, 100)
	s := New(coords(1), 1, fetch, ratelimit.New(0), retry.New(3, 1), tracker, progress.NewFailureMonitor())
	s.Run(context.Background())
	results := drain(t, s, time.Second)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Err)

	// the retry hook's start/end calls must balance out once the tile
	// finally succeeds, leaving no tile stuck counted as retrying.
	assert.EqualValues(t, 0, tracker.Snapshot().Retrying)
}
