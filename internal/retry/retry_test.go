package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(c *Controller) {
	c.sleep = func(context.Context, time.Duration) error { return nil }
}

func TestExecuteSucceedsFirstTry(t *testing.T) {
	c := New(5, 10)
	noSleep(c)
	calls := 0
	body, outcome, attempts := c.Execute(context.Background(), func(context.Context) ([]byte, int, string, error) {
		calls++
		return []byte("data"), 200, "image/png", nil
	})
	assert.Equal(t, []byte("data"), body)
	assert.Equal(t, Outcome{}, outcome)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestExecuteRetriesOnRetryableThenSucceeds(t *testing.T) {
	c := New(5, 10)
	noSleep(c)
	calls := 0
	_, outcome, attempts := c.Execute(context.Background(), func(context.Context) ([]byte, int, string, error) {
		calls++
		if calls < 3 {
			return nil, 503, "", nil
		}
		return []byte("ok"), 200, "image/jpeg", nil
	})
	assert.Equal(t, Outcome{}, outcome)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestExecuteStopsOnNonRetryableHTTPStatus(t *testing.T) {
	c := New(5, 10)
	noSleep(c)
	calls := 0
	_, outcome, attempts := c.Execute(context.Background(), func(context.Context) ([]byte, int, string, error) {
		calls++
		return nil, 404, "", nil
	})
	require.Equal(t, KindHTTP, outcome.Kind)
	assert.False(t, outcome.Retryable)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestExecuteExhaustsRetries(t *testing.T) {
	c := New(2, 10) // max attempts = 3
	noSleep(c)
	calls := 0
	_, outcome, attempts := c.Execute(context.Background(), func(context.Context) ([]byte, int, string, error) {
		calls++
		return nil, 500, "", nil
	})
	assert.Equal(t, KindHTTP, outcome.Kind)
	assert.True(t, outcome.Retryable)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestExecuteNonImageContentTypeIsNonRetryableParse(t *testing.T) {
	c := New(5, 10)
	noSleep(c)
	_, outcome, attempts := c.Execute(context.Background(), func(context.Context) ([]byte, int, string, error) {
		return nil, 200, "text/html", nil
	})
	assert.Equal(t, KindParse, outcome.Kind)
	assert.False(t, outcome.Retryable)
	assert.Equal(t, 1, attempts)
}

func TestExecuteCORSIsNonRetryable(t *testing.T) {
	c := New(5, 10)
	noSleep(c)
	_, outcome, _ := c.Execute(context.Background(), func(context.Context) ([]byte, int, string, error) {
		return nil, 0, "", ErrCORS
	})
	assert.Equal(t, KindCORS, outcome.Kind)
	assert.False(t, outcome.Retryable)
}

func TestExecuteRespectsExternalCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(5, 10)
	noSleep(c)
	_, outcome, attempts := c.Execute(ctx, func(context.Context) ([]byte, int, string, error) {
		t.Fatal("fn should not be called when context already cancelled")
		return nil, 0, "", nil
	})
	assert.Equal(t, KindCancelled, outcome.Kind)
	assert.False(t, outcome.Retryable)
	assert.Equal(t, 0, attempts)
}

func TestExecuteUnknownErrorIsRetryable(t *testing.T) {
	c := New(1, 10)
	noSleep(c)
	calls := 0
	_, outcome, attempts := c.Execute(context.Background(), func(context.Context) ([]byte, int, string, error) {
		calls++
		return nil, 0, "", errors.New("boom")
	})
	assert.Equal(t, KindUnknown, outcome.Kind)
	assert.True(t, outcome.Retryable)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, calls)
}

func TestExecuteFiresRetryHooksAroundEachBackoff(t *testing.T) {
	c := New(2, 10) // max attempts = 3, so 2 retries
	noSleep(c)

	var starts, ends int
	c.SetRetryHooks(func() { starts++ }, func() { ends++ })

	calls := 0
	c.Execute(context.Background(), func(context.Context) ([]byte, int, string, error) {
		calls++
		return nil, 500, "", nil
	})

	assert.Equal(t, 2, starts)
	assert.Equal(t, 2, ends)
}

func TestExecuteBackoffDelayDoubles(t *testing.T) {
	c := New(3, 10)
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	calls := 0
	c.Execute(context.Background(), func(context.Context) ([]byte, int, string, error) {
		calls++
		return nil, 500, "", nil
	})
	require.Len(t, delays, 3)
	assert.Equal(t, 10*time.Millisecond, delays[0])
	assert.Equal(t, 20*time.Millisecond, delays[1])
	assert.Equal(t, 40*time.Millisecond, delays[2])
}
