package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnlimitedNeverBlocks(t *testing.T) {
	l := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	for i := 0; i < 5; i++ {
		assert.NoError(t, l.Acquire(ctx))
	}
}

func TestLimiterPacesAcquisitions(t *testing.T) {
	const ratePerSecond = 20.0 // 50ms minimum interval between acquisitions
	l := New(ratePerSecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		assert.NoError(t, l.Acquire(ctx))
	}
	elapsed := time.Since(start)

	// burst is 1, so 3 acquisitions span 2 intervals of 1/rate each.
	minExpected := 2 * time.Second / time.Duration(ratePerSecond)
	assert.GreaterOrEqual(t, elapsed, minExpected-5*time.Millisecond)
}

func TestLimiterRespectsContextCancellation(t *testing.T) {
	l := New(0.001) // effectively one slot every 1000s
	l.Acquire(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	assert.Error(t, err)
}
