package estimate

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func candidates(n int) []Coordinate {
	out := make([]Coordinate, n)
	for i := range out {
		out[i] = Coordinate{Z: 1, X: uint32(i), Y: 0, URL: "u"}
	}
	return out
}

func TestEstimateUsesMedianOfSamples(t *testing.T) {
	sizes := map[string]int{"a": 100, "b": 200, "c": 300}
	order := []string{"a", "b", "c"}
	idx := 0
	fetch := func(ctx context.Context, url string) ([]byte, error) {
		key := order[idx%len(order)]
		idx++
		return make([]byte, sizes[key]), nil
	}

	ranges := []RangeCount{{Z: 1, Count: 10, Candidates: candidates(3)}}
	total := Estimate(context.Background(), ranges, fetch, rand.New(rand.NewSource(42)))

	assert.Equal(t, int64(200*10), total)
}

func TestEstimateFallsBackWhenAllSamplesFail(t *testing.T) {
	fetch := func(ctx context.Context, url string) ([]byte, error) {
		return nil, errors.New("boom")
	}
	ranges := []RangeCount{{Z: 5, Count: 4, Candidates: candidates(3)}}
	total := Estimate(context.Background(), ranges, fetch, rand.New(rand.NewSource(1)))

	assert.Equal(t, int64(fallbackBytesPerTile*4), total)
}

func TestEstimateFallsBackWhenNoCandidates(t *testing.T) {
	fetch := func(ctx context.Context, url string) ([]byte, error) {
		t.Fatal("fetch should not be called with no candidates")
		return nil, nil
	}
	ranges := []RangeCount{{Z: 5, Count: 2, Candidates: nil}}
	total := Estimate(context.Background(), ranges, fetch, rand.New(rand.NewSource(1)))

	assert.Equal(t, int64(fallbackBytesPerTile*2), total)
}

func TestEstimateSamplesAtMostThreePerZoom(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, url string) ([]byte, error) {
		calls++
		return make([]byte, 10), nil
	}
	ranges := []RangeCount{{Z: 1, Count: 1, Candidates: candidates(20)}}
	Estimate(context.Background(), ranges, fetch, rand.New(rand.NewSource(7)))

	assert.Equal(t, 3, calls)
}

func TestEstimateSumsAcrossMultipleRanges(t *testing.T) {
	fetch := func(ctx context.Context, url string) ([]byte, error) {
		return make([]byte, 50), nil
	}
	ranges := []RangeCount{
		{Z: 1, Count: 4, Candidates: candidates(2)},
		{Z: 2, Count: 16, Candidates: candidates(2)},
	}
	total := Estimate(context.Background(), ranges, fetch, rand.New(rand.NewSource(3)))
	assert.Equal(t, int64(50*4+50*16), total)
}
