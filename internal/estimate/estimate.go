// Package estimate computes a rough total download size by sampling a
// handful of tiles per zoom range and taking the median byte length.
package estimate

import (
	"context"
	"math/rand"
	"sort"
	"time"
)

// Coordinate mirrors the subset of grid.Coordinate this package needs.
type Coordinate struct {
	Z, X, Y uint32
	URL     string
}

// Fetcher fetches a tile's raw bytes for sampling purposes. A sample
// timeout of 5s is applied by Estimate around every call.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

const (
	samplesPerZoom   = 3
	sampleTimeout    = 5 * time.Second
	fallbackBytesPerTile = 15 * 1024
)

// RangeCount pairs a zoom level with the number of tiles at that zoom, and
// the candidate coordinates to sample from.
type RangeCount struct {
	Z          uint32
	Count      int
	Candidates []Coordinate
}

// Estimate returns the estimated total byte size across all ranges, per
// spec §4.6: sample up to 3 tiles per zoom, take the median of successful
// samples, fall back to 15KiB/tile if every sample at a zoom fails.
func Estimate(ctx context.Context, ranges []RangeCount, fetch Fetcher, rng *rand.Rand) int64 {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	var total int64
	for _, r := range ranges {
		median := medianSampleSize(ctx, r.Candidates, fetch, rng)
		total += median * int64(r.Count)
	}
	return total
}

func medianSampleSize(ctx context.Context, candidates []Coordinate, fetch Fetcher, rng *rand.Rand) int64 {
	if len(candidates) == 0 {
		return fallbackBytesPerTile
	}

	picks := pickSamples(candidates, samplesPerZoom, rng)

	var sizes []int64
	for _, c := range picks {
		size, ok := sampleOne(ctx, c, fetch)
		if ok {
			sizes = append(sizes, size)
		}
	}

	if len(sizes) == 0 {
		return fallbackBytesPerTile
	}

	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })
	mid := len(sizes) / 2
	if len(sizes)%2 == 1 {
		return sizes[mid]
	}
	return (sizes[mid-1] + sizes[mid]) / 2
}

func sampleOne(ctx context.Context, c Coordinate, fetch Fetcher) (int64, bool) {
	sampleCtx, cancel := context.WithTimeout(ctx, sampleTimeout)
	defer cancel()

	body, err := fetch(sampleCtx, c.URL)
	if err != nil || len(body) == 0 {
		return 0, false
	}
	return int64(len(body)), true
}

// pickSamples draws up to n candidates without replacement, in randomized
// order, without mutating the caller's slice.
func pickSamples(candidates []Coordinate, n int, rng *rand.Rand) []Coordinate {
	pool := make([]Coordinate, len(candidates))
	copy(pool, candidates)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > n {
		pool = pool[:n]
	}
	return pool
}
