package tiledl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openbasemap/tiledl/internal/capabilities"
	"github.com/openbasemap/tiledl/internal/dedup"
	"github.com/openbasemap/tiledl/internal/estimate"
	"github.com/openbasemap/tiledl/internal/grid"
	"github.com/openbasemap/tiledl/internal/progress"
	"github.com/openbasemap/tiledl/internal/ratelimit"
	"github.com/openbasemap/tiledl/internal/retry"
	"github.com/openbasemap/tiledl/internal/scheduler"
	"github.com/openbasemap/tiledl/internal/urltemplate"
)

const (
	defaultConcurrency      = 6
	defaultRetries          = 5
	defaultRetryBaseDelayMs = 1000
)

var defaultHTTPClient = &http.Client{}

// StatsResult is what DownloadHandle.Stats delivers: exactly one value,
// then the channel closes. Err is set when the run ended in the failed
// state; Stats still holds the partial counts accumulated before the
// failure threshold tripped.
type StatsResult struct {
	Stats DownloadStats
	Err   error
}

// DownloadHandle is the live handle to a running (or finished) download.
type DownloadHandle struct {
	TotalTiles    int
	EstimatedSize int64
	TilesByZoom   map[uint32]int

	tiles chan TilePayload
	stats chan StatsResult

	sched   *scheduler.Scheduler
	tracker *progress.Tracker
}

// Tiles is the single-consumer output stream of successfully fetched
// tiles. It closes when the run reaches a terminal state.
func (h *DownloadHandle) Tiles() <-chan TilePayload { return h.tiles }

// Stats resolves exactly once, when the run reaches a terminal state. It
// must not be read from concurrently with draining Tiles in a way that
// assumes ordering between the two; Stats only becomes ready once Tiles
// has been fully drained.
func (h *DownloadHandle) Stats() <-chan StatsResult { return h.stats }

// Progress returns a read-only snapshot of current counters.
func (h *DownloadHandle) Progress() LiveProgress {
	snap := h.tracker.Snapshot()
	return LiveProgress{
		State:           DownloadState(snap.State),
		Downloaded:      int(snap.Downloaded),
		Failed:          int(snap.Failed),
		Pending:         int(snap.Pending),
		Retrying:        int(snap.Retrying),
		Total:           int(snap.Total),
		DownloadedBytes: snap.DownloadedBytes,
		EstimatedBytes:  snap.EstimatedBytes,
		PercentComplete: snap.PercentComplete,
		CurrentSpeed:    snap.CurrentSpeed,
		ETA:             snap.ETA,
	}
}

// Pause suspends dispatch of new fetches; in-flight fetches continue.
func (h *DownloadHandle) Pause() { h.sched.Pause() }

// Resume wakes a paused download.
func (h *DownloadHandle) Resume() { h.sched.Resume() }

// Cancel stops the run. Idempotent.
func (h *DownloadHandle) Cancel() { h.sched.Cancel() }

// State returns the run's current lifecycle state.
func (h *DownloadHandle) State() DownloadState {
	return DownloadState(h.sched.State())
}

// DownloadTiles validates config eagerly, enumerates and deduplicates the
// tile set, estimates total size, and starts the scheduler in the
// background. It returns a ConfigError immediately for an invalid config;
// all other failures surface per-tile through DownloadStats.
func DownloadTiles(ctx context.Context, config DownloadConfig) (*DownloadHandle, error) {
	resolved, err := resolveConfig(config)
	if err != nil {
		return nil, err
	}

	g, err := grid.Resolve(resolved.CRS)
	if err != nil {
		return nil, &ConfigError{Message: err.Error()}
	}

	var ranges []grid.TileRange
	for z := resolved.MinZoom; z <= resolved.MaxZoom; z++ {
		ranges = append(ranges, g.TileRangeForBBoxAndZ(resolved.BBox, uint32(z)))
	}

	rotator := urltemplate.NewRotator(resolved.Subdomains)
	scheme := toGridScheme(resolved.TileScheme)
	coords := grid.Enumerate(ranges, resolved.ServiceName, resolved.URLTemplate, rotator, scheme)

	var presence dedup.Presence
	if resolved.ExistingTiles != nil {
		presence = existingTilesAdapter{resolved.ExistingTiles}
	}
	coords = dedup.Filter(coords, func(c grid.Coordinate) dedup.Key {
		return dedup.Key{ServiceName: c.ServiceName, Z: c.Z, X: c.X, Y: c.Y}
	}, presence)

	tilesByZoom := map[uint32]int{}
	for _, c := range coords {
		tilesByZoom[c.Z]++
	}

	estimatedSize := estimateSize(ctx, ranges, coords, resolved.ServiceName, resolved.URLTemplate, rotator, scheme)

	schedCoords := make([]scheduler.Coordinate, len(coords))
	for i, c := range coords {
		schedCoords[i] = scheduler.Coordinate{ServiceName: c.ServiceName, Z: c.Z, X: c.X, Y: c.Y, URL: c.URL}
	}

	tracker := progress.New(int64(len(schedCoords)), estimatedSize)
	tracker.SetState(progress.StateDownloading)
	monitor := progress.NewFailureMonitor()
	limiter := ratelimit.New(resolved.RateLimit)
	retrier := retry.New(resolved.Retries, resolved.RetryBaseDelayMs)

	sched := scheduler.New(schedCoords, resolved.Concurrency, httpFetch, limiter, retrier, tracker, monitor)

	handle := &DownloadHandle{
		TotalTiles:    len(schedCoords),
		EstimatedSize: estimatedSize,
		TilesByZoom:   tilesByZoom,
		tiles:         make(chan TilePayload),
		stats:         make(chan StatsResult, 1),
		sched:         sched,
		tracker:       tracker,
	}

	sched.Run(ctx)
	go handle.collect(tracker, monitor)

	return handle, nil
}

func (h *DownloadHandle) collect(tracker *progress.Tracker, monitor *progress.FailureMonitor) {
	start := time.Now()
	var errs []TileError
	var failedTiles []TileCoordinate

	for r := range h.sched.Results() {
		if r.Err != nil {
			errs = append(errs, TileError{
				Tile:       TileCoordinate{ServiceName: r.Coordinate.ServiceName, Z: r.Coordinate.Z, X: r.Coordinate.X, Y: r.Coordinate.Y, URL: r.Coordinate.URL},
				Kind:       ErrorKind(r.Err.Kind),
				HTTPStatus: r.Err.HTTPStatus,
				Message:    r.Err.Message,
				Attempts:   r.Err.Attempts,
				Timestamp:  r.Err.Timestamp,
				Retryable:  r.Err.Retryable,
			})
			failedTiles = append(failedTiles, TileCoordinate{ServiceName: r.Coordinate.ServiceName, Z: r.Coordinate.Z, X: r.Coordinate.X, Y: r.Coordinate.Y, URL: r.Coordinate.URL})
			continue
		}
		h.tiles <- TilePayload{
			ServiceName: r.Coordinate.ServiceName,
			Z:           r.Coordinate.Z,
			X:           r.Coordinate.X,
			Y:           r.Coordinate.Y,
			Bytes:       r.Payload,
			ByteLength:  len(r.Payload),
		}
	}
	close(h.tiles)

	<-h.sched.Done()

	snap := tracker.Snapshot()
	elapsed := time.Since(start)
	var avgSpeed float64
	if elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.DownloadedBytes) / elapsed.Seconds()
	}
	var ratio float64
	total := snap.Downloaded + snap.Failed
	if total > 0 {
		ratio = float64(snap.Downloaded) / float64(total)
	}

	stats := DownloadStats{
		Successful:   int(snap.Downloaded),
		Failed:       int(snap.Failed),
		SuccessRatio: ratio,
		ActualSize:   snap.DownloadedBytes,
		ElapsedMs:    elapsed.Milliseconds(),
		AverageSpeed: avgSpeed,
		Errors:       errs,
		FailedTiles:  failedTiles,
	}

	var statsErr error
	if h.sched.State() == progress.StateFailed {
		statsErr = &FailureThresholdError{Stats: stats}
	}
	h.stats <- StatsResult{Stats: stats, Err: statsErr}
	close(h.stats)
}

func estimateSize(ctx context.Context, ranges []grid.TileRange, coords []grid.Coordinate, serviceName, template string, rotator *urltemplate.Rotator, scheme grid.Scheme) int64 {
	byZoom := map[uint32][]estimate.Coordinate{}
	for _, c := range coords {
		byZoom[c.Z] = append(byZoom[c.Z], estimate.Coordinate{Z: c.Z, X: c.X, Y: c.Y, URL: c.URL})
	}

	var rangeCounts []estimate.RangeCount
	for _, r := range ranges {
		rangeCounts = append(rangeCounts, estimate.RangeCount{
			Z:          r.Z,
			Count:      r.Count(),
			Candidates: byZoom[r.Z],
		})
	}

	return estimate.Estimate(ctx, rangeCounts, httpFetchBody, nil)
}

func httpFetchBody(ctx context.Context, url string) ([]byte, error) {
	body, status, _, err := httpFetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("tiledl: sample fetch got status %d", status)
	}
	return body, nil
}

func httpFetch(ctx context.Context, url string) ([]byte, int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, "", err
	}
	resp, err := defaultHTTPClient.Do(req)
	if err != nil {
		return nil, 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, "", err
	}
	return body, resp.StatusCode, resp.Header.Get("Content-Type"), nil
}

type existingTilesAdapter struct {
	inner ExistingTiles
}

func (a existingTilesAdapter) Has(key dedup.Key) bool {
	return a.inner.Has(TileKey{ServiceName: key.ServiceName, Z: key.Z, X: key.X, Y: key.Y})
}

func toGridScheme(s TileScheme) grid.Scheme {
	switch s {
	case SchemeTMS:
		return grid.SchemeTMS
	case SchemeWMTS:
		return grid.SchemeWMTS
	default:
		return grid.SchemeXYZ
	}
}

func resolveConfig(config DownloadConfig) (DownloadConfig, error) {
	if strings.TrimSpace(config.ServiceName) == "" {
		return config, &ConfigError{Message: "serviceName must not be empty"}
	}

	hasSubdomains := len(config.Subdomains) > 0
	validation := urltemplate.Validate(config.URLTemplate, hasSubdomains)
	if !validation.Valid {
		return config, &ConfigError{Message: fmt.Sprintf("urlTemplate missing placeholders: %v", validation.Missing)}
	}

	if config.MinZoom < 0 || config.MinZoom > config.MaxZoom {
		return config, &ConfigError{Message: "minZoom must be >= 0 and <= maxZoom"}
	}

	if config.CapabilitiesURL != "" {
		result := capabilities.Resolve(config.CapabilitiesURL, "")
		config.CRS = result.Default
	} else if config.CRS == "" {
		config.CRS = "EPSG:3857"
	}

	if config.TileScheme == "" {
		config.TileScheme = SchemeXYZ
	}

	if strings.Contains(config.URLTemplate, "{s}") && len(config.Subdomains) == 0 {
		config.Subdomains = urltemplate.DefaultSubdomains
	}

	if config.Concurrency <= 0 {
		config.Concurrency = defaultConcurrency
	}
	if config.Concurrency > 6 {
		config.Concurrency = 6
	}

	if config.Retries < 0 {
		config.Retries = defaultRetries
	}
	if config.RetryBaseDelayMs < 0 {
		config.RetryBaseDelayMs = defaultRetryBaseDelayMs
	}

	return config, nil
}
