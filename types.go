// Package tiledl is a bulk map-tile download engine. Given a bounding box,
// a zoom range, a URL template and a tiling scheme, it enumerates every
// tile the region intersects, fetches them with bounded concurrency and
// polite pacing, and streams the decoded payloads to the caller.
//
// The engine never persists tiles; that is the caller's job, as is supplying
// the set of tiles already on disk so they can be skipped.
package tiledl

import "time"

// TileCoordinate identifies one tile and carries its materialized URL. It is
// immutable after construction.
type TileCoordinate struct {
	ServiceName string
	Z, X, Y     uint32
	URL         string
}

// TilePayload is the fetched artifact handed to the consumer. Ownership of
// Bytes transfers to the consumer on yield.
type TilePayload struct {
	ServiceName string
	Z, X, Y     uint32
	Bytes       []byte
	ByteLength  int
}

// TileRange is an inclusive rectangle of tile coordinates at one zoom level.
type TileRange struct {
	Z               uint32
	MinX, MaxX      uint32
	MinY, MaxY      uint32
}

// Count returns the number of tiles covered by the range.
func (r TileRange) Count() int {
	return int(r.MaxX-r.MinX+1) * int(r.MaxY-r.MinY+1)
}

// TileScheme is the convention mapping (z,x,y) to a canonical tile position.
type TileScheme string

const (
	SchemeXYZ  TileScheme = "xyz"
	SchemeTMS  TileScheme = "tms"
	SchemeWMTS TileScheme = "wmts"
)

// TileKey uniquely identifies a tile within a service for dedup/presence
// lookups: (serviceName, z, x, y).
type TileKey struct {
	ServiceName string
	Z, X, Y     uint32
}

// ExistingTiles is the presence-set collaborator a caller supplies so
// already-downloaded tiles are skipped. It must answer in O(1).
type ExistingTiles interface {
	Has(key TileKey) bool
}

// ExistingTilesFunc adapts a plain function to ExistingTiles.
type ExistingTilesFunc func(key TileKey) bool

func (f ExistingTilesFunc) Has(key TileKey) bool { return f(key) }

// existingTilesSet is the default in-memory ExistingTiles backed by a map,
// used when a caller passes a plain set of keys instead of a custom
// collaborator.
type existingTilesSet map[TileKey]struct{}

func (s existingTilesSet) Has(key TileKey) bool {
	_, ok := s[key]
	return ok
}

// NewExistingTilesSet builds an in-memory ExistingTiles collaborator from a
// slice of keys, e.g. the coordinates yielded by a prior run.
func NewExistingTilesSet(keys []TileKey) ExistingTiles {
	set := make(existingTilesSet, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// DownloadConfig is the caller-supplied description of a download run.
type DownloadConfig struct {
	ServiceName string

	// URLTemplate must contain {x}, {y}, {z}; {s} is optional.
	URLTemplate string

	// BBox is [minLon, minLat, maxLon, maxLat] in WGS84 degrees.
	BBox [4]float64

	MinZoom, MaxZoom int

	// CRS defaults to EPSG:3857.
	CRS string

	// Subdomains defaults to ["a","b","c"] iff the template contains {s}.
	Subdomains []string

	// TileScheme defaults to SchemeXYZ.
	TileScheme TileScheme

	// Concurrency is clamped to [1,6]; default 6.
	Concurrency int

	// RateLimit in tiles/second. Zero means unlimited.
	RateLimit float64

	// Retries is the number of retry attempts after an initial failure; 0
	// is a legitimate explicit value (one attempt, no retries). Negative
	// means unset and defaults to 5.
	Retries int

	// RetryBaseDelayMs is the base backoff delay between retries.
	// Negative means unset and defaults to 1000.
	RetryBaseDelayMs int

	ExistingTiles ExistingTiles

	// CapabilitiesURL, if set, triggers CRS auto-pick via GetSupportedCRS.
	CapabilitiesURL string
}

// DownloadState is a state in the scheduler's finite state machine.
type DownloadState string

const (
	StateIdle        DownloadState = "idle"
	StateEstimating  DownloadState = "estimating"
	StateDownloading DownloadState = "downloading"
	StatePaused      DownloadState = "paused"
	StateCompleted   DownloadState = "completed"
	StateCancelled   DownloadState = "cancelled"
	StateFailed      DownloadState = "failed"
)

// LiveProgress is a read-only snapshot of an in-progress download.
type LiveProgress struct {
	State            DownloadState
	Downloaded       int
	Failed           int
	Pending          int
	Retrying         int
	Total            int
	DownloadedBytes  int64
	EstimatedBytes   int64
	PercentComplete  float64
	CurrentSpeed     float64 // bytes/second
	ETA              float64 // seconds
}

// ErrorKind classifies a per-tile failure.
type ErrorKind string

const (
	ErrNetwork   ErrorKind = "network"
	ErrHTTP      ErrorKind = "http"
	ErrTimeout   ErrorKind = "timeout"
	ErrCORS      ErrorKind = "cors"
	ErrParse     ErrorKind = "parse"
	ErrCancelled ErrorKind = "cancelled"
	ErrUnknown   ErrorKind = "unknown"
)

// TileError describes a tile that failed, possibly after retries.
type TileError struct {
	Tile       TileCoordinate
	Kind       ErrorKind
	HTTPStatus int
	Message    string
	Attempts   int
	Timestamp  time.Time
	Retryable  bool
}

func (e *TileError) Error() string {
	return e.Message
}

// DownloadStats is the final record produced when a run reaches a terminal
// state.
type DownloadStats struct {
	Successful    int
	Failed        int
	SuccessRatio  float64
	ActualSize    int64
	ElapsedMs     int64
	AverageSpeed  float64
	Errors        []TileError
	FailedTiles   []TileCoordinate
}

// ConfigError is raised eagerly by DownloadTiles before any fetch begins.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// FailureThresholdError is returned through Stats when the failure monitor
// trips.
type FailureThresholdError struct {
	Stats DownloadStats
}

func (e *FailureThresholdError) Error() string {
	return "failure-threshold-exceeded"
}
