package grid

import "github.com/openbasemap/tiledl/internal/urltemplate"

// Coordinate is the enumerator's local view of a tile: grid-space (x,y) plus
// the materialized URL. The root package adapts this into tiledl.TileCoordinate.
type Coordinate struct {
	ServiceName string
	Z, X, Y     uint32 // grid-space y; URL carries the scheme-adjusted value (see Enumerate)
	URL         string
}

// Scheme mirrors tiledl.TileScheme without importing the root package.
type Scheme string

const (
	SchemeXYZ  Scheme = "xyz"
	SchemeTMS  Scheme = "tms"
	SchemeWMTS Scheme = "wmts"
)

// Enumerate walks the given ranges in zoom-ascending, x-ascending,
// y-ascending order (spec §4.3) and materializes a URL for each tile. For
// the tms scheme, the y coordinate used in the URL is inverted:
// yURL = 2^z - 1 - yGrid. xyz and wmts use the grid y directly.
func Enumerate(ranges []TileRange, serviceName, template string, rotator *urltemplate.Rotator, scheme Scheme) []Coordinate {
	var out []Coordinate
	for _, r := range ranges {
		for x := r.MinX; x <= r.MaxX; x++ {
			for y := r.MinY; y <= r.MaxY; y++ {
				urlY := y
				if scheme == SchemeTMS {
					urlY = (uint32(1)<<r.Z - 1) - y
				}
				url := urltemplate.Materialize(template, x, urlY, r.Z, rotator.Next())
				out = append(out, Coordinate{
					ServiceName: serviceName,
					Z:           r.Z,
					X:           x,
					Y:           y,
					URL:         url,
				})
			}
		}
	}
	return out
}
