// Package grid resolves a named CRS and tile scheme into projected grid
// math, and transforms a WGS84 bounding box into the tile ranges that grid
// covers at each zoom level.
package grid

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileSize is assumed fixed across the engine, as the spec requires.
const TileSize = 256

// Grid exposes the projected extent of a CRS and the tile-range math for a
// bounding box at a given zoom.
type Grid struct {
	crs    string
	extent orb.Bound
}

// knownExtents lists the projections the resolver accepts. EPSG:3857 (Web
// Mercator) and EPSG:4326 (geodetic) are the two CRSes the capabilities
// resolver (internal/capabilities) prefers and falls back to; anything
// else, including other codes a capabilities document may offer, is a
// config error, matching the spec's "reject unknown CRS names".
var knownExtents = map[string]orb.Bound{
	"EPSG:3857": {Min: orb.Point{-180, -85.05112878}, Max: orb.Point{180, 85.05112878}},
	"EPSG:4326": {Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}},
}

// Resolve returns the Grid for a CRS name. It takes no scheme: grid math
// is scheme-agnostic; only URL materialization (internal/urltemplate + the
// TMS y-inversion in enumerate.go) depends on scheme.
func Resolve(crs string) (*Grid, error) {
	if crs == "" {
		crs = "EPSG:3857"
	}
	norm := normalizeCRS(crs)
	extent, ok := knownExtents[norm]
	if !ok {
		return nil, fmt.Errorf("tiledl: unknown CRS %q", crs)
	}
	return &Grid{crs: norm, extent: extent}, nil
}

// Extent returns the projection's domain in its own units (here, WGS84
// degrees for both supported CRSes since orb/maptile works in lon/lat).
func (g *Grid) Extent() orb.Bound {
	return g.extent
}

// TileRangeForBBoxAndZ returns the inclusive tile rectangle a WGS84 bbox
// covers at zoom z under this grid.
func (g *Grid) TileRangeForBBoxAndZ(bbox [4]float64, z uint32) TileRange {
	minPoint := orb.Point{bbox[0], bbox[1]}
	maxPoint := orb.Point{bbox[2], bbox[3]}

	zoom := maptile.Zoom(z)
	minTile := maptile.At(minPoint, zoom)
	maxTile := maptile.At(maxPoint, zoom)

	minX, maxX := minTile.X, maxTile.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := minTile.Y, maxTile.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	return TileRange{Z: z, MinX: minX, MaxX: maxX, MinY: minY, MaxY: maxY}
}

// TileRange mirrors tiledl.TileRange; kept local so this package has no
// dependency on the root package (avoids an import cycle with the facade).
type TileRange struct {
	Z                     uint32
	MinX, MaxX, MinY, MaxY uint32
}

func (r TileRange) Count() int {
	return int(r.MaxX-r.MinX+1) * int(r.MaxY-r.MinY+1)
}

// normalizeCRS extracts the "EPSG:<code>" form from whatever shape the
// caller passed in, mirroring the normalization the capabilities resolver
// performs on GetCapabilities XML (spec §4.4): "EPSG:3857",
// "urn:ogc:def:crs:EPSG::3857", and bare "3857" all normalize the same way.
func normalizeCRS(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	idx := strings.LastIndex(upper, ":")
	code := upper
	if idx >= 0 {
		code = upper[idx+1:]
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return upper
	}
	return "EPSG:" + code
}
