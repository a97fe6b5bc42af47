package tiledl

import "github.com/openbasemap/tiledl/internal/capabilities"

// SupportedCRSResult reports the CRS codes a WMS/WMTS service offers.
type SupportedCRSResult struct {
	SupportedCRS []string
	Default      string
	Source       string // "wms", "wmts", or "assumed"
}

// GetSupportedCRS fetches and parses a GetCapabilities document to pick a
// CRS. serviceType, if non-empty, should be "wms" or "wmts"; otherwise it
// is inferred from the URL, trying both parsers if that fails. Any
// failure degrades to an assumed EPSG:3857/EPSG:4326 result rather than
// returning an error. Results are memoized by (serviceType, url) for the
// process lifetime.
func GetSupportedCRS(capabilitiesURL string, serviceType string) SupportedCRSResult {
	r := capabilities.Resolve(capabilitiesURL, serviceType)
	return SupportedCRSResult{
		SupportedCRS: r.SupportedCRS,
		Default:      r.Default,
		Source:       r.Source,
	}
}
