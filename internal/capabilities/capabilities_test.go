package capabilities

import (
	"bytes"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGetter struct {
	body       string
	statusCode int
	err        error
}

func (s stubGetter) Get(url string) (*http.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	code := s.statusCode
	if code == 0 {
		code = 200
	}
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(bytes.NewBufferString(s.body)),
	}, nil
}

const wms130Body = `<?xml version="1.0"?>
<WMS_Capabilities>
  <Capability>
    <Layer>
      <CRS>EPSG:4326</CRS>
      <Layer>
        <CRS>EPSG:3857</CRS>
      </Layer>
    </Layer>
  </Capability>
</WMS_Capabilities>`

const wms111Body = `<?xml version="1.0"?>
<WMT_MS_Capabilities>
  <Capability>
    <Layer>
      <SRS>EPSG:4326</SRS>
    </Layer>
  </Capability>
</WMT_MS_Capabilities>`

const wmtsBody = `<?xml version="1.0"?>
<Capabilities>
  <Contents>
    <TileMatrixSet>
      <SupportedCRS>urn:ogc:def:crs:EPSG::3857</SupportedCRS>
    </TileMatrixSet>
  </Contents>
</Capabilities>`

func TestResolveWMS130Prefers3857(t *testing.T) {
	resetCache()
	r := resolveWith(stubGetter{body: wms130Body}, "https://example/wms?SERVICE=WMS", "wms")
	assert.Equal(t, "EPSG:3857", r.Default)
	assert.Equal(t, "wms", r.Source)
	assert.ElementsMatch(t, []string{"EPSG:4326", "EPSG:3857"}, r.SupportedCRS)
}

func TestResolveWMS111FallsBackTo4326(t *testing.T) {
	resetCache()
	r := resolveWith(stubGetter{body: wms111Body}, "https://example/wms", "wms")
	assert.Equal(t, "EPSG:4326", r.Default)
}

func TestResolveWMTSNormalizesURN(t *testing.T) {
	resetCache()
	r := resolveWith(stubGetter{body: wmtsBody}, "https://example/wmts?REQUEST=GetCapabilities", "wmts")
	assert.Equal(t, "EPSG:3857", r.Default)
	assert.Equal(t, "wmts", r.Source)
}

func TestResolveNetworkFailureFallsBack(t *testing.T) {
	resetCache()
	r := resolveWith(stubGetter{err: assertErr{}}, "https://example/wms", "wms")
	assert.Equal(t, fallback, r)
}

func TestResolveMalformedXMLFallsBack(t *testing.T) {
	resetCache()
	r := resolveWith(stubGetter{body: "not xml"}, "https://example/wms", "wms")
	assert.Equal(t, fallback, r)
}

func TestResolveMemoizesByHintAndURL(t *testing.T) {
	resetCache()
	calls := 0
	counting := countingGetter{inner: stubGetter{body: wms130Body}, calls: &calls}
	_ = resolveWith(counting, "https://example/wms", "wms")
	_ = resolveWith(counting, "https://example/wms", "wms")
	require.Equal(t, 1, calls)
}

func TestNormalizeCRS(t *testing.T) {
	cases := map[string]string{
		"EPSG:3857":                        "EPSG:3857",
		"urn:ogc:def:crs:EPSG::3857":       "EPSG:3857",
		"3857":                             "EPSG:3857",
		"":                                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeCRS(in), in)
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

type countingGetter struct {
	inner stubGetter
	calls *int
}

func (c countingGetter) Get(url string) (*http.Response, error) {
	*c.calls++
	return c.inner.Get(url)
}
