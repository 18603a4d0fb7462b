// Package testutil provides shared test utilities and grid fixtures.
package testutil

import (
	"bytes"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/banshee-data/geogrid/internal/fsutil"
	"github.com/banshee-data/geogrid/internal/geoid"
	"github.com/banshee-data/geogrid/internal/gridfile"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// ConstantGrid returns h.Rows*h.Columns copies of v.
func ConstantGrid(h gridfile.Header, v float32) []float32 {
	out := make([]float32, int(h.Rows)*int(h.Columns))
	for i := range out {
		out[i] = v
	}
	return out
}

// RegionHeader returns a header with spacing step whose rectangle is
// [minLon, maxLon] x [minLat, maxLat].
func RegionHeader(minLon, maxLon, minLat, maxLat, step float64) gridfile.Header {
	return gridfile.Header{
		Columns: int32((maxLon - minLon) / step),
		Rows:    int32((maxLat - minLat) / step),
		ZField:  1,
		OriginX: minLon,
		DeltaX:  step,
		OriginY: minLat,
		DeltaY:  step,
	}
}

// WriteGrid encodes a little-endian NADCON grid into fsys at path.
func WriteGrid(t *testing.T, fsys fsutil.FileSystem, path string, h gridfile.Header, values []float32) {
	t.Helper()
	var buf bytes.Buffer
	if err := gridfile.Encode(&buf, h, values, binary.LittleEndian); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := fsys.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteShiftPair writes dir/name.las and dir/name.los holding constant
// latitude and longitude shifts in arc-seconds.
func WriteShiftPair(t *testing.T, fsys fsutil.FileSystem, dir, name string, h gridfile.Header, dLat, dLon float32) {
	t.Helper()
	WriteGrid(t, fsys, filepath.Join(dir, name+".las"), h, ConstantGrid(h, dLat))
	WriteGrid(t, fsys, filepath.Join(dir, name+".los"), h, ConstantGrid(h, dLon))
}

// WriteEGM96 writes a global EGM96 grid with the given spacing where every
// post holds height.
func WriteEGM96(t *testing.T, fsys fsutil.FileSystem, path string, spacing float64, height float32) {
	t.Helper()
	h := geoid.EGM96Header{LatMin: -90, LatMax: 90, LonMin: 0, LonMax: 360, LatSpacing: spacing, LonSpacing: spacing}
	heights := make([]float32, h.Rows()*h.Cols())
	for i := range heights {
		heights[i] = height
	}
	var buf bytes.Buffer
	if err := geoid.EncodeEGM96(&buf, h, heights, geoid.DefaultEGM96ByteOrder); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := fsys.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteNGS writes an NGS .bin grid with constant height covering
// [southLat, southLat+(rows-1)*step] x [westLon, westLon+(cols-1)*step].
func WriteNGS(t *testing.T, fsys fsutil.FileSystem, path string, southLat, westLon, step float64, rows, cols int32, height float32) {
	t.Helper()
	h := geoid.NGSHeader{SouthLat: southLat, WestLon: westLon, DLat: step, DLon: step, Rows: rows, Cols: cols, Kind: 1}
	heights := make([]float32, int(rows)*int(cols))
	for i := range heights {
		heights[i] = height
	}
	var buf bytes.Buffer
	if err := geoid.EncodeNGS(&buf, h, heights, geoid.DefaultNGSByteOrder); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := fsys.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
