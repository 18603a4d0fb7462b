package geoid

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/geogrid/internal/fsutil"
	"github.com/banshee-data/geogrid/internal/geodesy"
)

// coarseEGM96 is a 45 degree global grid: 5 rows by 9 columns.
var coarseEGM96 = EGM96Header{LatMin: -90, LatMax: 90, LonMin: 0, LonMax: 360, LatSpacing: 45, LonSpacing: 45}

// coarseHeights stores row*10+col, row 0 at the north pole.
func coarseHeights() []float32 {
	h := make([]float32, coarseEGM96.Rows()*coarseEGM96.Cols())
	for r := 0; r < coarseEGM96.Rows(); r++ {
		for c := 0; c < coarseEGM96.Cols(); c++ {
			h[r*coarseEGM96.Cols()+c] = float32(r*10 + c)
		}
	}
	return h
}

func writeEGM96(t *testing.T, fsys *fsutil.MemoryFileSystem, path string, order binary.ByteOrder) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, EncodeEGM96(&buf, coarseEGM96, coarseHeights(), order))
	require.NoError(t, fsys.WriteFile(path, buf.Bytes(), 0644))
}

func writeNGS(t *testing.T, fsys *fsutil.MemoryFileSystem, path string, h NGSHeader, heights []float32) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, EncodeNGS(&buf, h, heights, binary.LittleEndian))
	require.NoError(t, fsys.WriteFile(path, buf.Bytes(), 0644))
}

func constant(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func pt(lat, lon float64) geodesy.GeodeticPoint {
	return geodesy.NewPoint(lat, lon, 0, nil)
}

func TestEGM96Interpolation(t *testing.T) {
	t.Parallel()
	mfs := fsutil.NewMemoryFileSystem()
	writeEGM96(t, mfs, "/egm96.grd", binary.BigEndian)

	g := NewEGM96(mfs)
	require.NoError(t, g.Open("/egm96.grd", nil))
	assert.Equal(t, "egm96", g.ShortName())
	assert.Equal(t, coarseEGM96, g.Header())

	tests := []struct {
		name     string
		lat, lon float64
		want     float64
	}{
		{"node", 45, 90, 12},
		{"negative longitude wraps", 45, -90, 16},
		{"cell center", 22.5, 22.5, 15.5},
		{"south pole uses last row", -90, 0, 40},
		{"east edge uses last column", 0, 360, 20},
		{"latitude clamped", 100, 45, 1},
		{"north pole", 90, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, g.OffsetFromEllipsoid(pt(tt.lat, tt.lon)), 1e-9)
		})
	}
}

func TestEGM96LastColumnCell(t *testing.T) {
	t.Parallel()
	mfs := fsutil.NewMemoryFileSystem()
	writeEGM96(t, mfs, "/egm96.grd", binary.BigEndian)
	g := NewEGM96(mfs)
	require.NoError(t, g.Open("/egm96.grd", binary.BigEndian))

	// 337.5 lies in the last cell, between columns 7 and 8 of row 2
	assert.InDelta(t, 27.5, g.OffsetFromEllipsoid(pt(0, 337.5)), 1e-9)
	assert.InDelta(t, 27.5, g.OffsetFromEllipsoid(pt(0, -22.5)), 1e-9)
}

func TestEGM96SignedLongitudeRange(t *testing.T) {
	t.Parallel()
	h := EGM96Header{LatMin: -90, LatMax: 90, LonMin: -180, LonMax: 180, LatSpacing: 45, LonSpacing: 45}
	heights := make([]float32, h.Rows()*h.Cols())
	for i := range heights {
		heights[i] = float32(i % h.Cols())
	}
	var buf bytes.Buffer
	require.NoError(t, EncodeEGM96(&buf, h, heights, binary.BigEndian))
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/egm96.grd", buf.Bytes(), 0644))

	g := NewEGM96(mfs)
	require.NoError(t, g.Open("/egm96.grd", nil))

	tests := []struct {
		name     string
		lat, lon float64
		want     float64
	}{
		{"western hemisphere", 10, -10, 170.0 / 45},
		{"west edge", 0, -180, 0},
		{"eastern hemisphere", 0, 90, 6},
		{"positive form of a western longitude", 10, 350, 170.0 / 45},
		{"below west edge wraps", 0, -540, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, g.OffsetFromEllipsoid(pt(tt.lat, tt.lon)), 1e-6)
		})
	}
}

func TestNonFiniteInputIsNaN(t *testing.T) {
	t.Parallel()
	mfs := fsutil.NewMemoryFileSystem()
	writeEGM96(t, mfs, "/egm96.grd", binary.BigEndian)
	writeNGS(t, mfs, "/ngs/g2012ba.bin",
		NGSHeader{SouthLat: 30, WestLon: 240, DLat: 1, DLon: 1, Rows: 11, Cols: 11, Kind: 1},
		constant(121, -30))

	egm := NewEGM96(mfs)
	require.NoError(t, egm.Open("/egm96.grd", nil))
	ngs := NewNGS(mfs)
	require.NoError(t, ngs.Open("/ngs", nil))

	inputs := []struct {
		name     string
		lat, lon float64
	}{
		{"NaN latitude", math.NaN(), 10},
		{"NaN longitude", 35, math.NaN()},
		{"+Inf longitude", 35, math.Inf(1)},
		{"-Inf longitude", 35, math.Inf(-1)},
	}
	for _, g := range []Geoid{egm, ngs} {
		for _, in := range inputs {
			t.Run(g.ShortName()+"/"+in.name, func(t *testing.T) {
				assert.NotPanics(t, func() {
					assert.True(t, math.IsNaN(g.OffsetFromEllipsoid(pt(in.lat, in.lon))))
				})
			})
		}
	}

	m := NewManager(egm, ngs)
	_, _, err := m.Lookup(pt(math.NaN(), 10))
	assert.ErrorIs(t, err, ErrNoCoverage)
}

func TestEGM96Compressed(t *testing.T) {
	t.Parallel()
	var raw bytes.Buffer
	require.NoError(t, EncodeEGM96(&raw, coarseEGM96, coarseHeights(), binary.BigEndian))

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(raw.Bytes(), nil)
	require.NoError(t, enc.Close())

	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/egm96.grd.zst", compressed, 0644))

	g := NewEGM96(mfs)
	require.NoError(t, g.Open("/egm96.grd.zst", nil))
	assert.InDelta(t, 12.0, g.OffsetFromEllipsoid(pt(45, 90)), 1e-9)
}

func TestEGM96OpenErrors(t *testing.T) {
	t.Parallel()
	mfs := fsutil.NewMemoryFileSystem()

	g := NewEGM96(mfs)
	assert.True(t, math.IsNaN(g.OffsetFromEllipsoid(pt(0, 0))), "unopened model")
	assert.Error(t, g.Open("/missing.grd", nil))

	// header only
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, [6]float32{-90, 90, 0, 360, 45, 45}))
	require.NoError(t, mfs.WriteFile("/short.grd", buf.Bytes(), 0644))
	assert.Error(t, g.Open("/short.grd", nil))
	assert.True(t, math.IsNaN(g.OffsetFromEllipsoid(pt(0, 0))))

	// little-endian file read with the default big-endian order has garbage extents
	writeEGM96(t, mfs, "/le.grd", binary.LittleEndian)
	assert.Error(t, g.Open("/le.grd", nil))
	require.NoError(t, g.Open("/le.grd", binary.LittleEndian))
}

func TestHeightRoundTrip(t *testing.T) {
	t.Parallel()
	mfs := fsutil.NewMemoryFileSystem()
	writeEGM96(t, mfs, "/egm96.grd", binary.BigEndian)
	g := NewEGM96(mfs)
	require.NoError(t, g.Open("/egm96.grd", nil))

	for _, p := range [][3]float64{{39.1, -104.8, 1609.3}, {-33.9, 151.2, 58}, {0, 0, -12.5}} {
		orthometric := EllipsoidToGeoidHeight(g, p[0], p[1], p[2])
		back := GeoidToEllipsoidHeight(g, p[0], p[1], orthometric)
		assert.InDelta(t, p[2], back, 1e-9)
	}

	off := g.OffsetFromEllipsoid(pt(45, 90))
	assert.InDelta(t, 100-off, EllipsoidToGeoidHeight(g, 45, 90, 100), 1e-12)
}

func TestNaNPropagates(t *testing.T) {
	t.Parallel()
	g := NewEGM96(fsutil.NewMemoryFileSystem())
	assert.True(t, math.IsNaN(EllipsoidToGeoidHeight(g, 10, 10, 100)))
	assert.True(t, math.IsNaN(GeoidToEllipsoidHeight(g, 10, 10, 100)))

	_, ok := Offset(g, pt(10, 10))
	assert.False(t, ok)
}

func TestIdentity(t *testing.T) {
	t.Parallel()
	var g Geoid = Identity{}
	require.NoError(t, g.Open("", nil))
	assert.Equal(t, "identity", g.ShortName())
	assert.Equal(t, 0.0, g.OffsetFromEllipsoid(pt(12, 34)))
	assert.Equal(t, 250.0, EllipsoidToGeoidHeight(g, 12, 34, 250))
}

func TestNGSBilinear(t *testing.T) {
	t.Parallel()
	mfs := fsutil.NewMemoryFileSystem()
	h := NGSHeader{SouthLat: 10, WestLon: 20, DLat: 1, DLon: 1, Rows: 2, Cols: 2, Kind: 1}
	writeNGS(t, mfs, "/ngs/g2009u01.bin", h, []float32{0, 10, 20, 30})

	g := NewNGS(mfs)
	require.NoError(t, g.Open("/ngs", nil))
	assert.Equal(t, "geoid09", g.ShortName())

	assert.InDelta(t, 15.0, g.OffsetFromEllipsoid(pt(10.5, 20.5)), 1e-9)
	assert.InDelta(t, 2.5, g.OffsetFromEllipsoid(pt(10, 20.25)), 1e-9)
	assert.InDelta(t, 30.0, g.OffsetFromEllipsoid(pt(11, 21)), 1e-9)
	assert.True(t, math.IsNaN(g.OffsetFromEllipsoid(pt(11.01, 21))))
}

func TestNGSFirstFileWins(t *testing.T) {
	t.Parallel()
	mfs := fsutil.NewMemoryFileSystem()
	// lon 240..250 is -120..-110
	a := NGSHeader{SouthLat: 30, WestLon: 240, DLat: 1, DLon: 1, Rows: 11, Cols: 11, Kind: 1}
	b := NGSHeader{SouthLat: 35, WestLon: 245, DLat: 1, DLon: 1, Rows: 11, Cols: 11, Kind: 1}
	writeNGS(t, mfs, "/ngs/g2012ba.bin", a, constant(121, -30))
	writeNGS(t, mfs, "/ngs/g2012bb.bin", b, constant(121, -20))
	require.NoError(t, mfs.WriteFile("/ngs/README", []byte("not a grid"), 0644))

	g := NewNGS(mfs)
	require.NoError(t, g.Open("/ngs", binary.LittleEndian))
	assert.Equal(t, "geoid12", g.ShortName())
	assert.Equal(t, []string{"/ngs/g2012ba.bin", "/ngs/g2012bb.bin"}, g.Files())

	assert.InDelta(t, -30.0, g.OffsetFromEllipsoid(pt(37, -112)), 1e-6, "overlap picks first file")
	assert.InDelta(t, -20.0, g.OffsetFromEllipsoid(pt(44, -106)), 1e-6)
	assert.InDelta(t, -20.0, g.OffsetFromEllipsoid(pt(44, 254)), 1e-6)
	assert.True(t, math.IsNaN(g.OffsetFromEllipsoid(pt(0, 0))))
}

func TestNGSSingleFileAndBadGrids(t *testing.T) {
	t.Parallel()
	mfs := fsutil.NewMemoryFileSystem()
	good := NGSHeader{SouthLat: 18, WestLon: -161, DLat: 0.5, DLon: 0.5, Rows: 3, Cols: 3, Kind: 1}
	writeNGS(t, mfs, "/hi/g2003h01.bin", good, constant(9, 12))

	g := NewNGS(mfs)
	require.NoError(t, g.Open("/hi/g2003h01.bin", nil))
	assert.Equal(t, "geoid03", g.ShortName())
	// negative west longitude is normalised to degrees east
	assert.InDelta(t, 12.0, g.OffsetFromEllipsoid(pt(18.5, -160.5)), 1e-6)

	// header claims more heights than the file holds
	var buf bytes.Buffer
	short := NGSHeader{SouthLat: 0, WestLon: 0, DLat: 1, DLon: 1, Rows: 4, Cols: 4, Kind: 1}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, short))
	require.NoError(t, mfs.WriteFile("/bad/gshort.bin", buf.Bytes(), 0644))
	require.NoError(t, mfs.WriteFile("/bad/gtiny.bin", []byte{1, 2, 3}, 0644))

	bad := NewNGS(mfs)
	require.NoError(t, bad.Open("/bad", nil))
	assert.Equal(t, []string{"/bad/gshort.bin"}, bad.Files())
	assert.Equal(t, "ngs", bad.ShortName())
	assert.True(t, math.IsNaN(bad.OffsetFromEllipsoid(pt(1, 1))))

	empty := NewNGS(mfs)
	require.NoError(t, mfs.MkdirAll("/empty", 0755))
	assert.ErrorIs(t, empty.Open("/empty", nil), ErrNoGrids)
	assert.True(t, math.IsNaN(empty.OffsetFromEllipsoid(pt(1, 1))))
}

func TestManager(t *testing.T) {
	t.Parallel()
	mfs := fsutil.NewMemoryFileSystem()
	writeEGM96(t, mfs, "/egm96.grd", binary.BigEndian)
	h := NGSHeader{SouthLat: 30, WestLon: 240, DLat: 1, DLon: 1, Rows: 11, Cols: 11, Kind: 1}
	writeNGS(t, mfs, "/ngs/g2012ba.bin", h, constant(121, -30))

	ngs := NewNGS(mfs)
	require.NoError(t, ngs.Open("/ngs", nil))
	egm := NewEGM96(mfs)
	require.NoError(t, egm.Open("/egm96.grd", nil))

	m := NewManager(ngs)
	m.Add(egm)
	assert.Len(t, m.Geoids(), 2)

	v, name, err := m.Lookup(pt(35, -115))
	require.NoError(t, err)
	assert.Equal(t, "geoid12", name)
	assert.InDelta(t, -30.0, v, 1e-6)

	v, name, err = m.Lookup(pt(45, 90))
	require.NoError(t, err)
	assert.Equal(t, "egm96", name)
	assert.InDelta(t, 12.0, v, 1e-9)

	hgt, err := m.EllipsoidToGeoidHeight(35, -115, 100)
	require.NoError(t, err)
	assert.InDelta(t, 130.0, hgt, 1e-6)
	back, err := m.GeoidToEllipsoidHeight(35, -115, hgt)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, back, 1e-6)

	found, ok := m.Find("egm96")
	assert.True(t, ok)
	assert.Same(t, egm, found)
	_, ok = m.Find("osgm15")
	assert.False(t, ok)

	only := NewManager(ngs)
	_, _, err = only.Lookup(pt(0, 0))
	assert.ErrorIs(t, err, ErrNoCoverage)
	assert.True(t, math.IsNaN(only.OffsetFromEllipsoid(pt(0, 0))))
	_, err = only.EllipsoidToGeoidHeight(0, 0, 1)
	assert.ErrorIs(t, err, ErrNoCoverage)
}

func TestNew(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{KindIdentity, KindEGM96, KindNGS} {
		g, err := New(kind, nil)
		require.NoError(t, err)
		assert.NotNil(t, g)
	}
	_, err := New("osgm15", nil)
	assert.Error(t, err)
}
