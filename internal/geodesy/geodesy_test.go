package geodesy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEllipsoidDerived(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 6356752.314245, WGS84.B(), 1e-6)
	assert.InDelta(t, 0.00669437999014, WGS84.EccSquared(), 1e-14)
	assert.InDelta(t, 6356583.8, Clarke1866.B(), 0.1)

	// radii of curvature agree at the equator for a sphere-like limit
	assert.InDelta(t, WGS84.A, WGS84.primeVertical(0), 1e-6)
	assert.Less(t, WGS84.meridional(0), WGS84.primeVertical(0))
}

func TestMolodenskyIdentity(t *testing.T) {
	t.Parallel()
	p := NewPoint(40, -100, 250, wgs84Datum)
	got := Molodensky(p, WGS84, WGS84, 0, 0, 0)
	assert.Equal(t, p, got)
}

func TestThreeParamRoundTrip(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	nad27, err := r.Get("NAS-C")
	require.NoError(t, err)

	tests := []struct {
		name          string
		lat, lon, hgt float64
	}{
		{"kansas", 39.2241, -98.5422, 600},
		{"maine", 45.0, -69.0, 100},
		{"florida", 25.8, -80.2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPoint(tt.lat, tt.lon, tt.hgt, nad27)
			w := nad27.ToWGS84(p)
			assert.Equal(t, "WGE", w.DatumCode())
			assert.False(t, w.HasNaN())

			back := nad27.FromWGS84(w)
			assert.Equal(t, "NAS-C", back.DatumCode())
			assert.InDelta(t, tt.lat, back.Lat, 1e-7)
			assert.InDelta(t, tt.lon, back.Lon, 1e-7)
			assert.InDelta(t, tt.hgt, back.Height, 0.01)
		})
	}
}

func TestMolodenskyAtPole(t *testing.T) {
	t.Parallel()
	nad27 := NewThreeParamDatum("NAS-C", "NAD27 CONUS mean", Clarke1866, -8, 160, 176)
	w := nad27.ToWGS84(NewPoint(90, 0, 0, nad27))

	assert.LessOrEqual(t, w.Lat, 90.0)
	assert.Equal(t, 0.0, w.Lon)
	assert.False(t, w.HasNaN())
}

func TestThreeParamShiftMagnitude(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	nad27, err := r.Get("NAS-C")
	require.NoError(t, err)

	p := NewPoint(39.2241, -98.5422, 0, nad27)
	w := WGS84Datum().Shift(p)

	// NAD27 to WGS 84 moves CONUS points by tens of metres
	dLat := math.Abs(w.Lat - p.Lat)
	dLon := math.Abs(w.Lon - p.Lon)
	assert.Greater(t, dLat+dLon, 1e-5)
	assert.Less(t, dLat, 1e-3)
	assert.Less(t, dLon, 2e-3)
	assert.Equal(t, "WGE", w.DatumCode())
}

func TestShiftSameDatum(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	d, err := r.Get("NAR-C")
	require.NoError(t, err)

	p := NewPoint(35, -120, 10, d)
	assert.Equal(t, p, d.Shift(p))

	// untagged points are adopted without moving
	untagged := NewPoint(35, -120, 10, nil)
	got := d.Shift(untagged)
	assert.Equal(t, "NAR-C", got.DatumCode())
	assert.Equal(t, 35.0, got.Lat)
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	codes := r.Codes()
	assert.Contains(t, codes, "WGE")
	assert.Contains(t, codes, "NAS-C")
	assert.True(t, sortedStrings(codes))

	_, err := r.Get("XYZ")
	assert.ErrorIs(t, err, ErrUnknownDatum)

	custom := NewThreeParamDatum("TST", "Test", GRS80, 1, 2, 3)
	r.Register(custom)
	d, err := r.Get("TST")
	require.NoError(t, err)
	assert.Same(t, custom, d)

	p := NewPoint(10, 10, 0, wgs84Datum)
	got, err := r.Transform(p, "TST")
	require.NoError(t, err)
	assert.Equal(t, "TST", got.DatumCode())

	_, err = r.Transform(p, "NOPE")
	assert.ErrorIs(t, err, ErrUnknownDatum)
}

func TestPointString(t *testing.T) {
	t.Parallel()
	p := NewPoint(1.5, -2.25, 3, wgs84Datum)
	assert.Equal(t, "(1.500000000, -2.250000000, 3.000) WGE", p.String())
	assert.False(t, p.HasNaN())
	assert.True(t, NewPoint(math.NaN(), 0, 0, nil).HasNaN())
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}
