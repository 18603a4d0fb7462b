package geodesy

import (
	"fmt"
	"math"
)

// GeodeticPoint is a latitude/longitude in degrees and a height in metres
// above the ellipsoid of Datum. Points are values; operations return new
// points instead of modifying their input.
type GeodeticPoint struct {
	Lat    float64
	Lon    float64
	Height float64
	Datum  Datum
}

// NewPoint returns a point on datum d.
func NewPoint(lat, lon, height float64, d Datum) GeodeticPoint {
	return GeodeticPoint{Lat: lat, Lon: lon, Height: height, Datum: d}
}

// WithDatum returns a copy of p tagged with d.
func (p GeodeticPoint) WithDatum(d Datum) GeodeticPoint {
	p.Datum = d
	return p
}

// DatumCode returns the code of the point's datum, or "" when untagged.
func (p GeodeticPoint) DatumCode() string {
	if p.Datum == nil {
		return ""
	}
	return p.Datum.Code()
}

// HasNaN reports whether any coordinate is NaN.
func (p GeodeticPoint) HasNaN() bool {
	return math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsNaN(p.Height)
}

func (p GeodeticPoint) String() string {
	return fmt.Sprintf("(%.9f, %.9f, %.3f) %s", p.Lat, p.Lon, p.Height, p.DatumCode())
}
