// Package geodesy holds the reference ellipsoids, geodetic points and
// three-parameter datums that the grid datums fall back to.
package geodesy

import "math"

// Ellipsoid is a reference ellipsoid given by its semi-major axis in metres
// and its flattening.
type Ellipsoid struct {
	Code string
	Name string
	A    float64
	F    float64
}

// Standard ellipsoids.
var (
	WGS84      = Ellipsoid{Code: "WE", Name: "WGS 84", A: 6378137.0, F: 1 / 298.257223563}
	GRS80      = Ellipsoid{Code: "RF", Name: "GRS 1980", A: 6378137.0, F: 1 / 298.257222101}
	Clarke1866 = Ellipsoid{Code: "CC", Name: "Clarke 1866", A: 6378206.4, F: 1 / 294.9786982}
)

// B returns the semi-minor axis.
func (e Ellipsoid) B() float64 {
	return e.A * (1 - e.F)
}

// EccSquared returns the first eccentricity squared.
func (e Ellipsoid) EccSquared() float64 {
	return e.F * (2 - e.F)
}

// primeVertical returns the prime vertical radius of curvature at latitude phi.
func (e Ellipsoid) primeVertical(phi float64) float64 {
	s := math.Sin(phi)
	return e.A / math.Sqrt(1-e.EccSquared()*s*s)
}

// meridional returns the meridional radius of curvature at latitude phi.
func (e Ellipsoid) meridional(phi float64) float64 {
	s := math.Sin(phi)
	e2 := e.EccSquared()
	return e.A * (1 - e2) / math.Pow(1-e2*s*s, 1.5)
}
