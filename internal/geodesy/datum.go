package geodesy

import (
	"math"

	"github.com/banshee-data/geogrid/internal/units"
)

// Datum is a geodetic reference frame that points can be shifted into.
type Datum interface {
	Code() string
	Name() string
	Ellipsoid() Ellipsoid

	// Shift converts p from its own datum into this datum. A point already
	// on a datum with the same code is returned unchanged.
	Shift(p GeodeticPoint) GeodeticPoint

	// ToWGS84 converts a point on this datum to WGS 84.
	ToWGS84(p GeodeticPoint) GeodeticPoint

	// FromWGS84 converts a WGS 84 point onto this datum.
	FromWGS84(p GeodeticPoint) GeodeticPoint
}

// ThreeParamDatum relates a datum to WGS 84 by a geocentric translation.
// DX, DY and DZ are the metres to add to move from this datum to WGS 84.
type ThreeParamDatum struct {
	code      string
	name      string
	ellipsoid Ellipsoid
	DX        float64
	DY        float64
	DZ        float64
}

// NewThreeParamDatum returns a datum on e translated by (dx, dy, dz) from WGS 84.
func NewThreeParamDatum(code, name string, e Ellipsoid, dx, dy, dz float64) *ThreeParamDatum {
	return &ThreeParamDatum{code: code, name: name, ellipsoid: e, DX: dx, DY: dy, DZ: dz}
}

func (d *ThreeParamDatum) Code() string         { return d.code }
func (d *ThreeParamDatum) Name() string         { return d.name }
func (d *ThreeParamDatum) Ellipsoid() Ellipsoid { return d.ellipsoid }

// Shift converts p into this datum through WGS 84.
func (d *ThreeParamDatum) Shift(p GeodeticPoint) GeodeticPoint {
	if p.DatumCode() == d.code {
		return p
	}
	if p.Datum == nil {
		return p.WithDatum(d)
	}
	return d.FromWGS84(p.Datum.ToWGS84(p))
}

// ToWGS84 applies the Molodensky shift from this datum to WGS 84.
func (d *ThreeParamDatum) ToWGS84(p GeodeticPoint) GeodeticPoint {
	out := Molodensky(p, d.ellipsoid, WGS84, d.DX, d.DY, d.DZ)
	return out.WithDatum(wgs84Datum)
}

// FromWGS84 applies the Molodensky shift from WGS 84 to this datum.
func (d *ThreeParamDatum) FromWGS84(p GeodeticPoint) GeodeticPoint {
	out := Molodensky(p, WGS84, d.ellipsoid, -d.DX, -d.DY, -d.DZ)
	return out.WithDatum(d)
}

// Molodensky applies the standard Molodensky transformation to p, moving it
// from ellipsoid from to ellipsoid to with the geocentric translation
// (dx, dy, dz) in metres. The returned point keeps p's datum tag.
func Molodensky(p GeodeticPoint, from, to Ellipsoid, dx, dy, dz float64) GeodeticPoint {
	da := to.A - from.A
	df := to.F - from.F
	if da == 0 && df == 0 && dx == 0 && dy == 0 && dz == 0 {
		return p
	}

	phi := units.DegToRad(p.Lat)
	lam := units.DegToRad(p.Lon)
	h := p.Height

	sinPhi, cosPhi := math.Sincos(phi)
	sinLam, cosLam := math.Sincos(lam)

	a := from.A
	b := from.B()
	e2 := from.EccSquared()
	rn := from.primeVertical(phi)
	rm := from.meridional(phi)

	dPhi := (-dx*sinPhi*cosLam - dy*sinPhi*sinLam + dz*cosPhi +
		da*(rn*e2*sinPhi*cosPhi)/a +
		df*(rm*a/b+rn*b/a)*sinPhi*cosPhi) / (rm + h)

	var dLam float64
	// The longitude correction is undefined at the poles.
	if math.Abs(cosPhi) > 1e-12 {
		dLam = (-dx*sinLam + dy*cosLam) / ((rn + h) * cosPhi)
	}

	dH := dx*cosPhi*cosLam + dy*cosPhi*sinLam + dz*sinPhi -
		da*a/rn + df*(b/a)*rn*sinPhi*sinPhi

	return GeodeticPoint{
		Lat:    units.ClampLat(p.Lat + units.RadToDeg(dPhi)),
		Lon:    p.Lon + units.RadToDeg(dLam),
		Height: h + dH,
		Datum:  p.Datum,
	}
}
