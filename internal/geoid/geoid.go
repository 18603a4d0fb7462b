// Package geoid converts between ellipsoidal and orthometric heights using
// gridded geoid models: the global EGM96 grid and collections of regional
// NGS grids.
package geoid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/geogrid/internal/fsutil"
	"github.com/banshee-data/geogrid/internal/geodesy"
	"github.com/banshee-data/geogrid/internal/units"
)

// Model kinds accepted by New.
const (
	KindIdentity = "identity"
	KindEGM96    = "egm96"
	KindNGS      = "ngs"
)

var (
	// DefaultEGM96ByteOrder is the byte order of the GeoTrans egm96.grd distribution.
	DefaultEGM96ByteOrder binary.ByteOrder = binary.BigEndian
	// DefaultNGSByteOrder is the byte order of NGS .bin geoid grids.
	DefaultNGSByteOrder binary.ByteOrder = binary.LittleEndian
)

var (
	// ErrNotOpen is returned by models whose Open has not succeeded.
	ErrNotOpen = errors.New("geoid model not open")
	// ErrNoCoverage is returned when no model covers a point.
	ErrNoCoverage = errors.New("no geoid coverage at point")
)

// Geoid is a model of the separation between the geoid and the ellipsoid.
type Geoid interface {
	// Open loads the model from path. A nil order selects the model's
	// default byte order.
	Open(path string, order binary.ByteOrder) error

	ShortName() string

	// OffsetFromEllipsoid returns the geoid height above the ellipsoid at p
	// in metres, or NaN when p is not covered or the model is not open.
	OffsetFromEllipsoid(p geodesy.GeodeticPoint) float64
}

// New returns an unopened model of the given kind.
func New(kind string, fsys fsutil.FileSystem) (Geoid, error) {
	switch kind {
	case KindIdentity:
		return Identity{}, nil
	case KindEGM96:
		return NewEGM96(fsys), nil
	case KindNGS:
		return NewNGS(fsys), nil
	}
	return nil, fmt.Errorf("unknown geoid kind %q", kind)
}

// Offset returns the offset at p and whether g covers p.
func Offset(g Geoid, p geodesy.GeodeticPoint) (float64, bool) {
	v := g.OffsetFromEllipsoid(p)
	return v, !math.IsNaN(v)
}

// EllipsoidToGeoidHeight converts an ellipsoidal height to a height above
// the geoid. The result is NaN when g does not cover the point.
func EllipsoidToGeoidHeight(g Geoid, lat, lon, ellipsoidHeight float64) float64 {
	return ellipsoidHeight - g.OffsetFromEllipsoid(geodesy.NewPoint(lat, lon, ellipsoidHeight, nil))
}

// GeoidToEllipsoidHeight converts a height above the geoid to an
// ellipsoidal height. The result is NaN when g does not cover the point.
func GeoidToEllipsoidHeight(g Geoid, lat, lon, geoidHeight float64) float64 {
	return geoidHeight + g.OffsetFromEllipsoid(geodesy.NewPoint(lat, lon, geoidHeight, nil))
}

// fixLatLon clamps latitude to [-90, 90] and wraps longitude into
// [lonMin, lonMin+360), the native range of a grid whose columns start at
// lonMin. Non-finite input comes back as NaN.
func fixLatLon(lat, lon, lonMin float64) (float64, float64) {
	return units.ClampLat(lat), lonMin + units.WrapLon360(lon-lonMin)
}

// Identity is the zero geoid: ellipsoidal and orthometric heights coincide.
type Identity struct{}

func (Identity) Open(string, binary.ByteOrder) error { return nil }
func (Identity) ShortName() string                   { return KindIdentity }

func (Identity) OffsetFromEllipsoid(geodesy.GeodeticPoint) float64 { return 0 }
