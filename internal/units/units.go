// Package units provides shared constants and conversions for angular units
package units

import "math"

// Unit constants
const (
	Degrees    = "deg"
	ArcSeconds = "arcsec"
	Radians    = "rad"
)

// ArcSecondsPerDegree is the number of arc-seconds in one degree
const ArcSecondsPerDegree = 3600.0

// ValidUnits contains all valid unit values
var ValidUnits = []string{Degrees, ArcSeconds, Radians}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "deg, arcsec, rad"
}

// ConvertAngle converts an angle in degrees to the target units
func ConvertAngle(deg float64, targetUnits string) float64 {
	switch targetUnits {
	case ArcSeconds:
		return deg * ArcSecondsPerDegree
	case Radians:
		return deg * math.Pi / 180
	case Degrees:
		return deg
	default:
		return deg // default to degrees if unknown unit
	}
}

// ArcSecToDeg converts arc-seconds to degrees.
func ArcSecToDeg(arcsec float64) float64 {
	return arcsec / ArcSecondsPerDegree
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// WrapLon180 wraps a longitude in degrees into [-180, 180).
func WrapLon180(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// WrapLon360 wraps a longitude in degrees into [0, 360).
func WrapLon360(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	return lon
}

// ClampLat clamps a latitude in degrees into [-90, 90].
func ClampLat(lat float64) float64 {
	if lat > 90 {
		return 90
	}
	if lat < -90 {
		return -90
	}
	return lat
}
