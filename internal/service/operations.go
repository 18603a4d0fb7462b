package service

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/geogrid/internal/geodesy"
	"github.com/banshee-data/geogrid/internal/gridfile"
	"github.com/banshee-data/geogrid/internal/nadcon"
	"github.com/banshee-data/geogrid/internal/render"
	"github.com/banshee-data/geogrid/internal/security"
)

// ErrInvalidPoint is returned for coordinates that are not finite or lie
// outside [-90, 90] latitude.
var ErrInvalidPoint = errors.New("invalid coordinate")

// Sampling limits for surfaces and profiles.
const (
	MaxSurfaceSamples = 1000
	MaxProfileSamples = 10000
)

// ValidatePoint checks that lat, lon and h are usable coordinates.
func ValidatePoint(lat, lon, h float64) error {
	for _, v := range []float64{lat, lon, h} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: lat=%g lon=%g h=%g", ErrInvalidPoint, lat, lon, h)
		}
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %g outside [-90, 90]", ErrInvalidPoint, lat)
	}
	return nil
}

// ShiftResult is the outcome of a datum shift.
type ShiftResult struct {
	From   geodesy.GeodeticPoint
	Point  geodesy.GeodeticPoint
	Method string
}

// Shift moves p onto the datum registered under to. Grid datums report
// whether the grids or the parametric fallback were used.
func (s *Service) Shift(p geodesy.GeodeticPoint, to string) (ShiftResult, error) {
	if err := ValidatePoint(p.Lat, p.Lon, p.Height); err != nil {
		return ShiftResult{}, err
	}
	d, err := s.registry.Get(to)
	if err != nil {
		return ShiftResult{}, err
	}

	res := ShiftResult{From: p}
	switch {
	case p.DatumCode() == to:
		res.Point, res.Method = p, nadcon.MethodUnchanged.String()
	default:
		if gd, ok := d.(*nadcon.GridDatum); ok {
			var m nadcon.Method
			res.Point, m = gd.ShiftMethod(p)
			res.Method = m.String()
		} else {
			res.Point, res.Method = d.Shift(p), nadcon.MethodParametric.String()
		}
	}
	return res, nil
}

// ShiftLatLon shifts (lat, lon, h) from the datum code from to the datum
// code to.
func (s *Service) ShiftLatLon(lat, lon, h float64, from, to string) (ShiftResult, error) {
	src, err := s.registry.Get(from)
	if err != nil {
		return ShiftResult{}, err
	}
	return s.Shift(geodesy.NewPoint(lat, lon, h, src), to)
}

// GeoidResult is a geoid height lookup.
type GeoidResult struct {
	Lat               float64
	Lon               float64
	EllipsoidHeight   float64
	Offset            float64
	OrthometricHeight float64
	Model             string
}

// GeoidHeight converts an ellipsoid height at (lat, lon) to a height above
// the geoid using the first covering model.
func (s *Service) GeoidHeight(lat, lon, h float64) (GeoidResult, error) {
	if err := ValidatePoint(lat, lon, h); err != nil {
		return GeoidResult{}, err
	}
	off, model, err := s.geoids.Lookup(geodesy.NewPoint(lat, lon, h, nil))
	if err != nil {
		return GeoidResult{}, err
	}
	return GeoidResult{
		Lat:               lat,
		Lon:               lon,
		EllipsoidHeight:   h,
		Offset:            off,
		OrthometricHeight: h - off,
		Model:             model,
	}, nil
}

// GridPath maps a grid file name such as "conus.las" to its path in the
// NADCON directory, rejecting names that leave it.
func (s *Service) GridPath(name string) (string, error) {
	return security.JoinWithin(s.cfg.GetNadconDir(), name)
}

// OpenGrid opens a NADCON grid file by name. The caller closes it.
func (s *Service) OpenGrid(name string) (*gridfile.File, error) {
	path, err := s.GridPath(name)
	if err != nil {
		return nil, err
	}
	g := gridfile.New(s.fsys, s.cfg.GetNadconByteOrder())
	if err := g.Open(path); err != nil {
		return nil, err
	}
	return g, nil
}

// GridHeader returns the header and bounds of a NADCON grid file.
func (s *Service) GridHeader(name string) (gridfile.Header, r2.Box, error) {
	g, err := s.OpenGrid(name)
	if err != nil {
		return gridfile.Header{}, r2.Box{}, err
	}
	defer g.Close()
	return g.Header(), g.Bounds(), nil
}

func checkSamples(cols, rows int) error {
	if cols < 2 || rows < 2 || cols > MaxSurfaceSamples || rows > MaxSurfaceSamples {
		return fmt.Errorf("surface size %dx%d outside 2..%d", cols, rows, MaxSurfaceSamples)
	}
	return nil
}

// GridSurface samples the shift values of a NADCON grid over its bounds.
func (s *Service) GridSurface(name string, cols, rows int) (*render.Surface, error) {
	if err := checkSamples(cols, rows); err != nil {
		return nil, err
	}
	g, err := s.OpenGrid(name)
	if err != nil {
		return nil, err
	}
	defer g.Close()
	return render.Sample(g.Bounds(), cols, rows, g.ShiftAtLatLon)
}

// GeoidSurface samples the geoid offset over b, X longitude and Y latitude.
func (s *Service) GeoidSurface(b r2.Box, cols, rows int) (*render.Surface, error) {
	if err := checkSamples(cols, rows); err != nil {
		return nil, err
	}
	return render.Sample(b, cols, rows, s.geoidOffset)
}

// GeoidProfile samples the geoid offset at n points from (lat0, lon0) to
// (lat1, lon1).
func (s *Service) GeoidProfile(lat0, lon0, lat1, lon1 float64, n int) ([]render.ProfilePoint, error) {
	if err := ValidatePoint(lat0, lon0, 0); err != nil {
		return nil, err
	}
	if err := ValidatePoint(lat1, lon1, 0); err != nil {
		return nil, err
	}
	if n > MaxProfileSamples {
		return nil, fmt.Errorf("profile of %d samples exceeds %d", n, MaxProfileSamples)
	}
	return render.Profile(lat0, lon0, lat1, lon1, n, s.geoidOffset)
}

func (s *Service) geoidOffset(lat, lon float64) float64 {
	return s.geoids.OffsetFromEllipsoid(geodesy.NewPoint(lat, lon, 0, nil))
}
