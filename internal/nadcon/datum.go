// Package nadcon shifts points between NAD27 and NAD83 using the NADCON
// regional grid pairs, falling back to a three-parameter shift where no
// grid covers the point.
package nadcon

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/geogrid/internal/fsutil"
	"github.com/banshee-data/geogrid/internal/geodesy"
	"github.com/banshee-data/geogrid/internal/gridfile"
	"github.com/banshee-data/geogrid/internal/monitoring"
	"github.com/banshee-data/geogrid/internal/units"
)

// Datum codes served by the grids.
const (
	CodeNAD83 = "NAR-C"
	CodeNAD27 = "NAS-C"
)

const (
	inverseIterations = 4
	inverseTolerance  = 1e-11 // degrees
)

// ErrNoGrid is returned by Lookup when no region grid covers a point.
var ErrNoGrid = errors.New("no NADCON grid covers point")

// Method records how a point was moved by Shift.
type Method int

const (
	// MethodUnchanged means the point was already on the datum.
	MethodUnchanged Method = iota
	// MethodGrid means the NADCON grids were interpolated.
	MethodGrid
	// MethodParametric means the three-parameter fallback was used.
	MethodParametric
)

func (m Method) String() string {
	switch m {
	case MethodUnchanged:
		return "unchanged"
	case MethodGrid:
		return "grid"
	case MethodParametric:
		return "parametric"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// regionGrids is the lazily opened grid pair of one region.
type regionGrids struct {
	attempted bool
	lat       *gridfile.File
	lon       *gridfile.File
	err       error
}

// GridDatum is a datum reached from another datum family through NADCON
// grids. It satisfies geodesy.Datum; conversions to and from WGS 84 are
// delegated to the parametric fallback.
type GridDatum struct {
	code         string
	name         string
	sourceFamily string
	inverse      bool
	fallback     *geodesy.ThreeParamDatum

	fsys    fsutil.FileSystem
	order   binary.ByteOrder
	dir     string
	regions []Region
	logf    func(format string, v ...interface{})

	// mu guards grids and current.
	mu    sync.Mutex
	grids []regionGrids
	// current indexes the region that matched the previous query, or -1.
	current int
}

// Option configures a GridDatum.
type Option func(*GridDatum)

// WithFileSystem reads grids from fsys instead of the OS filesystem.
func WithFileSystem(fsys fsutil.FileSystem) Option {
	return func(d *GridDatum) { d.fsys = fsys }
}

// WithByteOrder sets the byte order of the grid files.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(d *GridDatum) { d.order = order }
}

// WithRegions replaces DefaultRegions. Order is lookup order.
func WithRegions(regions []Region) Option {
	return func(d *GridDatum) { d.regions = append([]Region(nil), regions...) }
}

// NewNAD83 returns the datum that moves NAD27 (NAS-*) points onto NAD83
// with the grids in dir. fallback is used outside grid coverage and for
// points on other datums.
func NewNAD83(dir string, fallback *geodesy.ThreeParamDatum, opts ...Option) *GridDatum {
	return newGridDatum(CodeNAD83, "NAD83 (NADCON)", "NAS", false, dir, fallback, opts)
}

// NewNAD27 returns the datum that moves NAD83 (NAR-*) points back onto
// NAD27 by inverting the grids in dir.
func NewNAD27(dir string, fallback *geodesy.ThreeParamDatum, opts ...Option) *GridDatum {
	return newGridDatum(CodeNAD27, "NAD27 (NADCON)", "NAR", true, dir, fallback, opts)
}

func newGridDatum(code, name, family string, inverse bool, dir string, fallback *geodesy.ThreeParamDatum, opts []Option) *GridDatum {
	d := &GridDatum{
		code:         code,
		name:         name,
		sourceFamily: family,
		inverse:      inverse,
		fallback:     fallback,
		fsys:         fsutil.OSFileSystem{},
		order:        binary.LittleEndian,
		dir:          dir,
		regions:      DefaultRegions(),
		logf:         monitoring.Component("nadcon"),
		current:      -1,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.grids = make([]regionGrids, len(d.regions))
	return d
}

func (d *GridDatum) Code() string { return d.code }
func (d *GridDatum) Name() string { return d.name }

func (d *GridDatum) Ellipsoid() geodesy.Ellipsoid { return d.fallback.Ellipsoid() }

// Regions returns the regions in lookup order.
func (d *GridDatum) Regions() []Region {
	return append([]Region(nil), d.regions...)
}

// ToWGS84 uses the parametric fallback.
func (d *GridDatum) ToWGS84(p geodesy.GeodeticPoint) geodesy.GeodeticPoint {
	return d.fallback.ToWGS84(p)
}

// FromWGS84 uses the parametric fallback and tags the result with d.
func (d *GridDatum) FromWGS84(p geodesy.GeodeticPoint) geodesy.GeodeticPoint {
	return d.fallback.FromWGS84(p).WithDatum(d)
}

// Shift moves p onto this datum.
func (d *GridDatum) Shift(p geodesy.GeodeticPoint) geodesy.GeodeticPoint {
	out, _ := d.ShiftMethod(p)
	return out
}

// ShiftMethod moves p onto this datum and reports how it was moved.
// Points from the grid's source family are shifted with the grids when a
// region covers them; everything else goes through the fallback.
func (d *GridDatum) ShiftMethod(p geodesy.GeodeticPoint) (geodesy.GeodeticPoint, Method) {
	code := p.DatumCode()
	if code == d.code {
		return p, MethodUnchanged
	}
	// Other members of the target family (NAR-A, NAR-E) are already on it.
	if family(code) == family(d.code) {
		return p.WithDatum(d), MethodUnchanged
	}
	if !strings.HasPrefix(code, d.sourceFamily) {
		return d.parametric(p), MethodParametric
	}

	var (
		out geodesy.GeodeticPoint
		ok  bool
	)
	if d.inverse {
		out, ok = d.inverseShift(p)
	} else {
		out, ok = d.forwardShift(p)
	}
	if !ok {
		return d.parametric(p), MethodParametric
	}
	return out.WithDatum(d), MethodGrid
}

// family returns the three-letter datum code that prefixes a full code
// such as "NAR-C".
func family(code string) string {
	if len(code) < 3 {
		return code
	}
	return code[:3]
}

func (d *GridDatum) parametric(p geodesy.GeodeticPoint) geodesy.GeodeticPoint {
	if p.Datum == nil {
		return p.WithDatum(d)
	}
	return d.FromWGS84(p.Datum.ToWGS84(p))
}

// forwardShift applies lat + dLat/3600, lon - dLon/3600.
func (d *GridDatum) forwardShift(p geodesy.GeodeticPoint) (geodesy.GeodeticPoint, bool) {
	dLat, dLon, err := d.Lookup(p.Lat, p.Lon)
	if err != nil {
		return p, false
	}
	p.Lat += units.ArcSecToDeg(dLat)
	p.Lon -= units.ArcSecToDeg(dLon)
	return p, true
}

// inverseShift finds the point whose forward shift lands on p.
func (d *GridDatum) inverseShift(p geodesy.GeodeticPoint) (geodesy.GeodeticPoint, bool) {
	q := p
	for i := 0; i < inverseIterations; i++ {
		dLat, dLon, err := d.Lookup(q.Lat, q.Lon)
		if err != nil {
			return p, false
		}
		nextLat := p.Lat - units.ArcSecToDeg(dLat)
		nextLon := p.Lon + units.ArcSecToDeg(dLon)
		done := math.Abs(nextLat-q.Lat) < inverseTolerance && math.Abs(nextLon-q.Lon) < inverseTolerance
		q.Lat, q.Lon = nextLat, nextLon
		if done {
			break
		}
	}
	return q, true
}

// Lookup returns the interpolated latitude and longitude shifts in
// arc-seconds at (lat, lon). ErrNoGrid is returned outside every region.
func (d *GridDatum) Lookup(lat, lon float64) (dLat, dLon float64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx, qlon := d.checkGrid(lat, lon)
	if idx < 0 {
		return math.NaN(), math.NaN(), fmt.Errorf("%w: lat=%g lon=%g", ErrNoGrid, lat, lon)
	}
	g := &d.grids[idx]
	if g.err != nil {
		return math.NaN(), math.NaN(), g.err
	}
	if dLat, err = g.lat.Lookup(lat, qlon); err != nil {
		return math.NaN(), math.NaN(), err
	}
	if dLon, err = g.lon.Lookup(lat, qlon); err != nil {
		return math.NaN(), math.NaN(), err
	}
	return dLat, dLon, nil
}

// CurrentRegion returns the region matched by the previous lookup.
func (d *GridDatum) CurrentRegion() (Region, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current < 0 {
		return Region{}, false
	}
	return d.regions[d.current], true
}

// checkGrid selects the first region containing the point, opening its
// grids on first use, and records it as current. It returns the region
// index, or -1, and the longitude in the region's range. Longitudes east
// of the antimeridian are retried 360 degrees west. Callers hold mu.
func (d *GridDatum) checkGrid(lat, lon float64) (int, float64) {
	lon = units.WrapLon180(lon)
	candidates := []float64{lon}
	if lon > 0 {
		candidates = append(candidates, lon-360)
	}

	for _, qlon := range candidates {
		v := r2.Vec{X: qlon, Y: lat}
		// The cached region is only reused when no earlier region also
		// contains the point, so overlaps resolve the same way as a scan.
		if c := d.current; c >= 0 && d.regions[c].Bounds.Contains(v) && d.firstMatch(v, c) < 0 {
			return c, qlon
		}
		if i := d.firstMatch(v, len(d.regions)); i >= 0 {
			d.current = i
			d.ensureOpen(i)
			return i, qlon
		}
	}
	d.current = -1
	return -1, lon
}

// firstMatch returns the index of the first of regions[:n] containing v, or -1.
func (d *GridDatum) firstMatch(v r2.Vec, n int) int {
	for i, r := range d.regions[:n] {
		if r.Bounds.Contains(v) {
			return i
		}
	}
	return -1
}

func (d *GridDatum) ensureOpen(i int) {
	g := &d.grids[i]
	if g.attempted {
		return
	}
	g.attempted = true

	name := d.regions[i].Name
	g.lat = gridfile.New(d.fsys, d.order)
	g.lon = gridfile.New(d.fsys, d.order)
	if err := g.lat.Open(d.gridPath(name, ".las")); err != nil {
		g.err = err
	} else if err := g.lon.Open(d.gridPath(name, ".los")); err != nil {
		g.err = err
	}
	if g.err != nil {
		d.logf("region %s unavailable, using parametric shift: %v", name, g.err)
		g.lat.Close()
		g.lon.Close()
		return
	}
	d.logf("opened %s grids from %s", name, d.dir)
}

// gridPath prefers the plain grid and falls back to a seekable zstd copy.
func (d *GridDatum) gridPath(name, ext string) string {
	plain := filepath.Join(d.dir, name+ext)
	if d.fsys.Exists(plain) {
		return plain
	}
	if zst := plain + ".zst"; d.fsys.Exists(zst) {
		return zst
	}
	return plain
}

// Close releases every open grid. The datum reopens grids on demand after
// Close.
func (d *GridDatum) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for i := range d.grids {
		g := &d.grids[i]
		if g.lat != nil {
			errs = append(errs, g.lat.Close())
		}
		if g.lon != nil {
			errs = append(errs, g.lon.Close())
		}
		d.grids[i] = regionGrids{}
	}
	d.current = -1
	return errors.Join(errs...)
}
