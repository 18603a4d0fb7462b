package geoid

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/geogrid/internal/fsutil"
	"github.com/banshee-data/geogrid/internal/geodesy"
	"github.com/banshee-data/geogrid/internal/gridfile"
	"github.com/banshee-data/geogrid/internal/monitoring"
	"github.com/banshee-data/geogrid/internal/units"
)

// NGSHeaderSize is four float64 values and three int32 values.
const NGSHeaderSize = 4*8 + 3*4

// ErrNoGrids is returned by NGS.Open when no .bin grid is found.
var ErrNoGrids = errors.New("no NGS geoid grids found")

// NGSHeader is the prologue of an NGS .bin geoid grid. Rows run north
// from SouthLat; longitudes are degrees east in [0, 360).
type NGSHeader struct {
	SouthLat float64
	WestLon  float64
	DLat     float64
	DLon     float64
	Rows     int32
	Cols     int32
	Kind     int32
}

// Bounds returns the node extent with X as longitude and Y as latitude.
func (h NGSHeader) Bounds() r2.Box {
	return r2.NewBox(
		h.WestLon, h.SouthLat,
		h.WestLon+float64(h.Cols-1)*h.DLon,
		h.SouthLat+float64(h.Rows-1)*h.DLat,
	)
}

// ReadNGSHeader parses the 44-byte header of an NGS grid.
func ReadNGSHeader(r io.Reader, order binary.ByteOrder) (NGSHeader, error) {
	var raw struct {
		SouthLat, WestLon, DLat, DLon float64
		Rows, Cols, Kind              int32
	}
	if err := binary.Read(r, order, &raw); err != nil {
		return NGSHeader{}, err
	}
	return NGSHeader(raw), nil
}

type ngsGrid struct {
	path   string
	header NGSHeader
	bounds r2.Box

	once    sync.Once
	heights []float32
	err     error
}

// NGS is a collection of regional NGS geoid grids found in one directory.
// Grid bodies are loaded on first use.
type NGS struct {
	fsys  fsutil.FileSystem
	order binary.ByteOrder
	grids []*ngsGrid
	name  string
	ok    bool
	logf  func(format string, v ...interface{})
}

// NewNGS returns an unopened NGS model reading from fsys.
func NewNGS(fsys fsutil.FileSystem) *NGS {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &NGS{fsys: fsys, logf: monitoring.Component("geoid")}
}

// Open scans path for *.bin grids and reads their headers. path may also
// name a single .bin file. Grids are consulted in file name order.
func (g *NGS) Open(path string, order binary.ByteOrder) error {
	g.ok = false
	g.grids = nil
	if order == nil {
		order = DefaultNGSByteOrder
	}
	g.order = order

	var files []string
	if strings.HasSuffix(path, ".bin") {
		files = []string{path}
	} else {
		entries, err := g.fsys.ReadDir(path)
		if err != nil {
			return fmt.Errorf("scan ngs directory: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".bin") {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
	}

	for _, f := range files {
		grid, err := g.readHeader(f)
		if err != nil {
			g.logf("skipping %s: %v", f, err)
			continue
		}
		g.grids = append(g.grids, grid)
	}
	if len(g.grids) == 0 {
		return fmt.Errorf("%w in %s", ErrNoGrids, path)
	}

	g.name = shortNameFor(g.grids[0].path)
	g.ok = true
	return nil
}

func (g *NGS) readHeader(path string) (*ngsGrid, error) {
	f, err := g.fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := ReadNGSHeader(f, g.order)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if h.Rows < 2 || h.Cols < 2 || h.DLat <= 0 || h.DLon <= 0 {
		return nil, fmt.Errorf("invalid header %+v", h)
	}
	if h.WestLon < 0 {
		h.WestLon = units.WrapLon360(h.WestLon)
	}
	return &ngsGrid{path: path, header: h, bounds: h.Bounds()}, nil
}

var ngsYear = regexp.MustCompile(`^g(\d{2})(\d{2})`)

// shortNameFor derives the model name from an NGS file name, so that
// g2012bu1.bin becomes geoid12.
func shortNameFor(path string) string {
	m := ngsYear.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return KindNGS
	}
	return "geoid" + m[2]
}

// ShortName returns the model name derived from the grid file names.
func (g *NGS) ShortName() string {
	if g.name == "" {
		return KindNGS
	}
	return g.name
}

// Files returns the paths of the grids found by Open, in lookup order.
func (g *NGS) Files() []string {
	out := make([]string, len(g.grids))
	for i, grid := range g.grids {
		out[i] = grid.path
	}
	return out
}

// OffsetFromEllipsoid interpolates the geoid height at p in the first grid
// that covers it.
func (g *NGS) OffsetFromEllipsoid(p geodesy.GeodeticPoint) float64 {
	if !g.ok {
		return math.NaN()
	}
	lat, lon := fixLatLon(p.Lat, p.Lon, 0)
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return math.NaN()
	}
	v := r2.Vec{X: lon, Y: lat}
	for _, grid := range g.grids {
		if !grid.bounds.Contains(v) {
			continue
		}
		if err := g.load(grid); err != nil {
			continue
		}
		return grid.interpolate(lat, lon)
	}
	return math.NaN()
}

func (g *NGS) load(grid *ngsGrid) error {
	grid.once.Do(func() {
		data, err := g.fsys.ReadFile(grid.path)
		if err != nil {
			grid.err = err
			g.logf("load %s: %v", grid.path, err)
			return
		}
		n := int(grid.header.Rows) * int(grid.header.Cols)
		if len(data) < NGSHeaderSize+n*4 {
			body := max(len(data)-NGSHeaderSize, 0)
			grid.err = fmt.Errorf("%s truncated: %d bytes, want %d: %w", grid.path, body, n*4, io.ErrUnexpectedEOF)
			g.logf("load %s: %v", grid.path, grid.err)
			return
		}
		heights := make([]float32, n)
		if err := binary.Read(bytes.NewReader(data[NGSHeaderSize:NGSHeaderSize+n*4]), g.order, heights); err != nil {
			grid.err = err
			return
		}
		grid.heights = heights
	})
	return grid.err
}

func (grid *ngsGrid) interpolate(lat, lon float64) float64 {
	h := grid.header
	x := (lon - h.WestLon) / h.DLon
	y := (lat - h.SouthLat) / h.DLat
	if !(x >= 0 && y >= 0) {
		return math.NaN()
	}
	col := int(math.Floor(x))
	row := int(math.Floor(y))
	if col >= int(h.Cols)-1 {
		col = int(h.Cols) - 2
	}
	if row >= int(h.Rows)-1 {
		row = int(h.Rows) - 2
	}
	fx := x - float64(col)
	fy := y - float64(row)

	at := func(r, c int) float64 { return float64(grid.heights[r*int(h.Cols)+c]) }
	return gridfile.Bilinear(at(row, col), at(row, col+1), at(row+1, col), at(row+1, col+1), fx, fy)
}
