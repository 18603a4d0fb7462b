package geoid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/banshee-data/geogrid/internal/fsutil"
	"github.com/banshee-data/geogrid/internal/geodesy"
	"github.com/banshee-data/geogrid/internal/gridfile"
)

// egm96HeaderSize is six float32 values.
const egm96HeaderSize = 6 * 4

// EGM96Header is the prologue of a GeoTrans egm96.grd file. The stored
// rows run from LatMax south to LatMin; columns run east from LonMin.
type EGM96Header struct {
	LatMin     float64
	LatMax     float64
	LonMin     float64
	LonMax     float64
	LatSpacing float64
	LonSpacing float64
}

// Rows is the number of stored latitude rows.
func (h EGM96Header) Rows() int {
	return int(math.Round((h.LatMax-h.LatMin)/h.LatSpacing)) + 1
}

// Cols is the number of stored longitude columns.
func (h EGM96Header) Cols() int {
	return int(math.Round((h.LonMax-h.LonMin)/h.LonSpacing)) + 1
}

// EGM96 holds the whole EGM96 height grid in memory. It is read-only after
// Open and safe for concurrent queries.
type EGM96 struct {
	fsys    fsutil.FileSystem
	header  EGM96Header
	rows    int
	cols    int
	heights []float32
	ok      bool
}

// NewEGM96 returns an unopened EGM96 model reading from fsys.
func NewEGM96(fsys fsutil.FileSystem) *EGM96 {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &EGM96{fsys: fsys}
}

// Open loads the grid at path. Files ending in ".zst" are decompressed.
func (g *EGM96) Open(path string, order binary.ByteOrder) error {
	g.ok = false
	if order == nil {
		order = DefaultEGM96ByteOrder
	}

	data, err := g.fsys.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read egm96 grid: %w", err)
	}
	if strings.HasSuffix(path, ".zst") {
		if data, err = decompress(data); err != nil {
			return fmt.Errorf("decompress %s: %w", path, err)
		}
	}

	h, err := ReadEGM96Header(bytes.NewReader(data), order)
	if err != nil {
		return fmt.Errorf("read egm96 header: %w", err)
	}
	if h.LatSpacing <= 0 || h.LonSpacing <= 0 || h.LatMax <= h.LatMin || h.LonMax <= h.LonMin {
		return fmt.Errorf("egm96 header has invalid extent %+v", h)
	}
	rows, cols := h.Rows(), h.Cols()
	if rows < 2 || cols < 2 {
		return fmt.Errorf("egm96 grid too small: %dx%d", rows, cols)
	}

	body := data[egm96HeaderSize:]
	if want := rows * cols * 4; len(body) < want {
		return fmt.Errorf("egm96 grid truncated: %d bytes, want %d: %w", len(body), want, io.ErrUnexpectedEOF)
	}

	heights := make([]float32, rows*cols)
	for i := range heights {
		heights[i] = math.Float32frombits(order.Uint32(body[i*4:]))
	}

	g.header = h
	g.rows, g.cols = rows, cols
	g.heights = heights
	g.ok = true
	return nil
}

// ReadEGM96Header parses the six header floats.
func ReadEGM96Header(r io.Reader, order binary.ByteOrder) (EGM96Header, error) {
	var raw [6]float32
	if err := binary.Read(r, order, &raw); err != nil {
		return EGM96Header{}, err
	}
	return EGM96Header{
		LatMin:     float64(raw[0]),
		LatMax:     float64(raw[1]),
		LonMin:     float64(raw[2]),
		LonMax:     float64(raw[3]),
		LatSpacing: float64(raw[4]),
		LonSpacing: float64(raw[5]),
	}, nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

// ShortName returns "egm96".
func (g *EGM96) ShortName() string { return KindEGM96 }

// Header returns the parsed header.
func (g *EGM96) Header() EGM96Header { return g.header }

// OffsetFromEllipsoid interpolates the geoid height at p between the four
// surrounding posts.
func (g *EGM96) OffsetFromEllipsoid(p geodesy.GeodeticPoint) float64 {
	if !g.ok {
		return math.NaN()
	}
	h := g.header
	lat, lon := fixLatLon(p.Lat, p.Lon, h.LonMin)
	if !(lat >= h.LatMin && lat <= h.LatMax && lon >= h.LonMin && lon <= h.LonMax) {
		return math.NaN()
	}

	// Row 0 is the northern edge.
	y := (h.LatMax - lat) / h.LatSpacing
	x := (lon - h.LonMin) / h.LonSpacing
	row := int(math.Floor(y))
	col := int(math.Floor(x))
	// Points on the last row or column use the cell before it.
	if row >= g.rows-1 {
		row = g.rows - 2
	}
	if col >= g.cols-1 {
		col = g.cols - 2
	}
	fy := y - float64(row)
	fx := x - float64(col)

	nw := g.post(row, col)
	ne := g.post(row, col+1)
	sw := g.post(row+1, col)
	se := g.post(row+1, col+1)
	return gridfile.Bilinear(nw, ne, sw, se, fx, fy)
}

func (g *EGM96) post(row, col int) float64 {
	return float64(g.heights[row*g.cols+col])
}
