package gridfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/geogrid/internal/fsutil"
)

var (
	// ErrNotOpen is returned by lookups on a file that is not open.
	ErrNotOpen = errors.New("grid file not open")
	// ErrOutOfBounds is returned for points outside the grid rectangle.
	ErrOutOfBounds = errors.New("point outside grid bounds")
	// ErrEmptyGrid is returned by Open when the header has no rows or columns.
	ErrEmptyGrid = errors.New("grid header has no rows or columns")
)

// noCopy flags copies of File with go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// File is one open NADCON grid. It owns its file handle exclusively.
// Reads use ReadAt, so lookups never move a shared read cursor and may run
// concurrently once Open has returned.
type File struct {
	_ noCopy

	fsys  fsutil.FileSystem
	order binary.ByteOrder

	path   string
	src    io.ReaderAt
	closer io.Closer
	header Header
	bounds r2.Box
	ok     bool
}

// New returns an unopened File that reads from fsys with the given byte
// order. A nil fsys uses the OS filesystem; a nil order is little-endian.
func New(fsys fsutil.FileSystem, order binary.ByteOrder) *File {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if order == nil {
		order = binary.LittleEndian
	}
	return &File{fsys: fsys, order: order}
}

// Open opens path and parses its header. Any previously open handle is
// closed first. Paths ending in ".zst" are read as seekable zstd streams.
func (f *File) Open(path string) error {
	f.Close()

	raw, err := f.fsys.Open(path)
	if err != nil {
		return fmt.Errorf("open grid %s: %w", path, err)
	}

	var src io.ReaderAt = raw
	var closer io.Closer = raw
	if strings.HasSuffix(path, ".zst") {
		zr, err := newSeekableReader(raw)
		if err != nil {
			raw.Close()
			return fmt.Errorf("open grid %s: %w", path, err)
		}
		src, closer = zr, zr
	}

	if err := f.attach(path, src, closer); err != nil {
		closer.Close()
		return fmt.Errorf("open grid %s: %w", path, err)
	}
	return nil
}

// OpenReader attaches an already open source. The File takes ownership of
// src if it implements io.Closer.
func (f *File) OpenReader(name string, src io.ReaderAt) error {
	f.Close()
	closer, _ := src.(io.Closer)
	if err := f.attach(name, src, closer); err != nil {
		if closer != nil {
			closer.Close()
		}
		return fmt.Errorf("open grid %s: %w", name, err)
	}
	return nil
}

func (f *File) attach(name string, src io.ReaderAt, closer io.Closer) error {
	h, err := ReadHeader(io.NewSectionReader(src, 0, HeaderSize), f.order)
	if err != nil {
		return err
	}
	if h.Columns <= 0 || h.Rows <= 0 {
		return fmt.Errorf("%w: cols=%d rows=%d", ErrEmptyGrid, h.Columns, h.Rows)
	}

	f.path = name
	f.src = src
	f.closer = closer
	f.header = h
	f.bounds = h.Bounds()
	f.ok = true
	return nil
}

// Close releases the file handle. It is safe to call more than once.
func (f *File) Close() error {
	var err error
	if f.closer != nil {
		err = f.closer.Close()
	}
	f.src = nil
	f.closer = nil
	f.ok = false
	return err
}

// IsOpen reports whether the last Open succeeded.
func (f *File) IsOpen() bool { return f.ok }

// Path returns the name passed to the last successful Open.
func (f *File) Path() string { return f.path }

// Header returns the parsed header.
func (f *File) Header() Header { return f.header }

// Bounds returns the grid rectangle, X as longitude and Y as latitude.
func (f *File) Bounds() r2.Box { return f.bounds }

// Spacing returns the node spacing in degrees.
func (f *File) Spacing() (dx, dy float64) {
	return f.header.DeltaX, f.header.DeltaY
}

// PointWithin reports whether (lat, lon) lies inside the grid rectangle.
// All four edges are inclusive.
func (f *File) PointWithin(lat, lon float64) bool {
	if !f.ok {
		return false
	}
	return f.bounds.Contains(r2.Vec{X: lon, Y: lat})
}

// ShiftAtLatLon returns the interpolated value at (lat, lon), or NaN when
// the file is not open, the point is outside the grid, or the read fails.
func (f *File) ShiftAtLatLon(lat, lon float64) float64 {
	v, err := f.Lookup(lat, lon)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Lookup returns the bilinearly interpolated value at (lat, lon).
func (f *File) Lookup(lat, lon float64) (float64, error) {
	if !f.ok {
		return math.NaN(), ErrNotOpen
	}
	if !f.PointWithin(lat, lon) {
		return math.NaN(), ErrOutOfBounds
	}

	h := f.header
	x := (lon - h.OriginX) / h.DeltaX
	y := (lat - h.OriginY) / h.DeltaY
	col := math.Floor(x)
	row := math.Floor(y)
	fx := x - col
	fy := y - row

	c0 := clampIndex(int(col), int(h.Columns))
	c1 := clampIndex(int(col)+1, int(h.Columns))
	r0 := clampIndex(int(row), int(h.Rows))
	r1 := clampIndex(int(row)+1, int(h.Rows))

	var v [4]float64
	for i, rc := range [4][2]int{{r0, c0}, {r0, c1}, {r1, c0}, {r1, c1}} {
		val, err := f.Node(rc[0], rc[1])
		if err != nil {
			return math.NaN(), err
		}
		v[i] = val
	}
	return Bilinear(v[0], v[1], v[2], v[3], fx, fy), nil
}

// Node returns the stored value at (row, col) without interpolation.
func (f *File) Node(row, col int) (float64, error) {
	if !f.ok {
		return math.NaN(), ErrNotOpen
	}
	if row < 0 || row >= int(f.header.Rows) || col < 0 || col >= int(f.header.Columns) {
		return math.NaN(), fmt.Errorf("%w: node (%d,%d)", ErrOutOfBounds, row, col)
	}
	var buf [valueSize]byte
	if n, err := f.src.ReadAt(buf[:], f.header.Offset(row, col)); n < valueSize {
		return math.NaN(), fmt.Errorf("read node (%d,%d) of %s: %w", row, col, f.path, unexpected(err))
	}
	return float64(math.Float32frombits(f.order.Uint32(buf[:]))), nil
}

// Bilinear interpolates between four corner values. v00 is at (0,0), v10
// at (1,0), v01 at (0,1) and v11 at (1,1); fx and fy are the fractional
// position inside the cell.
func Bilinear(v00, v10, v01, v11, fx, fy float64) float64 {
	return (1-fx)*(1-fy)*v00 + fx*(1-fy)*v10 + (1-fx)*fy*v01 + fx*fy*v11
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
