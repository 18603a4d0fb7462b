// Package gridfile reads NADCON binary grid files (.las/.los) and performs
// bilinear interpolation of the shift values stored in them.
//
// A grid file begins with a header record: 64 reserved bytes (ident and
// program name), then cols, rows and z as int32, then minX, dx, minY, dy
// and angle as float32. Each following record holds one grid row: a 4-byte
// marker and cols float32 values. Rows run south to north starting at minY.
package gridfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	reservedSize = 64

	// HeaderSize is the number of bytes of the header record that carry
	// fields: the reserved block, three int32 counts and five float32 values.
	HeaderSize = reservedSize + 3*4 + 5*4

	valueSize = 4
)

// Header is the parsed prologue of a grid file. It is read once when the
// file is opened and never mutated.
type Header struct {
	Columns int32
	Rows    int32
	ZField  int32
	OriginX float64
	DeltaX  float64
	OriginY float64
	DeltaY  float64
}

// ReadHeader parses a grid header from r, which must be positioned at the
// start of the file. Fields are decoded with order; NADCON distributions are
// little-endian.
//
// A short read returns the fields decoded so far together with
// io.ErrUnexpectedEOF. Field values are not otherwise validated.
func ReadHeader(r io.Reader, order binary.ByteOrder) (Header, error) {
	var h Header
	var reserved [reservedSize]byte
	if _, err := io.ReadFull(r, reserved[:]); err != nil {
		return h, fmt.Errorf("read reserved block: %w", unexpected(err))
	}

	for _, p := range []*int32{&h.Columns, &h.Rows, &h.ZField} {
		if err := binary.Read(r, order, p); err != nil {
			return h, fmt.Errorf("read header counts: %w", unexpected(err))
		}
	}

	for _, p := range []*float64{&h.OriginX, &h.DeltaX, &h.OriginY, &h.DeltaY} {
		var v float32
		if err := binary.Read(r, order, &v); err != nil {
			return h, fmt.Errorf("read header extent: %w", unexpected(err))
		}
		*p = float64(v)
	}
	return h, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// RecordLength is the size of one header record in bytes. Grids narrower
// than the header fields are padded out to HeaderSize.
func (h Header) RecordLength() int64 {
	return max(h.RowStride(), HeaderSize)
}

// StartOffset is the byte offset of the first stored value.
// For authentic NADCON grids this is (cols+2)*4.
func (h Header) StartOffset() int64 {
	return h.RecordLength() + valueSize
}

// RowStride is the number of bytes between the starts of consecutive rows.
func (h Header) RowStride() int64 {
	return (int64(h.Columns) + 1) * valueSize
}

// Offset returns the byte offset of the value at (row, col).
func (h Header) Offset(row, col int) int64 {
	return h.StartOffset() + int64(row)*h.RowStride() + int64(col)*valueSize
}

// Size is the total file length implied by the header.
func (h Header) Size() int64 {
	return h.RecordLength() + int64(h.Rows)*h.RowStride()
}

// Bounds returns the rectangle [OriginX, OriginX+cols*dx] x [OriginY, OriginY+rows*dy]
// with X as longitude and Y as latitude.
func (h Header) Bounds() r2.Box {
	return r2.NewBox(
		h.OriginX, h.OriginY,
		h.OriginX+float64(h.Columns)*h.DeltaX,
		h.OriginY+float64(h.Rows)*h.DeltaY,
	)
}

func (h Header) String() string {
	return fmt.Sprintf("cols=%d rows=%d z=%d origin=(%g,%g) delta=(%g,%g)",
		h.Columns, h.Rows, h.ZField, h.OriginX, h.OriginY, h.DeltaX, h.DeltaY)
}
