package gridfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Ident is written into the reserved block of encoded grids.
const Ident = "NADCON EXTRACTED REGION                             NADGRD  "

// Encode writes a grid in the NADCON record layout. values holds
// h.Rows*h.Columns shifts, row-major from the southernmost row.
func Encode(w io.Writer, h Header, values []float32, order binary.ByteOrder) error {
	if h.Columns <= 0 || h.Rows <= 0 {
		return fmt.Errorf("%w: cols=%d rows=%d", ErrEmptyGrid, h.Columns, h.Rows)
	}
	if want := int(h.Columns) * int(h.Rows); len(values) != want {
		return fmt.Errorf("grid has %d values, header wants %d", len(values), want)
	}

	bw := bufio.NewWriter(w)
	record := make([]byte, h.RecordLength())
	copy(record[:reservedSize], Ident)
	off := reservedSize
	for _, v := range []int32{h.Columns, h.Rows, h.ZField} {
		order.PutUint32(record[off:], uint32(v))
		off += 4
	}
	// The trailing angle field is always zero.
	for _, v := range []float64{h.OriginX, h.DeltaX, h.OriginY, h.DeltaY, 0} {
		order.PutUint32(record[off:], math.Float32bits(float32(v)))
		off += 4
	}
	if _, err := bw.Write(record); err != nil {
		return fmt.Errorf("write header record: %w", err)
	}

	row := make([]byte, h.RowStride())
	cols := int(h.Columns)
	for r := 0; r < int(h.Rows); r++ {
		// Leading 4 bytes of each row are an unused marker.
		order.PutUint32(row[:4], 0)
		for c := 0; c < cols; c++ {
			order.PutUint32(row[4+4*c:], math.Float32bits(values[r*cols+c]))
		}
		if _, err := bw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", r, err)
		}
	}
	return bw.Flush()
}
