package geoid

import (
	"encoding/binary"
	"fmt"
	"io"
)

// EncodeEGM96 writes an EGM96 grid. heights holds Rows()*Cols() values with
// the northernmost row first.
func EncodeEGM96(w io.Writer, h EGM96Header, heights []float32, order binary.ByteOrder) error {
	if want := h.Rows() * h.Cols(); len(heights) != want {
		return fmt.Errorf("egm96 grid has %d heights, header wants %d", len(heights), want)
	}
	hdr := [6]float32{
		float32(h.LatMin), float32(h.LatMax),
		float32(h.LonMin), float32(h.LonMax),
		float32(h.LatSpacing), float32(h.LonSpacing),
	}
	if err := binary.Write(w, order, hdr); err != nil {
		return fmt.Errorf("write egm96 header: %w", err)
	}
	if err := binary.Write(w, order, heights); err != nil {
		return fmt.Errorf("write egm96 heights: %w", err)
	}
	return nil
}

// EncodeNGS writes an NGS .bin grid. heights holds Rows*Cols values with
// the southernmost row first.
func EncodeNGS(w io.Writer, h NGSHeader, heights []float32, order binary.ByteOrder) error {
	if want := int(h.Rows) * int(h.Cols); len(heights) != want {
		return fmt.Errorf("ngs grid has %d heights, header wants %d", len(heights), want)
	}
	if err := binary.Write(w, order, h); err != nil {
		return fmt.Errorf("write ngs header: %w", err)
	}
	if err := binary.Write(w, order, heights); err != nil {
		return fmt.Errorf("write ngs heights: %w", err)
	}
	return nil
}
