// Package render draws grid and geoid surfaces: PNG heat maps with
// gonum/plot and HTML profiles with go-echarts.
package render

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrEmptySurface is returned when a surface has no finite values.
var ErrEmptySurface = errors.New("surface has no finite values")

// Surface is a function sampled on a regular lattice over a rectangle.
// X is longitude and Y latitude; row 0 is the southern edge. It satisfies
// plotter.GridXYZ.
type Surface struct {
	bounds     r2.Box
	cols, rows int
	values     []float64
}

// Sample evaluates fn at cols x rows lattice points spanning b, edges
// included. NaN results mark points without coverage.
func Sample(b r2.Box, cols, rows int, fn func(lat, lon float64) float64) (*Surface, error) {
	if cols < 2 || rows < 2 {
		return nil, fmt.Errorf("surface needs at least 2x2 samples, got %dx%d", cols, rows)
	}
	if b.Empty() {
		return nil, fmt.Errorf("surface bounds %v are empty", b)
	}
	s := &Surface{bounds: b, cols: cols, rows: rows, values: make([]float64, cols*rows)}
	for r := 0; r < rows; r++ {
		lat := s.Y(r)
		for c := 0; c < cols; c++ {
			s.values[r*cols+c] = fn(lat, s.X(c))
		}
	}
	return s, nil
}

// Bounds returns the sampled rectangle.
func (s *Surface) Bounds() r2.Box { return s.bounds }

// Dims returns the lattice size.
func (s *Surface) Dims() (c, r int) { return s.cols, s.rows }

// Z returns the value at column c, row r.
func (s *Surface) Z(c, r int) float64 { return s.values[r*s.cols+c] }

// X returns the longitude of column c.
func (s *Surface) X(c int) float64 {
	return s.bounds.Min.X + float64(c)*(s.bounds.Max.X-s.bounds.Min.X)/float64(s.cols-1)
}

// Y returns the latitude of row r.
func (s *Surface) Y(r int) float64 {
	return s.bounds.Min.Y + float64(r)*(s.bounds.Max.Y-s.bounds.Min.Y)/float64(s.rows-1)
}

// Min returns the smallest finite value, or NaN.
func (s *Surface) Min() float64 {
	lo, _ := s.Range()
	return lo
}

// Max returns the largest finite value, or NaN.
func (s *Surface) Max() float64 {
	_, hi := s.Range()
	return hi
}

// Range returns the smallest and largest finite values. Both are NaN when
// no value is finite.
func (s *Surface) Range() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range s.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return math.NaN(), math.NaN()
	}
	return lo, hi
}

// Coverage returns the fraction of samples with a finite value.
func (s *Surface) Coverage() float64 {
	n := 0
	for _, v := range s.values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			n++
		}
	}
	return float64(n) / float64(len(s.values))
}
