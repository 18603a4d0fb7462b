package render

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// HeatMapOptions controls heat map output.
type HeatMapOptions struct {
	Title  string
	Label  string // colour axis quantity, e.g. "dLat (arcsec)"
	Width  vg.Length
	Height vg.Length
	Colors int
}

func (o HeatMapOptions) withDefaults() HeatMapOptions {
	if o.Width <= 0 {
		o.Width = 10 * vg.Inch
	}
	if o.Height <= 0 {
		o.Height = 6 * vg.Inch
	}
	if o.Colors <= 1 {
		o.Colors = 64
	}
	return o
}

func newHeatMapPlot(s *Surface, o HeatMapOptions) (*plot.Plot, error) {
	lo, hi := s.Range()
	if math.IsNaN(lo) {
		return nil, ErrEmptySurface
	}
	if hi == lo {
		hi = lo + 1
	}

	hm := plotter.NewHeatMap(s, palette.Heat(o.Colors, 1))
	hm.Min, hm.Max = lo, hi
	hm.NaN = color.Transparent

	p := plot.New()
	p.Title.Text = o.Title
	if o.Label != "" {
		p.Title.Text = fmt.Sprintf("%s [%s %.4g .. %.4g]", o.Title, o.Label, lo, hi)
	}
	p.X.Label.Text = "Longitude (deg)"
	p.Y.Label.Text = "Latitude (deg)"
	p.Add(hm)
	return p, nil
}

// WriteHeatMap renders s as a PNG heat map to w.
func WriteHeatMap(w io.Writer, s *Surface, o HeatMapOptions) error {
	o = o.withDefaults()
	p, err := newHeatMapPlot(s, o)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(o.Width, o.Height, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write heat map: %w", err)
	}
	return nil
}

// SaveHeatMap renders s to a file whose extension selects the format.
func SaveHeatMap(path string, s *Surface, o HeatMapOptions) error {
	o = o.withDefaults()
	p, err := newHeatMapPlot(s, o)
	if err != nil {
		return err
	}
	if err := p.Save(o.Width, o.Height, path); err != nil {
		return fmt.Errorf("failed to save heat map %s: %w", path, err)
	}
	return nil
}
