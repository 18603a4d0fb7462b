package render

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// assetsHost serves the echarts JavaScript for rendered pages.
const assetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// meanEarthRadius is the IUGG mean radius in kilometres.
const meanEarthRadius = 6371.0088

// ProfilePoint is one sample along a profile.
type ProfilePoint struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Distance float64 `json:"distance_km"`
	Value    float64 `json:"value"`
}

// Profile samples fn at n evenly spaced points on the straight lat/lon
// segment from (lat0, lon0) to (lat1, lon1), both ends included.
// Distance is the great-circle distance from the start.
func Profile(lat0, lon0, lat1, lon1 float64, n int, fn func(lat, lon float64) float64) ([]ProfilePoint, error) {
	if n < 2 {
		return nil, fmt.Errorf("profile needs at least 2 samples, got %d", n)
	}
	pts := make([]ProfilePoint, n)
	for i := range pts {
		t := float64(i) / float64(n-1)
		lat := lat0 + t*(lat1-lat0)
		lon := lon0 + t*(lon1-lon0)
		pts[i] = ProfilePoint{
			Lat:      lat,
			Lon:      lon,
			Distance: haversine(lat0, lon0, lat, lon),
			Value:    fn(lat, lon),
		}
	}
	return pts, nil
}

func haversine(lat0, lon0, lat1, lon1 float64) float64 {
	const rad = math.Pi / 180
	dLat := (lat1 - lat0) * rad
	dLon := (lon1 - lon0) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat0*rad)*math.Cos(lat1*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * meanEarthRadius * math.Asin(math.Min(1, math.Sqrt(a)))
}

// WriteProfile renders pts as an HTML line chart. Samples without a value
// are drawn as gaps.
func WriteProfile(w io.Writer, title, series string, pts []ProfilePoint) error {
	xs := make([]string, len(pts))
	data := make([]opts.LineData, len(pts))
	for i, p := range pts {
		xs[i] = strconv.FormatFloat(p.Distance, 'f', 1, 64)
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			data[i] = opts.LineData{Value: "-"}
			continue
		}
		data[i] = opts.LineData{Value: p.Value}
	}

	subtitle := ""
	if len(pts) > 0 {
		first, last := pts[0], pts[len(pts)-1]
		subtitle = fmt.Sprintf("(%.4f, %.4f) to (%.4f, %.4f), %d samples",
			first.Lat, first.Lon, last.Lat, last.Lon, len(pts))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px", AssetsHost: assetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Distance (km)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: series, NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(xs).AddSeries(series, data)

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render profile: %w", err)
	}
	return nil
}
