package api

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/geogrid/internal/catalog"
	"github.com/banshee-data/geogrid/internal/geodesy"
	"github.com/banshee-data/geogrid/internal/httputil"
	"github.com/banshee-data/geogrid/internal/render"
	"github.com/banshee-data/geogrid/internal/security"
	"github.com/banshee-data/geogrid/internal/service"
)

// Default heat map and profile sampling.
const (
	defaultSurfaceCols   = 200
	defaultSurfaceRows   = 100
	defaultProfilePoints = 200
)

// writeServiceError maps service errors onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidPoint),
		errors.Is(err, geodesy.ErrUnknownDatum),
		errors.Is(err, security.ErrPathEscape):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, catalog.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, service.ErrNoCatalog):
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, render.ErrEmptySurface):
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) handleGrids(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	cat := s.svc.Catalog()
	if cat == nil {
		writeServiceError(w, service.ErrNoCatalog)
		return
	}
	q := r.URL.Query()

	var entries []catalog.Entry
	var err error
	switch {
	case q.Get("lat") != "" || q.Get("lon") != "":
		lat, perr := floatParam(q, "lat", math.NaN())
		if perr != nil {
			httputil.BadRequest(w, perr.Error())
			return
		}
		lon, perr := floatParam(q, "lon", math.NaN())
		if perr != nil {
			httputil.BadRequest(w, perr.Error())
			return
		}
		entries, err = cat.FindCovering(r.Context(), lat, lon)
	case q.Get("region") != "":
		entries, err = cat.FindByRegion(r.Context(), q.Get("region"))
	default:
		entries, err = cat.List(r.Context())
	}
	if err != nil {
		writeServiceError(w, fmt.Errorf("failed to list grids: %w", err))
		return
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}
	httputil.WriteJSONOK(w, entries)
}

type gridHeaderResponse struct {
	Name         string  `json:"name"`
	Columns      int32   `json:"columns"`
	Rows         int32   `json:"rows"`
	ZField       int32   `json:"z_field"`
	OriginX      float64 `json:"origin_x"`
	DeltaX       float64 `json:"delta_x"`
	OriginY      float64 `json:"origin_y"`
	DeltaY       float64 `json:"delta_y"`
	MinLon       float64 `json:"min_lon"`
	MinLat       float64 `json:"min_lat"`
	MaxLon       float64 `json:"max_lon"`
	MaxLat       float64 `json:"max_lat"`
	RecordLength int64   `json:"record_length"`
	StartOffset  int64   `json:"start_offset"`
	Size         int64   `json:"size"`
}

func (s *Server) handleGridHeader(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		httputil.BadRequest(w, "missing 'name' parameter")
		return
	}
	h, b, err := s.svc.GridHeader(name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSONOK(w, gridHeaderResponse{
		Name:         name,
		Columns:      h.Columns,
		Rows:         h.Rows,
		ZField:       h.ZField,
		OriginX:      h.OriginX,
		DeltaX:       h.DeltaX,
		OriginY:      h.OriginY,
		DeltaY:       h.DeltaY,
		MinLon:       b.Min.X,
		MinLat:       b.Min.Y,
		MaxLon:       b.Max.X,
		MaxLat:       b.Max.Y,
		RecordLength: h.RecordLength(),
		StartOffset:  h.StartOffset(),
		Size:         h.Size(),
	})
}

func surfaceDims(w http.ResponseWriter, r *http.Request) (cols, rows int, ok bool) {
	q := r.URL.Query()
	cols, err := intParam(q, "cols", defaultSurfaceCols, 2, service.MaxSurfaceSamples)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return 0, 0, false
	}
	rows, err = intParam(q, "rows", defaultSurfaceRows, 2, service.MaxSurfaceSamples)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return 0, 0, false
	}
	return cols, rows, true
}

// writePNG renders into a buffer first so a failed render can still be
// reported as JSON.
func writePNG(w http.ResponseWriter, surf *render.Surface, o render.HeatMapOptions) {
	var buf bytes.Buffer
	if err := render.WriteHeatMap(&buf, surf, o); err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleGridHeatMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		httputil.BadRequest(w, "missing 'name' parameter")
		return
	}
	cols, rows, ok := surfaceDims(w, r)
	if !ok {
		return
	}
	surf, err := s.svc.GridSurface(name, cols, rows)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writePNG(w, surf, render.HeatMapOptions{Title: name, Label: "shift (arcsec)"})
}

func (s *Server) handleGeoidHeatMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	var bounds [4]float64
	for i, p := range []struct {
		name string
		def  float64
	}{{"min_lat", -90}, {"min_lon", -180}, {"max_lat", 90}, {"max_lon", 180}} {
		v, err := floatParam(q, p.name, p.def)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		bounds[i] = v
	}
	if bounds[0] >= bounds[2] || bounds[1] >= bounds[3] || bounds[0] < -90 || bounds[2] > 90 {
		httputil.BadRequest(w, "invalid bounding box")
		return
	}
	cols, rows, ok := surfaceDims(w, r)
	if !ok {
		return
	}
	b := r2.Box{Min: r2.Vec{X: bounds[1], Y: bounds[0]}, Max: r2.Vec{X: bounds[3], Y: bounds[2]}}
	surf, err := s.svc.GeoidSurface(b, cols, rows)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writePNG(w, surf, render.HeatMapOptions{Title: "Geoid height", Label: "N (m)"})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	var ends [4]float64
	for i, name := range []string{"lat0", "lon0", "lat1", "lon1"} {
		v, err := floatParam(q, name, math.NaN())
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		ends[i] = v
	}
	n, err := intParam(q, "n", defaultProfilePoints, 2, service.MaxProfileSamples)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	pts, err := s.svc.GeoidProfile(ends[0], ends[1], ends[2], ends[3], n)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := render.WriteProfile(&buf, "Geoid profile", "N (m)", pts); err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	res, err := s.svc.Scan(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if res.Entries == nil {
		res.Entries = []catalog.Entry{}
	}
	httputil.WriteJSONOK(w, res)
}
