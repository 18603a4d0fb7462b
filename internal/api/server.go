// Package api serves datum shifts, geoid heights and grid diagnostics
// over HTTP.
package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/banshee-data/geogrid/internal/geodesy"
	"github.com/banshee-data/geogrid/internal/geoid"
	"github.com/banshee-data/geogrid/internal/httputil"
	"github.com/banshee-data/geogrid/internal/monitoring"
	"github.com/banshee-data/geogrid/internal/nadcon"
	"github.com/banshee-data/geogrid/internal/service"
	"github.com/banshee-data/geogrid/internal/units"
	"github.com/banshee-data/geogrid/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes a Service over HTTP. units selects how shift deltas are
// reported when a request does not say.
type Server struct {
	svc   *service.Service
	units string
}

// NewServer returns a server over svc. An invalid units value falls back
// to arc-seconds.
func NewServer(svc *service.Service, deltaUnits string) *Server {
	if !units.IsValid(deltaUnits) {
		deltaUnits = units.ArcSeconds
	}
	return &Server{svc: svc, units: deltaUnits}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/shift", s.handleShift)
	mux.HandleFunc("/api/geoid", s.handleGeoid)
	mux.HandleFunc("/api/geoid/heatmap", s.handleGeoidHeatMap)
	mux.HandleFunc("/api/profile", s.handleProfile)
	mux.HandleFunc("/api/datums", s.handleDatums)
	mux.HandleFunc("/api/grids", s.handleGrids)
	mux.HandleFunc("/api/grids/header", s.handleGridHeader)
	mux.HandleFunc("/api/grids/heatmap", s.handleGridHeatMap)
	mux.HandleFunc("/api/scan", s.handleScan)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

// floatParam reads a query parameter. A missing parameter yields def, or
// an error when def is NaN.
func floatParam(q url.Values, name string, def float64) (float64, error) {
	raw := q.Get(name)
	if raw == "" {
		if math.IsNaN(def) {
			return 0, fmt.Errorf("missing '%s' parameter", name)
		}
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid '%s' parameter", name)
	}
	return v, nil
}

func intParam(q url.Values, name string, def, lo, hi int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("invalid '%s' parameter (want %d..%d)", name, lo, hi)
	}
	return v, nil
}

type pointResponse struct {
	Lat    httputil.Float `json:"lat"`
	Lon    httputil.Float `json:"lon"`
	Height httputil.Float `json:"height"`
	Datum  string         `json:"datum"`
}

func newPointResponse(p geodesy.GeodeticPoint) pointResponse {
	return pointResponse{
		Lat:    httputil.Float(p.Lat),
		Lon:    httputil.Float(p.Lon),
		Height: httputil.Float(p.Height),
		Datum:  p.DatumCode(),
	}
}

type shiftResponse struct {
	From     pointResponse  `json:"from"`
	To       pointResponse  `json:"to"`
	Method   string         `json:"method"`
	DeltaLat httputil.Float `json:"delta_lat"`
	DeltaLon httputil.Float `json:"delta_lon"`
	Units    string         `json:"units"`
}

func (s *Server) handleShift(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	lat, err := floatParam(q, "lat", math.NaN())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	lon, err := floatParam(q, "lon", math.NaN())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	h, err := floatParam(q, "h", 0)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	from, to := q.Get("from"), q.Get("to")
	if from == "" {
		from = nadcon.CodeNAD27
	}
	if to == "" {
		to = nadcon.CodeNAD83
	}
	deltaUnits := s.units
	if u := q.Get("units"); u != "" {
		if !units.IsValid(u) {
			httputil.BadRequest(w, fmt.Sprintf("Invalid 'units' parameter. Must be one of: %s", units.GetValidUnitsString()))
			return
		}
		deltaUnits = u
	}

	res, err := s.svc.ShiftLatLon(lat, lon, h, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSONOK(w, shiftResponse{
		From:     newPointResponse(res.From),
		To:       newPointResponse(res.Point),
		Method:   res.Method,
		DeltaLat: httputil.Float(units.ConvertAngle(res.Point.Lat-res.From.Lat, deltaUnits)),
		DeltaLon: httputil.Float(units.ConvertAngle(res.Point.Lon-res.From.Lon, deltaUnits)),
		Units:    deltaUnits,
	})
}

type geoidResponse struct {
	Lat               float64        `json:"lat"`
	Lon               float64        `json:"lon"`
	EllipsoidHeight   float64        `json:"ellipsoid_height"`
	Offset            httputil.Float `json:"offset"`
	OrthometricHeight httputil.Float `json:"orthometric_height"`
	Model             string         `json:"model,omitempty"`
}

// handleGeoid answers with a null offset when no model covers the point;
// that is an ordinary outcome rather than an error.
func (s *Server) handleGeoid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	lat, err := floatParam(q, "lat", math.NaN())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	lon, err := floatParam(q, "lon", math.NaN())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	h, err := floatParam(q, "h", 0)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	res, err := s.svc.GeoidHeight(lat, lon, h)
	switch {
	case errors.Is(err, geoid.ErrNoCoverage):
		nan := httputil.Float(math.NaN())
		httputil.WriteJSONOK(w, geoidResponse{Lat: lat, Lon: lon, EllipsoidHeight: h, Offset: nan, OrthometricHeight: nan})
	case err != nil:
		writeServiceError(w, err)
	default:
		httputil.WriteJSONOK(w, geoidResponse{
			Lat:               res.Lat,
			Lon:               res.Lon,
			EllipsoidHeight:   res.EllipsoidHeight,
			Offset:            httputil.Float(res.Offset),
			OrthometricHeight: httputil.Float(res.OrthometricHeight),
			Model:             res.Model,
		})
	}
}

type datumResponse struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (s *Server) handleDatums(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	reg := s.svc.Registry()
	out := []datumResponse{}
	for _, code := range reg.Codes() {
		d, err := reg.Get(code)
		if err != nil {
			continue
		}
		out = append(out, datumResponse{Code: d.Code(), Name: d.Name()})
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	cfg := s.svc.Config()
	models := []string{}
	for _, g := range s.svc.Geoids().Geoids() {
		models = append(models, g.ShortName())
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":        s.units,
		"data_root":    cfg.GetDataRoot(),
		"nadcon_dir":   cfg.GetNadconDir(),
		"catalog":      s.svc.Catalog() != nil,
		"geoid_models": models,
	})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
