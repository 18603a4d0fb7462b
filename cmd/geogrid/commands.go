package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/geogrid/internal/api"
	"github.com/banshee-data/geogrid/internal/config"
	"github.com/banshee-data/geogrid/internal/fsutil"
	"github.com/banshee-data/geogrid/internal/geoid"
	"github.com/banshee-data/geogrid/internal/gridfile"
	"github.com/banshee-data/geogrid/internal/httputil"
	"github.com/banshee-data/geogrid/internal/monitoring"
	"github.com/banshee-data/geogrid/internal/nadcon"
	"github.com/banshee-data/geogrid/internal/render"
	"github.com/banshee-data/geogrid/internal/security"
	"github.com/banshee-data/geogrid/internal/service"
	"github.com/banshee-data/geogrid/internal/units"
)

// remoteShift mirrors the /api/shift response.
type remoteShift struct {
	To struct {
		Lat    httputil.Float `json:"lat"`
		Lon    httputil.Float `json:"lon"`
		Height httputil.Float `json:"height"`
		Datum  string         `json:"datum"`
	} `json:"to"`
	Method string `json:"method"`
}

// remoteGeoid mirrors the /api/geoid response.
type remoteGeoid struct {
	Offset            httputil.Float `json:"offset"`
	OrthometricHeight httputil.Float `json:"orthometric_height"`
	Model             string         `json:"model"`
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 9, 64)
}

func handleShift(args []string, stdout io.Writer) error {
	fs, cfgPath := newFlagSet("shift")
	lat := fs.Float64("lat", 0, "Latitude in degrees (required)")
	lon := fs.Float64("lon", 0, "Longitude in degrees (required)")
	h := fs.Float64("h", 0, "Ellipsoid height in metres")
	from := fs.String("from", nadcon.CodeNAD27, "Source datum code")
	to := fs.String("to", nadcon.CodeNAD83, "Target datum code")
	server := fs.String("server", "", "Query a running geogrid server instead of local grids")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "lat", "lon"); err != nil {
		return err
	}

	if *server != "" {
		q := url.Values{}
		q.Set("lat", formatFloat(*lat))
		q.Set("lon", formatFloat(*lon))
		q.Set("h", formatFloat(*h))
		q.Set("from", *from)
		q.Set("to", *to)
		var res remoteShift
		if err := httputil.NewClient(httpClient, *server).GetJSON(context.Background(), "/api/shift", q, &res); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s %s %.3f %s (%s)\n",
			formatFloat(float64(res.To.Lat)), formatFloat(float64(res.To.Lon)), float64(res.To.Height), res.To.Datum, res.Method)
		return nil
	}

	svc, err := openService(*cfgPath, service.WithoutCatalog())
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.ShiftLatLon(*lat, *lon, *h, *from, *to)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s %s %.3f %s (%s)\n",
		formatFloat(res.Point.Lat), formatFloat(res.Point.Lon), res.Point.Height, res.Point.DatumCode(), res.Method)
	return nil
}

func handleGeoid(args []string, stdout io.Writer) error {
	fs, cfgPath := newFlagSet("geoid")
	lat := fs.Float64("lat", 0, "Latitude in degrees (required)")
	lon := fs.Float64("lon", 0, "Longitude in degrees (required)")
	h := fs.Float64("h", 0, "Ellipsoid height in metres")
	server := fs.String("server", "", "Query a running geogrid server instead of local models")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "lat", "lon"); err != nil {
		return err
	}

	if *server != "" {
		q := url.Values{}
		q.Set("lat", formatFloat(*lat))
		q.Set("lon", formatFloat(*lon))
		q.Set("h", formatFloat(*h))
		var res remoteGeoid
		if err := httputil.NewClient(httpClient, *server).GetJSON(context.Background(), "/api/geoid", q, &res); err != nil {
			return err
		}
		if res.Model == "" {
			return fmt.Errorf("%w: lat=%g lon=%g", geoid.ErrNoCoverage, *lat, *lon)
		}
		fmt.Fprintf(stdout, "N=%.4f H=%.4f (%s)\n", float64(res.Offset), float64(res.OrthometricHeight), res.Model)
		return nil
	}

	svc, err := openService(*cfgPath, service.WithoutCatalog())
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.GeoidHeight(*lat, *lon, *h)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "N=%.4f H=%.4f (%s)\n", res.Offset, res.OrthometricHeight, res.Model)
	return nil
}

// requireFlags fails unless every named flag was set on the command line.
func requireFlags(fs *flag.FlagSet, names ...string) error {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for _, n := range names {
		if !set[n] {
			return fmt.Errorf("--%s flag is required", n)
		}
	}
	return nil
}

func handleHeader(args []string, stdout io.Writer) error {
	fs, cfgPath := newFlagSet("header")
	file := fs.String("file", "", "Read this grid file directly instead of a name in the NADCON directory")
	order := fs.String("order", "", "Byte order for --file: little or big")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		h   gridfile.Header
		b   r2.Box
		err error
	)
	switch {
	case *file != "":
		bo, perr := config.ParseByteOrder(*order, binary.LittleEndian)
		if perr != nil {
			return perr
		}
		g := gridfile.New(fsutil.OSFileSystem{}, bo)
		if err := g.Open(*file); err != nil {
			return err
		}
		defer g.Close()
		h, b = g.Header(), g.Bounds()
	case fs.NArg() == 1:
		svc, serr := openService(*cfgPath, service.WithoutCatalog())
		if serr != nil {
			return serr
		}
		defer svc.Close()
		if h, b, err = svc.GridHeader(fs.Arg(0)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("usage: geogrid header <name> | --file <path>")
	}

	fmt.Fprintln(stdout, h.String())
	fmt.Fprintf(stdout, "bounds: lon [%g, %g] lat [%g, %g]\n", b.Min.X, b.Max.X, b.Min.Y, b.Max.Y)
	fmt.Fprintf(stdout, "record length %d, first value at %d, row stride %d, size %d\n",
		h.RecordLength(), h.StartOffset(), h.RowStride(), h.Size())
	return nil
}

func handleScan(args []string, stdout io.Writer) error {
	fs, cfgPath := newFlagSet("scan")
	verbose := fs.Bool("v", false, "List every catalogued grid")
	if err := fs.Parse(args); err != nil {
		return err
	}
	svc, err := openService(*cfgPath)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Scan(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "added %d, updated %d, removed %d, skipped %d\n", res.Added, res.Updated, res.Removed, res.Skipped)
	if *verbose {
		for _, e := range res.Entries {
			fmt.Fprintf(stdout, "%-12s %-10s %5dx%-5d %s\n", e.Kind, e.Region, e.Columns, e.Rows, e.Path)
		}
	}
	return nil
}

// outputPath picks where a rendered file goes. An explicit path must stay
// inside the working, temp or render directory; otherwise name is
// sanitised into the render directory.
func outputPath(cfg *config.GridConfig, explicit, name, ext string) (string, error) {
	renderDir := cfg.GetRenderDir()
	if explicit != "" {
		if err := security.ValidateOutputPath(explicit, renderDir); err != nil {
			return "", err
		}
		return explicit, nil
	}
	if err := os.MkdirAll(renderDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create render directory: %w", err)
	}
	return filepath.Join(renderDir, security.SanitizeFilename(name)+ext), nil
}

func handleHeatMap(args []string, stdout io.Writer) error {
	fs, cfgPath := newFlagSet("heatmap")
	grid := fs.String("grid", "", "NADCON grid file name, e.g. conus.las")
	minLat := fs.Float64("min-lat", -90, "Geoid surface south edge")
	maxLat := fs.Float64("max-lat", 90, "Geoid surface north edge")
	minLon := fs.Float64("min-lon", -180, "Geoid surface west edge")
	maxLon := fs.Float64("max-lon", 180, "Geoid surface east edge")
	cols := fs.Int("cols", 400, "Samples across")
	rows := fs.Int("rows", 200, "Samples down")
	out := fs.String("out", "", "Output file (.png, .svg or .pdf)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	svc, err := service.New(cfg, service.WithoutCatalog())
	if err != nil {
		return err
	}
	defer svc.Close()

	var (
		surf *render.Surface
		name string
		opts render.HeatMapOptions
	)
	if *grid != "" {
		name = strings.TrimSuffix(*grid, ".zst")
		opts = render.HeatMapOptions{Title: name, Label: "shift (arcsec)"}
		surf, err = svc.GridSurface(*grid, *cols, *rows)
	} else {
		name = fmt.Sprintf("geoid_%g_%g_%g_%g", *minLat, *minLon, *maxLat, *maxLon)
		opts = render.HeatMapOptions{Title: "Geoid height", Label: "N (m)"}
		b := r2.Box{Min: r2.Vec{X: *minLon, Y: *minLat}, Max: r2.Vec{X: *maxLon, Y: *maxLat}}
		surf, err = svc.GeoidSurface(b, *cols, *rows)
	}
	if err != nil {
		return err
	}

	path, err := outputPath(cfg, *out, name, ".png")
	if err != nil {
		return err
	}
	if err := render.SaveHeatMap(path, surf, opts); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s (%.0f%% coverage)\n", path, surf.Coverage()*100)
	return nil
}

func handleProfile(args []string, stdout io.Writer) error {
	fs, cfgPath := newFlagSet("profile")
	lat0 := fs.Float64("lat0", 0, "Start latitude (required)")
	lon0 := fs.Float64("lon0", 0, "Start longitude (required)")
	lat1 := fs.Float64("lat1", 0, "End latitude (required)")
	lon1 := fs.Float64("lon1", 0, "End longitude (required)")
	n := fs.Int("n", 200, "Number of samples")
	out := fs.String("out", "", "Output HTML file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "lat0", "lon0", "lat1", "lon1"); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	svc, err := service.New(cfg, service.WithoutCatalog())
	if err != nil {
		return err
	}
	defer svc.Close()

	pts, err := svc.GeoidProfile(*lat0, *lon0, *lat1, *lon1, *n)
	if err != nil {
		return err
	}
	path, err := outputPath(cfg, *out, fmt.Sprintf("profile_%g_%g_%g_%g", *lat0, *lon0, *lat1, *lon1), ".html")
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := render.WriteProfile(f, "Geoid profile", "N (m)", pts); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s (%d samples)\n", path, len(pts))
	return nil
}

func handleCompress(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("compress", flag.ContinueOnError)
	out := fs.String("out", "", "Output file (default: input with .zst appended)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: geogrid compress [--out file] <grid file>")
	}
	in := fs.Arg(0)
	dst := *out
	if dst == "" {
		dst = in + ".zst"
	}
	if !strings.HasSuffix(dst, ".zst") {
		return fmt.Errorf("output %s must end in .zst", dst)
	}

	src, err := os.Open(in)
	if err != nil {
		return err
	}
	defer src.Close()
	w, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := gridfile.CompressSeekable(w, src); err != nil {
		w.Close()
		os.Remove(dst)
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	// the compressed file must open as a grid
	g := gridfile.New(fsutil.OSFileSystem{}, nil)
	if err := g.Open(dst); err != nil {
		return fmt.Errorf("verify %s: %w", dst, err)
	}
	defer g.Close()
	fmt.Fprintf(stdout, "wrote %s (%s)\n", dst, g.Header())
	return nil
}

func handleMkgrid(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("mkgrid", flag.ContinueOnError)
	minLon := fs.Float64("min-lon", -131, "West edge in degrees")
	maxLon := fs.Float64("max-lon", -63, "East edge in degrees")
	minLat := fs.Float64("min-lat", 20, "South edge in degrees")
	maxLat := fs.Float64("max-lat", 50, "North edge in degrees")
	step := fs.Float64("step", 0.25, "Node spacing in degrees")
	value := fs.Float64("value", 0, "Shift stored at every node, in arc-seconds")
	order := fs.String("order", "little", "Byte order: little or big")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: geogrid mkgrid [options] <out.las|out.los>")
	}
	if *step <= 0 || *maxLon <= *minLon || *maxLat <= *minLat {
		return fmt.Errorf("invalid extent")
	}
	bo, err := config.ParseByteOrder(*order, binary.LittleEndian)
	if err != nil {
		return err
	}

	h := gridfile.Header{
		Columns: int32((*maxLon - *minLon) / *step),
		Rows:    int32((*maxLat - *minLat) / *step),
		ZField:  1,
		OriginX: *minLon,
		DeltaX:  *step,
		OriginY: *minLat,
		DeltaY:  *step,
	}
	values := make([]float32, int(h.Columns)*int(h.Rows))
	for i := range values {
		values[i] = float32(*value)
	}

	path := fs.Arg(0)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gridfile.Encode(f, h, values, bo); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s (%s, %.6f deg)\n", path, h, units.ArcSecToDeg(*value))
	return nil
}

// newHandler assembles the API routes, the catalog debug routes and the
// request logger.
func newHandler(svc *service.Service, deltaUnits string, admin bool) (http.Handler, error) {
	mux := api.NewServer(svc, deltaUnits).ServeMux()
	if admin {
		cat := svc.Catalog()
		if cat == nil {
			return nil, service.ErrNoCatalog
		}
		if err := cat.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return api.LoggingMiddleware(mux), nil
}

func handleServe(args []string, stdout io.Writer) error {
	fs, cfgPath := newFlagSet("serve")
	listen := fs.String("listen", "", "Listen address (default from config)")
	deltaUnits := fs.String("units", units.ArcSeconds, "Units for shift deltas: "+units.GetValidUnitsString())
	scan := fs.Bool("scan", true, "Scan the data root into the catalog at startup")
	admin := fs.Bool("admin", true, "Mount the catalog debug routes under /debug/")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !units.IsValid(*deltaUnits) {
		return fmt.Errorf("invalid units %q: must be one of %s", *deltaUnits, units.GetValidUnitsString())
	}

	svc, err := openService(*cfgPath)
	if err != nil {
		return err
	}
	defer svc.Close()

	if *scan {
		res, err := svc.Scan(context.Background())
		if err != nil {
			monitoring.Logf("initial scan failed: %v", err)
		} else {
			monitoring.Logf("catalogued %d grids (%d added, %d removed)", len(res.Entries), res.Added, res.Removed)
		}
	}

	handler, err := newHandler(svc, *deltaUnits, *admin)
	if err != nil {
		return err
	}
	addr := *listen
	if addr == "" {
		addr = svc.Config().GetListen()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(stdout, "listening on %s\n", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	monitoring.Logf("server stopped")
	return nil
}
