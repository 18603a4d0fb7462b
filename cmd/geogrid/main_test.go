package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/geogrid/internal/config"
	"github.com/banshee-data/geogrid/internal/fsutil"
	"github.com/banshee-data/geogrid/internal/geoid"
	"github.com/banshee-data/geogrid/internal/gridfile"
	"github.com/banshee-data/geogrid/internal/httputil"
	"github.com/banshee-data/geogrid/internal/service"
	"github.com/banshee-data/geogrid/internal/testutil"
)

// writeDataRoot lays out a data root with a CONUS grid pair, an NGS grid
// and a global EGM96 grid, and returns the path of a config file for it.
func writeDataRoot(t *testing.T) (root, cfgPath string) {
	t.Helper()
	root = t.TempDir()
	fsys := fsutil.OSFileSystem{}
	for _, dir := range []string{"nadcon", "ngs"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	testutil.WriteShiftPair(t, fsys, filepath.Join(root, "nadcon"), "conus", testutil.RegionHeader(-131, -63, 20, 50, 1), 0.36, 1.8)
	testutil.WriteNGS(t, fsys, filepath.Join(root, "ngs", "g2012a.bin"), 30, 240, 1, 5, 5, -35)
	testutil.WriteEGM96(t, fsys, filepath.Join(root, "egm96.grd"), 15, -30)

	cfg := map[string]interface{}{
		"data_root": root,
		"geoid_models": []map[string]string{
			{"kind": config.GeoidKindNGS, "path": "ngs"},
			{"kind": config.GeoidKindEGM96, "path": "egm96.grd"},
		},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	cfgPath = filepath.Join(root, "geogrid.json")
	require.NoError(t, os.WriteFile(cfgPath, data, 0o644))
	return root, cfgPath
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(args[0], args[1:], &out)
	return out.String(), err
}

func TestShiftCommand(t *testing.T) {
	_, cfg := writeDataRoot(t)

	out, err := runCmd(t, "shift", "-config", cfg, "-lat", "40", "-lon", "-100", "-h", "5")
	require.NoError(t, err)
	assert.Equal(t, "40.000100000 -100.000500000 5.000 NAR-C (grid)\n", out)

	out, err = runCmd(t, "shift", "-config", cfg, "-lat", "40.0001", "-lon", "-100.0005", "-from", "NAR-C", "-to", "NAS-C")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "40.000000000 -100.000000000"), out)

	out, err = runCmd(t, "shift", "-config", cfg, "-lat", "0", "-lon", "-150")
	require.NoError(t, err)
	assert.Contains(t, out, "(parametric)")

	_, err = runCmd(t, "shift", "-config", cfg, "-lat", "40")
	assert.ErrorContains(t, err, "--lon flag is required")

	_, err = runCmd(t, "shift", "-config", cfg, "-lat", "40", "-lon", "-100", "-to", "XXX")
	assert.Error(t, err)
}

func TestShiftCommandRemote(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"to":{"lat":40.0001,"lon":-100.0005,"height":0,"datum":"NAR-C"},"method":"grid"}`)
	mock.AddResponse(http.StatusBadRequest, `{"error":"invalid 'lat' parameter"}`)
	saved := httpClient
	httpClient = mock
	defer func() { httpClient = saved }()

	out, err := runCmd(t, "shift", "-lat", "40", "-lon", "-100", "-server", "http://geogrid.local:8090/")
	require.NoError(t, err)
	assert.Equal(t, "40.000100000 -100.000500000 0.000 NAR-C (grid)\n", out)

	req := mock.GetRequest(0)
	require.NotNil(t, req)
	assert.Equal(t, "geogrid.local:8090", req.URL.Host)
	assert.Equal(t, "/api/shift", req.URL.Path)
	assert.Equal(t, "NAS-C", req.URL.Query().Get("from"))

	_, err = runCmd(t, "shift", "-lat", "40", "-lon", "-100", "-server", "http://geogrid.local:8090")
	assert.ErrorContains(t, err, "invalid 'lat' parameter")
}

func TestGeoidCommand(t *testing.T) {
	_, cfg := writeDataRoot(t)

	out, err := runCmd(t, "geoid", "-config", cfg, "-lat", "32", "-lon", "-118", "-h", "100")
	require.NoError(t, err)
	assert.Equal(t, "N=-35.0000 H=135.0000 (geoid12)\n", out)

	out, err = runCmd(t, "geoid", "-config", cfg, "-lat", "-45", "-lon", "170", "-h", "100")
	require.NoError(t, err)
	assert.Equal(t, "N=-30.0000 H=130.0000 (egm96)\n", out)

	_, err = runCmd(t, "geoid", "-config", cfg, "-lat", "95", "-lon", "0")
	assert.ErrorIs(t, err, service.ErrInvalidPoint)
}

func TestGeoidCommandRemoteNoCoverage(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"lat":-45,"lon":170,"ellipsoid_height":0,"offset":null,"orthometric_height":null}`)
	saved := httpClient
	httpClient = mock
	defer func() { httpClient = saved }()

	_, err := runCmd(t, "geoid", "-lat", "-45", "-lon", "170", "-server", "http://geogrid.local:8090")
	assert.ErrorIs(t, err, geoid.ErrNoCoverage)
}

func TestHeaderCommand(t *testing.T) {
	root, cfg := writeDataRoot(t)

	out, err := runCmd(t, "header", "-config", cfg, "conus.las")
	require.NoError(t, err)
	assert.Contains(t, out, "cols=68 rows=30")
	assert.Contains(t, out, "bounds: lon [-131, -63] lat [20, 50]")
	assert.Contains(t, out, "record length 276, first value at 280, row stride 276")

	out, err = runCmd(t, "header", "-file", filepath.Join(root, "nadcon", "conus.los"))
	require.NoError(t, err)
	assert.Contains(t, out, "cols=68 rows=30")

	_, err = runCmd(t, "header", "-config", cfg, "../egm96.grd")
	assert.Error(t, err)
	_, err = runCmd(t, "header", "-config", cfg)
	assert.ErrorContains(t, err, "usage")
}

func TestScanCommand(t *testing.T) {
	_, cfg := writeDataRoot(t)

	out, err := runCmd(t, "scan", "-config", cfg, "-v")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "added 4, updated 0, removed 0, skipped 0", lines[0])
	assert.Len(t, lines, 5)

	out, err = runCmd(t, "scan", "-config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "added 0, updated 4, removed 0, skipped 0\n", out)
}

func TestHeatMapCommand(t *testing.T) {
	root, cfg := writeDataRoot(t)

	out, err := runCmd(t, "heatmap", "-config", cfg, "-grid", "conus.las", "-cols", "20", "-rows", "10")
	require.NoError(t, err)
	want := filepath.Join(root, "render", "conus.las.png")
	assert.Contains(t, out, want)
	info, err := os.Stat(want)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	explicit := filepath.Join(t.TempDir(), "geoid.png")
	_, err = runCmd(t, "heatmap", "-config", cfg, "-min-lat", "20", "-max-lat", "50",
		"-min-lon", "-130", "-max-lon", "-60", "-cols", "20", "-rows", "10", "-out", explicit)
	require.NoError(t, err)
	_, err = os.Stat(explicit)
	assert.NoError(t, err)

	_, err = runCmd(t, "heatmap", "-config", cfg, "-grid", "conus.las", "-out", "/etc/geogrid.png")
	assert.Error(t, err)
	_, err = runCmd(t, "heatmap", "-config", cfg, "-grid", "conus.las", "-cols", "1")
	assert.Error(t, err)
}

func TestProfileCommand(t *testing.T) {
	root, cfg := writeDataRoot(t)

	out, err := runCmd(t, "profile", "-config", cfg, "-lat0", "32", "-lon0", "-125", "-lat1", "32", "-lon1", "-110", "-n", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "(30 samples)")

	matches, err := filepath.Glob(filepath.Join(root, "render", "profile_*.html"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	html, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(html), "Geoid profile")

	_, err = runCmd(t, "profile", "-config", cfg, "-lat0", "32")
	assert.Error(t, err)
}

func TestMkgridAndCompressCommands(t *testing.T) {
	dir := t.TempDir()
	las := filepath.Join(dir, "test.las")

	out, err := runCmd(t, "mkgrid", "-min-lon", "-100", "-max-lon", "-90", "-min-lat", "30", "-max-lat", "40",
		"-step", "0.5", "-value", "0.36", las)
	require.NoError(t, err)
	assert.Contains(t, out, "cols=20 rows=20")

	g := gridfile.New(fsutil.OSFileSystem{}, nil)
	require.NoError(t, g.Open(las))
	v, err := g.Lookup(35, -95)
	require.NoError(t, err)
	assert.InDelta(t, 0.36, v, 1e-6)
	g.Close()

	out, err = runCmd(t, "compress", las)
	require.NoError(t, err)
	assert.Contains(t, out, las+".zst")

	require.NoError(t, g.Open(las+".zst"))
	defer g.Close()
	v, err = g.Lookup(35, -95)
	require.NoError(t, err)
	assert.InDelta(t, 0.36, v, 1e-6)

	_, err = runCmd(t, "compress", "-out", filepath.Join(dir, "x.gz"), las)
	assert.Error(t, err)
	_, err = runCmd(t, "mkgrid", "-step", "0", las)
	assert.Error(t, err)
	_, err = runCmd(t, "mkgrid", "-order", "middle", las)
	assert.Error(t, err)
}

func TestNewHandler(t *testing.T) {
	_, cfgPath := writeDataRoot(t)
	svc, err := openService(cfgPath)
	require.NoError(t, err)
	defer svc.Close()

	h, err := newHandler(svc, "deg", true)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	noCat, err := openService(cfgPath, service.WithoutCatalog())
	require.NoError(t, err)
	defer noCat.Close()
	_, err = newHandler(noCat, "deg", true)
	assert.ErrorIs(t, err, service.ErrNoCatalog)
}

func TestRunUnknownCommand(t *testing.T) {
	_, err := runCmd(t, "frobnicate")
	assert.ErrorContains(t, err, "unknown command")

	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "geogrid "))

	_, err = runCmd(t, "shift", "-no-such-flag")
	assert.Error(t, err)
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "data", cfg.GetDataRoot())

	_, err = loadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
