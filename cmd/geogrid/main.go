package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/banshee-data/geogrid/internal/config"
	"github.com/banshee-data/geogrid/internal/httputil"
	"github.com/banshee-data/geogrid/internal/service"
	"github.com/banshee-data/geogrid/internal/version"
)

// httpClient is used by the -server mode of shift and geoid.
var httpClient httputil.HTTPClient = httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Second})

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	if err := run(flag.Arg(0), flag.Args()[1:], os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(command string, args []string, stdout io.Writer) error {
	switch command {
	case "shift":
		return handleShift(args, stdout)
	case "geoid":
		return handleGeoid(args, stdout)
	case "header":
		return handleHeader(args, stdout)
	case "scan":
		return handleScan(args, stdout)
	case "heatmap":
		return handleHeatMap(args, stdout)
	case "profile":
		return handleProfile(args, stdout)
	case "compress":
		return handleCompress(args, stdout)
	case "mkgrid":
		return handleMkgrid(args, stdout)
	case "serve":
		return handleServe(args, stdout)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return nil
	case "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage() {
	fmt.Println(`geogrid - NADCON datum shifts and geoid heights

Usage: geogrid <command> [options]

Commands:
  shift      Shift a point between datums (NAD27 <-> NAD83 by grid)
  geoid      Convert an ellipsoid height to a height above the geoid
  header     Print the header of a NADCON grid file
  scan       Index the grid files under the data root into the catalog
  heatmap    Render a grid or geoid surface as a PNG heat map
  profile    Render a geoid height profile between two points as HTML
  compress   Convert a grid file to seekable zstd (.zst)
  mkgrid     Write a constant-valued NADCON grid file
  serve      Run the HTTP API
  version    Show geogrid version
  help       Show this help message

Common Flags:
  --config <file>      Configuration file (default: config/geogrid.defaults.json
                       when present, otherwise built-in defaults)

Examples:
  # NAD27 to NAD83 at a CONUS point
  geogrid shift --lat 40 --lon -100

  # Same query against a running server
  geogrid shift --lat 40 --lon -100 --server http://localhost:8090

  # Orthometric height from GPS
  geogrid geoid --lat 32.7 --lon -117.2 --h 12.5

  # Heat map of the CONUS longitude shifts
  geogrid heatmap --grid conus.los --cols 400 --rows 200`)
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Configuration file path")
	return fs, cfgPath
}

// loadConfig reads path, or the default configuration file when path is
// empty and that file exists.
func loadConfig(path string) (*config.GridConfig, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return config.EmptyGridConfig(), nil
		}
		path = config.DefaultConfigPath
	}
	return config.LoadConfig(path)
}

func openService(cfgPath string, opts ...service.Option) (*service.Service, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	return service.New(cfg, opts...)
}
