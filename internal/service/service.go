// Package service assembles the datum registry, the NADCON grid datums,
// the geoid models and the grid catalog from a GridConfig, and exposes
// the operations shared by the HTTP API and the command line.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/geogrid/internal/catalog"
	"github.com/banshee-data/geogrid/internal/config"
	"github.com/banshee-data/geogrid/internal/fsutil"
	"github.com/banshee-data/geogrid/internal/geodesy"
	"github.com/banshee-data/geogrid/internal/geoid"
	"github.com/banshee-data/geogrid/internal/monitoring"
	"github.com/banshee-data/geogrid/internal/nadcon"
	"github.com/banshee-data/geogrid/internal/timeutil"
)

// ErrNoCatalog is returned by catalog operations when the service was
// built without one.
var ErrNoCatalog = errors.New("grid catalog disabled")

// Service owns every open grid. Close releases them.
type Service struct {
	cfg      *config.GridConfig
	fsys     fsutil.FileSystem
	clock    timeutil.Clock
	logf     func(format string, v ...interface{})
	registry *geodesy.Registry
	nad83    *nadcon.GridDatum
	nad27    *nadcon.GridDatum
	geoids   *geoid.Manager
	catalog  *catalog.Catalog
}

type options struct {
	fsys      fsutil.FileSystem
	clock     timeutil.Clock
	noCatalog bool
}

// Option configures New.
type Option func(*options)

// WithFileSystem reads grids from fsys instead of the OS filesystem. The
// catalog database itself always lives on the OS filesystem.
func WithFileSystem(fsys fsutil.FileSystem) Option {
	return func(o *options) { o.fsys = fsys }
}

// WithClock sets the clock used for catalog stamps.
func WithClock(clock timeutil.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithoutCatalog skips opening the catalog database.
func WithoutCatalog() Option {
	return func(o *options) { o.noCatalog = true }
}

// New validates cfg and builds a Service. Grid files are opened lazily by
// the datums; geoid models that fail to open are logged and left out.
func New(cfg *config.GridConfig, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.EmptyGridConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	o := options{fsys: fsutil.OSFileSystem{}, clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		cfg:      cfg,
		fsys:     o.fsys,
		clock:    o.clock,
		logf:     monitoring.Component("service"),
		registry: geodesy.NewRegistry(),
		geoids:   geoid.NewManager(),
	}

	if err := s.buildDatums(); err != nil {
		return nil, err
	}
	if err := s.buildGeoids(); err != nil {
		return nil, err
	}
	if !o.noCatalog {
		if err := s.openCatalog(); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// buildDatums replaces the parametric NAD83 and NAD27 CONUS datums with
// grid datums that keep them as their fallback.
func (s *Service) buildDatums() error {
	nar, err := s.threeParam(nadcon.CodeNAD83)
	if err != nil {
		return err
	}
	nas, err := s.threeParam(nadcon.CodeNAD27)
	if err != nil {
		return err
	}

	dir := s.cfg.GetNadconDir()
	gridOpts := []nadcon.Option{
		nadcon.WithFileSystem(s.fsys),
		nadcon.WithByteOrder(s.cfg.GetNadconByteOrder()),
	}
	s.nad83 = nadcon.NewNAD83(dir, nar, gridOpts...)
	s.nad27 = nadcon.NewNAD27(dir, nas, gridOpts...)
	s.registry.Register(s.nad83)
	s.registry.Register(s.nad27)
	return nil
}

func (s *Service) threeParam(code string) (*geodesy.ThreeParamDatum, error) {
	d, err := s.registry.Get(code)
	if err != nil {
		return nil, err
	}
	tp, ok := d.(*geodesy.ThreeParamDatum)
	if !ok {
		return nil, fmt.Errorf("datum %s is not a three-parameter datum", code)
	}
	return tp, nil
}

func (s *Service) buildGeoids() error {
	for _, m := range s.cfg.GetGeoidModels() {
		g, err := geoid.New(m.Kind, s.fsys)
		if err != nil {
			return err
		}
		order, err := config.ParseByteOrder(m.ByteOrder, nil)
		if err != nil {
			return err
		}
		if err := g.Open(m.Path, order); err != nil {
			s.logf("geoid model %s at %s unavailable: %v", m.Kind, m.Path, err)
			continue
		}
		s.logf("loaded geoid model %s from %s", g.ShortName(), m.Path)
		s.geoids.Add(g)
	}
	return nil
}

func (s *Service) openCatalog() error {
	path := s.cfg.GetCatalogPath()
	if path != config.MemoryCatalog {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create catalog directory: %w", err)
		}
	}
	c, err := catalog.Open(path,
		catalog.WithFileSystem(s.fsys),
		catalog.WithClock(s.clock),
		catalog.WithNadconByteOrder(s.cfg.GetNadconByteOrder()),
	)
	if err != nil {
		return err
	}
	s.catalog = c
	return nil
}

// Config returns the configuration the service was built from.
func (s *Service) Config() *config.GridConfig { return s.cfg }

// FileSystem returns the filesystem grids are read from.
func (s *Service) FileSystem() fsutil.FileSystem { return s.fsys }

// Registry returns the datum registry, with the grid datums registered
// under their codes.
func (s *Service) Registry() *geodesy.Registry { return s.registry }

// Geoids returns the geoid manager.
func (s *Service) Geoids() *geoid.Manager { return s.geoids }

// Catalog returns the grid catalog, or nil when disabled.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// NAD83 returns the grid datum that shifts NAD27 points onto NAD83.
func (s *Service) NAD83() *nadcon.GridDatum { return s.nad83 }

// NAD27 returns the grid datum that shifts NAD83 points onto NAD27.
func (s *Service) NAD27() *nadcon.GridDatum { return s.nad27 }

// Scan indexes the grid files under the data root.
func (s *Service) Scan(ctx context.Context) (catalog.ScanResult, error) {
	if s.catalog == nil {
		return catalog.ScanResult{}, ErrNoCatalog
	}
	return s.catalog.Scan(ctx, s.cfg.GetDataRoot())
}

// Close releases the grid handles and the catalog.
func (s *Service) Close() error {
	var errs []error
	if s.nad83 != nil {
		errs = append(errs, s.nad83.Close())
	}
	if s.nad27 != nil {
		errs = append(errs, s.nad27.Close())
	}
	if s.catalog != nil {
		errs = append(errs, s.catalog.Close())
		s.catalog = nil
	}
	return errors.Join(errs...)
}
