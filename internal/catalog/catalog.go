// Package catalog keeps a SQLite index of the grid files found under the
// data root: their kind, header and coverage rectangle.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/geogrid/internal/fsutil"
	"github.com/banshee-data/geogrid/internal/monitoring"
	"github.com/banshee-data/geogrid/internal/timeutil"
	"github.com/banshee-data/geogrid/internal/units"
)

// Grid kinds recorded in the catalog.
const (
	KindNadconLat = "nadcon-las"
	KindNadconLon = "nadcon-los"
	KindEGM96     = "egm96"
	KindNGS       = "ngs"
)

// ErrNotFound is returned when a path is not catalogued.
var ErrNotFound = errors.New("grid not in catalog")

// Entry describes one catalogued grid file. Bounds use X for longitude
// and Y for latitude in the file's own longitude convention.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Path      string    `json:"path"`
	Kind      string    `json:"kind"`
	Region    string    `json:"region"`
	Columns   int       `json:"columns"`
	Rows      int       `json:"rows"`
	MinX      float64   `json:"min_x"`
	MinY      float64   `json:"min_y"`
	MaxX      float64   `json:"max_x"`
	MaxY      float64   `json:"max_y"`
	DeltaX    float64   `json:"delta_x"`
	DeltaY    float64   `json:"delta_y"`
	ByteOrder string    `json:"byte_order"`
	SizeBytes int64     `json:"size_bytes"`
	ScannedAt time.Time `json:"scanned_at"`
}

// Bounds returns the coverage rectangle.
func (e Entry) Bounds() r2.Box {
	return r2.NewBox(e.MinX, e.MinY, e.MaxX, e.MaxY)
}

// Covers reports whether the rectangle contains (lat, lon). The longitude
// is tried in [-180, 180), in [0, 360) and 360 degrees west, so grids
// stored in either convention match.
func (e Entry) Covers(lat, lon float64) bool {
	b := e.Bounds()
	west := units.WrapLon180(lon)
	for _, x := range []float64{west, units.WrapLon360(lon), west - 360} {
		if b.Contains(r2.Vec{X: x, Y: lat}) {
			return true
		}
	}
	return false
}

// Catalog is a grid index backed by SQLite.
type Catalog struct {
	db    *sql.DB
	fsys  fsutil.FileSystem
	clock timeutil.Clock
	logf  func(format string, v ...interface{})
	opts  scanOptions
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithFileSystem scans fsys instead of the OS filesystem.
func WithFileSystem(fsys fsutil.FileSystem) Option {
	return func(c *Catalog) { c.fsys = fsys }
}

// WithClock stamps entries with clock.
func WithClock(clock timeutil.Clock) Option {
	return func(c *Catalog) { c.clock = clock }
}

// Open opens or creates the catalog database at path and migrates it to
// the current schema. Use ":memory:" for a throwaway catalog.
func Open(path string, opts ...Option) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	// an in-memory database exists per connection
	db.SetMaxOpenConns(1)

	c := &Catalog{
		db:    db,
		fsys:  fsutil.OSFileSystem{},
		clock: timeutil.RealClock{},
		logf:  monitoring.Component("catalog"),
		opts:  defaultScanOptions(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

const entryColumns = `grid_id, path, kind, region, columns, rows, min_x, min_y, max_x, max_y,
	delta_x, delta_y, byte_order, size_bytes, scanned_at`

// Put inserts e or replaces the entry with the same path. A new entry is
// given a fresh ID; an existing one keeps its ID. A zero ScannedAt is
// stamped with the catalog clock.
func (c *Catalog) Put(ctx context.Context, e Entry) (Entry, error) {
	existing, err := c.Get(ctx, e.Path)
	switch {
	case err == nil:
		e.ID = existing.ID
	case errors.Is(err, ErrNotFound):
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
	default:
		return Entry{}, err
	}
	if e.ScannedAt.IsZero() {
		e.ScannedAt = c.clock.Now()
	}
	e.ScannedAt = e.ScannedAt.UTC().Truncate(time.Millisecond)

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO grids (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			kind = excluded.kind,
			region = excluded.region,
			columns = excluded.columns,
			rows = excluded.rows,
			min_x = excluded.min_x,
			min_y = excluded.min_y,
			max_x = excluded.max_x,
			max_y = excluded.max_y,
			delta_x = excluded.delta_x,
			delta_y = excluded.delta_y,
			byte_order = excluded.byte_order,
			size_bytes = excluded.size_bytes,
			scanned_at = excluded.scanned_at`,
		e.ID.String(), e.Path, e.Kind, e.Region, e.Columns, e.Rows,
		e.MinX, e.MinY, e.MaxX, e.MaxY, e.DeltaX, e.DeltaY,
		e.ByteOrder, e.SizeBytes, e.ScannedAt.UnixMilli(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to store %s: %w", e.Path, err)
	}
	return e, nil
}

// Get returns the entry for path.
func (c *Catalog) Get(ctx context.Context, path string) (Entry, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM grids WHERE path = ?`, path)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return e, err
}

// List returns every entry ordered by path.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	return c.query(ctx, `SELECT `+entryColumns+` FROM grids ORDER BY path`)
}

// FindByRegion returns the entries whose region name matches, ordered by path.
func (c *Catalog) FindByRegion(ctx context.Context, region string) ([]Entry, error) {
	return c.query(ctx, `SELECT `+entryColumns+` FROM grids WHERE region = ? ORDER BY path`, region)
}

// FindCovering returns the entries whose rectangle contains (lat, lon),
// ordered by path.
func (c *Catalog) FindCovering(ctx context.Context, lat, lon float64) ([]Entry, error) {
	candidates, err := c.query(ctx,
		`SELECT `+entryColumns+` FROM grids WHERE min_y <= ? AND max_y >= ? ORDER BY path`, lat, lat)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range candidates {
		if e.Covers(lat, lon) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Remove deletes the entry for path.
func (c *Catalog) Remove(ctx context.Context, path string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM grids WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return nil
}

// Count returns the number of entries.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM grids`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *Catalog) query(ctx context.Context, q string, args ...interface{}) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var (
		e       Entry
		id      string
		scanned int64
	)
	err := r.Scan(&id, &e.Path, &e.Kind, &e.Region, &e.Columns, &e.Rows,
		&e.MinX, &e.MinY, &e.MaxX, &e.MaxY, &e.DeltaX, &e.DeltaY,
		&e.ByteOrder, &e.SizeBytes, &scanned)
	if err != nil {
		return Entry{}, err
	}
	if e.ID, err = uuid.Parse(id); err != nil {
		return Entry{}, fmt.Errorf("bad grid id %q: %w", id, err)
	}
	e.ScannedAt = time.UnixMilli(scanned).UTC()
	return e, nil
}
