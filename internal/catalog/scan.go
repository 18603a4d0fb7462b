package catalog

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/banshee-data/geogrid/internal/geoid"
	"github.com/banshee-data/geogrid/internal/gridfile"
)

type scanOptions struct {
	nadconOrder binary.ByteOrder
	egm96Order  binary.ByteOrder
	ngsOrder    binary.ByteOrder
}

func defaultScanOptions() scanOptions {
	return scanOptions{
		nadconOrder: binary.LittleEndian,
		egm96Order:  geoid.DefaultEGM96ByteOrder,
		ngsOrder:    geoid.DefaultNGSByteOrder,
	}
}

// WithNadconByteOrder sets the byte order used to read .las/.los headers.
func WithNadconByteOrder(order binary.ByteOrder) Option {
	return func(c *Catalog) {
		if order != nil {
			c.opts.nadconOrder = order
		}
	}
}

// ScanResult summarises one Scan.
type ScanResult struct {
	Added   int     `json:"added"`
	Updated int     `json:"updated"`
	Removed int     `json:"removed"`
	Skipped int     `json:"skipped"`
	Entries []Entry `json:"entries"`
}

// Scan walks root and records every grid file it recognises: NADCON
// .las/.los, EGM96 .grd and NGS .bin, each optionally zstd compressed.
// Recognised files whose headers cannot be read are logged and skipped.
// Catalogued entries under root that no longer exist are removed.
func (c *Catalog) Scan(ctx context.Context, root string) (ScanResult, error) {
	start := c.clock.Now()
	root = filepath.Clean(root)

	var (
		res  ScanResult
		seen = map[string]bool{}
	)
	err := c.walk(ctx, root, func(path string) error {
		e, ok, err := c.inspect(path)
		if !ok {
			return nil
		}
		if err != nil {
			c.logf("skipping %s: %v", path, err)
			res.Skipped++
			return nil
		}
		seen[path] = true

		_, getErr := c.Get(ctx, path)
		if e, err = c.Put(ctx, e); err != nil {
			return err
		}
		if getErr == nil {
			res.Updated++
		} else {
			res.Added++
		}
		res.Entries = append(res.Entries, e)
		return nil
	})
	if err != nil {
		return res, err
	}

	all, err := c.List(ctx)
	if err != nil {
		return res, err
	}
	prefix := root + string(filepath.Separator)
	for _, e := range all {
		if !strings.HasPrefix(e.Path, prefix) || seen[e.Path] {
			continue
		}
		if err := c.Remove(ctx, e.Path); err != nil {
			return res, err
		}
		res.Removed++
	}

	c.logf("scanned %s in %v: %d added, %d updated, %d removed, %d skipped",
		root, c.clock.Since(start), res.Added, res.Updated, res.Removed, res.Skipped)
	return res, nil
}

// walk calls fn for every regular file under dir in name order.
func (c *Catalog) walk(ctx context.Context, dir string, fn func(path string) error) error {
	entries, err := c.fsys.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}
	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(dir, de.Name())
		if de.IsDir() {
			err = c.walk(ctx, path, fn)
		} else {
			err = fn(path)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// classify returns the kind and region name for a grid file name, or ""
// when the file is not a grid.
func classify(path string) (kind, region string) {
	name := strings.TrimSuffix(filepath.Base(path), ".zst")
	ext := strings.ToLower(filepath.Ext(name))
	region = strings.TrimSuffix(name, filepath.Ext(name))
	switch ext {
	case ".las":
		return KindNadconLat, region
	case ".los":
		return KindNadconLon, region
	case ".grd":
		return KindEGM96, region
	case ".bin":
		return KindNGS, region
	}
	return "", ""
}

// inspect reads the header of path. ok is false when the file is not a grid.
func (c *Catalog) inspect(path string) (e Entry, ok bool, err error) {
	kind, region := classify(path)
	if kind == "" {
		return Entry{}, false, nil
	}
	e = Entry{Path: path, Kind: kind, Region: region}

	info, err := c.fsys.Stat(path)
	if err != nil {
		return e, true, err
	}
	e.SizeBytes = info.Size()

	switch kind {
	case KindNadconLat, KindNadconLon:
		err = c.inspectNadcon(&e)
	case KindEGM96:
		err = c.inspectEGM96(&e)
	case KindNGS:
		err = c.inspectNGS(&e)
	}
	return e, true, err
}

func (c *Catalog) inspectNadcon(e *Entry) error {
	g := gridfile.New(c.fsys, c.opts.nadconOrder)
	if err := g.Open(e.Path); err != nil {
		return err
	}
	defer g.Close()

	h := g.Header()
	b := g.Bounds()
	e.Columns, e.Rows = int(h.Columns), int(h.Rows)
	e.MinX, e.MinY, e.MaxX, e.MaxY = b.Min.X, b.Min.Y, b.Max.X, b.Max.Y
	e.DeltaX, e.DeltaY = h.DeltaX, h.DeltaY
	e.ByteOrder = orderName(c.opts.nadconOrder)
	return nil
}

func (c *Catalog) inspectEGM96(e *Entry) error {
	r, closeFn, err := c.openStream(e.Path)
	if err != nil {
		return err
	}
	defer closeFn()

	h, err := geoid.ReadEGM96Header(r, c.opts.egm96Order)
	if err != nil {
		return fmt.Errorf("read egm96 header: %w", err)
	}
	if h.LatSpacing <= 0 || h.LonSpacing <= 0 {
		return fmt.Errorf("egm96 header has invalid spacing %+v", h)
	}
	e.Columns, e.Rows = h.Cols(), h.Rows()
	e.MinX, e.MinY, e.MaxX, e.MaxY = h.LonMin, h.LatMin, h.LonMax, h.LatMax
	e.DeltaX, e.DeltaY = h.LonSpacing, h.LatSpacing
	e.ByteOrder = orderName(c.opts.egm96Order)
	return nil
}

func (c *Catalog) inspectNGS(e *Entry) error {
	r, closeFn, err := c.openStream(e.Path)
	if err != nil {
		return err
	}
	defer closeFn()

	h, err := geoid.ReadNGSHeader(r, c.opts.ngsOrder)
	if err != nil {
		return fmt.Errorf("read ngs header: %w", err)
	}
	if h.Rows <= 0 || h.Cols <= 0 {
		return fmt.Errorf("ngs header has invalid size %dx%d", h.Rows, h.Cols)
	}
	if h.WestLon < 0 {
		h.WestLon += 360
	}
	b := h.Bounds()
	e.Columns, e.Rows = int(h.Cols), int(h.Rows)
	e.MinX, e.MinY, e.MaxX, e.MaxY = b.Min.X, b.Min.Y, b.Max.X, b.Max.Y
	e.DeltaX, e.DeltaY = h.DLon, h.DLat
	e.ByteOrder = orderName(c.opts.ngsOrder)
	return nil
}

// openStream opens path for sequential reading, decompressing ".zst".
func (c *Catalog) openStream(path string) (io.Reader, func(), error) {
	f, err := c.fsys.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, func() { f.Close() }, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return dec, func() {
		dec.Close()
		f.Close()
	}, nil
}

func orderName(order binary.ByteOrder) string {
	if order == binary.BigEndian {
		return "big"
	}
	return "little"
}
