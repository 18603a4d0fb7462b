package geodesy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownDatum is returned when a datum code is not registered.
var ErrUnknownDatum = errors.New("unknown datum")

var wgs84Datum = NewThreeParamDatum("WGE", "World Geodetic System 1984", WGS84, 0, 0, 0)

// WGS84Datum returns the WGS 84 datum.
func WGS84Datum() Datum { return wgs84Datum }

// StandardDatums returns the three-parameter datums known by default:
// WGS 84 and the regional NAD27 (NAS-*) and NAD83 (NAR-*) solutions.
func StandardDatums() []Datum {
	return []Datum{
		wgs84Datum,
		NewThreeParamDatum("NAS-A", "NAD27 Eastern US", Clarke1866, -9, 161, 179),
		NewThreeParamDatum("NAS-B", "NAD27 Western US", Clarke1866, -8, 159, 175),
		NewThreeParamDatum("NAS-C", "NAD27 CONUS mean", Clarke1866, -8, 160, 176),
		NewThreeParamDatum("NAS-D", "NAD27 Alaska", Clarke1866, -5, 135, 172),
		NewThreeParamDatum("NAR-A", "NAD83 Alaska", GRS80, 0, 0, 0),
		NewThreeParamDatum("NAR-C", "NAD83 CONUS", GRS80, 0, 0, 0),
		NewThreeParamDatum("NAR-E", "NAD83 Hawaii", GRS80, 1, 1, -1),
	}
}

// Registry maps datum codes to datums. It replaces a process-wide datum
// factory; callers own and inject their registry.
type Registry struct {
	mu     sync.RWMutex
	datums map[string]Datum
}

// NewRegistry returns a registry holding StandardDatums.
func NewRegistry() *Registry {
	r := &Registry{datums: make(map[string]Datum)}
	for _, d := range StandardDatums() {
		r.Register(d)
	}
	return r
}

// Register adds d, replacing any datum with the same code.
func (r *Registry) Register(d Datum) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datums[d.Code()] = d
}

// Get returns the datum for code.
func (r *Registry) Get(code string) (Datum, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.datums[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDatum, code)
	}
	return d, nil
}

// Codes returns the registered codes in sorted order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.datums))
	for c := range r.datums {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Transform moves p onto the datum registered under code.
func (r *Registry) Transform(p GeodeticPoint, code string) (GeodeticPoint, error) {
	d, err := r.Get(code)
	if err != nil {
		return p, err
	}
	return d.Shift(p), nil
}
