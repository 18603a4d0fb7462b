package geoid

import (
	"fmt"
	"math"
	"sync"

	"github.com/banshee-data/geogrid/internal/geodesy"
)

// Manager consults an ordered list of geoid models and answers with the
// first one that covers a point. It is owned by the caller and passed to
// whatever needs geoid heights.
type Manager struct {
	mu     sync.RWMutex
	geoids []Geoid
}

// NewManager returns a manager over geoids, consulted in order.
func NewManager(geoids ...Geoid) *Manager {
	return &Manager{geoids: append([]Geoid(nil), geoids...)}
}

// Add appends g to the lookup order.
func (m *Manager) Add(g Geoid) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.geoids = append(m.geoids, g)
}

// Geoids returns the models in lookup order.
func (m *Manager) Geoids() []Geoid {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Geoid(nil), m.geoids...)
}

// Find returns the model with the given short name.
func (m *Manager) Find(shortName string) (Geoid, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.geoids {
		if g.ShortName() == shortName {
			return g, true
		}
	}
	return nil, false
}

// OffsetFromEllipsoid returns the first non-NaN offset, or NaN.
func (m *Manager) OffsetFromEllipsoid(p geodesy.GeodeticPoint) float64 {
	v, _, err := m.Lookup(p)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Lookup returns the offset at p and the short name of the model that
// answered. ErrNoCoverage is returned when no model covers p.
func (m *Manager) Lookup(p geodesy.GeodeticPoint) (float64, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.geoids {
		if v, ok := Offset(g, p); ok {
			return v, g.ShortName(), nil
		}
	}
	return math.NaN(), "", fmt.Errorf("%w: lat=%g lon=%g", ErrNoCoverage, p.Lat, p.Lon)
}

// EllipsoidToGeoidHeight converts using the first covering model.
func (m *Manager) EllipsoidToGeoidHeight(lat, lon, ellipsoidHeight float64) (float64, error) {
	off, _, err := m.Lookup(geodesy.NewPoint(lat, lon, ellipsoidHeight, nil))
	if err != nil {
		return math.NaN(), err
	}
	return ellipsoidHeight - off, nil
}

// GeoidToEllipsoidHeight converts using the first covering model.
func (m *Manager) GeoidToEllipsoidHeight(lat, lon, geoidHeight float64) (float64, error) {
	off, _, err := m.Lookup(geodesy.NewPoint(lat, lon, geoidHeight, nil))
	if err != nil {
		return math.NaN(), err
	}
	return geoidHeight + off, nil
}
