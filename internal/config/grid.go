package config

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/geogrid/internal/security"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/geogrid.defaults.json"

// MemoryCatalog as catalog_path keeps the catalog in memory.
const MemoryCatalog = ":memory:"

// Geoid model kinds accepted in geoid_models.
const (
	GeoidKindEGM96    = "egm96"
	GeoidKindNGS      = "ngs"
	GeoidKindIdentity = "identity"
)

// GridConfig is the root configuration for the datum and geoid services.
// Relative paths are resolved against DataRoot.
type GridConfig struct {
	DataRoot *string `json:"data_root,omitempty"`

	// NADCON grid directory holding <region>.las / <region>.los pairs.
	NadconDir       *string `json:"nadcon_dir,omitempty"`
	NadconByteOrder *string `json:"nadcon_byte_order,omitempty"` // "little" or "big"

	// Geoid providers, consulted in order.
	GeoidModels []GeoidModelConfig `json:"geoid_models,omitempty"`

	CatalogPath *string `json:"catalog_path,omitempty"`
	RenderDir   *string `json:"render_dir,omitempty"`
	Listen      *string `json:"listen,omitempty"`
}

// GeoidModelConfig describes one geoid provider.
type GeoidModelConfig struct {
	Kind      string `json:"kind"`
	Path      string `json:"path,omitempty"`
	ByteOrder string `json:"byte_order,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }

// EmptyGridConfig returns a GridConfig with all fields unset.
// The Get* methods supply defaults for anything left nil.
func EmptyGridConfig() *GridConfig {
	return &GridConfig{}
}

// LoadConfig loads a GridConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the JSON fall back to the Get* defaults.
func LoadConfig(path string) (*GridConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyGridConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *GridConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *GridConfig) Validate() error {
	if c.NadconByteOrder != nil {
		if _, err := ParseByteOrder(*c.NadconByteOrder, binary.LittleEndian); err != nil {
			return fmt.Errorf("nadcon_byte_order: %w", err)
		}
	}

	for i, m := range c.GeoidModels {
		switch m.Kind {
		case GeoidKindEGM96, GeoidKindNGS:
			if m.Path == "" {
				return fmt.Errorf("geoid_models[%d]: %s model requires a path", i, m.Kind)
			}
		case GeoidKindIdentity:
		default:
			return fmt.Errorf("geoid_models[%d]: unknown kind %q", i, m.Kind)
		}
		if _, err := ParseByteOrder(m.ByteOrder, binary.LittleEndian); err != nil {
			return fmt.Errorf("geoid_models[%d]: %w", i, err)
		}
	}

	relative := map[string]*string{
		"nadcon_dir":   c.NadconDir,
		"catalog_path": c.CatalogPath,
		"render_dir":   c.RenderDir,
	}
	for name, p := range relative {
		if p == nil || *p == MemoryCatalog {
			continue
		}
		if err := security.ValidateRelativePath(*p); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for i, m := range c.GeoidModels {
		if err := security.ValidateRelativePath(m.Path); err != nil {
			return fmt.Errorf("geoid_models[%d]: %w", i, err)
		}
	}

	if c.Listen != nil && *c.Listen == "" {
		return fmt.Errorf("listen must not be empty when set")
	}

	return nil
}

// ParseByteOrder maps "little"/"big" to a binary.ByteOrder. The empty string
// selects def.
func ParseByteOrder(s string, def binary.ByteOrder) (binary.ByteOrder, error) {
	switch strings.ToLower(s) {
	case "":
		return def, nil
	case "little", "le":
		return binary.LittleEndian, nil
	case "big", "be":
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("invalid byte order %q (want little or big)", s)
}

// GetDataRoot returns the data_root value or the default.
func (c *GridConfig) GetDataRoot() string {
	if c.DataRoot == nil || *c.DataRoot == "" {
		return "data"
	}
	return *c.DataRoot
}

// Resolve joins a relative path onto the data root.
func (c *GridConfig) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.GetDataRoot(), p)
}

// GetNadconDir returns the resolved nadcon_dir value or the default.
func (c *GridConfig) GetNadconDir() string {
	if c.NadconDir == nil || *c.NadconDir == "" {
		return c.Resolve("nadcon")
	}
	return c.Resolve(*c.NadconDir)
}

// GetNadconByteOrder returns the byte order of the NADCON grids.
// Defaults to little-endian.
func (c *GridConfig) GetNadconByteOrder() binary.ByteOrder {
	if c.NadconByteOrder == nil {
		return binary.LittleEndian
	}
	order, err := ParseByteOrder(*c.NadconByteOrder, binary.LittleEndian)
	if err != nil {
		return binary.LittleEndian // default on parse error
	}
	return order
}

// GetCatalogPath returns the resolved catalog_path value or the default.
func (c *GridConfig) GetCatalogPath() string {
	if c.CatalogPath == nil || *c.CatalogPath == "" {
		return c.Resolve("geogrid.db")
	}
	if *c.CatalogPath == MemoryCatalog {
		return MemoryCatalog
	}
	return c.Resolve(*c.CatalogPath)
}

// GetRenderDir returns the resolved render_dir value or the default.
func (c *GridConfig) GetRenderDir() string {
	if c.RenderDir == nil || *c.RenderDir == "" {
		return c.Resolve("render")
	}
	return c.Resolve(*c.RenderDir)
}

// GetListen returns the listen address or the default.
func (c *GridConfig) GetListen() string {
	if c.Listen == nil {
		return ":8090"
	}
	return *c.Listen
}

// GetGeoidModels returns the configured geoid models with paths resolved.
// An empty list yields a single identity model.
func (c *GridConfig) GetGeoidModels() []GeoidModelConfig {
	if len(c.GeoidModels) == 0 {
		return []GeoidModelConfig{{Kind: GeoidKindIdentity}}
	}
	out := make([]GeoidModelConfig, len(c.GeoidModels))
	for i, m := range c.GeoidModels {
		m.Path = c.Resolve(m.Path)
		out[i] = m
	}
	return out
}
