package module

import (
	"fmt"
	"os"
	"path/filepath"

	abi "github.com/woxQAQ/wasm-jpeg-decoder/api/wasm"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the file name looked up in every module directory.
const ManifestFile = "manifest.yaml"

// FormatJPEG is the only encoded format a decoder module may declare.
const FormatJPEG = "jpeg"

// Manifest represents the module manifest.yaml structure.
type Manifest struct {
	Name       string       `yaml:"name"`
	Version    string       `yaml:"version"`
	Format     string       `yaml:"format"`
	ABIVersion int          `yaml:"abi_version"`
	Wasm       WasmConfig   `yaml:"wasm"`
	Limits     LimitsConfig `yaml:"limits"`
	Author     string       `yaml:"author"`
	License    string       `yaml:"license"`

	// Internal fields
	dir string // Directory containing manifest
}

// WasmConfig holds Wasm module configuration.
type WasmConfig struct {
	File string `yaml:"file"`
	Size int    `yaml:"size"` // KB
}

// LimitsConfig declares the largest image the module is built for.
type LimitsConfig struct {
	MaxWidth  uint32 `yaml:"max_width"`
	MaxHeight uint32 `yaml:"max_height"`
}

// ParseManifest reads and parses manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"name", m.Name},
		{"version", m.Version},
		{"format", m.Format},
		{"wasm.file", m.Wasm.File},
	}
	for _, r := range required {
		if r.value == "" {
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   r.field,
				Message: r.field + " is required",
			}
		}
	}

	if m.Format != FormatJPEG {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "format",
			Message: fmt.Sprintf("unsupported format: %s (must be %s)", m.Format, FormatJPEG),
		}
	}

	if m.ABIVersion != abi.ABIVersion {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "abi_version",
			Message: fmt.Sprintf("unsupported ABI version: %d (host speaks %d)", m.ABIVersion, abi.ABIVersion),
		}
	}

	// Limits must describe a buffer that fits 32-bit linear memory.
	if uint64(m.Limits.MaxWidth)*uint64(m.Limits.MaxHeight)*4 > 1<<32-1 {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "limits",
			Message: "max_width * max_height * 4 exceeds 32-bit linear memory",
		}
	}

	// Validate Wasm file exists
	if _, err := os.Stat(m.WasmPath()); os.IsNotExist(err) {
		return &WasmNotFoundError{
			ManifestPath: m.Path(),
			WasmFile:     m.Wasm.File,
		}
	}

	return nil
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// WasmPath returns the path to the Wasm file.
func (m *Manifest) WasmPath() string {
	return filepath.Join(m.dir, m.Wasm.File)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}
