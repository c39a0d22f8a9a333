// Package module discovers decoder guest modules on disk. Each module lives
// in its own directory next to a manifest.yaml describing it.
package module

import (
	"time"

	"github.com/woxQAQ/wasm-jpeg-decoder/internal/wasm"
)

// Module represents a loaded decoder module with its manifest and compiled Wasm.
type Module struct {
	// Manifest is the parsed module metadata
	Manifest *Manifest

	// Compiled is the compiled Wasm module
	Compiled *wasm.CompiledModule

	// LoadedAt is the timestamp when the module was loaded
	LoadedAt time.Time
}

// Name returns the module name.
func (m *Module) Name() string {
	return m.Manifest.Name
}

// Format returns the encoded format this module decodes.
func (m *Module) Format() string {
	return m.Manifest.Format
}

// Version returns the module version.
func (m *Module) Version() string {
	return m.Manifest.Version
}

// Fits reports whether an image of width x height is within the module's
// declared limits. Zero limits mean unbounded.
func (m *Module) Fits(width, height uint32) bool {
	l := m.Manifest.Limits
	if l.MaxWidth > 0 && width > l.MaxWidth {
		return false
	}
	if l.MaxHeight > 0 && height > l.MaxHeight {
		return false
	}
	return true
}
