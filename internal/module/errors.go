package module

import (
	"fmt"
)

// ManifestNotFoundError occurs when manifest.yaml is not found in a directory.
type ManifestNotFoundError struct {
	Path string
	Err  error
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found at '%s': %v", e.Path, e.Err)
}

func (e *ManifestNotFoundError) Unwrap() error {
	return e.Err
}

// ManifestParseError occurs when manifest.yaml cannot be parsed as valid YAML.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("failed to parse manifest at '%s': %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ManifestValidationError occurs when manifest.yaml fails validation.
type ManifestValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e *ManifestValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest validation failed at '%s': %s (field: %s)",
			e.Path, e.Message, e.Field)
	}
	return fmt.Sprintf("manifest validation failed at '%s': %s", e.Path, e.Message)
}

// WasmNotFoundError occurs when the Wasm file referenced in manifest doesn't exist.
type WasmNotFoundError struct {
	ManifestPath string
	WasmFile     string
}

func (e *WasmNotFoundError) Error() string {
	return fmt.Sprintf("Wasm file '%s' not found (referenced in manifest '%s')",
		e.WasmFile, e.ManifestPath)
}

// LoadError occurs when a decoder module fails to compile.
type LoadError struct {
	ModuleName string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load decoder module '%s': %v", e.ModuleName, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// NotFoundError occurs when a decoder module is not in the registry.
type NotFoundError struct {
	ModuleName string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("decoder module '%s' not found", e.ModuleName)
}

// NoModuleForFormatError occurs when no registered module decodes a format.
type NoModuleForFormatError struct {
	Format string
}

func (e *NoModuleForFormatError) Error() string {
	return fmt.Sprintf("no decoder module found for format '%s'", e.Format)
}

// AlreadyRegisteredError occurs when attempting to register a duplicate module.
type AlreadyRegisteredError struct {
	ModuleName string
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("decoder module '%s' is already registered", e.ModuleName)
}

// NoModulesFoundError occurs when no modules are found in the configured paths.
type NoModulesFoundError struct {
	Paths []string
}

func (e *NoModulesFoundError) Error() string {
	return fmt.Sprintf("no decoder modules found in paths: %v", e.Paths)
}
