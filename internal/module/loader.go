package module

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/woxQAQ/wasm-jpeg-decoder/internal/wasm"
	"go.uber.org/zap"
)

// Loader handles loading decoder modules from disk.
type Loader struct {
	moduleLoader *wasm.ModuleLoader
	logger       *zap.Logger
}

// NewLoader creates a new module loader.
func NewLoader(runtime *wasm.Runtime, logger *zap.Logger) *Loader {
	return &Loader{
		moduleLoader: wasm.NewModuleLoader(runtime, logger),
		logger:       logger.With(zap.String("component", "module-loader")),
	}
}

// LoadModule loads a single decoder module from a directory.
func (l *Loader) LoadModule(ctx context.Context, dir string) (*Module, error) {
	l.logger.Debug("Loading decoder module", zap.String("dir", dir))

	manifest, err := ParseManifest(dir)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Loading decoder module",
		zap.String("name", manifest.Name),
		zap.String("version", manifest.Version),
		zap.String("format", manifest.Format),
	)

	// Compile Wasm module (uses internal caching, keyed by manifest name)
	compiled, err := l.moduleLoader.LoadModuleFromFile(ctx, manifest.Name, manifest.WasmPath())
	if err != nil {
		return nil, &LoadError{
			ModuleName: manifest.Name,
			Err:        err,
		}
	}

	mod := &Module{
		Manifest: manifest,
		Compiled: compiled,
		LoadedAt: time.Now(),
	}

	l.logger.Info("Decoder module loaded successfully",
		zap.String("name", manifest.Name),
		zap.Int64("size_bytes", compiled.SizeBytes),
	)

	return mod, nil
}

// DiscoverModules scans directories for decoder modules.
func (l *Loader) DiscoverModules(ctx context.Context, paths []string) ([]*Module, error) {
	var mods []*Module
	var errs []error

	for _, basePath := range paths {
		l.logger.Debug("Scanning module directory", zap.String("path", basePath))

		entries, err := os.ReadDir(basePath)
		if err != nil {
			if os.IsNotExist(err) {
				l.logger.Warn("Module path does not exist", zap.String("path", basePath))
				continue
			}
			return nil, fmt.Errorf("failed to read directory '%s': %w", basePath, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			dir := filepath.Join(basePath, entry.Name())

			mod, err := l.LoadModule(ctx, dir)
			if err != nil {
				l.logger.Error("Failed to load decoder module",
					zap.String("dir", dir),
					zap.Error(err),
				)
				errs = append(errs, err)
				continue
			}

			mods = append(mods, mod)
		}
	}

	if len(mods) > 0 && len(errs) > 0 {
		l.logger.Warn("Some decoder modules failed to load",
			zap.Int("loaded", len(mods)),
			zap.Int("failed", len(errs)),
		)
	}

	if len(mods) == 0 {
		return nil, &NoModulesFoundError{Paths: paths}
	}

	return mods, nil
}
