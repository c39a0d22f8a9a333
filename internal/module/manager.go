package module

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/woxQAQ/wasm-jpeg-decoder/internal/config"
	"github.com/woxQAQ/wasm-jpeg-decoder/internal/wasm"
	"go.uber.org/zap"
)

// Manager manages decoder module lifecycle.
type Manager struct {
	cfg         *config.Config
	runtime     *wasm.Runtime
	loader      *Loader
	registry    *Registry
	instanceMgr *wasm.InstanceManager
	logger      *zap.Logger

	mu     sync.RWMutex
	loaded bool
}

// NewManager creates a new module manager.
func NewManager(
	cfg *config.Config,
	runtime *wasm.Runtime,
	hostFuncs *wasm.HostFunctionsImpl,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		cfg:         cfg,
		runtime:     runtime,
		loader:      NewLoader(runtime, logger),
		registry:    NewRegistry(logger),
		instanceMgr: wasm.NewInstanceManager(runtime, hostFuncs, logger),
		logger:      logger.With(zap.String("component", "module-manager")),
	}
}

// LoadAll discovers and loads all decoder modules from configured paths.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("decoder modules already loaded")
	}

	m.logger.Info("Loading decoder modules",
		zap.Strings("paths", m.cfg.ModulePaths),
	)

	mods, err := m.loader.DiscoverModules(ctx, m.cfg.ModulePaths)
	if err != nil {
		// An empty module path is not fatal; lookups fail later instead.
		var none *NoModulesFoundError
		if errors.As(err, &none) {
			m.logger.Warn("No decoder modules found in configured paths",
				zap.Strings("paths", m.cfg.ModulePaths),
			)
			m.loaded = true
			return nil
		}
		return err
	}

	for _, mod := range mods {
		if err := m.registry.Register(mod); err != nil {
			m.logger.Error("Failed to register decoder module",
				zap.String("name", mod.Manifest.Name),
				zap.Error(err),
			)
			continue
		}
	}

	m.loaded = true

	m.logger.Info("Decoder modules loaded successfully",
		zap.Int("count", len(mods)),
	)

	return nil
}

// GetModule retrieves a module by name.
func (m *Manager) GetModule(name string) (*Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mod, ok := m.registry.Get(name)
	if !ok {
		return nil, &NotFoundError{ModuleName: name}
	}

	return mod, nil
}

// FindModuleForFormat returns the first registered module for format
// whose limits admit a width x height image.
func (m *Manager) FindModuleForFormat(format string, width, height uint32) (*Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mod := range m.registry.LookupByFormat(format) {
		if mod.Fits(width, height) {
			return mod, nil
		}
	}

	return nil, &NoModuleForFormatError{Format: format}
}

// Instantiate creates a new instance of a decoder module.
func (m *Manager) Instantiate(ctx context.Context, name string) (*wasm.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mod, ok := m.registry.Get(name)
	if !ok {
		return nil, &NotFoundError{ModuleName: name}
	}

	return m.instanceMgr.Instantiate(ctx, &wasm.InstanceConfig{
		ModuleName: mod.Manifest.Name,
		// InstanceID will be auto-generated
	})
}

// Shutdown closes the runtime and every instance still open.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down module manager")

	if err := m.runtime.Close(ctx); err != nil {
		m.logger.Error("Failed to shutdown runtime", zap.Error(err))
		return err
	}

	m.logger.Info("Module manager shutdown complete")
	return nil
}

// Registry returns the module registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// IsLoaded returns whether modules have been loaded.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}
