package module

import (
	"sync"

	"go.uber.org/zap"
)

// Registry manages loaded decoder modules.
type Registry struct {
	sync.RWMutex
	modules  map[string]*Module   // name -> module
	byFormat map[string][]*Module // format -> modules
	logger   *zap.Logger
}

// NewRegistry creates a new module registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		modules:  make(map[string]*Module),
		byFormat: make(map[string][]*Module),
		logger:   logger.With(zap.String("component", "module-registry")),
	}
}

// Register adds a module to the registry.
func (r *Registry) Register(mod *Module) error {
	r.Lock()
	defer r.Unlock()

	name := mod.Manifest.Name

	if _, exists := r.modules[name]; exists {
		return &AlreadyRegisteredError{ModuleName: name}
	}

	r.modules[name] = mod

	format := mod.Manifest.Format
	r.byFormat[format] = append(r.byFormat[format], mod)

	r.logger.Info("Decoder module registered",
		zap.String("name", name),
		zap.String("format", format),
	)

	return nil
}

// Get retrieves a module by name.
func (r *Registry) Get(name string) (*Module, bool) {
	r.RLock()
	defer r.RUnlock()

	mod, ok := r.modules[name]
	return mod, ok
}

// LookupByFormat finds modules decoding an encoded format, in registration order.
func (r *Registry) LookupByFormat(format string) []*Module {
	r.RLock()
	defer r.RUnlock()

	mods := r.byFormat[format]
	// Return copy to avoid race conditions
	result := make([]*Module, len(mods))
	copy(result, mods)
	return result
}

// List returns all registered modules.
func (r *Registry) List() []*Module {
	r.RLock()
	defer r.RUnlock()

	result := make([]*Module, 0, len(r.modules))
	for _, mod := range r.modules {
		result = append(result, mod)
	}
	return result
}

// Unregister removes a module from the registry.
func (r *Registry) Unregister(name string) {
	r.Lock()
	defer r.Unlock()

	mod, ok := r.modules[name]
	if !ok {
		return
	}

	format := mod.Manifest.Format
	mods := r.byFormat[format]
	for i, m := range mods {
		if m.Manifest.Name == name {
			r.byFormat[format] = append(mods[:i], mods[i+1:]...)
			break
		}
	}

	delete(r.modules, name)

	r.logger.Info("Decoder module unregistered", zap.String("name", name))
}

// Count returns the number of registered modules.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.modules)
}
