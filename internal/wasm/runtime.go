package wasm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
)

// Runtime owns the one wazero.Runtime shared by every decoder module in the
// process, the compiled-module cache and the set of live instances.
type Runtime struct {
	runtime wazero.Runtime

	// name -> *CompiledModule; a module is compiled once per name.
	modules sync.Map

	// instance ID -> *Instance, closed on shutdown.
	instances sync.Map
	active    atomic.Int64

	wasiOnce sync.Once
	wasiErr  error

	hostOnce sync.Once
	hostErr  error

	config *RuntimeConfig
	logger *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// RuntimeConfig holds runtime configuration.
type RuntimeConfig struct {
	// Linear memory cap per instance, in 64 KiB pages. 0 keeps wazero's
	// 4 GiB limit.
	MemoryPages uint32

	// Keep DWARF source info so guest traps carry file:line frames.
	DebugEnabled bool

	// Directory for wazero's on-disk compilation cache. Empty means the
	// cache lives in memory only.
	CacheDir string

	// Upper bound on live instances. 0 means unbounded.
	MaxInstances int
}

// CompiledModule is a compiled decoder guest plus where it came from.
type CompiledModule struct {
	Module wazero.CompiledModule

	Name      string
	Source    string // file path or "memory"
	SizeBytes int64

	CompiledAt int64 // unix seconds
}

// NewRuntime builds the wazero runtime. Calls into guests abort when their
// context is done, which is how execution timeouts are enforced.
func NewRuntime(ctx context.Context, logger *zap.Logger, config *RuntimeConfig) (*Runtime, error) {
	if config == nil {
		config = DefaultRuntimeConfig()
	}

	runtimeCfg := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithDebugInfoEnabled(config.DebugEnabled)
	if config.MemoryPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(config.MemoryPages)
	}
	if config.CacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(config.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open compilation cache %s: %w", config.CacheDir, err)
		}
		runtimeCfg = runtimeCfg.WithCompilationCache(cache)
	}

	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	runtime := &Runtime{
		runtime: r,
		config:  config,
		logger:  logger.With(zap.String("component", "wasm-runtime")),
		closed:  make(chan struct{}),
	}

	logger.Info("Wasm runtime initialized",
		zap.Uint32("memory_pages", config.MemoryPages),
		zap.Bool("debug_enabled", config.DebugEnabled),
		zap.String("cache_dir", config.CacheDir),
		zap.Int("max_instances", config.MaxInstances),
	)

	return runtime, nil
}

// DefaultRuntimeConfig matches the configuration defaults.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		MemoryPages:  1024, // 64MB
		DebugEnabled: false,
		CacheDir:     "",
		MaxInstances: 100,
	}
}

// Close closes every live instance, then the runtime. Later calls are no-ops.
func (r *Runtime) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		r.logger.Info("Shutting down Wasm runtime")

		r.instances.Range(func(key, value any) bool {
			if inst, ok := value.(interface{ Close(context.Context) error }); ok {
				if closeErr := inst.Close(ctx); closeErr != nil {
					r.logger.Warn("Failed to close instance",
						zap.String("instance_id", key.(string)),
						zap.Error(closeErr),
					)
				}
			}
			return true
		})

		err = r.runtime.Close(ctx)

		close(r.closed)
		r.logger.Info("Wasm runtime shutdown complete")
	})

	return err
}

// initWASI instantiates WASI preview1 once per runtime. The Go wasip1 guest
// imports it for its own runtime support.
func (r *Runtime) initWASI(ctx context.Context) error {
	r.wasiOnce.Do(func() {
		if r.runtime.Module(wasi_snapshot_preview1.ModuleName) != nil {
			return
		}
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r.runtime); err != nil {
			r.wasiErr = fmt.Errorf("failed to instantiate WASI: %w", err)
		}
	})
	return r.wasiErr
}

// GetCompiledModule looks up a compiled module by name.
func (r *Runtime) GetCompiledModule(name string) (*CompiledModule, bool) {
	if val, ok := r.modules.Load(name); ok {
		if mod, ok := val.(*CompiledModule); ok {
			return mod, true
		}
	}
	return nil, false
}

// StoreCompiledModule caches module under its name.
func (r *Runtime) StoreCompiledModule(module *CompiledModule) {
	r.modules.Store(module.Name, module)
}

// GetInstance looks up a live instance.
func (r *Runtime) GetInstance(instanceID string) (any, bool) {
	return r.instances.Load(instanceID)
}

// StoreInstance tracks a live instance.
func (r *Runtime) StoreInstance(instanceID string, instance any) {
	if _, loaded := r.instances.Swap(instanceID, instance); !loaded {
		r.active.Add(1)
	}
}

// DeleteInstance stops tracking an instance.
func (r *Runtime) DeleteInstance(instanceID string) {
	if _, loaded := r.instances.LoadAndDelete(instanceID); loaded {
		r.active.Add(-1)
	}
}

// ActiveInstances returns the number of tracked instances.
func (r *Runtime) ActiveInstances() int {
	return int(r.active.Load())
}

// IsClosed reports whether Close has run.
func (r *Runtime) IsClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}
