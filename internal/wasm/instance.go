package wasm

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	abi "github.com/woxQAQ/wasm-jpeg-decoder/api/wasm"
	"go.uber.org/zap"
)

// InstanceManager creates and manages module instances.
type InstanceManager struct {
	runtime   *Runtime
	logger    *zap.Logger
	hostFuncs *HostFunctionsImpl
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, hostFuncs *HostFunctionsImpl, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime:   runtime,
		hostFuncs: hostFuncs,
		logger:    logger.With(zap.String("component", "wasm-instance")),
	}
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Module name to instantiate.
	ModuleName string

	// Instance ID (if empty, generates one).
	InstanceID string
}

// Instance represents an instantiated Wasm module.
type Instance struct {
	// wazero module instance.
	module  api.Module
	runtime *Runtime

	// Instance metadata.
	ID        string
	Name      string
	CreatedAt int64

	// Exported functions (cached for performance).
	exports map[string]api.Function
}

// Instantiate creates a new instance from a compiled module.
// Host functions are exported to the Wasm module.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	// Get compiled module from cache.
	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}

	if limit := m.runtime.config.MaxInstances; limit > 0 && m.runtime.ActiveInstances() >= limit {
		return nil, &InstanceLimitError{Limit: limit}
	}

	// Generate instance ID if not provided.
	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = generateInstanceID()
	}

	m.logger.Info("Instantiating Wasm module",
		zap.String("module", config.ModuleName),
		zap.String("instance_id", instanceID),
	)

	if err := m.runtime.initWASI(ctx); err != nil {
		return nil, err
	}

	// Export host functions (only done once per runtime).
	if err := m.instantiateHostModule(ctx); err != nil {
		return nil, fmt.Errorf("failed to export host functions: %w", err)
	}

	// Instantiate the guest module with host functions.
	// This creates a sandboxed execution environment.
	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions(abi.StartFunctionName) // Go reactor initialization

	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        err,
		}
	}

	// Cache exported functions.
	exports := m.cacheExportedFunctions(module)

	// Create instance wrapper.
	instance := &Instance{
		module:    module,
		runtime:   m.runtime,
		ID:        instanceID,
		Name:      config.ModuleName,
		CreatedAt: time.Now().Unix(),
		exports:   exports,
	}

	// Track active instance.
	m.runtime.StoreInstance(instanceID, instance)

	m.logger.Info("Module instantiated successfully",
		zap.String("instance_id", instanceID),
		zap.Int("exported_functions", len(exports)),
	)

	return instance, nil
}

// Close closes the instance and releases resources.
func (i *Instance) Close(ctx context.Context) error {
	i.runtime.DeleteInstance(i.ID)
	return i.module.Close(ctx)
}

// Memory returns a bounds-checked view of the instance's linear memory.
func (i *Instance) Memory() *Memory {
	return NewMemory(i.module)
}

// Function returns a cached export.
func (i *Instance) Function(name string) (api.Function, bool) {
	fn, ok := i.exports[name]
	return fn, ok
}

// cacheExportedFunctions resolves the ABI exports once per instance.
func (m *InstanceManager) cacheExportedFunctions(module api.Module) map[string]api.Function {
	exports := make(map[string]api.Function)

	for _, name := range abi.Exports {
		if fn := module.ExportedFunction(name); fn != nil {
			exports[name] = fn
		}
	}

	return exports
}

// instantiateHostModule registers Go functions for import by Wasm modules.
func (m *InstanceManager) instantiateHostModule(ctx context.Context) error {
	r := m.runtime
	r.hostOnce.Do(func() {
		if r.runtime.Module(abi.HostModule) != nil {
			return
		}

		builder := r.runtime.NewHostModuleBuilder(abi.HostModule)

		// Guest diagnostics arrive here once init_diagnostics has run.
		builder.NewFunctionBuilder().
			WithFunc(m.hostFuncs.LogMessage).
			WithParameterNames("level", "ptr", "length").
			Export(abi.ImportLogMessage)

		if _, err := builder.Instantiate(ctx); err != nil {
			r.hostErr = &HostFunctionError{FunctionName: abi.ImportLogMessage, Err: err}
		}
	})
	return r.hostErr
}

var instanceSeq atomic.Uint64

// generateInstanceID returns a process-unique instance ID. wazero rejects a
// second module with the same name, so IDs must never repeat.
func generateInstanceID() string {
	return fmt.Sprintf("inst-%d-%d", time.Now().Unix(), instanceSeq.Add(1))
}
