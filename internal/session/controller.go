// Package session decodes streams of JPEG frames through a decoder engine,
// either the sandboxed Wasm guest or the same decoder in process.
package session

import (
	"context"
	"sync"

	"github.com/woxQAQ/wasm-jpeg-decoder/internal/config"
	"github.com/woxQAQ/wasm-jpeg-decoder/internal/module"
	"github.com/woxQAQ/wasm-jpeg-decoder/internal/wasm"
	"github.com/woxQAQ/wasm-jpeg-decoder/pkg/protocol"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Controller owns an engine and the instances created from it.
type Controller struct {
	cfg    *config.Config
	engine Engine
	logger *zap.Logger

	mu        sync.Mutex
	instances map[*Instance]struct{}
	closed    bool
}

// NewController validates cfg and builds the engine it selects. For the
// wasm engine it creates the runtime and loads every module under
// cfg.ModulePaths.
func NewController(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return newController(cfg, engine, logger), nil
}

func newController(cfg *config.Config, engine Engine, logger *zap.Logger) *Controller {
	return &Controller{
		cfg:       cfg,
		engine:    engine,
		logger:    logger.With(zap.String("component", "session-controller")),
		instances: make(map[*Instance]struct{}),
	}
}

func newEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Engine, error) {
	switch cfg.Engine {
	case config.EngineNative:
		return newNativeEngine(uint64(cfg.Wasm.MemoryPages)*protocol.PageSize, logger), nil

	case config.EngineWasm:
		runtime, err := wasm.NewRuntime(ctx, logger, &wasm.RuntimeConfig{
			MemoryPages:  cfg.Wasm.MemoryPages,
			DebugEnabled: cfg.Wasm.Debug,
			CacheDir:     cfg.Wasm.CacheDir,
			MaxInstances: cfg.Wasm.MaxInstances,
		})
		if err != nil {
			return nil, err
		}

		manager := module.NewManager(cfg, runtime, wasm.NewHostFunctions(logger), logger)
		if err := manager.LoadAll(ctx); err != nil {
			runtime.Close(ctx)
			return nil, err
		}

		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = zapcore.InfoLevel
		}
		return newWasmEngine(manager, cfg.Module, level, logger), nil

	default:
		return nil, &UnknownEngineError{Engine: cfg.Engine}
	}
}

// CreateInstance returns an Instance whose output holds width x height
// pixels. Frames larger than that fail with a capacity error.
func (c *Controller) CreateInstance(ctx context.Context, width, height uint32) (*Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	fd, err := c.engine.NewFrameDecoder(ctx, width, height)
	if err != nil {
		c.logger.Error("Failed to create instance",
			zap.Uint32("width", width),
			zap.Uint32("height", height),
			zap.Error(err),
		)
		return nil, err
	}

	inst := &Instance{
		ctrl:     c,
		frames:   fd,
		Width:    width,
		Height:   height,
		maxInput: c.cfg.MaxInputBytes,
		timeout:  c.cfg.Wasm.Timeout(),
	}
	c.instances[inst] = struct{}{}

	c.logger.Info("Instance created",
		zap.Uint32("width", width),
		zap.Uint32("height", height),
	)

	return inst, nil
}

func (c *Controller) release(inst *Instance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.instances, inst)
}

// Instances returns the number of open instances.
func (c *Controller) Instances() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.instances)
}

// Close frees every open instance and the engine. Safe to call multiple times.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	open := make([]*Instance, 0, len(c.instances))
	for inst := range c.instances {
		open = append(open, inst)
	}
	c.mu.Unlock()

	for _, inst := range open {
		if err := inst.Close(ctx); err != nil {
			c.logger.Warn("Failed to close instance", zap.Error(err))
		}
	}

	return c.engine.Close(ctx)
}
