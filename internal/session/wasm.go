package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/woxQAQ/wasm-jpeg-decoder/internal/decoder"
	"github.com/woxQAQ/wasm-jpeg-decoder/internal/module"
	"github.com/woxQAQ/wasm-jpeg-decoder/internal/wasm"
	"github.com/woxQAQ/wasm-jpeg-decoder/pkg/protocol"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// wasmEngine runs each frame decoder in its own guest instance, so every
// output size gets an isolated linear memory.
type wasmEngine struct {
	manager  *module.Manager
	name     string // pinned module, or empty to pick by format
	logLevel zapcore.Level
	logger   *zap.Logger
}

func newWasmEngine(manager *module.Manager, name string, logLevel zapcore.Level, logger *zap.Logger) *wasmEngine {
	return &wasmEngine{
		manager:  manager,
		name:     name,
		logLevel: logLevel,
		logger:   logger.With(zap.String("component", "wasm-engine")),
	}
}

func (e *wasmEngine) resolve(width, height uint32) (*module.Module, error) {
	if e.name != "" {
		return e.manager.GetModule(e.name)
	}
	return e.manager.FindModuleForFormat(module.FormatJPEG, width, height)
}

func (e *wasmEngine) NewFrameDecoder(ctx context.Context, width, height uint32) (FrameDecoder, error) {
	mod, err := e.resolve(width, height)
	if err != nil {
		return nil, err
	}

	inst, err := e.manager.Instantiate(ctx, mod.Name())
	if err != nil {
		return nil, err
	}

	fd, err := e.bind(ctx, inst, width, height)
	if err != nil {
		inst.Close(ctx)
		return nil, err
	}

	e.logger.Debug("Frame decoder ready",
		zap.String("module", mod.Name()),
		zap.String("instance_id", inst.ID),
		zap.Uint32("width", width),
		zap.Uint32("height", height),
	)

	return fd, nil
}

func (e *wasmEngine) bind(ctx context.Context, inst *wasm.Instance, width, height uint32) (*wasmDecoder, error) {
	b, err := wasm.NewBinding(inst, e.logger)
	if err != nil {
		return nil, err
	}
	if err := b.InitDiagnostics(ctx, e.logLevel); err != nil {
		return nil, err
	}
	rd, err := b.NewDecoder(ctx, width, height)
	if err != nil {
		return nil, err
	}
	return &wasmDecoder{binding: b, remote: rd, logger: e.logger}, nil
}

func (e *wasmEngine) Close(ctx context.Context) error {
	return e.manager.Shutdown(ctx)
}

type wasmDecoder struct {
	binding *wasm.Binding
	remote  *wasm.RemoteDecoder
	logger  *zap.Logger

	// Set once a guest call traps. The guest runtime has aborted by then and
	// its instance is closed.
	dead bool
}

func (d *wasmDecoder) Decode(ctx context.Context, data []byte) (*protocol.ImageData, error) {
	if d.dead {
		return nil, ErrClosed
	}

	img, err := d.decodeFrame(ctx, data)
	if err != nil {
		var callErr *wasm.GuestCallError
		if errors.As(err, &callErr) {
			d.abort(ctx, err)
		}
		return nil, err
	}
	return img, nil
}

// abort closes the instance after a trapped call.
func (d *wasmDecoder) abort(ctx context.Context, cause error) {
	d.dead = true
	inst := d.binding.Instance()

	d.logger.Warn("Guest call trapped, closing instance",
		zap.String("instance_id", inst.ID),
		zap.Error(cause),
	)

	// ctx may be the expired deadline that caused the trap.
	if err := inst.Close(context.WithoutCancel(ctx)); err != nil {
		d.logger.Warn("Failed to close trapped instance", zap.Error(err))
	}
}

func (d *wasmDecoder) decodeFrame(ctx context.Context, data []byte) (*protocol.ImageData, error) {
	in, err := d.binding.NewInputBuffer(ctx, uint32(len(data)))
	if err != nil {
		return nil, err
	}

	img, err := d.decode(ctx, in, data)
	if freeErr := in.Free(ctx); freeErr != nil && err == nil {
		err = freeErr
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (d *wasmDecoder) decode(ctx context.Context, in *wasm.RemoteInputBuffer, data []byte) (*protocol.ImageData, error) {
	if err := in.Write(data); err != nil {
		return nil, err
	}

	ok, err := d.remote.Decode(ctx, in.Handle)
	if err != nil {
		return nil, err
	}
	if ok {
		return d.remote.Pixels(ctx)
	}

	status, err := d.remote.Status(ctx)
	if err != nil {
		return nil, err
	}
	switch status {
	case protocol.StatusCapacityExceeded:
		// The guest resets dimensions on failure, so only the capacity is known.
		return nil, &decoder.CapacityExceededError{Capacity: d.remote.Output.Length}
	case protocol.StatusInvalidHandle:
		return nil, decoder.ErrInvalidHandle
	default:
		return nil, fmt.Errorf("%w: guest status %s", ErrDecodeFailed, status)
	}
}

func (d *wasmDecoder) Free(ctx context.Context) error {
	if d.dead {
		return nil
	}
	return errors.Join(d.remote.Free(ctx), d.binding.Instance().Close(ctx))
}
