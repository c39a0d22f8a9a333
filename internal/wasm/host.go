package wasm

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	abi "github.com/woxQAQ/wasm-jpeg-decoder/api/wasm"
	"go.uber.org/zap"
)

// HostFunctionsImpl implements host functions for Wasm modules.
type HostFunctionsImpl struct {
	logger *zap.Logger
}

var _ abi.HostFunctions = (*HostFunctionsImpl)(nil)

// NewHostFunctions creates a new host functions implementation.
func NewHostFunctions(logger *zap.Logger) *HostFunctionsImpl {
	return &HostFunctionsImpl{
		logger: logger.With(zap.String("component", "wasm-host")),
	}
}

// LogMessage is called by Wasm modules to log messages.
// Signature: log_message(level, ptr, length)
// level: 0 = debug, 1 = info, 2 = warn, 3 = error
func (h *HostFunctionsImpl) LogMessage(ctx context.Context, mod api.Module, level uint32, ptr uint32, length uint32) {
	// Read message from Wasm memory.
	msg, ok := mod.Memory().Read(ptr, length)
	if !ok {
		h.logger.Error("Failed to read log message from Wasm memory",
			zap.Uint32("ptr", ptr),
			zap.Uint32("length", length),
		)
		return
	}

	logger := h.logger.With(zap.String("module", mod.Name()))

	switch level {
	case abi.LogLevelDebug:
		logger.Debug(string(msg))
	case abi.LogLevelInfo:
		logger.Info(string(msg))
	case abi.LogLevelWarn:
		logger.Warn(string(msg))
	case abi.LogLevelError:
		logger.Error(string(msg))
	default:
		logger.Info(string(msg))
	}
}
