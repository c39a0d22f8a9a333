package guest

import (
	"bytes"
	"sync"

	"github.com/woxQAQ/wasm-jpeg-decoder/api/wasm"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogSink receives one encoded log line and its ABI level
// (see wasm.LogLevelDebug .. wasm.LogLevelError).
type LogSink func(level uint32, msg []byte)

// Diagnostics routes guest logs and panics to the host. It must be set up
// once at startup, before any decoder is used; until then it logs nowhere.
type Diagnostics struct {
	once   sync.Once
	logger *zap.Logger
}

// Setup installs sink as the destination for all guest diagnostics.
// Only the first call has an effect.
func (d *Diagnostics) Setup(sink LogSink, level zapcore.Level) *zap.Logger {
	d.once.Do(func() {
		d.logger = NewLogger(sink, level).With(zap.String("component", "guest"))
	})
	return d.Logger()
}

// Logger returns the configured logger, or a no-op logger before Setup.
func (d *Diagnostics) Logger() *zap.Logger {
	if d.logger == nil {
		return zap.NewNop()
	}
	return d.logger
}

// Recover must be deferred directly by each export. It reports a panic to the
// host and re-panics, so failures stay fatal to the call.
func (d *Diagnostics) Recover(export string) {
	if r := recover(); r != nil {
		logger := d.Logger()
		logger.Error("Guest panic",
			zap.String("export", export),
			zap.Any("panic", r),
			zap.Stack("stack"),
		)
		_ = logger.Sync()
		panic(r)
	}
}

// NewLogger builds a zap logger that writes every entry at or above min to
// sink, tagged with its ABI level.
func NewLogger(sink LogSink, min zapcore.Level) *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	// The host stamps time and level itself.
	cfg.TimeKey = ""
	cfg.LevelKey = ""

	abiLevels := []uint32{wasm.LogLevelDebug, wasm.LogLevelInfo, wasm.LogLevelWarn, wasm.LogLevelError}
	cores := make([]zapcore.Core, 0, len(abiLevels))
	for _, abi := range abiLevels {
		enabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= min && LevelToABI(l) == abi
		})
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(cfg),
			zapcore.AddSync(&sinkWriter{sink: sink, level: abi}),
			enabler,
		))
	}

	return zap.New(zapcore.NewTee(cores...))
}

// LevelToABI maps a zap level onto the host's four log levels.
func LevelToABI(l zapcore.Level) uint32 {
	switch {
	case l <= zapcore.DebugLevel:
		return wasm.LogLevelDebug
	case l == zapcore.InfoLevel:
		return wasm.LogLevelInfo
	case l == zapcore.WarnLevel:
		return wasm.LogLevelWarn
	default:
		return wasm.LogLevelError
	}
}

// ABIToLevel is the inverse of LevelToABI. Unknown levels map to info.
func ABIToLevel(abi uint32) zapcore.Level {
	switch abi {
	case wasm.LogLevelDebug:
		return zapcore.DebugLevel
	case wasm.LogLevelWarn:
		return zapcore.WarnLevel
	case wasm.LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

type sinkWriter struct {
	sink  LogSink
	level uint32
}

func (w *sinkWriter) Write(p []byte) (int, error) {
	w.sink(w.level, bytes.TrimRight(p, "\n"))
	return len(p), nil
}
