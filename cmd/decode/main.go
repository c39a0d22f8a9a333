package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/woxQAQ/wasm-jpeg-decoder/internal/config"
	"github.com/woxQAQ/wasm-jpeg-decoder/internal/session"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(decodeMain())
}

// decodeMain returns the process exit code so deferred cleanup, including
// the logger flush, runs before exit.
func decodeMain() int {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides config")
	inPath := flag.String("in", "", "JPEG file to decode")
	outPath := flag.String("out", "-", "Raw RGBA output file (- for stdout)")
	width := flag.Uint("width", 0, "Decoder output width in pixels (0 uses config)")
	height := flag.Uint("height", 0, "Decoder output height in pixels (0 uses config)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	// Initialize logger. Logs go to stderr so stdout stays binary-clean.
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("Starting jpeg decoder",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
		zap.String("engine", cfg.Engine),
	)

	if *inPath == "" {
		logger.Error("Missing -in")
		return 2
	}
	if *outPath == "-" && term.IsTerminal(int(os.Stdout.Fd())) {
		logger.Error("Refusing to write raw RGBA to a terminal; use -out")
		return 2
	}

	w, h := cfg.Decode.ExpectedWidth, cfg.Decode.ExpectedHeight
	if *width > 0 {
		w = uint32(*width)
	}
	if *height > 0 {
		h = uint32(*height)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := run(ctx, cfg, logger, *inPath, *outPath, w, h); err != nil {
		logger.Error("Decode failed", zap.Error(err))
		return 1
	}
	return 0
}

// newLogger builds a development logger for debug and a production logger
// otherwise, both at the configured level.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)

	return zcfg.Build()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, inPath, outPath string, w, h uint32) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	if !session.IsJPEG(data) {
		logger.Warn("Input does not start with a JPEG marker", zap.String("in", inPath))
	}

	ctrl, err := session.NewController(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}
	defer ctrl.Close(context.Background())

	inst, err := ctrl.CreateInstance(ctx, w, h)
	if err != nil {
		return fmt.Errorf("failed to create decoder instance: %w", err)
	}

	img, err := inst.DecodeToImageData(ctx, data)
	if err != nil {
		return err
	}

	logger.Info("Decoded frame",
		zap.Uint16("width", img.Width),
		zap.Uint16("height", img.Height),
		zap.Int("bytes", len(img.Pix)),
	)

	var out io.Writer = os.Stdout
	if outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	_, err = out.Write(img.Pix)
	return err
}
