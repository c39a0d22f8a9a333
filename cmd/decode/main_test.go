package main

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLoggerHonorsLevel(t *testing.T) {
	tests := []struct {
		level    string
		enabled  zapcore.Level
		disabled zapcore.Level
	}{
		{"debug", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"info", zapcore.InfoLevel, zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel, zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := newLogger(tt.level)
			if err != nil {
				t.Fatalf("newLogger(%q) failed: %v", tt.level, err)
			}

			core := logger.Core()
			if !core.Enabled(tt.enabled) {
				t.Errorf("%s should be enabled", tt.enabled)
			}
			if core.Enabled(tt.disabled) {
				t.Errorf("%s should be disabled", tt.disabled)
			}
		})
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := newLogger("loud"); err == nil {
		t.Error("newLogger should reject an unknown level")
	}
}
