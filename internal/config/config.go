package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Engines a Config may select.
const (
	EngineWasm   = "wasm"
	EngineNative = "native"
)

// Config is the host configuration for decoding sessions.
type Config struct {
	ModulePaths   []string     `mapstructure:"module_paths"`
	Module        string       `mapstructure:"module"`
	LogLevel      string       `mapstructure:"log_level"`
	Engine        string       `mapstructure:"engine"`
	MaxInputBytes uint32       `mapstructure:"max_input_bytes"`
	Wasm          WasmConfig   `mapstructure:"wasm"`
	Decode        DecodeConfig `mapstructure:"decode"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Enable debug logging.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrent instances.
	MaxInstances int `mapstructure:"max_instances"`
	// Module execution timeout (seconds).
	ExecutionTimeout int `mapstructure:"execution_timeout"`
}

// Timeout returns the execution timeout, or 0 for none.
func (w WasmConfig) Timeout() time.Duration {
	return time.Duration(w.ExecutionTimeout) * time.Second
}

// DecodeConfig holds the default decoder dimensions.
type DecodeConfig struct {
	ExpectedWidth  uint32 `mapstructure:"expected_width"`
	ExpectedHeight uint32 `mapstructure:"expected_height"`
}

// EnvPrefix prefixes environment overrides, e.g. JPEGWASM_WASM_MEMORY_PAGES.
const EnvPrefix = "JPEGWASM"

func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("module_paths", []string{"./modules"})
	v.SetDefault("module", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("engine", EngineWasm)
	v.SetDefault("max_input_bytes", 65536)

	// Wasm defaults
	v.SetDefault("wasm.memory_pages", 1024) // 64MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "./build/wasm-cache")
	v.SetDefault("wasm.max_instances", 100)
	v.SetDefault("wasm.execution_timeout", 30)

	// Decoder defaults (one macro block)
	v.SetDefault("decode.expected_width", 64)
	v.SetDefault("decode.expected_height", 64)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field values that viper cannot.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineWasm, EngineNative:
	default:
		return fmt.Errorf("unknown engine %q (must be %s or %s)", c.Engine, EngineWasm, EngineNative)
	}

	if c.Decode.ExpectedWidth == 0 || c.Decode.ExpectedHeight == 0 {
		return fmt.Errorf("decode.expected_width and decode.expected_height must be positive")
	}

	// Every frame is checked against this budget; there is no unlimited value.
	if c.MaxInputBytes == 0 {
		return fmt.Errorf("max_input_bytes must be positive")
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}

	if c.Wasm.ExecutionTimeout < 0 {
		return fmt.Errorf("wasm.execution_timeout must not be negative")
	}

	return nil
}
