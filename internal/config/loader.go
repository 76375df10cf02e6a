package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"forged/pkg/types"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr        string         `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel    string         `json:"log_level" yaml:"log_level" toml:"log_level"`
	DeviceIndex int            `json:"device_index" yaml:"device_index" toml:"device_index"`
	ModelsDir   string         `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	Preload     []PreloadModel `json:"preload" yaml:"preload" toml:"preload"`
	Engine      EngineConfig   `json:"engine" yaml:"engine" toml:"engine"`
	Runtime     RuntimeConfig  `json:"runtime" yaml:"runtime" toml:"runtime"`
	Monitor     MonitorConfig  `json:"monitor" yaml:"monitor" toml:"monitor"`
	History     HistoryConfig  `json:"history" yaml:"history" toml:"history"`
	HTTP        HTTPConfig     `json:"http" yaml:"http" toml:"http"`
}

// PreloadModel is loaded (and optionally optimized) at startup.
type PreloadModel struct {
	Locator   string `json:"locator" yaml:"locator" toml:"locator"`
	Name      string `json:"name" yaml:"name" toml:"name"`
	Kind      string `json:"kind" yaml:"kind" toml:"kind"`
	Precision string `json:"precision" yaml:"precision" toml:"precision"`
}

// EngineConfig tunes the inference engine.
type EngineConfig struct {
	FP32Scale    float64 `json:"fp32_scale" yaml:"fp32_scale" toml:"fp32_scale"`
	FP16Scale    float64 `json:"fp16_scale" yaml:"fp16_scale" toml:"fp16_scale"`
	INT8Scale    float64 `json:"int8_scale" yaml:"int8_scale" toml:"int8_scale"`
	AutoScale    float64 `json:"auto_scale" yaml:"auto_scale" toml:"auto_scale"`
	AsyncWorkers int     `json:"async_workers" yaml:"async_workers" toml:"async_workers"`
}

// Scales returns the footprint factors keyed by precision.
func (e EngineConfig) Scales() map[types.Precision]float64 {
	return map[types.Precision]float64{
		types.PrecisionFP32: e.FP32Scale,
		types.PrecisionFP16: e.FP16Scale,
		types.PrecisionINT8: e.INT8Scale,
		types.PrecisionAuto: e.AutoScale,
	}
}

// Tensor runtime backends.
const (
	BackendBridge = "bridge"
	BackendLlama  = "llama"
)

// RuntimeConfig selects and configures the tensor runtime.
type RuntimeConfig struct {
	Backend              string `json:"backend" yaml:"backend" toml:"backend"`
	BridgeURL            string `json:"bridge_url" yaml:"bridge_url" toml:"bridge_url"`
	BridgeAPIKey         string `json:"bridge_api_key" yaml:"bridge_api_key" toml:"bridge_api_key"`
	BridgeTimeoutSeconds int    `json:"bridge_timeout_seconds" yaml:"bridge_timeout_seconds" toml:"bridge_timeout_seconds"`
	LlamaCtx             int    `json:"llama_ctx" yaml:"llama_ctx" toml:"llama_ctx"`
	LlamaThreads         int    `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`
	LlamaGPULayers       int    `json:"llama_gpu_layers" yaml:"llama_gpu_layers" toml:"llama_gpu_layers"`
}

// MonitorConfig configures background telemetry.
type MonitorConfig struct {
	// Enabled defaults to true when unset.
	Enabled    *bool  `json:"enabled" yaml:"enabled" toml:"enabled"`
	IntervalMs int    `json:"interval_ms" yaml:"interval_ms" toml:"interval_ms"`
	ProcRoot   string `json:"proc_root" yaml:"proc_root" toml:"proc_root"`
	NVML       bool   `json:"nvml" yaml:"nvml" toml:"nvml"`
}

// IsEnabled reports whether background monitoring should run.
func (m MonitorConfig) IsEnabled() bool { return m.Enabled == nil || *m.Enabled }

// HistoryConfig configures the snapshot store. An empty Path disables it.
type HistoryConfig struct {
	Path   string `json:"path" yaml:"path" toml:"path"`
	Retain int    `json:"retain" yaml:"retain" toml:"retain"`
}

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	// InferTimeoutSeconds bounds synchronous inference requests; 0 disables.
	InferTimeoutSeconds int64    `json:"infer_timeout_seconds" yaml:"infer_timeout_seconds" toml:"infer_timeout_seconds"`
	CORSEnabled         bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins         []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Defaults.
const (
	DefaultAddr                 = ":8080"
	DefaultLogLevel             = "info"
	DefaultBridgeURL            = "http://127.0.0.1:8765"
	DefaultBridgeTimeoutSeconds = 600
	DefaultMonitorIntervalMs    = 1000
	DefaultHistoryRetain        = 3600
	DefaultMaxBodyBytes         = 64 << 20
	DefaultAsyncWorkers         = 4
)

// ApplyDefaults fills unspecified fields in place.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Engine.FP32Scale <= 0 {
		c.Engine.FP32Scale = 1.0
	}
	if c.Engine.FP16Scale <= 0 {
		c.Engine.FP16Scale = 0.6
	}
	if c.Engine.INT8Scale <= 0 {
		c.Engine.INT8Scale = 0.3
	}
	if c.Engine.AutoScale <= 0 {
		c.Engine.AutoScale = 1.0
	}
	if c.Engine.AsyncWorkers <= 0 {
		c.Engine.AsyncWorkers = DefaultAsyncWorkers
	}
	if c.Runtime.Backend == "" {
		c.Runtime.Backend = BackendBridge
	}
	if c.Runtime.BridgeURL == "" {
		c.Runtime.BridgeURL = DefaultBridgeURL
	}
	if c.Runtime.BridgeTimeoutSeconds <= 0 {
		c.Runtime.BridgeTimeoutSeconds = DefaultBridgeTimeoutSeconds
	}
	if c.Monitor.IntervalMs <= 0 {
		c.Monitor.IntervalMs = DefaultMonitorIntervalMs
	}
	if c.History.Retain <= 0 {
		c.History.Retain = DefaultHistoryRetain
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	switch c.Runtime.Backend {
	case BackendBridge, BackendLlama:
	default:
		return fmt.Errorf("unknown runtime backend %q (want %s or %s)", c.Runtime.Backend, BackendBridge, BackendLlama)
	}
	if c.DeviceIndex < 0 {
		return fmt.Errorf("device_index must be >= 0, got %d", c.DeviceIndex)
	}
	if c.HTTP.InferTimeoutSeconds < 0 {
		return fmt.Errorf("http.infer_timeout_seconds must be >= 0, got %d", c.HTTP.InferTimeoutSeconds)
	}
	for i, p := range c.Preload {
		if strings.TrimSpace(p.Locator) == "" {
			return fmt.Errorf("preload[%d]: empty locator", i)
		}
		if p.Precision != "" {
			if _, ok := types.ParsePrecision(p.Precision); !ok {
				return fmt.Errorf("preload[%d]: unknown precision %q", i, p.Precision)
			}
		}
	}
	return nil
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
