package config

import (
	"os"
	"path/filepath"
	"testing"

	"forged/pkg/types"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

const yamlConfig = `addr: :9999
log_level: debug
device_index: 1
models_dir: /models
preload:
  - locator: /models/sdxl_base.safetensors
    name: SDXL
    kind: text_to_image
    precision: fp16
engine:
  fp16_scale: 0.5
  async_workers: 8
runtime:
  backend: llama
  llama_ctx: 8192
  llama_gpu_layers: 99
monitor:
  enabled: false
  interval_ms: 250
  nvml: true
history:
  path: /var/lib/forged/history.db
http:
  infer_timeout_seconds: 30
  cors_enabled: true
  cors_origins: ["http://localhost:3000"]
`

func TestLoadYAML(t *testing.T) {
	p := writeTempFile(t, t.TempDir(), "cfg.yaml", yamlConfig)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.LogLevel != "debug" || cfg.DeviceIndex != 1 || cfg.ModelsDir != "/models" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.Preload) != 1 || cfg.Preload[0].Name != "SDXL" || cfg.Preload[0].Precision != "fp16" {
		t.Fatalf("preload: %+v", cfg.Preload)
	}
	if cfg.Engine.FP16Scale != 0.5 || cfg.Engine.AsyncWorkers != 8 {
		t.Fatalf("engine: %+v", cfg.Engine)
	}
	if cfg.Runtime.Backend != BackendLlama || cfg.Runtime.LlamaCtx != 8192 || cfg.Runtime.LlamaGPULayers != 99 {
		t.Fatalf("runtime: %+v", cfg.Runtime)
	}
	if cfg.Monitor.IsEnabled() || cfg.Monitor.IntervalMs != 250 || !cfg.Monitor.NVML {
		t.Fatalf("monitor: %+v", cfg.Monitor)
	}
	if !cfg.HTTP.CORSEnabled || len(cfg.HTTP.CORSOrigins) != 1 || cfg.HTTP.InferTimeoutSeconds != 30 {
		t.Fatalf("http: %+v", cfg.HTTP)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	p := writeTempFile(t, t.TempDir(), "cfg.json", `{"addr":":7070","models_dir":"/m","runtime":{"backend":"bridge","bridge_url":"http://gpu-box:8765","bridge_timeout_seconds":30},"history":{"path":":memory:","retain":10}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.Runtime.BridgeURL != "http://gpu-box:8765" || cfg.Runtime.BridgeTimeoutSeconds != 30 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.History.Path != ":memory:" || cfg.History.Retain != 10 {
		t.Fatalf("history: %+v", cfg.History)
	}
	if !cfg.Monitor.IsEnabled() {
		t.Fatalf("monitor should default to enabled")
	}
}

func TestLoadTOML(t *testing.T) {
	p := writeTempFile(t, t.TempDir(), "cfg.toml", "addr=\":8081\"\nmodels_dir=\"/x\"\n\n[engine]\nint8_scale=0.25\n\n[monitor]\nproc_root=\"/host/proc\"\n\n[[preload]]\nlocator=\"/x/llama.gguf\"\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.ModelsDir != "/x" || cfg.Engine.INT8Scale != 0.25 || cfg.Monitor.ProcRoot != "/host/proc" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.Preload) != 1 || cfg.Preload[0].Locator != "/x/llama.gguf" {
		t.Fatalf("preload: %+v", cfg.Preload)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	p := writeTempFile(t, t.TempDir(), "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.Engine.FP16Scale = 0.7
	cfg.ApplyDefaults()
	if cfg.Addr != DefaultAddr || cfg.LogLevel != "info" || cfg.Runtime.Backend != BackendBridge {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.Monitor.IntervalMs != 1000 || cfg.History.Retain != 3600 || cfg.Runtime.BridgeTimeoutSeconds != 600 || cfg.Engine.AsyncWorkers != 4 {
		t.Fatalf("numeric defaults: %+v", cfg)
	}
	s := cfg.Engine.Scales()
	if s[types.PrecisionFP16] != 0.7 || s[types.PrecisionINT8] != 0.3 || s[types.PrecisionFP32] != 1 || s[types.PrecisionAuto] != 1 {
		t.Fatalf("scales: %v", s)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	bad := []Config{
		{Runtime: RuntimeConfig{Backend: "tensorrt"}},
		{Runtime: RuntimeConfig{Backend: BackendBridge}, DeviceIndex: -1},
		{Runtime: RuntimeConfig{Backend: BackendBridge}, Preload: []PreloadModel{{Locator: " "}}},
		{Runtime: RuntimeConfig{Backend: BackendBridge}, Preload: []PreloadModel{{Locator: "a.onnx", Precision: "fp4"}}},
		{Runtime: RuntimeConfig{Backend: BackendBridge}, HTTP: HTTPConfig{InferTimeoutSeconds: -1}},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
