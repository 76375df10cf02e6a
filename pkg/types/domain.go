package types

import (
	"strings"
	"time"
)

// ModelKind classifies what a loaded model does.
type ModelKind string

const (
	KindTextToImage    ModelKind = "text_to_image"
	KindImageToImage   ModelKind = "image_to_image"
	KindTextGeneration ModelKind = "text_generation"
	KindImageUpscaling ModelKind = "image_upscaling"
	KindUnknown        ModelKind = "unknown"
)

// ParseKind maps a user-supplied string to a ModelKind. Unrecognized or empty
// input yields KindUnknown.
func ParseKind(s string) ModelKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text_to_image", "text-to-image", "txt2img", "text2img":
		return KindTextToImage
	case "image_to_image", "image-to-image", "img2img":
		return KindImageToImage
	case "text_generation", "text-generation", "llm":
		return KindTextGeneration
	case "image_upscaling", "image-upscaling", "upscale":
		return KindImageUpscaling
	default:
		return KindUnknown
	}
}

// ModelFormat is the on-disk representation a model was loaded from.
type ModelFormat string

const (
	FormatONNX              ModelFormat = "onnx"
	FormatCompiledEngine    ModelFormat = "compiled_engine"
	FormatCheckpointArchive ModelFormat = "checkpoint"
	FormatSafeTensors       ModelFormat = "safetensors"
	FormatGGUF              ModelFormat = "gguf"
	FormatUnknown           ModelFormat = "unknown"
)

// Precision is the numeric representation used when executing a model.
type Precision string

const (
	PrecisionFP32 Precision = "fp32"
	PrecisionFP16 Precision = "fp16"
	PrecisionINT8 Precision = "int8"
	PrecisionAuto Precision = "auto"
)

// Valid reports whether p is one of the known precision modes.
func (p Precision) Valid() bool {
	switch p {
	case PrecisionFP32, PrecisionFP16, PrecisionINT8, PrecisionAuto:
		return true
	}
	return false
}

// ParsePrecision accepts case-insensitive precision names ("FP16", "int8", ...).
func ParsePrecision(s string) (Precision, bool) {
	p := Precision(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Valid()
}

// ModelInfo is a copy of a loaded model record. It never aliases engine state.
type ModelInfo struct {
	// Opaque identifier assigned at load time.
	// example: model_1718000000000_1
	ID string `json:"id" example:"model_1718000000000_1"`
	// Caller-supplied display label.
	// example: SDXL
	Name string `json:"name" example:"SDXL"`
	// Path or identifier the model was loaded from.
	// example: /models/sdxl_base.safetensors
	SourceLocator string `json:"source_locator" example:"/models/sdxl_base.safetensors"`
	// Model kind resolved from the hint or the locator keywords.
	// example: text_to_image
	Kind ModelKind `json:"kind" example:"text_to_image"`
	// Format resolved from the locator suffix.
	// example: safetensors
	Format ModelFormat `json:"format" example:"safetensors"`
	// Accelerator memory attributed to this model in MB.
	// example: 4096
	MemoryFootprintMB uint64 `json:"memory_footprint_mb" example:"4096"`
	// Footprint reported by the runtime right after load, before any optimization.
	// example: 6826
	BaselineFootprintMB uint64 `json:"baseline_footprint_mb" example:"6826"`
	InputShape          []int  `json:"input_shape"`
	OutputShape         []int  `json:"output_shape"`
	// True once the model has been optimized; never reverts.
	Optimized bool `json:"optimized"`
	// Precision the model was last optimized for. Empty until optimized.
	// example: fp16
	Precision Precision `json:"precision,omitempty" example:"fp16"`
	IsLoaded  bool      `json:"is_loaded"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// Clone returns a deep copy of the record.
func (m ModelInfo) Clone() ModelInfo {
	m.InputShape = append([]int(nil), m.InputShape...)
	m.OutputShape = append([]int(nil), m.OutputShape...)
	return m
}

// InferenceRequest carries the parameters of one dispatch. Zero values are
// replaced by defaults, see WithDefaults.
type InferenceRequest struct {
	// Target model id.
	// example: model_1718000000000_1
	ModelID   string    `json:"model_id" example:"model_1718000000000_1"`
	Precision Precision `json:"precision,omitempty" example:"fp16"`
	BatchSize int       `json:"batch_size,omitempty" example:"1"`
	// Maximum number of new tokens for text generation.
	MaxTokens   int     `json:"max_tokens,omitempty" example:"512"`
	Temperature float64 `json:"temperature,omitempty" example:"1.0"`
	// Diffusion steps for image generation.
	NumSteps      int     `json:"num_steps,omitempty" example:"50"`
	GuidanceScale float64 `json:"guidance_scale,omitempty" example:"7.5"`
	// 0 lets the runtime pick a seed.
	Seed uint32 `json:"seed,omitempty" example:"42"`
	// Output size for image generation.
	Width  int `json:"width,omitempty" example:"512"`
	Height int `json:"height,omitempty" example:"512"`
	// Prompt for text generation models.
	Prompt                 string `json:"prompt,omitempty"`
	AllowHostMemoryOffload bool   `json:"allow_host_memory_offload,omitempty"`
}

// Request defaults.
const (
	DefaultPrecision     = PrecisionFP16
	DefaultBatchSize     = 1
	DefaultMaxTokens     = 512
	DefaultTemperature   = 1.0
	DefaultNumSteps      = 50
	DefaultGuidanceScale = 7.5
	DefaultImageSize     = 512
)

// WithDefaults returns a copy of r with zero fields replaced by defaults.
func (r InferenceRequest) WithDefaults() InferenceRequest {
	if r.Precision == "" {
		r.Precision = DefaultPrecision
	}
	if r.BatchSize <= 0 {
		r.BatchSize = DefaultBatchSize
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.Temperature <= 0 {
		r.Temperature = DefaultTemperature
	}
	if r.NumSteps <= 0 {
		r.NumSteps = DefaultNumSteps
	}
	if r.GuidanceScale <= 0 {
		r.GuidanceScale = DefaultGuidanceScale
	}
	if r.Width <= 0 {
		r.Width = DefaultImageSize
	}
	if r.Height <= 0 {
		r.Height = DefaultImageSize
	}
	return r
}

// InferenceResult is the outcome of a single dispatch. Failures are reported
// through Success/ErrorMessage rather than aborting the caller's session.
type InferenceResult struct {
	Success bool `json:"success"`
	// example: model not found: model_999
	ErrorMessage string `json:"error_message,omitempty" example:"model not found: model_999"`
	// Correlates progress events emitted while this result was produced.
	OperationID string `json:"operation_id,omitempty"`
	// Raw numeric output tensor.
	Output []float32 `json:"output,omitempty"`
	// Pixel buffer in HWC order, Width*Height*Channels bytes (base64 in JSON).
	Image    []byte `json:"image,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Channels int    `json:"channels,omitempty"`
	// Generated text for text generation models.
	Text string `json:"text,omitempty"`
	// example: 182.4
	ElapsedMs float64 `json:"elapsed_ms" example:"182.4"`
	// Current footprint of the model that served the request.
	// example: 4096
	PeakMemoryUsedMB uint64 `json:"peak_memory_used_mb" example:"4096"`
}

// OptimizeResult summarizes an optimizeModel call.
type OptimizeResult struct {
	OperationID         string    `json:"operation_id,omitempty"`
	ModelID             string    `json:"model_id"`
	Precision           Precision `json:"precision"`
	PreviousFootprintMB uint64    `json:"previous_footprint_mb"`
	FootprintMB         uint64    `json:"footprint_mb"`
	// True when the model was already optimized at this precision.
	Skipped bool `json:"skipped"`
}

// CatalogEntry is a model file discovered on disk that could be loaded.
type CatalogEntry struct {
	// example: sdxl_base.safetensors
	Name string `json:"name" example:"sdxl_base.safetensors"`
	// example: /models/sdxl_base.safetensors
	Path   string      `json:"path" example:"/models/sdxl_base.safetensors"`
	Format ModelFormat `json:"format" example:"safetensors"`
	Kind   ModelKind   `json:"kind" example:"unknown"`
	// example: 6826
	SizeMB uint64 `json:"size_mb" example:"6826"`
}
