package engine

import (
	"context"

	"forged/pkg/types"
)

// TensorRuntime is the executor capability the engine dispatches against.
// Concrete implementations live under internal/runtime.
type TensorRuntime interface {
	// Bind acquires the accelerator at deviceIndex. The returned Device owns
	// the binding until Close.
	Bind(ctx context.Context, deviceIndex int) (Device, error)
}

// Device is a bound accelerator that can host models.
type Device interface {
	// Load makes the model at locator resident and reports its footprint.
	Load(ctx context.Context, locator string, format types.ModelFormat) (RuntimeModel, LoadInfo, error)
	// Close releases the device binding. Models must be released first.
	Close() error
}

// LoadInfo describes a model right after it became resident.
type LoadInfo struct {
	FootprintMB uint64
	InputShape  []int
	OutputShape []int
}

// RuntimeModel is an owned handle to a resident model.
type RuntimeModel interface {
	// Compile transforms the model for the requested precision, reporting
	// fractional progress as it proceeds, and returns the footprint the
	// runtime observed afterwards.
	Compile(ctx context.Context, precision types.Precision, progress func(float64)) (uint64, error)
	// Execute runs one step against the model.
	Execute(ctx context.Context, in Input, params ExecParams) (Output, error)
	// Release frees the model's accelerator memory.
	Release() error
}

// Stage tells the runtime which part of a pipeline an Execute call drives.
type Stage string

const (
	// StageForward is a single forward pass over Input.Data.
	StageForward Stage = "forward"
	// StageGenerate produces text from Input.Prompt.
	StageGenerate Stage = "generate"
	// StageDenoise advances a diffusion latent (Input.Data) by one step.
	// Input.Data is empty on step 0; the runtime seeds the initial latent.
	StageDenoise Stage = "denoise"
	// StageDecode turns the final latent into pixels.
	StageDecode Stage = "decode"
	// StageUpscale runs super-resolution over Input.Pixels.
	StageUpscale Stage = "upscale"
)

// Input is the payload of one Execute call.
type Input struct {
	Data     []float32
	Pixels   []byte
	Width    int
	Height   int
	Channels int
	Prompt   string
}

// ExecParams carries the request parameters relevant to one Execute call.
type ExecParams struct {
	Stage                  Stage
	Step                   int
	NumSteps               int
	Precision              types.Precision
	BatchSize              int
	MaxTokens              int
	Temperature            float64
	GuidanceScale          float64
	Seed                   uint32
	Width                  int
	Height                 int
	ScaleFactor            int
	AllowHostMemoryOffload bool
}

// Output is what the runtime produced for one Execute call.
type Output struct {
	Data     []float32
	Pixels   []byte
	Width    int
	Height   int
	Channels int
	Text     string
}

func execParams(req types.InferenceRequest, stage Stage) ExecParams {
	return ExecParams{
		Stage:                  stage,
		NumSteps:               req.NumSteps,
		Precision:              req.Precision,
		BatchSize:              req.BatchSize,
		MaxTokens:              req.MaxTokens,
		Temperature:            req.Temperature,
		GuidanceScale:          req.GuidanceScale,
		Seed:                   req.Seed,
		Width:                  req.Width,
		Height:                 req.Height,
		AllowHostMemoryOffload: req.AllowHostMemoryOffload,
	}
}
