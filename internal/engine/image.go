package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"forged/internal/sink"
	"forged/pkg/types"
)

// Upper bounds on image requests.
const (
	MaxImageDim    = 8192
	MaxScaleFactor = 8
	MaxNumSteps    = 1000
)

// GenerateImage runs the multi-step diffusion pipeline of a text-to-image
// model: req.NumSteps denoise steps, each followed by a progress report of
// step/NumSteps, then a decode into a Width x Height x 3 pixel buffer.
func (e *Engine) GenerateImage(ctx context.Context, modelID, prompt string, req types.InferenceRequest) (types.InferenceResult, error) {
	start := time.Now()
	req.ModelID = modelID
	req.Prompt = prompt
	req = req.WithDefaults()
	if !req.Precision.Valid() {
		return failed(start, ErrInvalidRequest("unknown precision %q", req.Precision))
	}
	if req.Width > MaxImageDim || req.Height > MaxImageDim {
		return failed(start, ErrInvalidRequest("image size %dx%d exceeds %d", req.Width, req.Height, MaxImageDim))
	}
	if req.NumSteps > MaxNumSteps {
		return failed(start, ErrInvalidRequest("num_steps %d exceeds %d", req.NumSteps, MaxNumSteps))
	}
	rec, release, err := e.beginInference("generate", modelID)
	defer release()
	if err != nil {
		return failed(start, err)
	}
	if k := rec.info.Kind; k != types.KindUnknown && k != types.KindTextToImage {
		return failed(start, ErrInvalidRequest("model %s is %s, not %s", modelID, k, types.KindTextToImage))
	}

	opID := uuid.NewString()
	w, h, steps := req.Width, req.Height, req.NumSteps
	e.logf(sink.LevelInfo, "generating %dx%d image with %s in %d steps (op %s)", w, h, modelID, steps, opID)

	in := Input{Prompt: prompt, Width: w, Height: h, Channels: 3}
	params := execParams(req, StageDenoise)
	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return withOp(e.runtimeFailure(start, rec, err), opID), nil
		}
		params.Step = step
		out, err := rec.model.Execute(ctx, in, params)
		if err != nil {
			return withOp(e.runtimeFailure(start, rec, err), opID), nil
		}
		in.Data = out.Data
		e.sink.Progress(opID, float64(step+1)/float64(steps))
	}

	params.Stage = StageDecode
	params.Step = steps
	out, err := rec.model.Execute(ctx, in, params)
	if err != nil {
		return withOp(e.runtimeFailure(start, rec, err), opID), nil
	}
	px, err := toPixels(out, w, h)
	if err != nil {
		return withOp(e.runtimeFailure(start, rec, err), opID), nil
	}

	res := e.succeeded(start, rec)
	res.OperationID = opID
	res.Image = px
	res.Width, res.Height, res.Channels = w, h, 3
	e.logf(sink.LevelInfo, "generated image with %s in %.1f ms", modelID, res.ElapsedMs)
	return res, nil
}

// UpscaleImage runs one super-resolution pass over an RGB image of
// width x height, producing (width*scale) x (height*scale) x 3 bytes.
func (e *Engine) UpscaleImage(ctx context.Context, modelID string, image []byte, width, height, scale int) (types.InferenceResult, error) {
	start := time.Now()
	rec, release, err := e.beginInference("upscale", modelID)
	defer release()
	if err != nil {
		return failed(start, err)
	}
	if k := rec.info.Kind; k != types.KindUnknown && k != types.KindImageUpscaling {
		return failed(start, ErrInvalidRequest("model %s is %s, not %s", modelID, k, types.KindImageUpscaling))
	}
	if width <= 0 || height <= 0 || width > MaxImageDim || height > MaxImageDim {
		return failed(start, ErrInvalidRequest("image size %dx%d", width, height))
	}
	if scale < 1 || scale > MaxScaleFactor {
		return failed(start, ErrInvalidRequest("scale factor %d outside [1, %d]", scale, MaxScaleFactor))
	}
	if want := width * height * 3; len(image) != want {
		return failed(start, ErrInvalidRequest("image has %d bytes, want %d (%dx%dx3)", len(image), want, width, height))
	}

	params := ExecParams{Stage: StageUpscale, ScaleFactor: scale, Width: width * scale, Height: height * scale, BatchSize: 1}
	out, err := rec.model.Execute(ctx, Input{Pixels: image, Width: width, Height: height, Channels: 3}, params)
	if err != nil {
		return e.runtimeFailure(start, rec, err), nil
	}
	ow, oh := width*scale, height*scale
	px, err := toPixels(out, ow, oh)
	if err != nil {
		return e.runtimeFailure(start, rec, err), nil
	}

	res := e.succeeded(start, rec)
	res.Image = px
	res.Width, res.Height, res.Channels = ow, oh, 3
	return res, nil
}

func withOp(res types.InferenceResult, opID string) types.InferenceResult {
	res.OperationID = opID
	return res
}
