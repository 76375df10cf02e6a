package engine

import (
	"context"
	"fmt"
	"time"

	"forged/internal/sink"
	"forged/pkg/types"
)

// RunInference executes one request synchronously against a loaded model.
//
// A runtime failure is reported through the result (Success=false) with a nil
// error. Structural misuse (engine not ready, unknown model, malformed
// request) returns a failed result naming the cause together with the error.
func (e *Engine) RunInference(ctx context.Context, req types.InferenceRequest, input []float32) (types.InferenceResult, error) {
	start := time.Now()
	req = req.WithDefaults()
	if !req.Precision.Valid() {
		return failed(start, ErrInvalidRequest("unknown precision %q", req.Precision))
	}
	rec, release, err := e.beginInference("infer", req.ModelID)
	defer release()
	if err != nil {
		return failed(start, err)
	}

	stage := StageForward
	if rec.info.Kind == types.KindTextGeneration {
		stage = StageGenerate
	}
	out, err := rec.model.Execute(ctx, Input{Data: input, Prompt: req.Prompt}, execParams(req, stage))
	if err != nil {
		return e.runtimeFailure(start, rec, err), nil
	}

	res := e.succeeded(start, rec)
	res.Output = out.Data
	res.Text = out.Text
	if len(out.Pixels) > 0 {
		res.Image = out.Pixels
		res.Width, res.Height, res.Channels = out.Width, out.Height, out.Channels
	}
	return res, nil
}

func failed(start time.Time, err error) (types.InferenceResult, error) {
	inferenceTotal.WithLabelValues("rejected").Inc()
	return types.InferenceResult{
		Success:      false,
		ErrorMessage: err.Error(),
		ElapsedMs:    elapsedMs(start),
	}, err
}

func (e *Engine) runtimeFailure(start time.Time, rec *record, cause error) types.InferenceResult {
	err := ErrRuntimeInference("inference", rec.info.ID, cause)
	e.logf(sink.LevelWarn, "%v", err)
	inferenceTotal.WithLabelValues("failure").Inc()
	return types.InferenceResult{
		Success:          false,
		ErrorMessage:     err.Error(),
		ElapsedMs:        elapsedMs(start),
		PeakMemoryUsedMB: rec.info.MemoryFootprintMB,
	}
}

func (e *Engine) succeeded(start time.Time, rec *record) types.InferenceResult {
	inferenceTotal.WithLabelValues("success").Inc()
	inferenceDuration.Observe(time.Since(start).Seconds())
	return types.InferenceResult{
		Success:          true,
		ElapsedMs:        elapsedMs(start),
		PeakMemoryUsedMB: rec.info.MemoryFootprintMB,
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// toPixels accepts either a byte buffer of exactly w*h*3 or the same number
// of floats in [0,1], which are quantized.
func toPixels(out Output, w, h int) ([]byte, error) {
	want := w * h * 3
	switch {
	case len(out.Pixels) == want:
		return append([]byte(nil), out.Pixels...), nil
	case len(out.Pixels) == 0 && len(out.Data) == want:
		px := make([]byte, want)
		for i, v := range out.Data {
			switch {
			case v <= 0:
				px[i] = 0
			case v >= 1:
				px[i] = 255
			default:
				px[i] = byte(v*255 + 0.5)
			}
		}
		return px, nil
	}
	return nil, fmt.Errorf("runtime returned %d pixel bytes and %d values, want %d (%dx%dx3)",
		len(out.Pixels), len(out.Data), want, w, h)
}
