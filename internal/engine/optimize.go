package engine

import (
	"context"
	"math"
	"sync"

	"github.com/google/uuid"

	"forged/internal/sink"
	"forged/pkg/types"
)

// OptimizeModel compiles the model for precision and shrinks its footprint to
// round(baseline * scale(precision)), never above the current footprint. A
// lower footprint reported by the runtime wins. Re-optimizing at the
// precision the model already has is a no-op.
func (e *Engine) OptimizeModel(ctx context.Context, id string, precision types.Precision) (types.OptimizeResult, error) {
	if !precision.Valid() {
		return types.OptimizeResult{ModelID: id}, ErrInvalidRequest("unknown precision %q", precision)
	}
	rec, release, err := e.beginExclusive("optimize", id)
	defer release()
	if err != nil {
		return types.OptimizeResult{ModelID: id, Precision: precision}, err
	}

	prev := rec.info.MemoryFootprintMB
	res := types.OptimizeResult{
		ModelID:             id,
		Precision:           precision,
		PreviousFootprintMB: prev,
		FootprintMB:         prev,
	}
	if rec.info.Optimized && rec.info.Precision == precision {
		res.Skipped = true
		e.logf(sink.LevelDebug, "%s already optimized for %s", id, precision)
		return res, nil
	}

	res.OperationID = uuid.NewString()
	e.sink.Progress(res.OperationID, 0)
	e.logf(sink.LevelInfo, "optimizing %s for %s (op %s)", id, precision, res.OperationID)

	reported, err := rec.model.Compile(ctx, precision, monotonicProgress(e.sink, res.OperationID))
	if err != nil {
		err = ErrRuntimeInference("optimize", id, err)
		e.logf(sink.LevelError, "%v", err)
		return res, err
	}

	next := uint64(math.Round(float64(rec.info.BaselineFootprintMB) * e.scales[precision]))
	if reported > 0 && reported < next {
		next = reported
	}
	if next > prev {
		next = prev
	}

	e.mu.Lock()
	if e.models[id] != rec {
		// Shutdown dropped the record while the compile ran.
		e.mu.Unlock()
		e.logf(sink.LevelWarn, "optimize %s: model released during compile", id)
		return res, ErrModelNotFound(id)
	}
	e.usedMB = e.usedMB - prev + next
	rec.info.MemoryFootprintMB = next
	rec.info.Optimized = true
	rec.info.Precision = precision
	used := e.usedMB
	e.mu.Unlock()
	vramUsedMB.Set(float64(used))
	optimizationsTotal.WithLabelValues(string(precision)).Inc()

	e.sink.Progress(res.OperationID, 1)
	res.FootprintMB = next
	e.logf(sink.LevelInfo, "optimized %s for %s: %d MB -> %d MB", id, precision, prev, next)
	return res, nil
}

// monotonicProgress forwards runtime progress strictly increasing and below
// 1; the caller reports 1 itself once the operation has completed.
func monotonicProgress(s sink.Sink, opID string) func(float64) {
	var mu sync.Mutex
	last := 0.0
	return func(f float64) {
		if math.IsNaN(f) || f >= 1 {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if f <= last {
			return
		}
		last = f
		s.Progress(opID, f)
	}
}
