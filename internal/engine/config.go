package engine

import (
	"time"

	"forged/internal/sink"
	"forged/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultAsyncWorkers = 4
	defaultFP32Scale    = 1.0
	defaultFP16Scale    = 0.6
	defaultINT8Scale    = 0.3
	defaultAutoScale    = 1.0
)

// Config encapsulates all tunables for Engine construction.
type Config struct {
	Runtime TensorRuntime
	// Sink receives log lines and progress; nil drops them.
	Sink sink.Sink
	// PrecisionScales maps a target precision to the footprint factor applied
	// to the baseline footprint after optimization. Values outside (0,1] and
	// missing entries fall back to the package defaults.
	PrecisionScales map[types.Precision]float64
	// AsyncWorkers bounds concurrently executing RunInferenceAsync tasks.
	AsyncWorkers int
	// Clock overrides time.Now, used for ids and load timestamps.
	Clock func() time.Time
}

// DefaultPrecisionScales returns a fresh copy of the default footprint factors.
func DefaultPrecisionScales() map[types.Precision]float64 {
	return map[types.Precision]float64{
		types.PrecisionFP32: defaultFP32Scale,
		types.PrecisionFP16: defaultFP16Scale,
		types.PrecisionINT8: defaultINT8Scale,
		types.PrecisionAuto: defaultAutoScale,
	}
}

func resolveScales(in map[types.Precision]float64) map[types.Precision]float64 {
	out := DefaultPrecisionScales()
	for p, v := range in {
		if !p.Valid() || v <= 0 || v > 1 {
			continue
		}
		out[p] = v
	}
	return out
}
