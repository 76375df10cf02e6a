package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	modelsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "forged",
			Subsystem: "engine",
			Name:      "models_loaded",
			Help:      "Number of models currently resident",
		},
	)

	vramUsedMB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "forged",
			Subsystem: "engine",
			Name:      "vram_used_mb",
			Help:      "Sum of resident model footprints in MB",
		},
	)

	inferenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forged",
			Subsystem: "engine",
			Name:      "inference_total",
			Help:      "Inference dispatches by result (success, failure, rejected)",
		},
		[]string{"result"},
	)

	inferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "forged",
			Subsystem: "engine",
			Name:      "inference_duration_seconds",
			Help:      "Duration of successful inference dispatches in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		},
	)

	optimizationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forged",
			Subsystem: "engine",
			Name:      "optimizations_total",
			Help:      "Completed model optimizations by target precision",
		},
		[]string{"precision"},
	)
)

func init() {
	prometheus.MustRegister(modelsLoaded, vramUsedMB, inferenceTotal, inferenceDuration, optimizationsTotal)
}

func updateRegistryGauges(models int, usedMB uint64) {
	modelsLoaded.Set(float64(models))
	vramUsedMB.Set(float64(usedMB))
}
