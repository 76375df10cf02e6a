// Package engine owns the set of accelerator-resident models and dispatches
// optimization and inference against a TensorRuntime. It is structured into
// small files by concern:
//
//   - engine.go: core Engine type, constructor, Initialize/Shutdown.
//   - config.go: Config and package defaults; NewWithConfig applies defaults.
//   - runtime.go: the TensorRuntime capability consumed by the engine.
//   - errors.go: error types and helpers (IsNotReady, IsModelNotFound, ...).
//   - detect.go: locator suffix -> format table and keyword -> kind scan.
//   - admission.go: per-model reader/writer admission for inference vs
//     optimize/unload.
//   - load.go, unload.go, optimize.go: model lifecycle.
//   - infer.go, async.go, image.go: dispatch entry points.
//   - status.go: ModelInfo/Status projections and VRAM accounting.
//   - metrics.go: Prometheus collectors.
//
// A model moves Loaded -> Optimized and is removed by UnloadModel; there is
// no Optimized -> Loaded transition. Callers only ever receive copies of
// model records.
//
// Inference against one model runs concurrently with other inferences on the
// same model, but OptimizeModel and UnloadModel wait for in-flight inference
// on that model to drain and block new inference until they finish.
// Operations on distinct models never contend beyond short registry lookups.
package engine
