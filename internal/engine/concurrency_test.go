package engine

import (
	"testing"
	"time"

	"forged/pkg/types"
)

// startHeldInference launches an inference that blocks inside the runtime
// until rt.hold is closed, and waits for it to get there.
func startHeldInference(t *testing.T, e *Engine, rt *fakeRuntime, id string) <-chan types.InferenceResult {
	t.Helper()
	done := make(chan types.InferenceResult, 1)
	go func() {
		res, _ := e.RunInference(testCtx(t), types.InferenceRequest{ModelID: id}, []float32{1})
		done <- res
	}()
	select {
	case <-rt.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("inference never reached the runtime")
	}
	return done
}

func TestOptimizeWaitsForInflightInference(t *testing.T) {
	rt := newFakeRuntime()
	rt.holdFor = "held"
	rt.hold = make(chan struct{})
	e, _ := newTestEngine(t, rt)
	id := mustLoad(t, e, "held.onnx")

	infer := startHeldInference(t, e, rt, id)
	if st := e.Status(); st.Models[0].Inflight != 1 {
		t.Fatalf("inflight = %d", st.Models[0].Inflight)
	}

	opt := make(chan error, 1)
	go func() {
		_, err := e.OptimizeModel(testCtx(t), id, types.PrecisionFP16)
		opt <- err
	}()
	select {
	case err := <-opt:
		t.Fatalf("optimize finished while inference was running: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(rt.hold)
	if res := <-infer; !res.Success || res.PeakMemoryUsedMB != 1000 {
		t.Fatalf("inference saw a mutated model: %+v", res)
	}
	if err := <-opt; err != nil {
		t.Fatalf("OptimizeModel: %v", err)
	}
	info, _ := e.GetModelInfo(id)
	if info.MemoryFootprintMB != 600 {
		t.Fatalf("footprint = %d", info.MemoryFootprintMB)
	}
}

func TestUnloadWaitsForInflightInference(t *testing.T) {
	rt := newFakeRuntime()
	rt.holdFor = "held"
	rt.hold = make(chan struct{})
	e, _ := newTestEngine(t, rt)
	id := mustLoad(t, e, "held.onnx")

	infer := startHeldInference(t, e, rt, id)
	unload := make(chan error, 1)
	go func() { unload <- e.UnloadModel(id) }()
	select {
	case <-unload:
		t.Fatalf("unload finished while inference was running")
	case <-time.After(100 * time.Millisecond):
	}
	if rt.loaded()[0].released.Load() {
		t.Fatalf("model released under a running inference")
	}

	close(rt.hold)
	if res := <-infer; !res.Success {
		t.Fatalf("inference: %+v", res)
	}
	if err := <-unload; err != nil {
		t.Fatalf("UnloadModel: %v", err)
	}
	res, err := e.RunInference(testCtx(t), types.InferenceRequest{ModelID: id}, nil)
	if !IsModelNotFound(err) || res.Success {
		t.Fatalf("inference after unload: res=%+v err=%v", res, err)
	}
}

func TestDistinctModelsDoNotContend(t *testing.T) {
	rt := newFakeRuntime()
	rt.holdFor = "held"
	rt.hold = make(chan struct{})
	e, _ := newTestEngine(t, rt)
	held := mustLoad(t, e, "held.onnx")
	free := mustLoad(t, e, "free.onnx")

	infer := startHeldInference(t, e, rt, held)
	defer func() {
		close(rt.hold)
		<-infer
	}()

	done := make(chan error, 1)
	go func() {
		if _, err := e.OptimizeModel(testCtx(t), free, types.PrecisionINT8); err != nil {
			done <- err
			return
		}
		done <- e.UnloadModel(free)
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("optimize/unload on other model: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("operations on a different model were blocked")
	}
	if _, err := e.LoadModel(testCtx(t), "third.onnx", "", types.KindUnknown); err != nil {
		t.Fatalf("LoadModel blocked or failed: %v", err)
	}
}

func TestConcurrentInferenceOnSameModel(t *testing.T) {
	e, _ := newTestEngine(t, newFakeRuntime())
	id := mustLoad(t, e, "a.onnx")
	const n = 16
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			res, err := e.RunInference(testCtx(t), types.InferenceRequest{ModelID: id}, []float32{1})
			if err == nil && !res.Success {
				err = errBoom
			}
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("inference %d: %v", i, err)
		}
	}
}

// waitNotReady polls until Shutdown has flipped the engine to not-ready.
func waitNotReady(t *testing.T, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for e.IsInitialized() {
		if time.Now().After(deadline) {
			t.Fatalf("engine still ready")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestShutdownDuringOptimizeKeepsAccounting(t *testing.T) {
	rt := newFakeRuntime()
	rt.compileHold = make(chan struct{})
	e, _ := newTestEngine(t, rt)
	id := mustLoad(t, e, "a.onnx")

	opt := make(chan error, 1)
	go func() {
		_, err := e.OptimizeModel(testCtx(t), id, types.PrecisionINT8)
		opt <- err
	}()
	select {
	case <-rt.compileEntered:
	case <-time.After(2 * time.Second):
		t.Fatalf("compile never started")
	}

	shut := make(chan error, 1)
	go func() { shut <- e.Shutdown(testCtx(t)) }()
	waitNotReady(t, e)
	close(rt.compileHold)

	if err := <-opt; !IsModelNotFound(err) {
		t.Fatalf("optimize after shutdown: %v", err)
	}
	if err := <-shut; err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if n := rt.loaded()[0].releases.Load(); n != 1 {
		t.Fatalf("Release called %d times", n)
	}

	if err := e.Initialize(testCtx(t), 0); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := e.GetVRAMUsage(); got != 0 {
		t.Fatalf("VRAM after reinit = %d", got)
	}
	mustLoad(t, e, "b.onnx")
	if got := e.GetVRAMUsage(); got != 1000 {
		t.Fatalf("VRAM after load = %d", got)
	}
}

func TestShutdownSkipsModelUnloadedWhileQueued(t *testing.T) {
	rt := newFakeRuntime()
	rt.holdFor = "held"
	rt.hold = make(chan struct{})
	e, _ := newTestEngine(t, rt)
	id := mustLoad(t, e, "held.onnx")

	infer := startHeldInference(t, e, rt, id)
	unload := make(chan error, 1)
	go func() { unload <- e.UnloadModel(id) }()
	time.Sleep(50 * time.Millisecond)

	shut := make(chan error, 1)
	go func() { shut <- e.Shutdown(testCtx(t)) }()
	waitNotReady(t, e)
	close(rt.hold)

	<-infer
	if err := <-unload; err != nil {
		t.Fatalf("UnloadModel: %v", err)
	}
	if err := <-shut; err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if n := rt.loaded()[0].releases.Load(); n != 1 {
		t.Fatalf("Release called %d times, want 1", n)
	}
	if st := e.Status(); st.UnloadsTotal != 1 {
		t.Fatalf("unloads = %d, want 1", st.UnloadsTotal)
	}
	if got := e.GetVRAMUsage(); got != 0 {
		t.Fatalf("VRAM = %d", got)
	}
}
