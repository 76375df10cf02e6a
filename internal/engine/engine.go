package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"forged/internal/sink"
	"forged/pkg/types"
)

const component = "engine"

// Engine is the model registry and inference dispatcher for one device.
type Engine struct {
	// lifecycleMu serializes Initialize and Shutdown.
	lifecycleMu sync.Mutex

	mu          sync.RWMutex
	ready       bool
	deviceIndex int
	device      Device
	models      map[string]*record
	usedMB      uint64

	loadsTotal   uint64
	unloadsTotal uint64

	runtime  TensorRuntime
	sink     sink.Sink
	scales   map[types.Precision]float64
	asyncSem *semaphore.Weighted
	now      func() time.Time
	seq      atomic.Uint64

	startTime time.Time
}

// record is the engine-owned state of one resident model. info is written
// while holding both rec.mu and Engine.mu, so holding either one is enough
// to read it.
type record struct {
	mu       sync.RWMutex
	info     types.ModelInfo
	model    RuntimeModel
	inflight atomic.Int32
	removed  bool
}

// New constructs an Engine with default tunables.
func New(rt TensorRuntime, s sink.Sink) *Engine {
	return NewWithConfig(Config{Runtime: rt, Sink: s})
}

// NewWithConfig constructs an Engine from Config. The engine is not ready
// until Initialize succeeds.
func NewWithConfig(cfg Config) *Engine {
	workers := cfg.AsyncWorkers
	if workers <= 0 {
		workers = defaultAsyncWorkers
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		deviceIndex: -1,
		models:      make(map[string]*record),
		runtime:     cfg.Runtime,
		sink:        sink.OrNop(cfg.Sink),
		scales:      resolveScales(cfg.PrecisionScales),
		asyncSem:    semaphore.NewWeighted(int64(workers)),
		now:         now,
		startTime:   now(),
	}
}

// Initialize binds the engine to the accelerator at deviceIndex. Calling it
// again while initialized is a no-op. On failure the engine stays not ready
// and every operation fails fast with a not-ready error.
func (e *Engine) Initialize(ctx context.Context, deviceIndex int) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	e.mu.RLock()
	ready, bound := e.ready, e.deviceIndex
	e.mu.RUnlock()
	if ready {
		e.logf(sink.LevelWarn, "already initialized on device %d; ignoring initialize(%d)", bound, deviceIndex)
		return nil
	}
	if e.runtime == nil {
		err := ErrInitialization(deviceIndex, errors.New("no tensor runtime configured"))
		e.logf(sink.LevelError, "%v", err)
		return err
	}
	dev, err := e.runtime.Bind(ctx, deviceIndex)
	if err != nil {
		err = ErrInitialization(deviceIndex, err)
		e.logf(sink.LevelError, "%v", err)
		return err
	}

	e.mu.Lock()
	e.device = dev
	e.deviceIndex = deviceIndex
	e.models = make(map[string]*record)
	e.usedMB = 0
	e.ready = true
	e.mu.Unlock()
	e.logf(sink.LevelInfo, "bound to device %d", deviceIndex)
	return nil
}

// Shutdown unloads every model, releases the device binding and returns the
// engine to not-ready. It waits for in-flight inference on each model.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	e.mu.Lock()
	if !e.ready {
		e.mu.Unlock()
		return nil
	}
	recs := make([]*record, 0, len(e.models))
	for _, rec := range e.models {
		recs = append(recs, rec)
	}
	e.models = make(map[string]*record)
	e.usedMB = 0
	dev := e.device
	e.device = nil
	e.ready = false
	e.mu.Unlock()
	updateRegistryGauges(0, 0)

	var errs []error
	released := 0
	for _, rec := range recs {
		rec.mu.Lock()
		if rec.removed {
			// A queued UnloadModel got there first.
			rec.mu.Unlock()
			continue
		}
		rec.removed = true
		if err := rec.model.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", rec.info.ID, err))
		}
		rec.mu.Unlock()
		released++
	}
	e.mu.Lock()
	e.unloadsTotal += uint64(released)
	e.mu.Unlock()
	if dev != nil {
		if err := dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close device: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		e.logf(sink.LevelWarn, "shutdown: %v", err)
		return err
	}
	e.logf(sink.LevelInfo, "shutdown complete; released %d model(s)", released)
	return nil
}

func (e *Engine) logf(level sink.Level, format string, args ...any) {
	e.sink.Log(level, component, fmt.Sprintf(format, args...))
}

func (e *Engine) newModelID() string {
	return fmt.Sprintf("model_%d_%d", e.now().UnixMilli(), e.seq.Add(1))
}
