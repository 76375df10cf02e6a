package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"forged/internal/sink"
	"forged/pkg/types"
)

// fakeRuntime is an in-memory TensorRuntime used for tests.
type fakeRuntime struct {
	bindErr     error
	loadErr     error
	compileErr  error
	execErr     error
	compileRept uint64
	footprintMB uint64
	// holdFor makes Execute on models whose locator contains it block on hold.
	holdFor string
	hold    chan struct{}
	entered chan struct{}
	// compileHold, when set, makes Compile block until it is closed.
	compileHold    chan struct{}
	compileEntered chan struct{}

	binds  atomic.Int32
	closed atomic.Bool

	mu     sync.Mutex
	models []*fakeModel
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{footprintMB: 1000, entered: make(chan struct{}, 16), compileEntered: make(chan struct{}, 16)}
}

func (r *fakeRuntime) Bind(ctx context.Context, deviceIndex int) (Device, error) {
	if r.bindErr != nil {
		return nil, r.bindErr
	}
	r.binds.Add(1)
	return &fakeDevice{rt: r}, nil
}

func (r *fakeRuntime) loaded() []*fakeModel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*fakeModel(nil), r.models...)
}

type fakeDevice struct{ rt *fakeRuntime }

func (d *fakeDevice) Load(ctx context.Context, locator string, format types.ModelFormat) (RuntimeModel, LoadInfo, error) {
	if d.rt.loadErr != nil {
		return nil, LoadInfo{}, d.rt.loadErr
	}
	m := &fakeModel{rt: d.rt, locator: locator}
	if d.rt.holdFor != "" && strings.Contains(locator, d.rt.holdFor) {
		m.hold = d.rt.hold
	}
	d.rt.mu.Lock()
	d.rt.models = append(d.rt.models, m)
	d.rt.mu.Unlock()
	return m, LoadInfo{FootprintMB: d.rt.footprintMB, InputShape: []int{1, 3, 224, 224}, OutputShape: []int{1, 1000}}, nil
}

func (d *fakeDevice) Close() error {
	d.rt.closed.Store(true)
	return nil
}

type fakeModel struct {
	rt       *fakeRuntime
	locator  string
	hold     chan struct{}
	released atomic.Bool
	releases atomic.Int32
	compiles atomic.Int32
}

func (m *fakeModel) Compile(ctx context.Context, precision types.Precision, progress func(float64)) (uint64, error) {
	m.compiles.Add(1)
	if m.rt.compileHold != nil {
		m.rt.compileEntered <- struct{}{}
		<-m.rt.compileHold
	}
	for _, f := range []float64{0.25, 0.5, 0.5, 0.75, 1} {
		progress(f)
	}
	return m.rt.compileRept, m.rt.compileErr
}

func (m *fakeModel) Execute(ctx context.Context, in Input, p ExecParams) (Output, error) {
	if m.hold != nil {
		m.rt.entered <- struct{}{}
		select {
		case <-m.hold:
		case <-ctx.Done():
			return Output{}, ctx.Err()
		}
	}
	if m.rt.execErr != nil {
		return Output{}, m.rt.execErr
	}
	switch p.Stage {
	case StageGenerate:
		return Output{Text: "echo: " + in.Prompt}, nil
	case StageDenoise:
		data := in.Data
		if data == nil {
			data = make([]float32, in.Width*in.Height*in.Channels)
		}
		for i := range data {
			data[i] += 1 / float32(p.NumSteps)
		}
		return Output{Data: data}, nil
	case StageDecode:
		return Output{Data: in.Data}, nil
	case StageUpscale:
		return Output{Pixels: make([]byte, p.Width*p.Height*3), Width: p.Width, Height: p.Height, Channels: 3}, nil
	}
	out := make([]float32, len(in.Data))
	for i, v := range in.Data {
		out[i] = 2 * v
	}
	return Output{Data: out}, nil
}

func (m *fakeModel) Release() error {
	m.released.Store(true)
	m.releases.Add(1)
	return nil
}

// newTestEngine returns an initialized engine over rt with an in-memory sink.
func newTestEngine(t *testing.T, rt *fakeRuntime) (*Engine, *sink.Memory) {
	t.Helper()
	mem := sink.NewMemory()
	e := New(rt, mem)
	if err := e.Initialize(testCtx(t), 0); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return e, mem
}

func mustLoad(t *testing.T, e *Engine, locator string) string {
	t.Helper()
	id, err := e.LoadModel(testCtx(t), locator, "", types.KindUnknown)
	if err != nil {
		t.Fatalf("LoadModel(%s): %v", locator, err)
	}
	return id
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

var errBoom = errors.New("boom")
