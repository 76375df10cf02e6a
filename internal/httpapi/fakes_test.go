package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"forged/internal/engine"
	"forged/internal/sink"
	"forged/pkg/types"
)

// stubRuntime is a minimal in-process TensorRuntime.
type stubRuntime struct {
	execErr error
	block   chan struct{}
}

func (r *stubRuntime) Bind(ctx context.Context, idx int) (engine.Device, error) {
	return stubDevice{rt: r}, nil
}

type stubDevice struct{ rt *stubRuntime }

func (d stubDevice) Load(ctx context.Context, locator string, f types.ModelFormat) (engine.RuntimeModel, engine.LoadInfo, error) {
	if strings.Contains(locator, "broken") {
		return nil, engine.LoadInfo{}, errors.New("corrupt weights")
	}
	return &stubModel{rt: d.rt}, engine.LoadInfo{FootprintMB: 1000, InputShape: []int{1, 4}, OutputShape: []int{1, 4}}, nil
}

func (stubDevice) Close() error { return nil }

type stubModel struct{ rt *stubRuntime }

func (m *stubModel) Compile(ctx context.Context, p types.Precision, progress func(float64)) (uint64, error) {
	progress(0.5)
	return 0, nil
}

func (m *stubModel) Execute(ctx context.Context, in engine.Input, p engine.ExecParams) (engine.Output, error) {
	if m.rt.block != nil {
		select {
		case <-m.rt.block:
		case <-ctx.Done():
			return engine.Output{}, ctx.Err()
		}
	}
	if m.rt.execErr != nil {
		return engine.Output{}, m.rt.execErr
	}
	switch p.Stage {
	case engine.StageGenerate:
		return engine.Output{Text: "echo: " + in.Prompt}, nil
	case engine.StageDenoise:
		return engine.Output{Data: make([]float32, in.Width*in.Height*3)}, nil
	case engine.StageDecode:
		return engine.Output{Data: in.Data}, nil
	case engine.StageUpscale:
		return engine.Output{Pixels: make([]byte, p.Width*p.Height*3)}, nil
	}
	out := make([]float32, len(in.Data))
	for i, v := range in.Data {
		out[i] = v + 1
	}
	return engine.Output{Data: out}, nil
}

func (m *stubModel) Release() error { return nil }

type fakeTelemetry struct {
	snap types.SystemSnapshot
	st   types.MonitorStatus
}

func (f *fakeTelemetry) CollectMetrics(ctx context.Context) types.SystemSnapshot { return f.snap }
func (f *fakeTelemetry) Status() types.MonitorStatus                             { return f.st }

type fakeHistory struct {
	snaps []types.SystemSnapshot
	limit int
	err   error
}

func (f *fakeHistory) Recent(ctx context.Context, limit int) ([]types.SystemSnapshot, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.snaps) {
		return f.snaps[len(f.snaps)-limit:], nil
	}
	return f.snaps, nil
}

// newEngine returns an engine over rt; initialized unless told otherwise.
func newEngine(t *testing.T, rt *stubRuntime, initialize bool) *engine.Engine {
	t.Helper()
	e := engine.New(rt, sink.Nop{})
	if initialize {
		require.NoError(t, e.Initialize(context.Background(), 0))
	}
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })
	return e
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
