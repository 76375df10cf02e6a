package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"forged/internal/engine"
	"forged/internal/history"
	"forged/internal/httpapi"
	"forged/internal/runtime/bridge"
	"forged/internal/sink"
	"forged/internal/telemetry"
	"forged/pkg/types"
)

// worker is an in-memory runtime worker speaking the bridge protocol.
type worker struct {
	mu       sync.Mutex
	next     int
	loaded   map[string]bool
	released []string
	unbound  bool
}

func (w *worker) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/devices/bind", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, map[string]any{"device_id": "gpu-0", "name": "E2E GPU"})
	})
	mux.HandleFunc("POST /v1/devices/unbind", func(rw http.ResponseWriter, r *http.Request) {
		w.mu.Lock()
		w.unbound = true
		w.mu.Unlock()
	})
	mux.HandleFunc("POST /v1/models", func(rw http.ResponseWriter, r *http.Request) {
		w.mu.Lock()
		w.next++
		h := fmt.Sprintf("h%d", w.next)
		w.loaded[h] = true
		w.mu.Unlock()
		writeJSON(rw, map[string]any{"handle": h, "footprint_mb": 4000, "input_shape": []int{1, 4}, "output_shape": []int{1, 4}})
	})
	mux.HandleFunc("POST /v1/models/{h}/compile", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/x-ndjson")
		for _, p := range []float64{0.2, 0.6} {
			fmt.Fprintf(rw, "{\"progress\":%g}\n", p)
		}
		fmt.Fprintln(rw, `{"done":true}`)
	})
	mux.HandleFunc("POST /v1/models/{h}/execute", func(rw http.ResponseWriter, r *http.Request) {
		var in struct {
			Stage  string    `json:"stage"`
			Data   []float32 `json:"data"`
			Width  int       `json:"width"`
			Height int       `json:"height"`
			Prompt string    `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		out := map[string]any{}
		switch in.Stage {
		case "denoise":
			out["data"] = make([]float32, in.Width*in.Height*3)
		case "decode":
			out["data"] = in.Data
		default:
			d := make([]float32, len(in.Data))
			for i, v := range in.Data {
				d[i] = v * 10
			}
			out["data"] = d
		}
		writeJSON(rw, out)
	})
	mux.HandleFunc("DELETE /v1/models/{h}", func(rw http.ResponseWriter, r *http.Request) {
		w.mu.Lock()
		delete(w.loaded, r.PathValue("h"))
		w.released = append(w.released, r.PathValue("h"))
		w.mu.Unlock()
		rw.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (w *worker) resident() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.loaded)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// staticProvider reports one device with fixed figures.
type staticProvider struct{}

func (staticProvider) QueryHost(ctx context.Context) (telemetry.HostSample, error) {
	return telemetry.HostSample{CPUUtilizationPct: 25, RAMUsedMB: 8000, RAMTotalMB: 32000}, nil
}

func (staticProvider) EnumerateDevices(ctx context.Context) ([]int, error) { return []int{0}, nil }

func (staticProvider) QueryDevice(ctx context.Context, id int) (types.DeviceSnapshot, error) {
	return types.DeviceSnapshot{Name: "E2E GPU", MemoryUsedMB: 4000, MemoryTotalMB: 24000, TemperatureC: 55}, nil
}

type stack struct {
	srv    *httptest.Server
	worker *worker
	engine *engine.Engine
	mon    *telemetry.Monitor
	hub    *httpapi.Hub
	mem    *sink.Memory
}

// newStack wires the service the way cmd/forged serve does, with the
// runtime worker and the telemetry provider replaced by in-memory fakes.
func newStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()
	w := &worker{loaded: make(map[string]bool)}
	ws := httptest.NewServer(w.handler())
	t.Cleanup(ws.Close)

	hub := httpapi.NewHub(sink.LevelInfo)
	mem := sink.NewMemory()
	snk := sink.Multi(mem, hub)

	eng := engine.New(bridge.New(bridge.Config{BaseURL: ws.URL, RequestTimeout: 5 * time.Second}), snk)
	if err := eng.Initialize(ctx, 0); err != nil {
		t.Fatalf("initialize engine: %v", err)
	}

	store, err := history.Open(ctx, ":memory:", 100)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}

	mon := telemetry.New(staticProvider{}, snk)
	if err := mon.Initialize(ctx); err != nil {
		t.Fatalf("initialize monitor: %v", err)
	}
	mon.Subscribe(hub.Observe)
	mon.Subscribe(store.Subscriber(snk))

	srv := httptest.NewServer(httpapi.NewMux(httpapi.Deps{
		Engine:    eng,
		Telemetry: mon,
		History:   store,
		Hub:       hub,
	}))
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
		_ = mon.Shutdown()
		_ = eng.Shutdown(context.Background())
		_ = store.Close()
	})
	return &stack{srv: srv, worker: w, engine: eng, mon: mon, hub: hub, mem: mem}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	return do(t, http.MethodGet, url, nil)
}

func httpPostJSON(t *testing.T, url string, payload any) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return do(t, http.MethodPost, url, b)
}

func do(t *testing.T, method, url string, body []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	out, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, out
}

func decode(t *testing.T, b []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
}
