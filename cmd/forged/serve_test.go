package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"forged/internal/config"
	"forged/internal/engine"
	"forged/internal/httpapi"
	"forged/internal/sink"
	"forged/internal/telemetry"
	"forged/pkg/types"
)

type hostOnly struct{}

func (hostOnly) QueryHost(ctx context.Context) (telemetry.HostSample, error) {
	return telemetry.HostSample{CPUUtilizationPct: 7, RAMUsedMB: 1024, RAMTotalMB: 2048}, nil
}

func TestWireTelemetry_HostOnly(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mon := telemetry.New(telemetry.Combine(hostOnly{}, nil), nil)
	defer func() { _ = mon.Shutdown() }()

	cfg := config.Config{
		Monitor: config.MonitorConfig{IntervalMs: 20},
		History: config.HistoryConfig{Path: ":memory:", Retain: 10},
	}
	deps := httpapi.Deps{Engine: engine.New(nil, nil)}
	closeFn, err := wireTelemetry(ctx, cfg, mon, prometheus.NewRegistry(), nil, sink.Nop{}, &deps, zerolog.Nop())
	if err != nil {
		t.Fatalf("wireTelemetry: %v", err)
	}
	defer closeFn()

	if deps.Telemetry == nil || deps.History == nil {
		t.Fatalf("telemetry not wired: %+v", deps)
	}
	if !mon.Monitoring() || mon.DeviceCount() != 0 {
		t.Fatalf("monitoring=%v devices=%d", mon.Monitoring(), mon.DeviceCount())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		snaps, err := deps.History.Recent(ctx, 10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(snaps) > 0 {
			if snaps[0].RAMTotalMB != 2048 || len(snaps[0].Devices) != 0 {
				t.Fatalf("snapshot: %+v", snaps[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no snapshot recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec := httptest.NewRecorder()
	httpapi.NewMux(deps).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/telemetry", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/telemetry = %d: %s", rec.Code, rec.Body.String())
	}
	var snap types.SystemSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("json: %v", err)
	}
	if snap.RAMUsedMB != 1024 || snap.CPUUtilizationPct != 7 {
		t.Fatalf("snapshot: %+v", snap)
	}
}

func TestWireTelemetry_NoProvider(t *testing.T) {
	mon := telemetry.New(telemetry.Combine(nil, nil), nil)
	deps := httpapi.Deps{}
	closeFn, err := wireTelemetry(context.Background(), config.Config{}, mon, prometheus.NewRegistry(), nil, sink.Nop{}, &deps, zerolog.Nop())
	if err != nil {
		t.Fatalf("wireTelemetry: %v", err)
	}
	closeFn()
	if deps.Telemetry != nil || mon.Monitoring() {
		t.Fatalf("telemetry wired without a provider")
	}
}

func TestServeFlags(t *testing.T) {
	cmd := newServeCmd(&rootOptions{})
	for _, name := range []string{"addr", "models-dir", "backend", "bridge-url", "device", "cors-origins", "infer-timeout", "history", "no-monitor", "nvml"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("missing --%s", name)
		}
	}
	if err := cmd.Flags().Parse([]string{"--infer-timeout", "12"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v, _ := cmd.Flags().GetInt64("infer-timeout"); v != 12 {
		t.Fatalf("infer-timeout = %d", v)
	}
}
