package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"forged/internal/common/fsutil"
	"forged/internal/config"
	"forged/internal/engine"
	"forged/internal/history"
	"forged/internal/httpapi"
	"forged/internal/runtime/bridge"
	"forged/internal/runtime/llamacpp"
	"forged/internal/sink"
	"forged/internal/telemetry"
	"forged/pkg/types"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr         string
		modelsDir    string
		backend      string
		bridgeURL    string
		device       int
		corsOrigins  string
		historyPath  string
		inferTimeout int64
		noMonitor    bool
		nvml         bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the engine and the telemetry monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("addr") {
				cfg.Addr = addr
			}
			if f.Changed("models-dir") {
				cfg.ModelsDir = modelsDir
			}
			if f.Changed("backend") {
				cfg.Runtime.Backend = backend
			}
			if f.Changed("bridge-url") {
				cfg.Runtime.BridgeURL = bridgeURL
			}
			if f.Changed("device") {
				cfg.DeviceIndex = device
			}
			if f.Changed("cors-origins") {
				cfg.HTTP.CORSEnabled = true
				cfg.HTTP.CORSOrigins = splitCSV(corsOrigins)
			}
			if f.Changed("infer-timeout") {
				cfg.HTTP.InferTimeoutSeconds = inferTimeout
			}
			if f.Changed("history") {
				cfg.History.Path = historyPath
			}
			if noMonitor {
				off := false
				cfg.Monitor.Enabled = &off
			}
			if f.Changed("nvml") {
				cfg.Monitor.NVML = nvml
			}
			if root.logLevel != "" {
				cfg.LogLevel = root.logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log := newLogger(root.logFormat, cfg.LogLevel)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", config.DefaultAddr, "HTTP listen address")
	f.StringVar(&modelsDir, "models-dir", "", "Directory listed by /catalog")
	f.StringVar(&backend, "backend", config.BackendBridge, "Tensor runtime: bridge|llama")
	f.StringVar(&bridgeURL, "bridge-url", config.DefaultBridgeURL, "Base URL of the runtime worker")
	f.IntVar(&device, "device", 0, "Accelerator index to bind")
	f.StringVar(&corsOrigins, "cors-origins", "", "Comma-separated allowed origins; enables CORS")
	f.Int64Var(&inferTimeout, "infer-timeout", 0, "Seconds allowed for a synchronous inference request (0 disables)")
	f.StringVar(&historyPath, "history", "", "SQLite file for telemetry history (\":memory:\" for in-process)")
	f.BoolVar(&noMonitor, "no-monitor", false, "Disable background telemetry")
	f.BoolVar(&nvml, "nvml", false, "Read accelerator metrics through NVML (requires -tags nvml)")
	return cmd
}

// newRuntime builds the tensor runtime selected by cfg.
func newRuntime(cfg config.RuntimeConfig) engine.TensorRuntime {
	if cfg.Backend == config.BackendLlama {
		return llamacpp.New(llamacpp.Config{
			ContextSize: cfg.LlamaCtx,
			Threads:     cfg.LlamaThreads,
			GPULayers:   cfg.LlamaGPULayers,
		})
	}
	return bridge.New(bridge.Config{
		BaseURL:        cfg.BridgeURL,
		APIKey:         cfg.BridgeAPIKey,
		RequestTimeout: time.Duration(cfg.BridgeTimeoutSeconds) * time.Second,
	})
}

// newProvider assembles the telemetry provider. Host metrics come from
// procfs; device metrics from NVML when enabled.
func newProvider(cfg config.MonitorConfig, log zerolog.Logger) telemetry.Provider {
	var (
		host    telemetry.HostProvider
		devices telemetry.DeviceProvider
	)
	if h, err := telemetry.NewProcHost(cfg.ProcRoot); err != nil {
		log.Warn().Err(err).Msg("host telemetry unavailable")
	} else {
		host = h
	}
	if cfg.NVML {
		if d, err := telemetry.NewNVMLDevices(); err != nil {
			log.Warn().Err(err).Msg("device telemetry unavailable")
		} else {
			devices = d
		}
	}
	return telemetry.Combine(host, devices)
}

// wireTelemetry initializes mon and, when it can report anything, hooks up
// the Prometheus exporter, the websocket hub and the history store, then
// starts polling if enabled. A monitor without devices still serves host
// figures. The returned func closes what was opened.
func wireTelemetry(ctx context.Context, cfg config.Config, mon *telemetry.Monitor, reg prometheus.Registerer, hub *httpapi.Hub, snk sink.Sink, deps *httpapi.Deps, log zerolog.Logger) (func(), error) {
	noop := func() {}
	if err := mon.Initialize(ctx); err != nil {
		if !mon.HostAvailable() {
			log.Warn().Err(err).Msg("telemetry disabled")
			return noop, nil
		}
		log.Warn().Err(err).Msg("device telemetry unavailable; reporting host figures only")
	}
	deps.Telemetry = mon

	exp, err := telemetry.NewExporter(reg)
	if err != nil {
		return noop, fmt.Errorf("register telemetry exporter: %w", err)
	}
	mon.Subscribe(exp.Observe)
	if hub != nil {
		mon.Subscribe(hub.Observe)
	}
	closeFn := noop
	if cfg.History.Path != "" {
		store, err := history.Open(ctx, cfg.History.Path, cfg.History.Retain)
		if err != nil {
			return noop, fmt.Errorf("open history: %w", err)
		}
		mon.Subscribe(store.Subscriber(snk))
		deps.History = store
		closeFn = func() {
			mon.StopMonitoring()
			_ = store.Close()
		}
	}
	if cfg.Monitor.IsEnabled() {
		mon.StartMonitoring(nil, time.Duration(cfg.Monitor.IntervalMs)*time.Millisecond)
	}
	return closeFn, nil
}

func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(cfg.HTTP.MaxBodyBytes)
	httpapi.SetInferTimeoutSeconds(cfg.HTTP.InferTimeoutSeconds)
	if cfg.HTTP.CORSEnabled {
		httpapi.SetCORSOptions(true, cfg.HTTP.CORSOrigins, nil, nil)
	}

	if cfg.ModelsDir != "" {
		if dir, err := fsutil.ExpandHome(cfg.ModelsDir); err != nil || !fsutil.PathExists(dir) {
			log.Warn().Str("dir", cfg.ModelsDir).Msg("models directory does not exist; /catalog will fail")
		}
	}

	hub := httpapi.NewHub(sink.LevelInfo)
	defer hub.Close()
	snk := sink.Multi(sink.NewZerolog(log), hub)

	eng := engine.NewWithConfig(engine.Config{
		Runtime:         newRuntime(cfg.Runtime),
		Sink:            snk,
		PrecisionScales: cfg.Engine.Scales(),
		AsyncWorkers:    cfg.Engine.AsyncWorkers,
	})
	if err := eng.Initialize(ctx, cfg.DeviceIndex); err != nil {
		// Keep serving so /readyz and /telemetry stay reachable.
		log.Error().Err(err).Int("device", cfg.DeviceIndex).Msg("engine initialization failed")
	} else {
		preload(ctx, eng, cfg.Preload, log)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := eng.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("engine shutdown")
		}
	}()

	mon := telemetry.New(newProvider(cfg.Monitor, log), snk)
	defer func() { _ = mon.Shutdown() }()

	deps := httpapi.Deps{Engine: eng, Hub: hub, ModelsDir: cfg.ModelsDir}
	closeTelemetry, err := wireTelemetry(ctx, cfg, mon, prometheus.DefaultRegisterer, hub, snk, &deps, log)
	if err != nil {
		return err
	}
	defer closeTelemetry()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("backend", cfg.Runtime.Backend).Msg("forged listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

// preload loads and optionally optimizes the configured models. Failures
// are logged and skipped.
func preload(ctx context.Context, eng *engine.Engine, models []config.PreloadModel, log zerolog.Logger) {
	for _, p := range models {
		id, err := eng.LoadModel(ctx, p.Locator, p.Name, types.ParseKind(p.Kind))
		if err != nil {
			log.Error().Err(err).Str("locator", p.Locator).Msg("preload failed")
			continue
		}
		if p.Precision == "" {
			continue
		}
		prec, _ := types.ParsePrecision(p.Precision)
		if _, err := eng.OptimizeModel(ctx, id, prec); err != nil {
			log.Error().Err(err).Str("model", id).Msg("preload optimize failed")
		}
	}
}
