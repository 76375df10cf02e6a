package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"forged/internal/engine"
	"forged/pkg/types"
)

// EngineService is the inference engine as seen by the HTTP layer.
type EngineService interface {
	LoadModel(ctx context.Context, locator, name string, kindHint types.ModelKind) (string, error)
	UnloadModel(id string) error
	OptimizeModel(ctx context.Context, id string, precision types.Precision) (types.OptimizeResult, error)
	RunInference(ctx context.Context, req types.InferenceRequest, input []float32) (types.InferenceResult, error)
	RunInferenceAsync(ctx context.Context, req types.InferenceRequest, input []float32) *engine.Task
	GenerateImage(ctx context.Context, modelID, prompt string, req types.InferenceRequest) (types.InferenceResult, error)
	UpscaleImage(ctx context.Context, modelID string, image []byte, width, height, scale int) (types.InferenceResult, error)
	GetModelInfo(id string) (types.ModelInfo, error)
	GetLoadedModels() []types.ModelInfo
	IsInitialized() bool
	Status() types.EngineStatus
}

// TelemetryService is the telemetry monitor as seen by the HTTP layer.
type TelemetryService interface {
	CollectMetrics(ctx context.Context) types.SystemSnapshot
	Status() types.MonitorStatus
}

// HistoryReader serves recorded snapshots, oldest first.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]types.SystemSnapshot, error)
}

// Deps are the collaborators behind the routes. Only Engine is required;
// routes whose collaborator is missing answer 503 (or 404 for /ws and
// /catalog).
type Deps struct {
	Engine    EngineService
	Telemetry TelemetryService
	History   HistoryReader
	Hub       *Hub
	// Directory listed by GET /catalog.
	ModelsDir string
	// Maximum number of remembered async tasks; 0 uses the default.
	TaskCapacity int
}

type server struct {
	Deps
	tasks *taskTable
}

// NewMux builds the HTTP handler.
func NewMux(d Deps) http.Handler {
	s := &server{Deps: d, tasks: newTaskTable(d.TaskCapacity)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(MetricsMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: orDefault(corsAllowedMethods, []string{"GET", "POST", "DELETE", "OPTIONS"}),
			AllowedHeaders: orDefault(corsAllowedHeaders, []string{"Content-Type", "X-Log-Level"}),
			MaxAge:         300,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Group(func(r chi.Router) {
		// Compression for JSON endpoints; /ws must stay uncompressed.
		r.Use(middleware.Compress(5))

		r.Get("/models", s.listModels)
		r.Post("/models", s.loadModel)
		r.Get("/models/{id}", s.getModel)
		r.Delete("/models/{id}", s.unloadModel)
		r.Post("/models/{id}/optimize", s.optimizeModel)

		r.Post("/infer", s.infer)
		r.Post("/infer/async", s.inferAsync)
		r.Get("/tasks/{id}", s.getTask)
		r.Delete("/tasks/{id}", s.cancelTask)

		r.Post("/generate", s.generate)
		r.Post("/upscale", s.upscale)

		r.Get("/status", s.status)
		r.Get("/telemetry", s.telemetry)
		r.Get("/telemetry/history", s.telemetryHistory)
		r.Get("/catalog", s.catalog)
	})

	r.Get("/ws", s.stream)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.Engine.IsInitialized() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("initializing"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}
