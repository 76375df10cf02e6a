package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"forged/internal/registry"
	"forged/internal/telemetry"
	"forged/pkg/types"
)

const (
	defaultHistoryLimit = 60
	maxHistoryLimit     = 3600
)

// decodeJSON enforces a JSON content type and the body size limit. It writes
// the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// listModels godoc
// @Summary      List loaded models
// @Tags         models
// @Produce      json
// @Success      200  {object}  types.ModelsResponse
// @Router       /models [get]
func (s *server) listModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: s.Engine.GetLoadedModels()})
}

// loadModel godoc
// @Summary      Load a model onto the device
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        body  body      types.LoadModelRequest  true  "Model to load"
// @Success      201   {object}  types.LoadModelResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      415   {object}  types.ErrorResponse
// @Failure      502   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /models [post]
func (s *server) loadModel(w http.ResponseWriter, r *http.Request) {
	var req types.LoadModelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Locator) == "" {
		writeJSONError(w, http.StatusBadRequest, "locator is required")
		return
	}
	id, err := s.Engine.LoadModel(r.Context(), req.Locator, req.Name, types.ParseKind(req.Kind))
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := s.Engine.GetModelInfo(id)
	if err != nil {
		// Unloaded concurrently.
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.LoadModelResponse{Model: info})
}

// getModel godoc
// @Summary      Describe a loaded model
// @Tags         models
// @Produce      json
// @Param        id   path      string  true  "Model id"
// @Success      200  {object}  types.ModelInfo
// @Failure      404  {object}  types.ErrorResponse
// @Router       /models/{id} [get]
func (s *server) getModel(w http.ResponseWriter, r *http.Request) {
	info, err := s.Engine.GetModelInfo(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// unloadModel godoc
// @Summary      Unload a model and free its memory
// @Tags         models
// @Param        id   path  string  true  "Model id"
// @Success      204
// @Failure      404  {object}  types.ErrorResponse
// @Router       /models/{id} [delete]
func (s *server) unloadModel(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.UnloadModel(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// optimizeModel godoc
// @Summary      Compile a model for a precision
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        id    path      string                 true  "Model id"
// @Param        body  body      types.OptimizeRequest  true  "Target precision"
// @Success      200   {object}  types.OptimizeResult
// @Failure      400   {object}  types.ErrorResponse
// @Failure      404   {object}  types.ErrorResponse
// @Failure      502   {object}  types.ErrorResponse
// @Router       /models/{id}/optimize [post]
func (s *server) optimizeModel(w http.ResponseWriter, r *http.Request) {
	var req types.OptimizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, ok := types.ParsePrecision(req.Precision)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "precision must be one of fp32, fp16, int8, auto")
		return
	}
	res, err := s.Engine.OptimizeModel(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// infer godoc
// @Summary      Run one inference synchronously
// @Description  Runtime failures are reported in the result with success=false and status 200.
// @Tags         inference
// @Accept       json
// @Produce      json
// @Param        body  body      types.InferRequest  true  "Request and input tensor"
// @Success      200   {object}  types.InferenceResult
// @Failure      400   {object}  types.ErrorResponse
// @Failure      404   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /infer [post]
func (s *server) infer(w http.ResponseWriter, r *http.Request) {
	var req types.InferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := inferContext(r.Context())
	defer cancel()
	res, err := s.Engine.RunInference(ctx, req.Request, req.Input)
	s.writeResult(w, r, ctx, res, err)
}

// writeResult writes an inference outcome unless the client has gone.
func (s *server) writeResult(w http.ResponseWriter, r *http.Request, ctx context.Context, res types.InferenceResult, err error) {
	if r.Context().Err() != nil {
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.Success && ctx.Err() != nil {
		writeJSONError(w, statusFor(ctx.Err()), res.ErrorMessage)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// inferAsync godoc
// @Summary      Submit an inference task
// @Tags         inference
// @Accept       json
// @Produce      json
// @Param        body  body      types.InferRequest  true  "Request and input tensor"
// @Success      202   {object}  types.TaskResponse
// @Failure      429   {object}  types.ErrorResponse
// @Router       /infer/async [post]
func (s *server) inferAsync(w http.ResponseWriter, r *http.Request) {
	var req types.InferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := s.tasks.add(func() AsyncTask {
		return s.Engine.RunInferenceAsync(serverBaseCtx, req.Request, req.Input)
	})
	if err != nil {
		IncrementBackpressure("tasks")
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/tasks/"+task.ID())
	writeJSON(w, http.StatusAccepted, taskResponse(task))
}

// getTask godoc
// @Summary      Poll an inference task
// @Tags         inference
// @Produce      json
// @Param        id   path      string  true  "Task id"
// @Success      200  {object}  types.TaskResponse
// @Failure      404  {object}  types.ErrorResponse
// @Router       /tasks/{id} [get]
func (s *server) getTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.tasks.get(chi.URLParam(r, "id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, taskResponse(task))
}

// cancelTask godoc
// @Summary      Cancel an inference task
// @Tags         inference
// @Produce      json
// @Param        id   path      string  true  "Task id"
// @Success      202  {object}  types.TaskResponse
// @Failure      404  {object}  types.ErrorResponse
// @Router       /tasks/{id} [delete]
func (s *server) cancelTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.tasks.get(chi.URLParam(r, "id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "task not found")
		return
	}
	task.Cancel()
	writeJSON(w, http.StatusAccepted, taskResponse(task))
}

// generate godoc
// @Summary      Generate an image from a prompt
// @Tags         images
// @Accept       json
// @Produce      json
// @Param        body  body      types.GenerateImageRequest  true  "Prompt and parameters"
// @Success      200   {object}  types.InferenceResult
// @Failure      400   {object}  types.ErrorResponse
// @Failure      404   {object}  types.ErrorResponse
// @Router       /generate [post]
func (s *server) generate(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateImageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ModelID == "" {
		req.ModelID = req.Request.ModelID
	}
	ctx, cancel := inferContext(r.Context())
	defer cancel()
	res, err := s.Engine.GenerateImage(ctx, req.ModelID, req.Prompt, req.Request)
	s.writeResult(w, r, ctx, res, err)
}

// upscale godoc
// @Summary      Upscale an RGB image
// @Tags         images
// @Accept       json
// @Produce      json
// @Param        body  body      types.UpscaleImageRequest  true  "Image and factor"
// @Success      200   {object}  types.InferenceResult
// @Failure      400   {object}  types.ErrorResponse
// @Failure      404   {object}  types.ErrorResponse
// @Router       /upscale [post]
func (s *server) upscale(w http.ResponseWriter, r *http.Request) {
	var req types.UpscaleImageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := inferContext(r.Context())
	defer cancel()
	res, err := s.Engine.UpscaleImage(ctx, req.ModelID, req.Image, req.Width, req.Height, req.Scale)
	s.writeResult(w, r, ctx, res, err)
}

// status godoc
// @Summary      Engine and monitor status
// @Tags         status
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (s *server) status(w http.ResponseWriter, r *http.Request) {
	resp := types.StatusResponse{
		Engine:         s.Engine.Status(),
		ServerTimeUnix: time.Now().Unix(),
	}
	if s.Telemetry != nil {
		resp.Monitor = s.Telemetry.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

// telemetry godoc
// @Summary      Collect a fresh telemetry snapshot
// @Tags         telemetry
// @Produce      json
// @Success      200  {object}  types.SystemSnapshot
// @Failure      503  {object}  types.ErrorResponse
// @Router       /telemetry [get]
func (s *server) telemetry(w http.ResponseWriter, r *http.Request) {
	if s.Telemetry == nil {
		writeError(w, telemetry.ErrTelemetryUnavailable(errors.New("monitor disabled")))
		return
	}
	if st := s.Telemetry.Status(); !st.Initialized && !st.HostAvailable {
		writeError(w, telemetry.ErrTelemetryUnavailable(errors.New("no telemetry provider")))
		return
	}
	writeJSON(w, http.StatusOK, s.Telemetry.CollectMetrics(r.Context()))
}

// telemetryHistory godoc
// @Summary      Recorded telemetry snapshots, oldest first
// @Tags         telemetry
// @Produce      json
// @Param        limit  query     int  false  "Number of snapshots (default 60, max 3600)"
// @Success      200    {array}   types.SystemSnapshot
// @Failure      400    {object}  types.ErrorResponse
// @Failure      503    {object}  types.ErrorResponse
// @Router       /telemetry/history [get]
func (s *server) telemetryHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "telemetry history disabled")
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	snaps, err := s.History.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if snaps == nil {
		snaps = []types.SystemSnapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

// catalog godoc
// @Summary      Model files available in the models directory
// @Tags         models
// @Produce      json
// @Success      200  {object}  types.CatalogResponse
// @Failure      404  {object}  types.ErrorResponse
// @Router       /catalog [get]
func (s *server) catalog(w http.ResponseWriter, r *http.Request) {
	if s.ModelsDir == "" {
		writeJSONError(w, http.StatusNotFound, "no models directory configured")
		return
	}
	entries, err := registry.LoadDir(s.ModelsDir)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []types.CatalogEntry{}
	}
	writeJSON(w, http.StatusOK, types.CatalogResponse{Dir: s.ModelsDir, Entries: entries})
}

func (s *server) stream(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		writeJSONError(w, http.StatusNotFound, "streaming disabled")
		return
	}
	s.Hub.ServeHTTP(w, r)
}
