package types

// LoadModelRequest is the body of POST /models.
type LoadModelRequest struct {
	// Required path or identifier of the model file.
	// example: /models/realesrgan_x4.onnx
	Locator string `json:"locator" example:"/models/realesrgan_x4.onnx"`
	// Display name; defaults to the locator's base name.
	// example: RealESRGAN 4x
	Name string `json:"name,omitempty" example:"RealESRGAN 4x"`
	// Optional kind hint; an explicit hint wins over keyword detection.
	// example: image_upscaling
	Kind string `json:"kind,omitempty" example:"image_upscaling"`
}

// LoadModelResponse is returned by POST /models.
type LoadModelResponse struct {
	Model ModelInfo `json:"model"`
}

// OptimizeRequest is the body of POST /models/{id}/optimize.
type OptimizeRequest struct {
	// One of fp32, fp16, int8, auto.
	// example: fp16
	Precision string `json:"precision" example:"fp16"`
}

// ModelsResponse wraps the list of loaded models returned by GET /models.
type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// CatalogResponse lists loadable model files found in the models directory.
type CatalogResponse struct {
	Dir     string         `json:"dir"`
	Entries []CatalogEntry `json:"entries"`
}

// InferRequest is the body of POST /infer and POST /infer/async.
type InferRequest struct {
	Request InferenceRequest `json:"request"`
	Input   []float32        `json:"input,omitempty"`
}

// GenerateImageRequest is the body of POST /generate.
type GenerateImageRequest struct {
	// example: model_1718000000000_1
	ModelID string `json:"model_id" example:"model_1718000000000_1"`
	// example: A futuristic AI laboratory with glowing displays
	Prompt  string           `json:"prompt" example:"A futuristic AI laboratory with glowing displays"`
	Request InferenceRequest `json:"request"`
}

// UpscaleImageRequest is the body of POST /upscale.
type UpscaleImageRequest struct {
	ModelID string `json:"model_id"`
	// RGB pixels in HWC order (base64 in JSON).
	Image []byte `json:"image"`
	// example: 256
	Width int `json:"width" example:"256"`
	// example: 256
	Height int `json:"height" example:"256"`
	// example: 4
	Scale int `json:"scale" example:"4"`
}

// TaskResponse reports an asynchronous inference task.
type TaskResponse struct {
	TaskID string `json:"task_id"`
	// pending or done.
	// example: pending
	State  string           `json:"state" example:"pending"`
	Result *InferenceResult `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// ModelStatus summarizes a loaded model for /status.
type ModelStatus struct {
	// example: model_1718000000000_1
	ModelID string `json:"model_id" example:"model_1718000000000_1"`
	// loaded or optimized.
	// example: optimized
	State       string `json:"state" example:"optimized"`
	FootprintMB uint64 `json:"footprint_mb" example:"4096"`
	// Number of inferences currently executing against the model.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
}

// EngineStatus is the engine part of GET /status.
type EngineStatus struct {
	Ready       bool          `json:"ready"`
	DeviceIndex int           `json:"device_index"`
	VRAMUsedMB  uint64        `json:"vram_used_mb" example:"8704"`
	Models      []ModelStatus `json:"models"`
	// Total number of model loads.
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Total number of model unloads.
	// example: 5
	UnloadsTotal  uint64 `json:"unloads_total" example:"5"`
	UptimeSeconds int64  `json:"uptime_seconds" example:"3600"`
}

// MonitorStatus is the telemetry part of GET /status.
type MonitorStatus struct {
	Initialized   bool `json:"initialized"`
	HostAvailable bool `json:"host_available"`
	Monitoring    bool `json:"monitoring"`
	DeviceCount   int  `json:"device_count"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Engine  EngineStatus  `json:"engine"`
	Monitor MonitorStatus `json:"monitor"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// ProgressEvent is one fractional progress notification.
type ProgressEvent struct {
	OperationID string  `json:"operation_id"`
	Fraction    float64 `json:"fraction"`
}

// LogEvent is one log line forwarded to stream subscribers.
type LogEvent struct {
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
}

// StreamMessage is one frame pushed over GET /ws.
type StreamMessage struct {
	// progress, snapshot or log.
	Type     string          `json:"type"`
	Progress *ProgressEvent  `json:"progress,omitempty"`
	Snapshot *SystemSnapshot `json:"snapshot,omitempty"`
	Log      *LogEvent       `json:"log,omitempty"`
}
