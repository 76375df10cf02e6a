package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"forged/internal/engine"
	"forged/internal/telemetry"
	"forged/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps engine and telemetry errors to HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case engine.IsModelNotFound(err):
		return http.StatusNotFound
	case engine.IsInvalidRequest(err):
		return http.StatusBadRequest
	case engine.IsUnsupportedFormat(err):
		return http.StatusUnsupportedMediaType
	case engine.IsNotReady(err), engine.IsInitialization(err), telemetry.IsTelemetryUnavailable(err):
		return http.StatusServiceUnavailable
	case engine.IsRuntimeInference(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeError maps err and writes it.
func writeError(w http.ResponseWriter, err error) int {
	status := statusFor(err)
	writeJSONError(w, status, err.Error())
	return status
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
