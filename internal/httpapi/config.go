package httpapi

// maxBodyBytes bounds JSON request bodies. Upscale requests carry whole
// images, so the default is larger than a typical control API.
var maxBodyBytes int64 = 64 << 20

// SetMaxBodyBytes sets the maximum request body size. Non-positive values
// restore the default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 64 << 20
		return
	}
	maxBodyBytes = n
}

// inferTimeout bounds synchronous inference handlers, in seconds. Zero means
// no limit beyond the server's own timeouts. Async tasks are not affected.
var inferTimeout = int64(0)

// SetInferTimeoutSeconds sets the inference timeout in seconds (0 disables).
func SetInferTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	inferTimeout = sec
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
