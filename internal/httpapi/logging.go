package httpapi

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger used by the HTTP layer. Disabled until
// SetLogger is called.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug", "1":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = func() LogLevel {
	if v, ok := os.LookupEnv("FORGED_HTTP_LOG"); ok {
		return parseLevel(v)
	}
	return LevelError
}()

// requestLogLevel honors ?log= and X-Log-Level per request.
func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// RequestLogger logs each request's outcome at the level chosen by
// requestLogLevel. Errors (status >= 500) are logged from LevelError up,
// everything else from LevelInfo up. LevelDebug also logs request start.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lvl := requestLogLevel(r)
		if lvl == LevelOff {
			next.ServeHTTP(w, r)
			return
		}
		rid := middleware.GetReqID(r.Context())
		if lvl >= LevelDebug {
			zlog.Debug().Str("method", r.Method).Str("path", r.URL.Path).Str("request_id", rid).Msg("request start")
		}
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)

		var ev *zerolog.Event
		switch {
		case sr.status >= 500:
			ev = zlog.Error()
		case lvl >= LevelInfo:
			ev = zlog.Info()
		default:
			return
		}
		ev.Str("method", r.Method).
			Str("path", routePatternOrPath(r)).
			Int("status", sr.status).
			Dur("dur", time.Since(start)).
			Str("request_id", rid).
			Msg("request end")
	})
}
