// Package sink defines the log and progress collaborator shared by the engine
// and the telemetry monitor. A Sink is injected at construction time; there is
// no package-level default logger.
package sink

// Level is the severity of a log line.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Sink receives structured log lines and fractional progress notifications.
// Implementations must be safe for concurrent use and should not block; the
// engine calls Progress while holding a per-model lock.
type Sink interface {
	Log(level Level, component, message string)
	// Progress reports a fraction in [0,1] for the given operation.
	Progress(operationID string, fraction float64)
}

// Nop drops everything.
type Nop struct{}

func (Nop) Log(Level, string, string) {}
func (Nop) Progress(string, float64)  {}

// multi fans out to several sinks in order.
type multi []Sink

// Multi returns a Sink that forwards to each non-nil sink.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multi) Log(level Level, component, message string) {
	for _, s := range m {
		s.Log(level, component, message)
	}
}

func (m multi) Progress(operationID string, fraction float64) {
	for _, s := range m {
		s.Progress(operationID, fraction)
	}
}

// OrNop returns s, or Nop when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return s
}
