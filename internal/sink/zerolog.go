package sink

import "github.com/rs/zerolog"

// zerologSink writes log lines and progress to a zerolog.Logger.
type zerologSink struct {
	l zerolog.Logger
}

// NewZerolog adapts l to the Sink interface. Progress is logged at debug level.
func NewZerolog(l zerolog.Logger) Sink { return zerologSink{l: l} }

func (z zerologSink) Log(level Level, component, message string) {
	z.l.WithLevel(zerologLevel(level)).Str("component", component).Msg(message)
}

func (z zerologSink) Progress(operationID string, fraction float64) {
	z.l.Debug().Str("op", operationID).Float64("fraction", fraction).Msg("progress")
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel maps a config string (debug|info|warn|error) to a zerolog level.
// Unknown values fall back to info.
func ParseLevel(s string) zerolog.Level {
	return zerologLevel(Level(s))
}
