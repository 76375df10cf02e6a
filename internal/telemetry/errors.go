package telemetry

import "errors"

// telemetryUnavailableError signals that the provider could not enumerate
// or be reached.
type telemetryUnavailableError struct{ cause error }

func (e telemetryUnavailableError) Error() string {
	return "telemetry unavailable: " + e.cause.Error()
}

func (e telemetryUnavailableError) Unwrap() error { return e.cause }

// ErrTelemetryUnavailable constructs a telemetryUnavailableError.
func ErrTelemetryUnavailable(cause error) error {
	if cause == nil {
		cause = errors.New("unknown cause")
	}
	return telemetryUnavailableError{cause: cause}
}

// IsTelemetryUnavailable reports whether err indicates an unusable provider.
func IsTelemetryUnavailable(err error) bool {
	var e telemetryUnavailableError
	return errors.As(err, &e)
}
