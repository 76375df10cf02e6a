package engine

import (
	"errors"
	"fmt"
)

// initializationError signals that the device/runtime could not be acquired.
type initializationError struct {
	device int
	cause  error
}

func (e initializationError) Error() string {
	return fmt.Sprintf("initialize device %d: %v", e.device, e.cause)
}

func (e initializationError) Unwrap() error { return e.cause }

// ErrInitialization constructs an initializationError.
func ErrInitialization(device int, cause error) error {
	return initializationError{device: device, cause: cause}
}

// IsInitialization reports whether err indicates a failed Initialize.
func IsInitialization(err error) bool {
	var e initializationError
	return errors.As(err, &e)
}

// notReadyError signals an operation attempted before a successful Initialize.
type notReadyError struct{ op string }

func (e notReadyError) Error() string { return "engine not initialized: " + e.op }

// ErrNotReady constructs a notReadyError for op.
func ErrNotReady(op string) error { return notReadyError{op: op} }

// IsNotReady reports whether err indicates an uninitialized engine.
func IsNotReady(err error) bool {
	var e notReadyError
	return errors.As(err, &e)
}

// modelNotFoundError is returned when a requested model id is not loaded.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound constructs a modelNotFoundError.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// unsupportedFormatError is returned when a locator's suffix maps to no format.
type unsupportedFormatError struct{ locator string }

func (e unsupportedFormatError) Error() string { return "unsupported model format: " + e.locator }

// ErrUnsupportedFormat constructs an unsupportedFormatError.
func ErrUnsupportedFormat(locator string) error { return unsupportedFormatError{locator: locator} }

// IsUnsupportedFormat reports whether err indicates an unresolvable format.
func IsUnsupportedFormat(err error) bool {
	var e unsupportedFormatError
	return errors.As(err, &e)
}

// runtimeInferenceError wraps a backend failure during load, optimization or
// a single inference.
type runtimeInferenceError struct {
	op      string
	modelID string
	cause   error
}

func (e runtimeInferenceError) Error() string {
	if e.modelID == "" {
		return fmt.Sprintf("runtime %s failed: %v", e.op, e.cause)
	}
	return fmt.Sprintf("runtime %s failed for %s: %v", e.op, e.modelID, e.cause)
}

func (e runtimeInferenceError) Unwrap() error { return e.cause }

// ErrRuntimeInference constructs a runtimeInferenceError.
func ErrRuntimeInference(op, modelID string, cause error) error {
	return runtimeInferenceError{op: op, modelID: modelID, cause: cause}
}

// IsRuntimeInference reports whether err wraps a backend failure.
func IsRuntimeInference(err error) bool {
	var e runtimeInferenceError
	return errors.As(err, &e)
}

// invalidRequestError rejects malformed arguments (bad precision, kind
// mismatch, wrong buffer size) before anything reaches the runtime.
type invalidRequestError struct{ msg string }

func (e invalidRequestError) Error() string { return "invalid request: " + e.msg }

// ErrInvalidRequest constructs an invalidRequestError.
func ErrInvalidRequest(format string, args ...any) error {
	return invalidRequestError{msg: fmt.Sprintf(format, args...)}
}

// IsInvalidRequest reports whether err indicates a malformed request.
func IsInvalidRequest(err error) bool {
	var e invalidRequestError
	return errors.As(err, &e)
}
