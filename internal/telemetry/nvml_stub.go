//go:build !nvml

package telemetry

import (
	"context"
	"errors"

	"forged/pkg/types"
)

var errNoNVML = errors.New("built without NVML support (rebuild with -tags nvml)")

// NVMLDevices is unavailable in this build.
type NVMLDevices struct{}

// NewNVMLDevices always fails in builds without the nvml tag.
func NewNVMLDevices() (*NVMLDevices, error) {
	return nil, ErrTelemetryUnavailable(errNoNVML)
}

func (NVMLDevices) EnumerateDevices(ctx context.Context) ([]int, error) {
	return nil, ErrTelemetryUnavailable(errNoNVML)
}

func (NVMLDevices) QueryDevice(ctx context.Context, deviceID int) (types.DeviceSnapshot, error) {
	return types.DeviceSnapshot{}, ErrTelemetryUnavailable(errNoNVML)
}

func (NVMLDevices) Close() error { return nil }
