// Package telemetry samples host and accelerator metrics. A Monitor pulls
// SystemSnapshots from a Provider on demand or on a background cadence and
// hands them to registered observers.
package telemetry

import (
	"context"
	"errors"
	"io"

	"forged/pkg/types"
)

// HostSample is one reading of host CPU and RAM.
type HostSample struct {
	CPUUtilizationPct float64
	RAMUsedMB         uint64
	RAMTotalMB        uint64
}

// HostProvider reports host-wide CPU and RAM figures.
type HostProvider interface {
	QueryHost(ctx context.Context) (HostSample, error)
}

// DeviceProvider enumerates accelerators and reads their metrics.
type DeviceProvider interface {
	EnumerateDevices(ctx context.Context) ([]int, error)
	QueryDevice(ctx context.Context, deviceID int) (types.DeviceSnapshot, error)
}

// Provider is the full capability a Monitor consumes.
type Provider interface {
	HostProvider
	DeviceProvider
}

type combined struct {
	host    HostProvider
	devices DeviceProvider
}

// Combine joins separate host and device providers. Either may be nil; the
// corresponding queries then fail with a telemetry-unavailable error.
func Combine(host HostProvider, devices DeviceProvider) Provider {
	return combined{host: host, devices: devices}
}

// hasHost reports whether p can answer host queries.
func hasHost(p Provider) bool {
	if c, ok := p.(combined); ok {
		return c.host != nil
	}
	return p != nil
}

func (c combined) QueryHost(ctx context.Context) (HostSample, error) {
	if c.host == nil {
		return HostSample{}, ErrTelemetryUnavailable(errors.New("no host provider"))
	}
	return c.host.QueryHost(ctx)
}

func (c combined) EnumerateDevices(ctx context.Context) ([]int, error) {
	if c.devices == nil {
		return nil, ErrTelemetryUnavailable(errors.New("no device provider"))
	}
	return c.devices.EnumerateDevices(ctx)
}

func (c combined) QueryDevice(ctx context.Context, deviceID int) (types.DeviceSnapshot, error) {
	if c.devices == nil {
		return types.DeviceSnapshot{}, ErrTelemetryUnavailable(errors.New("no device provider"))
	}
	return c.devices.QueryDevice(ctx, deviceID)
}

// Close closes whichever of the underlying providers are io.Closers.
func (c combined) Close() error {
	var errs []error
	for _, p := range []any{c.host, c.devices} {
		if cl, ok := p.(io.Closer); ok {
			errs = append(errs, cl.Close())
		}
	}
	return errors.Join(errs...)
}
