//go:build nvml

package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"forged/pkg/types"
)

// requiredQueries is the number of checked reads in QueryDevice.
const requiredQueries = 7

// NVMLDevices reads accelerator metrics through the NVIDIA management library.
type NVMLDevices struct{}

// NewNVMLDevices initializes NVML. Close must be called to shut it down.
func NewNVMLDevices() (*NVMLDevices, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, ErrTelemetryUnavailable(fmt.Errorf("nvml init: %s", nvml.ErrorString(ret)))
	}
	return &NVMLDevices{}, nil
}

// EnumerateDevices implements DeviceProvider.
func (NVMLDevices) EnumerateDevices(ctx context.Context) ([]int, error) {
	n, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, ErrTelemetryUnavailable(fmt.Errorf("nvml device count: %s", nvml.ErrorString(ret)))
	}
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids, nil
}

// QueryDevice implements DeviceProvider. Fan speed is optional; passively
// cooled boards report 0.
func (NVMLDevices) QueryDevice(ctx context.Context, deviceID int) (types.DeviceSnapshot, error) {
	dev, ret := nvml.DeviceGetHandleByIndex(deviceID)
	if ret != nvml.SUCCESS {
		return types.DeviceSnapshot{}, fmt.Errorf("nvml handle %d: %s", deviceID, nvml.ErrorString(ret))
	}
	snap := types.DeviceSnapshot{DeviceID: deviceID, Available: true}

	var errs []error
	check := func(what string, r nvml.Return) bool {
		if r != nvml.SUCCESS {
			errs = append(errs, fmt.Errorf("%s: %s", what, nvml.ErrorString(r)))
			return false
		}
		return true
	}

	if name, r := dev.GetName(); check("name", r) {
		snap.Name = name
	}
	if u, r := dev.GetUtilizationRates(); check("utilization", r) {
		snap.ComputeUtilizationPct = float64(u.Gpu)
		snap.MemoryUtilizationPct = float64(u.Memory)
	}
	if m, r := dev.GetMemoryInfo(); check("memory", r) {
		snap.MemoryUsedMB = m.Used / (1 << 20)
		snap.MemoryTotalMB = m.Total / (1 << 20)
	}
	if c, r := dev.GetTemperature(nvml.TEMPERATURE_GPU); check("temperature", r) {
		snap.TemperatureC = float64(c)
	}
	if mw, r := dev.GetPowerUsage(); check("power", r) {
		snap.PowerW = float64(mw) / 1000
	}
	if mhz, r := dev.GetClockInfo(nvml.CLOCK_GRAPHICS); check("core clock", r) {
		snap.CoreClockMHz = mhz
	}
	if mhz, r := dev.GetClockInfo(nvml.CLOCK_MEM); check("memory clock", r) {
		snap.MemoryClockMHz = mhz
	}
	if pct, r := dev.GetFanSpeed(); r == nvml.SUCCESS {
		snap.FanSpeedPct = pct
	}
	// Every required query failed: treat the device as unreadable.
	if len(errs) == requiredQueries {
		return types.DeviceSnapshot{}, errors.Join(errs...)
	}
	return snap, nil
}

// Close shuts NVML down.
func (NVMLDevices) Close() error {
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("nvml shutdown: %s", nvml.ErrorString(ret))
	}
	return nil
}
