package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"forged/pkg/types"
)

type fakeProvider struct {
	mu      sync.Mutex
	devices []int
	enumErr error
	failDev map[int]bool
	host    HostSample
	hostErr error
	closed  atomic.Bool
	queries atomic.Int32
}

func (f *fakeProvider) QueryHost(ctx context.Context) (HostSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.host, f.hostErr
}

func (f *fakeProvider) EnumerateDevices(ctx context.Context) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.devices...), f.enumErr
}

func (f *fakeProvider) QueryDevice(ctx context.Context, id int) (types.DeviceSnapshot, error) {
	f.queries.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDev[id] {
		return types.DeviceSnapshot{}, errors.New("device lost")
	}
	return types.DeviceSnapshot{
		Name:                  "Fake GPU",
		ComputeUtilizationPct: float64(10 * (id + 1)),
		MemoryUsedMB:          uint64(1024 * (id + 1)),
		MemoryTotalMB:         24576,
		TemperatureC:          60,
		PowerW:                250.5,
		CoreClockMHz:          2400,
		MemoryClockMHz:        10000,
		FanSpeedPct:           40,
	}, nil
}

func (f *fakeProvider) Close() error {
	f.closed.Store(true)
	return nil
}
