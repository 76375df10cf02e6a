package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"forged/internal/sink"
	"forged/pkg/types"
)

const (
	component       = "monitor"
	defaultInterval = time.Second
)

// Config encapsulates Monitor construction.
type Config struct {
	Provider Provider
	// Sink receives log lines; nil drops them.
	Sink sink.Sink
	// Clock overrides time.Now for CapturedAt.
	Clock func() time.Time
}

// Monitor samples a Provider on demand and, while monitoring, on a fixed
// cadence from one background goroutine.
type Monitor struct {
	provider Provider
	sink     sink.Sink
	now      func() time.Time

	mu          sync.Mutex
	initialized bool
	host        bool
	devices     []int
	cancel      context.CancelFunc
	done        chan struct{}

	subMu   sync.RWMutex
	subs    map[uint64]func(types.SystemSnapshot)
	nextSub uint64
}

// New constructs a Monitor over p.
func New(p Provider, s sink.Sink) *Monitor {
	return NewWithConfig(Config{Provider: p, Sink: s})
}

// NewWithConfig constructs a Monitor from Config.
func NewWithConfig(cfg Config) *Monitor {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	p := cfg.Provider
	if p == nil {
		p = Combine(nil, nil)
	}
	return &Monitor{
		provider: p,
		host:     hasHost(p),
		sink:     sink.OrNop(cfg.Sink),
		now:      now,
		subs:     make(map[uint64]func(types.SystemSnapshot)),
	}
}

// Initialize enumerates devices. On failure the monitor keeps a device count
// of 0 and CollectMetrics reports host figures only.
func (m *Monitor) Initialize(ctx context.Context) error {
	ids, err := m.provider.EnumerateDevices(ctx)
	if err == nil && len(ids) == 0 {
		err = errors.New("no devices found")
	}
	if err != nil {
		if !IsTelemetryUnavailable(err) {
			err = ErrTelemetryUnavailable(err)
		}
		m.mu.Lock()
		m.initialized = false
		m.devices = nil
		m.mu.Unlock()
		m.logf(sink.LevelWarn, "%v", err)
		return err
	}

	m.mu.Lock()
	m.initialized = true
	m.devices = append([]int(nil), ids...)
	m.mu.Unlock()
	m.logf(sink.LevelInfo, "found %d device(s)", len(ids))
	return nil
}

// CollectMetrics pulls one fresh snapshot. Devices are queried in parallel;
// a device that fails is logged and reported with Available=false and zeroed
// metrics. Safe for concurrent use.
func (m *Monitor) CollectMetrics(ctx context.Context) types.SystemSnapshot {
	m.mu.Lock()
	ids := append([]int(nil), m.devices...)
	m.mu.Unlock()

	snap := types.SystemSnapshot{
		CapturedAt: m.now(),
		Devices:    make([]types.DeviceSnapshot, len(ids)),
	}

	var g errgroup.Group
	g.Go(func() error {
		h, err := m.provider.QueryHost(ctx)
		if err != nil {
			return fmt.Errorf("host: %w", err)
		}
		snap.CPUUtilizationPct = h.CPUUtilizationPct
		snap.RAMUsedMB = h.RAMUsedMB
		snap.RAMTotalMB = h.RAMTotalMB
		return nil
	})
	for i, id := range ids {
		g.Go(func() error {
			d, err := m.provider.QueryDevice(ctx, id)
			if err != nil {
				snap.Devices[i] = types.DeviceSnapshot{DeviceID: id}
				m.logf(sink.LevelWarn, "device %d: %v", id, err)
				return nil
			}
			d.DeviceID = id
			d.Available = true
			snap.Devices[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.logf(sink.LevelWarn, "%v", err)
	}
	return snap
}

// StartMonitoring collects immediately and then every interval, handing each
// snapshot to cb and to all subscribers on the monitor's goroutine. Starting
// while running is a no-op. A callback that blocks delays the next poll.
func (m *Monitor) StartMonitoring(cb func(types.SystemSnapshot), interval time.Duration) {
	if interval <= 0 {
		interval = defaultInterval
	}
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		m.logf(sink.LevelWarn, "monitoring already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	m.mu.Unlock()

	go m.run(ctx, cb, interval, done)
	m.logf(sink.LevelInfo, "monitoring every %s", interval)
}

func (m *Monitor) run(ctx context.Context, cb func(types.SystemSnapshot), interval time.Duration, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		snap := m.CollectMetrics(ctx)
		if ctx.Err() != nil {
			return
		}
		m.publish(cb, snap)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (m *Monitor) publish(cb func(types.SystemSnapshot), snap types.SystemSnapshot) {
	if cb != nil {
		m.deliver("callback", cb, snap.Clone())
	}
	m.subMu.RLock()
	subs := make([]func(types.SystemSnapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subMu.RUnlock()
	for _, fn := range subs {
		m.deliver("subscriber", fn, snap.Clone())
	}
}

func (m *Monitor) deliver(who string, fn func(types.SystemSnapshot), snap types.SystemSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			m.logf(sink.LevelError, "%s panicked: %v", who, r)
		}
	}()
	fn(snap)
}

// StopMonitoring stops the polling goroutine and waits for it to exit: at
// most the in-progress collection plus the running callback. No callback runs
// after it returns. It must not be called from the callback itself.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logf(sink.LevelInfo, "monitoring stopped")
}

// Subscribe registers fn for every snapshot the polling loop produces. The
// returned func removes it.
func (m *Monitor) Subscribe(fn func(types.SystemSnapshot)) (unsubscribe func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
		})
	}
}

// Shutdown stops monitoring, forgets the devices and closes the provider if
// it holds resources.
func (m *Monitor) Shutdown() error {
	m.StopMonitoring()
	m.mu.Lock()
	m.initialized = false
	m.host = false
	m.devices = nil
	m.mu.Unlock()
	if c, ok := m.provider.(io.Closer); ok {
		if err := c.Close(); err != nil {
			m.logf(sink.LevelWarn, "close provider: %v", err)
			return err
		}
	}
	return nil
}

// DeviceCount returns the number of enumerated devices.
func (m *Monitor) DeviceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.devices)
}

// IsInitialized reports whether the last Initialize succeeded.
func (m *Monitor) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// HostAvailable reports whether the provider serves host figures. It stays
// true when Initialize fails for lack of devices, and turns false on Shutdown.
func (m *Monitor) HostAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.host
}

// Monitoring reports whether the polling goroutine is running.
func (m *Monitor) Monitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Status builds the monitor part of the /status response.
func (m *Monitor) Status() types.MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.MonitorStatus{
		Initialized:   m.initialized,
		HostAvailable: m.host,
		Monitoring:    m.cancel != nil,
		DeviceCount:   len(m.devices),
	}
}

func (m *Monitor) logf(level sink.Level, format string, args ...any) {
	m.sink.Log(level, component, fmt.Sprintf(format, args...))
}
