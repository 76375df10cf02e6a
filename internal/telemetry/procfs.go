package telemetry

import (
	"context"
	"sync"

	"github.com/prometheus/procfs"
)

// ProcHost reads CPU counters from /proc/stat and memory from /proc/meminfo.
// CPU utilization is the busy share of the delta since the previous call; the
// first call reports 0.
type ProcHost struct {
	fs procfs.FS

	mu      sync.Mutex
	prev    procfs.CPUStat
	hasPrev bool
}

// NewProcHost opens the proc filesystem mounted at root (default /proc).
func NewProcHost(root string) (*ProcHost, error) {
	if root == "" {
		root = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, ErrTelemetryUnavailable(err)
	}
	return &ProcHost{fs: fs}, nil
}

// QueryHost implements HostProvider.
func (p *ProcHost) QueryHost(ctx context.Context) (HostSample, error) {
	st, err := p.fs.Stat()
	if err != nil {
		return HostSample{}, err
	}
	mi, err := p.fs.Meminfo()
	if err != nil {
		return HostSample{}, err
	}

	total := deref(mi.MemTotal)
	avail := deref(mi.MemAvailable)
	if mi.MemAvailable == nil {
		avail = deref(mi.MemFree)
	}
	var used uint64
	if total > avail {
		used = total - avail
	}
	return HostSample{
		CPUUtilizationPct: p.cpuDelta(st.CPUTotal),
		RAMUsedMB:         used / 1024,
		RAMTotalMB:        total / 1024,
	}, nil
}

func (p *ProcHost) cpuDelta(cur procfs.CPUStat) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, had := p.prev, p.hasPrev
	p.prev, p.hasPrev = cur, true
	if !had {
		return 0
	}
	busy := cpuBusy(cur) - cpuBusy(prev)
	idle := (cur.Idle + cur.Iowait) - (prev.Idle + prev.Iowait)
	if busy < 0 || idle < 0 || busy+idle <= 0 {
		return 0
	}
	return 100 * busy / (busy + idle)
}

func cpuBusy(s procfs.CPUStat) float64 {
	return s.User + s.Nice + s.System + s.IRQ + s.SoftIRQ + s.Steal
}

func deref(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}
