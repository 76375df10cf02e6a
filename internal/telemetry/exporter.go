package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"forged/pkg/types"
)

// Exporter mirrors the latest snapshot into Prometheus gauges. Register it
// with Monitor.Subscribe(exp.Observe).
type Exporter struct {
	cpu      prometheus.Gauge
	ramUsed  prometheus.Gauge
	ramTotal prometheus.Gauge

	available  *prometheus.GaugeVec
	compute    *prometheus.GaugeVec
	memUtil    *prometheus.GaugeVec
	memUsed    *prometheus.GaugeVec
	memTotal   *prometheus.GaugeVec
	temp       *prometheus.GaugeVec
	power      *prometheus.GaugeVec
	coreClock  *prometheus.GaugeVec
	memClock   *prometheus.GaugeVec
	fan        *prometheus.GaugeVec
	deviceVecs []*prometheus.GaugeVec
}

// NewExporter creates the gauges and registers them with reg.
func NewExporter(reg prometheus.Registerer) (*Exporter, error) {
	host := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "forged", Subsystem: "host", Name: name, Help: help})
	}
	device := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: "forged", Subsystem: "device", Name: name, Help: help},
			[]string{"device"},
		)
	}
	x := &Exporter{
		cpu:       host("cpu_utilization_percent", "Host CPU utilization since the previous sample"),
		ramUsed:   host("ram_used_mb", "Host RAM in use in MB"),
		ramTotal:  host("ram_total_mb", "Host RAM installed in MB"),
		available: device("available", "1 when the device answered the last query"),
		compute:   device("compute_utilization_percent", "Accelerator compute utilization"),
		memUtil:   device("memory_utilization_percent", "Accelerator memory controller utilization"),
		memUsed:   device("memory_used_mb", "Accelerator memory in use in MB"),
		memTotal:  device("memory_total_mb", "Accelerator memory installed in MB"),
		temp:      device("temperature_celsius", "Accelerator core temperature"),
		power:     device("power_watts", "Accelerator board power draw"),
		coreClock: device("core_clock_mhz", "Accelerator core clock"),
		memClock:  device("memory_clock_mhz", "Accelerator memory clock"),
		fan:       device("fan_speed_percent", "Accelerator fan speed"),
	}
	x.deviceVecs = []*prometheus.GaugeVec{x.available, x.compute, x.memUtil, x.memUsed, x.memTotal, x.temp, x.power, x.coreClock, x.memClock, x.fan}

	cs := []prometheus.Collector{x.cpu, x.ramUsed, x.ramTotal}
	for _, v := range x.deviceVecs {
		cs = append(cs, v)
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// Observe records snap. Devices absent from snap keep no stale series.
func (x *Exporter) Observe(snap types.SystemSnapshot) {
	x.cpu.Set(snap.CPUUtilizationPct)
	x.ramUsed.Set(float64(snap.RAMUsedMB))
	x.ramTotal.Set(float64(snap.RAMTotalMB))

	for _, v := range x.deviceVecs {
		v.Reset()
	}
	for _, d := range snap.Devices {
		l := strconv.Itoa(d.DeviceID)
		if !d.Available {
			x.available.WithLabelValues(l).Set(0)
			continue
		}
		x.available.WithLabelValues(l).Set(1)
		x.compute.WithLabelValues(l).Set(d.ComputeUtilizationPct)
		x.memUtil.WithLabelValues(l).Set(d.MemoryUtilizationPct)
		x.memUsed.WithLabelValues(l).Set(float64(d.MemoryUsedMB))
		x.memTotal.WithLabelValues(l).Set(float64(d.MemoryTotalMB))
		x.temp.WithLabelValues(l).Set(d.TemperatureC)
		x.power.WithLabelValues(l).Set(d.PowerW)
		x.coreClock.WithLabelValues(l).Set(float64(d.CoreClockMHz))
		x.memClock.WithLabelValues(l).Set(float64(d.MemoryClockMHz))
		x.fan.WithLabelValues(l).Set(float64(d.FanSpeedPct))
	}
}
