package types

import "time"

// DeviceSnapshot is a point-in-time capture of one accelerator.
type DeviceSnapshot struct {
	// example: 0
	DeviceID int `json:"device_id" example:"0"`
	// example: NVIDIA GeForce RTX 5090
	Name string `json:"name" example:"NVIDIA GeForce RTX 5090"`
	// False when the device could not be queried; all metrics are then zero.
	Available             bool    `json:"available"`
	ComputeUtilizationPct float64 `json:"compute_utilization_pct" example:"67"`
	MemoryUtilizationPct  float64 `json:"memory_utilization_pct" example:"41"`
	MemoryUsedMB          uint64  `json:"memory_used_mb" example:"16588"`
	MemoryTotalMB         uint64  `json:"memory_total_mb" example:"32607"`
	TemperatureC          float64 `json:"temperature_c" example:"65"`
	PowerW                float64 `json:"power_w" example:"420.5"`
	CoreClockMHz          uint32  `json:"core_clock_mhz" example:"2407"`
	MemoryClockMHz        uint32  `json:"memory_clock_mhz" example:"14001"`
	FanSpeedPct           uint32  `json:"fan_speed_pct" example:"48"`
}

// SystemSnapshot is an immutable capture of host and device metrics.
type SystemSnapshot struct {
	// 0 on the first sample, before a CPU baseline exists.
	CPUUtilizationPct float64          `json:"cpu_utilization_pct" example:"23.5"`
	RAMUsedMB         uint64           `json:"ram_used_mb" example:"20480"`
	RAMTotalMB        uint64           `json:"ram_total_mb" example:"65536"`
	Devices           []DeviceSnapshot `json:"devices"`
	CapturedAt        time.Time        `json:"captured_at"`
}

// Clone returns a copy that shares no memory with s.
func (s SystemSnapshot) Clone() SystemSnapshot {
	s.Devices = append([]DeviceSnapshot(nil), s.Devices...)
	return s
}
