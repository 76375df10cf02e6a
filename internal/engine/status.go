package engine

import (
	"sort"
	"time"

	"forged/pkg/types"
)

// GetVRAMUsage returns the sum of the footprints of all loaded models. It is
// informational; no ceiling is enforced against device capacity.
func (e *Engine) GetVRAMUsage() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.usedMB
}

// GetModelInfo returns a copy of the record for id.
func (e *Engine) GetModelInfo(id string) (types.ModelInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec := e.models[id]
	if rec == nil {
		return types.ModelInfo{}, ErrModelNotFound(id)
	}
	return rec.info.Clone(), nil
}

// GetLoadedModels returns copies of all records, ordered by id.
func (e *Engine) GetLoadedModels() []types.ModelInfo {
	e.mu.RLock()
	out := make([]types.ModelInfo, 0, len(e.models))
	for _, rec := range e.models {
		out = append(out, rec.info.Clone())
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsInitialized reports whether Initialize has succeeded and Shutdown has
// not been called since.
func (e *Engine) IsInitialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// DeviceIndex returns the bound device, or -1 before initialization.
func (e *Engine) DeviceIndex() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready {
		return -1
	}
	return e.deviceIndex
}

// Status builds the engine part of the /status response.
func (e *Engine) Status() types.EngineStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := types.EngineStatus{
		Ready:         e.ready,
		DeviceIndex:   -1,
		VRAMUsedMB:    e.usedMB,
		LoadsTotal:    e.loadsTotal,
		UnloadsTotal:  e.unloadsTotal,
		UptimeSeconds: int64(e.now().Sub(e.startTime) / time.Second),
	}
	if e.ready {
		st.DeviceIndex = e.deviceIndex
	}
	st.Models = make([]types.ModelStatus, 0, len(e.models))
	for id, rec := range e.models {
		state := "loaded"
		if rec.info.Optimized {
			state = "optimized"
		}
		st.Models = append(st.Models, types.ModelStatus{
			ModelID:     id,
			State:       state,
			FootprintMB: rec.info.MemoryFootprintMB,
			Inflight:    int(rec.inflight.Load()),
		})
	}
	sort.Slice(st.Models, func(i, j int) bool { return st.Models[i].ModelID < st.Models[j].ModelID })
	return st
}
