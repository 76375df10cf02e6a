package engine

import (
	"forged/internal/sink"
)

// UnloadModel waits for in-flight inference on id to finish, removes the
// record and releases its accelerator memory. The id is never reused.
func (e *Engine) UnloadModel(id string) error {
	rec, release, err := e.beginExclusive("unload", id)
	defer release()
	if err != nil {
		return err
	}

	e.mu.Lock()
	fp := rec.info.MemoryFootprintMB
	// Shutdown may already have dropped the record and zeroed the counter.
	if e.models[id] == rec {
		delete(e.models, id)
		e.usedMB -= fp
	}
	rec.removed = true
	rec.info.IsLoaded = false
	e.unloadsTotal++
	n, used := len(e.models), e.usedMB
	e.mu.Unlock()
	updateRegistryGauges(n, used)

	if err := rec.model.Release(); err != nil {
		// The record is gone either way; the runtime owns any leak.
		e.logf(sink.LevelWarn, "release %s: %v", id, err)
	}
	e.logf(sink.LevelInfo, "unloaded %s (freed %d MB)", id, fp)
	return nil
}
