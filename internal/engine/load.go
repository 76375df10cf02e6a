package engine

import (
	"context"
	"path/filepath"
	"strings"

	"forged/internal/sink"
	"forged/pkg/types"
)

// LoadModel makes the model at locator resident and returns its new id.
// name defaults to the locator's base name. An explicit kindHint wins over
// keyword detection.
func (e *Engine) LoadModel(ctx context.Context, locator, name string, kindHint types.ModelKind) (string, error) {
	e.mu.RLock()
	ready, dev := e.ready, e.device
	e.mu.RUnlock()
	if !ready {
		return "", ErrNotReady("load")
	}

	locator = strings.TrimSpace(locator)
	format := DetectFormat(locator)
	if format == types.FormatUnknown {
		e.logf(sink.LevelError, "unsupported model format: %s", locator)
		return "", ErrUnsupportedFormat(locator)
	}
	kind := ResolveKind(locator, kindHint)
	if name == "" {
		name = filepath.Base(locator)
	}

	e.logf(sink.LevelInfo, "loading %s (%s, %s)", locator, format, kind)
	model, li, err := dev.Load(ctx, locator, format)
	if err != nil {
		err = ErrRuntimeInference("load", "", err)
		e.logf(sink.LevelError, "load %s: %v", locator, err)
		return "", err
	}

	id := e.newModelID()
	rec := &record{
		model: model,
		info: types.ModelInfo{
			ID:                  id,
			Name:                name,
			SourceLocator:       locator,
			Kind:                kind,
			Format:              format,
			MemoryFootprintMB:   li.FootprintMB,
			BaselineFootprintMB: li.FootprintMB,
			InputShape:          append([]int(nil), li.InputShape...),
			OutputShape:         append([]int(nil), li.OutputShape...),
			IsLoaded:            true,
			LoadedAt:            e.now(),
		},
	}

	e.mu.Lock()
	if !e.ready || e.device != dev {
		// Shut down while the runtime was loading.
		e.mu.Unlock()
		_ = model.Release()
		return "", ErrNotReady("load")
	}
	e.models[id] = rec
	e.usedMB += li.FootprintMB
	e.loadsTotal++
	n, used := len(e.models), e.usedMB
	e.mu.Unlock()
	updateRegistryGauges(n, used)

	e.logf(sink.LevelInfo, "loaded %s as %s (%d MB)", locator, id, li.FootprintMB)
	return id, nil
}
