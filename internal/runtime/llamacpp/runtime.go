// Package llamacpp implements engine.TensorRuntime in process with
// go-llama.cpp. It serves GGUF text-generation models only. Builds without the
// 'llama' tag compile a stub whose loads fail with ErrNotBuilt.
package llamacpp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"forged/internal/common/fsutil"
	"forged/internal/engine"
	"forged/pkg/types"
)

// ErrNotBuilt is returned by loads in binaries built without the 'llama' tag.
var ErrNotBuilt = errors.New("llama support not built (missing 'llama' build tag)")

// Config holds the options applied to every model this runtime loads.
type Config struct {
	ContextSize int
	Threads     int
	GPULayers   int
}

// Runtime is an engine.TensorRuntime over go-llama.cpp.
type Runtime struct {
	cfg Config
}

// New constructs a Runtime; zero fields take llama.cpp defaults.
func New(cfg Config) *Runtime {
	if cfg.ContextSize <= 0 {
		cfg.ContextSize = 4096
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 4
	}
	return &Runtime{cfg: cfg}
}

// Bind implements engine.TensorRuntime. llama.cpp places layers itself, so
// binding only checks that support was compiled in.
func (r *Runtime) Bind(ctx context.Context, deviceIndex int) (engine.Device, error) {
	if !built {
		return nil, ErrNotBuilt
	}
	return &device{cfg: r.cfg, index: deviceIndex}, nil
}

type device struct {
	cfg   Config
	index int
}

func (d *device) Load(ctx context.Context, locator string, format types.ModelFormat) (engine.RuntimeModel, engine.LoadInfo, error) {
	if format != types.FormatGGUF {
		return nil, engine.LoadInfo{}, fmt.Errorf("llama.cpp runtime only loads gguf, got %s", format)
	}
	path, err := fsutil.ExpandHome(strings.TrimSpace(locator))
	if err != nil {
		return nil, engine.LoadInfo{}, err
	}
	sizeMB, err := fsutil.FileSizeMB(path)
	if err != nil {
		return nil, engine.LoadInfo{}, err
	}
	m, err := loadModel(path, d.cfg)
	if err != nil {
		return nil, engine.LoadInfo{}, err
	}
	// Weights dominate residency; KV cache is not attributed.
	return m, engine.LoadInfo{
		FootprintMB: sizeMB,
		InputShape:  []int{1, d.cfg.ContextSize},
		OutputShape: []int{1, d.cfg.ContextSize},
	}, nil
}

func (d *device) Close() error { return nil }

// compile is shared by both builds: GGUF weights are quantized offline, so
// there is nothing to transform and only completion is reported.
func compile(ctx context.Context, progress func(float64)) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if progress != nil {
		progress(1)
	}
	return 0, nil
}
