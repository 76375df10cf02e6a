//go:build !llama

package llamacpp

import (
	"context"

	"forged/internal/engine"
	"forged/pkg/types"
)

const built = false

// model is never constructed in this build.
type model struct{}

func loadModel(path string, cfg Config) (*model, error) { return nil, ErrNotBuilt }

func (m *model) Compile(ctx context.Context, precision types.Precision, progress func(float64)) (uint64, error) {
	return compile(ctx, progress)
}

func (m *model) Execute(ctx context.Context, in engine.Input, p engine.ExecParams) (engine.Output, error) {
	return engine.Output{}, ErrNotBuilt
}

func (m *model) Release() error { return nil }
