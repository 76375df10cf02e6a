//go:build llama

package llamacpp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"forged/internal/engine"
	"forged/pkg/types"
)

const built = true

// model owns one loaded llama.cpp context. llama.cpp contexts are not
// reentrant, so Execute calls are serialized.
type model struct {
	mu      sync.Mutex
	llm     *llama.LLama
	threads int
}

func loadModel(path string, cfg Config) (*model, error) {
	opts := []llama.ModelOption{
		llama.SetContext(cfg.ContextSize),
	}
	if cfg.GPULayers > 0 {
		opts = append(opts, llama.SetGPULayers(cfg.GPULayers))
	}
	llm, err := llama.New(path, opts...)
	if err != nil {
		return nil, err
	}
	return &model{llm: llm, threads: cfg.Threads}, nil
}

func (m *model) Compile(ctx context.Context, precision types.Precision, progress func(float64)) (uint64, error) {
	return compile(ctx, progress)
}

func (m *model) Execute(ctx context.Context, in engine.Input, p engine.ExecParams) (engine.Output, error) {
	if p.Stage != engine.StageGenerate {
		return engine.Output{}, fmt.Errorf("llama.cpp runtime cannot run stage %q", p.Stage)
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return engine.Output{}, errors.New("empty prompt")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.llm == nil {
		return engine.Output{}, errors.New("llama model released")
	}

	// Stop generation once the caller gives up.
	m.llm.SetTokenCallback(func(string) bool { return ctx.Err() == nil })
	text, err := m.llm.Predict(in.Prompt, predictOptions(p, m.threads)...)
	if err != nil {
		if ctx.Err() != nil {
			return engine.Output{}, ctx.Err()
		}
		return engine.Output{}, err
	}
	return engine.Output{Text: text}, nil
}

func (m *model) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.llm != nil {
		m.llm.Free()
		m.llm = nil
	}
	return nil
}

func predictOptions(p engine.ExecParams, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, p.MaxTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTemperature(zf(float32(p.Temperature), llama.DefaultOptions.Temperature)),
	}
	if p.Seed != 0 {
		po = append(po, llama.SetSeed(int(p.Seed)))
	}
	return po
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}
