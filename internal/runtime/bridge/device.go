package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"forged/internal/engine"
	"forged/pkg/types"
)

type device struct {
	rt   *Runtime
	id   string
	name string
}

type loadRequest struct {
	DeviceID string            `json:"device_id"`
	Locator  string            `json:"locator"`
	Format   types.ModelFormat `json:"format"`
}

type loadResponse struct {
	Handle      string `json:"handle"`
	FootprintMB uint64 `json:"footprint_mb"`
	InputShape  []int  `json:"input_shape"`
	OutputShape []int  `json:"output_shape"`
}

func (d *device) Load(ctx context.Context, locator string, format types.ModelFormat) (engine.RuntimeModel, engine.LoadInfo, error) {
	var resp loadResponse
	req := loadRequest{DeviceID: d.id, Locator: locator, Format: format}
	if err := d.rt.call(ctx, http.MethodPost, "/v1/models", req, &resp); err != nil {
		return nil, engine.LoadInfo{}, err
	}
	if resp.Handle == "" {
		return nil, engine.LoadInfo{}, errors.New("bridge worker returned an empty model handle")
	}
	info := engine.LoadInfo{
		FootprintMB: resp.FootprintMB,
		InputShape:  resp.InputShape,
		OutputShape: resp.OutputShape,
	}
	return &model{rt: d.rt, handle: resp.Handle}, info, nil
}

func (d *device) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	return d.rt.call(ctx, http.MethodPost, "/v1/devices/unbind", map[string]string{"device_id": d.id}, nil)
}

type model struct {
	rt     *Runtime
	handle string
}

func (m *model) path(suffix string) string {
	return "/v1/models/" + url.PathEscape(m.handle) + suffix
}

type compileEvent struct {
	Progress    *float64 `json:"progress,omitempty"`
	Done        bool     `json:"done,omitempty"`
	FootprintMB uint64   `json:"footprint_mb,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Compile streams NDJSON progress until the worker reports done or an error.
func (m *model) Compile(ctx context.Context, precision types.Precision, progress func(float64)) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.rt.reqTimeout)
	defer cancel()
	resp, err := m.rt.do(ctx, http.MethodPost, m.path("/compile"), map[string]types.Precision{"precision": precision})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev compileEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return 0, fmt.Errorf("compile stream: bad line %q: %w", line, err)
		}
		switch {
		case ev.Error != "":
			return 0, errors.New(ev.Error)
		case ev.Done:
			return ev.FootprintMB, nil
		case ev.Progress != nil && progress != nil:
			progress(*ev.Progress)
		}
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, err
	}
	return 0, errors.New("compile stream ended without completion")
}

type wireInput struct {
	Stage                  engine.Stage    `json:"stage"`
	Step                   int             `json:"step"`
	NumSteps               int             `json:"num_steps,omitempty"`
	Precision              types.Precision `json:"precision,omitempty"`
	BatchSize              int             `json:"batch_size,omitempty"`
	MaxTokens              int             `json:"max_tokens,omitempty"`
	Temperature            float64         `json:"temperature,omitempty"`
	GuidanceScale          float64         `json:"guidance_scale,omitempty"`
	Seed                   uint32          `json:"seed,omitempty"`
	ScaleFactor            int             `json:"scale_factor,omitempty"`
	TargetWidth            int             `json:"target_width,omitempty"`
	TargetHeight           int             `json:"target_height,omitempty"`
	AllowHostMemoryOffload bool            `json:"allow_host_memory_offload,omitempty"`

	Data     []float32 `json:"data,omitempty"`
	Pixels   []byte    `json:"pixels,omitempty"`
	Width    int       `json:"width,omitempty"`
	Height   int       `json:"height,omitempty"`
	Channels int       `json:"channels,omitempty"`
	Prompt   string    `json:"prompt,omitempty"`
}

type wireOutput struct {
	Data     []float32 `json:"data,omitempty"`
	Pixels   []byte    `json:"pixels,omitempty"`
	Width    int       `json:"width,omitempty"`
	Height   int       `json:"height,omitempty"`
	Channels int       `json:"channels,omitempty"`
	Text     string    `json:"text,omitempty"`
}

func (m *model) Execute(ctx context.Context, in engine.Input, p engine.ExecParams) (engine.Output, error) {
	req := wireInput{
		Stage:                  p.Stage,
		Step:                   p.Step,
		NumSteps:               p.NumSteps,
		Precision:              p.Precision,
		BatchSize:              p.BatchSize,
		MaxTokens:              p.MaxTokens,
		Temperature:            p.Temperature,
		GuidanceScale:          p.GuidanceScale,
		Seed:                   p.Seed,
		ScaleFactor:            p.ScaleFactor,
		TargetWidth:            p.Width,
		TargetHeight:           p.Height,
		AllowHostMemoryOffload: p.AllowHostMemoryOffload,
		Data:                   in.Data,
		Pixels:                 in.Pixels,
		Width:                  in.Width,
		Height:                 in.Height,
		Channels:               in.Channels,
		Prompt:                 in.Prompt,
	}
	var out wireOutput
	if err := m.rt.call(ctx, http.MethodPost, m.path("/execute"), req, &out); err != nil {
		return engine.Output{}, err
	}
	return engine.Output(out), nil
}

func (m *model) Release() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	return m.rt.call(ctx, http.MethodDelete, m.path(""), nil, nil)
}
