package llamacpp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"forged/internal/engine"
	"forged/pkg/types"
)

func TestLoad_RejectsNonGGUF(t *testing.T) {
	d := &device{cfg: New(Config{}).cfg}
	if _, _, err := d.Load(context.Background(), "a.onnx", types.FormatONNX); err == nil {
		t.Fatalf("onnx should be rejected")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	d := &device{cfg: New(Config{}).cfg}
	_, _, err := d.Load(context.Background(), filepath.Join(t.TempDir(), "nope.gguf"), types.FormatGGUF)
	if err == nil {
		t.Fatalf("missing file should fail")
	}
}

func TestBind_MatchesBuild(t *testing.T) {
	_, err := New(Config{}).Bind(context.Background(), 0)
	if built && err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if !built && err != ErrNotBuilt {
		t.Fatalf("want ErrNotBuilt, got %v", err)
	}
}

func TestEngineInitialization_WithoutLlama(t *testing.T) {
	if built {
		t.Skip("llama support compiled in")
	}
	e := engine.New(New(Config{}), nil)
	if err := e.Initialize(context.Background(), 0); !engine.IsInitialization(err) {
		t.Fatalf("want initialization error, got %v", err)
	}
}

func TestCompile_ReportsCompletion(t *testing.T) {
	var got []float64
	fp, err := compile(context.Background(), func(f float64) { got = append(got, f) })
	if err != nil || fp != 0 || len(got) != 1 || got[0] != 1 {
		t.Fatalf("compile: fp=%d err=%v progress=%v", fp, err, got)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := compile(ctx, nil); err == nil {
		t.Fatalf("canceled compile should fail")
	}
}

func TestLoad_StubFailsAfterSizing(t *testing.T) {
	if built {
		t.Skip("llama support compiled in")
	}
	p := filepath.Join(t.TempDir(), "tiny-llama.gguf")
	if err := os.WriteFile(p, []byte("GGUF"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	d := &device{cfg: New(Config{}).cfg}
	if _, _, err := d.Load(context.Background(), p, types.FormatGGUF); err != ErrNotBuilt {
		t.Fatalf("want ErrNotBuilt, got %v", err)
	}
}
