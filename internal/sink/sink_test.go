package sink

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestMemoryRecordsEntriesAndProgress(t *testing.T) {
	m := NewMemory()
	m.Log(LevelInfo, "engine", "loaded")
	m.Log(LevelWarn, "engine", "already initialized")
	m.Progress("op1", 0.5)
	m.Progress("op2", 0.1)
	m.Progress("op1", 1)

	if got := m.Count(LevelWarn); got != 1 {
		t.Fatalf("warn count=%d want 1", got)
	}
	fr := m.Fractions("op1")
	if len(fr) != 2 || fr[0] != 0.5 || fr[1] != 1 {
		t.Fatalf("unexpected fractions: %v", fr)
	}
	ops := m.Operations()
	if len(ops) != 2 || ops[0] != "op1" || ops[1] != "op2" {
		t.Fatalf("unexpected operation order: %v", ops)
	}
	// returned slices are copies
	fr[0] = 42
	if m.Fractions("op1")[0] != 0.5 {
		t.Fatalf("fractions mutated via returned slice")
	}
}

func TestMultiFansOutAndSkipsNil(t *testing.T) {
	a, b := NewMemory(), NewMemory()
	s := Multi(a, nil, b)
	s.Log(LevelError, "monitor", "boom")
	s.Progress("op", 0.25)
	for i, m := range []*Memory{a, b} {
		if len(m.Entries()) != 1 || len(m.Fractions("op")) != 1 {
			t.Fatalf("sink %d did not receive events", i)
		}
	}
	if _, ok := Multi(a).(*Memory); !ok {
		t.Fatalf("Multi with a single sink should return it unchanged")
	}
}

func TestZerologSinkWritesComponent(t *testing.T) {
	var buf bytes.Buffer
	s := NewZerolog(zerolog.New(&buf))
	s.Log(LevelWarn, "engine", "already initialized")
	out := buf.String()
	if !strings.Contains(out, `"component":"engine"`) || !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("unexpected log line: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"info":  zerolog.InfoLevel,
		"":      zerolog.InfoLevel,
		"bogus": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}
