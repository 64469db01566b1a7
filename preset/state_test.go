package preset_test

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/algo-soundmatch/preset"
	"github.com/cwbudde/algo-soundmatch/synth"
	"github.com/cwbudde/algo-soundmatch/synth/subsynth"
)

func TestSplitSeparatesOverridden(t *testing.T) {
	st := preset.State{
		"2": {ID: 2, Desc: "b", Value: 0.2},
		"0": {ID: 0, Desc: "a", Value: 0.9, Overridden: true},
		"1": {ID: 1, Desc: "c", Value: 0.4},
	}
	patch, over, err := preset.Split(st)
	if err != nil {
		t.Fatal(err)
	}
	want := synth.Patch{{Index: 1, Value: 0.4}, {Index: 2, Value: 0.2}}
	if len(patch) != len(want) || patch[0] != want[0] || patch[1] != want[1] {
		t.Fatalf("patch = %v, want %v", patch, want)
	}
	if len(over) != 1 || over[0] != 0.9 {
		t.Fatalf("overridden = %v", over)
	}
}

func TestReadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"malformed", `{"0": `},
		{"bad key", `{"x": {"id": 0, "value": 0.5}}`},
		{"id mismatch", `{"1": {"id": 0, "value": 0.5}}`},
		{"out of range", `{"0": {"id": 0, "value": 1.5}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := preset.Read(strings.NewReader(tc.in)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	src, err := subsynth.New(subsynth.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := src.SetPatch(synth.Patch{{Index: subsynth.ParamCutoff, Value: 0.33}}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	if err := preset.Save(path, src); err != nil {
		t.Fatal(err)
	}
	dst, err := subsynth.New(subsynth.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := preset.Load(path, dst); err != nil {
		t.Fatal(err)
	}
	if v := dst.Patch().Map()[subsynth.ParamCutoff]; v != 0.33 {
		t.Fatalf("cutoff = %v, want 0.33", v)
	}
}

func TestWritePatch(t *testing.T) {
	var buf bytes.Buffer
	if err := preset.WritePatch(&buf, synth.Patch{{Index: 3, Value: 0.5}}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"index": 3`) {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}
