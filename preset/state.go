// Package preset reads and writes synthesizer patch state files.
//
// A state file is a JSON object keyed by parameter index:
//
//	{
//	  "0": {"id": 0, "desc": "Osc Waveform", "value": 0.25, "overridden": false},
//	  "5": {"id": 5, "desc": "Filter Cutoff", "value": 0.8, "overridden": true}
//	}
package preset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-soundmatch/synth"
)

// Entry is one parameter in a state file.
type Entry struct {
	ID         int     `json:"id"`
	Desc       string  `json:"desc"`
	Value      float64 `json:"value"`
	Overridden bool    `json:"overridden"`
}

// State maps the decimal parameter index to its entry.
type State map[string]Entry

// Snapshot captures the current patch and overrides of p.
func Snapshot(p synth.Port) State {
	names := make(map[int]string)
	for _, prm := range p.Parameters() {
		names[prm.Index] = prm.Name
	}
	over := p.Overridden()
	st := State{}
	for _, pv := range p.Patch() {
		_, isOver := over[pv.Index]
		st[strconv.Itoa(pv.Index)] = Entry{
			ID:         pv.Index,
			Desc:       names[pv.Index],
			Value:      pv.Value,
			Overridden: isOver,
		}
	}
	return st
}

// Write encodes st as indented JSON with sorted keys.
func Write(w io.Writer, st State) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

// Save writes the state of p to path, creating parent directories.
func Save(path string, p synth.Port) error {
	if len(p.Patch()) == 0 {
		return fmt.Errorf("patch must be set before saving state")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, Snapshot(p)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read parses a state file into the free patch and the overridden values.
func Read(r io.Reader) (synth.Patch, map[int]float64, error) {
	var st State
	if err := json.NewDecoder(r).Decode(&st); err != nil {
		return nil, nil, err
	}
	return Split(st)
}

// Split validates st and separates free and overridden parameters.
func Split(st State) (synth.Patch, map[int]float64, error) {
	keys := make([]string, 0, len(st))
	for k := range st {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var patch synth.Patch
	over := make(map[int]float64)
	seen := make(map[int]bool, len(st))
	for _, k := range keys {
		e := st[k]
		idx, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid parameter key %q", k)
		}
		if idx != e.ID {
			return nil, nil, fmt.Errorf("parameter key %q does not match id %d", k, e.ID)
		}
		if seen[idx] {
			return nil, nil, fmt.Errorf("duplicate parameter %d", idx)
		}
		seen[idx] = true
		if e.Value < 0 || e.Value > 1 {
			return nil, nil, fmt.Errorf("parameter %d value %g outside [0,1]", idx, e.Value)
		}
		if e.Overridden {
			over[idx] = e.Value
		} else {
			patch = append(patch, synth.ParamValue{Index: idx, Value: e.Value})
		}
	}
	return patch.Sorted(), over, nil
}

// Apply reads a state from r and applies overrides then the patch to p.
func Apply(p synth.Port, r io.Reader) error {
	patch, over, err := Read(r)
	if err != nil {
		return err
	}
	if err := p.SetOverriddenParameters(over); err != nil {
		return err
	}
	return p.SetPatch(patch)
}

// Load applies the state file at path to p.
func Load(path string, p synth.Port) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Apply(p, f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// WritePatch encodes a standalone patch list.
func WritePatch(w io.Writer, p synth.Patch) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
