// Package synth defines the synthesizer port consumed by the estimators and
// the normalized patch model it exposes.
package synth

import (
	"io"
	"math/rand"

	"github.com/cwbudde/algo-soundmatch/audio"
)

// Parameter describes one synthesizer parameter.
type Parameter struct {
	Index int     `json:"index"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// RenderSettings controls one render call. NoteLength is the time in
// seconds before note-off, RenderLength the total output length.
type RenderSettings struct {
	NoteLength   float64 `json:"note_length"`
	RenderLength float64 `json:"render_length"`
	Note         int     `json:"note"`
	Velocity     int     `json:"velocity"`
}

// DefaultRenderSettings plays middle C at velocity 127 for one second.
func DefaultRenderSettings() RenderSettings {
	return RenderSettings{NoteLength: 0.8, RenderLength: 1.0, Note: 60, Velocity: 127}
}

// Port is the synthesizer contract. RenderPatch may be slow and is not
// guaranteed to be reentrant on a shared instance; use Pool or Locked to
// share a synthesizer between goroutines.
type Port interface {
	// LoadPatch reads a patch state (see package preset) and applies it.
	LoadPatch(r io.Reader) error
	SetPatch(p Patch) error
	Patch() Patch
	RenderPatch(s RenderSettings) (*audio.Signal, error)
	Parameters() []Parameter
	// SetOverriddenParameters fixes parameters for the lifetime of a run.
	SetOverriddenParameters(values map[int]float64) error
	Overridden() map[int]float64
	RandomizePatch(rng *rand.Rand, skipOverridden bool)
	SampleRate() int
}

// Factory builds independent port instances, one per worker.
type Factory func() (Port, error)

// FreeIndices returns the parameter indices not overridden on p, in
// parameter order.
func FreeIndices(p Port) []int {
	over := p.Overridden()
	params := p.Parameters()
	out := make([]int, 0, len(params))
	for _, prm := range params {
		if _, ok := over[prm.Index]; !ok {
			out = append(out, prm.Index)
		}
	}
	return out
}
