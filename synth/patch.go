package synth

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-soundmatch/errs"
)

// ParamValue is one normalized parameter setting.
type ParamValue struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// Patch is an ordered list of parameter settings with values in [0,1].
type Patch []ParamValue

// Validate checks the index uniqueness and value range invariants.
func (p Patch) Validate() error {
	seen := make(map[int]struct{}, len(p))
	for _, pv := range p {
		if _, dup := seen[pv.Index]; dup {
			return errs.Validation("patch", "duplicate parameter index %d", pv.Index)
		}
		seen[pv.Index] = struct{}{}
		if math.IsNaN(pv.Value) || pv.Value < 0 || pv.Value > 1 {
			return errs.Validation("patch", "parameter %d value %g outside [0,1]", pv.Index, pv.Value)
		}
	}
	return nil
}

// Clone copies the patch.
func (p Patch) Clone() Patch {
	return append(Patch(nil), p...)
}

// Map returns index -> value.
func (p Patch) Map() map[int]float64 {
	m := make(map[int]float64, len(p))
	for _, pv := range p {
		m[pv.Index] = pv.Value
	}
	return m
}

// Sorted returns a copy ordered by index.
func (p Patch) Sorted() Patch {
	out := p.Clone()
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Values returns the values in patch order.
func (p Patch) Values() []float64 {
	out := make([]float64, len(p))
	for i, pv := range p {
		out[i] = pv.Value
	}
	return out
}

// String renders "index=value" pairs.
func (p Patch) String() string {
	var b strings.Builder
	for i, pv := range p {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(pv.Index))
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(pv.Value, 'g', 6, 64))
	}
	return b.String()
}

// Clamp01 limits v to [0,1]; NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ExpandSubPatch builds a full patch from values for the free indices
// plus the overridden values. The result is ordered by index.
func ExpandSubPatch(free []int, values []float64, overridden map[int]float64) (Patch, error) {
	if len(free) != len(values) {
		return nil, errs.Shape("expand_patch", "%d free parameters, %d values", len(free), len(values))
	}
	out := make(Patch, 0, len(free)+len(overridden))
	for i, idx := range free {
		if _, ok := overridden[idx]; ok {
			return nil, errs.Validation("expand_patch", "parameter %d is both free and overridden", idx)
		}
		out = append(out, ParamValue{Index: idx, Value: Clamp01(values[i])})
	}
	for idx, v := range overridden {
		out = append(out, ParamValue{Index: idx, Value: Clamp01(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}
