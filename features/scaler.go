package features

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/algo-soundmatch/errs"
)

// Epsilon floors standard deviations and ranges.
const Epsilon = 1e-8

// Axis selects which elements share scaling statistics.
type Axis string

const (
	// AxisElement fits every element position independently.
	AxisElement Axis = "element"
	// AxisFeature pools each feature row over time and population.
	AxisFeature Axis = "feature"
	// AxisTime pools each time column over features and population.
	AxisTime Axis = "time"
	// AxisNone fits one global group.
	AxisNone Axis = "none"
)

// ParseAxis accepts element, feature, time or none.
func ParseAxis(s string) (Axis, error) {
	switch a := Axis(s); a {
	case AxisElement, AxisFeature, AxisTime, AxisNone:
		return a, nil
	}
	return "", errs.Config("scale_axis", "unknown scale axis %q", s)
}

// ScalerKind names a normalization scheme.
type ScalerKind string

const (
	ScalerStandard ScalerKind = "standard"
	ScalerMinMax   ScalerKind = "minmax"
)

// ScalerState is the serializable result of a fit. For a standard scaler
// Offset is the mean and Scale the standard deviation; for min-max they
// are the minimum and the range.
type ScalerState struct {
	Kind   ScalerKind `json:"kind"`
	Axis   Axis       `json:"axis"`
	Shape  []int      `json:"shape"`
	Layout Layout     `json:"layout"`
	Offset []float64  `json:"offset"`
	Scale  []float64  `json:"scale"`
}

func (s ScalerState) fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s/%s/%v/%s", s.Kind, s.Axis, s.Shape, s.Layout)
	var b [8]byte
	for _, v := range s.Offset {
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		h.Write(b[:])
	}
	for _, v := range s.Scale {
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		h.Write(b[:])
	}
	return fmt.Sprintf("%s-%s-%016x", s.Kind, s.Axis, h.Sum64())
}

// Scaler normalizes feature vectors with statistics fitted once over a
// population. Fit fully replaces earlier statistics.
type Scaler interface {
	Fit(data []Vector) error
	Transform(v Vector) (Vector, error)
	FitTransform(data []Vector) ([]Vector, error)
	// State returns the fitted statistics; ok is false before Fit.
	State() (state ScalerState, ok bool)
}

// StandardScaler applies (x-mean)/std per group.
type StandardScaler struct{ scalerCore }

// MinMaxScaler applies (x-min)/(max-min) per group.
type MinMaxScaler struct{ scalerCore }

// NewStandardScaler returns an unfitted standard scaler.
func NewStandardScaler(axis Axis) *StandardScaler {
	return &StandardScaler{scalerCore{kind: ScalerStandard, axis: axis}}
}

// NewMinMaxScaler returns an unfitted min-max scaler.
func NewMinMaxScaler(axis Axis) *MinMaxScaler {
	return &MinMaxScaler{scalerCore{kind: ScalerMinMax, axis: axis}}
}

// LoadScaler restores a scaler from a saved state.
func LoadScaler(st ScalerState) (Scaler, error) {
	if len(st.Offset) != len(st.Scale) || len(st.Offset) == 0 {
		return nil, errs.Validation("load_scaler", "offset/scale length %d/%d", len(st.Offset), len(st.Scale))
	}
	groups, _ := groupIndex(st.Shape, st.Layout, st.Axis)
	if groups != len(st.Offset) {
		return nil, errs.Shape("load_scaler", "shape %v axis %s needs %d groups, state has %d", st.Shape, st.Axis, groups, len(st.Offset))
	}
	cp := cloneState(st)
	switch st.Kind {
	case ScalerStandard:
		s := NewStandardScaler(st.Axis)
		s.state = &cp
		return s, nil
	case ScalerMinMax:
		s := NewMinMaxScaler(st.Axis)
		s.state = &cp
		return s, nil
	}
	return nil, errs.Validation("load_scaler", "unknown scaler kind %q", st.Kind)
}

type scalerCore struct {
	mu    sync.RWMutex
	kind  ScalerKind
	axis  Axis
	state *ScalerState
}

func (c *scalerCore) Fit(data []Vector) error {
	if len(data) == 0 {
		return errs.Validation("scaler_fit", "empty population")
	}
	ref := data[0]
	for i, v := range data {
		if err := v.Validate(); err != nil {
			return err
		}
		if !sameShape(v.Shape, ref.Shape) {
			return errs.Shape("scaler_fit", "vector %d has shape %v, expected %v", i, v.Shape, ref.Shape)
		}
	}
	groups, idx := groupIndex(ref.Shape, ref.Layout, c.axis)
	members := make([][]float64, groups)
	for _, v := range data {
		for i, x := range v.Data {
			g := idx[i]
			members[g] = append(members[g], x)
		}
	}
	st := ScalerState{
		Kind:   c.kind,
		Axis:   c.axis,
		Shape:  append([]int(nil), ref.Shape...),
		Layout: ref.Layout,
		Offset: make([]float64, groups),
		Scale:  make([]float64, groups),
	}
	for g, m := range members {
		switch c.kind {
		case ScalerMinMax:
			lo, hi := floats.Min(m), floats.Max(m)
			st.Offset[g] = lo
			st.Scale[g] = math.Max(hi-lo, Epsilon)
		default:
			mean, variance := stat.PopMeanVariance(m, nil)
			st.Offset[g] = mean
			st.Scale[g] = math.Max(math.Sqrt(variance), Epsilon)
		}
	}
	c.mu.Lock()
	c.state = &st
	c.mu.Unlock()
	return nil
}

func (c *scalerCore) Transform(v Vector) (Vector, error) {
	c.mu.RLock()
	st := c.state
	c.mu.RUnlock()
	if st == nil {
		return Vector{}, errs.Validation("scaler_transform", "transform called before fit")
	}
	want := 1
	for _, d := range st.Shape {
		want *= d
	}
	flat := len(v.Shape) == 1 && len(v.Data) == want
	if !sameShape(v.Shape, st.Shape) && !flat {
		return Vector{}, errs.Shape("scaler_transform", "vector shape %v does not match fitted shape %v", v.Shape, st.Shape)
	}
	if len(v.Data) != want {
		return Vector{}, errs.Shape("scaler_transform", "vector has %d values, fitted shape %v holds %d", len(v.Data), st.Shape, want)
	}
	_, idx := groupIndex(st.Shape, st.Layout, st.Axis)
	out := v.Clone()
	for i, x := range v.Data {
		g := idx[i]
		out.Data[i] = (x - st.Offset[g]) / st.Scale[g]
	}
	return out, nil
}

func (c *scalerCore) FitTransform(data []Vector) ([]Vector, error) {
	if err := c.Fit(data); err != nil {
		return nil, err
	}
	out := make([]Vector, len(data))
	for i, v := range data {
		t, err := c.Transform(v)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func (c *scalerCore) State() (ScalerState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return ScalerState{}, false
	}
	return cloneState(*c.state), true
}

func cloneState(s ScalerState) ScalerState {
	s.Shape = append([]int(nil), s.Shape...)
	s.Offset = append([]float64(nil), s.Offset...)
	s.Scale = append([]float64(nil), s.Scale...)
	return s
}

// groupIndex maps every flat element position to its statistics group.
func groupIndex(shape []int, layout Layout, axis Axis) (int, []int) {
	n := 1
	for _, d := range shape {
		n *= d
	}
	idx := make([]int, n)
	if n == 0 {
		return 0, idx
	}

	core := 1
	framed := (layout == FeatureMajor || layout == TimeMajor) && len(shape) >= 2
	if framed {
		core = 2
	}
	comp := 1
	for _, d := range shape[core:] {
		comp *= d
	}

	switch axis {
	case AxisNone:
		return 1, idx
	case AxisElement:
		for i := range idx {
			idx[i] = i
		}
		return n, idx
	}

	for i := range idx {
		c := i % comp
		r := i / comp
		var feat, time int
		switch {
		case !framed:
			feat, time = r, 0
		case layout == FeatureMajor:
			feat, time = r/shape[1], r%shape[1]
		default:
			time, feat = r/shape[1], r%shape[1]
		}
		switch axis {
		case AxisTime:
			idx[i] = time*comp + c
		default:
			idx[i] = feat*comp + c
		}
	}
	switch {
	case axis == AxisTime && framed && layout == FeatureMajor:
		return shape[1] * comp, idx
	case axis == AxisTime && framed:
		return shape[0] * comp, idx
	case axis == AxisTime:
		return comp, idx
	case framed && layout == FeatureMajor:
		return shape[0] * comp, idx
	case framed:
		return shape[1] * comp, idx
	default:
		return n, idx
	}
}
