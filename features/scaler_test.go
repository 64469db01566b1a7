package features

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/algo-soundmatch/errs"
)

func randomPopulation(n int, shape []int, layout Layout, seed int64) []Vector {
	rng := rand.New(rand.NewSource(seed))
	size := 1
	for _, d := range shape {
		size *= d
	}
	out := make([]Vector, n)
	for i := range out {
		data := make([]float64, size)
		for j := range data {
			data[j] = 5 + 3*rng.NormFloat64() + float64(j%7)
		}
		out[i] = Vector{Data: data, Shape: append([]int(nil), shape...), Layout: layout}
	}
	return out
}

func groupMoments(data []Vector, axis Axis) map[int][2]float64 {
	groups, idx := groupIndex(data[0].Shape, data[0].Layout, axis)
	sum := make([]float64, groups)
	sq := make([]float64, groups)
	cnt := make([]float64, groups)
	for _, v := range data {
		for i, x := range v.Data {
			g := idx[i]
			sum[g] += x
			sq[g] += x * x
			cnt[g]++
		}
	}
	out := make(map[int][2]float64, groups)
	for g := range sum {
		mean := sum[g] / cnt[g]
		out[g] = [2]float64{mean, sq[g]/cnt[g] - mean*mean}
	}
	return out
}

func TestStandardScalerZeroMeanUnitVariance(t *testing.T) {
	for _, axis := range []Axis{AxisElement, AxisFeature, AxisTime, AxisNone} {
		t.Run(string(axis), func(t *testing.T) {
			pop := randomPopulation(40, []int{6, 9}, FeatureMajor, 3)
			s := NewStandardScaler(axis)
			scaled, err := s.FitTransform(pop)
			if err != nil {
				t.Fatalf("FitTransform: %v", err)
			}
			for g, m := range groupMoments(scaled, axis) {
				if math.Abs(m[0]) > 1e-9 {
					t.Fatalf("group %d mean = %g", g, m[0])
				}
				if math.Abs(m[1]-1) > 1e-9 {
					t.Fatalf("group %d variance = %g", g, m[1])
				}
			}
		})
	}
}

func TestFitTransformEqualsFitThenTransform(t *testing.T) {
	pop := randomPopulation(10, []int{4, 5}, TimeMajor, 9)
	a := NewStandardScaler(AxisFeature)
	got, err := a.FitTransform(pop)
	if err != nil {
		t.Fatal(err)
	}
	b := NewStandardScaler(AxisFeature)
	if err := b.Fit(pop); err != nil {
		t.Fatal(err)
	}
	for i, v := range pop {
		want, err := b.Transform(v)
		if err != nil {
			t.Fatal(err)
		}
		for j := range want.Data {
			if got[i].Data[j] != want.Data[j] {
				t.Fatalf("vector %d element %d: %v != %v", i, j, got[i].Data[j], want.Data[j])
			}
		}
	}
}

func TestConstantDimensionIsFloored(t *testing.T) {
	pop := []Vector{
		{Data: []float64{1, 2}, Shape: []int{2}, Layout: Summary},
		{Data: []float64{1, 4}, Shape: []int{2}, Layout: Summary},
	}
	s := NewStandardScaler(AxisElement)
	if err := s.Fit(pop); err != nil {
		t.Fatal(err)
	}
	st, _ := s.State()
	if st.Scale[0] != Epsilon {
		t.Fatalf("constant std = %g, want %g", st.Scale[0], Epsilon)
	}
	out, err := s.Transform(pop[0])
	if err != nil {
		t.Fatal(err)
	}
	if out.Data[0] != 0 || math.IsInf(out.Data[1], 0) {
		t.Fatalf("transform = %v", out.Data)
	}
}

func TestTransformBeforeFit(t *testing.T) {
	s := NewMinMaxScaler(AxisNone)
	_, err := s.Transform(Vector{Data: []float64{1}, Shape: []int{1}, Layout: Summary})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransformShapeMismatch(t *testing.T) {
	s := NewStandardScaler(AxisFeature)
	if err := s.Fit(randomPopulation(5, []int{3, 4}, FeatureMajor, 1)); err != nil {
		t.Fatal(err)
	}
	_, err := s.Transform(Vector{Data: make([]float64, 15), Shape: []int{3, 5}, Layout: FeatureMajor})
	if !errors.Is(err, errs.ErrShape) {
		t.Fatalf("expected shape error, got %v", err)
	}
	flat := Vector{Data: make([]float64, 12), Shape: []int{12}, Layout: Flat}
	if _, err := s.Transform(flat); err != nil {
		t.Fatalf("flattened vector of matching size rejected: %v", err)
	}
}

func TestRefitReplacesStatistics(t *testing.T) {
	s := NewStandardScaler(AxisNone)
	if err := s.Fit([]Vector{{Data: []float64{0, 2}, Shape: []int{2}, Layout: Summary}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Fit([]Vector{{Data: []float64{10, 30}, Shape: []int{2}, Layout: Summary}}); err != nil {
		t.Fatal(err)
	}
	st, _ := s.State()
	if st.Offset[0] != 20 || st.Scale[0] != 10 {
		t.Fatalf("state = %+v, want mean 20 std 10", st)
	}
}

func TestMinMaxScalerRange(t *testing.T) {
	pop := randomPopulation(20, []int{8}, Summary, 4)
	s := NewMinMaxScaler(AxisElement)
	scaled, err := s.FitTransform(pop)
	if err != nil {
		t.Fatal(err)
	}
	for j := 0; j < 8; j++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range scaled {
			lo = math.Min(lo, v.Data[j])
			hi = math.Max(hi, v.Data[j])
		}
		if math.Abs(lo) > 1e-12 || math.Abs(hi-1) > 1e-12 {
			t.Fatalf("dimension %d range [%g, %g]", j, lo, hi)
		}
	}
}

func TestScalerStateJSONRestores(t *testing.T) {
	pop := randomPopulation(6, []int{3, 4}, FeatureMajor, 8)
	s := NewStandardScaler(AxisTime)
	if err := s.Fit(pop); err != nil {
		t.Fatal(err)
	}
	st, _ := s.State()
	raw, err := json.Marshal(st)
	if err != nil {
		t.Fatal(err)
	}
	var back ScalerState
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	restored, err := LoadScaler(back)
	if err != nil {
		t.Fatalf("LoadScaler: %v", err)
	}
	a, _ := s.Transform(pop[2])
	b, _ := restored.Transform(pop[2])
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("element %d differs after restore", i)
		}
	}
}
