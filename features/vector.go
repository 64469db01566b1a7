package features

import "github.com/cwbudde/algo-soundmatch/errs"

// Layout describes how the logical axes of a Vector are ordered.
type Layout string

const (
	// FeatureMajor is (features, time[, component]).
	FeatureMajor Layout = "feature_major"
	// TimeMajor is (time, features[, component]).
	TimeMajor Layout = "time_major"
	// Summary is a single frame-free feature list.
	Summary Layout = "summary"
	// Flat is the one-dimensional distance form.
	Flat Layout = "flat"
)

// Vector is a fixed-shape feature array in row-major order.
// Key fingerprints the extractor configuration that produced it.
type Vector struct {
	Data   []float64 `json:"data"`
	Shape  []int     `json:"shape"`
	Layout Layout    `json:"layout"`
	Key    string    `json:"key,omitempty"`
}

// Len returns the number of elements.
func (v Vector) Len() int { return len(v.Data) }

// Clone deep copies the vector.
func (v Vector) Clone() Vector {
	return Vector{
		Data:   append([]float64(nil), v.Data...),
		Shape:  append([]int(nil), v.Shape...),
		Layout: v.Layout,
		Key:    v.Key,
	}
}

// Flatten returns the one-dimensional form. Data is shared.
func (v Vector) Flatten() Vector {
	return Vector{Data: v.Data, Shape: []int{len(v.Data)}, Layout: Flat, Key: v.Key}
}

// Validate checks that Shape covers Data exactly.
func (v Vector) Validate() error {
	if len(v.Shape) == 0 {
		return errs.Shape("vector", "missing shape")
	}
	n := 1
	for _, d := range v.Shape {
		if d < 0 {
			return errs.Shape("vector", "negative dimension in %v", v.Shape)
		}
		n *= d
	}
	if n != len(v.Data) {
		return errs.Shape("vector", "shape %v holds %d values, data has %d", v.Shape, n, len(v.Data))
	}
	return nil
}

// At returns the element at a logical 2-D position (row, col) of a
// vector with at least two axes; trailing axes are taken at index 0.
func (v Vector) At(row, col int) float64 {
	stride := 1
	for _, d := range v.Shape[2:] {
		stride *= d
	}
	return v.Data[(row*v.Shape[1]+col)*stride]
}

// Compatible reports whether a and b may be compared by a distance.
func Compatible(a, b Vector) error {
	if a.Key != "" && b.Key != "" && a.Key != b.Key {
		return errs.Validation("compare", "feature vectors from different extractor configurations")
	}
	if !sameShape(a.Shape, b.Shape) && len(a.Data) != len(b.Data) {
		return errs.Shape("compare", "shape %v does not match %v", a.Shape, b.Shape)
	}
	if len(a.Data) != len(b.Data) {
		return errs.Shape("compare", "length %d does not match %d", len(a.Data), len(b.Data))
	}
	return nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
