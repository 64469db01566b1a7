package analysis

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-soundmatch/errs"
)

func TestDistances(t *testing.T) {
	a := []float64{0, 1, 2, 3}
	b := []float64{1, 1, 0, 3}
	tests := []struct {
		name string
		fn   DistanceFunc
		want float64
	}{
		{"mse", MSE, 5.0 / 4},
		{"rmse", RMSE, math.Sqrt(5.0 / 4)},
		{"mae", MAE, 3.0 / 4},
		{"euclidean", Euclidean, math.Sqrt(5)},
		{"manhattan", Manhattan, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.fn(a, b)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tc.want) > 1e-12 {
				t.Fatalf("%s = %v, want %v", tc.name, got, tc.want)
			}
			if same, _ := tc.fn(a, a); same != 0 {
				t.Fatalf("%s(a, a) = %v, want 0", tc.name, same)
			}
			if _, err := tc.fn(a, b[:3]); !errors.Is(err, errs.ErrShape) {
				t.Fatalf("expected shape error, got %v", err)
			}
		})
	}
}

func TestDistancesAllZero(t *testing.T) {
	zero := make([]float64, 16)
	for _, name := range DistanceNames() {
		fn, err := DistanceByName(name)
		if err != nil {
			t.Fatal(err)
		}
		d, err := fn(zero, zero)
		if err != nil || d != 0 || math.IsNaN(d) {
			t.Fatalf("%s(zero, zero) = %v, %v", name, d, err)
		}
	}
	one := make([]float64, 16)
	one[3] = 1
	if d, _ := Cosine(zero, one); d != 1 {
		t.Fatalf("cosine(zero, x) = %v, want 1", d)
	}
}

func TestDistanceByNameUnknown(t *testing.T) {
	if _, err := DistanceByName("chebyshev"); !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
	if _, err := DistanceByName(" RMSE "); err != nil {
		t.Fatalf("case-insensitive lookup failed: %v", err)
	}
}
