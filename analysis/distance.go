// Package analysis holds the scalar distances used as fitness and the
// time/envelope/spectral comparison reported for finished matches.
package analysis

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/algo-soundmatch/errs"
)

// DistanceFunc measures how far b is from a. Lower is better; identical
// inputs yield 0.
type DistanceFunc func(a, b []float64) (float64, error)

var distances = map[string]DistanceFunc{
	"rmse":      RMSE,
	"mse":       MSE,
	"mae":       MAE,
	"euclidean": Euclidean,
	"manhattan": Manhattan,
	"cosine":    Cosine,
}

// DistanceByName resolves a distance name (case-insensitive).
func DistanceByName(name string) (DistanceFunc, error) {
	if d, ok := distances[strings.ToLower(strings.TrimSpace(name))]; ok {
		return d, nil
	}
	return nil, errs.Config("distance", "unknown distance %q (valid: %s)", name, strings.Join(DistanceNames(), ", "))
}

// DistanceNames lists the registered distances in sorted order.
func DistanceNames() []string {
	out := make([]string, 0, len(distances))
	for k := range distances {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func checkLen(op string, a, b []float64) error {
	if len(a) != len(b) {
		return errs.Shape(op, "length %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return errs.Shape(op, "empty input")
	}
	return nil
}

// MSE is the mean squared difference.
func MSE(a, b []float64) (float64, error) {
	if err := checkLen("mse", a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum / float64(len(a)), nil
}

// RMSE is the root mean squared difference.
func RMSE(a, b []float64) (float64, error) {
	m, err := MSE(a, b)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(m), nil
}

// MAE is the mean absolute difference.
func MAE(a, b []float64) (float64, error) {
	d, err := Manhattan(a, b)
	if err != nil {
		return 0, err
	}
	return d / float64(len(a)), nil
}

// Euclidean is the L2 norm of a-b.
func Euclidean(a, b []float64) (float64, error) {
	if err := checkLen("euclidean", a, b); err != nil {
		return 0, err
	}
	return floats.Distance(a, b, 2), nil
}

// Manhattan is the L1 norm of a-b.
func Manhattan(a, b []float64) (float64, error) {
	if err := checkLen("manhattan", a, b); err != nil {
		return 0, err
	}
	return floats.Distance(a, b, 1), nil
}

// Cosine is 1 - cos(a, b). Two all-zero inputs are at distance 0; one
// all-zero input is at distance 1.
func Cosine(a, b []float64) (float64, error) {
	if err := checkLen("cosine", a, b); err != nil {
		return 0, err
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	switch {
	case na == 0 && nb == 0:
		return 0, nil
	case na == 0 || nb == 0:
		return 1, nil
	}
	return 1 - floats.Dot(a, b)/(na*nb), nil
}
