package dsp

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/window"
)

// Window returns a periodic analysis window of length n.
// Supported names: hann, hamming, blackman, rect.
func Window(name string, n int) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("window length must be > 0, got %d", n)
	}
	var w []float64
	// go-dsp builds symmetric windows; periodic = symmetric(n+1) without the last tap.
	switch name {
	case "", "hann":
		w = window.Hann(n + 1)
	case "hamming":
		w = window.Hamming(n + 1)
	case "blackman":
		w = window.Blackman(n + 1)
	case "rect", "boxcar", "none":
		w = window.Rectangular(n + 1)
	default:
		return nil, fmt.Errorf("unsupported window %q", name)
	}
	return w[:n], nil
}

// AmpToDB converts a magnitude to decibels with a floor of amin.
func AmpToDB(x, amin float64) float64 {
	if x < amin {
		x = amin
	}
	return 20.0 * math.Log10(x)
}

// PowerToDB converts power values to decibels in place relative to ref
// (ref <= 0 uses the maximum) and clips everything more than topDB below
// the peak. topDB <= 0 disables clipping.
func PowerToDB(x []float64, ref, amin, topDB float64) {
	if ref <= 0 {
		for _, v := range x {
			if v > ref {
				ref = v
			}
		}
	}
	if ref < amin {
		ref = amin
	}
	refDB := 10.0 * math.Log10(ref)
	peak := math.Inf(-1)
	for i, v := range x {
		if v < amin {
			v = amin
		}
		x[i] = 10.0*math.Log10(v) - refDB
		if x[i] > peak {
			peak = x[i]
		}
	}
	if topDB <= 0 {
		return
	}
	floor := peak - topDB
	for i, v := range x {
		if v < floor {
			x[i] = floor
		}
	}
}
