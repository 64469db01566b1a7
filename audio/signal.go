// Package audio holds the in-memory sample buffer passed between the
// synthesizer, the feature extractors and the estimators.
package audio

import (
	"math"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"

	"github.com/cwbudde/algo-soundmatch/errs"
)

// Signal is an interleaved sample buffer with a fixed sample rate.
//
// Transform methods return new signals and leave the receiver untouched.
// NormalizeInPlace is the only mutating operation.
type Signal struct {
	Samples    []float64
	Channels   int
	SampleRate int
}

// New wraps mono samples. The slice is not copied.
func New(samples []float64, sampleRate int) *Signal {
	return &Signal{Samples: samples, Channels: 1, SampleRate: sampleRate}
}

// NewInterleaved wraps interleaved multi-channel samples.
func NewInterleaved(samples []float64, channels int, sampleRate int) (*Signal, error) {
	s := &Signal{Samples: samples, Channels: channels, SampleRate: sampleRate}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Sine generates a mono sine tone.
func Sine(freq float64, seconds float64, sampleRate int, amp float64) *Signal {
	n := int(math.Round(seconds * float64(sampleRate)))
	if n < 0 {
		n = 0
	}
	out := make([]float64, n)
	w := 2 * math.Pi * freq / float64(sampleRate)
	for i := range out {
		out[i] = amp * math.Sin(w*float64(i))
	}
	return New(out, sampleRate)
}

// Validate checks the buffer invariants.
func (s *Signal) Validate() error {
	if s == nil {
		return errs.Validation("audio", "nil signal")
	}
	if s.SampleRate <= 0 {
		return errs.Validation("audio", "sample rate must be > 0, got %d", s.SampleRate)
	}
	if s.Channels < 1 {
		return errs.Validation("audio", "channel count must be >= 1, got %d", s.Channels)
	}
	if len(s.Samples)%s.Channels != 0 {
		return errs.Shape("audio", "%d samples not divisible by %d channels", len(s.Samples), s.Channels)
	}
	return nil
}

// Frames returns the number of sample frames.
func (s *Signal) Frames() int {
	if s.Channels < 1 {
		return 0
	}
	return len(s.Samples) / s.Channels
}

// Duration returns the length in seconds.
func (s *Signal) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(s.Frames()) / float64(s.SampleRate)
}

// Clone deep copies the signal.
func (s *Signal) Clone() *Signal {
	return &Signal{
		Samples:    append([]float64(nil), s.Samples...),
		Channels:   s.Channels,
		SampleRate: s.SampleRate,
	}
}

// Mono averages all channels. A mono signal is returned as a copy.
func (s *Signal) Mono() *Signal {
	if s.Channels <= 1 {
		return s.Clone()
	}
	frames := s.Frames()
	out := make([]float64, frames)
	inv := 1.0 / float64(s.Channels)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < s.Channels; c++ {
			sum += s.Samples[i*s.Channels+c]
		}
		out[i] = sum * inv
	}
	return New(out, s.SampleRate)
}

// Channel extracts one channel as a mono signal.
func (s *Signal) Channel(c int) *Signal {
	frames := s.Frames()
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		out[i] = s.Samples[i*s.Channels+c]
	}
	return New(out, s.SampleRate)
}

// Peak returns the maximum absolute sample value.
func (s *Signal) Peak() float64 {
	var peak float64
	for _, v := range s.Samples {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

// RMS returns the root mean square over all samples.
func (s *Signal) RMS() float64 {
	if len(s.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.Samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(s.Samples)))
}

// Normalize returns a copy scaled so the peak equals target.
// Silent signals are returned unscaled.
func (s *Signal) Normalize(target float64) *Signal {
	out := s.Clone()
	out.NormalizeInPlace(target)
	return out
}

// NormalizeInPlace scales the receiver so its peak equals target.
func (s *Signal) NormalizeInPlace(target float64) {
	peak := s.Peak()
	if peak <= 1e-12 {
		return
	}
	g := target / peak
	for i := range s.Samples {
		s.Samples[i] *= g
	}
}

// Resize returns a copy trimmed or zero padded to frames sample frames.
func (s *Signal) Resize(frames int) *Signal {
	if frames < 0 {
		frames = 0
	}
	out := make([]float64, frames*s.Channels)
	copy(out, s.Samples)
	return &Signal{Samples: out, Channels: s.Channels, SampleRate: s.SampleRate}
}

// Resample converts the signal to rate. Each channel is resampled
// independently with the highest quality polyphase kernel.
func (s *Signal) Resample(rate int) (*Signal, error) {
	if rate <= 0 {
		return nil, errs.Config("resample", "target rate must be > 0, got %d", rate)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if rate == s.SampleRate {
		return s.Clone(), nil
	}
	chans := make([][]float64, s.Channels)
	for c := 0; c < s.Channels; c++ {
		r, err := dspresample.NewForRates(
			float64(s.SampleRate),
			float64(rate),
			dspresample.WithQuality(dspresample.QualityBest),
		)
		if err != nil {
			return nil, errs.Config("resample", "%d -> %d Hz: %v", s.SampleRate, rate, err)
		}
		chans[c] = r.Process(s.Channel(c).Samples)
	}
	frames := len(chans[0])
	for _, ch := range chans[1:] {
		if len(ch) < frames {
			frames = len(ch)
		}
	}
	out := make([]float64, frames*s.Channels)
	for i := 0; i < frames; i++ {
		for c := 0; c < s.Channels; c++ {
			out[i*s.Channels+c] = chans[c][i]
		}
	}
	return &Signal{Samples: out, Channels: s.Channels, SampleRate: rate}, nil
}
