package features

import (
	"fmt"

	"github.com/cwbudde/algo-soundmatch/errs"
)

// Kind selects the transform an Extractor applies.
type Kind string

const (
	KindSTFT     Kind = "stft"
	KindFFT      Kind = "fft"
	KindMFCC     Kind = "mfcc"
	KindMel      Kind = "mel"
	KindSpectral Kind = "spectral"
)

// SpectrumType selects how complex spectra are reported.
type SpectrumType string

const (
	SpectrumComplex        SpectrumType = "complex"
	SpectrumMagnitude      SpectrumType = "magnitude"
	SpectrumPower          SpectrumType = "power"
	SpectrumMagnitudePhase SpectrumType = "magnitude_phase"
	SpectrumPowerPhase     SpectrumType = "power_phase"
)

// components returns the size of the trailing axis for t (1 = no axis).
func (t SpectrumType) components() int {
	switch t {
	case SpectrumComplex, SpectrumMagnitudePhase, SpectrumPowerPhase:
		return 2
	default:
		return 1
	}
}

func (t SpectrumType) valid() bool {
	switch t {
	case SpectrumComplex, SpectrumMagnitude, SpectrumPower, SpectrumMagnitudePhase, SpectrumPowerPhase:
		return true
	}
	return false
}

// Config configures an Extractor. Fields that do not apply to Kind are
// ignored. Start from DefaultConfig and override what you need.
type Config struct {
	Kind       Kind
	SampleRate int
	// FrameSize is the analysis window and FFT length for framed kinds.
	FrameSize int
	HopSize   int
	// Window is hann, hamming, blackman or rect.
	Window string
	// TimeMajor orders framed output as (time, features).
	TimeMajor bool
	// Flatten emits the one-dimensional distance form.
	Flatten bool
	// Pad centers frames by zero padding FrameSize/2 on both sides, so
	// that signals shorter than one frame are accepted.
	Pad bool

	// Spectrum applies to stft and fft.
	Spectrum SpectrumType
	// FFTSize applies to fft; 0 means the next power of two >= signal length.
	FFTSize int

	// Coefficients applies to mfcc.
	Coefficients int
	// Mels applies to mfcc and mel.
	Mels int
	FMin float64
	// FMax <= 0 means Nyquist.
	FMax float64
	// TopDB clips log-mel energies this far below the peak (mfcc, and mel when LogMel).
	TopDB float64
	// LogMel reports the mel spectrogram in dB instead of power.
	LogMel bool

	// RolloffPercent applies to spectral.
	RolloffPercent float64
	// ContrastBands applies to spectral; the contrast block has ContrastBands+1 rows.
	ContrastBands int
	ContrastFMin  float64
}

// DefaultConfig returns the documented defaults for kind.
func DefaultConfig(kind Kind) Config {
	cfg := Config{
		Kind:           kind,
		SampleRate:     44100,
		FrameSize:      2048,
		HopSize:        512,
		Window:         "hann",
		Spectrum:       SpectrumMagnitude,
		Coefficients:   20,
		Mels:           128,
		TopDB:          80,
		RolloffPercent: 0.85,
		ContrastBands:  6,
		ContrastFMin:   200,
	}
	if kind == KindSTFT {
		cfg.FrameSize = 1024
	}
	return cfg
}

func (c Config) framed() bool {
	return c.Kind != KindFFT
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	op := string(c.Kind)
	switch c.Kind {
	case KindSTFT, KindFFT, KindMFCC, KindMel, KindSpectral:
	default:
		return errs.Config("features", "unknown extractor kind %q", c.Kind)
	}
	if c.SampleRate <= 0 {
		return errs.Config(op, "sample rate must be > 0, got %d", c.SampleRate)
	}
	if c.framed() {
		if c.FrameSize <= 0 {
			return errs.Config(op, "frame size must be > 0, got %d", c.FrameSize)
		}
		if c.HopSize <= 0 {
			return errs.Config(op, "hop size must be > 0, got %d", c.HopSize)
		}
		if c.HopSize > c.FrameSize {
			return errs.Config(op, "hop size %d exceeds frame size %d", c.HopSize, c.FrameSize)
		}
	}
	if c.Kind == KindFFT && c.FFTSize < 0 {
		return errs.Config(op, "fft size must be >= 0, got %d", c.FFTSize)
	}
	if (c.Kind == KindSTFT || c.Kind == KindFFT) && !c.Spectrum.valid() {
		return errs.Config(op, "unsupported spectrum type %q", c.Spectrum)
	}
	if c.Kind == KindMFCC || c.Kind == KindMel {
		if c.Mels <= 0 {
			return errs.Config(op, "mel band count must be > 0, got %d", c.Mels)
		}
		if c.FMin < 0 || (c.FMax > 0 && c.FMax <= c.FMin) {
			return errs.Config(op, "invalid mel range [%g, %g]", c.FMin, c.FMax)
		}
	}
	if c.Kind == KindMFCC {
		if c.Coefficients <= 0 {
			return errs.Config(op, "coefficient count must be > 0, got %d", c.Coefficients)
		}
		if c.Coefficients > c.Mels {
			return errs.Config(op, "coefficient count %d exceeds mel bands %d", c.Coefficients, c.Mels)
		}
	}
	if c.Kind == KindSpectral {
		if c.RolloffPercent <= 0 || c.RolloffPercent >= 1 {
			return errs.Config(op, "rolloff percent must be in (0,1), got %g", c.RolloffPercent)
		}
		if c.ContrastBands < 1 {
			return errs.Config(op, "contrast bands must be >= 1, got %d", c.ContrastBands)
		}
		nyq := float64(c.SampleRate) / 2
		if c.ContrastFMin <= 0 || c.ContrastFMin*float64(uint(1)<<uint(c.ContrastBands)) >= nyq {
			return errs.Config(op, "contrast bands exceed Nyquist: fmin=%g bands=%d", c.ContrastFMin, c.ContrastBands)
		}
	}
	return nil
}

// fingerprint identifies everything that influences the raw output.
func (c Config) fingerprint() string {
	s := fmt.Sprintf("%s/sr=%d", c.Kind, c.SampleRate)
	if c.framed() {
		s += fmt.Sprintf("/frame=%d/hop=%d/win=%s/tm=%t/pad=%t", c.FrameSize, c.HopSize, c.Window, c.TimeMajor, c.Pad)
	}
	switch c.Kind {
	case KindSTFT:
		s += "/out=" + string(c.Spectrum)
	case KindFFT:
		s += fmt.Sprintf("/out=%s/n=%d/pad=%t", c.Spectrum, c.FFTSize, c.Pad)
	case KindMFCC:
		s += fmt.Sprintf("/n=%d/mels=%d/f=%g-%g/top=%g", c.Coefficients, c.Mels, c.FMin, c.FMax, c.TopDB)
	case KindMel:
		s += fmt.Sprintf("/mels=%d/f=%g-%g/log=%t/top=%g", c.Mels, c.FMin, c.FMax, c.LogMel, c.TopDB)
	case KindSpectral:
		s += fmt.Sprintf("/roll=%g/bands=%d/cfmin=%g", c.RolloffPercent, c.ContrastBands, c.ContrastFMin)
	}
	if c.Flatten {
		s += "/flat"
	}
	return s
}
