// Package features turns audio signals into fixed-shape feature vectors
// and scales them with fitted statistics.
//
// An Extractor is built for one transform kind:
//
//	cfg := features.DefaultConfig(features.KindMFCC)
//	cfg.Coefficients = 13
//	ex, err := features.New(cfg)
//	v, err := ex.Features(sig)
//
// Extractors are safe for concurrent use once configured. Attaching or
// fitting a scaler and adding modifiers must happen before sharing.
package features

import (
	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/dsp"
	"github.com/cwbudde/algo-soundmatch/errs"
)

// FeatureExtractor is the capability consumed by estimators.
type FeatureExtractor interface {
	Features(s *audio.Signal) (Vector, error)
	Fingerprint() string
}

// SignalModifier rewrites audio before analysis.
type SignalModifier func(*audio.Signal) *audio.Signal

// VectorModifier rewrites a feature vector. It must preserve the shape
// when used before scaling.
type VectorModifier func(Vector) Vector

// Extractor computes one feature kind.
type Extractor struct {
	cfg       Config
	transform transformFunc
	window    []float64
	melBank   [][]float64
	binFreqs  []float64
	bands     []contrastBand
	plans     planCache

	scaler    Scaler
	newScaler func(Axis) Scaler
	scaleAxis Axis
	// rawKey and key cache the fingerprints without and with the scaler.
	rawKey string
	key    string

	inputMods    []SignalModifier
	preScaleMods []VectorModifier
	outputMods   []VectorModifier
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithScaler attaches a fitted scaler.
func WithScaler(s Scaler) Option {
	return func(e *Extractor) { e.scaler = s }
}

// WithScalerFactory sets the scaler built by FitScaler.
func WithScalerFactory(f func(Axis) Scaler) Option {
	return func(e *Extractor) { e.newScaler = f }
}

// WithScaleAxis sets the grouping FitScaler uses.
func WithScaleAxis(a Axis) Option {
	return func(e *Extractor) { e.scaleAxis = a }
}

// New validates cfg and builds an Extractor.
func New(cfg Config, opts ...Option) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Extractor{
		cfg:       cfg,
		transform: transformFor(cfg.Kind),
		newScaler: func(a Axis) Scaler { return NewStandardScaler(a) },
		scaleAxis: defaultAxis(cfg.Kind),
	}
	if cfg.framed() {
		w, err := dsp.Window(cfg.Window, cfg.FrameSize)
		if err != nil {
			return nil, errs.Config(string(cfg.Kind), "%v", err)
		}
		e.window = w
		bins := cfg.FrameSize/2 + 1
		e.binFreqs = make([]float64, bins)
		for k := range e.binFreqs {
			e.binFreqs[k] = float64(k) * float64(cfg.SampleRate) / float64(cfg.FrameSize)
		}
	}
	switch cfg.Kind {
	case KindMFCC, KindMel:
		e.melBank = dsp.MelFilterbank(cfg.SampleRate, cfg.FrameSize, cfg.Mels, cfg.FMin, cfg.FMax)
	case KindSpectral:
		e.bands = contrastBands(e.binFreqs, cfg.ContrastFMin, cfg.ContrastBands)
	}
	for _, o := range opts {
		o(e)
	}
	e.rawKey = cfg.fingerprint()
	e.refreshKey()
	return e, nil
}

// NewSTFT builds a short-time spectrum extractor.
func NewSTFT(cfg Config, opts ...Option) (*Extractor, error) {
	cfg.Kind = KindSTFT
	return New(cfg, opts...)
}

// NewFFT builds a whole-signal spectrum extractor.
func NewFFT(cfg Config, opts ...Option) (*Extractor, error) {
	cfg.Kind = KindFFT
	return New(cfg, opts...)
}

// NewMFCC builds a cepstral extractor.
func NewMFCC(cfg Config, opts ...Option) (*Extractor, error) {
	cfg.Kind = KindMFCC
	return New(cfg, opts...)
}

// NewMelSpectrogram builds a mel band energy extractor.
func NewMelSpectrogram(cfg Config, opts ...Option) (*Extractor, error) {
	cfg.Kind = KindMel
	return New(cfg, opts...)
}

// NewSpectralSummary builds the time-summarized spectral descriptor extractor.
func NewSpectralSummary(cfg Config, opts ...Option) (*Extractor, error) {
	cfg.Kind = KindSpectral
	return New(cfg, opts...)
}

func defaultAxis(k Kind) Axis {
	switch k {
	case KindSTFT, KindFFT:
		return AxisElement
	default:
		return AxisFeature
	}
}

// Config returns the configuration the extractor was built with.
func (e *Extractor) Config() Config { return e.cfg }

// Scaler returns the attached scaler, or nil.
func (e *Extractor) Scaler() Scaler { return e.scaler }

// SetScaler attaches s; nil detaches. A scaler refitted after it was
// attached must be attached again to update the fingerprint.
func (e *Extractor) SetScaler(s Scaler) {
	e.scaler = s
	e.refreshKey()
}

// ScaleAxis returns the grouping used by FitScaler.
func (e *Extractor) ScaleAxis() Axis { return e.scaleAxis }

// AddInputModifier appends a modifier applied to signals before analysis.
func (e *Extractor) AddInputModifier(m SignalModifier) { e.inputMods = append(e.inputMods, m) }

// AddPreScaleModifier appends a modifier applied to raw features.
func (e *Extractor) AddPreScaleModifier(m VectorModifier) {
	e.preScaleMods = append(e.preScaleMods, m)
}

// AddOutputModifier appends a modifier applied after scaling.
func (e *Extractor) AddOutputModifier(m VectorModifier) { e.outputMods = append(e.outputMods, m) }

// Fingerprint identifies the configuration and scaling state. Vectors
// with different fingerprints are not comparable.
func (e *Extractor) Fingerprint() string { return e.key }

func (e *Extractor) refreshKey() {
	e.key = e.rawKey
	if e.scaler != nil {
		if st, ok := e.scaler.State(); ok {
			e.key += "|" + st.fingerprint()
		}
	}
}

// Features returns the (scaled, when a scaler is attached) representation.
func (e *Extractor) Features(s *audio.Signal) (Vector, error) {
	v, err := e.structured(s)
	if err != nil {
		return Vector{}, err
	}
	if e.scaler != nil {
		v, err = e.scaler.Transform(v)
		if err != nil {
			return Vector{}, err
		}
	}
	return e.finish(v, e.key), nil
}

// RawFeatures bypasses the attached scaler.
func (e *Extractor) RawFeatures(s *audio.Signal) (Vector, error) {
	v, err := e.structured(s)
	if err != nil {
		return Vector{}, err
	}
	return e.finish(v, e.rawKey), nil
}

// FitScaler extracts raw features from signals, fits a new scaler on
// them and attaches it. Any previously attached scaler is replaced.
func (e *Extractor) FitScaler(signals ...*audio.Signal) error {
	if len(signals) == 0 {
		return errs.Validation("fit_scaler", "no signals")
	}
	data := make([]Vector, len(signals))
	for i, s := range signals {
		v, err := e.structured(s)
		if err != nil {
			return err
		}
		data[i] = v
	}
	sc := e.newScaler(e.scaleAxis)
	if err := sc.Fit(data); err != nil {
		return err
	}
	e.SetScaler(sc)
	return nil
}

// OutputShape predicts the shape produced for a mono signal of
// numSamples samples.
func (e *Extractor) OutputShape(numSamples int) ([]int, error) {
	cfg := e.cfg
	var shape []int
	switch cfg.Kind {
	case KindFFT:
		n := e.fftSize(numSamples)
		if cfg.FFTSize > 0 && numSamples < n && !cfg.Pad {
			return nil, errs.Shape("fft", "signal of %d samples is shorter than fft size %d and padding is disabled", numSamples, n)
		}
		shape = []int{n/2 + 1}
		if c := cfg.Spectrum.components(); c > 1 {
			shape = append(shape, c)
		}
	case KindSpectral:
		if _, err := frameCount(numSamples, cfg.FrameSize, cfg.HopSize, cfg.Pad); err != nil {
			return nil, err
		}
		shape = []int{2 * (4 + cfg.ContrastBands + 1)}
	default:
		frames, err := frameCount(numSamples, cfg.FrameSize, cfg.HopSize, cfg.Pad)
		if err != nil {
			return nil, err
		}
		var feats, comp int
		switch cfg.Kind {
		case KindSTFT:
			feats, comp = cfg.FrameSize/2+1, cfg.Spectrum.components()
		case KindMFCC:
			feats, comp = cfg.Coefficients, 1
		case KindMel:
			feats, comp = cfg.Mels, 1
		}
		if cfg.TimeMajor {
			shape = []int{frames, feats}
		} else {
			shape = []int{feats, frames}
		}
		if comp > 1 {
			shape = append(shape, comp)
		}
	}
	if cfg.Flatten {
		n := 1
		for _, d := range shape {
			n *= d
		}
		shape = []int{n}
	}
	return shape, nil
}

func (e *Extractor) structured(s *audio.Signal) (Vector, error) {
	if err := s.Validate(); err != nil {
		return Vector{}, err
	}
	if s.SampleRate != e.cfg.SampleRate {
		return Vector{}, errs.Validation(string(e.cfg.Kind), "signal sample rate %d does not match extractor rate %d", s.SampleRate, e.cfg.SampleRate)
	}
	for _, m := range e.inputMods {
		s = m(s)
	}
	mono := s
	if s.Channels > 1 {
		mono = s.Mono()
	}
	data, shape, layout, err := e.transform(e, mono.Samples)
	if err != nil {
		return Vector{}, err
	}
	v := Vector{Data: data, Shape: shape, Layout: layout}
	for _, m := range e.preScaleMods {
		v = m(v)
	}
	return v, nil
}

func (e *Extractor) finish(v Vector, key string) Vector {
	for _, m := range e.outputMods {
		v = m(v)
	}
	if e.cfg.Flatten {
		v = v.Flatten()
	}
	v.Key = key
	return v
}
