// Package config loads run configuration for the command line tools and
// the server. Values come from built-in defaults, an optional config file
// and SOUNDMATCH_* environment variables, in increasing precedence.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/cwbudde/algo-soundmatch/errs"
)

// EnvPrefix prefixes environment overrides, e.g. SOUNDMATCH_GA_POP_SIZE.
const EnvPrefix = "SOUNDMATCH"

// Config is the full run configuration, decoded by viper.
type Config struct {
	// Estimator is ga, nsga3 or mayfly.
	Estimator string   `mapstructure:"estimator"`
	GA        GA       `mapstructure:"ga"`
	NSGA      NSGA     `mapstructure:"nsga"`
	Mayfly    Mayfly   `mapstructure:"mayfly"`
	Features  Features `mapstructure:"features"`
	Synth     Synth    `mapstructure:"synth"`
	Match     Match    `mapstructure:"match"`
	Server    Server   `mapstructure:"server"`
}

// GA configures the genetic estimator. Seed and Workers are shared with
// the other estimators.
type GA struct {
	PopSize   int     `mapstructure:"pop_size"`
	NGen      int     `mapstructure:"ngen"`
	CxPb      float64 `mapstructure:"cxpb"`
	MutPb     float64 `mapstructure:"mutpb"`
	Seed      *int64  `mapstructure:"seed"`
	Crossover string  `mapstructure:"crossover"`
	Distance  string  `mapstructure:"distance"`
	Workers   int     `mapstructure:"workers"`
}

type NSGA struct {
	PopSize   int     `mapstructure:"pop_size"`
	NGen      int     `mapstructure:"ngen"`
	CxPb      float64 `mapstructure:"cxpb"`
	MutPb     float64 `mapstructure:"mutpb"`
	Divisions int     `mapstructure:"divisions"`
	Bands     int     `mapstructure:"bands"`
	Distance  string  `mapstructure:"distance"`
}

type Mayfly struct {
	Variant    string `mapstructure:"variant"`
	PopSize    int    `mapstructure:"pop_size"`
	MaxEvals   int    `mapstructure:"max_evals"`
	RoundEvals int    `mapstructure:"round_evals"`
}

type Features struct {
	// Type is an extractor kind: stft, fft, mfcc, mel or spectral.
	Type             string `mapstructure:"type"`
	FrameSize        int    `mapstructure:"frame_size"`
	HopSize          int    `mapstructure:"hop_size"`
	CoefficientCount int    `mapstructure:"coefficient_count"`
	Mels             int    `mapstructure:"mels"`
	// ScaleAxis is time, feature, element or none. none disables scaling.
	ScaleAxis string `mapstructure:"scale_axis"`
	TimeMajor bool   `mapstructure:"time_major"`
}

// Synth configures the built-in synth and the rendered note.
type Synth struct {
	SampleRate   int     `mapstructure:"sample_rate"`
	ControlRate  int     `mapstructure:"control_rate"`
	NoteLength   float64 `mapstructure:"note_length"`
	RenderLength float64 `mapstructure:"render_length"`
	Note         int     `mapstructure:"note"`
	Velocity     int     `mapstructure:"velocity"`
	// Workers is the number of synth instances; 0 means GOMAXPROCS.
	Workers int `mapstructure:"workers"`
	// Patch is an optional patch state file applied before matching.
	Patch string `mapstructure:"patch"`
	// Overrides fixes parameters by name or index.
	Overrides map[string]float64 `mapstructure:"overrides"`
}

// Match configures the orchestrator shared by the CLI and the server.
type Match struct {
	// FitTarget mixes targets to mono, resamples them to the synth rate
	// and pads or trims them to the render length before extraction.
	FitTarget bool `mapstructure:"fit_target"`
}

type Server struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("estimator", "ga")

	v.SetDefault("ga.pop_size", 100)
	v.SetDefault("ga.ngen", 25)
	v.SetDefault("ga.cxpb", 0.5)
	v.SetDefault("ga.mutpb", 0.3)
	v.SetDefault("ga.crossover", "blend")
	v.SetDefault("ga.distance", "rmse")
	v.SetDefault("ga.workers", 0)

	v.SetDefault("nsga.pop_size", 100)
	v.SetDefault("nsga.ngen", 25)
	v.SetDefault("nsga.cxpb", 0.5)
	v.SetDefault("nsga.mutpb", 0.5)
	v.SetDefault("nsga.divisions", 12)
	v.SetDefault("nsga.bands", 1)
	v.SetDefault("nsga.distance", "mae")

	v.SetDefault("mayfly.variant", "desma")
	v.SetDefault("mayfly.pop_size", 10)
	v.SetDefault("mayfly.max_evals", 2000)
	v.SetDefault("mayfly.round_evals", 400)

	v.SetDefault("features.type", "mfcc")
	v.SetDefault("features.frame_size", 2048)
	v.SetDefault("features.hop_size", 512)
	v.SetDefault("features.coefficient_count", 20)
	v.SetDefault("features.mels", 128)
	v.SetDefault("features.scale_axis", "none")
	v.SetDefault("features.time_major", false)

	v.SetDefault("synth.sample_rate", 44100)
	v.SetDefault("synth.control_rate", 32)
	v.SetDefault("synth.note_length", 0.8)
	v.SetDefault("synth.render_length", 1.0)
	v.SetDefault("synth.note", 60)
	v.SetDefault("synth.velocity", 127)
	v.SetDefault("synth.workers", 0)
	v.SetDefault("synth.patch", "")

	v.SetDefault("match.fit_target", true)

	v.SetDefault("server.addr", ":8080")
}

// Default returns the built-in configuration.
func Default() Config {
	cfg, err := decode(newViper())
	if err != nil {
		// The defaults are static and always decode.
		panic(err)
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// No default, so AutomaticEnv alone would not reach Unmarshal.
	_ = v.BindEnv("ga.seed")
	return v
}

// Load reads path (any format viper understands, chosen by extension)
// over the defaults. An empty path loads defaults and environment only.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errs.Config("config", "read %s: %v", path, err)
		}
	}
	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Config("config", "decode: %v", err)
	}
	return cfg, nil
}

// Validate checks the values the component configs do not check
// themselves.
func (c Config) Validate() error {
	switch c.Estimator {
	case "ga", "nsga3", "mayfly":
	default:
		return errs.Config("config", "unknown estimator %q (ga, nsga3, mayfly)", c.Estimator)
	}
	if c.Synth.Workers < 0 {
		return errs.Config("config", "synth.workers must be >= 0, got %d", c.Synth.Workers)
	}
	if c.Server.Addr == "" {
		return errs.Config("config", "server.addr is empty")
	}
	return nil
}
