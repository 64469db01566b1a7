package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/internal/config"
	fitcommon "github.com/cwbudde/algo-soundmatch/internal/fitcommon"
	"github.com/cwbudde/algo-soundmatch/preset"
	"github.com/cwbudde/algo-soundmatch/synth/subsynth"
)

func main() {
	configPath := flag.String("config", "", "Optional config file (yaml, json or toml)")
	targetPath := flag.String("target", "", "Target WAV path")
	estimatorName := flag.String("estimator", "ga", "Estimator: ga|nsga3|mayfly")
	pop := flag.Int("pop", 100, "Population size (ga, nsga3, mayfly)")
	ngen := flag.Int("ngen", 25, "Generations (ga, nsga3)")
	maxEvals := flag.Int("max-evals", 2000, "Evaluation budget (mayfly)")
	seed := flag.Int64("seed", 1, "Random seed")
	workers := flag.String("workers", "auto", "Synth instances and fitness workers (number or 'auto')")
	featureType := flag.String("features", "mfcc", "Feature extractor: stft|fft|mfcc|mel|spectral")
	sampleRate := flag.Int("sample-rate", 44100, "Synth and analysis sample rate")
	renderLength := flag.Float64("render-length", 1.0, "Render length in seconds")
	noteLength := flag.Float64("note-length", 0.8, "Seconds before NoteOff")
	note := flag.Int("note", 60, "MIDI note to render")
	fitTarget := flag.Bool("fit-target", true, "Resample and trim the target to the render length")
	outputPatch := flag.String("output-patch", "out/match.json", "Path to write the matched patch state")
	outputAudio := flag.String("output-audio", "", "Optional path to write the rendered match WAV")
	reportPath := flag.String("report", "", "Optional report JSON path (default: <output-patch>.report.json)")
	verbose := flag.Bool("v", false, "Log every generation")
	flag.Parse()

	if *targetPath == "" {
		die("-target is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		die("failed to load config: %v", err)
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["estimator"] {
		cfg.Estimator = *estimatorName
	}
	if set["pop"] {
		cfg.GA.PopSize, cfg.NSGA.PopSize, cfg.Mayfly.PopSize = *pop, *pop, *pop
	}
	if set["ngen"] {
		cfg.GA.NGen, cfg.NSGA.NGen = *ngen, *ngen
	}
	if set["max-evals"] {
		cfg.Mayfly.MaxEvals = *maxEvals
	}
	if set["seed"] || cfg.GA.Seed == nil {
		s := *seed
		cfg.GA.Seed = &s
	}
	if set["workers"] {
		n, err := fitcommon.ParseWorkers(*workers)
		if err != nil {
			die("invalid workers value: %v", err)
		}
		cfg.Synth.Workers = n
	}
	if set["features"] {
		cfg.Features.Type = *featureType
	}
	if set["sample-rate"] {
		cfg.Synth.SampleRate = *sampleRate
	}
	if set["render-length"] {
		cfg.Synth.RenderLength = *renderLength
	}
	if set["note-length"] {
		cfg.Synth.NoteLength = *noteLength
	}
	if set["note"] {
		cfg.Synth.Note = *note
	}
	if set["fit-target"] {
		cfg.Match.FitTarget = *fitTarget
	}
	if err := cfg.Validate(); err != nil {
		die("invalid configuration: %v", err)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	m, err := cfg.Matcher(log)
	if err != nil {
		die("failed to set up matcher: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Matching %s with %s (seed %d, %d Hz, %.2fs render)...\n",
		*targetPath, cfg.Estimator, *cfg.GA.Seed, cfg.Synth.SampleRate, cfg.Synth.RenderLength)
	start := time.Now()
	res, err := m.MatchFile(ctx, *targetPath)
	if err != nil {
		die("match failed: %v", err)
	}
	elapsed := time.Since(start)

	over, err := cfg.Overrides()
	if err != nil {
		die("invalid overrides: %v", err)
	}
	state, err := subsynth.New(cfg.SynthConfig())
	if err != nil {
		die("failed to create synth: %v", err)
	}
	if cfg.Synth.Patch != "" {
		if err := preset.Load(cfg.Synth.Patch, state); err != nil {
			die("failed to load patch: %v", err)
		}
	}
	merged := state.Overridden()
	for k, v := range over {
		merged[k] = v
	}
	if err := state.SetOverriddenParameters(merged); err != nil {
		die("failed to apply overrides: %v", err)
	}
	if err := state.SetPatch(res.Patch); err != nil {
		die("failed to apply matched patch: %v", err)
	}
	if err := preset.Save(*outputPatch, state); err != nil {
		die("failed to write patch: %v", err)
	}
	if *outputAudio != "" {
		if err := audio.SaveWAV(*outputAudio, res.Audio); err != nil {
			die("failed to write audio: %v", err)
		}
	}

	names := subsynth.ParameterNames()
	rep := fitcommon.NewMatchReport(res, names)
	rep.TargetPath = *targetPath
	rep.OutputPatch = *outputPatch
	rep.OutputAudio = *outputAudio
	rep.Estimator = cfg.Estimator
	rep.Seed = *cfg.GA.Seed
	rep.Render = cfg.RenderSettings()
	rep.DurationSec = elapsed.Seconds()
	if len(merged) > 0 {
		rep.Overridden = make(map[string]float64, len(merged))
		for idx, v := range merged {
			rep.Overridden[names[idx]] = v
		}
	}
	report := fitcommon.ReportPath(*reportPath, *outputPatch)
	if err := fitcommon.WriteJSON(report, rep); err != nil {
		die("failed to write report: %v", err)
	}

	p := res.Prediction
	fmt.Printf("Done in %.1fs: %d evaluations, fitness %.6f (generation 0 best %.6f)\n",
		elapsed.Seconds(), p.Evaluations, p.Fitness, p.InitialBest)
	if res.Metrics != nil {
		fmt.Printf("Similarity to target: %.2f%% (score %.4f)\n", res.Metrics.Similarity*100, res.Metrics.Score)
	}
	if len(p.Front) > 0 {
		fmt.Printf("Pareto front: %d solutions\n", len(p.Front))
	}
	fmt.Println()
	for _, pv := range res.Patch {
		marker := ""
		if _, ok := merged[pv.Index]; ok {
			marker = " (fixed)"
		}
		fmt.Printf("  %-18s %.4f%s\n", names[pv.Index], pv.Value, marker)
	}
	fmt.Printf("\nWrote %s and %s\n", *outputPatch, report)
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
