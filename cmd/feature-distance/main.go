package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cwbudde/algo-soundmatch/analysis"
	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/evaluation"
	"github.com/cwbudde/algo-soundmatch/features"
)

type result struct {
	Features  string             `json:"features"`
	Shape     []int              `json:"shape"`
	Distances evaluation.Metrics `json:"distances"`
	MFCCEval  evaluation.Metrics `json:"mfcc_eval,omitempty"`
	Compare   *analysis.Metrics  `json:"compare,omitempty"`
}

func main() {
	referencePath := flag.String("reference", "", "Reference WAV path")
	candidatePath := flag.String("candidate", "", "Candidate WAV path")
	featureType := flag.String("features", "mfcc", "Feature extractor: stft|fft|mfcc|mel|spectral")
	frameSize := flag.Int("frame-size", 2048, "Analysis frame size")
	hopSize := flag.Int("hop-size", 512, "Analysis hop size")
	coefficients := flag.Int("coefficients", 20, "MFCC coefficient count")
	distances := flag.String("distances", "all", "Comma-separated distances, or 'all'")
	mfccEval := flag.Bool("mfcc-eval", true, "Also report the independent MFCC evaluation with DTW")
	compare := flag.Bool("compare", true, "Also report the time/envelope/spectral comparison")
	jsonOut := flag.Bool("json", false, "Print results as JSON")
	flag.Parse()

	if *referencePath == "" || *candidatePath == "" {
		die("-reference and -candidate are required")
	}
	ref, err := audio.LoadWAV(*referencePath)
	if err != nil {
		die("failed to read reference: %v", err)
	}
	cand, err := audio.LoadWAV(*candidatePath)
	if err != nil {
		die("failed to read candidate: %v", err)
	}
	ref = ref.Mono()
	cand = cand.Mono()
	if cand.SampleRate != ref.SampleRate {
		if cand, err = cand.Resample(ref.SampleRate); err != nil {
			die("failed to resample candidate: %v", err)
		}
	}
	// Fixed-shape features need equal lengths.
	if cand.Frames() != ref.Frames() {
		cand = cand.Resize(ref.Frames())
	}

	cfg := features.DefaultConfig(features.Kind(*featureType))
	cfg.SampleRate = ref.SampleRate
	cfg.FrameSize = *frameSize
	cfg.HopSize = *hopSize
	cfg.Coefficients = *coefficients
	ex, err := features.New(cfg)
	if err != nil {
		die("invalid feature configuration: %v", err)
	}

	names := analysis.DistanceNames()
	if *distances != "all" {
		names = nil
		for _, n := range strings.Split(*distances, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	fe := evaluation.FeatureEval{Extractor: ex, Distances: names}
	scores, err := fe.EvaluateTarget(ref, []*audio.Signal{cand})
	if err != nil {
		die("feature distance failed: %v", err)
	}
	vec, err := ex.Features(ref)
	if err != nil {
		die("feature extraction failed: %v", err)
	}
	out := result{Features: *featureType, Shape: vec.Shape, Distances: scores[0]}

	if *mfccEval {
		m, err := evaluation.MFCCEval{}.EvaluateTarget(ref, []*audio.Signal{cand})
		if err != nil {
			die("mfcc evaluation failed: %v", err)
		}
		out.MFCCEval = m[0]
	}
	if *compare {
		m, err := analysis.Compare(ref, cand)
		if err != nil {
			die("compare failed: %v", err)
		}
		out.Compare = &m
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			die("json encode failed: %v", err)
		}
		return
	}

	fmt.Printf("Features: %s, shape %v\n", out.Features, out.Shape)
	printMetrics("Distance", out.Distances)
	if out.MFCCEval != nil {
		printMetrics("MFCC evaluation", out.MFCCEval)
	}
	if c := out.Compare; c != nil {
		fmt.Println()
		fmt.Printf("Lag:              %d samples (%.3f ms)\n", c.LagSamples, 1000.0*float64(c.LagSamples)/float64(c.SampleRate))
		fmt.Printf("Time RMSE:        %.6f\n", c.TimeRMSE)
		fmt.Printf("Envelope RMSE:    %.1f dB\n", c.EnvelopeRMSEDB)
		fmt.Printf("Spectral RMSE:    %.1f dB\n", c.SpectralRMSEDB)
		fmt.Printf("Decay slopes:     ref=%.1f dB/s  cand=%.1f dB/s\n", c.RefDecayDBPerS, c.CandDecayDBPerS)
		fmt.Printf("Score:            %.4f  (0 best, 1 worst)\n", c.Score)
		fmt.Printf("Similarity:       %.2f%%\n", c.Similarity*100.0)
	}
}

func printMetrics(title string, m evaluation.Metrics) {
	fmt.Println()
	fmt.Println(title)
	for _, k := range m.Names() {
		fmt.Printf("  %-20s %.6f\n", k, m[k])
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
