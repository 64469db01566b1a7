package fitcommon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-soundmatch/analysis"
	"github.com/cwbudde/algo-soundmatch/estimator"
	"github.com/cwbudde/algo-soundmatch/match"
	"github.com/cwbudde/algo-soundmatch/synth"
)

// MatchReport summarizes one soundmatch run.
type MatchReport struct {
	TargetPath  string                      `json:"target_path"`
	OutputPatch string                      `json:"output_patch,omitempty"`
	OutputAudio string                      `json:"output_audio,omitempty"`
	Estimator   string                      `json:"estimator"`
	Seed        int64                       `json:"seed"`
	SampleRate  int                         `json:"sample_rate"`
	Render      synth.RenderSettings        `json:"render"`
	DurationSec float64                     `json:"elapsed_seconds"`
	Evaluations int                         `json:"evaluations"`
	InitialBest float64                     `json:"initial_best"`
	BestFitness float64                     `json:"best_fitness"`
	Objectives  []float64                   `json:"objectives,omitempty"`
	Patch       synth.Patch                 `json:"patch"`
	NamedPatch  map[string]float64          `json:"named_patch,omitempty"`
	Metrics     *analysis.Metrics           `json:"metrics,omitempty"`
	History     []estimator.GenerationStats `json:"history,omitempty"`
	FrontSize   int                         `json:"front_size,omitempty"`
	Overridden  map[string]float64          `json:"overridden,omitempty"`
}

// NewMatchReport fills the result fields of a report. names maps
// parameter indices to names and may be nil.
func NewMatchReport(res *match.Result, names []string) MatchReport {
	r := MatchReport{Patch: res.Patch, Metrics: res.Metrics}
	if res.Audio != nil {
		r.SampleRate = res.Audio.SampleRate
	}
	if p := res.Prediction; p != nil {
		r.Evaluations = p.Evaluations
		r.InitialBest = p.InitialBest
		r.BestFitness = p.Fitness
		r.Objectives = p.Objectives
		r.History = p.History
		r.FrontSize = len(p.Front)
	}
	if len(names) > 0 {
		r.NamedPatch = make(map[string]float64, len(res.Patch))
		for _, pv := range res.Patch {
			if pv.Index >= 0 && pv.Index < len(names) {
				r.NamedPatch[names[pv.Index]] = pv.Value
			}
		}
	}
	return r
}

// ReportPath derives "<output>.report.json" unless explicit is set.
func ReportPath(explicit, output string) string {
	if explicit != "" {
		return explicit
	}
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".report.json"
}

// WriteJSON writes v indented, creating parent directories.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o644)
}
