package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/preset"
	"github.com/cwbudde/algo-soundmatch/synth"
	"github.com/cwbudde/algo-soundmatch/synth/subsynth"
)

func main() {
	patchPath := flag.String("patch", "", "Patch state JSON to load (optional)")
	setValues := flag.String("set", "", "Comma-separated parameter=value pairs, by name or index (e.g. \"Filter Cutoff=0.3,0=0.5\")")
	randomSeed := flag.Int64("random", -1, "Randomize non-overridden parameters with this seed (<0 disables)")
	note := flag.Int("note", 60, "MIDI note number")
	velocity := flag.Int("velocity", 127, "MIDI velocity (0-127)")
	noteLength := flag.Float64("note-length", 0.8, "Seconds before NoteOff")
	duration := flag.Float64("duration", 1.0, "Render length in seconds")
	sampleRate := flag.Int("sample-rate", 44100, "Render sample rate in Hz")
	output := flag.String("output", "output.wav", "Output WAV file path")
	savePatch := flag.String("save-patch", "", "Optional path to write the rendered patch state")
	list := flag.Bool("list", false, "List parameters and exit")
	flag.Parse()

	s, err := subsynth.New(subsynth.Config{SampleRate: *sampleRate, ControlRate: subsynth.DefaultConfig().ControlRate})
	if err != nil {
		die("failed to create synth: %v", err)
	}
	if *patchPath != "" {
		if err := preset.Load(*patchPath, s); err != nil {
			die("failed to load patch: %v", err)
		}
	}
	if *randomSeed >= 0 {
		s.RandomizePatch(rand.New(rand.NewSource(*randomSeed)), true)
	}
	if *setValues != "" {
		patch, err := parseSet(*setValues)
		if err != nil {
			die("invalid -set: %v", err)
		}
		if err := s.SetPatch(patch); err != nil {
			die("failed to apply -set: %v", err)
		}
	}

	if *list {
		over := s.Overridden()
		for _, p := range s.Parameters() {
			marker := ""
			if _, ok := over[p.Index]; ok {
				marker = " (overridden)"
			}
			fmt.Printf("%2d  %-18s %.4f%s\n", p.Index, p.Name, p.Value, marker)
		}
		return
	}

	rs := synth.RenderSettings{NoteLength: *noteLength, RenderLength: *duration, Note: *note, Velocity: *velocity}
	fmt.Printf("Rendering note %d, velocity %d, for %.2f seconds at %d Hz...\n", *note, *velocity, *duration, *sampleRate)
	out, err := s.RenderPatch(rs)
	if err != nil {
		die("render failed: %v", err)
	}
	if err := audio.SaveWAV(*output, out); err != nil {
		die("failed to write %s: %v", *output, err)
	}
	if *savePatch != "" {
		if err := preset.Save(*savePatch, s); err != nil {
			die("failed to write patch: %v", err)
		}
	}
	fmt.Printf("Wrote %s (%d frames, peak %.3f, rms %.3f)\n", *output, out.Frames(), out.Peak(), out.RMS())
}

func parseSet(raw string) (synth.Patch, error) {
	var patch synth.Patch
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, val, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("%q is not parameter=value", item)
		}
		key = strings.TrimSpace(key)
		idx, found := subsynth.ParameterIndex(key)
		if !found {
			n, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("unknown parameter %q", key)
			}
			idx = n
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", key, err)
		}
		patch = append(patch, synth.ParamValue{Index: idx, Value: v})
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	return patch, nil
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
