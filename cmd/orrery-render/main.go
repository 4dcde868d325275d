package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-orrery/alert"
	"github.com/cwbudde/algo-orrery/internal/fitcommon"
	"github.com/cwbudde/algo-orrery/orrery"
	"github.com/cwbudde/algo-orrery/preset"
)

func main() {
	// Command-line flags
	class := flag.String("class", "planet", "Object class (star, planet, dwarf-planet, moon, asteroid, comet, spacecraft)")
	x := flag.Float64("x", 5.2, "Object X position in AU (left/right axis)")
	y := flag.Float64("y", 0, "Object Y position in AU")
	z := flag.Float64("z", 0, "Object Z position in AU (depth axis)")
	parent := flag.String("parent", "", "Orbital parent position as \"x,y,z\" in AU (optional)")
	mode := flag.String("mode", "hierarchical", "Geometry mode (hierarchical or true-scale)")
	complexity := flag.String("complexity", "moderate", "Cue complexity (simple, moderate, complex)")
	volume := flag.Float64("volume", 1.0, "Master volume (0-1)")
	sampleRate := flag.Int("sample-rate", 44100, "Render sample rate in Hz")
	presetPath := flag.String("preset", "", "Preset file path, JSON or YAML (optional)")
	warning := flag.String("warning", "", "Render a warning tone instead of a cue (flare, cme, storm)")
	output := flag.String("output", "output.wav", "Output WAV file path")
	flag.Parse()

	if *warning != "" {
		renderWarning(*warning, *sampleRate, *output)
		return
	}

	// Load voicing
	params := orrery.NewDefaultParams()
	if *presetPath != "" {
		loaded, err := preset.Load(*presetPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading preset %q: %v\n", *presetPath, err)
			os.Exit(1)
		}
		params = loaded
	}
	params.SampleRate = *sampleRate

	objClass, err := orrery.ParseObjectClass(*class)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	audioMode, err := orrery.ParseAudioMode(*mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cueComplexity, err := orrery.ParseComplexity(*complexity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var parentPos *orrery.Vec3
	if *parent != "" {
		v, err := parseVec3(*parent)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing -parent: %v\n", err)
			os.Exit(1)
		}
		parentPos = &v
	}

	engine, err := orrery.NewEngine(params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	_, dist := orrery.NewPositionResolver(params).Resolve(
		orrery.Vec3{X: *x, Y: *y, Z: *z}, parentPos, audioMode)
	freq := orrery.NewToneSynthesizer(params).Frequency(objClass, dist)
	fmt.Printf("Rendering %s cue at (%g, %g, %g) AU (%.2f AU, %.1f Hz), mode %s, complexity %s...\n",
		*class, *x, *y, *z, dist, freq, *mode, *complexity)

	sound, err := engine.CreateSpatialSound(orrery.AudioRequest{
		ObjectID: "cli",
		Class:    objClass,
		Position: orrery.Vec3{X: *x, Y: *y, Z: *z},
		Parent:   parentPos,
		Policy: orrery.Policy{
			Mode:         audioMode,
			Complexity:   cueComplexity,
			MasterVolume: *volume,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering cue: %v\n", err)
		os.Exit(1)
	}

	// Write to WAV file
	if err := fitcommon.WriteStereoInterleavedWAV(*output, sound.Data, sound.SampleRate); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing WAV file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully wrote %s (%d frames, %.0f ms, gain %.3f, RMS %.4f)\n",
		*output, sound.Frames(), sound.Duration().Seconds()*1000,
		float64(sound.Gain), fitcommon.StereoRMS(sound.Data))
}

func renderWarning(name string, sampleRate int, output string) {
	event, err := alert.ParseEvent(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg := alert.DefaultConfig()
	cfg.SampleRate = sampleRate

	fmt.Printf("Rendering %s warning tone at %d Hz...\n", event, sampleRate)

	samples, err := alert.Generate(event, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering warning: %v\n", err)
		os.Exit(1)
	}

	if err := fitcommon.WriteStereoInterleavedWAV(output, samples, sampleRate); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing WAV file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully wrote %s (%d frames, RMS %.4f)\n",
		output, len(samples)/2, fitcommon.StereoRMS(samples))
}

func parseVec3(s string) (orrery.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return orrery.Vec3{}, fmt.Errorf("want \"x,y,z\", got %q", s)
	}

	var out [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orrery.Vec3{}, fmt.Errorf("component %d of %q: %w", i+1, s, err)
		}
		out[i] = v
	}
	return orrery.Vec3{X: out[0], Y: out[1], Z: out[2]}, nil
}
