package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-orrery/analysis"
	"github.com/cwbudde/algo-orrery/internal/fitcommon"
	"github.com/cwbudde/algo-orrery/orrery"
	"github.com/cwbudde/algo-orrery/preset"
)

// knobDef bounds one voicing knob for the optimizer. Candidates move in
// normalized [0,1] space and map linearly into [Min, Max].
type knobDef struct {
	Name string
	Min  float64
	Max  float64
}

type candidate struct {
	Vals []float64
}

// fitTarget pins the cue the optimizer renders on every evaluation.
type fitTarget struct {
	class      orrery.ObjectClass
	position   orrery.Vec3
	complexity orrery.Complexity
}

type runReport struct {
	ReferencePath   string                 `json:"reference_path"`
	PresetPath      string                 `json:"preset_path"`
	OutputPreset    string                 `json:"output_preset"`
	SampleRate      int                    `json:"sample_rate"`
	Class           string                 `json:"class"`
	Position        [3]float64             `json:"position_au"`
	Complexity      string                 `json:"complexity"`
	ElapsedSeconds  float64                `json:"elapsed_seconds"`
	Evaluations     int                    `json:"evaluations"`
	MayflyVariant   string                 `json:"mayfly_variant"`
	BestScore       float64                `json:"best_score"`
	BestSimilarity  float64                `json:"best_similarity"`
	BestMetrics     analysis.StereoMetrics `json:"best_metrics"`
	BestKnobs       map[string]float64     `json:"best_knobs"`
	CheckpointCount int                    `json:"checkpoint_count"`
}

func main() {
	referencePath := flag.String("reference", "reference/cue.wav", "Reference WAV path")
	presetPath := flag.String("preset", "", "Base preset path, JSON or YAML (optional)")
	outputPreset := flag.String("output-preset", "assets/presets/fitted.json", "Path to write best fitted preset JSON")
	reportPath := flag.String("report", "", "Optional report JSON path (default: <output-preset>.report.json)")
	class := flag.String("class", "planet", "Object class of the fitted cue")
	x := flag.Float64("x", 5.2, "Cue X position in AU")
	y := flag.Float64("y", 0, "Cue Y position in AU")
	z := flag.Float64("z", 2, "Cue Z position in AU (nonzero exercises the reverb knobs)")
	complexity := flag.String("complexity", "complex", "Cue complexity for fitting (complex exercises every knob)")
	sampleRate := flag.Int("sample-rate", 44100, "Render/analysis sample rate")
	seed := flag.Int64("seed", 1, "Random seed")
	timeBudget := flag.Float64("time-budget", 120.0, "Optimization time budget in seconds")
	maxEvals := flag.Int("max-evals", 10000, "Maximum objective evaluations")
	reportEvery := flag.Int("report-every", 20, "Print progress every N evaluations")
	checkpointEvery := flag.Int("checkpoint-every", 1, "Write checkpoint every N best-score improvements")
	workersFlag := flag.String("workers", "auto", "Optimization worker count (integer >= 1 or 'auto')")
	writeBestCandidate := flag.String("write-best-candidate", "", "Optional WAV path to write best candidate render")
	resume := flag.Bool("resume", true, "Resume from previous best_knobs report when available")
	resumeReport := flag.String("resume-report", "", "Optional report JSON path to resume from (default: current report path)")

	mayflyVariant := flag.String("mayfly-variant", "desma", "Mayfly variant: ma|desma|olce|eobbma|gsasma|mpma|aoblmoa")
	mayflyPop := flag.Int("mayfly-pop", 10, "Male and female population size per Mayfly run")
	mayflyRoundEvals := flag.Int("mayfly-round-evals", 240, "Target eval budget per Mayfly round")
	flag.Parse()

	if *maxEvals < 1 {
		die("max-evals must be >= 1")
	}
	if *timeBudget <= 0 {
		die("time-budget must be > 0")
	}
	if *reportEvery < 1 {
		*reportEvery = 1
	}
	if *checkpointEvery < 1 {
		*checkpointEvery = 1
	}
	if *mayflyPop < 2 {
		*mayflyPop = 2
	}
	if *mayflyRoundEvals < *mayflyPop*2 {
		*mayflyRoundEvals = *mayflyPop * 2
	}

	workers, err := fitcommon.ParseWorkers(*workersFlag)
	if err != nil {
		die("invalid -workers: %v", err)
	}

	baseParams := orrery.NewDefaultParams()
	if *presetPath != "" {
		baseParams, err = preset.Load(*presetPath)
		if err != nil {
			die("failed to load preset: %v", err)
		}
	}
	baseParams.SampleRate = *sampleRate

	objClass, err := orrery.ParseObjectClass(*class)
	if err != nil {
		die("%v", err)
	}
	cueComplexity, err := orrery.ParseComplexity(*complexity)
	if err != nil {
		die("%v", err)
	}

	ref, refSR, err := fitcommon.ReadWAVStereo(*referencePath)
	if err != nil {
		die("failed to read reference: %v", err)
	}
	ref, err = fitcommon.ResampleStereoIfNeeded(ref, refSR, *sampleRate)
	if err != nil {
		die("failed to resample reference: %v", err)
	}

	defs, initCand := initCandidate(baseParams)
	if *resume {
		resumePath := *resumeReport
		if resumePath == "" {
			if *reportPath != "" {
				resumePath = *reportPath
			} else {
				resumePath = *outputPreset + ".report.json"
			}
		}
		if resumed, ok, err := loadCandidateFromReport(resumePath, defs, initCand); err != nil {
			fmt.Fprintf(os.Stderr, "resume skipped (%s): %v\n", resumePath, err)
		} else if ok {
			initCand = resumed
			fmt.Printf("Resumed candidate from %s\n", resumePath)
		}
	}

	cfg := &optimizationConfig{
		reference:     ref,
		baseParams:    baseParams,
		defs:          defs,
		initCandidate: initCand,
		target: fitTarget{
			class:      objClass,
			position:   orrery.Vec3{X: *x, Y: *y, Z: *z},
			complexity: cueComplexity,
		},
		sampleRate:         *sampleRate,
		seed:               *seed,
		timeBudget:         *timeBudget,
		maxEvals:           *maxEvals,
		reportEvery:        *reportEvery,
		checkpointEvery:    *checkpointEvery,
		mayflyVariant:      strings.ToLower(*mayflyVariant),
		mayflyPop:          *mayflyPop,
		mayflyRoundEvals:   *mayflyRoundEvals,
		workers:            workers,
		outputPreset:       *outputPreset,
		reportPath:         *reportPath,
		referencePath:      *referencePath,
		presetPath:         *presetPath,
		writeBestCandidate: *writeBestCandidate,
	}

	res, err := runOptimization(cfg)
	if err != nil {
		die("optimization failed: %v", err)
	}

	if err := writeOutputs(cfg, res.elapsed, res.evals, res.best, res.bestMetrics, res.checkpoints); err != nil {
		die("failed to write outputs: %v", err)
	}

	if *writeBestCandidate != "" {
		if err := writeBestCandidateSnapshot(*writeBestCandidate, cfg, res.best); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write best candidate wav: %v\n", err)
		}
	}

	fmt.Printf("Done evals=%d elapsed=%.1fs best_score=%.4f best_similarity=%.2f%% variant=%s\n",
		res.evals, res.elapsed, res.bestMetrics.Score, res.bestMetrics.Similarity*100.0, cfg.mayflyVariant)
}

// initCandidate builds the knob table and seeds the first candidate from the
// base voicing. Decay and delay bounds track the runtime clamps so every
// candidate value stays audible.
func initCandidate(base orrery.Params) ([]knobDef, candidate) {
	defs := []knobDef{
		{Name: "fade_duration_s", Min: 0.005, Max: 0.08},
		{Name: "cutoff_base_hz", Min: 2000, Max: 12000},
		{Name: "cutoff_slope_hz_per_au", Min: 100, Max: 1500},
		{Name: "reverb_delay_base_ms", Min: base.ReverbDelayMinMs, Max: base.ReverbDelayMaxMs},
		{Name: "reverb_delay_slope_ms_per_au", Min: 0, Max: 50},
		{Name: "reverb_decay_base", Min: base.ReverbDecayMin, Max: base.ReverbDecayMax},
		{Name: "reverb_decay_slope_per_au", Min: 0, Max: 0.1},
	}

	vals := []float64{
		base.FadeDurationS,
		base.CutoffBaseHz,
		base.CutoffSlopeHzPerAU,
		base.ReverbDelayBaseMs,
		base.ReverbDelaySlopeMsPerAU,
		base.ReverbDecayBase,
		base.ReverbDecaySlopePerAU,
	}
	for i := range vals {
		vals[i] = fitcommon.Clamp(vals[i], defs[i].Min, defs[i].Max)
	}
	return defs, candidate{Vals: vals}
}

// applyCandidate folds knob values into a copy of the base voicing.
func applyCandidate(base orrery.Params, defs []knobDef, c candidate) orrery.Params {
	p := base

	for i, def := range defs {
		v := c.Vals[i]
		switch def.Name {
		case "fade_duration_s":
			p.FadeDurationS = v
		case "cutoff_base_hz":
			p.CutoffBaseHz = v
		case "cutoff_slope_hz_per_au":
			p.CutoffSlopeHzPerAU = v
		case "reverb_delay_base_ms":
			p.ReverbDelayBaseMs = v
		case "reverb_delay_slope_ms_per_au":
			p.ReverbDelaySlopeMsPerAU = v
		case "reverb_decay_base":
			p.ReverbDecayBase = v
		case "reverb_decay_slope_per_au":
			p.ReverbDecaySlopePerAU = v
		}
	}

	// Fades past half the cue fail validation; pin to the render limit.
	if p.FadeDurationS*2 > p.CueDurationS {
		p.FadeDurationS = p.CueDurationS / 2
	}
	return p
}

// renderCandidate produces one cue with the candidate voicing. A fresh engine
// per render keeps the timbre cache from mixing candidates.
func renderCandidate(p orrery.Params, target fitTarget) ([]float32, error) {
	engine, err := orrery.NewEngine(p)
	if err != nil {
		return nil, err
	}

	sound, err := engine.CreateSpatialSound(orrery.AudioRequest{
		ObjectID: "fit",
		Class:    target.class,
		Position: target.position,
		Policy: orrery.Policy{
			Mode:         orrery.ModeTrueScale,
			Complexity:   target.complexity,
			MasterVolume: 1.0,
		},
	})
	if err != nil {
		return nil, err
	}
	return sound.Data, nil
}

func fromNormalized(pos []float64, defs []knobDef) candidate {
	vals := make([]float64, len(defs))
	for i := range defs {
		x := 0.0
		if i < len(pos) {
			x = fitcommon.Clamp(pos[i], 0, 1)
		}
		vals[i] = defs[i].Min + x*(defs[i].Max-defs[i].Min)
	}
	return candidate{Vals: vals}
}

func loadCandidateFromReport(path string, defs []knobDef, fallback candidate) (candidate, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fallback, false, nil
		}
		return fallback, false, err
	}
	var rep runReport
	if err := json.Unmarshal(b, &rep); err != nil {
		return fallback, false, err
	}
	if len(rep.BestKnobs) == 0 {
		return fallback, false, nil
	}

	vals := make([]float64, len(fallback.Vals))
	copy(vals, fallback.Vals)
	updated := false
	for i, d := range defs {
		if v, ok := rep.BestKnobs[d.Name]; ok {
			vals[i] = fitcommon.Clamp(v, d.Min, d.Max)
			updated = true
		}
	}
	if !updated {
		return fallback, false, nil
	}
	return candidate{Vals: vals}, true, nil
}

func writeOutputs(cfg *optimizationConfig, elapsed float64, evals int, best candidate, bestM analysis.StereoMetrics, checkpoints int) error {
	p := applyCandidate(cfg.baseParams, cfg.defs, best)
	if err := writePresetJSON(cfg.outputPreset, p); err != nil {
		return err
	}

	knobs := make(map[string]float64, len(cfg.defs))
	for i, d := range cfg.defs {
		knobs[d.Name] = best.Vals[i]
	}
	rep := runReport{
		ReferencePath:   cfg.referencePath,
		PresetPath:      cfg.presetPath,
		OutputPreset:    cfg.outputPreset,
		SampleRate:      cfg.sampleRate,
		Class:           cfg.target.class.String(),
		Position:        [3]float64{cfg.target.position.X, cfg.target.position.Y, cfg.target.position.Z},
		Complexity:      cfg.target.complexity.String(),
		ElapsedSeconds:  elapsed,
		Evaluations:     evals,
		MayflyVariant:   cfg.mayflyVariant,
		BestScore:       bestM.Score,
		BestSimilarity:  bestM.Similarity,
		BestMetrics:     bestM,
		BestKnobs:       knobs,
		CheckpointCount: checkpoints,
	}

	reportPath := cfg.reportPath
	if reportPath == "" {
		reportPath = cfg.outputPreset + ".report.json"
	}
	return writeJSON(reportPath, rep)
}

func writeBestCandidateSnapshot(path string, cfg *optimizationConfig, best candidate) error {
	p := applyCandidate(cfg.baseParams, cfg.defs, best)
	stereo, err := renderCandidate(p, cfg.target)
	if err != nil {
		return err
	}
	return fitcommon.WriteStereoInterleavedWAV(path, stereo, p.SampleRate)
}

func writePresetJSON(path string, p orrery.Params) error {
	f := preset.File{
		CueDurationS:            &p.CueDurationS,
		FadeDurationS:           &p.FadeDurationS,
		FreqSlopeHzPerAU:        &p.FreqSlopeHzPerAU,
		CutoffBaseHz:            &p.CutoffBaseHz,
		CutoffSlopeHzPerAU:      &p.CutoffSlopeHzPerAU,
		CutoffFloorHz:           &p.CutoffFloorHz,
		ReverbDelayBaseMs:       &p.ReverbDelayBaseMs,
		ReverbDelaySlopeMsPerAU: &p.ReverbDelaySlopeMsPerAU,
		ReverbDecayBase:         &p.ReverbDecayBase,
		ReverbDecaySlopePerAU:   &p.ReverbDecaySlopePerAU,
		GainFloor:               &p.GainFloor,
		GainCeil:                &p.GainCeil,
		UseConvolutionReverb:    &p.UseConvolutionReverb,
	}
	if len(p.BaseFrequencyByClass) > 0 {
		f.PerClass = make(map[string]preset.ClassSetting, len(p.BaseFrequencyByClass))
		for class, freq := range p.BaseFrequencyByClass {
			fr := freq
			f.PerClass[class.String()] = preset.ClassSetting{BaseFrequency: &fr}
		}
	}
	return writeJSON(path, f)
}

func writeJSON(path string, v any) error {
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

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
