package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/algo-orrery/orrery"
	"github.com/cwbudde/algo-orrery/preset"
)

func TestInitCandidateKnobs(t *testing.T) {
	base := orrery.NewDefaultParams()
	defs, cand := initCandidate(base)

	if len(defs) != 7 {
		t.Fatalf("defs len = %d, want 7", len(defs))
	}
	if len(cand.Vals) != len(defs) {
		t.Fatalf("vals len = %d, want %d", len(cand.Vals), len(defs))
	}

	knobNames := map[string]bool{}
	for _, d := range defs {
		knobNames[d.Name] = true
	}
	for _, name := range []string{
		"fade_duration_s",
		"cutoff_base_hz",
		"cutoff_slope_hz_per_au",
		"reverb_delay_base_ms",
		"reverb_delay_slope_ms_per_au",
		"reverb_decay_base",
		"reverb_decay_slope_per_au",
	} {
		if !knobNames[name] {
			t.Fatalf("expected knob %q", name)
		}
	}

	for i, d := range defs {
		if d.Min >= d.Max {
			t.Fatalf("knob %q has empty range [%g, %g]", d.Name, d.Min, d.Max)
		}
		if cand.Vals[i] < d.Min || cand.Vals[i] > d.Max {
			t.Fatalf("knob %q initial value %g outside [%g, %g]", d.Name, cand.Vals[i], d.Min, d.Max)
		}
	}
}

func TestInitCandidateSeedsFromBase(t *testing.T) {
	base := orrery.NewDefaultParams()
	base.CutoffBaseHz = 6000
	base.ReverbDecayBase = 0.5

	defs, cand := initCandidate(base)
	for i, d := range defs {
		switch d.Name {
		case "cutoff_base_hz":
			if cand.Vals[i] != 6000 {
				t.Fatalf("cutoff_base_hz seed = %g, want 6000", cand.Vals[i])
			}
		case "reverb_decay_base":
			if cand.Vals[i] != 0.5 {
				t.Fatalf("reverb_decay_base seed = %g, want 0.5", cand.Vals[i])
			}
		}
	}
}

func TestFromNormalizedBounds(t *testing.T) {
	defs, _ := initCandidate(orrery.NewDefaultParams())

	lo := fromNormalized(make([]float64, len(defs)), defs)
	for i, d := range defs {
		if lo.Vals[i] != d.Min {
			t.Fatalf("knob %q at 0 = %g, want min %g", d.Name, lo.Vals[i], d.Min)
		}
	}

	ones := make([]float64, len(defs))
	for i := range ones {
		ones[i] = 1
	}
	hi := fromNormalized(ones, defs)
	for i, d := range defs {
		if hi.Vals[i] != d.Max {
			t.Fatalf("knob %q at 1 = %g, want max %g", d.Name, hi.Vals[i], d.Max)
		}
	}

	// Out-of-range positions clamp, short vectors fill with the minimum.
	over := fromNormalized([]float64{5, -3}, defs)
	if over.Vals[0] != defs[0].Max {
		t.Fatalf("clamped high = %g, want %g", over.Vals[0], defs[0].Max)
	}
	if over.Vals[1] != defs[1].Min {
		t.Fatalf("clamped low = %g, want %g", over.Vals[1], defs[1].Min)
	}
	if over.Vals[2] != defs[2].Min {
		t.Fatalf("missing dim = %g, want %g", over.Vals[2], defs[2].Min)
	}
}

func TestApplyCandidateMapsKnobs(t *testing.T) {
	base := orrery.NewDefaultParams()
	defs, cand := initCandidate(base)

	for i, d := range defs {
		switch d.Name {
		case "cutoff_base_hz":
			cand.Vals[i] = 9000
		case "reverb_decay_base":
			cand.Vals[i] = 0.55
		case "reverb_delay_base_ms":
			cand.Vals[i] = 120
		}
	}

	p := applyCandidate(base, defs, cand)
	if p.CutoffBaseHz != 9000 {
		t.Fatalf("CutoffBaseHz = %g, want 9000", p.CutoffBaseHz)
	}
	if p.ReverbDecayBase != 0.55 {
		t.Fatalf("ReverbDecayBase = %g, want 0.55", p.ReverbDecayBase)
	}
	if p.ReverbDelayBaseMs != 120 {
		t.Fatalf("ReverbDelayBaseMs = %g, want 120", p.ReverbDelayBaseMs)
	}
	if base.CutoffBaseHz == 9000 {
		t.Fatal("applyCandidate mutated the base voicing")
	}
}

func TestApplyCandidatePinsFadeToHalfCue(t *testing.T) {
	base := orrery.NewDefaultParams()
	base.CueDurationS = 0.1
	defs, cand := initCandidate(base)

	for i, d := range defs {
		if d.Name == "fade_duration_s" {
			cand.Vals[i] = 0.08
		}
	}

	p := applyCandidate(base, defs, cand)
	if p.FadeDurationS != 0.05 {
		t.Fatalf("FadeDurationS = %g, want pinned 0.05", p.FadeDurationS)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("pinned params invalid: %v", err)
	}
}

func TestWritePresetRoundTrip(t *testing.T) {
	base := orrery.NewDefaultParams()
	defs, cand := initCandidate(base)
	for i, d := range defs {
		switch d.Name {
		case "cutoff_base_hz":
			cand.Vals[i] = 7000
		case "cutoff_slope_hz_per_au":
			cand.Vals[i] = 350
		case "reverb_decay_slope_per_au":
			cand.Vals[i] = 0.07
		}
	}
	fitted := applyCandidate(base, defs, cand)
	fitted.BaseFrequencyByClass = map[orrery.ObjectClass]float64{
		orrery.ClassMoon: 540,
	}

	path := filepath.Join(t.TempDir(), "fitted.json")
	if err := writePresetJSON(path, fitted); err != nil {
		t.Fatalf("writePresetJSON: %v", err)
	}

	loaded, err := preset.LoadJSON(path)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if math.Abs(loaded.CutoffBaseHz-7000) > 1e-9 {
		t.Fatalf("loaded CutoffBaseHz = %g, want 7000", loaded.CutoffBaseHz)
	}
	if math.Abs(loaded.CutoffSlopeHzPerAU-350) > 1e-9 {
		t.Fatalf("loaded CutoffSlopeHzPerAU = %g, want 350", loaded.CutoffSlopeHzPerAU)
	}
	if math.Abs(loaded.ReverbDecaySlopePerAU-0.07) > 1e-9 {
		t.Fatalf("loaded ReverbDecaySlopePerAU = %g, want 0.07", loaded.ReverbDecaySlopePerAU)
	}
	if got := loaded.BaseFrequencyByClass[orrery.ClassMoon]; math.Abs(got-540) > 1e-9 {
		t.Fatalf("loaded moon base frequency = %g, want 540", got)
	}
}

func TestLoadCandidateFromReport(t *testing.T) {
	defs, fallback := initCandidate(orrery.NewDefaultParams())

	missing := filepath.Join(t.TempDir(), "missing.json")
	if _, ok, err := loadCandidateFromReport(missing, defs, fallback); err != nil || ok {
		t.Fatalf("missing report: ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	dir := t.TempDir()
	reportPath := filepath.Join(dir, "fit.report.json")
	rep := runReport{
		BestKnobs: map[string]float64{
			"cutoff_base_hz":    9000,
			"reverb_decay_base": 0.95, // outside the knob range, must clamp
		},
	}
	if err := writeJSON(reportPath, rep); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}

	cand, ok, err := loadCandidateFromReport(reportPath, defs, fallback)
	if err != nil || !ok {
		t.Fatalf("resume: ok=%v err=%v, want ok=true err=nil", ok, err)
	}
	for i, d := range defs {
		switch d.Name {
		case "cutoff_base_hz":
			if cand.Vals[i] != 9000 {
				t.Fatalf("resumed cutoff_base_hz = %g, want 9000", cand.Vals[i])
			}
		case "reverb_decay_base":
			if cand.Vals[i] != d.Max {
				t.Fatalf("resumed reverb_decay_base = %g, want clamped %g", cand.Vals[i], d.Max)
			}
		case "fade_duration_s":
			if cand.Vals[i] != fallback.Vals[i] {
				t.Fatalf("untouched knob changed: %g != %g", cand.Vals[i], fallback.Vals[i])
			}
		}
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := loadCandidateFromReport(corrupt, defs, fallback); err == nil {
		t.Fatal("corrupt report accepted")
	}
}

func TestReserveEval(t *testing.T) {
	var evals int64 = 8
	if n, ok := reserveEval(&evals, 10); !ok || n != 9 {
		t.Fatalf("reserveEval = (%d, %v), want (9, true)", n, ok)
	}
	if n, ok := reserveEval(&evals, 10); !ok || n != 10 {
		t.Fatalf("reserveEval = (%d, %v), want (10, true)", n, ok)
	}
	if _, ok := reserveEval(&evals, 10); ok {
		t.Fatal("reserveEval exceeded the budget")
	}
}
