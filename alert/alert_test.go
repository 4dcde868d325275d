package alert

import (
	"math"
	"testing"
)

func TestGenerateBasic(t *testing.T) {
	cfg := DefaultConfig()

	out, err := Generate(EventFlare, cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	wantFrames := int(cfg.DurationS * float64(cfg.SampleRate))
	if len(out) != 2*wantFrames {
		t.Fatalf("unexpected output length: %d, want %d", len(out), 2*wantFrames)
	}

	maxAbs := 0.0
	energy := 0.0
	for i := 0; i < len(out); i += 2 {
		if math.IsNaN(float64(out[i])) || math.IsInf(float64(out[i]), 0) {
			t.Fatalf("non-finite sample at %d", i)
		}
		if out[i] != out[i+1] {
			t.Fatalf("expected dual-mono output at frame %d: L=%f R=%f", i/2, out[i], out[i+1])
		}
		if a := math.Abs(float64(out[i])); a > maxAbs {
			maxAbs = a
		}
		energy += float64(out[i] * out[i])
	}
	if energy <= 1e-8 {
		t.Fatal("expected non-zero energy")
	}
	if math.Abs(maxAbs-cfg.NormalizePeak) > 1e-4 {
		t.Fatalf("unexpected normalization peak: %.6f, want %.2f", maxAbs, cfg.NormalizePeak)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := DefaultConfig()

	a, err := Generate(EventStorm, cfg)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	b, err := Generate(EventStorm, cfg)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("non-deterministic output at index %d", i)
		}
	}
}

func TestEventCarrierFrequencies(t *testing.T) {
	tests := []struct {
		event Event
		freq  float64
	}{
		{EventFlare, 220},
		{EventCME, 330},
		{EventStorm, 165},
	}
	for _, tt := range tests {
		if got := tt.event.Frequency(); got != tt.freq {
			t.Errorf("%s carrier = %g, want %g", tt.event, got, tt.freq)
		}

		cfg := DefaultConfig()
		cfg.DurationS = 0.5
		out, err := Generate(tt.event, cfg)
		if err != nil {
			t.Fatalf("Generate %s: %v", tt.event, err)
		}
		left := make([]float32, len(out)/2)
		for i := range left {
			left[i] = out[2*i]
		}
		measured := measureCarrier(left, float64(cfg.SampleRate))
		if math.Abs(measured-tt.freq) > 10 {
			t.Errorf("%s: measured carrier %.1f Hz, want %.0f Hz", tt.event, measured, tt.freq)
		}
	}
}

// measureCarrier estimates pitch by zero crossings. The tremolo scales
// amplitude only, so crossings still track the carrier.
func measureCarrier(samples []float32, sampleRate float64) float64 {
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] < 0 && samples[i] >= 0) || (samples[i-1] >= 0 && samples[i] < 0) {
			crossings++
		}
	}
	if crossings == 0 {
		return 0
	}
	duration := float64(len(samples)) / sampleRate
	return float64(crossings) / (2.0 * duration)
}

func TestGeneratePulsesAtTremoloRate(t *testing.T) {
	cfg := DefaultConfig()
	out, err := Generate(EventCME, cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// At 4 Hz over 2 s the envelope bottoms out 8 times. Count windows whose
	// energy is near zero between loud neighbours.
	frames := len(out) / 2
	window := cfg.SampleRate / 100 // 10 ms
	var envelope []float64
	for start := 0; start+window <= frames; start += window {
		var sum float64
		for i := start; i < start+window; i++ {
			v := float64(out[2*i])
			sum += v * v
		}
		envelope = append(envelope, math.Sqrt(sum/float64(window)))
	}

	peak := 0.0
	for _, e := range envelope {
		if e > peak {
			peak = e
		}
	}
	dips := 0
	inDip := false
	for _, e := range envelope {
		if e < peak*0.05 {
			if !inDip {
				dips++
				inDip = true
			}
		} else {
			inDip = false
		}
	}
	want := int(cfg.DurationS * cfg.TremoloRateHz)
	if dips < want-2 || dips > want+2 {
		t.Errorf("envelope dips = %d, want about %d", dips, want)
	}
}

func TestParseEventRoundTrip(t *testing.T) {
	for _, e := range Events() {
		parsed, err := ParseEvent(e.String())
		if err != nil {
			t.Fatalf("ParseEvent(%q): %v", e.String(), err)
		}
		if parsed != e {
			t.Errorf("round trip %s -> %s", e, parsed)
		}
	}
	if _, err := ParseEvent("supernova"); err == nil {
		t.Error("expected error for unknown event name")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero sample rate")
	}

	cfg = DefaultConfig()
	cfg.TremoloDepth = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero tremolo depth")
	}

	cfg = DefaultConfig()
	cfg.FadeS = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for fade beyond half duration")
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("unexpected error for default config: %v", err)
	}
}
