// Package alert synthesizes the space-weather warning tones. Unlike the
// per-object cues these are long, pulsing signals meant to cut through the
// ambient sonification, so they get their own fixed voicing instead of the
// distance-driven pipeline.
package alert

import (
	"fmt"
	"math"
)

// Event identifies a space-weather warning.
type Event int

const (
	// EventFlare is a solar flare warning.
	EventFlare Event = iota
	// EventCME is a coronal mass ejection warning.
	EventCME
	// EventStorm is a geomagnetic storm warning.
	EventStorm
)

// Frequency returns the carrier pitch for the event. Storms sit an octave
// below flares so the three warnings stay distinguishable by ear.
func (e Event) Frequency() float64 {
	switch e {
	case EventFlare:
		return 220.0
	case EventCME:
		return 330.0
	case EventStorm:
		return 165.0
	default:
		return 220.0
	}
}

func (e Event) String() string {
	switch e {
	case EventFlare:
		return "flare"
	case EventCME:
		return "cme"
	case EventStorm:
		return "storm"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// ParseEvent converts an event name back to its enum value.
func ParseEvent(s string) (Event, error) {
	switch s {
	case "flare":
		return EventFlare, nil
	case "cme":
		return EventCME, nil
	case "storm":
		return EventStorm, nil
	default:
		return EventFlare, fmt.Errorf("unknown warning event %q", s)
	}
}

// Events returns all warning events, in carrier-frequency order of severity.
func Events() []Event {
	return []Event{EventFlare, EventCME, EventStorm}
}

// Config controls warning tone synthesis.
type Config struct {
	SampleRate    int
	DurationS     float64
	TremoloRateHz float64
	TremoloDepth  float64
	FadeS         float64
	// NormalizePeak rescales the result so the absolute peak hits this value.
	// Zero or negative disables normalization.
	NormalizePeak float64
}

// DefaultConfig returns the nominal warning voicing: two seconds of carrier
// under a 4 Hz full-depth tremolo, normalized to half scale.
func DefaultConfig() Config {
	return Config{
		SampleRate:    44100,
		DurationS:     2.0,
		TremoloRateHz: 4.0,
		TremoloDepth:  1.0,
		FadeS:         0.05,
		NormalizePeak: 0.5,
	}
}

// Validate checks config ranges.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.DurationS <= 0 {
		return fmt.Errorf("duration must be positive, got %g", c.DurationS)
	}
	if c.TremoloRateHz <= 0 {
		return fmt.Errorf("tremolo rate must be positive, got %g", c.TremoloRateHz)
	}
	if c.TremoloDepth <= 0 || c.TremoloDepth > 1 {
		return fmt.Errorf("tremolo depth must be in (0, 1], got %g", c.TremoloDepth)
	}
	if c.FadeS < 0 || c.FadeS*2 > c.DurationS {
		return fmt.Errorf("fade must be in [0, duration/2], got %g", c.FadeS)
	}
	return nil
}

// Generate renders the warning tone for event as interleaved dual-mono
// stereo. The carrier is amplitude modulated by the tremolo so the tone
// pulses; output is deterministic for equal inputs.
func Generate(event Event, cfg Config) ([]float32, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := int(cfg.DurationS * float64(cfg.SampleRate))
	carrierStep := 2 * math.Pi * event.Frequency() / float64(cfg.SampleRate)
	tremoloStep := 2 * math.Pi * cfg.TremoloRateHz / float64(cfg.SampleRate)

	mono := make([]float64, n)
	for i := range mono {
		carrier := math.Sin(carrierStep * float64(i))
		// Depth 1 gates the carrier all the way to silence each cycle.
		tremolo := 1 - cfg.TremoloDepth + cfg.TremoloDepth*(math.Sin(tremoloStep*float64(i))+1)/2
		mono[i] = carrier * tremolo
	}

	applyLinearFades(mono, int(cfg.FadeS*float64(cfg.SampleRate)))

	if cfg.NormalizePeak > 0 {
		peak := 0.0
		for _, v := range mono {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
		if peak > 0 {
			scale := cfg.NormalizePeak / peak
			for i := range mono {
				mono[i] *= scale
			}
		}
	}

	out := make([]float32, 2*n)
	for i, v := range mono {
		s := float32(v)
		out[2*i] = s
		out[2*i+1] = s
	}
	return out, nil
}

func applyLinearFades(samples []float64, fadeN int) {
	n := len(samples)
	if fadeN <= 0 || n == 0 {
		return
	}
	if fadeN > n/2 {
		fadeN = n / 2
	}
	if fadeN == 1 {
		samples[0] = 0
		samples[n-1] = 0
		return
	}
	den := float64(fadeN - 1)
	for i := 0; i < fadeN; i++ {
		g := float64(i) / den
		samples[i] *= g
		samples[n-1-i] *= g
	}
}
