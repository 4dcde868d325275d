package dsp

import (
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

// Biquad implements a second-order IIR filter (no heap allocations in Process).
// Coefficients and state are kept in float64 so cascaded stages stay stable at
// low cutoff frequencies.
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64

	x1, x2 float64 // input history
	y1, y2 float64 // output history
}

// NewBiquad creates a biquad filter with the given normalized coefficients.
func NewBiquad(b0, b1, b2, a1, a2 float64) *Biquad {
	return &Biquad{
		b0: b0,
		b1: b1,
		b2: b2,
		a1: a1,
		a2: a2,
	}
}

// Process runs one sample through the filter (Direct Form I).
func (b *Biquad) Process(input float32) float32 {
	in := float64(input)
	out := b.b0*in + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2

	b.x2 = b.x1
	b.x1 = in
	b.y2 = b.y1
	b.y1 = dspcore.FlushDenormals(out)

	return float32(out)
}

// ProcessBuffer filters samples in place.
func (b *Biquad) ProcessBuffer(samples []float32) {
	for i, s := range samples {
		samples[i] = b.Process(s)
	}
}

// Reset clears the filter state.
func (b *Biquad) Reset() {
	b.x1, b.x2 = 0, 0
	b.y1, b.y2 = 0, 0
}

// NewLowpass creates a lowpass biquad using the RBJ cookbook formulation.
func NewLowpass(cutoff, sampleRate, q float64) *Biquad {
	w0 := 2.0 * math.Pi * cutoff / sampleRate
	alpha := math.Sin(w0) / (2.0 * q)
	cosw0 := math.Cos(w0)

	b0 := (1.0 - cosw0) / 2.0
	b1 := 1.0 - cosw0
	b2 := (1.0 - cosw0) / 2.0
	a0 := 1.0 + alpha
	a1 := -2.0 * cosw0
	a2 := 1.0 - alpha

	return NewBiquad(b0/a0, b1/a0, b2/a0, a1/a0, a2/a0)
}

// DelayLine implements a circular buffer for delay.
type DelayLine struct {
	buffer   []float32
	writePos int
	size     int
}

// NewDelayLine creates a delay line holding size samples.
func NewDelayLine(size int) *DelayLine {
	if size < 1 {
		size = 1
	}
	return &DelayLine{
		buffer: make([]float32, size),
		size:   size,
	}
}

// Write pushes a sample into the delay line.
func (d *DelayLine) Write(sample float32) {
	d.buffer[d.writePos] = sample
	d.writePos = (d.writePos + 1) % d.size
}

// Read returns the sample delay steps behind the write position. Reading
// before writing sample i yields sample i-delay, or zero when the line has
// not wrapped that far yet.
func (d *DelayLine) Read(delay int) float32 {
	readPos := (d.writePos - delay%d.size + d.size) % d.size
	return d.buffer[readPos]
}

// Reset clears the delay line.
func (d *DelayLine) Reset() {
	for i := range d.buffer {
		d.buffer[i] = 0
	}
	d.writePos = 0
}
