package fitcommon

import (
	"math"
	"path/filepath"
	"testing"
)

func TestParseWorkers(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "1", want: 1},
		{in: "8", want: 8},
		{in: "auto", want: 0},
		{in: "AUTO", want: 0},
		{in: " 4 ", want: 4},
		{in: "0", wantErr: true},
		{in: "-2", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseWorkers(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseWorkers(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseWorkers(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseWorkers(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(0.5, 0, 1); got != 0.5 {
		t.Fatalf("Clamp inside = %v, want 0.5", got)
	}
	if got := Clamp(-2, 0, 1); got != 0 {
		t.Fatalf("Clamp below = %v, want 0", got)
	}
	if got := Clamp(7, 0, 1); got != 1 {
		t.Fatalf("Clamp above = %v, want 1", got)
	}
}

func TestStereoToMono64(t *testing.T) {
	st := []float32{0.2, 0.4, -0.6, -0.2}
	mono := StereoToMono64(st)
	if len(mono) != 2 {
		t.Fatalf("mono length = %d, want 2", len(mono))
	}
	if math.Abs(mono[0]-0.3) > 1e-6 || math.Abs(mono[1]+0.4) > 1e-6 {
		t.Fatalf("mono = %v, want [0.3 -0.4]", mono)
	}
	if got := StereoToMono64([]float32{0.5}); got != nil {
		t.Fatalf("short input should return nil, got %v", got)
	}
}

func TestStereoRMS(t *testing.T) {
	if got := StereoRMS(nil); got != 0 {
		t.Fatalf("empty RMS = %v, want 0", got)
	}
	st := []float32{0.5, -0.5, 0.5, -0.5}
	if got := StereoRMS(st); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("RMS = %v, want 0.5", got)
	}
}

func TestWAVStereoRoundTrip(t *testing.T) {
	const rate = 44100
	frames := 512
	in := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		in[2*i] = float32(0.8 * math.Sin(2*math.Pi*440*float64(i)/rate))
		in[2*i+1] = float32(0.4 * math.Sin(2*math.Pi*660*float64(i)/rate))
	}

	path := filepath.Join(t.TempDir(), "roundtrip.wav")
	if err := WriteStereoInterleavedWAV(path, in, rate); err != nil {
		t.Fatalf("write wav: %v", err)
	}

	out, gotRate, err := ReadWAVStereo(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if gotRate != rate {
		t.Fatalf("sample rate = %d, want %d", gotRate, rate)
	}
	if len(out) != len(in) {
		t.Fatalf("sample count = %d, want %d", len(out), len(in))
	}
	// 16-bit quantization bounds the round-trip error.
	for i := range in {
		if diff := math.Abs(float64(out[i] - in[i])); diff > 1e-3 {
			t.Fatalf("sample %d drifted by %v (wrote %v, read %v)", i, diff, in[i], out[i])
		}
	}
}

func TestReadWAVStereoDuplicatesMono(t *testing.T) {
	const rate = 22050
	mono := make([]float32, 256)
	for i := range mono {
		mono[i] = float32(i%100) / 200
	}

	path := filepath.Join(t.TempDir(), "mono.wav")
	if err := WriteMonoWAV(path, mono, rate); err != nil {
		t.Fatalf("write wav: %v", err)
	}

	st, gotRate, err := ReadWAVStereo(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if gotRate != rate {
		t.Fatalf("sample rate = %d, want %d", gotRate, rate)
	}
	if len(st) != len(mono)*2 {
		t.Fatalf("stereo length = %d, want %d", len(st), len(mono)*2)
	}
	for i := range mono {
		if st[2*i] != st[2*i+1] {
			t.Fatalf("frame %d channels differ: %v vs %v", i, st[2*i], st[2*i+1])
		}
		if diff := math.Abs(float64(st[2*i] - mono[i])); diff > 1e-3 {
			t.Fatalf("frame %d drifted by %v", i, diff)
		}
	}
}

func TestReadWAVMonoDownmixesStereo(t *testing.T) {
	const rate = 44100
	frames := 128
	st := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		st[2*i] = 0.2
		st[2*i+1] = 0.4
	}

	path := filepath.Join(t.TempDir(), "stereo.wav")
	if err := WriteStereoInterleavedWAV(path, st, rate); err != nil {
		t.Fatalf("write wav: %v", err)
	}

	mono, gotRate, err := ReadWAVMono(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if gotRate != rate {
		t.Fatalf("sample rate = %d, want %d", gotRate, rate)
	}
	if len(mono) != frames {
		t.Fatalf("mono length = %d, want %d", len(mono), frames)
	}
	for i, v := range mono {
		if math.Abs(v-0.3) > 1e-3 {
			t.Fatalf("frame %d = %v, want 0.3", i, v)
		}
	}
}

func TestReadWAVStereoMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.wav")
	if _, _, err := ReadWAVStereo(path); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResampleIfNeededPassthrough(t *testing.T) {
	in := []float64{0.1, 0.2, 0.3}
	out, err := ResampleIfNeeded(in, 44100, 44100)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if &out[0] != &in[0] {
		t.Fatal("matching rates should return the input untouched")
	}
}

func TestResampleStereoIfNeededPassthrough(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3, 0.4}
	out, err := ResampleStereoIfNeeded(in, 48000, 48000)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if &out[0] != &in[0] {
		t.Fatal("matching rates should return the input untouched")
	}
}

func TestResampleIfNeededHalvesRate(t *testing.T) {
	const fromRate, toRate = 8000, 4000
	in := make([]float64, fromRate)
	for i := range in {
		in[i] = math.Sin(2 * math.Pi * 440 * float64(i) / fromRate)
	}

	out, err := ResampleIfNeeded(in, fromRate, toRate)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if len(out) == 0 || len(out) >= len(in) {
		t.Fatalf("downsampled length = %d, want shorter than %d", len(out), len(in))
	}
	// The converter may trim filter transients, so only bound the length.
	if len(out) < toRate*3/4 || len(out) > toRate*5/4 {
		t.Fatalf("downsampled length = %d, want near %d", len(out), toRate)
	}

	var sum float64
	for _, v := range out {
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(out)))
	if rms < 0.55 || rms > 0.85 {
		t.Fatalf("sine RMS after resample = %v, want near 0.707", rms)
	}
}
