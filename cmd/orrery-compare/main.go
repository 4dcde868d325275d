// Command orrery-compare prints a diagnostic report of how a rendered cue
// deviates from a reference recording: overall fit metrics, peak alignment,
// and banded spectral error over the phases of the cue. It reads the same
// WAV pairs orrery-fit optimizes against.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/cmplx"
	"os"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/cwbudde/algo-orrery/analysis"
	"github.com/cwbudde/algo-orrery/internal/fitcommon"
)

func main() {
	refPath := flag.String("reference", "reference/cue.wav", "Reference WAV")
	candPath := flag.String("candidate", "output.wav", "Candidate WAV to compare")
	sampleRate := flag.Int("sample-rate", 44100, "Analysis sample rate (both inputs are resampled)")
	reportPath := flag.String("report", "", "Optional JSON metrics output path")
	flag.Parse()

	sr := *sampleRate

	// Load both signals at the analysis rate.
	ref, refSR, err := fitcommon.ReadWAVStereo(*refPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reference: %v\n", err)
		os.Exit(1)
	}
	ref, err = fitcommon.ResampleStereoIfNeeded(ref, refSR, sr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resample reference: %v\n", err)
		os.Exit(1)
	}
	cand, candSR, err := fitcommon.ReadWAVStereo(*candPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "candidate: %v\n", err)
		os.Exit(1)
	}
	cand, err = fitcommon.ResampleStereoIfNeeded(cand, candSR, sr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resample candidate: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Reference: %d frames @ %d Hz (%.2fs)\n", len(ref)/2, sr, float64(len(ref)/2)/float64(sr))
	fmt.Printf("Candidate: %d frames @ %d Hz (%.2fs)\n\n", len(cand)/2, sr, float64(len(cand)/2)/float64(sr))

	// Overall fit metrics, same scoring the optimizer uses.
	metrics := analysis.CompareStereo(ref, cand, sr)
	fmt.Printf("Score=%.4f  similarity=%.2f%%\n", metrics.Score, metrics.Similarity*100)
	fmt.Printf("  left:  time=%.4f env=%.1fdB spec=%.1fdB decay=%+.1f dB/s (lag %d)\n",
		metrics.Left.TimeRMSE, metrics.Left.EnvelopeRMSEDB, metrics.Left.SpectralRMSEDB,
		metrics.Left.DecayDiffDBPerS, metrics.Left.LagSamples)
	fmt.Printf("  right: time=%.4f env=%.1fdB spec=%.1fdB decay=%+.1f dB/s (lag %d)\n\n",
		metrics.Right.TimeRMSE, metrics.Right.EnvelopeRMSEDB, metrics.Right.SpectralRMSEDB,
		metrics.Right.DecayDiffDBPerS, metrics.Right.LagSamples)

	refMono := fitcommon.StereoToMono64(ref)
	candMono := fitcommon.StereoToMono64(cand)

	printPeaksAndAlign(&refMono, &candMono, sr)
	printBandedReport(refMono, candMono, sr)

	if *reportPath != "" {
		b, err := json.MarshalIndent(metrics, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "marshal report: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*reportPath, append(b, '\n'), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote metrics report to %s\n", *reportPath)
	}
}

// printPeaksAndAlign reports peak levels and positions, then shifts whichever
// signal lags so the banded report lines up the same event in both.
func printPeaksAndAlign(ref *[]float64, cand *[]float64, sr int) {
	refPeak, refPeakPos := peak(*ref)
	candPeak, candPeakPos := peak(*cand)

	fmt.Printf("Peak levels: ref=%.4f (%.1f dB)  cand=%.4f (%.1f dB)  ratio=%+.1fdB\n",
		refPeak, linDB(refPeak),
		candPeak, linDB(candPeak),
		linDB(candPeak)-linDB(refPeak))

	lag := candPeakPos - refPeakPos
	fmt.Printf("Peak positions: ref=%d (%.1fms)  cand=%d (%.1fms)  lag=%d (%.1fms)\n",
		refPeakPos, float64(refPeakPos)/float64(sr)*1000,
		candPeakPos, float64(candPeakPos)/float64(sr)*1000,
		lag, float64(lag)/float64(sr)*1000)

	if lag > 0 && lag < len(*cand) {
		*cand = (*cand)[lag:]
		fmt.Printf("Aligned: shifted candidate by %d samples\n", lag)
	} else if lag < 0 && -lag < len(*ref) {
		*ref = (*ref)[-lag:]
		fmt.Printf("Aligned: shifted reference by %d samples\n", -lag)
	}
	fmt.Println()
}

func peak(x []float64) (level float64, pos int) {
	for i, v := range x {
		if a := math.Abs(v); a > level {
			level = a
			pos = i
		}
	}
	return level, pos
}

func linDB(x float64) float64 {
	return 20 * math.Log10(math.Max(x, 1e-12))
}

// printBandedReport runs a short-window STFT over the phases of a cue and
// prints per-band spectral error. Cues are a fraction of a second, so the
// windows cover attack, body, release, and the reverb tail.
func printBandedReport(ref []float64, cand []float64, sr int) {
	n := len(ref)
	if len(cand) < n {
		n = len(cand)
	}
	if n == 0 {
		return
	}

	const fftSize = 1024
	const hop = 512
	plan, err := algofft.NewPlanReal64(fftSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fft plan: %v\n", err)
		os.Exit(1)
	}

	type band struct {
		name string
		loHz float64
		hiHz float64
	}
	bands := []band{
		{"sub (20-100Hz)", 20, 100},
		{"fundamental (100-500Hz)", 100, 500},
		{"low-harm (500-1kHz)", 500, 1000},
		{"harmonics (1-3kHz)", 1000, 3000},
		{"brightness (3-6kHz)", 3000, 6000},
		{"air (6-12kHz)", 6000, 12000},
	}

	type timeWindow struct {
		name    string
		startMs float64
		endMs   float64
	}
	windows := []timeWindow{
		{"attack (0-20ms)", 0, 20},
		{"body (20-150ms)", 20, 150},
		{"release (150-250ms)", 150, 250},
		{"tail (250-500ms)", 250, 500},
	}

	binHz := float64(sr) / float64(fftSize)
	hann := make([]float64, fftSize)
	for i := range hann {
		hann[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(fftSize-1))
	}

	specRef := make([]complex128, fftSize/2+1)
	specCand := make([]complex128, fftSize/2+1)
	bufRef := make([]float64, fftSize)
	bufCand := make([]float64, fftSize)
	nBins := fftSize / 2

	for _, tw := range windows {
		startSamp := int(tw.startMs / 1000.0 * float64(sr))
		endSamp := int(tw.endMs / 1000.0 * float64(sr))
		if endSamp > n {
			endSamp = n
		}
		if startSamp >= endSamp {
			continue
		}

		avgRef := make([]float64, nBins)
		avgCand := make([]float64, nBins)
		nFrames := 0

		for pos := startSamp; pos+fftSize <= endSamp; pos += hop {
			for i := 0; i < fftSize; i++ {
				bufRef[i] = ref[pos+i] * hann[i]
				bufCand[i] = cand[pos+i] * hann[i]
			}
			plan.Forward(specRef, bufRef)
			plan.Forward(specCand, bufCand)
			for k := 1; k < nBins; k++ {
				avgRef[k] += cmplx.Abs(specRef[k])
				avgCand[k] += cmplx.Abs(specCand[k])
			}
			nFrames++
		}

		// Windows shorter than one FFT frame get a single zero-padded frame.
		if nFrames == 0 {
			for i := range bufRef {
				bufRef[i] = 0
				bufCand[i] = 0
			}
			winLen := endSamp - startSamp
			for i := 0; i < winLen && i < fftSize; i++ {
				bufRef[i] = ref[startSamp+i] * hann[i]
				bufCand[i] = cand[startSamp+i] * hann[i]
			}
			plan.Forward(specRef, bufRef)
			plan.Forward(specCand, bufCand)
			for k := 1; k < nBins; k++ {
				avgRef[k] = cmplx.Abs(specRef[k])
				avgCand[k] = cmplx.Abs(specCand[k])
			}
			nFrames = 1
		}

		scale := 1.0 / float64(nFrames)
		for k := range avgRef {
			avgRef[k] *= scale
			avgCand[k] *= scale
		}

		fmt.Printf("--- %s (%d STFT frames) ---\n", tw.name, nFrames)
		for _, b := range bands {
			loK := int(b.loHz / binHz)
			hiK := int(b.hiHz / binHz)
			if loK < 1 {
				loK = 1
			}
			if hiK >= nBins {
				hiK = nBins - 1
			}
			if loK > hiK {
				continue
			}

			var sumSq float64
			var refPow, candPow float64
			cnt := 0
			for k := loK; k <= hiK; k++ {
				rDB := linDB(avgRef[k])
				cDB := linDB(avgCand[k])
				d := rDB - cDB
				sumSq += d * d
				refPow += avgRef[k] * avgRef[k]
				candPow += avgCand[k] * avgCand[k]
				cnt++
			}
			rmseDB := math.Sqrt(sumSq / float64(cnt))
			refDB := 10 * math.Log10(math.Max(refPow/float64(cnt), 1e-24))
			candDB := 10 * math.Log10(math.Max(candPow/float64(cnt), 1e-24))
			diff := candDB - refDB
			marker := ""
			if rmseDB > 15 {
				marker = " <<<"
			}
			if rmseDB > 25 {
				marker = " <<< !!!"
			}
			fmt.Printf("  %-24s RMSE=%5.1fdB  ref=%6.1fdB  cand=%6.1fdB  diff=%+5.1fdB%s\n",
				b.name, rmseDB, refDB, candDB, diff, marker)
		}
		fmt.Println()
	}
}
