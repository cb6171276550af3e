package audio

import (
	"fmt"
	"math"
	"time"
)

// DefaultWindow is the RMS analysis window used by the silence detector.
const DefaultWindow = 20 * time.Millisecond

// SilenceRun is a contiguous range [Start, End) of one channel classified as
// silent or not.
type SilenceRun struct {
	Start  int
	End    int
	Silent bool
}

// Len returns the number of samples in the run.
func (r SilenceRun) Len() int {
	return r.End - r.Start
}

// DetectOptions configures silence detection.
type DetectOptions struct {
	// NoiseFloorDB is the dBFS level at or below which a window is silent.
	NoiseFloorDB float64
	// Window is the RMS analysis window. Zero means DefaultWindow.
	Window time.Duration
	// MinSilence is the shortest silent stretch treated as a real pause.
	MinSilence time.Duration
}

// DefaultDetectOptions returns -30 dBFS, 20 ms windows and 0.5 s pauses.
func DefaultDetectOptions() DetectOptions {
	return DetectOptions{
		NoiseFloorDB: -30,
		Window:       DefaultWindow,
		MinSilence:   500 * time.Millisecond,
	}
}

// DetectSilence classifies every sample of a mono buffer and returns the
// ordered runs covering it. Consecutive runs always differ in class.
func DetectSilence(mono Buffer, opts DetectOptions) ([]SilenceRun, error) {
	if mono.Channels != 1 {
		return nil, fmt.Errorf("%w: silence detection needs mono input, got %d channels", ErrInvalidAudio, mono.Channels)
	}
	if len(mono.Samples) == 0 {
		return nil, fmt.Errorf("%w: empty channel", ErrInvalidAudio)
	}
	if mono.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidAudio, mono.SampleRate)
	}

	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	windowSize := max(durationToSamples(window, mono.SampleRate), 1)
	minSilence := ceilSamples(opts.MinSilence, mono.SampleRate)

	n := len(mono.Samples)
	var runs []SilenceRun
	for start := 0; start < n; start += windowSize {
		end := min(start+windowSize, n)
		silent := levelDB(mono.Samples[start:end]) <= opts.NoiseFloorDB
		runs = appendRun(runs, SilenceRun{Start: start, End: end, Silent: silent})
	}

	// Pauses shorter than the minimum are part of the surrounding audio.
	out := make([]SilenceRun, 0, len(runs))
	for _, r := range runs {
		if r.Silent && r.Len() < minSilence {
			r.Silent = false
		}
		out = appendRun(out, r)
	}

	return out, nil
}

// appendRun adds r to runs, extending the last run when the class matches.
func appendRun(runs []SilenceRun, r SilenceRun) []SilenceRun {
	if last := len(runs) - 1; last >= 0 && runs[last].Silent == r.Silent && runs[last].End == r.Start {
		runs[last].End = r.End
		return runs
	}
	return append(runs, r)
}

// levelDB returns the RMS level of samples in dB relative to full scale.
func levelDB(samples []float64) float64 {
	if len(samples) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

// ceilSamples rounds d up to a whole number of samples.
func ceilSamples(d time.Duration, sampleRate int) int {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	num := int64(d) * int64(sampleRate)
	return int((num + int64(time.Second) - 1) / int64(time.Second))
}
