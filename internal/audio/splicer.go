package audio

import (
	"fmt"
	"math"
	"time"
)

// FadeShape is the gain curve used for fades and crossfades.
type FadeShape string

const (
	// Linear scales amplitude linearly between 0 and 1.
	Linear FadeShape = "linear"
	// EqualPower uses a quarter sine/cosine so that summed power stays
	// constant through a crossfade.
	EqualPower FadeShape = "equal_power"
)

// IsValid returns true if the shape is known.
func (s FadeShape) IsValid() bool {
	return s == Linear || s == EqualPower
}

// gains returns the fade-in and fade-out gains at position t in [0, 1].
func (s FadeShape) gains(t float64) (in, out float64) {
	if s == Linear {
		return t, 1 - t
	}
	return math.Sin(t * math.Pi / 2), math.Cos(t * math.Pi / 2)
}

// Fade configures the crossfade applied at every junction.
type Fade struct {
	Duration time.Duration
	Shape    FadeShape
}

// Sources maps each channel to its mono buffer.
type Sources map[ChannelID]Buffer

// SpliceResult is the rendered output of a timeline.
type SpliceResult struct {
	Buffer Buffer
	// Clipped counts summed samples that were clamped to [-1, 1].
	Clipped int
	// Overlaps holds the crossfade width, in samples, of each junction.
	Overlaps []int
}

// Splice renders the timeline into one mono buffer. Consecutive segments
// are overlap-added over a crossfade window, so the output is shorter than
// the plain concatenation by the sum of the overlap widths. The first
// segment fades in from silence and the last one fades out to silence.
func Splice(timeline []Segment, sources Sources, fade Fade) (SpliceResult, error) {
	if !fade.Shape.IsValid() {
		return SpliceResult{}, fmt.Errorf("%w: unknown fade shape %q", ErrInvalidOption, fade.Shape)
	}
	sampleRate, err := sources.sampleRate()
	if err != nil {
		return SpliceResult{}, err
	}

	total := 0
	for i, seg := range timeline {
		src, ok := sources[seg.Channel]
		if !ok {
			return SpliceResult{}, fmt.Errorf("%w: segment %d references missing %s channel", ErrInvalidAudio, i, seg.Channel)
		}
		if seg.Start < 0 || seg.End <= seg.Start || seg.End > len(src.Samples) {
			return SpliceResult{}, fmt.Errorf("%w: segment %d [%d,%d) outside %s channel of %d samples",
				ErrInvalidAudio, i, seg.Start, seg.End, seg.Channel, len(src.Samples))
		}
		total += seg.Len()
	}

	width := durationToSamples(fade.Duration, sampleRate)
	res := SpliceResult{Overlaps: make([]int, 0, max(len(timeline)-1, 0))}
	out := make([]float64, 0, total)

	for i, seg := range timeline {
		samples := sources[seg.Channel].Samples[seg.Start:seg.End]

		if i == 0 {
			w := clampWidth(width, len(samples))
			for j, s := range samples {
				if j < w {
					in, _ := fade.Shape.gains(position(j, w))
					s *= in
				}
				out = append(out, s)
			}
			continue
		}

		w := min(clampWidth(width, timeline[i-1].Len()), clampWidth(width, len(samples)))
		base := len(out) - w
		for j := 0; j < w; j++ {
			in, fo := fade.Shape.gains(position(j, w))
			v := out[base+j]*fo + samples[j]*in
			if v > 1 {
				v = 1
				res.Clipped++
			} else if v < -1 {
				v = -1
				res.Clipped++
			}
			out[base+j] = v
		}
		out = append(out, samples[w:]...)
		res.Overlaps = append(res.Overlaps, w)
	}

	if n := len(timeline); n > 0 {
		w := clampWidth(width, timeline[n-1].Len())
		base := len(out) - w
		for j := 0; j < w; j++ {
			_, fo := fade.Shape.gains(position(j, w))
			out[base+j] *= fo
		}
	}

	res.Buffer = Buffer{Samples: out, SampleRate: sampleRate, Channels: 1}
	return res, nil
}

// clampWidth keeps a segment's fade-in and fade-out windows from meeting.
func clampWidth(width, n int) int {
	return min(width, n/2)
}

// position maps sample j of a w-sample window to the window midpoint t.
func position(j, w int) float64 {
	return (float64(j) + 0.5) / float64(w)
}

func (s Sources) sampleRate() (int, error) {
	rate := 0
	for ch, b := range s {
		if b.Channels != 1 {
			return 0, fmt.Errorf("%w: %s source must be mono, got %d channels", ErrInvalidAudio, ch, b.Channels)
		}
		if rate != 0 && b.SampleRate != rate {
			return 0, fmt.Errorf("%w: sources disagree on sample rate (%d vs %d)", ErrInvalidAudio, rate, b.SampleRate)
		}
		rate = b.SampleRate
	}
	return rate, nil
}
