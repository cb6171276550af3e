package audio

import (
	"fmt"
	"time"
)

// Segment is a stretch of one source channel selected for the output.
// Every Segment satisfies End > Start and meets the minimum segment length
// it was built with.
type Segment struct {
	Channel     ChannelID
	Start       int
	End         int
	SourceStart time.Duration
}

// Len returns the number of samples in the segment.
func (s Segment) Len() int {
	return s.End - s.Start
}

// SegmentChannel turns the non-silent runs of one channel into segments.
// Candidates shorter than minSegment absorb the following candidate, gap
// included, until they are long enough; a candidate that still falls short
// once candidates run out is dropped.
func SegmentChannel(mono Buffer, ch ChannelID, runs []SilenceRun, minSegment time.Duration) ([]Segment, error) {
	if len(mono.Samples) == 0 {
		return nil, fmt.Errorf("%w: empty %s channel", ErrInvalidAudio, ch)
	}
	if mono.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidAudio, mono.SampleRate)
	}

	var candidates []SilenceRun
	for _, r := range runs {
		if r.Silent || r.Len() <= 0 {
			continue
		}
		if r.Start < 0 || r.End > len(mono.Samples) {
			return nil, fmt.Errorf("%w: run [%d,%d) outside %s channel of %d samples",
				ErrInvalidAudio, r.Start, r.End, ch, len(mono.Samples))
		}
		candidates = append(candidates, r)
	}

	minLen := max(ceilSamples(minSegment, mono.SampleRate), 1)
	segments := make([]Segment, 0, len(candidates))

	for i := 0; i < len(candidates); i++ {
		start, end := candidates[i].Start, candidates[i].End
		for end-start < minLen && i+1 < len(candidates) {
			i++
			end = candidates[i].End
		}
		if end-start < minLen {
			continue
		}
		segments = append(segments, Segment{
			Channel:     ch,
			Start:       start,
			End:         end,
			SourceStart: samplesToDuration(start, mono.SampleRate),
		})
	}

	return segments, nil
}
