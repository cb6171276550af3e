// Package audio provides the segmentation and splicing engine that turns a
// stereo recording into a single interlaced mono track.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// Static errors for malformed input. Everything else (silent channels,
// degenerate segments) is a regular outcome, not an error.
var (
	// ErrChannelMismatch is returned when the input is not exactly two-channel.
	ErrChannelMismatch = errors.New("audio: input must be exactly two channels")
	// ErrInvalidAudio is returned for empty or otherwise unusable sample data.
	ErrInvalidAudio = errors.New("audio: invalid audio data")
	// ErrInvalidOption is returned when processing options are out of range.
	ErrInvalidOption = errors.New("audio: invalid option")
)

// ChannelID identifies the source channel of a segment.
type ChannelID int

const (
	// Left is the first channel of an interleaved stereo buffer.
	Left ChannelID = iota
	// Right is the second channel of an interleaved stereo buffer.
	Right
)

// String returns "left" or "right".
func (c ChannelID) String() string {
	switch c {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Buffer holds normalized samples in [-1, 1] at a fixed sample rate.
// Stereo buffers are interleaved (L, R, L, R, ...).
type Buffer struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback duration of the buffer.
func (b Buffer) Duration() time.Duration {
	return samplesToDuration(b.Frames(), b.SampleRate)
}

// ChannelView copies one channel of an interleaved stereo buffer into a new
// mono buffer. The result never aliases the source storage.
func ChannelView(stereo Buffer, ch ChannelID) (Buffer, error) {
	if stereo.Channels != 2 || len(stereo.Samples)%2 != 0 {
		return Buffer{}, fmt.Errorf("%w: got %d channels, %d samples",
			ErrChannelMismatch, stereo.Channels, len(stereo.Samples))
	}
	if ch != Left && ch != Right {
		return Buffer{}, fmt.Errorf("%w: unknown channel %s", ErrInvalidAudio, ch)
	}
	if len(stereo.Samples) == 0 {
		return Buffer{}, fmt.Errorf("%w: empty stereo buffer", ErrInvalidAudio)
	}
	if stereo.SampleRate <= 0 {
		return Buffer{}, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidAudio, stereo.SampleRate)
	}

	frames := len(stereo.Samples) / 2
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		mono[i] = stereo.Samples[2*i+int(ch)]
	}

	return Buffer{Samples: mono, SampleRate: stereo.SampleRate, Channels: 1}, nil
}

func samplesToDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}

// durationToSamples truncates d to a whole number of samples.
func durationToSamples(d time.Duration, sampleRate int) int {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(int64(d) * int64(sampleRate) / int64(time.Second))
}
