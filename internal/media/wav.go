package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/maauso/interlace-api/internal/audio"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// WAVCodec implements Codec for integer PCM WAV files.
type WAVCodec struct{}

// NewWAVCodec creates a new WAVCodec.
func NewWAVCodec() *WAVCodec {
	return &WAVCodec{}
}

// Decode reads a PCM WAV file into a normalized sample buffer.
func (c *WAVCodec) Decode(ctx context.Context, path string) (audio.Buffer, Format, error) {
	if err := ctx.Err(); err != nil {
		return audio.Buffer{}, Format{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	f, err := os.Open(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return audio.Buffer{}, Format{}, fmt.Errorf("%w: open %s: %w", ErrDecode, path, err)
	}
	defer func() { _ = f.Close() }()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return audio.Buffer{}, Format{}, fmt.Errorf("%w: %s is not a valid WAV file", ErrDecode, filepath.Base(path))
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return audio.Buffer{}, Format{}, fmt.Errorf("%w: unsupported WAV format tag %d", ErrDecode, d.WavAudioFormat)
	}

	format := Format{
		SampleRate: int(d.SampleRate),
		BitDepth:   int(d.BitDepth),
		Channels:   int(d.NumChans),
	}
	if !SupportedBitDepth(format.BitDepth) {
		return audio.Buffer{}, Format{}, fmt.Errorf("%w: unsupported bit depth %d", ErrDecode, format.BitDepth)
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return audio.Buffer{}, Format{}, fmt.Errorf("%w: read PCM data: %w", ErrDecode, err)
	}

	scale := fullScale(format.BitDepth)
	samples := make([]float64, len(pcm.Data))
	for i, v := range pcm.Data {
		samples[i] = float64(v) / scale
	}

	return audio.Buffer{
		Samples:    samples,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}, format, nil
}

// Encode writes buf as an integer PCM WAV file. Samples are rounded and
// saturated to the target depth.
func (c *WAVCodec) Encode(ctx context.Context, buf audio.Buffer, format Format, path string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if !SupportedBitDepth(format.BitDepth) {
		return fmt.Errorf("%w: unsupported bit depth %d", ErrEncode, format.BitDepth)
	}
	if buf.SampleRate <= 0 || buf.Channels <= 0 {
		return fmt.Errorf("%w: invalid buffer layout (%d Hz, %d channels)", ErrEncode, buf.SampleRate, buf.Channels)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("%w: create output directory: %w", ErrEncode, err)
	}
	f, err := os.Create(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrEncode, path, err)
	}

	enc := wav.NewEncoder(f, buf.SampleRate, format.BitDepth, buf.Channels, wavFormatPCM)
	pcm := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: buf.Channels, SampleRate: buf.SampleRate},
		Data:           quantize(buf.Samples, format.BitDepth),
		SourceBitDepth: format.BitDepth,
	}

	if err := enc.Write(pcm); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("%w: write PCM data: %w", ErrEncode, err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("%w: finalize WAV header: %w", ErrEncode, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("%w: close %s: %w", ErrEncode, path, err)
	}

	return nil
}

// fullScale is the integer magnitude that maps to an amplitude of 1.0.
func fullScale(depth int) float64 {
	return float64(int64(1) << (depth - 1))
}

// quantize converts normalized samples to integers at the given depth.
func quantize(samples []float64, depth int) []int {
	scale := fullScale(depth)
	lo, hi := -scale, scale-1
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(s * scale)
		if v > hi {
			v = hi
		} else if v < lo {
			v = lo
		}
		out[i] = int(v)
	}
	return out
}

// Verify interface implementation at compile time.
var _ Codec = (*WAVCodec)(nil)
