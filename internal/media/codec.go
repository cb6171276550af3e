// Package media provides the file boundary of the interlace pipeline:
// decoding audio files into sample buffers and encoding results back.
package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/maauso/interlace-api/internal/audio"
)

// Static errors for codec operations. Callers propagate them unmodified.
var (
	// ErrDecode is returned when a file cannot be read as audio.
	ErrDecode = errors.New("media: decode failed")
	// ErrEncode is returned when a buffer cannot be written in the requested format.
	ErrEncode = errors.New("media: encode failed")
)

// Format describes the stored representation of a sample buffer.
type Format struct {
	SampleRate int
	BitDepth   int
	Channels   int
}

// String returns a compact description such as "44100Hz/16bit/2ch".
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SampleRate, f.BitDepth, f.Channels)
}

// Codec reads and writes audio files.
type Codec interface {
	// Decode reads the file at path into a normalized sample buffer.
	// Failures wrap ErrDecode.
	Decode(ctx context.Context, path string) (audio.Buffer, Format, error)

	// Encode writes buf to path at the bit depth given by format.
	// Failures wrap ErrEncode.
	Encode(ctx context.Context, buf audio.Buffer, format Format, path string) error
}

// SupportedBitDepth reports whether the integer PCM depth is handled.
// 8-bit WAV is unsigned and is rejected rather than guessed at.
func SupportedBitDepth(depth int) bool {
	return depth == 16 || depth == 24 || depth == 32
}

var containerTypes = map[string]string{
	"wav":  "audio/wav",
	"flac": "audio/flac",
}

// SupportedContainer reports whether ext (without the dot) is a container
// the service accepts for input and output.
func SupportedContainer(ext string) bool {
	_, ok := containerTypes[ext]
	return ok
}

// maxContainerDepth caps containers that cannot store 32-bit integer PCM.
var maxContainerDepth = map[string]int{
	"flac": 24,
}

// MaxBitDepth returns the deepest integer PCM depth a container extension
// (without the dot) can store.
func MaxBitDepth(ext string) int {
	if d, ok := maxContainerDepth[ext]; ok {
		return d
	}
	return 32
}

// ContentType returns the MIME type for a container extension.
func ContentType(ext string) string {
	if ct, ok := containerTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
