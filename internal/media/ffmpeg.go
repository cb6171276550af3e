package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/maauso/interlace-api/internal/audio"
)

// ErrFFprobeExecution is returned when the ffprobe command fails.
var ErrFFprobeExecution = errors.New("ffprobe execution failed")

// FFmpegCodec implements Codec for any container ffmpeg understands.
// WAV files go straight through WAVCodec; everything else is transcoded to
// a temporary WAV first (decode) or from one afterwards (encode).
type FFmpegCodec struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
	tempDir     string
	keepTemp    bool
	wav         *WAVCodec
}

// FFmpegOption configures an FFmpegCodec.
type FFmpegOption func(*FFmpegCodec)

// WithTempDir sets the directory for intermediate WAV files.
func WithTempDir(dir string) FFmpegOption {
	return func(c *FFmpegCodec) {
		c.tempDir = dir
	}
}

// WithKeepTemp keeps intermediate WAV files after use.
func WithKeepTemp(keep bool) FFmpegOption {
	return func(c *FFmpegCodec) {
		c.keepTemp = keep
	}
}

// WithFFprobePath overrides the ffprobe binary.
func WithFFprobePath(path string) FFmpegOption {
	return func(c *FFmpegCodec) {
		if path != "" {
			c.ffprobePath = path
		}
	}
}

// NewFFmpegCodec creates a new FFmpegCodec.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegCodec(ffmpegPath string, opts ...FFmpegOption) *FFmpegCodec {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	c := &FFmpegCodec{
		ffmpegPath:  ffmpegPath,
		ffprobePath: "ffprobe",
		wav:         NewWAVCodec(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decode implements Codec.Decode.
func (c *FFmpegCodec) Decode(ctx context.Context, path string) (audio.Buffer, Format, error) {
	if isWAV(path) {
		return c.wav.Decode(ctx, path)
	}

	params, err := c.Probe(ctx, path)
	if err != nil {
		return audio.Buffer{}, Format{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	tmp, err := c.tempWAV("decode")
	if err != nil {
		return audio.Buffer{}, Format{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer c.cleanup(tmp)

	args := []string{
		"-y",
		"-i", path,
		"-c:a", params.PCMEncoder(),
		"-loglevel", "error",
		tmp,
	}
	if err := c.runFFmpeg(ctx, args); err != nil {
		return audio.Buffer{}, Format{}, fmt.Errorf("%w: transcode %s: %w", ErrDecode, filepath.Base(path), err)
	}

	return c.wav.Decode(ctx, tmp)
}

// Encode implements Codec.Encode. The container is chosen by the
// extension of path. Depths beyond what the container stores are reduced
// to its maximum (32-bit FLAC is written as 24-bit).
func (c *FFmpegCodec) Encode(ctx context.Context, buf audio.Buffer, format Format, path string) error {
	if isWAV(path) {
		return c.wav.Encode(ctx, buf, format, path)
	}
	format.BitDepth = containerDepth(path, format.BitDepth)

	tmp, err := c.tempWAV("encode")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	defer c.cleanup(tmp)

	if err := c.wav.Encode(ctx, buf, format, tmp); err != nil {
		return err
	}

	args := []string{
		"-y",
		"-i", tmp,
		"-ar", strconv.Itoa(buf.SampleRate),
		"-loglevel", "error",
		path,
	}
	if err := c.runFFmpeg(ctx, args); err != nil {
		return fmt.Errorf("%w: transcode to %s: %w", ErrEncode, filepath.Ext(path), err)
	}
	return nil
}

// StreamParams holds the audio stream properties reported by ffprobe.
type StreamParams struct {
	SampleRate       int
	SampleFmt        string
	Channels         int
	BitsPerSample    int
	BitsPerRawSample int
}

// BitDepth returns the effective integer bit depth of the stream.
// Lossless codecs report 0 bits per sample and carry the depth in
// bits_per_raw_sample; 16-bit is assumed when neither is known.
func (p StreamParams) BitDepth() int {
	switch {
	case SupportedBitDepth(p.BitsPerSample):
		return p.BitsPerSample
	case SupportedBitDepth(p.BitsPerRawSample):
		return p.BitsPerRawSample
	case strings.HasPrefix(p.SampleFmt, "s32"), strings.HasPrefix(p.SampleFmt, "flt"):
		return 32
	default:
		return 16
	}
}

// PCMEncoder returns the ffmpeg PCM encoder matching the stream depth.
func (p StreamParams) PCMEncoder() string {
	switch p.BitDepth() {
	case 24:
		return "pcm_s24le"
	case 32:
		return "pcm_s32le"
	default:
		return "pcm_s16le"
	}
}

// Probe reads the first audio stream's parameters with ffprobe.
func (c *FFmpegCodec) Probe(ctx context.Context, path string) (StreamParams, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=sample_rate,sample_fmt,channels,bits_per_sample,bits_per_raw_sample",
		"-of", "json",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return StreamParams{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return StreamParams{}, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	return parseProbeOutput(stdout.Bytes())
}

// parseProbeOutput decodes ffprobe's JSON stream listing. ffprobe prints
// most numeric fields as strings.
func parseProbeOutput(data []byte) (StreamParams, error) {
	var out struct {
		Streams []struct {
			SampleRate       string `json:"sample_rate"`
			SampleFmt        string `json:"sample_fmt"`
			Channels         int    `json:"channels"`
			BitsPerSample    int    `json:"bits_per_sample"`
			BitsPerRawSample string `json:"bits_per_raw_sample"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return StreamParams{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return StreamParams{}, errors.New("no audio stream found")
	}

	s := out.Streams[0]
	rate, err := strconv.Atoi(s.SampleRate)
	if err != nil {
		return StreamParams{}, fmt.Errorf("parse sample rate %q: %w", s.SampleRate, err)
	}
	raw, _ := strconv.Atoi(s.BitsPerRawSample)

	return StreamParams{
		SampleRate:       rate,
		SampleFmt:        s.SampleFmt,
		Channels:         s.Channels,
		BitsPerSample:    s.BitsPerSample,
		BitsPerRawSample: raw,
	}, nil
}

func (c *FFmpegCodec) tempWAV(prefix string) (string, error) {
	dir := c.tempDir
	if dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return "", fmt.Errorf("create temp directory: %w", err)
		}
	}
	f, err := os.CreateTemp(dir, prefix+"-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return name, nil
}

func (c *FFmpegCodec) cleanup(path string) {
	if !c.keepTemp {
		_ = os.Remove(path)
	}
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (c *FFmpegCodec) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// containerDepth clamps depth to the maximum of the container at path.
func containerDepth(path string, depth int) int {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return min(depth, MaxBitDepth(ext))
}

func isWAV(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".wav" || ext == ".wave"
}

// Verify interface implementation at compile time.
var _ Codec = (*FFmpegCodec)(nil)
