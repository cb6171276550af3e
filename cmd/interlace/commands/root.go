// Package commands implements the interlace command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/interlace-api/internal/audio"
	"github.com/maauso/interlace-api/internal/bootstrap"
	"github.com/maauso/interlace-api/internal/media"
)

// ErrOutputExists is returned when the output file exists and --force is not set.
var ErrOutputExists = errors.New("output file already exists (use --force to overwrite)")

type rootFlags struct {
	input      string
	output     string
	preset     string
	fadeMs     int
	minSegment float64
	minSilence float64
	noiseLevel float64
	ordering   string
	shape      string
	bitDepth   int
	tempDir    string
	keepTemp   bool
	ffmpegPath string
	force      bool
	verbose    bool
}

// Execute runs the root command with the process arguments.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
}

// NewRootCommand builds the interlace command writing its summary to stdout
// and logs to stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	f := &rootFlags{}
	defaults := audio.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "interlace -i INPUT -o OUTPUT",
		Short: "Interlace a two-speaker stereo recording into one mono track",
		Long: `Interlace splits each channel of a stereo recording at its pauses and
splices the resulting utterances into a single mono track, joined with
crossfades.

Example preset file (dialogue.yaml):
  fade_ms: 300
  min_silence_sec: 0.4
  ordering: alternating
  fade_shape: linear

Example:
  interlace -i call.wav -o call-mono.flac --preset dialogue.yaml --fade 200`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, bitDepth, err := resolveOptions(cmd, f)
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if f.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

			return run(cmd.Context(), f, opts, bitDepth, logger, stdout)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.input, "input", "i", "", "stereo input file (wav or flac)")
	flags.StringVarP(&f.output, "output", "o", "", "mono output file; the extension selects the format")
	flags.StringVar(&f.preset, "preset", "", "YAML or JSON file with option defaults")
	flags.IntVar(&f.fadeMs, "fade", defaults.FadeMs, "crossfade duration in milliseconds")
	flags.Float64Var(&f.minSegment, "min-segment", defaults.MinSegmentSec, "shortest kept segment in seconds")
	flags.Float64Var(&f.minSilence, "min-silence", defaults.MinSilenceSec, "shortest pause that splits a channel, in seconds")
	flags.Float64Var(&f.noiseLevel, "noise-level", defaults.NoiseLevelDB, "silence threshold in dBFS")
	flags.StringVar(&f.ordering, "ordering", string(defaults.Ordering), "segment ordering: chronological or alternating")
	flags.StringVar(&f.shape, "shape", string(defaults.FadeShape), "crossfade shape: linear or equal_power")
	flags.IntVar(&f.bitDepth, "bit-depth", 0, "output bit depth: 16, 24 or 32 (default: input depth)")
	flags.StringVar(&f.tempDir, "temp-dir", "", "directory for intermediate files")
	flags.BoolVar(&f.keepTemp, "keep-temp", false, "keep intermediate files")
	flags.StringVar(&f.ffmpegPath, "ffmpeg", "ffmpeg", "ffmpeg binary used for non-WAV files")
	flags.BoolVarP(&f.force, "force", "f", false, "overwrite the output file")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "log every processing stage")

	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagFilename("input", "wav", "flac")
	_ = cmd.MarkFlagFilename("preset", "yaml", "yml", "json")

	return cmd
}

// resolveOptions layers defaults, then the preset, then explicitly set flags.
func resolveOptions(cmd *cobra.Command, f *rootFlags) (audio.Options, int, error) {
	opts := audio.DefaultOptions()
	bitDepth := 0

	if f.preset != "" {
		p, err := LoadPreset(f.preset)
		if err != nil {
			return opts, 0, err
		}
		p.Apply(&opts, &bitDepth)
	}

	flags := cmd.Flags()
	if flags.Changed("fade") {
		opts.FadeMs = f.fadeMs
	}
	if flags.Changed("min-segment") {
		opts.MinSegmentSec = f.minSegment
	}
	if flags.Changed("min-silence") {
		opts.MinSilenceSec = f.minSilence
	}
	if flags.Changed("noise-level") {
		opts.NoiseLevelDB = f.noiseLevel
	}
	if flags.Changed("ordering") {
		opts.Ordering = audio.OrderingPolicy(f.ordering)
	}
	if flags.Changed("shape") {
		opts.FadeShape = audio.FadeShape(f.shape)
	}
	if flags.Changed("bit-depth") {
		bitDepth = f.bitDepth
	}

	if err := opts.Validate(); err != nil {
		return opts, 0, err
	}
	if bitDepth != 0 && !media.SupportedBitDepth(bitDepth) {
		return opts, 0, fmt.Errorf("%w: unsupported bit depth %d", audio.ErrInvalidOption, bitDepth)
	}
	return opts, bitDepth, nil
}

func run(ctx context.Context, f *rootFlags, opts audio.Options, bitDepth int, logger *slog.Logger, stdout io.Writer) error {
	for _, p := range []string{f.input, f.output} {
		if ext := containerOf(p); !media.SupportedContainer(ext) {
			return fmt.Errorf("unsupported file type %q for %s", ext, p)
		}
	}
	if maxDepth := media.MaxBitDepth(containerOf(f.output)); bitDepth > maxDepth {
		return fmt.Errorf("%w: %s output stores at most %d bits", audio.ErrInvalidOption, containerOf(f.output), maxDepth)
	}
	if _, err := os.Stat(f.input); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if _, err := os.Stat(f.output); err == nil && !f.force {
		return fmt.Errorf("%s: %w", f.output, ErrOutputExists)
	}

	codec := bootstrap.NewCodec(f.ffmpegPath, "", f.tempDir, f.keepTemp)

	stereo, format, err := codec.Decode(ctx, f.input)
	if err != nil {
		return err
	}
	logger.Info("input decoded",
		slog.String("path", f.input),
		slog.String("format", format.String()),
		slog.Duration("duration", stereo.Duration()),
	)

	engine := audio.NewEngine(logger)
	res, err := engine.Interlace(ctx, stereo, opts, func(ev audio.Event) {
		attrs := []any{slog.String("stage", string(ev.Stage)), slog.Int("segments", ev.Segments)}
		if ev.Stage == audio.StageSegmented {
			attrs = append(attrs, slog.String("channel", ev.Channel.String()))
		}
		logger.Debug("stage finished", attrs...)
	})
	if err != nil {
		return err
	}

	out := media.Format{SampleRate: res.Output.SampleRate, BitDepth: format.BitDepth, Channels: 1}
	if bitDepth != 0 {
		out.BitDepth = bitDepth
	}
	if err := codec.Encode(ctx, res.Output, out, f.output); err != nil {
		return err
	}

	_, err = fmt.Fprintf(stdout, "%s: %d segments (left %d, right %d), %s -> %s\n",
		f.output, len(res.Timeline), len(res.Left), len(res.Right),
		stereo.Duration().Round(time.Millisecond), res.Output.Duration().Round(time.Millisecond))
	return err
}

func containerOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
