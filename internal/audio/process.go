package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Options configures a full interlace run.
type Options struct {
	// FadeMs is the crossfade duration in milliseconds.
	// Default: 500.
	FadeMs int `json:"fade_ms" yaml:"fade_ms" validate:"gte=0,lte=60000"`

	// MinSegmentSec is the shortest segment kept in the output, in seconds.
	// Default: 1.0.
	MinSegmentSec float64 `json:"min_segment_sec" yaml:"min_segment_sec" validate:"gte=0,lte=3600"`

	// MinSilenceSec is the shortest pause that splits a channel, in seconds.
	// Default: 0.5.
	MinSilenceSec float64 `json:"min_silence_sec" yaml:"min_silence_sec" validate:"gt=0,lte=3600"`

	// NoiseLevelDB is the dBFS level at or below which audio counts as silence.
	// Default: -30.
	NoiseLevelDB float64 `json:"noise_level_db" yaml:"noise_level_db" validate:"gte=-200,lte=0"`

	// Ordering selects how the two channels are linearized.
	// Default: chronological.
	Ordering OrderingPolicy `json:"ordering" yaml:"ordering" validate:"oneof=chronological alternating"`

	// FadeShape selects the crossfade curve.
	// Default: equal_power.
	FadeShape FadeShape `json:"fade_shape" yaml:"fade_shape" validate:"oneof=linear equal_power"`
}

// DefaultOptions returns the default processing options.
func DefaultOptions() Options {
	return Options{
		FadeMs:        500,
		MinSegmentSec: 1.0,
		MinSilenceSec: 0.5,
		NoiseLevelDB:  -30,
		Ordering:      Chronological,
		FadeShape:     EqualPower,
	}
}

// Validate checks every option against its allowed range.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}
	return nil
}

// Fade returns the crossfade window described by the options.
func (o Options) Fade() Fade {
	return Fade{Duration: time.Duration(o.FadeMs) * time.Millisecond, Shape: o.FadeShape}
}

// DetectOptions returns the silence detector settings described by the options.
func (o Options) DetectOptions() DetectOptions {
	return DetectOptions{
		NoiseFloorDB: o.NoiseLevelDB,
		Window:       DefaultWindow,
		MinSilence:   secondsToDuration(o.MinSilenceSec),
	}
}

// MinSegment returns the minimum segment duration.
func (o Options) MinSegment() time.Duration {
	return secondsToDuration(o.MinSegmentSec)
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

// Stage names a pipeline boundary reported through progress events.
type Stage string

const (
	// StageSegmented is reported once per channel after segmentation.
	StageSegmented Stage = "segmented"
	// StageAssembled is reported once the timeline is ordered.
	StageAssembled Stage = "assembled"
	// StageSpliced is reported once the output buffer is rendered.
	StageSpliced Stage = "spliced"
)

// Event is a progress notification emitted at a stage boundary.
type Event struct {
	Stage Stage
	// Channel is set for StageSegmented events.
	Channel ChannelID
	// Segments is the number of segments produced by the stage.
	Segments int
}

// Result is the outcome of a run.
type Result struct {
	Output   Buffer
	Left     []Segment
	Right    []Segment
	Timeline []Segment
	Clipped  int
	Overlaps []int
}

// ProcessOption customizes a single Process call.
type ProcessOption func(*processConfig)

type processConfig struct {
	logger   *slog.Logger
	progress func(Event)
}

// WithProgress registers a callback for stage events. Calls are serialized.
func WithProgress(fn func(Event)) ProcessOption {
	return func(c *processConfig) {
		c.progress = fn
	}
}

// WithLogger sets the logger used for stage diagnostics.
func WithLogger(logger *slog.Logger) ProcessOption {
	return func(c *processConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Process splits a stereo buffer into per-channel segments, orders them and
// renders the crossfaded mono output. The two channels are segmented in
// parallel. A silence-only input yields an empty output buffer, not an
// error. ctx is checked between stages.
func Process(ctx context.Context, stereo Buffer, opts Options, popts ...ProcessOption) (*Result, error) {
	cfg := processConfig{logger: slog.Default()}
	for _, opt := range popts {
		opt(&cfg)
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if stereo.Channels != 2 || len(stereo.Samples)%2 != 0 {
		return nil, fmt.Errorf("%w: got %d channels, %d samples", ErrChannelMismatch, stereo.Channels, len(stereo.Samples))
	}
	if len(stereo.Samples) == 0 {
		return nil, fmt.Errorf("%w: empty stereo buffer", ErrInvalidAudio)
	}

	var mu sync.Mutex
	emit := func(ev Event) {
		if cfg.progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		cfg.progress(ev)
	}

	var (
		sources = make([]Buffer, 2)
		lists   = make([][]Segment, 2)
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range []ChannelID{Left, Right} {
		g.Go(func() error {
			mono, segs, err := segmentStereoChannel(gctx, stereo, ch, opts)
			if err != nil {
				return err
			}
			sources[ch], lists[ch] = mono, segs
			cfg.logger.Debug("channel segmented",
				slog.String("channel", ch.String()),
				slog.Int("segments", len(segs)),
			)
			emit(Event{Stage: StageSegmented, Channel: ch, Segments: len(segs)})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeline, err := Assemble(lists[Left], lists[Right], opts.Ordering)
	if err != nil {
		return nil, err
	}
	emit(Event{Stage: StageAssembled, Segments: len(timeline)})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spliced, err := Splice(timeline, Sources{Left: sources[Left], Right: sources[Right]}, opts.Fade())
	if err != nil {
		return nil, err
	}
	if spliced.Clipped > 0 {
		cfg.logger.Warn("crossfade clipped samples",
			slog.Int("clipped", spliced.Clipped),
		)
	}
	emit(Event{Stage: StageSpliced, Segments: len(timeline)})

	return &Result{
		Output:   spliced.Buffer,
		Left:     lists[Left],
		Right:    lists[Right],
		Timeline: timeline,
		Clipped:  spliced.Clipped,
		Overlaps: spliced.Overlaps,
	}, nil
}

func segmentStereoChannel(ctx context.Context, stereo Buffer, ch ChannelID, opts Options) (Buffer, []Segment, error) {
	mono, err := ChannelView(stereo, ch)
	if err != nil {
		return Buffer{}, nil, err
	}
	if err := ctx.Err(); err != nil {
		return Buffer{}, nil, err
	}
	runs, err := DetectSilence(mono, opts.DetectOptions())
	if err != nil {
		return Buffer{}, nil, err
	}
	segs, err := SegmentChannel(mono, ch, runs, opts.MinSegment())
	if err != nil {
		return Buffer{}, nil, err
	}
	return mono, segs, nil
}

// Interlacer renders a stereo buffer into an interlaced mono buffer.
type Interlacer interface {
	// Interlace runs the full pipeline. progress may be nil.
	Interlace(ctx context.Context, stereo Buffer, opts Options, progress func(Event)) (*Result, error)
}

// Engine implements Interlacer on top of Process.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a new Engine. A nil logger uses slog.Default().
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Interlace implements Interlacer.Interlace.
func (e *Engine) Interlace(ctx context.Context, stereo Buffer, opts Options, progress func(Event)) (*Result, error) {
	return Process(ctx, stereo, opts, WithLogger(e.logger), WithProgress(progress))
}

// Verify interface implementation at compile time.
var _ Interlacer = (*Engine)(nil)
