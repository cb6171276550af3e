package job

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/interlace-api/internal/audio"
	"github.com/maauso/interlace-api/internal/media"
	"github.com/maauso/interlace-api/internal/storage"
)

var (
	// ErrInvalidInput is returned when a job request cannot be processed as given.
	ErrInvalidInput = errors.New("invalid job input")
	// ErrJobInProgress is returned when deleting a job that has not finished.
	ErrJobInProgress = errors.New("job is still in progress")
)

// ProcessAudioInput contains the input parameters for an interlace job.
type ProcessAudioInput struct {
	// AudioBase64 is the base64-encoded stereo source.
	AudioBase64 string
	// InputFormat is the container of the source (wav, flac). Defaults to wav.
	InputFormat string
	// OutputFormat is the container of the render (wav, flac). Defaults to wav.
	OutputFormat string
	// BitDepth of the render; 0 keeps the source depth.
	BitDepth int
	// PushToS3 indicates whether to upload the render to S3.
	PushToS3 bool
	// Options are the interlace parameters.
	Options audio.Options
}

// ProcessAudioOutput contains the result of an interlace job.
type ProcessAudioOutput struct {
	JobID     string
	Status    Status
	AudioPath string
	AudioURL  string
	Stats     Stats
	Error     string
}

// ProcessAudioService orchestrates the interlace workflow: it stores the
// upload, decodes it, runs the interlace engine, encodes the render and
// optionally uploads it.
type ProcessAudioService struct {
	repo       Repository
	codec      media.Codec
	interlacer audio.Interlacer
	storage    storage.Storage
	logger     *slog.Logger

	keepTemp       bool
	processTimeout time.Duration
}

// ServiceOption configures a ProcessAudioService.
type ServiceOption func(*ProcessAudioService)

// WithKeepTemp keeps uploaded inputs on disk after processing.
func WithKeepTemp(keep bool) ServiceOption {
	return func(s *ProcessAudioService) {
		s.keepTemp = keep
	}
}

// WithProcessTimeout bounds a single job's processing time.
// Zero disables the limit.
func WithProcessTimeout(d time.Duration) ServiceOption {
	return func(s *ProcessAudioService) {
		if d >= 0 {
			s.processTimeout = d
		}
	}
}

// NewProcessAudioService creates a new ProcessAudioService.
func NewProcessAudioService(
	repo Repository,
	codec media.Codec,
	interlacer audio.Interlacer,
	store storage.Storage,
	logger *slog.Logger,
	opts ...ServiceOption,
) *ProcessAudioService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ProcessAudioService{
		repo:           repo,
		codec:          codec,
		interlacer:     interlacer,
		storage:        store,
		logger:         logger,
		processTimeout: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob validates the input, creates a new job and persists it.
// The job is created in IN_QUEUE status, ready for processing.
func (s *ProcessAudioService) CreateJob(ctx context.Context, input ProcessAudioInput) (*Job, error) {
	input, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}

	job := New()
	job.Options = input.Options
	job.InputFormat = input.InputFormat
	job.OutputFormat = input.OutputFormat
	job.BitDepth = input.BitDepth
	job.PushToS3 = input.PushToS3

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("input_format", job.InputFormat),
		slog.String("output_format", job.OutputFormat),
		slog.String("ordering", string(job.Options.Ordering)),
		slog.Bool("push_to_s3", job.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return job, nil
}

func normalizeInput(input ProcessAudioInput) (ProcessAudioInput, error) {
	if input.AudioBase64 == "" {
		return input, fmt.Errorf("%w: audio is required", ErrInvalidInput)
	}
	if input.InputFormat == "" {
		input.InputFormat = "wav"
	}
	if input.OutputFormat == "" {
		input.OutputFormat = "wav"
	}
	if !media.SupportedContainer(input.InputFormat) {
		return input, fmt.Errorf("%w: unsupported input format %q", ErrInvalidInput, input.InputFormat)
	}
	if !media.SupportedContainer(input.OutputFormat) {
		return input, fmt.Errorf("%w: unsupported output format %q", ErrInvalidInput, input.OutputFormat)
	}
	if input.BitDepth != 0 && !media.SupportedBitDepth(input.BitDepth) {
		return input, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidInput, input.BitDepth)
	}
	if input.BitDepth > media.MaxBitDepth(input.OutputFormat) {
		return input, fmt.Errorf("%w: %s output stores at most %d bits", ErrInvalidInput, input.OutputFormat, media.MaxBitDepth(input.OutputFormat))
	}
	if err := input.Options.Validate(); err != nil {
		return input, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return input, nil
}

// GetJob retrieves a job by ID.
func (s *ProcessAudioService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all known jobs, oldest first.
func (s *ProcessAudioService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// DeleteJob removes a finished job and its rendered output.
// Returns ErrJobInProgress for jobs that are queued or running.
func (s *ProcessAudioService) DeleteJob(ctx context.Context, id string) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return ErrJobInProgress
	}

	paths := []string{job.OutputAudioPath}
	if s.keepTemp {
		paths = append(paths, job.InputAudioPath)
	}
	if err := s.storage.CleanupTemp(ctx, paths); err != nil {
		s.logger.Warn("failed to remove job files",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("job deleted", slog.String("job_id", id))
	return nil
}

// Process creates a job and runs it to completion.
func (s *ProcessAudioService) Process(ctx context.Context, input ProcessAudioInput) (*ProcessAudioOutput, error) {
	job, err := s.CreateJob(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.ProcessExistingJob(ctx, job.ID, input)
}

// ProcessExistingJob runs the interlace workflow for a job created with
// CreateJob. The job reaches a terminal state whatever the outcome; the
// returned error reports why it did not complete.
func (s *ProcessAudioService) ProcessExistingJob(ctx context.Context, jobID string, input ProcessAudioInput) (*ProcessAudioOutput, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := job.Start(); err != nil {
		return nil, fmt.Errorf("start job %s: %w", jobID, err)
	}
	s.save(ctx, job)

	runCtx := ctx
	if s.processTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.processTimeout)
		defer cancel()
	}

	logger := s.logger.With(slog.String("job_id", jobID))
	start := time.Now()
	logger.Info("processing job")

	if err := s.run(runCtx, job, input, logger); err != nil {
		s.finishWithError(ctx, job, err, logger)
		return toOutput(job), err
	}

	if err := job.Complete(); err != nil {
		return nil, fmt.Errorf("complete job %s: %w", jobID, err)
	}
	s.save(ctx, job)

	logger.Info("job completed",
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("timeline_segments", job.Stats.TimelineLength),
		slog.Duration("output_duration", job.Stats.OutputDuration),
	)
	return toOutput(job), nil
}

func (s *ProcessAudioService) run(ctx context.Context, job *Job, input ProcessAudioInput, logger *slog.Logger) error {
	data, err := base64.StdEncoding.DecodeString(input.AudioBase64)
	if err != nil {
		return fmt.Errorf("%w: decode audio base64: %w", ErrInvalidInput, err)
	}

	inputPath, err := s.storage.SaveTemp(ctx, "input."+job.InputFormat, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("save input: %w", err)
	}
	job.SetInput(inputPath)
	if !s.keepTemp {
		defer s.cleanup(inputPath, logger)
	}

	s.advance(ctx, job, StageDecoding, 5)
	stereo, format, err := s.codec.Decode(ctx, inputPath)
	if err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	logger.Debug("input decoded",
		slog.String("format", format.String()),
		slog.Duration("duration", stereo.Duration()),
	)

	s.advance(ctx, job, StageSegmenting, 15)
	segmented := 0
	res, err := s.interlacer.Interlace(ctx, stereo, job.Options, func(ev audio.Event) {
		switch ev.Stage {
		case audio.StageSegmented:
			segmented++
			s.advance(ctx, job, StageSegmenting, 15+20*segmented)
		case audio.StageAssembled:
			s.advance(ctx, job, StageAssembling, 60)
		case audio.StageSpliced:
			s.advance(ctx, job, StageSplicing, 80)
		}
	})
	if err != nil {
		return fmt.Errorf("interlace: %w", err)
	}

	job.SetStats(Stats{
		LeftSegments:   len(res.Left),
		RightSegments:  len(res.Right),
		TimelineLength: len(res.Timeline),
		Clipped:        res.Clipped,
		InputDuration:  stereo.Duration(),
		OutputDuration: res.Output.Duration(),
	})

	outFormat := media.Format{
		SampleRate: res.Output.SampleRate,
		BitDepth:   format.BitDepth,
		Channels:   1,
	}
	if job.BitDepth != 0 {
		outFormat.BitDepth = job.BitDepth
	}

	s.advance(ctx, job, StageEncoding, 85)
	outputPath, err := s.storage.TempPath(ctx, job.ID, job.OutputFormat)
	if err != nil {
		return fmt.Errorf("reserve output: %w", err)
	}
	if err := s.codec.Encode(ctx, res.Output, outFormat, outputPath); err != nil {
		s.cleanup(outputPath, logger)
		return fmt.Errorf("encode output: %w", err)
	}

	var url string
	if job.PushToS3 {
		s.advance(ctx, job, StageUploading, 95)
		url, err = s.upload(ctx, job, outputPath)
		if err != nil {
			s.cleanup(outputPath, logger)
			return err
		}
	}
	job.SetOutput(outputPath, url)
	return nil
}

func (s *ProcessAudioService) upload(ctx context.Context, job *Job, path string) (string, error) {
	rc, err := s.storage.LoadTemp(ctx, path)
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer func() { _ = rc.Close() }()

	key := job.ID + "." + job.OutputFormat
	url, err := s.storage.Upload(ctx, key, rc, media.ContentType(job.OutputFormat))
	if err != nil {
		return "", fmt.Errorf("upload output: %w", err)
	}
	return url, nil
}

// finishWithError moves the job to the terminal state matching err.
// The job is saved with a detached context so a cancelled run is still recorded.
func (s *ProcessAudioService) finishWithError(ctx context.Context, job *Job, err error, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)

	var transitionErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		transitionErr = job.Timeout(err.Error())
	case errors.Is(err, context.Canceled):
		transitionErr = job.Cancel()
	default:
		transitionErr = job.Fail(err.Error())
	}
	if transitionErr != nil {
		logger.Error("failed to record job failure",
			slog.String("error", transitionErr.Error()),
		)
	}
	s.save(ctx, job)

	logger.Error("job did not complete",
		slog.String("status", string(job.GetStatus())),
		slog.String("error", err.Error()),
	)
}

func (s *ProcessAudioService) advance(ctx context.Context, job *Job, stage Stage, progress int) {
	job.SetStage(stage, progress)
	s.save(ctx, job)
}

func (s *ProcessAudioService) save(ctx context.Context, job *Job) {
	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Warn("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ProcessAudioService) cleanup(path string, logger *slog.Logger) {
	if err := s.storage.CleanupTemp(context.Background(), []string{path}); err != nil {
		logger.Warn("failed to remove temp file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func toOutput(job *Job) *ProcessAudioOutput {
	snap := job.Clone()
	return &ProcessAudioOutput{
		JobID:     snap.ID,
		Status:    snap.Status,
		AudioPath: snap.OutputAudioPath,
		AudioURL:  snap.AudioURL,
		Stats:     snap.Stats,
		Error:     snap.Error,
	}
}
