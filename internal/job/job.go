// Package job provides the Job aggregate for managing interlace jobs.
// It includes the Job entity with its state machine, the repository port,
// and the ProcessAudioService use case that drives a job to completion.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/interlace-api/internal/audio"
	"github.com/maauso/interlace-api/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting to be processed.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job is being processed.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job encountered an error during execution.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled.
	StatusCancelled Status = "CANCELLED"
	// StatusTimedOut indicates processing exceeded its deadline.
	StatusTimedOut Status = "TIMED_OUT"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled, StatusTimedOut},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusTimedOut:  {},
}

func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Stage names the step a running job is in.
type Stage string

const (
	StageQueued     Stage = "queued"
	StageDecoding   Stage = "decoding"
	StageSegmenting Stage = "segmenting"
	StageAssembling Stage = "assembling"
	StageSplicing   Stage = "splicing"
	StageEncoding   Stage = "encoding"
	StageUploading  Stage = "uploading"
	StageDone       Stage = "done"
)

// Stats summarizes the result of an interlace run.
type Stats struct {
	LeftSegments   int           `json:"left_segments"`
	RightSegments  int           `json:"right_segments"`
	TimelineLength int           `json:"timeline_length"`
	Clipped        int           `json:"clipped_samples"`
	InputDuration  time.Duration `json:"input_duration"`
	OutputDuration time.Duration `json:"output_duration"`
}

// Job represents an interlace job aggregate.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Stage is the processing step currently running.
	Stage Stage
	// Progress is the percentage of completion (0-100).
	Progress int
	// Error contains any error message if the job did not complete.
	Error string
	// Options are the interlace parameters the job runs with.
	Options audio.Options
	// Stats is filled in when processing completes.
	Stats Stats
	// InputFormat and OutputFormat are container extensions (wav, flac).
	InputFormat  string
	OutputFormat string
	// BitDepth of the rendered output; 0 keeps the input depth.
	BitDepth int
	// InputAudioPath is the path to the uploaded stereo source.
	InputAudioPath string
	// OutputAudioPath is the path to the rendered mono file.
	OutputAudioPath string
	// PushToS3 indicates whether to upload the result to S3.
	PushToS3 bool
	// AudioURL is the S3 URL if PushToS3 was true.
	AudioURL string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:           jobID,
		Status:       StatusInQueue,
		Stage:        StageQueued,
		Options:      audio.DefaultOptions(),
		InputFormat:  "wav",
		OutputFormat: "wav",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted:
		j.CompletedAt = j.UpdatedAt
		j.Progress = 100
		j.Stage = StageDone
	case StatusFailed, StatusCancelled, StatusTimedOut:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED state.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to FAILED state with an error message.
func (j *Job) Fail(errMsg string) error {
	return j.finish(StatusFailed, errMsg)
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.finish(StatusCancelled, "")
}

// Timeout transitions the job to TIMED_OUT state.
func (j *Job) Timeout(errMsg string) error {
	return j.finish(StatusTimedOut, errMsg)
}

func (j *Job) finish(status Status, errMsg string) error {
	if err := j.TransitionTo(status); err != nil {
		return err
	}
	if errMsg != "" {
		j.mu.Lock()
		j.Error = errMsg
		j.mu.Unlock()
	}
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// SetStage records the current stage and progress percentage (0-100).
// Progress never moves backwards.
func (j *Job) SetStage(stage Stage, progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Stage = stage
	progress = max(0, min(progress, 100))
	if progress > j.Progress {
		j.Progress = progress
	}
	j.UpdatedAt = time.Now()
}

// SetStats records the run summary.
func (j *Job) SetStats(stats Stats) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Stats = stats
	j.UpdatedAt = time.Now()
}

// SetInput records the path of the uploaded source.
func (j *Job) SetInput(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.InputAudioPath = path
	j.UpdatedAt = time.Now()
}

// SetOutput sets the output audio path and optional S3 URL.
func (j *Job) SetOutput(audioPath, audioURL string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputAudioPath = audioPath
	j.AudioURL = audioURL
	j.UpdatedAt = time.Now()
}

// ClearOutput clears the output audio path and URL.
func (j *Job) ClearOutput() {
	j.SetOutput("", "")
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(validTransitions[j.Status]) == 0
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:              j.ID,
		Status:          j.Status,
		Stage:           j.Stage,
		Progress:        j.Progress,
		Error:           j.Error,
		Options:         j.Options,
		Stats:           j.Stats,
		InputFormat:     j.InputFormat,
		OutputFormat:    j.OutputFormat,
		BitDepth:        j.BitDepth,
		InputAudioPath:  j.InputAudioPath,
		OutputAudioPath: j.OutputAudioPath,
		PushToS3:        j.PushToS3,
		AudioURL:        j.AudioURL,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
	}
}
