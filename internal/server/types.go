// Package server provides the HTTP server for the interlace API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/interlace-api/internal/audio"
	"github.com/maauso/interlace-api/internal/job"
)

// CreateJobRequest is the HTTP request body for creating a new job.
type CreateJobRequest struct {
	// AudioBase64 is the base64-encoded stereo source.
	AudioBase64 string `json:"audio_base64" validate:"required,base64"`
	// InputFormat is the source container. Defaults to wav.
	InputFormat string `json:"input_format" validate:"omitempty,oneof=wav flac"`
	// OutputFormat is the render container. Defaults to wav.
	OutputFormat string `json:"output_format" validate:"omitempty,oneof=wav flac"`
	// BitDepth of the render; 0 keeps the source depth.
	BitDepth int `json:"bit_depth" validate:"omitempty,oneof=16 24 32"`
	// PushToS3 indicates whether to upload the render to S3.
	PushToS3 bool `json:"push_to_s3"`
	// Options overrides the server's default interlace options field by field.
	Options *OptionsRequest `json:"options"`
}

// OptionsRequest carries optional interlace option overrides.
type OptionsRequest struct {
	FadeMs        *int     `json:"fade_ms" validate:"omitempty,gte=0,lte=60000"`
	MinSegmentSec *float64 `json:"min_segment_sec" validate:"omitempty,gte=0,lte=3600"`
	MinSilenceSec *float64 `json:"min_silence_sec" validate:"omitempty,gt=0,lte=3600"`
	NoiseLevelDB  *float64 `json:"noise_level_db" validate:"omitempty,gte=-200,lte=0"`
	Ordering      *string  `json:"ordering" validate:"omitempty,oneof=chronological alternating"`
	FadeShape     *string  `json:"fade_shape" validate:"omitempty,oneof=linear equal_power"`
}

// apply returns base with every set field overridden.
func (o *OptionsRequest) apply(base audio.Options) audio.Options {
	if o == nil {
		return base
	}
	if o.FadeMs != nil {
		base.FadeMs = *o.FadeMs
	}
	if o.MinSegmentSec != nil {
		base.MinSegmentSec = *o.MinSegmentSec
	}
	if o.MinSilenceSec != nil {
		base.MinSilenceSec = *o.MinSilenceSec
	}
	if o.NoiseLevelDB != nil {
		base.NoiseLevelDB = *o.NoiseLevelDB
	}
	if o.Ordering != nil {
		base.Ordering = audio.OrderingPolicy(*o.Ordering)
	}
	if o.FadeShape != nil {
		base.FadeShape = audio.FadeShape(*o.FadeShape)
	}
	return base
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Stage    string `json:"stage"`
	Progress int    `json:"progress"`
	// Error contains any error message if the job did not complete.
	Error   string        `json:"error,omitempty"`
	Options audio.Options `json:"options"`
	// Stats is set once the job has completed.
	Stats        *job.Stats `json:"stats,omitempty"`
	OutputFormat string     `json:"output_format"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	// AudioBase64 is the base64-encoded render (if push_to_s3=false and completed).
	AudioBase64 string `json:"audio_base64,omitempty"`
	// AudioURL is the S3 URL of the render (if push_to_s3=true and completed).
	AudioURL string `json:"audio_url,omitempty"`
}

// JobSummary is a compact job entry for listings.
type JobSummary struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Stage     string    `json:"stage"`
	Progress  int       `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
}

// ListJobsResponse is the HTTP response for listing jobs.
type ListJobsResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}
