package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/interlace-api/internal/audio"
	"github.com/maauso/interlace-api/internal/job"
)

// DefaultMaxBodyBytes caps POST /jobs bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 256 << 20

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.ProcessAudioService
	validator          *validator.Validate
	logger             *slog.Logger
	defaults           audio.Options
	maxBodyBytes       int64
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithDefaultOptions sets the interlace options that requests override.
func WithDefaultOptions(opts audio.Options) HandlerOption {
	return func(h *Handlers) {
		h.defaults = opts
	}
}

// WithMaxBodyBytes limits the size of job submission bodies.
// Non-positive values keep the default.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.ProcessAudioService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(validator.WithRequiredStructEnabled()),
		logger:             logger,
		defaults:           audio.DefaultOptions(),
		maxBodyBytes:       DefaultMaxBodyBytes,
		enableAsyncProcess: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("request body too large",
				slog.Int64("limit_bytes", tooLarge.Limit),
			)
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "REQUEST_TOO_LARGE")
			return
		}
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	input := job.ProcessAudioInput{
		AudioBase64:  req.AudioBase64,
		InputFormat:  req.InputFormat,
		OutputFormat: req.OutputFormat,
		BitDepth:     req.BitDepth,
		PushToS3:     req.PushToS3,
		Options:      req.Options.apply(h.defaults),
	}

	createdJob, err := h.service.CreateJob(r.Context(), input)
	if err != nil {
		if errors.Is(err, job.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	// The request context ends with the response; processing must outlive it.
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string, inp job.ProcessAudioInput) {
			if _, processErr := h.service.ProcessExistingJob(ctx, jobID, inp); processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID, input)
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.String("ordering", string(input.Options.Ordering)),
		slog.Int("fade_ms", input.Options.FadeMs),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
	})
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_LIST_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobSummary, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, JobSummary{
			ID:        j.ID,
			Status:    string(j.Status),
			Stage:     string(j.Stage),
			Progress:  j.Progress,
			CreatedAt: j.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	resp := JobResponse{
		ID:           foundJob.ID,
		Status:       string(foundJob.Status),
		Stage:        string(foundJob.Stage),
		Progress:     foundJob.Progress,
		Error:        foundJob.Error,
		Options:      foundJob.Options,
		OutputFormat: foundJob.OutputFormat,
		CreatedAt:    foundJob.CreatedAt,
	}
	if !foundJob.CompletedAt.IsZero() {
		resp.CompletedAt = &foundJob.CompletedAt
	}

	if foundJob.Status == job.StatusCompleted {
		stats := foundJob.Stats
		resp.Stats = &stats

		if foundJob.PushToS3 && foundJob.AudioURL != "" {
			resp.AudioURL = foundJob.AudioURL
		} else if foundJob.OutputAudioPath != "" {
			data, err := os.ReadFile(foundJob.OutputAudioPath)
			if err != nil {
				// The job stays readable without its payload.
				h.logger.Error("failed to read output audio",
					slog.String("job_id", jobID),
					slog.String("path", foundJob.OutputAudioPath),
					slog.String("error", err.Error()),
				)
			} else {
				resp.AudioBase64 = base64.StdEncoding.EncodeToString(data)
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// DeleteJob handles DELETE /jobs/{id} requests.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	err := h.service.DeleteJob(r.Context(), jobID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
	case errors.Is(err, job.ErrJobInProgress):
		writeError(w, http.StatusConflict, "job is still in progress", "JOB_IN_PROGRESS")
	default:
		h.logger.Error("failed to delete job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete job", "JOB_DELETE_FAILED")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
