package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/interlace-api/internal/audio"
	"github.com/maauso/interlace-api/internal/job"
	"github.com/maauso/interlace-api/internal/media"
)

// mockCodec implements media.Codec for testing.
type mockCodec struct {
	mock.Mock
}

func (m *mockCodec) Decode(ctx context.Context, path string) (audio.Buffer, media.Format, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(audio.Buffer), args.Get(1).(media.Format), args.Error(2)
}

func (m *mockCodec) Encode(ctx context.Context, buf audio.Buffer, format media.Format, path string) error {
	args := m.Called(ctx, buf, format, path)
	return args.Error(0)
}

// mockStorage implements storage.Storage for testing.
type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	args := m.Called(ctx, name, data)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) TempPath(ctx context.Context, name, ext string) (string, error) {
	args := m.Called(ctx, name, ext)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) LoadTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	args := m.Called(ctx, path)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockStorage) CleanupTemp(ctx context.Context, paths []string) error {
	args := m.Called(ctx, paths)
	return args.Error(0)
}

func (m *mockStorage) Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandlers(t *testing.T, opts ...HandlerOption) (*Handlers, *mockCodec, *mockStorage, job.Repository) {
	t.Helper()
	repo := job.NewMemoryRepository()
	codec := &mockCodec{}
	store := &mockStorage{}
	logger := testLogger()

	svc := job.NewProcessAudioService(repo, codec, audio.NewEngine(logger), store, logger)

	// Background processing is opted into per test.
	opts = append([]HandlerOption{WithAsyncProcessing(false)}, opts...)
	return NewHandlers(svc, logger, opts...), codec, store, repo
}

func audioB64() string {
	return base64.StdEncoding.EncodeToString([]byte("RIFF....WAVEfmt "))
}

func postJob(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	bodyJSON, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(bodyJSON))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func ptr[T any](v T) *T { return &v }

func TestHealth(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestCreateJob_Success(t *testing.T) {
	h, _, _, repo := newTestHandlers(t)

	rec := postJob(t, h.CreateJob, CreateJobRequest{
		AudioBase64:  audioB64(),
		OutputFormat: "flac",
		BitDepth:     24,
		Options: &OptionsRequest{
			FadeMs:   ptr(250),
			Ordering: ptr("alternating"),
		},
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateJobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, strings.HasPrefix(resp.ID, "job-"))
	assert.Equal(t, "IN_QUEUE", resp.Status)

	saved, err := repo.FindByID(context.Background(), resp.ID)
	require.NoError(t, err)
	want := audio.DefaultOptions()
	want.FadeMs = 250
	want.Ordering = audio.Alternating
	assert.Equal(t, want, saved.Options)
	assert.Equal(t, "wav", saved.InputFormat)
	assert.Equal(t, "flac", saved.OutputFormat)
	assert.Equal(t, 24, saved.BitDepth)
}

func TestCreateJob_UsesServerDefaults(t *testing.T) {
	defaults := audio.DefaultOptions()
	defaults.FadeShape = audio.Linear
	defaults.NoiseLevelDB = -45
	h, _, _, repo := newTestHandlers(t, WithDefaultOptions(defaults))

	rec := postJob(t, h.CreateJob, CreateJobRequest{AudioBase64: audioB64()})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateJobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	saved, err := repo.FindByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, defaults, saved.Options)
}

func TestCreateJob_InvalidJSON(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader("invalid json"))
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "INVALID_JSON", resp.Code)
}

func TestCreateJob_BodyTooLarge(t *testing.T) {
	h, _, _, repo := newTestHandlers(t, WithMaxBodyBytes(64))

	rec := postJob(t, h.CreateJob, CreateJobRequest{
		AudioBase64: base64.StdEncoding.EncodeToString(make([]byte, 256)),
	})

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "REQUEST_TOO_LARGE", resp.Code)

	jobs, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestWithMaxBodyBytes_IgnoresNonPositive(t *testing.T) {
	h := NewHandlers(nil, nil, WithMaxBodyBytes(0))
	assert.Equal(t, DefaultMaxBodyBytes, h.maxBodyBytes)
}

func TestCreateJob_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body CreateJobRequest
	}{
		{"missing audio", CreateJobRequest{}},
		{"audio not base64", CreateJobRequest{AudioBase64: "not base64!"}},
		{"unsupported input format", CreateJobRequest{AudioBase64: audioB64(), InputFormat: "mp3"}},
		{"unsupported output format", CreateJobRequest{AudioBase64: audioB64(), OutputFormat: "ogg"}},
		{"8-bit output", CreateJobRequest{AudioBase64: audioB64(), BitDepth: 8}},
		{"negative fade", CreateJobRequest{AudioBase64: audioB64(), Options: &OptionsRequest{FadeMs: ptr(-1)}}},
		{"zero min silence", CreateJobRequest{AudioBase64: audioB64(), Options: &OptionsRequest{MinSilenceSec: ptr(0.0)}}},
		{"positive noise level", CreateJobRequest{AudioBase64: audioB64(), Options: &OptionsRequest{NoiseLevelDB: ptr(6.0)}}},
		{"unknown ordering", CreateJobRequest{AudioBase64: audioB64(), Options: &OptionsRequest{Ordering: ptr("random")}}},
		{"unknown shape", CreateJobRequest{AudioBase64: audioB64(), Options: &OptionsRequest{FadeShape: ptr("cubic")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _, repo := newTestHandlers(t)

			rec := postJob(t, h.CreateJob, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, "VALIDATION_ERROR", resp.Code)

			jobs, err := repo.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, jobs)
		})
	}
}

func TestCreateJob_ProcessesInBackground(t *testing.T) {
	h, codec, store, repo := newTestHandlers(t, WithAsyncProcessing(true))

	samples := make([]float64, 2*400)
	for i := range samples {
		samples[i] = 0.25
	}
	stereo := audio.Buffer{Samples: samples, SampleRate: 100, Channels: 2}
	format := media.Format{SampleRate: 100, BitDepth: 16, Channels: 2}

	store.On("SaveTemp", mock.Anything, "input.wav", mock.Anything).Return("/tmp/in.wav", nil)
	codec.On("Decode", mock.Anything, "/tmp/in.wav").Return(stereo, format, nil)
	store.On("TempPath", mock.Anything, mock.Anything, "wav").Return("/tmp/out.wav", nil)
	codec.On("Encode", mock.Anything, mock.Anything, mock.Anything, "/tmp/out.wav").Return(nil)
	store.On("CleanupTemp", mock.Anything, []string{"/tmp/in.wav"}).Return(nil)

	rec := postJob(t, h.CreateJob, CreateJobRequest{AudioBase64: audioB64()})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp CreateJobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.Eventually(t, func() bool {
		j, err := repo.FindByID(context.Background(), resp.ID)
		return err == nil && j.Status == job.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	codec.AssertExpectations(t)
	store.AssertExpectations(t)
}

func getJob(h *Handlers, id string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	h.GetJob(rec, req)
	return rec
}

func TestGetJob_Queued(t *testing.T) {
	h, _, _, repo := newTestHandlers(t)
	testJob := job.New()
	require.NoError(t, repo.Save(context.Background(), testJob))

	rec := getJob(h, testJob.ID)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, testJob.ID, resp.ID)
	assert.Equal(t, "IN_QUEUE", resp.Status)
	assert.Equal(t, "queued", resp.Stage)
	assert.Equal(t, audio.DefaultOptions(), resp.Options)
	assert.Nil(t, resp.Stats)
	assert.Nil(t, resp.CompletedAt)
	assert.Empty(t, resp.AudioBase64)
}

func TestGetJob_NotFound(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)

	rec := getJob(h, "job-missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "JOB_NOT_FOUND", resp.Code)
}

func TestGetJob_MissingID(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)

	rec := getJob(h, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func completedJob(t *testing.T, repo job.Repository, outputPath, url string) *job.Job {
	t.Helper()
	testJob := job.New()
	require.NoError(t, testJob.Start())
	testJob.PushToS3 = url != ""
	testJob.SetOutput(outputPath, url)
	testJob.SetStats(job.Stats{LeftSegments: 2, RightSegments: 1, TimelineLength: 3, OutputDuration: 6400 * time.Millisecond})
	require.NoError(t, testJob.Complete())
	require.NoError(t, repo.Save(context.Background(), testJob))
	return testJob
}

func TestGetJob_WithS3URL(t *testing.T) {
	h, _, _, repo := newTestHandlers(t)
	testJob := completedJob(t, repo, "/tmp/out.wav", "https://bucket.s3.us-east-1.amazonaws.com/job.wav")

	rec := getJob(h, testJob.ID)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "COMPLETED", resp.Status)
	assert.Equal(t, 100, resp.Progress)
	assert.Equal(t, "https://bucket.s3.us-east-1.amazonaws.com/job.wav", resp.AudioURL)
	assert.Empty(t, resp.AudioBase64)
	require.NotNil(t, resp.Stats)
	assert.Equal(t, 3, resp.Stats.TimelineLength)
	assert.NotNil(t, resp.CompletedAt)
}

func TestGetJob_WithAudioBase64(t *testing.T) {
	h, _, _, repo := newTestHandlers(t)

	outputPath := filepath.Join(t.TempDir(), "out.wav")
	audioData := []byte("RIFF rendered mono")
	require.NoError(t, os.WriteFile(outputPath, audioData, 0o600))
	testJob := completedJob(t, repo, outputPath, "")

	rec := getJob(h, testJob.ID)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	decoded, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	require.NoError(t, err)
	assert.Equal(t, audioData, decoded)
}

func TestGetJob_OutputMissingStillReturnsJob(t *testing.T) {
	h, _, _, repo := newTestHandlers(t)
	testJob := completedJob(t, repo, filepath.Join(t.TempDir(), "gone.wav"), "")

	rec := getJob(h, testJob.ID)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "COMPLETED", resp.Status)
	assert.Empty(t, resp.AudioBase64)
}

func TestListJobs(t *testing.T) {
	h, _, _, repo := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.ListJobs(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jobs":[]}`, rec.Body.String())

	first := job.New()
	first.CreatedAt = time.Now().Add(-time.Minute)
	second := job.New()
	require.NoError(t, repo.Save(context.Background(), second))
	require.NoError(t, repo.Save(context.Background(), first))

	rec = httptest.NewRecorder()
	h.ListJobs(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))

	var resp ListJobsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, first.ID, resp.Jobs[0].ID)
	assert.Equal(t, second.ID, resp.Jobs[1].ID)
	assert.Equal(t, "IN_QUEUE", resp.Jobs[0].Status)
}

func deleteJob(h *Handlers, id string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodDelete, "/jobs/"+id, nil)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	h.DeleteJob(rec, req)
	return rec
}

func TestDeleteJob_Success(t *testing.T) {
	h, _, store, repo := newTestHandlers(t)
	testJob := completedJob(t, repo, "/tmp/out.wav", "")
	store.On("CleanupTemp", mock.Anything, []string{"/tmp/out.wav"}).Return(nil)

	rec := deleteJob(h, testJob.ID)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := repo.FindByID(context.Background(), testJob.ID)
	assert.ErrorIs(t, err, job.ErrJobNotFound)
	store.AssertExpectations(t)
}

func TestDeleteJob_InProgress(t *testing.T) {
	h, _, _, repo := newTestHandlers(t)
	testJob := job.New()
	require.NoError(t, testJob.Start())
	require.NoError(t, repo.Save(context.Background(), testJob))

	rec := deleteJob(h, testJob.ID)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "JOB_IN_PROGRESS", resp.Code)
}

func TestDeleteJob_NotFound(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)

	assert.Equal(t, http.StatusNotFound, deleteJob(h, "job-missing").Code)
	assert.Equal(t, http.StatusBadRequest, deleteJob(h, "").Code)
}

func TestRouter_Integration(t *testing.T) {
	h, _, store, _ := newTestHandlers(t)
	router := NewRouter(h, testLogger(), DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	bodyJSON, err := json.Marshal(CreateJobRequest{AudioBase64: audioB64()})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(bodyJSON))
	req.Header.Set(RequestIDHeader, "req-123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))

	var createResp CreateJobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&createResp))

	req = httptest.NewRequest(http.MethodGet, "/jobs/"+createResp.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), createResp.ID)

	// Queued jobs cannot be deleted.
	req = httptest.NewRequest(http.MethodDelete, "/jobs/"+createResp.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/jobs/"+createResp.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	store.AssertExpectations(t)
}

func TestCORSMiddleware(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)
	router := NewRouter(h, testLogger(), Config{AllowedOrigins: []string{"https://example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/jobs", nil)
	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	panicHandler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("test panic")
	})
	handler := RecoveryMiddleware(testLogger())(panicHandler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	assert.Empty(t, RequestID(context.Background()))
}
