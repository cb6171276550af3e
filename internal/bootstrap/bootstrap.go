// Package bootstrap provides dependency initialization for the interlace API.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/interlace-api/internal/audio"
	"github.com/maauso/interlace-api/internal/config"
	"github.com/maauso/interlace-api/internal/job"
	"github.com/maauso/interlace-api/internal/media"
	"github.com/maauso/interlace-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	AudioService *job.ProcessAudioService
	Storage      storage.Storage
	// Defaults are the interlace options requests start from.
	Defaults audio.Options
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	codec := NewCodec(cfg.FFmpegPath, cfg.FFprobePath, cfg.TempDir, cfg.KeepTemp)
	engine := audio.NewEngine(logger)
	repo := job.NewMemoryRepository()

	svc := job.NewProcessAudioService(
		repo,
		codec,
		engine,
		store,
		logger,
		job.WithKeepTemp(cfg.KeepTemp),
		job.WithProcessTimeout(cfg.ProcessTimeout()),
	)

	return &Dependencies{
		AudioService: svc,
		Storage:      store,
		Defaults:     cfg.ProcessOptions(),
	}, nil
}

// NewCodec builds the file codec shared by the server and the CLI.
func NewCodec(ffmpegPath, ffprobePath, tempDir string, keepTemp bool) *media.FFmpegCodec {
	return media.NewFFmpegCodec(ffmpegPath,
		media.WithFFprobePath(ffprobePath),
		media.WithTempDir(tempDir),
		media.WithKeepTemp(keepTemp),
	)
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			KeyPrefix:       cfg.S3KeyPrefix,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("endpoint", cfg.S3Endpoint),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
