// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/interlace-api/internal/audio"
)

// Static errors for configuration validation.
var (
	// ErrInvalidProcessing is returned when the processing defaults are out of range.
	ErrInvalidProcessing = errors.New("config: invalid processing defaults")
	// ErrInvalidServer is returned when server or logging settings are malformed.
	ErrInvalidServer = errors.New("config: invalid server settings")
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port         int `env:"PORT, default=8080" json:"port" validate:"gte=1,lte=65535"`
	MaxRequestMB int `env:"MAX_REQUEST_MB, default=256" json:"max_request_mb" validate:"gte=1"`

	// Storage settings
	TempDir  string `env:"TEMP_DIR, default=/tmp/interlace" json:"temp_dir" validate:"required"`
	KeepTemp bool   `env:"KEEP_TEMP, default=false" json:"keep_temp"`

	// Codec settings
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Processing settings
	ProcessTimeoutSec int     `env:"PROCESS_TIMEOUT_SEC, default=600" json:"process_timeout_sec" validate:"gte=0"`
	FadeMs            int     `env:"FADE_MS, default=500" json:"fade_ms"`
	MinSegmentSec     float64 `env:"MIN_SEGMENT_SEC, default=1.0" json:"min_segment_sec"`
	MinSilenceSec     float64 `env:"MIN_SILENCE_SEC, default=0.5" json:"min_silence_sec"`
	NoiseLevelDB      float64 `env:"NOISE_LEVEL_DB, default=-30" json:"noise_level_db"`
	Ordering          string  `env:"ORDERING, default=chronological" json:"ordering"`
	FadeShape         string  `env:"FADE_SHAPE, default=equal_power" json:"fade_shape"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	S3KeyPrefix        string `env:"S3_KEY_PREFIX" json:"s3_key_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=text json TEXT JSON"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"` // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// MaxRequestBytes returns the request body limit for job submissions.
func (c *Config) MaxRequestBytes() int64 {
	return int64(c.MaxRequestMB) << 20
}

// ProcessTimeout returns the per-job processing limit. Zero disables it.
func (c *Config) ProcessTimeout() time.Duration {
	return time.Duration(c.ProcessTimeoutSec) * time.Second
}

// ProcessOptions returns the interlace defaults carried by the configuration.
func (c *Config) ProcessOptions() audio.Options {
	return audio.Options{
		FadeMs:        c.FadeMs,
		MinSegmentSec: c.MinSegmentSec,
		MinSilenceSec: c.MinSilenceSec,
		NoiseLevelDB:  c.NoiseLevelDB,
		Ordering:      audio.OrderingPolicy(c.Ordering),
		FadeShape:     audio.FadeShape(c.FadeShape),
	}
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	return LoadFrom(context.Background(), envconfig.OsLookuper())
}

// LoadFrom reads configuration from the given lookuper.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks server, storage and processing settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidServer, err)
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	if err := c.ProcessOptions().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProcessing, err)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.newLogger(os.Stdout)
}

func (c *Config) newLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, MaxRequestMB: %d, TempDir: %s, KeepTemp: %t, FFmpegPath: %s, ProcessTimeoutSec: %d, FadeMs: %d, MinSegmentSec: %g, MinSilenceSec: %g, NoiseLevelDB: %g, Ordering: %s, FadeShape: %s, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, AWSAccessKeyID: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.MaxRequestMB,
		c.TempDir,
		c.KeepTemp,
		c.FFmpegPath,
		c.ProcessTimeoutSec,
		c.FadeMs,
		c.MinSegmentSec,
		c.MinSilenceSec,
		c.NoiseLevelDB,
		c.Ordering,
		c.FadeShape,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		mask(c.AWSAccessKeyID),
		c.LogFormat,
		c.LogLevel,
	)
}

// mask keeps the last four characters of a secret.
func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
