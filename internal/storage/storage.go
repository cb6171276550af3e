// Package storage provides temporary and persistent file storage for
// interlace jobs. It defines the Storage interface (port) and
// implementations for local disk and S3.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for temporary and persistent file storage.
// Uploaded inputs and rendered outputs live in temporary files while a job
// runs; finished renders can optionally be pushed to object storage.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// TempPath reserves a unique, empty temporary file with the given
	// extension and returns its path. Encoders overwrite it.
	TempPath(ctx context.Context, name, ext string) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Upload stores data under key in object storage and returns its URL.
	// Returns ErrS3NotConfigured if no object storage is configured.
	Upload(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)
}
