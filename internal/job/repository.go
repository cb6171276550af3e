package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when no interlace job has the requested ID.
var ErrJobNotFound = errors.New("job not found")

// Repository stores interlace jobs between the HTTP layer and the
// background worker. Implementations keep snapshots: mutating a Job after
// Save does not change the stored copy until it is saved again.
type Repository interface {
	// Save stores a snapshot of job, replacing any previous one with the same ID.
	Save(ctx context.Context, job *Job) error

	// FindByID returns a snapshot of the job or ErrJobNotFound.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns snapshots of every job ordered by creation time, ties by ID.
	List(ctx context.Context) ([]*Job, error)

	// Delete drops the job record. It does not touch audio files.
	// Returns ErrJobNotFound if the job does not exist.
	Delete(ctx context.Context, id string) error
}
