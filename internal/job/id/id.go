// Package id provides unique identifier generation for jobs.
package id

import "github.com/google/uuid"

// Prefix is prepended to every generated job ID.
const Prefix = "job-"

// Generate creates a new unique job ID.
// Format: job-<uuid>
// Example: job-0b5c6f1e-2f44-4c41-9d5b-7a3f0c2b9e11
func Generate() string {
	return Prefix + uuid.NewString()
}

// Valid reports whether s looks like an ID produced by Generate.
func Valid(s string) bool {
	if len(s) <= len(Prefix) || s[:len(Prefix)] != Prefix {
		return false
	}
	return uuid.Validate(s[len(Prefix):]) == nil
}
