package store

import "errors"

var (
	// ErrNotFound is returned when a requested record is not found
	ErrNotFound = errors.New("not found")

	// ErrNotConfigured is returned when no database URL is set
	ErrNotConfigured = errors.New("database not configured")
)
