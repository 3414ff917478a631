package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a landmark, group, or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStreamInProgress is returned when a second streaming fetch is
	// issued while a stream already holds the backend's only connection.
	ErrStreamInProgress = errors.New("a streaming fetch is already in progress on this connection")

	// ErrCollision is returned when a record with the same id already exists.
	ErrCollision = errors.New("record already exists")
)

// LandmarkNotFoundError decorates ErrNotFound with the offending name/class.
func LandmarkNotFoundError(name, class string) error {
	if class == "" {
		return fmt.Errorf("landmark %q: %w", name, ErrNotFound)
	}
	return fmt.Errorf("landmark %q (class %q): %w", name, class, ErrNotFound)
}
