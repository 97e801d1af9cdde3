// Package sentinel holds the storage-level facts stores report. Services
// translate them into domain errors; callers never see them directly.
package sentinel

import "errors"

var (
	// ErrNotFound: no such run, person or snapshot.
	ErrNotFound = errors.New("not found")
	// ErrConflict: duplicate key, or a lock held by someone else.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable: the backing store could not be reached.
	ErrUnavailable = errors.New("unavailable")
)
