package state

import "errors"

var (
	// ErrCorrupt marks a snapshot that exists but cannot be decoded.
	// Callers must refuse to serve traffic rather than start empty.
	ErrCorrupt = errors.New("state: snapshot corrupt")
	// ErrNotFound is returned when removing something that is not present.
	ErrNotFound = errors.New("state: not found")
	// ErrInvalidInput rejects empty credentials, voices and ids.
	ErrInvalidInput = errors.New("state: invalid input")
	// ErrNoSnapshot is returned by a Backend when nothing was persisted yet.
	ErrNoSnapshot = errors.New("state: no snapshot")
)
