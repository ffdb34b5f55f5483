package session

import "errors"

// Sentinel errors for Store operations.
var (
	ErrNotFound      = errors.New("session not found")
	ErrAlreadyExists = errors.New("session already exists")
	ErrSessionClosed = errors.New("session closed")
	ErrInvalidID     = errors.New("invalid session id")
	ErrInvalidPhase  = errors.New("invalid phase")
	ErrConflict      = errors.New("concurrent modification")
	ErrPersist       = errors.New("persist failed")
)
