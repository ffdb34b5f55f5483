package orchestrator

import "errors"

var (
	// ErrForbidden indicates a caller acting on a session it does not own.
	ErrForbidden = errors.New("forbidden")

	// ErrPersistFailed indicates a turn whose outcome could not be stored.
	ErrPersistFailed = errors.New("failed to persist turn")

	// ErrSessionBusy indicates the session lock was not acquired in time.
	ErrSessionBusy = errors.New("session busy")

	// ErrEmptyMessage indicates a turn without user input.
	ErrEmptyMessage = errors.New("message is empty")
)
