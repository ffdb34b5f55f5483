package state

import (
	"errors"
	"fmt"

	"github.com/jurni-app/planner/core/protocol"
)

var (
	// ErrInvalidTransition indicates a proposed move along an undeclared edge.
	ErrInvalidTransition = errors.New("invalid phase transition")

	// ErrInvalidGraph indicates a graph that violates a structural invariant.
	ErrInvalidGraph = errors.New("invalid phase graph")

	// ErrGraphFrozen is returned by mutators after Freeze.
	ErrGraphFrozen = errors.New("phase graph is frozen")
)

// TransitionError captures the rejected move.
type TransitionError struct {
	From protocol.Phase
	To   protocol.Phase
	Err  error
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s: %v", e.From, e.To, e.Err)
}

// Unwrap enables error unwrapping for errors.Is and errors.As.
func (e *TransitionError) Unwrap() error {
	return e.Err
}
