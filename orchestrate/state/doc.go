// Package state provides the phase transition graph that governs how a
// planning session moves through its lifecycle.
//
// The graph is a directed graph over the fixed phase set. It is built once at
// startup from configuration, validated, and frozen; afterwards it is shared
// read-only across all sessions without locking.
//
// # Structural Invariants
//
// Validate enforces:
//   - The entry point has in-degree zero; it is only reached by creating a session
//   - Every phase is reachable from the entry point
//   - Every phase has a path to an exit point (no orphaned phases)
//   - Exit points have no outgoing edges
//
// # Transitions
//
// IsValidTransition is a pure check. Transition additionally reports the
// outcome to the graph's observer and returns a *TransitionError wrapping
// ErrInvalidTransition for undeclared moves:
//
//	if err := graph.Transition(ctx, protocol.PhasePlanning, protocol.PhaseInTrip); err != nil {
//	    var te *state.TransitionError
//	    errors.As(err, &te) // te.From == planning, te.To == in_trip
//	}
package state
