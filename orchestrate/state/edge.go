package state

import "github.com/jurni-app/planner/core/protocol"

// Edge represents an allowed transition between phases.
type Edge struct {
	// From is the source phase
	From protocol.Phase

	// To is the destination phase
	To protocol.Phase

	// Name is an optional label for the transition (e.g., "revise", "depart")
	Name string
}
