// Package agent implements the phase sub-agents and the registry that maps
// each lifecycle phase to one. Every sub-agent exposes the same HandleTurn
// capability; phases differ only by Profile.
package agent

import (
	"context"

	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/session"
)

// Turn is the input to one sub-agent invocation. Session is a read-only
// snapshot; sub-agents never write to the session store.
type Turn struct {
	Session *session.Session
	Input   protocol.Message
}

// SubAgent handles turns for one phase.
type SubAgent interface {
	// Phase returns the phase this sub-agent serves.
	Phase() protocol.Phase

	// HandleTurn starts the turn and returns its chunk sequence. The channel
	// yields exactly one terminal chunk (end or error) and then closes, even
	// when the backend fails partway or ctx is cancelled. Callers must drain
	// it until it closes.
	HandleTurn(ctx context.Context, turn Turn) <-chan protocol.Chunk
}

// phaseTurn returns the 1-based index of the next turn within the current
// phase of s.
func phaseTurn(s *session.Session) int {
	n := 1
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Phase != s.Phase {
			break
		}
		n++
	}
	return n
}
