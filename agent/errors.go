package agent

import (
	"errors"

	"github.com/jurni-app/planner/core/protocol"
)

// Sentinel errors for sub-agents and the phase registry.
var (
	ErrUnknownPhase       = protocol.ErrUnknownPhase
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrBackendTimeout     = errors.New("backend timeout")
	ErrBackendRejected    = errors.New("backend rejected turn")
	ErrMissingAgent       = errors.New("phase has no sub-agent")
	ErrDuplicateAgent     = errors.New("phase has more than one sub-agent")
)

// IsRetryable reports whether a turn that failed with err may succeed when
// submitted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrBackendTimeout)
}
