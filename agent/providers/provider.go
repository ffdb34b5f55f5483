// Package providers connects sub-agents to generative backends. A Provider
// opens one streaming response per turn; the stream yields chunks until a
// terminal chunk or an error.
package providers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jurni-app/planner/core/protocol"
)

// Sentinel errors classifying backend failures. ErrUnavailable and ErrTimeout
// are transient; ErrRejected means the backend refused the request.
var (
	ErrUnavailable = errors.New("backend unavailable")
	ErrTimeout     = errors.New("backend timeout")
	ErrRejected    = errors.New("backend rejected request")
)

// Request is everything a backend receives for one turn.
type Request struct {
	Phase protocol.Phase
	// Turn is the 1-based index of this turn within the current phase.
	Turn         int
	Instructions string
	Messages     []protocol.Message
	Tools        []protocol.Tool
	Context      json.RawMessage
	Itinerary    map[string]json.RawMessage
}

// Stream is an open backend response. Recv blocks for the next chunk and
// returns the terminal chunk last; after that, or after an error, the stream
// is exhausted. Close releases the response and is safe to call repeatedly.
type Stream interface {
	Recv(ctx context.Context) (protocol.Chunk, error)
	Close() error
}

// Provider opens backend streams.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}
