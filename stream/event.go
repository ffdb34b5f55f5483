package stream

import (
	"encoding/json"
	"time"

	"github.com/jurni-app/planner/core/protocol"
)

// EventType identifies an outward event.
type EventType string

const (
	EventContent    EventType = "content"
	EventStructured EventType = "structured"
	EventItinerary  EventType = "itinerary"
	EventToolCall   EventType = "tool_call"
	EventTransition EventType = "transition"
	EventWarning    EventType = "warning"
	EventComplete   EventType = "complete"
	EventError      EventType = "error"

	// EventSessionClosed is published on the session feed when a session is
	// closed outside a turn. It never appears on a turn stream.
	EventSessionClosed EventType = "session_closed"
)

// Codes carried by warning and error events.
const (
	CodeInvalidTransition  = "InvalidTransition"
	CodeCompletionRejected = "CompletionRejected"
	CodeBackendUnavailable = "BackendUnavailable"
	CodeBackendTimeout     = "BackendTimeout"
	CodeBackendRejected    = "BackendRejected"
	CodeTurnTimeout        = "TurnTimeout"
	CodeCancelled          = "Cancelled"
	CodePersistFailed      = "PersistFailed"
	CodeStreamClosed       = "StreamClosed"
	CodeInternal           = "Internal"
)

// Event is one element of a turn's outward stream. Seq increases by one per
// event within a stream; the last event is always complete or error.
type Event struct {
	Seq       int64                    `json:"seq"`
	Type      EventType                `json:"type"`
	SessionID string                   `json:"session_id"`
	TurnID    string                   `json:"turn_id,omitempty"`
	Phase     protocol.Phase           `json:"phase,omitempty"`
	Text      string                   `json:"text,omitempty"`
	DataType  string                   `json:"data_type,omitempty"`
	Data      json.RawMessage          `json:"data,omitempty"`
	Delta     *protocol.ItineraryDelta `json:"delta,omitempty"`
	ToolCall  *protocol.ToolCall       `json:"tool_call,omitempty"`
	From      protocol.Phase           `json:"from,omitempty"`
	To        protocol.Phase           `json:"to,omitempty"`
	Code      string                   `json:"code,omitempty"`
	Message   string                   `json:"message,omitempty"`
	Status    string                   `json:"status,omitempty"`
	Closed    bool                     `json:"closed,omitempty"`
	Timestamp time.Time                `json:"timestamp"`
}

// IsTerminal reports whether the event ends its stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// FromChunk converts a content chunk into its outward event. Transition
// proposals and terminal chunks are decided by the orchestrator and are not
// forwarded; ok is false for them.
func FromChunk(c protocol.Chunk) (Event, bool) {
	switch c.Kind {
	case protocol.ChunkText:
		return Event{Type: EventContent, Text: c.Text}, true
	case protocol.ChunkStructured:
		return Event{Type: EventStructured, DataType: c.DataType, Data: c.Data}, true
	case protocol.ChunkItinerary:
		return Event{Type: EventItinerary, Delta: c.Delta.Clone()}, true
	case protocol.ChunkToolCall:
		if c.ToolCall == nil {
			return Event{}, false
		}
		call := *c.ToolCall
		return Event{Type: EventToolCall, ToolCall: &call}, true
	default:
		return Event{}, false
	}
}

// Warning returns a non-terminal warning event.
func Warning(code, message string) Event {
	return Event{Type: EventWarning, Code: code, Message: message}
}

// Failure returns a terminal error event.
func Failure(code, message string) Event {
	return Event{Type: EventError, Code: code, Message: message}
}
