// Package response parses the output of generative backends into planner
// chunks and detects structured payloads (flight and hotel listings) inside
// tool results.
package response

import (
	"encoding/json"
	"fmt"

	"github.com/jurni-app/planner/core/protocol"
)

// Frame is one line of a backend's newline-delimited JSON turn stream.
type Frame struct {
	Type     protocol.ChunkKind         `json:"type"`
	Text     string                     `json:"text,omitempty"`
	Set      map[string]json.RawMessage `json:"set,omitempty"`
	Remove   []string                   `json:"remove,omitempty"`
	DataType string                     `json:"data_type,omitempty"`
	Data     json.RawMessage            `json:"data,omitempty"`
	ToolCall *protocol.ToolCall         `json:"tool_call,omitempty"`
	Target   protocol.Phase             `json:"target,omitempty"`
	Complete bool                       `json:"complete,omitempty"`
	Reason   string                     `json:"reason,omitempty"`
	Code     string                     `json:"code,omitempty"`
	Error    string                     `json:"error,omitempty"`
}

// FrameError is a failure reported in-band by the backend.
type FrameError struct {
	Code    string
	Message string
}

func (e *FrameError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ParseFrame decodes a single stream line into a Chunk.
// Error frames produce a ChunkError carrying a *FrameError.
func ParseFrame(line []byte) (protocol.Chunk, error) {
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return protocol.Chunk{}, fmt.Errorf("failed to parse frame: %w", err)
	}
	return f.Chunk()
}

// Chunk converts the frame into its planner representation.
func (f Frame) Chunk() (protocol.Chunk, error) {
	switch f.Type {
	case protocol.ChunkText:
		return protocol.TextChunk(f.Text), nil
	case protocol.ChunkItinerary:
		return protocol.ItineraryChunk(&protocol.ItineraryDelta{Set: f.Set, Remove: f.Remove}), nil
	case protocol.ChunkStructured:
		return protocol.StructuredChunk(f.DataType, f.Data), nil
	case protocol.ChunkToolCall:
		if f.ToolCall == nil || f.ToolCall.Name == "" {
			return protocol.Chunk{}, fmt.Errorf("tool_call frame missing tool name")
		}
		return protocol.ToolCallChunk(*f.ToolCall), nil
	case protocol.ChunkTransition:
		if f.Target != "" && !protocol.IsValid(string(f.Target)) {
			return protocol.Chunk{}, fmt.Errorf("%w: %q", protocol.ErrUnknownPhase, f.Target)
		}
		return protocol.TransitionChunk(protocol.Proposal{
			Target:   f.Target,
			Complete: f.Complete,
			Reason:   f.Reason,
		}), nil
	case protocol.ChunkError:
		return protocol.ErrorChunk(&FrameError{Code: f.Code, Message: f.Error}), nil
	case protocol.ChunkEnd:
		return protocol.EndChunk(), nil
	default:
		return protocol.Chunk{}, fmt.Errorf("unknown frame type: %q", f.Type)
	}
}

// NewFrame converts a chunk into its wire frame.
func NewFrame(c protocol.Chunk) Frame {
	f := Frame{
		Type:     c.Kind,
		Text:     c.Text,
		DataType: c.DataType,
		Data:     c.Data,
		ToolCall: c.ToolCall,
	}
	if c.Delta != nil {
		f.Set = c.Delta.Set
		f.Remove = c.Delta.Remove
	}
	if c.Proposal != nil {
		f.Target = c.Proposal.Target
		f.Complete = c.Proposal.Complete
		f.Reason = c.Proposal.Reason
	}
	if c.Err != nil {
		f.Error = c.Err.Error()
		if fe, ok := c.Err.(*FrameError); ok {
			f.Code = fe.Code
			f.Error = fe.Message
		}
	}
	return f
}
