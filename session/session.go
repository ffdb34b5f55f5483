// Package session is the durable record of planning conversations. A Session
// carries the current lifecycle phase, the ordered turn history, and the
// itinerary draft accreted across phases. Store implementations apply every
// mutation to one session atomically.
package session

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/jurni-app/planner/core/protocol"
)

// TurnStatus records how a turn ended.
type TurnStatus string

const (
	StatusComplete  TurnStatus = "complete"
	StatusPartial   TurnStatus = "partial"
	StatusCancelled TurnStatus = "cancelled"
	StatusFailed    TurnStatus = "failed"
)

// Transition is a phase change applied by a turn.
type Transition struct {
	From protocol.Phase `json:"from"`
	To   protocol.Phase `json:"to"`
}

// TurnRecord is one processed turn. Records are immutable once appended.
type TurnRecord struct {
	ID          string           `json:"id"`
	Seq         int              `json:"seq"`
	Phase       protocol.Phase   `json:"phase"`
	Input       protocol.Message `json:"input"`
	Output      protocol.Message `json:"output"`
	Chunks      []protocol.Chunk `json:"chunks,omitempty"`
	Status      TurnStatus       `json:"status"`
	Error       string           `json:"error,omitempty"`
	Transition  *Transition      `json:"transition,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

// Session is the state of one planning conversation.
type Session struct {
	ID        string                     `json:"id"`
	Owner     string                     `json:"owner,omitempty"`
	Phase     protocol.Phase             `json:"phase"`
	Turns     []TurnRecord               `json:"turns"`
	Itinerary map[string]json.RawMessage `json:"itinerary"`
	Context   json.RawMessage            `json:"context,omitempty"`
	Closed    bool                       `json:"closed"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Revision  uint64                     `json:"revision"`
}

// Init carries the values a new session starts with.
type Init struct {
	Owner   string
	Phase   protocol.Phase
	Context json.RawMessage
}

// TurnUpdate is the single atomic mutation applied after a turn. Transition
// must already be validated against the phase graph.
type TurnUpdate struct {
	Turn       TurnRecord
	Transition *Transition
	Delta      *protocol.ItineraryDelta
	Close      bool
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Context = slices.Clone(s.Context)
	c.Itinerary = cloneItinerary(s.Itinerary)
	c.Turns = make([]TurnRecord, len(s.Turns))
	for i, t := range s.Turns {
		c.Turns[i] = t.clone()
	}
	return &c
}

// LastTurn returns the most recent turn, or nil for a fresh session.
func (s *Session) LastTurn() *TurnRecord {
	if len(s.Turns) == 0 {
		return nil
	}
	t := s.Turns[len(s.Turns)-1].clone()
	return &t
}

// Messages flattens the turn history into conversation messages.
func (s *Session) Messages() []protocol.Message {
	msgs := make([]protocol.Message, 0, len(s.Turns)*2)
	for _, t := range s.Turns {
		msgs = append(msgs, t.Input)
		if t.Output.Content != "" {
			msgs = append(msgs, t.Output)
		}
	}
	return msgs
}

func (t TurnRecord) clone() TurnRecord {
	c := t
	c.Input.ToolCalls = slices.Clone(t.Input.ToolCalls)
	c.Output.ToolCalls = slices.Clone(t.Output.ToolCalls)
	if t.Transition != nil {
		tr := *t.Transition
		c.Transition = &tr
	}
	if t.Chunks != nil {
		c.Chunks = make([]protocol.Chunk, len(t.Chunks))
		for i, ch := range t.Chunks {
			c.Chunks[i] = cloneChunk(ch)
		}
	}
	return c
}

func cloneChunk(ch protocol.Chunk) protocol.Chunk {
	c := ch
	c.Delta = ch.Delta.Clone()
	c.Data = slices.Clone(ch.Data)
	if ch.ToolCall != nil {
		tc := *ch.ToolCall
		c.ToolCall = &tc
	}
	if ch.Proposal != nil {
		p := *ch.Proposal
		c.Proposal = &p
	}
	return c
}

func cloneItinerary(src map[string]json.RawMessage) map[string]json.RawMessage {
	dst := make(map[string]json.RawMessage, len(src))
	for k, v := range maps.All(src) {
		dst[k] = slices.Clone(v)
	}
	return dst
}
