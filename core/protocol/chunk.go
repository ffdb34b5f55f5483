package protocol

import (
	"encoding/json"
	"maps"
	"slices"
)

// ChunkKind identifies the payload carried by a Chunk.
type ChunkKind string

const (
	ChunkText       ChunkKind = "text"
	ChunkItinerary  ChunkKind = "itinerary"
	ChunkStructured ChunkKind = "structured"
	ChunkToolCall   ChunkKind = "tool_call"
	ChunkTransition ChunkKind = "transition"
	ChunkError      ChunkKind = "error"
	ChunkEnd        ChunkKind = "end"
)

// ItineraryDelta is an incremental change to the itinerary draft. Set adds or
// refines named components; Remove is the only way entries leave the draft.
type ItineraryDelta struct {
	Set    map[string]json.RawMessage `json:"set,omitempty"`
	Remove []string                   `json:"remove,omitempty"`
}

// IsEmpty reports whether the delta carries no changes.
func (d *ItineraryDelta) IsEmpty() bool {
	return d == nil || (len(d.Set) == 0 && len(d.Remove) == 0)
}

// Merge folds other into d. Later values win; a later Set of a removed key
// cancels the removal, and a later Remove drops an earlier Set.
func (d *ItineraryDelta) Merge(other *ItineraryDelta) {
	if other.IsEmpty() {
		return
	}

	for _, key := range other.Remove {
		delete(d.Set, key)
		if !slices.Contains(d.Remove, key) {
			d.Remove = append(d.Remove, key)
		}
	}

	for key, value := range other.Set {
		if d.Set == nil {
			d.Set = make(map[string]json.RawMessage, len(other.Set))
		}
		d.Set[key] = slices.Clone(value)
		d.Remove = slices.DeleteFunc(d.Remove, func(k string) bool { return k == key })
	}
}

// Clone returns a deep copy of the delta.
func (d *ItineraryDelta) Clone() *ItineraryDelta {
	if d == nil {
		return nil
	}
	clone := &ItineraryDelta{Remove: slices.Clone(d.Remove)}
	if d.Set != nil {
		clone.Set = maps.Clone(d.Set)
		for key, value := range clone.Set {
			clone.Set[key] = slices.Clone(value)
		}
	}
	return clone
}

// Proposal is a sub-agent's phase transition proposal. An empty Target means
// remain in the current phase. Complete asks the orchestrator to close the
// session; it is honored only in an exit phase.
type Proposal struct {
	Target   Phase  `json:"target,omitempty"`
	Complete bool   `json:"complete,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Remain reports whether the proposal keeps the current phase.
func (p Proposal) Remain() bool {
	return p.Target == ""
}

// Chunk is one element of a sub-agent's incremental turn output.
// Exactly one terminal chunk (ChunkEnd or ChunkError) ends every sequence.
type Chunk struct {
	Kind     ChunkKind       `json:"kind"`
	Text     string          `json:"text,omitempty"`
	Delta    *ItineraryDelta `json:"delta,omitempty"`
	DataType string          `json:"data_type,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	ToolCall *ToolCall       `json:"tool_call,omitempty"`
	Proposal *Proposal       `json:"proposal,omitempty"`
	Err      error           `json:"-"`
}

// IsTerminal reports whether the chunk ends its sequence.
func (c Chunk) IsTerminal() bool {
	return c.Kind == ChunkEnd || c.Kind == ChunkError
}

func TextChunk(text string) Chunk {
	return Chunk{Kind: ChunkText, Text: text}
}

func ItineraryChunk(delta *ItineraryDelta) Chunk {
	return Chunk{Kind: ChunkItinerary, Delta: delta}
}

func StructuredChunk(dataType string, data json.RawMessage) Chunk {
	return Chunk{Kind: ChunkStructured, DataType: dataType, Data: data}
}

func ToolCallChunk(call ToolCall) Chunk {
	return Chunk{Kind: ChunkToolCall, ToolCall: &call}
}

func TransitionChunk(p Proposal) Chunk {
	return Chunk{Kind: ChunkTransition, Proposal: &p}
}

func ErrorChunk(err error) Chunk {
	return Chunk{Kind: ChunkError, Err: err}
}

func EndChunk() Chunk {
	return Chunk{Kind: ChunkEnd}
}
