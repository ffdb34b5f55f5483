package providers

import (
	"encoding/json"
	"maps"

	"github.com/jurni-app/planner/core/protocol"
)

// TurnData is the request body sent to an HTTP backend.
type TurnData struct {
	Phase        protocol.Phase             `json:"phase"`
	Turn         int                        `json:"turn,omitempty"`
	Instructions string                     `json:"instructions,omitempty"`
	Messages     []protocol.Message         `json:"messages"`
	Tools        []protocol.Tool            `json:"tools,omitempty"`
	Context      json.RawMessage            `json:"context,omitempty"`
	Itinerary    map[string]json.RawMessage `json:"itinerary,omitempty"`
	Options      map[string]any             `json:"options,omitempty"`
}

// NewTurnData builds the wire body for req with backend options attached.
func NewTurnData(req Request, options map[string]any) *TurnData {
	return &TurnData{
		Phase:        req.Phase,
		Turn:         req.Turn,
		Instructions: req.Instructions,
		Messages:     req.Messages,
		Tools:        req.Tools,
		Context:      req.Context,
		Itinerary:    req.Itinerary,
		Options:      maps.Clone(options),
	}
}
