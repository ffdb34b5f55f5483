package agent

import (
	"fmt"

	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/orchestrate/state"
)

// AgentInfo describes the sub-agent registered for a phase.
type AgentInfo struct {
	Phase    protocol.Phase
	Provider string
	Tools    []string
	Next     []protocol.Phase
	Exit     bool
}

// Registry maps each phase of a frozen graph to its sub-agent. It is built
// once at startup and read-only afterwards, so it needs no locking.
type Registry struct {
	graph  state.PhaseGraph
	agents map[protocol.Phase]SubAgent
}

// NewRegistry pairs graph with agents. Every graph node needs exactly one
// sub-agent and every sub-agent must serve a graph node. The graph must
// already be frozen.
func NewRegistry(graph state.PhaseGraph, agents ...SubAgent) (*Registry, error) {
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	nodes := make(map[protocol.Phase]bool)
	for _, p := range graph.Nodes() {
		nodes[p] = true
	}

	r := &Registry{
		graph:  graph,
		agents: make(map[protocol.Phase]SubAgent, len(agents)),
	}
	for _, a := range agents {
		p := a.Phase()
		if !nodes[p] {
			return nil, fmt.Errorf("%w: %s is not in graph %s", ErrUnknownPhase, p, graph.Name())
		}
		if _, exists := r.agents[p]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAgent, p)
		}
		r.agents[p] = a
	}

	for p := range nodes {
		if _, ok := r.agents[p]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingAgent, p)
		}
	}

	return r, nil
}

// SubAgentFor returns the sub-agent serving phase.
func (r *Registry) SubAgentFor(phase protocol.Phase) (SubAgent, error) {
	a, ok := r.agents[phase]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPhase, phase)
	}
	return a, nil
}

// IsValidTransition reports whether from -> to is an edge of the graph.
func (r *Registry) IsValidTransition(from, to protocol.Phase) bool {
	return r.graph.IsValidTransition(from, to)
}

func (r *Registry) Graph() state.PhaseGraph {
	return r.graph
}

func (r *Registry) Entry() protocol.Phase {
	return r.graph.Entry()
}

func (r *Registry) IsExit(phase protocol.Phase) bool {
	return r.graph.IsExit(phase)
}

// List describes every registered sub-agent in graph order.
func (r *Registry) List() []AgentInfo {
	nodes := r.graph.Nodes()
	infos := make([]AgentInfo, 0, len(nodes))
	for _, p := range nodes {
		info := AgentInfo{
			Phase: p,
			Next:  r.graph.Next(p),
			Exit:  r.graph.IsExit(p),
		}
		if d, ok := r.agents[p].(interface {
			Provider() string
			Tools() []string
		}); ok {
			info.Provider = d.Provider()
			info.Tools = d.Tools()
		}
		infos = append(infos, info)
	}
	return infos
}
