package state

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/observability"
	"github.com/jurni-app/planner/orchestrate/config"
)

// PhaseGraph defines the conversation lifecycle as a directed graph of
// phases and allowed transitions.
//
// Example structure:
//
//	graph := state.NewEmptyGraph("travel", observer)
//	graph.AddNode(protocol.PhaseInspiration)
//	graph.AddNode(protocol.PhasePlanning)
//	graph.AddEdge(protocol.PhaseInspiration, protocol.PhasePlanning, "shortlist")
//	graph.SetEntryPoint(protocol.PhaseInspiration)
//	graph.SetExitPoint(protocol.PhasePlanning)
//	err := graph.Freeze()
//
// After Freeze the graph is read-only and safe for concurrent use without
// locking; all mutators return ErrGraphFrozen.
type PhaseGraph interface {
	// Name returns the graph identifier for event metadata
	Name() string

	// AddNode registers a phase in the graph
	AddNode(phase protocol.Phase) error

	// AddEdge declares an allowed transition between registered phases
	AddEdge(from, to protocol.Phase, name string) error

	// SetEntryPoint defines the phase every new session starts in
	SetEntryPoint(phase protocol.Phase) error

	// SetExitPoint defines a terminal phase
	SetExitPoint(phase protocol.Phase) error

	// Validate checks the graph's structural invariants
	Validate() error

	// Freeze validates the graph and makes it read-only
	Freeze() error

	// Entry returns the entry phase
	Entry() protocol.Phase

	// Nodes returns the registered phases in registration order
	Nodes() []protocol.Phase

	// Edges returns the outgoing transitions of a phase
	Edges(from protocol.Phase) []Edge

	// Next returns the phases reachable in one step from a phase
	Next(from protocol.Phase) []protocol.Phase

	// IsExit reports whether a phase is terminal
	IsExit(phase protocol.Phase) bool

	// IsValidTransition reports whether from -> to is a declared edge
	IsValidTransition(from, to protocol.Phase) bool

	// Transition checks a proposed move and reports the outcome to the observer
	Transition(ctx context.Context, from, to protocol.Phase) error
}

type phaseGraph struct {
	name       string
	nodes      []protocol.Phase
	members    map[protocol.Phase]bool
	edges      map[protocol.Phase][]Edge
	entryPoint protocol.Phase
	exitPoints map[protocol.Phase]bool
	observer   observability.Observer
	frozen     bool
}

// NewGraph creates a frozen graph from configuration.
//
// The constructor resolves the observer from the observability registry,
// registers every phase named by the configuration, declares its edges, and
// validates the result.
//
// Example:
//
//	graph, err := state.NewGraph(config.DefaultGraphConfig("travel-lifecycle"))
//	if err != nil {
//	    // Handle observer resolution or validation error
//	}
func NewGraph(cfg config.GraphConfig) (PhaseGraph, error) {
	observer, err := observability.Resolve(cfg.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}
	return NewGraphWithDeps(cfg, observer)
}

// NewGraphWithDeps creates a frozen graph from configuration using an
// explicit observer. A nil observer discards events.
func NewGraphWithDeps(cfg config.GraphConfig, observer observability.Observer) (PhaseGraph, error) {
	g := NewEmptyGraph(cfg.Name, observer)

	declare := func(name string) error {
		phase, err := protocol.ParsePhase(name)
		if err != nil {
			return err
		}
		if g.(*phaseGraph).members[phase] {
			return nil
		}
		return g.AddNode(phase)
	}

	if err := declare(cfg.Entry); err != nil {
		return nil, fmt.Errorf("invalid entry point: %w", err)
	}
	for _, e := range cfg.Edges {
		if err := declare(e.From); err != nil {
			return nil, fmt.Errorf("invalid edge %s -> %s: %w", e.From, e.To, err)
		}
		if err := declare(e.To); err != nil {
			return nil, fmt.Errorf("invalid edge %s -> %s: %w", e.From, e.To, err)
		}
	}
	for _, exit := range cfg.Exits {
		if err := declare(exit); err != nil {
			return nil, fmt.Errorf("invalid exit point: %w", err)
		}
	}

	for _, e := range cfg.Edges {
		if err := g.AddEdge(protocol.Phase(e.From), protocol.Phase(e.To), e.Name); err != nil {
			return nil, err
		}
	}
	if err := g.SetEntryPoint(protocol.Phase(cfg.Entry)); err != nil {
		return nil, err
	}
	for _, exit := range cfg.Exits {
		if err := g.SetExitPoint(protocol.Phase(exit)); err != nil {
			return nil, err
		}
	}

	if err := g.Freeze(); err != nil {
		return nil, err
	}
	return g, nil
}

// NewEmptyGraph creates an unfrozen graph with no phases, for programmatic
// construction. A nil observer discards events.
func NewEmptyGraph(name string, observer observability.Observer) PhaseGraph {
	if observer == nil {
		observer = observability.Discard
	}

	return &phaseGraph{
		name:       name,
		members:    make(map[protocol.Phase]bool),
		edges:      make(map[protocol.Phase][]Edge),
		exitPoints: make(map[protocol.Phase]bool),
		observer:   observer,
	}
}

func (g *phaseGraph) Name() string {
	return g.name
}

// AddNode registers a phase. Phases must belong to the fixed phase set and
// may be registered once.
func (g *phaseGraph) AddNode(phase protocol.Phase) error {
	if g.frozen {
		return ErrGraphFrozen
	}

	if !protocol.IsValid(string(phase)) {
		return fmt.Errorf("%w: %q", protocol.ErrUnknownPhase, phase)
	}

	if g.members[phase] {
		return fmt.Errorf("node %s already exists", phase)
	}

	g.members[phase] = true
	g.nodes = append(g.nodes, phase)
	return nil
}

// AddEdge declares a transition. Both phases must be registered, self-loops
// are rejected (remaining in a phase is not a transition), and duplicate
// edges are rejected.
func (g *phaseGraph) AddEdge(from, to protocol.Phase, name string) error {
	if g.frozen {
		return ErrGraphFrozen
	}

	if !g.members[from] {
		return fmt.Errorf("from node %s does not exist", from)
	}

	if !g.members[to] {
		return fmt.Errorf("to node %s does not exist", to)
	}

	if from == to {
		return fmt.Errorf("self transition on %s is not an edge", from)
	}

	for _, e := range g.edges[from] {
		if e.To == to {
			return fmt.Errorf("edge %s -> %s already exists", from, to)
		}
	}

	g.edges[from] = append(g.edges[from], Edge{From: from, To: to, Name: name})
	return nil
}

// SetEntryPoint defines the starting phase. Only one entry point is allowed.
func (g *phaseGraph) SetEntryPoint(phase protocol.Phase) error {
	if g.frozen {
		return ErrGraphFrozen
	}

	if phase == "" {
		return fmt.Errorf("entry point cannot be empty")
	}

	if g.entryPoint != "" {
		return fmt.Errorf("entry point already set to %s", g.entryPoint)
	}

	if !g.members[phase] {
		return fmt.Errorf("entry point node %s does not exist", phase)
	}

	g.entryPoint = phase
	return nil
}

// SetExitPoint defines a terminal phase. Multiple exit points are supported.
func (g *phaseGraph) SetExitPoint(phase protocol.Phase) error {
	if g.frozen {
		return ErrGraphFrozen
	}

	if !g.members[phase] {
		return fmt.Errorf("exit point node %s does not exist", phase)
	}

	g.exitPoints[phase] = true
	return nil
}

// Validate checks graph structure.
//
// Validation ensures:
//   - At least one node exists
//   - Entry point is set and has in-degree zero
//   - At least one exit point is set and exit points have no outgoing edges
//   - Every node is reachable from the entry point
//   - Every node has a path to some exit point
func (g *phaseGraph) Validate() error {
	if len(g.nodes) == 0 {
		return fmt.Errorf("%w: graph has no nodes", ErrInvalidGraph)
	}

	if g.entryPoint == "" {
		return fmt.Errorf("%w: entry point not set", ErrInvalidGraph)
	}

	if len(g.exitPoints) == 0 {
		return fmt.Errorf("%w: no exit points set", ErrInvalidGraph)
	}

	for from, edges := range g.edges {
		for _, e := range edges {
			if e.To == g.entryPoint {
				return fmt.Errorf("%w: entry point %s has incoming edge from %s", ErrInvalidGraph, g.entryPoint, from)
			}
		}
		if g.exitPoints[from] && len(edges) > 0 {
			return fmt.Errorf("%w: exit point %s has outgoing edges", ErrInvalidGraph, from)
		}
	}

	reachable := g.walk([]protocol.Phase{g.entryPoint}, g.successors)
	for _, node := range g.nodes {
		if !reachable[node] {
			return fmt.Errorf("%w: node %s is unreachable from entry point %s", ErrInvalidGraph, node, g.entryPoint)
		}
	}

	exits := make([]protocol.Phase, 0, len(g.exitPoints))
	for _, node := range g.nodes {
		if g.exitPoints[node] {
			exits = append(exits, node)
		}
	}
	finishing := g.walk(exits, g.predecessors)
	for _, node := range g.nodes {
		if !finishing[node] {
			return fmt.Errorf("%w: node %s has no path to an exit point", ErrInvalidGraph, node)
		}
	}

	return nil
}

// Freeze validates the graph and makes it read-only.
func (g *phaseGraph) Freeze() error {
	if g.frozen {
		return nil
	}

	if err := g.Validate(); err != nil {
		return err
	}

	g.frozen = true

	g.observer.OnEvent(context.Background(), observability.Event{
		Type:      EventGraphValidated,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    g.name,
		Data: map[string]any{
			"nodes":       len(g.nodes),
			"entry_point": string(g.entryPoint),
			"exit_points": len(g.exitPoints),
		},
	})

	return nil
}

func (g *phaseGraph) Entry() protocol.Phase {
	return g.entryPoint
}

func (g *phaseGraph) Nodes() []protocol.Phase {
	return slices.Clone(g.nodes)
}

func (g *phaseGraph) Edges(from protocol.Phase) []Edge {
	return slices.Clone(g.edges[from])
}

func (g *phaseGraph) Next(from protocol.Phase) []protocol.Phase {
	return g.successors(from)
}

func (g *phaseGraph) IsExit(phase protocol.Phase) bool {
	return g.exitPoints[phase]
}

func (g *phaseGraph) IsValidTransition(from, to protocol.Phase) bool {
	for _, e := range g.edges[from] {
		if e.To == to {
			return true
		}
	}
	return false
}

// Transition checks a proposed move from one phase to another. Remaining in
// place (from == to, or an empty target) is always allowed. An undeclared
// move returns a *TransitionError wrapping ErrInvalidTransition.
func (g *phaseGraph) Transition(ctx context.Context, from, to protocol.Phase) error {
	if to == "" || from == to {
		return nil
	}

	if !g.IsValidTransition(from, to) {
		g.observer.OnEvent(ctx, observability.Event{
			Type:      EventTransitionRejected,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    g.name,
			Data: map[string]any{
				"from": string(from),
				"to":   string(to),
			},
		})

		return &TransitionError{From: from, To: to, Err: ErrInvalidTransition}
	}

	g.observer.OnEvent(ctx, observability.Event{
		Type:      EventTransitionAccepted,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    g.name,
		Data: map[string]any{
			"from": string(from),
			"to":   string(to),
		},
	})

	return nil
}

func (g *phaseGraph) successors(p protocol.Phase) []protocol.Phase {
	out := make([]protocol.Phase, 0, len(g.edges[p]))
	for _, e := range g.edges[p] {
		out = append(out, e.To)
	}
	return out
}

func (g *phaseGraph) predecessors(p protocol.Phase) []protocol.Phase {
	var in []protocol.Phase
	for from, edges := range g.edges {
		for _, e := range edges {
			if e.To == p {
				in = append(in, from)
			}
		}
	}
	return in
}

func (g *phaseGraph) walk(start []protocol.Phase, next func(protocol.Phase) []protocol.Phase) map[protocol.Phase]bool {
	seen := make(map[protocol.Phase]bool, len(g.nodes))
	queue := slices.Clone(start)
	for _, p := range start {
		seen[p] = true
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, n := range next(current) {
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}

	return seen
}
