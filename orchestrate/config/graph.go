package config

// EdgeConfig declares one allowed phase transition.
type EdgeConfig struct {
	// From is the source phase
	From string `json:"from" mapstructure:"from" yaml:"from,omitempty"`

	// To is the destination phase
	To string `json:"to" mapstructure:"to" yaml:"to,omitempty"`

	// Name is an optional label for the transition (e.g., "revise", "depart")
	Name string `json:"name,omitempty" mapstructure:"name" yaml:"name,omitempty"`
}

// GraphConfig defines the phase transition graph.
//
// This configuration is used only during initialization, then transformed
// into an immutable graph. The Observer field is a string to enable file
// configuration with runtime resolution via the observability registry.
//
// Example JSON:
//
//	{
//	  "name": "travel-lifecycle",
//	  "observer": "slog",
//	  "entry": "inspiration",
//	  "exits": ["post_trip"],
//	  "edges": [
//	    {"from": "inspiration", "to": "planning"},
//	    {"from": "planning", "to": "booking"}
//	  ]
//	}
//
// Example resolution:
//
//	cfg := config.DefaultGraphConfig("travel-lifecycle")
//	graph, err := state.NewGraph(cfg)
type GraphConfig struct {
	// Name identifies the graph for observability
	Name string `json:"name" mapstructure:"name" yaml:"name,omitempty"`

	// Observer specifies which observer implementation to use ("noop", "slog", etc.)
	Observer string `json:"observer" mapstructure:"observer" yaml:"observer,omitempty"`

	// Entry is the phase every new session starts in
	Entry string `json:"entry" mapstructure:"entry" yaml:"entry,omitempty"`

	// Exits are terminal phases; completing one closes the session
	Exits []string `json:"exits" mapstructure:"exits" yaml:"exits,omitempty"`

	// Edges are the allowed transitions
	Edges []EdgeConfig `json:"edges" mapstructure:"edges" yaml:"edges,omitempty"`
}

// DefaultEdges returns the travel lifecycle transitions.
//
// Inspiration leads to planning; planning and booking may revise each other;
// pre-trip may return to booking for rebooking; the trip then proceeds to
// in-trip and post-trip.
func DefaultEdges() []EdgeConfig {
	return []EdgeConfig{
		{From: "inspiration", To: "planning", Name: "shortlist"},
		{From: "planning", To: "booking", Name: "reserve"},
		{From: "booking", To: "planning", Name: "revise"},
		{From: "booking", To: "pre_trip", Name: "prepare"},
		{From: "pre_trip", To: "booking", Name: "rebook"},
		{From: "pre_trip", To: "in_trip", Name: "depart"},
		{From: "in_trip", To: "post_trip", Name: "return"},
	}
}

// DefaultGraphConfig returns the travel lifecycle graph.
//
// Default values:
//   - Observer: "slog" for structured logging
//   - Entry: "inspiration"
//   - Exits: ["post_trip"]
//   - Edges: DefaultEdges
func DefaultGraphConfig(name string) GraphConfig {
	return GraphConfig{
		Name:     name,
		Observer: "slog",
		Entry:    "inspiration",
		Exits:    []string{"post_trip"},
		Edges:    DefaultEdges(),
	}
}

// Merge applies non-zero values from source into c. Exits and Edges are
// replaced as a whole when the source declares any.
func (c *GraphConfig) Merge(source *GraphConfig) {
	if source.Name != "" {
		c.Name = source.Name
	}

	if source.Observer != "" {
		c.Observer = source.Observer
	}

	if source.Entry != "" {
		c.Entry = source.Entry
	}

	if len(source.Exits) > 0 {
		c.Exits = append([]string(nil), source.Exits...)
	}

	if len(source.Edges) > 0 {
		c.Edges = append([]EdgeConfig(nil), source.Edges...)
	}
}
