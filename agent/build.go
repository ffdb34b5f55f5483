package agent

import (
	"fmt"
	"slices"

	"github.com/jurni-app/planner/agent/mock"
	"github.com/jurni-app/planner/agent/providers"
	"github.com/jurni-app/planner/observability"
	"github.com/jurni-app/planner/orchestrate/state"
	"github.com/jurni-app/planner/tools"
)

// NewProvider creates the backend selected by cfg.Backend.
func NewProvider(cfg *Config) (providers.Provider, error) {
	switch cfg.Backend {
	case "", BackendMock:
		if cfg.Script == "" {
			return mock.New(nil), nil
		}
		script, err := mock.LoadScript(cfg.Script)
		if err != nil {
			return nil, err
		}
		return mock.New(script), nil
	case BackendHTTP:
		return providers.NewHTTPProvider(&cfg.Provider)
	default:
		return nil, fmt.Errorf("unknown agent backend %q", cfg.Backend)
	}
}

// NewDefaultRegistry builds one Adapter per graph node from DefaultProfiles
// over provider and pairs them with graph. Every adapter executes tools from
// the shared travel catalog.
func NewDefaultRegistry(graph state.PhaseGraph, provider providers.Provider, cfg Config, observer observability.Observer) (*Registry, error) {
	nodes := graph.Nodes()
	agents := make([]SubAgent, 0, len(nodes))
	for _, p := range DefaultProfiles() {
		if !slices.Contains(nodes, p.Phase) {
			continue
		}
		agents = append(agents, NewAdapter(p, provider,
			WithConfig(cfg),
			WithObserver(observer),
			WithTools(tools.Travel()),
		))
	}
	return NewRegistry(graph, agents...)
}
