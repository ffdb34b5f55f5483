package agent_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jurni-app/planner/agent"
	"github.com/jurni-app/planner/agent/mock"
	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/orchestrate/config"
	"github.com/jurni-app/planner/orchestrate/state"
)

func travelGraph(t *testing.T) state.PhaseGraph {
	t.Helper()
	g, err := state.NewGraphWithDeps(config.DefaultGraphConfig("travel"), nil)
	if err != nil {
		t.Fatalf("NewGraphWithDeps() error = %v", err)
	}
	return g
}

func adapters(phases ...protocol.Phase) []agent.SubAgent {
	p := mock.New(nil)
	out := make([]agent.SubAgent, 0, len(phases))
	for _, ph := range phases {
		out = append(out, agent.NewAdapter(agent.Profile{Phase: ph}, p))
	}
	return out
}

func TestNewRegistry(t *testing.T) {
	r, err := agent.NewRegistry(travelGraph(t), adapters(protocol.Phases()...)...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	for _, phase := range protocol.Phases() {
		a, err := r.SubAgentFor(phase)
		if err != nil {
			t.Errorf("SubAgentFor(%s) error = %v", phase, err)
			continue
		}
		if a.Phase() != phase {
			t.Errorf("SubAgentFor(%s) returned agent for %s", phase, a.Phase())
		}
	}

	if r.Entry() != protocol.PhaseInspiration {
		t.Errorf("got entry %s, want inspiration", r.Entry())
	}
	if !r.IsExit(protocol.PhasePostTrip) {
		t.Error("post_trip should be the exit")
	}
}

func TestNewRegistry_Coverage(t *testing.T) {
	all := protocol.Phases()

	tests := []struct {
		name   string
		agents []agent.SubAgent
		want   error
	}{
		{"missing phase", adapters(all[:5]...), agent.ErrMissingAgent},
		{"duplicate phase", adapters(append(all, protocol.PhaseBooking)...), agent.ErrDuplicateAgent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := agent.NewRegistry(travelGraph(t), tt.agents...)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewRegistry() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewRegistry_PhaseOutsideGraph(t *testing.T) {
	cfg := config.DefaultGraphConfig("short")
	cfg.Edges = []config.EdgeConfig{
		{From: "inspiration", To: "planning"},
		{From: "planning", To: "post_trip"},
	}
	g, err := state.NewGraphWithDeps(cfg, nil)
	if err != nil {
		t.Fatalf("NewGraphWithDeps() error = %v", err)
	}

	_, err = agent.NewRegistry(g, adapters(protocol.Phases()...)...)
	if !errors.Is(err, agent.ErrUnknownPhase) {
		t.Errorf("NewRegistry() error = %v, want %v", err, agent.ErrUnknownPhase)
	}

	r, err := agent.NewDefaultRegistry(g, mock.New(nil), agent.Config{}, nil)
	if err != nil {
		t.Fatalf("NewDefaultRegistry() error = %v", err)
	}
	if len(r.List()) != 3 {
		t.Errorf("got %d agents, want one per graph node", len(r.List()))
	}
}

func TestRegistry_SubAgentFor_Unknown(t *testing.T) {
	r, _ := agent.NewRegistry(travelGraph(t), adapters(protocol.Phases()...)...)

	_, err := r.SubAgentFor("honeymoon")
	if !errors.Is(err, agent.ErrUnknownPhase) {
		t.Errorf("SubAgentFor() error = %v, want %v", err, agent.ErrUnknownPhase)
	}
}

func TestRegistry_IsValidTransition(t *testing.T) {
	r, _ := agent.NewRegistry(travelGraph(t), adapters(protocol.Phases()...)...)

	tests := []struct {
		from, to protocol.Phase
		want     bool
	}{
		{protocol.PhaseInspiration, protocol.PhasePlanning, true},
		{protocol.PhaseBooking, protocol.PhasePlanning, true},
		{protocol.PhasePreTrip, protocol.PhaseBooking, true},
		{protocol.PhaseInspiration, protocol.PhaseBooking, false},
		{protocol.PhasePostTrip, protocol.PhaseInspiration, false},
		{protocol.PhasePlanning, protocol.PhaseInspiration, false},
	}

	for _, tt := range tests {
		if got := r.IsValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestRegistry_List(t *testing.T) {
	r, err := agent.NewDefaultRegistry(travelGraph(t), mock.New(nil), agent.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewDefaultRegistry() error = %v", err)
	}

	infos := r.List()
	if len(infos) != 6 {
		t.Fatalf("got %d agents, want 6", len(infos))
	}
	if infos[0].Phase != protocol.PhaseInspiration {
		t.Errorf("first agent %s, want inspiration", infos[0].Phase)
	}
	for _, info := range infos {
		if info.Provider != "mock:travel" {
			t.Errorf("%s provider = %q, want mock:travel", info.Phase, info.Provider)
		}
		if info.Phase == protocol.PhaseBooking && len(info.Tools) == 0 {
			t.Error("booking agent should carry tools")
		}
		if info.Exit != (info.Phase == protocol.PhasePostTrip) {
			t.Errorf("%s exit = %v", info.Phase, info.Exit)
		}
	}
}

func TestRegistry_ConcurrentLookups(t *testing.T) {
	r, _ := agent.NewRegistry(travelGraph(t), adapters(protocol.Phases()...)...)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, p := range protocol.Phases() {
				if _, err := r.SubAgentFor(p); err != nil {
					t.Errorf("SubAgentFor(%s) error = %v", p, err)
				}
				r.IsValidTransition(p, protocol.PhasePlanning)
			}
		}()
	}
	wg.Wait()
}

func TestNewProvider(t *testing.T) {
	p, err := agent.NewProvider(&agent.Config{Backend: agent.BackendMock})
	if err != nil || p.Name() != "mock:travel" {
		t.Errorf("NewProvider(mock) = %v, %v", p, err)
	}

	if _, err := agent.NewProvider(&agent.Config{Backend: agent.BackendHTTP}); err == nil {
		t.Error("NewProvider(http) without base_url should fail")
	}

	if _, err := agent.NewProvider(&agent.Config{Backend: "carrier-pigeon"}); err == nil {
		t.Error("NewProvider(unknown) should fail")
	}

	if _, err := agent.NewProvider(&agent.Config{Script: "/does/not/exist.yaml"}); err == nil {
		t.Error("NewProvider() with missing script should fail")
	}

	// The default script drives a full turn.
	s, err := p.Stream(context.Background(), providersRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	s.Close()
}
