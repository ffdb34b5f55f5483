package orchestrator_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jurni-app/planner/agent"
	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/events"
	"github.com/jurni-app/planner/memory"
	"github.com/jurni-app/planner/observability"
	"github.com/jurni-app/planner/orchestrate/config"
	"github.com/jurni-app/planner/orchestrate/state"
	"github.com/jurni-app/planner/orchestrator"
	"github.com/jurni-app/planner/session"
	"github.com/jurni-app/planner/stream"
)

// --- Test helpers ---

// scriptedAgent replays fixed chunks, or runs handle when set.
type scriptedAgent struct {
	phase  protocol.Phase
	chunks []protocol.Chunk
	handle func(ctx context.Context, turn agent.Turn, out chan<- protocol.Chunk)
	calls  atomic.Int32

	mu    sync.Mutex
	turns []agent.Turn
}

func (a *scriptedAgent) Phase() protocol.Phase {
	return a.phase
}

func (a *scriptedAgent) HandleTurn(ctx context.Context, turn agent.Turn) <-chan protocol.Chunk {
	a.calls.Add(1)
	a.mu.Lock()
	a.turns = append(a.turns, turn)
	a.mu.Unlock()

	out := make(chan protocol.Chunk, 16)
	go func() {
		defer close(out)
		if a.handle != nil {
			a.handle(ctx, turn, out)
			return
		}
		for _, c := range a.chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				out <- protocol.ErrorChunk(ctx.Err())
				return
			}
		}
	}()
	return out
}

func (a *scriptedAgent) lastTurn() agent.Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.turns[len(a.turns)-1]
}

func reply(chunks ...protocol.Chunk) []protocol.Chunk {
	return append(chunks, protocol.EndChunk())
}

func set(key, value string) *protocol.ItineraryDelta {
	return &protocol.ItineraryDelta{Set: map[string]json.RawMessage{key: json.RawMessage(value)}}
}

func propose(target protocol.Phase) protocol.Chunk {
	return protocol.TransitionChunk(protocol.Proposal{Target: target})
}

// recorder captures observability events.
type recorder struct {
	mu     sync.Mutex
	events []observability.Event
}

func (r *recorder) OnEvent(_ context.Context, e observability.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(t observability.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type harness struct {
	orch      *orchestrator.Orchestrator
	agents    map[protocol.Phase]*scriptedAgent
	sessions  session.Store
	directory *memory.Directory
	observer  *recorder
}

// newHarness builds an orchestrator over the default lifecycle graph with one
// scripted agent per phase. Agents answer with a single text chunk unless
// configure changes them.
func newHarness(t *testing.T, configure func(map[protocol.Phase]*scriptedAgent), opts ...orchestrator.Option) *harness {
	t.Helper()

	graph, err := state.NewGraphWithDeps(config.DefaultGraphConfig("test"), nil)
	if err != nil {
		t.Fatalf("NewGraphWithDeps failed: %v", err)
	}

	agents := make(map[protocol.Phase]*scriptedAgent)
	subs := make([]agent.SubAgent, 0, len(graph.Nodes()))
	for _, p := range graph.Nodes() {
		a := &scriptedAgent{phase: p, chunks: reply(protocol.TextChunk(string(p) + " reply"))}
		agents[p] = a
		subs = append(subs, a)
	}
	if configure != nil {
		configure(agents)
	}

	reg, err := agent.NewRegistry(graph, subs...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	h := &harness{
		agents:    agents,
		sessions:  session.NewMemoryStore(),
		directory: memory.NewDirectory(memory.NewMemStore(), 5),
		observer:  &recorder{},
	}

	cfg := orchestrator.DefaultConfig()
	cfg.TurnTimeout = 2 * time.Second
	cfg.PersistBackoff = time.Millisecond

	bus := events.NewBus(events.DefaultConfig(), nil)
	t.Cleanup(func() { bus.Close() })

	base := []orchestrator.Option{
		orchestrator.WithRegistry(reg),
		orchestrator.WithSessionStore(h.sessions),
		orchestrator.WithDirectory(h.directory),
		orchestrator.WithFeed(bus),
		orchestrator.WithObserver(h.observer),
	}

	h.orch, err = orchestrator.New(&cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { h.orch.Close() })
	return h
}

// collect drains s and fails the test if it does not end in time or does
// not end with exactly one terminal event.
func collect(t *testing.T, s *stream.Stream) []stream.Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	evs, err := s.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(evs) == 0 {
		t.Fatal("stream produced no events")
	}

	for i, ev := range evs {
		if ev.Seq != int64(i+1) {
			t.Errorf("event %d: seq = %d", i, ev.Seq)
		}
		if ev.IsTerminal() != (i == len(evs)-1) {
			t.Errorf("event %d (%s): terminal placement wrong", i, ev.Type)
		}
	}
	return evs
}

func submit(t *testing.T, o *orchestrator.Orchestrator, req orchestrator.TurnRequest) []stream.Event {
	t.Helper()
	s, err := o.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return collect(t, s)
}

func types(evs []stream.Event) []stream.EventType {
	out := make([]stream.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func last(evs []stream.Event) stream.Event {
	return evs[len(evs)-1]
}
