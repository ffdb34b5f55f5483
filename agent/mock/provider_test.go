package mock_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jurni-app/planner/agent/mock"
	"github.com/jurni-app/planner/agent/providers"
	"github.com/jurni-app/planner/core/protocol"
)

func collect(t *testing.T, s providers.Stream) ([]protocol.Chunk, error) {
	t.Helper()
	defer s.Close()
	var out []protocol.Chunk
	for {
		c, err := s.Recv(context.Background())
		if err != nil {
			return out, err
		}
		out = append(out, c)
		if c.IsTerminal() {
			return out, nil
		}
	}
}

func userRequest(phase protocol.Phase, turn int, input string) providers.Request {
	return providers.Request{
		Phase:    phase,
		Turn:     turn,
		Messages: []protocol.Message{protocol.NewMessage(protocol.RoleUser, input)},
	}
}

func TestDefaultScript_CoversEveryPhase(t *testing.T) {
	script := mock.DefaultScript()

	for _, phase := range protocol.Phases() {
		if len(script.Phases[phase]) == 0 {
			t.Errorf("default script has no replies for %s", phase)
		}
	}
}

func TestProvider_PlaysRepliesInOrder(t *testing.T) {
	p := mock.New(nil)

	s, err := p.Stream(context.Background(), userRequest(protocol.PhaseInspiration, 1, "a week in Japan"))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	chunks, err := collect(t, s)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if !strings.Contains(chunks[0].Text, "a week in Japan") {
		t.Errorf("input not substituted: %q", chunks[0].Text)
	}
	if chunks[len(chunks)-1].Kind != protocol.ChunkEnd {
		t.Errorf("stream should end with an end chunk, got %s", chunks[len(chunks)-1].Kind)
	}

	s, _ = p.Stream(context.Background(), userRequest(protocol.PhaseInspiration, 2, "temples"))
	chunks, _ = collect(t, s)
	var proposal *protocol.Proposal
	for _, c := range chunks {
		if c.Kind == protocol.ChunkTransition {
			proposal = c.Proposal
		}
	}
	if proposal == nil || proposal.Target != protocol.PhasePlanning {
		t.Errorf("second inspiration reply should propose planning, got %+v", proposal)
	}

	// Past the end of the script the last reply repeats.
	s, _ = p.Stream(context.Background(), userRequest(protocol.PhaseInspiration, 9, "again"))
	if again, _ := collect(t, s); len(again) != len(chunks) {
		t.Errorf("got %d chunks, want last reply repeated (%d)", len(again), len(chunks))
	}

	if p.Calls() != 3 {
		t.Errorf("got %d calls, want 3", p.Calls())
	}
}

func TestProvider_ToolCallsGetIDs(t *testing.T) {
	p := mock.New(nil)

	s, _ := p.Stream(context.Background(), userRequest(protocol.PhaseBooking, 1, "book it"))
	chunks, _ := collect(t, s)

	found := 0
	for _, c := range chunks {
		if c.Kind == protocol.ChunkToolCall {
			found++
			if c.ToolCall.ID == "" {
				t.Error("tool call without id")
			}
		}
	}
	if found != 2 {
		t.Errorf("got %d tool calls, want 2", found)
	}
}

const flakyScript = `
name: flaky
phases:
  planning:
    - fail_attempts: 1
      fail_after: 2
      frames:
        - {type: text, text: "one"}
        - {type: text, text: "two"}
        - {type: text, text: "three"}
`

func TestProvider_FailureInjection(t *testing.T) {
	script, err := mock.ParseScript([]byte(flakyScript))
	if err != nil {
		t.Fatalf("ParseScript() error = %v", err)
	}
	p := mock.New(script)

	if _, err := p.Stream(context.Background(), userRequest(protocol.PhasePlanning, 1, "x")); !errors.Is(err, providers.ErrUnavailable) {
		t.Fatalf("first Stream() error = %v, want %v", err, providers.ErrUnavailable)
	}

	s, err := p.Stream(context.Background(), userRequest(protocol.PhasePlanning, 1, "x"))
	if err != nil {
		t.Fatalf("second Stream() error = %v", err)
	}
	chunks, err := collect(t, s)
	if len(chunks) != 2 {
		t.Errorf("got %d chunks before drop, want 2", len(chunks))
	}
	if !errors.Is(err, providers.ErrUnavailable) {
		t.Errorf("Recv() error = %v, want %v", err, providers.ErrUnavailable)
	}
	if _, err := s.Recv(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Recv() after failure = %v, want EOF", err)
	}
}

func TestProvider_DelayHonorsContext(t *testing.T) {
	script, _ := mock.ParseScript([]byte(`
phases:
  in_trip:
    - delay: 1s
      frames:
        - {type: text, text: "slow"}
`))
	p := mock.New(script)

	s, _ := p.Stream(context.Background(), userRequest(protocol.PhaseInTrip, 1, "x"))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := s.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Recv() error = %v, want deadline exceeded", err)
	}
}

func TestProvider_UnknownPhase(t *testing.T) {
	script, _ := mock.ParseScript([]byte(`phases: {planning: [{frames: [{type: end}]}]}`))
	p := mock.New(script)

	if _, err := p.Stream(context.Background(), userRequest(protocol.PhaseBooking, 1, "x")); !errors.Is(err, providers.ErrRejected) {
		t.Errorf("Stream() error = %v, want %v", err, providers.ErrRejected)
	}
}

func TestParseScript_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":      `phases: [`,
		"bad phase":     `phases: {honeymoon: [{frames: [{type: end}]}]}`,
		"bad frame":     `phases: {planning: [{frames: [{type: telepathy}]}]}`,
		"bad target":    `phases: {planning: [{frames: [{type: transition, target: moon}]}]}`,
		"nameless tool": `phases: {booking: [{frames: [{type: tool_call}]}]}`,
	}

	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := mock.ParseScript([]byte(src)); err == nil {
				t.Error("ParseScript() should fail")
			}
		})
	}
}
