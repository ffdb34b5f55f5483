// Package mock provides a scripted generative backend for development and
// tests. Scripts are YAML documents of per-phase replies with optional
// failure injection.
package mock

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jurni-app/planner/agent/providers"
	"github.com/jurni-app/planner/core/protocol"
)

//go:embed default.yaml
var defaultScript []byte

// DefaultScript returns the built-in travel conversation.
func DefaultScript() *Script {
	s, err := ParseScript(defaultScript)
	if err != nil {
		panic(fmt.Sprintf("mock: built-in script invalid: %v", err))
	}
	return s
}

// Provider plays a Script. It is safe for concurrent use.
type Provider struct {
	script *Script

	mu       sync.Mutex
	attempts map[string]int
	calls    int
}

// New creates a Provider for script. A nil script plays DefaultScript.
func New(script *Script) *Provider {
	if script == nil {
		script = DefaultScript()
	}
	return &Provider{script: script, attempts: make(map[string]int)}
}

func (p *Provider) Name() string {
	if p.script.Name == "" {
		return "mock"
	}
	return "mock:" + p.script.Name
}

// Calls returns how many times Stream has been invoked.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *Provider) Stream(ctx context.Context, req providers.Request) (providers.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	replies := p.script.Phases[req.Phase]
	if len(replies) == 0 {
		return nil, fmt.Errorf("%w: %s has no reply for phase %s", providers.ErrRejected, p.Name(), req.Phase)
	}

	index := max(min(req.Turn, len(replies))-1, 0)
	reply := replies[index]

	key := fmt.Sprintf("%s/%d", req.Phase, index)
	p.mu.Lock()
	p.calls++
	p.attempts[key]++
	attempt := p.attempts[key]
	p.mu.Unlock()

	if attempt <= reply.FailAttempts {
		return nil, fmt.Errorf("%w: %s: injected failure %d of %d", providers.ErrUnavailable, p.Name(), attempt, reply.FailAttempts)
	}

	delay := reply.Delay
	if delay == 0 {
		delay = p.script.Delay
	}

	chunks := make([]protocol.Chunk, 0, len(reply.Frames))
	input := lastUserInput(req.Messages)
	for _, f := range reply.Frames {
		f.Text = strings.ReplaceAll(f.Text, "{{input}}", input)
		c, err := f.Chunk()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", providers.ErrRejected, err)
		}
		if c.ToolCall != nil && c.ToolCall.ID == "" {
			c.ToolCall.ID = "call_" + uuid.NewString()[:8]
		}
		chunks = append(chunks, c)
	}

	return &stream{chunks: chunks, failAfter: reply.FailAfter, delay: delay, name: p.Name()}, nil
}

type stream struct {
	chunks    []protocol.Chunk
	pos       int
	failAfter int
	delay     time.Duration
	name      string
	done      bool
}

func (s *stream) Recv(ctx context.Context) (protocol.Chunk, error) {
	if s.done {
		return protocol.Chunk{}, io.EOF
	}

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.done = true
			return protocol.Chunk{}, ctx.Err()
		case <-timer.C:
		}
	}

	if s.failAfter > 0 && s.pos >= s.failAfter {
		s.done = true
		return protocol.Chunk{}, fmt.Errorf("%w: %s: connection dropped after %d frames", providers.ErrUnavailable, s.name, s.pos)
	}

	if s.pos >= len(s.chunks) {
		s.done = true
		return protocol.EndChunk(), nil
	}

	c := s.chunks[s.pos]
	s.pos++
	if c.IsTerminal() {
		s.done = true
	}
	return c, nil
}

func (s *stream) Close() error {
	s.done = true
	return nil
}

func lastUserInput(msgs []protocol.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == protocol.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
