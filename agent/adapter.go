package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jurni-app/planner/agent/providers"
	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/core/response"
	"github.com/jurni-app/planner/observability"
	"github.com/jurni-app/planner/tools"
)

// Adapter is the SubAgent implementation shared by every phase. It streams
// a turn from a Provider, executes tool calls, and guarantees the terminal
// chunk.
type Adapter struct {
	profile  Profile
	provider providers.Provider
	tools    tools.Executor
	observer observability.Observer
	cfg      Config
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTools sets the tool executor. The default is the travel catalog.
func WithTools(e tools.Executor) Option {
	return func(a *Adapter) {
		a.tools = e
	}
}

// WithObserver sets the observer for adapter events.
func WithObserver(o observability.Observer) Option {
	return func(a *Adapter) {
		if o != nil {
			a.observer = o
		}
	}
}

// WithConfig applies non-zero values from cfg over the defaults.
func WithConfig(cfg Config) Option {
	return func(a *Adapter) {
		a.cfg.Merge(&cfg)
	}
}

// NewAdapter creates the sub-agent for profile.Phase backed by provider.
func NewAdapter(profile Profile, provider providers.Provider, opts ...Option) *Adapter {
	a := &Adapter{
		profile:  profile,
		provider: provider,
		tools:    tools.Travel(),
		observer: observability.Discard,
		cfg:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Phase() protocol.Phase {
	return a.profile.Phase
}

// Provider returns the backend name.
func (a *Adapter) Provider() string {
	return a.provider.Name()
}

// Tools returns the tool names the profile allows.
func (a *Adapter) Tools() []string {
	return slices.Clone(a.profile.Tools)
}

func (a *Adapter) HandleTurn(ctx context.Context, turn Turn) <-chan protocol.Chunk {
	out := make(chan protocol.Chunk, a.cfg.BufferSize)
	go a.run(ctx, turn, out)
	return out
}

func (a *Adapter) run(ctx context.Context, turn Turn, out chan<- protocol.Chunk) {
	defer close(out)

	req := a.request(turn)
	forwarded := false
	attempt := 0

	forward := func(c protocol.Chunk) error {
		select {
		case out <- c:
			forwarded = true
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	op := func() error {
		attempt++
		err := a.attempt(ctx, req, forward)
		if err == nil {
			return nil
		}

		a.emit(ctx, EventAttemptFailed, observability.LevelWarning, map[string]any{
			"attempt":   attempt,
			"forwarded": forwarded,
			"error":     err.Error(),
		})

		if forwarded || ctx.Err() != nil || !providers.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.cfg.RetryBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(a.cfg.Retries, 0))), ctx)

	err := backoff.Retry(op, policy)
	if err == nil {
		out <- protocol.EndChunk()
		return
	}
	if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		err = fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	out <- protocol.ErrorChunk(a.classify(err))
}

// attempt runs one backend stream to its end. A nil return means the backend
// finished cleanly; in-band backend errors are returned as errors.
func (a *Adapter) attempt(ctx context.Context, req providers.Request, forward func(protocol.Chunk) error) error {
	actx, cancel := context.WithTimeout(ctx, a.cfg.AttemptTimeout)
	defer cancel()

	stream, err := a.provider.Stream(actx, req)
	if err != nil {
		return a.deadline(ctx, actx, err)
	}
	defer stream.Close()

	for {
		c, err := stream.Recv(actx)
		if err != nil {
			return a.deadline(ctx, actx, err)
		}

		switch c.Kind {
		case protocol.ChunkEnd:
			return nil
		case protocol.ChunkError:
			return fmt.Errorf("%w: %w", providers.ErrRejected, c.Err)
		case protocol.ChunkToolCall:
			if err := forward(c); err != nil {
				return err
			}
			if err := a.callTool(actx, *c.ToolCall, forward); err != nil {
				return err
			}
		default:
			if err := forward(c); err != nil {
				return err
			}
		}
	}
}

func (a *Adapter) callTool(ctx context.Context, call protocol.ToolCall, forward func(protocol.Chunk) error) error {
	if !slices.Contains(a.profile.Tools, call.Name) {
		a.emit(ctx, EventToolRejected, observability.LevelWarning, map[string]any{
			"tool": call.Name,
		})
		return nil
	}

	start := time.Now()
	result, err := a.tools.Execute(ctx, call.Name, json.RawMessage(call.Arguments))
	a.emit(ctx, EventToolExecuted, observability.LevelVerbose, map[string]any{
		"tool":                    call.Name,
		observability.DurationKey: time.Since(start),
		"failed":                  err != nil || result.IsError,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	if result.IsError {
		return nil
	}

	if s, ok := response.DetectStructured(result.Content); ok {
		return forward(protocol.StructuredChunk(s.DataType, s.Data))
	}
	return nil
}

func (a *Adapter) request(turn Turn) providers.Request {
	req := providers.Request{
		Phase:        a.profile.Phase,
		Instructions: a.profile.Instructions,
		Tools:        a.tools.Lookup(a.profile.Tools...),
	}

	if s := turn.Session; s != nil {
		history := s.Messages()
		if limit := a.cfg.HistoryLimit; limit > 0 && len(history) > limit {
			history = history[len(history)-limit:]
		}
		req.Messages = history
		req.Context = s.Context
		req.Itinerary = s.Itinerary
		req.Turn = phaseTurn(s)
	} else {
		req.Turn = 1
	}
	req.Messages = append(req.Messages, turn.Input)
	return req
}

// deadline distinguishes this attempt's timeout from the caller's context.
func (a *Adapter) deadline(ctx, actx context.Context, err error) error {
	if ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) && !errors.Is(err, providers.ErrTimeout) {
		return fmt.Errorf("%w: attempt exceeded %s: %v", providers.ErrTimeout, a.cfg.AttemptTimeout, err)
	}
	return err
}

// classify maps a final failure onto the agent error taxonomy.
func (a *Adapter) classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, providers.ErrTimeout):
		return fmt.Errorf("%w: %s: %w", ErrBackendTimeout, a.profile.Phase, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, providers.ErrUnavailable):
		return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, a.profile.Phase, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrBackendRejected, a.profile.Phase, err)
	}
}

func (a *Adapter) emit(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	data["phase"] = string(a.profile.Phase)
	data["provider"] = a.provider.Name()
	a.observer.OnEvent(ctx, observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "agent." + string(a.profile.Phase),
		Data:      data,
	})
}
