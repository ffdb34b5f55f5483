// Package orchestrator implements the root turn loop that composes the phase
// registry, sub-agents, session store, user memory and event feed into one
// conversational surface.
//
// The orchestrator initializes from configuration via New, creating every
// subsystem it is not given. Functional options supply test doubles or
// shared instances.
//
//	o, err := orchestrator.New(&cfg)
//	s, err := o.Submit(ctx, orchestrator.TurnRequest{SessionID: id, Message: "A week in Lisbon"})
//	for ev := range s.Events() {
//	    ...
//	}
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jurni-app/planner/agent"
	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/events"
	"github.com/jurni-app/planner/memory"
	"github.com/jurni-app/planner/observability"
	"github.com/jurni-app/planner/orchestrate/state"
	"github.com/jurni-app/planner/session"
	"github.com/jurni-app/planner/stream"
)

// Publisher receives every event the orchestrator emits.
type Publisher interface {
	Publish(ctx context.Context, ev stream.Event) error
}

// Feed is a Publisher that also serves per-session subscriptions.
type Feed interface {
	Publisher
	Subscribe(ctx context.Context, sessionID string) (<-chan stream.Event, error)
}

// TurnRequest is one user message submitted to a session.
type TurnRequest struct {
	// SessionID selects the session; empty creates a new one
	SessionID string

	// Owner is the caller's user id; empty for anonymous callers
	Owner string

	// Message is the user input
	Message string

	// PhaseHint asks to resume in a given phase. It is validated as a
	// transition from the session's current phase.
	PhaseHint protocol.Phase
}

// Option configures an Orchestrator. Options are applied before
// config-driven initialization; subsystems they provide are not created.
type Option func(*Orchestrator)

// WithRegistry supplies the phase registry.
func WithRegistry(r *agent.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// WithSessionStore supplies the session store.
func WithSessionStore(s session.Store) Option {
	return func(o *Orchestrator) { o.sessions = s }
}

// WithDirectory supplies the user directory.
func WithDirectory(d *memory.Directory) Option {
	return func(o *Orchestrator) { o.directory = d }
}

// WithFeed supplies the session event feed.
func WithFeed(f Feed) Option {
	return func(o *Orchestrator) { o.feed = f }
}

// WithObserver overrides the configured observer.
func WithObserver(obs observability.Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator routes each turn to the sub-agent of the session's phase and
// owns every session mutation.
type Orchestrator struct {
	registry  *agent.Registry
	sessions  session.Store
	directory *memory.Directory
	feed      Feed
	observer  observability.Observer
	locks     *lockSet
	now       func() time.Time
	cfg       Config
	closers   []func()
}

// New creates an Orchestrator from configuration.
func New(cfg *Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		locks: newLockSet(),
		now:   time.Now,
		cfg:   *cfg,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.observer == nil {
		obs, err := observability.Resolve(cfg.Observer)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve observer: %w", err)
		}
		o.observer = obs
	}

	if o.registry == nil {
		graph, err := state.NewGraphWithDeps(cfg.Graph, o.observer)
		if err != nil {
			return nil, fmt.Errorf("failed to create phase graph: %w", err)
		}
		provider, err := agent.NewProvider(&cfg.Agent)
		if err != nil {
			return nil, fmt.Errorf("failed to create agent provider: %w", err)
		}
		reg, err := agent.NewDefaultRegistry(graph, provider, cfg.Agent, o.observer)
		if err != nil {
			return nil, fmt.Errorf("failed to create phase registry: %w", err)
		}
		o.registry = reg
	}

	if o.sessions == nil {
		store, cleanup, err := session.New(context.Background(), &cfg.Session)
		if err != nil {
			return nil, fmt.Errorf("failed to create session store: %w", err)
		}
		o.sessions = store
		o.closers = append(o.closers, cleanup)
	}

	if o.directory == nil {
		store, err := memory.NewStore(&cfg.Memory)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory store: %w", err)
		}
		o.directory = memory.NewDirectory(store, cfg.Memory.RecentTrips)
	}

	if o.feed == nil {
		bus := events.NewBus(cfg.Events, o.observer)
		o.feed = bus
		o.closers = append(o.closers, func() { _ = bus.Close() })
	}

	return o, nil
}

// Registry returns the phase registry.
func (o *Orchestrator) Registry() *agent.Registry {
	return o.registry
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Close releases resources created by New.
func (o *Orchestrator) Close() error {
	for i := len(o.closers) - 1; i >= 0; i-- {
		o.closers[i]()
	}
	o.closers = nil
	return nil
}

// Session returns a snapshot of a session owned by owner.
func (o *Orchestrator) Session(ctx context.Context, id, owner string) (*session.Session, error) {
	s, err := o.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(s, owner); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateSession starts a session in the entry phase, seeded with the owner's
// profile and recent trips. An empty id is generated.
func (o *Orchestrator) CreateSession(ctx context.Context, id, owner string) (*session.Session, error) {
	if id == "" {
		id = session.NewID(owner)
	}
	if err := session.ValidateID(id); err != nil {
		return nil, err
	}

	release, err := o.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	return o.create(ctx, id, owner)
}

// CloseSession marks a session terminal. Closing a closed session succeeds.
func (o *Orchestrator) CloseSession(ctx context.Context, id, owner string) (*session.Session, error) {
	release, err := o.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := o.Session(ctx, id, owner); err != nil {
		return nil, err
	}

	s, err := o.sessions.Close(ctx, id)
	if err != nil {
		return nil, err
	}

	o.emitObserver(ctx, EventSessionClosed, observability.LevelInfo, map[string]any{
		"session_id": id,
		"phase":      string(s.Phase),
	})
	o.publish(ctx, stream.Event{
		Type:      stream.EventSessionClosed,
		SessionID: id,
		Phase:     s.Phase,
		Closed:    true,
		Timestamp: o.now().UTC(),
	})

	return s, nil
}

// SaveItinerary converts the session's itinerary draft into a trip in the
// owner's directory. Anonymous callers cannot save trips.
func (o *Orchestrator) SaveItinerary(ctx context.Context, id, owner string) (memory.Trip, error) {
	if owner == "" {
		return memory.Trip{}, fmt.Errorf("%w: saving trips requires a signed-in user", ErrForbidden)
	}

	s, err := o.Session(ctx, id, owner)
	if err != nil {
		return memory.Trip{}, err
	}

	trip, err := memory.TripFromItinerary(owner, s.Itinerary)
	if err != nil {
		return memory.Trip{}, err
	}
	trip.SessionID = s.ID

	saved, err := o.directory.SaveTrip(ctx, trip)
	if err != nil {
		return memory.Trip{}, err
	}

	o.emitObserver(ctx, EventItinerarySaved, observability.LevelInfo, map[string]any{
		"session_id":  id,
		"trip_id":     saved.ID,
		"destination": saved.Destination,
	})
	return saved, nil
}

// Watch subscribes to the live events of a session owned by owner.
func (o *Orchestrator) Watch(ctx context.Context, id, owner string) (<-chan stream.Event, error) {
	if _, err := o.Session(ctx, id, owner); err != nil {
		return nil, err
	}
	return o.feed.Subscribe(ctx, id)
}

// create requires the session lock.
func (o *Orchestrator) create(ctx context.Context, id, owner string) (*session.Session, error) {
	uc, err := o.userContext(ctx, owner)
	if err != nil {
		return nil, err
	}

	s, err := o.sessions.Create(ctx, id, session.Init{
		Owner:   owner,
		Phase:   o.registry.Entry(),
		Context: uc,
	})
	if err != nil {
		return nil, err
	}

	o.emitObserver(ctx, EventSessionCreated, observability.LevelInfo, map[string]any{
		"session_id": id,
		"anonymous":  owner == "",
	})
	return s, nil
}

func (o *Orchestrator) lock(ctx context.Context, id string) (func(), error) {
	lctx := ctx
	if o.cfg.LockTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, o.cfg.LockTimeout)
		defer cancel()
	}

	release, err := o.locks.acquire(lctx, id)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrSessionBusy, id)
		}
		return nil, err
	}
	return release, nil
}

func authorize(s *session.Session, owner string) error {
	if s.Owner != "" && s.Owner != owner {
		return fmt.Errorf("%w: session %s", ErrForbidden, s.ID)
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, ev stream.Event) {
	if err := o.feed.Publish(context.WithoutCancel(ctx), ev); err != nil {
		o.emitObserver(ctx, EventPublishFailed, observability.LevelWarning, map[string]any{
			"session_id": ev.SessionID,
			"type":       string(ev.Type),
			"error":      err.Error(),
		})
	}
}

func (o *Orchestrator) emitObserver(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	o.observer.OnEvent(ctx, observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: o.now(),
		Source:    "orchestrator",
		Data:      data,
	})
}
