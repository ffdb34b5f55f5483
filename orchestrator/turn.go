package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/jurni-app/planner/agent"
	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/memory"
	"github.com/jurni-app/planner/observability"
	"github.com/jurni-app/planner/orchestrate/state"
	"github.com/jurni-app/planner/session"
	"github.com/jurni-app/planner/stream"
)

// terminalGrace bounds delivery of the terminal event to a slow consumer.
const terminalGrace = 5 * time.Second

// turn is the state of one in-flight turn.
type turn struct {
	id        string
	session   *session.Session
	phase     protocol.Phase
	hint      *session.Transition
	input     protocol.Message
	sub       agent.SubAgent
	out       *stream.Stream
	startedAt time.Time

	text      strings.Builder
	toolCalls []protocol.ToolCall
	chunks    []protocol.Chunk
	delta     protocol.ItineraryDelta
	proposal  *protocol.Proposal
	ended     bool
	err       error
	produced  bool
}

// Submit processes one user message. Resolution failures (unknown or
// foreign session, closed session, invalid phase hint, unknown phase) are
// returned synchronously without emitting events or mutating the session.
// Otherwise the returned stream yields the turn's events and ends with
// exactly one complete or error event. Cancelling ctx cancels the turn;
// the turn is still recorded.
func (o *Orchestrator) Submit(ctx context.Context, req TurnRequest) (*stream.Stream, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	id := req.SessionID
	if id == "" {
		id = session.NewID(req.Owner)
	}
	if err := session.ValidateID(id); err != nil {
		return nil, err
	}

	release, err := o.lock(ctx, id)
	if err != nil {
		return nil, err
	}

	t, err := o.resolve(ctx, id, req)
	if err != nil {
		release()
		return nil, err
	}

	t.out = stream.New(ctx, id, t.id, o.cfg.StreamBuffer)
	go func() {
		defer release()
		o.run(ctx, t)
	}()

	return t.out, nil
}

// resolve loads the session, checks ownership and the phase hint, and
// selects the sub-agent. An unknown session is created only after every
// check passed. It runs under the session lock.
func (o *Orchestrator) resolve(ctx context.Context, id string, req TurnRequest) (*turn, error) {
	entry := o.registry.Entry()

	s, err := o.sessions.Get(ctx, id)
	fresh := errors.Is(err, session.ErrNotFound)
	switch {
	case fresh:
		if req.PhaseHint != "" && req.PhaseHint != entry {
			return nil, &state.TransitionError{From: entry, To: req.PhaseHint, Err: state.ErrInvalidTransition}
		}
	case err != nil:
		return nil, err
	default:
		if err := authorize(s, req.Owner); err != nil {
			return nil, err
		}
		if s.Closed {
			return nil, fmt.Errorf("%w: %s", session.ErrSessionClosed, id)
		}
	}

	phase := entry
	var hint *session.Transition
	if !fresh {
		phase = s.Phase
		if req.PhaseHint != "" && req.PhaseHint != s.Phase {
			if _, err := protocol.ParsePhase(string(req.PhaseHint)); err != nil {
				return nil, err
			}
			if err := o.registry.Graph().Transition(ctx, s.Phase, req.PhaseHint); err != nil {
				return nil, err
			}
			hint = &session.Transition{From: s.Phase, To: req.PhaseHint}
			phase = req.PhaseHint
		}
	}

	sub, err := o.registry.SubAgentFor(phase)
	if err != nil {
		return nil, err
	}

	if fresh {
		s, err = o.create(ctx, id, req.Owner)
		if err != nil {
			return nil, err
		}
	}

	return &turn{
		id:        uuid.Must(uuid.NewV7()).String(),
		session:   s,
		phase:     phase,
		hint:      hint,
		sub:       sub,
		input:     protocol.NewMessage(protocol.RoleUser, req.Message),
		startedAt: o.now().UTC(),
	}, nil
}

func (o *Orchestrator) run(ctx context.Context, t *turn) {
	defer t.out.Close()

	o.emitObserver(ctx, EventTurnStart, observability.LevelInfo, map[string]any{
		"session_id": t.session.ID,
		"turn_id":    t.id,
		"phase":      string(t.phase),
		"turn":       len(t.session.Turns) + 1,
	})

	turnCtx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	if t.hint != nil {
		o.emit(turnCtx, t, stream.Event{
			Type:  stream.EventTransition,
			Phase: t.hint.To,
			From:  t.hint.From,
			To:    t.hint.To,
		})
	}

	snapshot := t.session.Clone()
	snapshot.Phase = t.phase

	o.delegate(turnCtx, t, t.sub.HandleTurn(turnCtx, agent.Turn{
		Session: snapshot,
		Input:   t.input,
	}))

	status, code, cause := o.outcome(ctx, turnCtx, t)
	update := o.finalize(turnCtx, t, status)

	stored, err := o.persist(ctx, t, update, status, cause)
	if err != nil {
		status, code, cause = session.StatusFailed, stream.CodePersistFailed, err
	}

	o.complete(ctx, t, stored, update, status, code, cause)
}

// delegate forwards content chunks as they arrive and accumulates the turn
// record. Error and end chunks are not recorded; a backend error ends up in
// the record's Error. The chunk channel is always drained.
func (o *Orchestrator) delegate(ctx context.Context, t *turn, chunks <-chan protocol.Chunk) {
	forwarding := true

	for c := range chunks {
		if t.ended || t.err != nil {
			continue
		}
		if c.Kind != protocol.ChunkError && c.Kind != protocol.ChunkEnd {
			t.chunks = append(t.chunks, c)
		}

		switch c.Kind {
		case protocol.ChunkText:
			t.text.WriteString(c.Text)
		case protocol.ChunkItinerary:
			t.delta.Merge(c.Delta)
		case protocol.ChunkToolCall:
			if c.ToolCall != nil {
				t.toolCalls = append(t.toolCalls, *c.ToolCall)
			}
		case protocol.ChunkTransition:
			if c.Proposal != nil {
				p := *c.Proposal
				t.proposal = &p
			}
		case protocol.ChunkError:
			t.err = c.Err
			if t.err == nil {
				t.err = agent.ErrBackendRejected
			}
		case protocol.ChunkEnd:
			t.ended = true
		}

		ev, ok := stream.FromChunk(c)
		if !ok {
			continue
		}
		t.produced = true
		ev.Phase = t.phase
		if forwarding && !o.emit(ctx, t, ev) {
			forwarding = false
		}
	}

	if !t.ended && t.err == nil {
		t.err = fmt.Errorf("%w: chunk sequence ended without a terminal chunk", agent.ErrBackendUnavailable)
	}
}

// outcome classifies the turn. Cancellation by the caller wins over the
// turn timeout, which wins over the sub-agent's own error.
func (o *Orchestrator) outcome(ctx, turnCtx context.Context, t *turn) (session.TurnStatus, string, error) {
	if t.ended && t.err == nil {
		return session.StatusComplete, "", nil
	}

	cause := t.err
	var code string
	switch {
	case ctx.Err() != nil:
		return session.StatusCancelled, stream.CodeCancelled, fmt.Errorf("turn cancelled: %w", ctx.Err())
	case errors.Is(turnCtx.Err(), context.DeadlineExceeded):
		code = stream.CodeTurnTimeout
		cause = fmt.Errorf("turn exceeded %s: %w", o.cfg.TurnTimeout, cause)
	case errors.Is(cause, agent.ErrBackendTimeout):
		code = stream.CodeBackendTimeout
	case errors.Is(cause, agent.ErrBackendUnavailable):
		code = stream.CodeBackendUnavailable
	case errors.Is(cause, agent.ErrBackendRejected):
		code = stream.CodeBackendRejected
	default:
		code = stream.CodeInternal
	}

	if t.produced {
		return session.StatusPartial, code, cause
	}
	return session.StatusFailed, code, cause
}

// finalize decides the phase change and session mutation. A phase hint wins
// over the sub-agent's proposal. Proposals of incomplete turns are rejected,
// as are completion requests outside an exit phase.
func (o *Orchestrator) finalize(ctx context.Context, t *turn, status session.TurnStatus) session.TurnUpdate {
	update := session.TurnUpdate{Transition: t.hint}

	if status != session.StatusComplete {
		if t.proposal != nil {
			o.rejectProposal(ctx, t, "turn "+string(status))
		}
		return update
	}

	if !t.delta.IsEmpty() {
		update.Delta = t.delta.Clone()
	}

	if t.proposal == nil {
		return update
	}
	p := *t.proposal

	final := t.phase
	switch {
	case p.Remain() || p.Target == t.phase:
	case t.hint != nil:
		o.rejectProposal(ctx, t, "phase set by resume hint")
	default:
		if err := o.registry.Graph().Transition(ctx, t.phase, p.Target); err != nil {
			o.rejectProposal(ctx, t, err.Error())
			o.emit(ctx, t, stream.Warning(stream.CodeInvalidTransition, err.Error()))
		} else {
			update.Transition = &session.Transition{From: t.phase, To: p.Target}
			final = p.Target
		}
	}

	if p.Complete {
		if o.registry.IsExit(final) {
			update.Close = true
		} else {
			msg := fmt.Sprintf("completion requested in non-exit phase %s", final)
			o.rejectProposal(ctx, t, msg)
			o.emit(ctx, t, stream.Warning(stream.CodeCompletionRejected, msg))
		}
	}

	return update
}

func (o *Orchestrator) rejectProposal(ctx context.Context, t *turn, reason string) {
	o.emitObserver(ctx, EventProposalRejected, observability.LevelWarning, map[string]any{
		"session_id": t.session.ID,
		"turn_id":    t.id,
		"phase":      string(t.phase),
		"target":     string(t.proposal.Target),
		"complete":   t.proposal.Complete,
		"reason":     reason,
	})
}

// persist appends the turn record with a context detached from the caller so
// cancelled turns are still recorded.
func (o *Orchestrator) persist(ctx context.Context, t *turn, update session.TurnUpdate, status session.TurnStatus, cause error) (*session.Session, error) {
	now := o.now().UTC()
	update.Turn = session.TurnRecord{
		ID:     t.id,
		Phase:  t.phase,
		Status: status,
		Input:  t.input,
		Output: protocol.Message{
			Role:      protocol.RoleAssistant,
			Content:   t.text.String(),
			Timestamp: now,
			ToolCalls: t.toolCalls,
		},
		Chunks:      t.chunks,
		StartedAt:   t.startedAt,
		CompletedAt: now,
	}
	if cause != nil {
		update.Turn.Error = cause.Error()
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PersistTimeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.cfg.PersistBackoff
	policy.MaxElapsedTime = 0

	var stored *session.Session
	attempt := 0
	op := func() error {
		attempt++
		s, err := o.sessions.AppendTurn(pctx, t.session.ID, update)
		if err == nil {
			stored = s
			return nil
		}
		if !retryablePersist(err) {
			return backoff.Permanent(err)
		}
		o.emitObserver(ctx, EventPersistRetry, observability.LevelWarning, map[string]any{
			"session_id": t.session.ID,
			"turn_id":    t.id,
			"attempt":    attempt,
			"error":      err.Error(),
		})
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(o.cfg.PersistRetries, 0))), pctx))
	if err != nil {
		o.emitObserver(ctx, EventPersistFailed, observability.LevelError, map[string]any{
			"session_id": t.session.ID,
			"turn_id":    t.id,
			"attempts":   attempt,
			"error":      err.Error(),
		})
		return nil, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	return stored, nil
}

// retryablePersist reports whether a store error may clear on retry.
// Rejections by the store's own rules never do.
func retryablePersist(err error) bool {
	for _, permanent := range []error{
		session.ErrNotFound,
		session.ErrSessionClosed,
		session.ErrInvalidPhase,
		session.ErrInvalidID,
		session.ErrConflict,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}

// complete emits the applied transition and the terminal event.
func (o *Orchestrator) complete(ctx context.Context, t *turn, stored *session.Session, update session.TurnUpdate, status session.TurnStatus, code string, cause error) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalGrace)
	defer cancel()

	phase := t.phase
	closed := false
	if stored != nil {
		phase = stored.Phase
		closed = stored.Closed

		if tr := update.Transition; tr != nil && tr != t.hint {
			o.emitObserver(ctx, EventTransition, observability.LevelInfo, map[string]any{
				"session_id": t.session.ID,
				"from":       string(tr.From),
				"to":         string(tr.To),
			})
			o.emit(tctx, t, stream.Event{
				Type:  stream.EventTransition,
				Phase: tr.To,
				From:  tr.From,
				To:    tr.To,
			})
		}
	}

	var terminal stream.Event
	if status == session.StatusComplete {
		terminal = stream.Event{Type: stream.EventComplete}
	} else {
		terminal = stream.Failure(code, cause.Error())
	}
	terminal.Phase = phase
	terminal.Status = string(status)
	terminal.Closed = closed
	o.emit(tctx, t, terminal)

	data := map[string]any{
		observability.SessionKey:  t.session.ID,
		observability.TurnKey:     t.id,
		observability.PhaseKey:    string(phase),
		observability.StatusKey:   string(status),
		"closed":                  closed,
		observability.DurationKey: o.now().Sub(t.startedAt),
	}
	level := observability.LevelInfo
	if cause != nil {
		data["error"] = cause.Error()
		level = observability.LevelWarning
	}
	o.emitObserver(ctx, EventTurnComplete, level, data)
}

// emit sends ev to the turn's stream and the session feed. It reports false
// when the consumer can no longer receive.
func (o *Orchestrator) emit(ctx context.Context, t *turn, ev stream.Event) bool {
	stamped, err := t.out.Emit(ctx, ev)
	if errors.Is(err, stream.ErrTerminated) {
		return false
	}
	if err != nil {
		o.emitObserver(ctx, EventStreamAbandoned, observability.LevelWarning, map[string]any{
			"session_id": t.session.ID,
			"turn_id":    t.id,
			"seq":        stamped.Seq,
			"error":      err.Error(),
		})
		return false
	}
	o.publish(ctx, stamped)
	return true
}

// userContext assembles the seed context of a new session.
func (o *Orchestrator) userContext(ctx context.Context, owner string) (json.RawMessage, error) {
	uc := memory.UserContext{
		Profile:       memory.DefaultProfile(),
		PreviousTrips: []memory.Trip{},
	}
	if owner != "" {
		loaded, err := o.directory.UserContext(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("failed to load user context: %w", err)
		}
		uc = loaded
	}
	uc.SystemTime = o.now().UTC()

	data, err := json.Marshal(uc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user context: %w", err)
	}
	return data, nil
}
