// Package stream carries one turn's outward events from the orchestrator to
// a transport. A Stream assigns sequence numbers, bounds its buffer, and ends
// with exactly one terminal event.
//
//	s := stream.New(ctx, sessionID, turnID, 16)
//	go produce(s)
//	for ev := range s.Events() {
//	    write(ev)
//	}
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTerminated is returned by Emit after the terminal event was sent.
var ErrTerminated = errors.New("stream already terminated")

// DefaultBufferSize is used when New is given a non-positive size.
const DefaultBufferSize = 16

const closeGrace = 100 * time.Millisecond

// Stream is the outward event sequence of one turn. Emit and Close may be
// called from any goroutine; events keep the order in which Emit returned.
type Stream struct {
	events    *Channel[Event]
	sessionID string
	turnID    string

	mu         sync.Mutex
	seq        int64
	terminated bool
}

// New creates a stream bound to ctx, normally the consumer's request context.
// Non-terminal sends fail once ctx is done; the terminal event is still
// offered to a consumer that keeps draining.
func New(ctx context.Context, sessionID, turnID string, bufferSize int) *Stream {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Stream{
		events:    NewChannel[Event](ctx, bufferSize),
		sessionID: sessionID,
		turnID:    turnID,
	}
}

func (s *Stream) SessionID() string {
	return s.sessionID
}

func (s *Stream) TurnID() string {
	return s.turnID
}

// Emit stamps e with the next sequence number, the stream identifiers and the
// current time, and queues it. A failed send does not consume a sequence
// number. A terminal event waits only on ctx and closes the stream whether
// or not it was queued. Events after the terminal are rejected with
// ErrTerminated.
func (s *Stream) Emit(ctx context.Context, e Event) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return e, ErrTerminated
	}

	e.Seq = s.seq + 1
	if e.SessionID == "" {
		e.SessionID = s.sessionID
	}
	if e.TurnID == "" {
		e.TurnID = s.turnID
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	terminal := e.IsTerminal()
	var err error
	if terminal {
		err = s.events.Deliver(ctx, e)
	} else {
		err = s.events.Send(ctx, e)
	}
	if err == nil {
		s.seq = e.Seq
	}
	if terminal {
		s.terminated = true
		s.events.Close()
	}
	if err != nil {
		return e, fmt.Errorf("failed to emit %s event: %w", e.Type, err)
	}
	return e, nil
}

// Close ends the stream. When no terminal event was emitted, an error event
// with CodeStreamClosed is queued first, waiting at most closeGrace for
// buffer room.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return
	}
	s.terminated = true

	ev := Failure(CodeStreamClosed, "stream closed before the turn completed")
	ev.Seq = s.seq + 1
	ev.SessionID = s.sessionID
	ev.TurnID = s.turnID
	ev.Timestamp = time.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), closeGrace)
	defer cancel()
	if s.events.Deliver(ctx, ev) == nil {
		s.seq = ev.Seq
	}
	s.events.Close()
}

// Terminated reports whether the terminal event has been emitted.
func (s *Stream) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// Events returns the receive side. It closes after the terminal event.
func (s *Stream) Events() <-chan Event {
	return s.events.C()
}

// Recv returns the next event, or ErrClosed after the stream is drained.
func (s *Stream) Recv(ctx context.Context) (Event, error) {
	return s.events.Receive(ctx)
}

// Collect drains the stream and returns every event in order.
func (s *Stream) Collect(ctx context.Context) ([]Event, error) {
	var out []Event
	for {
		ev, err := s.Recv(ctx)
		if errors.Is(err, ErrClosed) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}
