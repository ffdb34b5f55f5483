package session

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jurni-app/planner/core/protocol"
)

// Store is the durable keyed record of sessions. Every mutation of one id is
// atomic and serialized; distinct ids are independent. Returned sessions are
// deep copies the caller may keep.
type Store interface {
	// Get returns the session with id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Create starts a session with id. A second call for the same id fails
	// with ErrAlreadyExists.
	Create(ctx context.Context, id string, init Init) (*Session, error)
	// AppendTurn records a turn and applies its transition, itinerary delta,
	// and close flag in one update.
	AppendTurn(ctx context.Context, id string, update TurnUpdate) (*Session, error)
	// Close marks the session terminal. Closing a closed session is a no-op.
	Close(ctx context.Context, id string) (*Session, error)
}

// NewID generates a session id for owner. Ids follow the
// session_<owner>_<unix> shape with a random suffix so concurrent starts by
// one owner do not collide.
func NewID(owner string) string {
	suffix := strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")
	owner = sanitize(owner)
	if owner == "" {
		owner = "anonymous"
	}
	return fmt.Sprintf("session_%s_%d_%s", owner, time.Now().Unix(), suffix[len(suffix)-8:])
}

// ValidateID rejects ids that cannot be used as a storage key.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if len(id) > 200 {
		return fmt.Errorf("%w: too long", ErrInvalidID)
	}
	if sanitize(id) != id {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		}
		return -1
	}, s)
}

func newSession(id string, init Init, now time.Time) (*Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if !protocol.IsValid(string(init.Phase)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPhase, init.Phase)
	}
	return &Session{
		ID:        id,
		Owner:     init.Owner,
		Phase:     init.Phase,
		Turns:     []TurnRecord{},
		Itinerary: map[string]json.RawMessage{},
		Context:   slices.Clone(init.Context),
		CreatedAt: now,
		UpdatedAt: now,
		Revision:  1,
	}, nil
}

// applyTurn mutates s in place. Callers hand it a private copy so a failed
// update leaves the stored session untouched.
func applyTurn(s *Session, u TurnUpdate, now time.Time) error {
	if s.Closed {
		return fmt.Errorf("%w: %s", ErrSessionClosed, s.ID)
	}
	if !protocol.IsValid(string(u.Turn.Phase)) {
		return fmt.Errorf("%w: turn phase %q", ErrInvalidPhase, u.Turn.Phase)
	}

	if tr := u.Transition; tr != nil {
		if !protocol.IsValid(string(tr.From)) || !protocol.IsValid(string(tr.To)) {
			return fmt.Errorf("%w: transition %q -> %q", ErrInvalidPhase, tr.From, tr.To)
		}
		if tr.From != s.Phase {
			return fmt.Errorf("%w: transition from %s but session is in %s", ErrConflict, tr.From, s.Phase)
		}
		s.Phase = tr.To
	}

	turn := u.Turn.clone()
	if turn.ID == "" {
		turn.ID = uuid.Must(uuid.NewV7()).String()
	}
	turn.Seq = len(s.Turns) + 1
	if turn.Transition == nil && u.Transition != nil {
		tr := *u.Transition
		turn.Transition = &tr
	}
	if turn.CompletedAt.IsZero() {
		turn.CompletedAt = now
	}
	s.Turns = append(s.Turns, turn)

	if !u.Delta.IsEmpty() {
		if s.Itinerary == nil {
			s.Itinerary = map[string]json.RawMessage{}
		}
		for _, key := range u.Delta.Remove {
			delete(s.Itinerary, key)
		}
		for key, value := range u.Delta.Set {
			s.Itinerary[key] = slices.Clone(value)
		}
	}

	if u.Close {
		s.Closed = true
	}
	s.UpdatedAt = now
	s.Revision++
	return nil
}
