package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Documents is a revisioned document collection. It is the only capability
// DocumentStore needs from a durable backend: read with revision, create if
// absent, and compare-and-swap update.
type Documents interface {
	// Load returns the document and its revision, or ErrNotFound.
	Load(ctx context.Context, id string) ([]byte, uint64, error)
	// Create stores a new document, or fails with ErrAlreadyExists.
	Create(ctx context.Context, id string, data []byte) (uint64, error)
	// Update replaces the document if its revision still equals rev, or
	// fails with ErrConflict.
	Update(ctx context.Context, id string, data []byte, rev uint64) (uint64, error)
}

// DocumentStore is a Store over a Documents backend. Every mutation is a
// read-modify-write checked on revision; conflicts are retried with backoff
// up to a bounded number of attempts.
type DocumentStore struct {
	docs    Documents
	retries uint64
	backoff time.Duration
}

// DocumentOption configures a DocumentStore.
type DocumentOption func(*DocumentStore)

// WithConflictRetries bounds how many times a conflicting update is retried.
func WithConflictRetries(n int) DocumentOption {
	return func(s *DocumentStore) {
		if n >= 0 {
			s.retries = uint64(n)
		}
	}
}

// WithConflictBackoff sets the initial wait between conflict retries.
func WithConflictBackoff(d time.Duration) DocumentOption {
	return func(s *DocumentStore) {
		if d > 0 {
			s.backoff = d
		}
	}
}

// NewDocumentStore creates a Store persisting sessions as JSON documents.
func NewDocumentStore(docs Documents, opts ...DocumentOption) *DocumentStore {
	s := &DocumentStore{
		docs:    docs,
		retries: 5,
		backoff: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (d *DocumentStore) Get(ctx context.Context, id string) (*Session, error) {
	s, _, err := d.load(ctx, id)
	return s, err
}

func (d *DocumentStore) Create(ctx context.Context, id string, init Init) (*Session, error) {
	s, err := newSession(id, init, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	rev, err := d.docs.Create(ctx, id, data)
	if err != nil {
		return nil, err
	}
	s.Revision = rev
	return s, nil
}

func (d *DocumentStore) AppendTurn(ctx context.Context, id string, update TurnUpdate) (*Session, error) {
	return d.mutate(ctx, id, func(s *Session) (bool, error) {
		return true, applyTurn(s, update, time.Now().UTC())
	})
}

func (d *DocumentStore) Close(ctx context.Context, id string) (*Session, error) {
	return d.mutate(ctx, id, func(s *Session) (bool, error) {
		if s.Closed {
			return false, nil
		}
		s.Closed = true
		s.UpdatedAt = time.Now().UTC()
		return true, nil
	})
}

// mutate runs fn against the latest revision and writes the result back.
// fn reports whether it changed anything; unchanged sessions are not written.
func (d *DocumentStore) mutate(ctx context.Context, id string, fn func(*Session) (bool, error)) (*Session, error) {
	var result *Session

	op := func() error {
		s, rev, err := d.load(ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}

		changed, err := fn(s)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !changed {
			result = s
			return nil
		}

		data, err := json.Marshal(s)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrPersist, err))
		}

		newRev, err := d.docs.Update(ctx, id, data, rev)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		s.Revision = newRev
		result = s
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.backoff
	policy := backoff.WithContext(backoff.WithMaxRetries(b, d.retries), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return result, nil
}

func (d *DocumentStore) load(ctx context.Context, id string) (*Session, uint64, error) {
	data, rev, err := d.docs.Load(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, 0, fmt.Errorf("%w: decode %s: %v", ErrPersist, id, err)
	}
	if s.Itinerary == nil {
		s.Itinerary = map[string]json.RawMessage{}
	}
	if s.Turns == nil {
		s.Turns = []TurnRecord{}
	}
	s.Revision = rev
	return &s, rev, nil
}
