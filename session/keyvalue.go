package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/jurni-app/planner/memory"
)

type envelope struct {
	Revision uint64          `json:"revision"`
	Document json.RawMessage `json:"document"`
}

// keyValueDocuments keeps revisioned documents in a memory.Store under the
// sessions namespace. A single process owns the directory; the mutex makes
// the revision check and the write one step.
type keyValueDocuments struct {
	mu    sync.Mutex
	store memory.Store
}

// NewKeyValueDocuments creates Documents over a memory.Store. With a file
// store each session is one JSON file replaced by rename on every update.
func NewKeyValueDocuments(store memory.Store) Documents {
	return &keyValueDocuments{store: store}
}

func (k *keyValueDocuments) Load(ctx context.Context, id string) ([]byte, uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	env, err := k.read(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	return env.Document, env.Revision, nil
}

func (k *keyValueDocuments) Create(ctx context.Context, id string, data []byte) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, err := k.read(ctx, id); err == nil {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	return 1, k.write(ctx, id, envelope{Revision: 1, Document: data})
}

func (k *keyValueDocuments) Update(ctx context.Context, id string, data []byte, rev uint64) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	env, err := k.read(ctx, id)
	if err != nil {
		return 0, err
	}
	if env.Revision != rev {
		return 0, fmt.Errorf("%w: %s at revision %d, expected %d", ErrConflict, id, env.Revision, rev)
	}

	next := rev + 1
	return next, k.write(ctx, id, envelope{Revision: next, Document: data})
}

func (k *keyValueDocuments) read(ctx context.Context, id string) (envelope, error) {
	if err := ValidateID(id); err != nil {
		return envelope{}, err
	}

	entries, err := k.store.Load(ctx, documentKey(id))
	if errors.Is(err, memory.ErrKeyNotFound) {
		return envelope{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrPersist, err)
	}

	var env envelope
	if err := json.Unmarshal(entries[0].Value, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: decode %s: %v", ErrPersist, id, err)
	}
	return env, nil
}

func (k *keyValueDocuments) write(ctx context.Context, id string, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := k.store.Save(ctx, memory.Entry{Key: documentKey(id), Value: data}); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

func documentKey(id string) string {
	return path.Join(memory.NamespaceSessions, id+".json")
}
