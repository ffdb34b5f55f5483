package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

type kvDocuments struct {
	kv jetstream.KeyValue
}

// NewKVDocuments creates Documents in a JetStream key-value bucket, creating
// the bucket if needed. Revisions are the bucket's per-key sequence numbers,
// so concurrent planners sharing a bucket are serialized by Update.
func NewKVDocuments(ctx context.Context, js jetstream.JetStream, bucket string) (Documents, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "planner sessions",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucket, err)
	}
	return &kvDocuments{kv: kv}, nil
}

func (k *kvDocuments) Load(ctx context.Context, id string) ([]byte, uint64, error) {
	if err := ValidateID(id); err != nil {
		return nil, 0, err
	}

	entry, err := k.kv.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return entry.Value(), entry.Revision(), nil
}

func (k *kvDocuments) Create(ctx context.Context, id string, data []byte) (uint64, error) {
	if err := ValidateID(id); err != nil {
		return 0, err
	}

	rev, err := k.kv.Create(ctx, id, data)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
		}
		return 0, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return rev, nil
}

func (k *kvDocuments) Update(ctx context.Context, id string, data []byte, rev uint64) (uint64, error) {
	next, err := k.kv.Update(ctx, id, data, rev)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, fmt.Errorf("%w: %s at revision %d", ErrConflict, id, rev)
		}
		return 0, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return next, nil
}
