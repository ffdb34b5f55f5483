// Package events is the live session feed. The orchestrator publishes every
// turn event to the topic of its session; watchers subscribe per session and
// receive events in publish order. Delivery is best-effort: a slow watcher
// loses events rather than stalling turns, and detects the loss by gaps in
// Seq.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/jurni-app/planner/observability"
	"github.com/jurni-app/planner/stream"
)

// ErrBusClosed is returned by Publish and Subscribe after Close.
var ErrBusClosed = errors.New("event bus closed")

const (
	EventDropped observability.EventType = "events.dropped"

	metadataType = "type"
)

// Topic returns the feed topic for a session.
func Topic(sessionID string) string {
	return "session." + sessionID
}

// Bus is an in-process publish/subscribe feed of session events.
type Bus struct {
	pubsub   *gochannel.GoChannel
	buffer   int
	observer observability.Observer
	closed   atomic.Bool
}

// NewBus creates a bus. A nil observer discards events.
func NewBus(cfg Config, observer observability.Observer) *Bus {
	if observer == nil {
		observer = observability.Discard
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultConfig().Buffer
	}

	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				BlockPublishUntilSubscriberAck: true,
			},
			watermill.NewStdLogger(false, false),
		),
		buffer:   cfg.Buffer,
		observer: observer,
	}
}

// Publish sends ev to the topic of ev.SessionID. Events published while a
// session has no watchers are discarded.
func (b *Bus) Publish(ctx context.Context, ev stream.Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if ev.SessionID == "" {
		return fmt.Errorf("event %s has no session id", ev.Type)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataType, string(ev.Type))
	msg.SetContext(ctx)

	if err := b.pubsub.Publish(Topic(ev.SessionID), msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe returns the live feed of one session. The channel closes when
// ctx is done or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, sessionID string) (<-chan stream.Event, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}

	messages, err := b.pubsub.Subscribe(ctx, Topic(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan stream.Event, b.buffer)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				b.forward(ctx, sessionID, msg, out)
			}
		}
	}()

	return out, nil
}

func (b *Bus) forward(ctx context.Context, sessionID string, msg *message.Message, out chan<- stream.Event) {
	defer msg.Ack()

	var ev stream.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		b.dropped(ctx, sessionID, msg.Metadata.Get(metadataType), "decode")
		return
	}

	select {
	case out <- ev:
	default:
		b.dropped(ctx, sessionID, string(ev.Type), "buffer full")
	}
}

func (b *Bus) dropped(ctx context.Context, sessionID, eventType, reason string) {
	b.observer.OnEvent(ctx, observability.Event{
		Type:      EventDropped,
		Level:     observability.LevelWarning,
		Timestamp: time.Now(),
		Source:    "events.Bus",
		Data: map[string]any{
			"session_id": sessionID,
			"event_type": eventType,
			"reason":     reason,
		},
	})
}

// Close stops delivery and closes every subscription.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.pubsub.Close()
}
