package events_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jurni-app/planner/events"
	"github.com/jurni-app/planner/observability"
	"github.com/jurni-app/planner/stream"
)

type recorder struct {
	mu     sync.Mutex
	events []observability.Event
}

func (r *recorder) OnEvent(_ context.Context, e observability.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(t observability.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func receive(t *testing.T, ch <-chan stream.Event) stream.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "feed closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return stream.Event{}
	}
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := events.NewBus(events.DefaultConfig(), nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := bus.Subscribe(ctx, "session_a")
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, bus.Publish(ctx, stream.Event{
			Seq:       int64(i),
			Type:      stream.EventContent,
			SessionID: "session_a",
			Text:      "chunk",
		}))
	}

	for i := 1; i <= 5; i++ {
		ev := receive(t, feed)
		assert.Equal(t, int64(i), ev.Seq)
		assert.Equal(t, stream.EventContent, ev.Type)
		assert.Equal(t, "session_a", ev.SessionID)
	}
}

func TestBus_TopicsAreIsolated(t *testing.T) {
	bus := events.NewBus(events.DefaultConfig(), nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := bus.Subscribe(ctx, "a")
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, stream.Event{Type: stream.EventComplete, SessionID: "b"}))

	ev := receive(t, b)
	assert.Equal(t, "b", ev.SessionID)

	select {
	case ev := <-a:
		t.Fatalf("unexpected event on a: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_PublishWithoutWatchers(t *testing.T) {
	bus := events.NewBus(events.DefaultConfig(), nil)
	defer bus.Close()

	err := bus.Publish(context.Background(), stream.Event{Type: stream.EventContent, SessionID: "idle"})
	assert.NoError(t, err)
}

func TestBus_PublishRequiresSession(t *testing.T) {
	bus := events.NewBus(events.DefaultConfig(), nil)
	defer bus.Close()

	err := bus.Publish(context.Background(), stream.Event{Type: stream.EventContent})
	assert.Error(t, err)
}

func TestBus_SlowWatcherDropsEvents(t *testing.T) {
	obs := &recorder{}
	bus := events.NewBus(events.Config{Buffer: 1}, obs)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := bus.Subscribe(ctx, "s")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, bus.Publish(ctx, stream.Event{Seq: int64(i), Type: stream.EventContent, SessionID: "s"}))
	}

	ev := receive(t, feed)
	assert.Equal(t, int64(1), ev.Seq)
	assert.Equal(t, 2, obs.count(events.EventDropped))
}

func TestBus_SubscriptionEndsWithContext(t *testing.T) {
	bus := events.NewBus(events.DefaultConfig(), nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	feed, err := bus.Subscribe(ctx, "s")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-feed:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not close")
	}
}

func TestBus_Closed(t *testing.T) {
	bus := events.NewBus(events.DefaultConfig(), nil)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), stream.Event{Type: stream.EventContent, SessionID: "s"})
	assert.ErrorIs(t, err, events.ErrBusClosed)

	_, err = bus.Subscribe(context.Background(), "s")
	assert.ErrorIs(t, err, events.ErrBusClosed)
}

func TestConfig_Merge(t *testing.T) {
	cfg := events.DefaultConfig()
	cfg.Merge(&events.Config{})
	assert.Equal(t, 64, cfg.Buffer)

	cfg.Merge(&events.Config{Buffer: 8})
	assert.Equal(t, 8, cfg.Buffer)
}
