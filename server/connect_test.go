package server_test

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/server"
	"github.com/jurni-app/planner/stream"
)

func TestConnect_SubmitTurn(t *testing.T) {
	h := newHarness(t, nil)
	client := server.NewClient(h.srv.Client(), h.srv.URL, "")
	ctx := context.Background()

	var events []stream.Event
	err := client.SubmitTurn(ctx, "rpc", "temples", "", func(ev stream.Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, events)

	for i, ev := range events {
		assert.EqualValues(t, i+1, ev.Seq)
		assert.Equal(t, "rpc", ev.SessionID)
	}
	assert.Equal(t, stream.EventContent, events[0].Type)
	assert.Equal(t, stream.EventComplete, events[len(events)-1].Type)

	sess, err := client.GetSession(ctx, "rpc")
	require.NoError(t, err)
	assert.Equal(t, protocol.PhaseInspiration, sess.Phase)
	assert.Len(t, sess.Turns, 1)
	assert.Equal(t, "temples", sess.Turns[0].Input.Content)

	closed, err := client.CloseSession(ctx, "rpc")
	require.NoError(t, err)
	assert.True(t, closed.Closed)

	err = client.SubmitTurn(ctx, "rpc", "again", "", func(stream.Event) error { return nil })
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}

func TestConnect_Errors(t *testing.T) {
	h := newHarness(t, staticAuth(false))
	ctx := context.Background()

	alice := server.NewClient(h.srv.Client(), h.srv.URL, "alice-token")
	bob := server.NewClient(h.srv.Client(), h.srv.URL, "bob-token")
	nobody := server.NewClient(h.srv.Client(), h.srv.URL, "")

	_, err := alice.CreateSession(ctx, "owned")
	require.NoError(t, err)

	_, err = alice.CreateSession(ctx, "owned")
	assert.Equal(t, connect.CodeAlreadyExists, connect.CodeOf(err))

	_, err = alice.GetSession(ctx, "missing")
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = bob.GetSession(ctx, "owned")
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	_, err = nobody.GetSession(ctx, "owned")
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	err = alice.SubmitTurn(ctx, "owned", "", "", func(stream.Event) error { return nil })
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	err = alice.SubmitTurn(ctx, "owned", "hi", "nowhere", func(stream.Event) error { return nil })
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = alice.SaveItinerary(ctx, "owned")
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestConnect_SaveItinerary(t *testing.T) {
	h := newHarness(t, staticAuth(false))
	ctx := context.Background()
	client := server.NewClient(h.srv.Client(), h.srv.URL, "alice-token")

	for _, msg := range []string{"temples", "Japan", "plan the days"} {
		var terminal stream.Event
		require.NoError(t, client.SubmitTurn(ctx, "rpc-trip", msg, "", func(ev stream.Event) error {
			terminal = ev
			return nil
		}))
		require.Equal(t, stream.EventComplete, terminal.Type)
	}

	trip, err := client.SaveItinerary(ctx, "rpc-trip")
	require.NoError(t, err)
	assert.Equal(t, "Kyoto", trip.Destination)
	assert.Equal(t, "alice", trip.UserID)
}
