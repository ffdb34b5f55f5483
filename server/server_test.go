package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jurni-app/planner/auth"
	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/orchestrator"
	"github.com/jurni-app/planner/server"
	"github.com/jurni-app/planner/stream"
)

func staticAuth(anonymous bool) func(*server.Config) {
	return func(cfg *server.Config) {
		cfg.Auth.Mode = auth.ModeStatic
		cfg.Auth.Tokens = map[string]string{"alice-token": "alice", "bob-token": "bob"}
		cfg.Auth.AllowAnonymous = &anonymous
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)

	for _, path := range []string{"/", "/health"} {
		res, err := http.Get(h.srv.URL + path)
		require.NoError(t, err)
		var body map[string]string
		require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
		res.Body.Close()

		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "healthy", body["status"])
	}
}

func TestCreateSession(t *testing.T) {
	h := newHarness(t, nil)

	res, env := h.post(t, "/session", "", map[string]string{"session_id": "kyoto"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, "kyoto", env.SessionID)
	assert.JSONEq(t, `{"phase":"inspiration","user_trips_count":0}`, string(env.Data))

	res, env = h.post(t, "/session", "", map[string]string{"session_id": "kyoto"})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.False(t, env.Success)

	res, env = h.post(t, "/session", "", nil)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.NotEmpty(t, env.SessionID)

	res, _ = h.post(t, "/session", "", map[string]string{"session_id": "not valid"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = h.post(t, "/session", "", map[string]string{"unknown": "x"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestCreateSession_UndecodableContext(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.Orchestrator.Observer = "noop"
	orch, err := orchestrator.New(&cfg.Orchestrator)
	require.NoError(t, err)
	t.Cleanup(func() { _ = orch.Close() })

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	planner := &rawContextPlanner{Orchestrator: orch, raw: json.RawMessage(`{"previous_trips":`)}
	h := serve(t, &cfg, orch, planner, server.WithLogger(logger))

	res, env := h.post(t, "/session", "", map[string]string{"session_id": "porto"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.JSONEq(t, `{"phase":"inspiration","user_trips_count":0}`, string(env.Data))
	assert.Contains(t, logs.String(), "undecodable session context")
	assert.Contains(t, logs.String(), `"session_id":"porto"`)
}

func TestSessionState(t *testing.T) {
	h := newHarness(t, nil)

	res, _ := h.get(t, "/session/missing/state", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	_, frames := h.chat(t, "", map[string]string{"session_id": "lisbon", "message": "somewhere warm"})
	require.NotEmpty(t, frames)

	res, env := h.get(t, "/session/lisbon/state", "")
	require.Equal(t, http.StatusOK, res.StatusCode)

	var state struct {
		ID    string            `json:"id"`
		Phase protocol.Phase    `json:"phase"`
		Turns []json.RawMessage `json:"turns"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.Equal(t, "lisbon", state.ID)
	assert.Equal(t, protocol.PhaseInspiration, state.Phase)
	assert.Len(t, state.Turns, 1)
}

func TestChat_StreamsTurn(t *testing.T) {
	h := newHarness(t, nil)

	res, frames := h.chat(t, "", map[string]string{"session_id": "trip", "message": "temples"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "no-store", res.Header.Get("Cache-Control"))

	types := frameTypes(t, frames)
	require.GreaterOrEqual(t, len(types), 4)
	assert.Equal(t, "connection_established", types[0])
	assert.Equal(t, "content", types[1])
	assert.Equal(t, "complete", types[len(types)-2])
	assert.Equal(t, "stream_complete", types[len(types)-1])

	var hello struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(frames[0], &hello))
	assert.Equal(t, "Connected to travel planner", hello.Message)
	assert.Equal(t, "trip", hello.SessionID)

	first := decodeEvent(t, frames[1])
	assert.Contains(t, first.Text, "temples")
	assert.EqualValues(t, 1, first.Seq)

	done := decodeEvent(t, frames[len(frames)-2])
	assert.Equal(t, string("complete"), done.Status)
	assert.Equal(t, protocol.PhaseInspiration, done.Phase)
}

func TestChat_Transition(t *testing.T) {
	h := newHarness(t, nil)

	h.chat(t, "", map[string]string{"session_id": "trip", "message": "temples"})
	_, frames := h.chat(t, "", map[string]string{"session_id": "trip", "message": "Japan"})

	types := frameTypes(t, frames)
	assert.Contains(t, types, "itinerary")
	require.Contains(t, types, "transition")

	for _, f := range frames[1 : len(frames)-1] {
		ev := decodeEvent(t, f)
		if ev.Type == stream.EventTransition {
			assert.Equal(t, protocol.PhaseInspiration, ev.From)
			assert.Equal(t, protocol.PhasePlanning, ev.To)
		}
	}
	assert.Equal(t, protocol.PhasePlanning, decodeEvent(t, frames[len(frames)-2]).Phase)
}

func TestChat_RejectedBeforeStream(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"empty message", map[string]string{"message": "  "}, http.StatusBadRequest},
		{"unknown phase", map[string]string{"message": "hi", "phase": "daydreaming"}, http.StatusBadRequest},
		{"invalid id", map[string]string{"message": "hi", "session_id": "a b"}, http.StatusBadRequest},
		{"hint into new session", map[string]string{"message": "hi", "session_id": "fresh", "phase": "booking"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, frames := h.chat(t, "", tt.body)
			assert.Equal(t, tt.want, res.StatusCode)
			assert.Nil(t, frames)
		})
	}
}

func TestChatStructured(t *testing.T) {
	h := newHarness(t, nil)

	res, env := h.post(t, "/chat-structured", "", map[string]string{"session_id": "plain", "message": "hello"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, "No structured data found", env.Message)
	assert.Equal(t, "plain", env.SessionID)
	assert.Equal(t, "null", string(env.Data))

	stub := &stubPlanner{Orchestrator: h.orch, events: []stream.Event{
		{Type: stream.EventContent, Text: "Here are some options"},
		{Type: stream.EventStructured, DataType: "flight_options", Data: json.RawMessage(`[{"id":"SL-2210"}]`)},
		{Type: stream.EventComplete, Status: "complete"},
	}}
	cfg := server.DefaultConfig()
	sh := serve(t, &cfg, h.orch, stub)

	res, body := sh.post(t, "/chat-structured", "", map[string]string{"session_id": "s", "message": "flights"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, body.Success)
	assert.JSONEq(t, `[{"id":"SL-2210"}]`, string(body.Data))

	stub.events = []stream.Event{stream.Failure(stream.CodeBackendTimeout, "backend timeout")}
	res, body = sh.post(t, "/chat-structured", "", map[string]string{"session_id": "s", "message": "flights"})
	assert.Equal(t, http.StatusGatewayTimeout, res.StatusCode)
	assert.False(t, body.Success)
	assert.Equal(t, "backend timeout", body.Message)
}

func TestAuth(t *testing.T) {
	h := newHarness(t, staticAuth(false))

	res, _ := h.post(t, "/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.NotEmpty(t, res.Header.Get("WWW-Authenticate"))

	res, _ = h.post(t, "/session", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, env := h.post(t, "/session", "alice-token", map[string]string{"session_id": "alice-trip"})
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, _ = h.get(t, "/session/alice-trip/state", "bob-token")
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, env = h.get(t, "/session/alice-trip/state", "alice-token")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(env.Data), `"owner":"alice"`)

	res, err := http.Get(h.srv.URL + "/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestSaveItinerary(t *testing.T) {
	h := newHarness(t, staticAuth(true))

	for _, msg := range []string{"temples", "Japan", "plan the days"} {
		_, frames := h.chat(t, "alice-token", map[string]string{"session_id": "japan", "message": msg})
		require.Equal(t, "complete", frameTypes(t, frames)[len(frames)-2])
	}

	res, _ := h.post(t, "/save-itinerary?session_id=japan", "", nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, _ = h.post(t, "/save-itinerary", "alice-token", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, env := h.post(t, "/save-itinerary?session_id=japan", "alice-token", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var data struct {
		TripID string `json:"trip_id"`
		Trip   struct {
			Destination string `json:"destination"`
			SessionID   string `json:"session_id"`
		} `json:"trip"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data.TripID)
	assert.Equal(t, "Kyoto", data.Trip.Destination)
	assert.Equal(t, "japan", data.Trip.SessionID)

	res, env = h.post(t, "/session", "alice-token", nil)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Contains(t, string(env.Data), `"user_trips_count":1`)
}

func TestSaveItinerary_Incomplete(t *testing.T) {
	h := newHarness(t, staticAuth(true))

	h.chat(t, "alice-token", map[string]string{"session_id": "early", "message": "somewhere"})

	res, env := h.post(t, "/save-itinerary", "alice-token", map[string]string{"session_id": "early"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.False(t, env.Success)
}

func TestCloseSession(t *testing.T) {
	h := newHarness(t, nil)

	res, _ := h.post(t, "/session/missing/close", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	h.post(t, "/session", "", map[string]string{"session_id": "done"})
	res, env := h.post(t, "/session/done/close", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"phase":"inspiration","closed":true}`, string(env.Data))

	res, _ = h.chat(t, "", map[string]string{"session_id": "done", "message": "again"})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestWatch(t *testing.T) {
	h := newHarness(t, nil)
	h.post(t, "/session", "", map[string]string{"session_id": "live"})

	wsURL := "ws" + strings.TrimPrefix(h.base, "http") + "/session/live/watch"
	conn, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, res.StatusCode)

	_, frames := h.chat(t, "", map[string]string{"session_id": "live", "message": "temples"})
	streamed := len(frames) - 2

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var watched []stream.Event
	for {
		var ev stream.Event
		require.NoError(t, conn.ReadJSON(&ev))
		watched = append(watched, ev)
		if ev.IsTerminal() {
			break
		}
	}
	assert.Len(t, watched, streamed)
	assert.Equal(t, "live", watched[0].SessionID)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(h.base, "http")+"/session/missing/watch", nil)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
}

func TestCORS(t *testing.T) {
	h := newHarness(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{"https://app.example.com"}
	})

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, h.base+"/chat", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		res.Body.Close()
		return res
	}

	res := preflight("https://app.example.com")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "https://app.example.com", res.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, res.Header.Get("Access-Control-Allow-Headers"), "Authorization")

	res = preflight("https://evil.example.com")
	assert.Empty(t, res.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetrics(t *testing.T) {
	h := newHarness(t, nil)
	h.post(t, "/session", "", map[string]string{"session_id": "m"})

	res, err := http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `planner_http_requests_total{method="POST",route="/v1/travel-planner/session",status="201"} 1`)
}
