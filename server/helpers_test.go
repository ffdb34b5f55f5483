package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/jurni-app/planner/orchestrator"
	"github.com/jurni-app/planner/server"
	"github.com/jurni-app/planner/session"
	"github.com/jurni-app/planner/stream"
)

type harness struct {
	srv      *httptest.Server
	orch     *orchestrator.Orchestrator
	registry *prometheus.Registry
	base     string
}

func newHarness(t *testing.T, configure func(*server.Config), opts ...server.Option) *harness {
	t.Helper()

	cfg := server.DefaultConfig()
	cfg.Orchestrator.Observer = "noop"
	if configure != nil {
		configure(&cfg)
	}

	orch, err := orchestrator.New(&cfg.Orchestrator)
	require.NoError(t, err)
	t.Cleanup(func() { _ = orch.Close() })

	return serve(t, &cfg, orch, orch, opts...)
}

func serve(t *testing.T, cfg *server.Config, orch *orchestrator.Orchestrator, planner server.Planner, opts ...server.Option) *harness {
	t.Helper()

	reg := prometheus.NewRegistry()
	opts = append([]server.Option{server.WithMetricsRegistry(reg)}, opts...)
	s, err := server.New(cfg, planner, opts...)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &harness{srv: srv, orch: orch, registry: reg, base: srv.URL + cfg.BasePath}
}

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
}

func (h *harness) post(t *testing.T, path, token string, body any) (*http.Response, envelope) {
	t.Helper()
	return h.do(t, http.MethodPost, path, token, body)
}

func (h *harness) get(t *testing.T, path, token string) (*http.Response, envelope) {
	t.Helper()
	return h.do(t, http.MethodGet, path, token, nil)
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (*http.Response, envelope) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.base+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var env envelope
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	if strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return res, env
}

// chat posts a chat message and reads every SSE data frame until the
// handler finishes.
func (h *harness) chat(t *testing.T, token string, body map[string]string) (*http.Response, []json.RawMessage) {
	t.Helper()

	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, h.base+"/chat", bytes.NewReader(b))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var frames []json.RawMessage
	if res.Header.Get("Content-Type") != "text/event-stream" {
		return res, nil
	}
	sc := bufio.NewScanner(res.Body)
	for sc.Scan() {
		if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			frames = append(frames, json.RawMessage(data))
		}
	}
	require.NoError(t, sc.Err())
	return res, frames
}

func frameTypes(t *testing.T, frames []json.RawMessage) []string {
	t.Helper()
	types := make([]string, len(frames))
	for i, f := range frames {
		var frame struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(f, &frame))
		types[i] = frame.Type
	}
	return types
}

func decodeEvent(t *testing.T, raw json.RawMessage) stream.Event {
	t.Helper()
	var ev stream.Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

// stubPlanner replays fixed events for every turn and delegates everything
// else to an orchestrator.
type stubPlanner struct {
	*orchestrator.Orchestrator
	events []stream.Event
}

func (p *stubPlanner) Submit(ctx context.Context, req orchestrator.TurnRequest) (*stream.Stream, error) {
	id := req.SessionID
	if id == "" {
		id = "stubbed"
	}
	s := stream.New(ctx, id, "turn-1", len(p.events)+1)
	go func() {
		defer s.Close()
		for _, ev := range p.events {
			if _, err := s.Emit(ctx, ev); err != nil {
				return
			}
		}
	}()
	return s, nil
}

// rawContextPlanner creates sessions whose context is replaced by raw.
type rawContextPlanner struct {
	*orchestrator.Orchestrator
	raw json.RawMessage
}

func (p *rawContextPlanner) CreateSession(ctx context.Context, id, owner string) (*session.Session, error) {
	s, err := p.Orchestrator.CreateSession(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	s.Context = p.raw
	return s, nil
}
