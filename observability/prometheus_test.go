package observability_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jurni-app/planner/observability"
)

func TestPrometheusObserver_CountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := observability.NewPrometheusObserver(reg, "planner")

	for range 3 {
		obs.OnEvent(context.Background(), observability.Event{
			Type:  "orchestrator.turn.start",
			Level: observability.LevelInfo,
		})
	}
	obs.OnEvent(context.Background(), observability.Event{
		Type:  "orchestrator.turn.failed",
		Level: observability.LevelWarning,
	})

	expected := `
# HELP planner_events_total Observability events emitted, by event type and level.
# TYPE planner_events_total counter
planner_events_total{level="INFO",type="orchestrator.turn.start"} 3
planner_events_total{level="WARN",type="orchestrator.turn.failed"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "planner_events_total"); err != nil {
		t.Error(err)
	}
}

func TestPrometheusObserver_RecordsDurations(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := observability.NewPrometheusObserver(reg, "planner")

	obs.OnEvent(context.Background(), observability.Event{
		Type:  "orchestrator.turn.complete",
		Level: observability.LevelInfo,
		Data:  map[string]any{observability.DurationKey: 1500 * time.Millisecond},
	})
	obs.OnEvent(context.Background(), observability.Event{
		Type:  "orchestrator.turn.complete",
		Level: observability.LevelInfo,
		Data:  map[string]any{observability.DurationKey: "not a duration"},
	})

	got, err := testutil.GatherAndCount(reg, "planner_event_duration_seconds")
	if err != nil {
		t.Fatalf("GatherAndCount failed: %v", err)
	}
	if got != 1 {
		t.Errorf("got %d duration series, want 1", got)
	}
}

func TestPrometheusObserver_CountsTurnOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := observability.NewPrometheusObserver(reg, "planner")

	turn := func(phase, status string) observability.Event {
		return observability.Event{
			Type:  "orchestrator.turn.complete",
			Level: observability.LevelInfo,
			Data: map[string]any{
				observability.SessionKey: "lisbon",
				observability.PhaseKey:   phase,
				observability.StatusKey:  status,
			},
		}
	}
	obs.OnEvent(context.Background(), turn("inspiration", "complete"))
	obs.OnEvent(context.Background(), turn("inspiration", "complete"))
	obs.OnEvent(context.Background(), turn("planning", "partial"))
	obs.OnEvent(context.Background(), observability.Event{
		Type:  "orchestrator.turn.start",
		Level: observability.LevelInfo,
		Data:  map[string]any{observability.PhaseKey: "planning"},
	})

	expected := `
# HELP planner_turns_total Finished turns, by lifecycle phase and turn status.
# TYPE planner_turns_total counter
planner_turns_total{phase="inspiration",status="complete"} 2
planner_turns_total{phase="planning",status="partial"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "planner_turns_total"); err != nil {
		t.Error(err)
	}
}
