// Package observability carries the planner's operational events from the
// orchestrator, sub-agents, phase graph and feed to log and metric sinks.
// Level values sit inside the OpenTelemetry SeverityNumber bands so events
// can be shipped to an OTel collector unchanged.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Level is an event severity on the OTel SeverityNumber scale.
type Level int

const (
	LevelVerbose Level = 5  // OTel DEBUG band
	LevelInfo    Level = 9  // OTel INFO band
	LevelWarning Level = 13 // OTel WARN band
	LevelError   Level = 17 // OTel ERROR band
)

// bands lists the OTel severity ranges by their inclusive upper bound.
var bands = []struct {
	upper Level
	text  string
	slog  slog.Level
}{
	{4, "TRACE", slog.LevelDebug},
	{8, "DEBUG", slog.LevelDebug},
	{12, "INFO", slog.LevelInfo},
	{16, "WARN", slog.LevelWarn},
	{20, "ERROR", slog.LevelError},
}

// String returns the OTel severity text.
func (l Level) String() string {
	for _, b := range bands {
		if l <= b.upper {
			return b.text
		}
	}
	return "FATAL"
}

// SlogLevel returns the slog level used when the event is logged.
func (l Level) SlogLevel() slog.Level {
	for _, b := range bands {
		if l <= b.upper {
			return b.slog
		}
	}
	return slog.LevelError
}

// EventType names an event, namespaced by the emitting package
// ("orchestrator.turn.complete", "agent.tool.executed", "graph.validated").
type EventType string

// Data keys shared by the emitting packages. Sinks give them special
// treatment: correlation keys lead log lines, DurationKey feeds latency
// histograms, and PhaseKey with StatusKey feed turn outcome counters.
const (
	SessionKey  = "session_id"
	TurnKey     = "turn_id"
	PhaseKey    = "phase"
	StatusKey   = "status"
	DurationKey = "duration"
)

// Event is one operational event. The fields line up with an OTel
// LogRecord: Type is the event name, Level the severity number, Source the
// instrumentation scope and Data the attributes.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Text returns the string value stored under key, or "".
func (e Event) Text(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// Observer receives events. Implementations must be safe for concurrent use
// and must not block the emitting turn.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

type discard struct{}

func (discard) OnEvent(context.Context, Event) {}

// Discard drops every event.
var Discard Observer = discard{}
