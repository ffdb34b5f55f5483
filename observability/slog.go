package observability

import (
	"context"
	"log/slog"
	"slices"
	"time"
)

// correlation keys lead every log line in this order.
var correlation = []string{SessionKey, TurnKey, PhaseKey}

// SlogObserver writes events to a slog.Logger. The event type is the log
// message; Source and Data become attributes.
type SlogObserver struct {
	logger *slog.Logger
	min    Level
}

// SlogOption configures a SlogObserver.
type SlogOption func(*SlogObserver)

// WithMinLevel drops events below min before they reach the handler.
func WithMinLevel(min Level) SlogOption {
	return func(o *SlogObserver) { o.min = min }
}

// NewSlogObserver creates a SlogObserver writing to logger. A nil logger
// means slog.Default at the time of each event.
func NewSlogObserver(logger *slog.Logger, opts ...SlogOption) *SlogObserver {
	o := &SlogObserver{logger: logger}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	if event.Level < o.min {
		return
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	level := event.Level.SlogLevel()
	if !logger.Enabled(ctx, level) {
		return
	}

	logger.LogAttrs(ctx, level, string(event.Type), attrs(event)...)
}

// attrs orders correlation keys first, then the remaining Data keys sorted,
// so lines for the same turn line up. Durations are logged in milliseconds.
func attrs(event Event) []slog.Attr {
	out := make([]slog.Attr, 0, len(event.Data)+1)
	for _, key := range correlation {
		if v, ok := event.Data[key]; ok {
			out = append(out, slog.Any(key, v))
		}
	}
	if event.Source != "" {
		out = append(out, slog.String("source", event.Source))
	}

	keys := make([]string, 0, len(event.Data))
	for k := range event.Data {
		if !slices.Contains(correlation, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	for _, k := range keys {
		switch v := event.Data[k].(type) {
		case time.Duration:
			out = append(out, slog.Int64(k+"_ms", v.Milliseconds()))
		case error:
			out = append(out, slog.String(k, v.Error()))
		default:
			out = append(out, slog.Any(k, v))
		}
	}
	return out
}
