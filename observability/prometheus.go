package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusObserver turns events into Prometheus metrics:
//   - events_total counts every event by type and level;
//   - event_duration_seconds observes DurationKey values by event type;
//   - turns_total counts events carrying both PhaseKey and StatusKey, which
//     the orchestrator attaches to completed turns, by phase and status.
type PrometheusObserver struct {
	events    *prometheus.CounterVec
	durations *prometheus.HistogramVec
	turns     *prometheus.CounterVec
}

// NewPrometheusObserver registers the observer's collectors with reg.
func NewPrometheusObserver(reg prometheus.Registerer, namespace string) *PrometheusObserver {
	factory := promauto.With(reg)

	return &PrometheusObserver{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Observability events emitted, by event type and level.",
		}, []string{"type", "level"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Durations reported by events, by event type.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"type"}),
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Finished turns, by lifecycle phase and turn status.",
		}, []string{"phase", "status"}),
	}
}

func (o *PrometheusObserver) OnEvent(_ context.Context, event Event) {
	o.events.WithLabelValues(string(event.Type), event.Level.String()).Inc()

	if d, ok := event.Data[DurationKey].(time.Duration); ok {
		o.durations.WithLabelValues(string(event.Type)).Observe(d.Seconds())
	}

	phase, status := event.Text(PhaseKey), event.Text(StatusKey)
	if phase != "" && status != "" {
		o.turns.WithLabelValues(phase, status).Inc()
	}
}
