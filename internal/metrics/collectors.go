package metrics

import (
	"sync"

	"eyetrack-go/internal/phase"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalCollectors *Collectors
	collectorsOnce   sync.Once
)

// Collectors holds the Prometheus metrics of the experiment server.
type Collectors struct {
	// Experiment steps
	StepsTotal          *prometheus.CounterVec
	FaceLostTotal       *prometheus.CounterVec
	ValidationPrecision prometheus.Histogram

	// Sessions
	SessionsActive prometheus.Gauge
	SessionsTotal  *prometheus.CounterVec

	// Browser bridge
	CommandsTotal *prometheus.CounterVec
	EventsTotal   *prometheus.CounterVec
}

// NewCollectors creates and registers the metrics once per process.
//
// Metrics:
//   - eyetrack_steps_total{step,status}
//   - eyetrack_face_lost_total{step}
//   - eyetrack_validation_precision
//   - eyetrack_sessions_active
//   - eyetrack_sessions_total{status}
//   - eyetrack_bridge_commands_total{op}
//   - eyetrack_bridge_events_total{type}
func NewCollectors() *Collectors {
	collectorsOnce.Do(func() {
		globalCollectors = &Collectors{
			StepsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "eyetrack",
					Name:      "steps_total",
					Help:      "Experiment steps run, by step and outcome",
				},
				[]string{"step", "status"},
			),
			FaceLostTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "eyetrack",
					Name:      "face_lost_total",
					Help:      "Face-lost interrupts, by the step they cut short",
				},
				[]string{"step"},
			),
			ValidationPrecision: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "eyetrack",
					Name:      "validation_precision",
					Help:      "Precision scores of validation attempts",
					Buckets:   prometheus.LinearBuckets(10, 10, 10),
				},
			),
			SessionsActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "eyetrack",
					Name:      "sessions_active",
					Help:      "Participant sessions currently running",
				},
			),
			SessionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "eyetrack",
					Name:      "sessions_total",
					Help:      "Finished participant sessions, by final status",
				},
				[]string{"status"},
			),
			CommandsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "eyetrack",
					Subsystem: "bridge",
					Name:      "commands_total",
					Help:      "Commands queued for participant browsers",
				},
				[]string{"op"},
			),
			EventsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "eyetrack",
					Subsystem: "bridge",
					Name:      "events_total",
					Help:      "Events received from participant browsers",
				},
				[]string{"type"},
			),
		}
	})
	return globalCollectors
}

// RecordStep counts one step outcome.
func (c *Collectors) RecordStep(step string, status phase.Status) {
	if c == nil {
		return
	}
	c.StepsTotal.WithLabelValues(step, status.String()).Inc()
	if status == phase.Interrupted {
		c.FaceLostTotal.WithLabelValues(step).Inc()
	}
}

func (c *Collectors) ObservePrecision(precision float64) {
	if c == nil {
		return
	}
	c.ValidationPrecision.Observe(precision)
}

func (c *Collectors) CountCommand(op string) {
	if c == nil {
		return
	}
	c.CommandsTotal.WithLabelValues(op).Inc()
}

func (c *Collectors) CountEvent(kind string) {
	if c == nil {
		return
	}
	c.EventsTotal.WithLabelValues(kind).Inc()
}

// SessionStarted and SessionFinished keep the active gauge in step with the
// finished counter.
func (c *Collectors) SessionStarted() {
	if c == nil {
		return
	}
	c.SessionsActive.Inc()
}

func (c *Collectors) SessionFinished(status string) {
	if c == nil {
		return
	}
	c.SessionsActive.Dec()
	c.SessionsTotal.WithLabelValues(status).Inc()
}
