package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records invocation counters. A nil *Metrics records nothing.
type Metrics struct {
	attempts *prometheus.CounterVec
	waits    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civicreport",
			Subsystem: "ai",
			Name:      "attempts_total",
			Help:      "AI service call attempts by retry policy and outcome.",
		}, []string{"policy", "outcome"}),
		waits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civicreport",
			Subsystem: "ai",
			Name:      "backoff_waits_total",
			Help:      "Back-off waits taken after rate-limited attempts.",
		}, []string{"policy"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "civicreport",
			Subsystem: "ai",
			Name:      "invocation_duration_seconds",
			Help:      "Wall time of a whole invocation including back-off waits.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"policy", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.attempts, m.waits, m.duration)
	}
	return m
}

func (m *Metrics) observeAttempt(policy string, err error) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(policy, outcomeLabel(err)).Inc()
}

func (m *Metrics) observeWait(policy string) {
	if m == nil {
		return
	}
	m.waits.WithLabelValues(policy).Inc()
}

func (m *Metrics) observeInvocation(policy string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(policy, outcomeLabel(err)).Observe(elapsed.Seconds())
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	if k := KindOf(err); k != 0 {
		return k.String()
	}
	return "error"
}
