// Package metrics exposes scheduler counters to prometheus. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "warmup"

type Metrics struct {
	Ticks        prometheus.Counter
	SkippedTicks prometheus.Counter
	TickDuration prometheus.Histogram
	Dispatched   *prometheus.CounterVec
	Planned      *prometheus.CounterVec
	Deferred     prometheus.Counter
	HealthScore  *prometheus.GaugeVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Scheduler ticks that ran.",
		}),
		SkippedTicks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_skipped_total",
			Help:      "Ticks skipped because the previous tick was still running.",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Duration of a full dispatch and plan tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		Dispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_dispatched_total",
			Help:      "Executions handed to the gateway, by outcome.",
		}, []string{"status"}),
		Planned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_planned_total",
			Help:      "Executions scheduled, by type.",
		}, []string{"type"}),
		Deferred: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_deferred_total",
			Help:      "Due executions pushed past an auto pause.",
		}),
		HealthScore: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_health_score",
			Help:      "Last computed health score per campaign session.",
		}, []string{"campaign_id", "session_id"}),
	}
}

func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.TickDuration.Observe(d.Seconds())
}

func (m *Metrics) TickSkipped() {
	if m == nil {
		return
	}
	m.SkippedTicks.Inc()
}

func (m *Metrics) ExecutionDispatched(status string) {
	if m == nil {
		return
	}
	m.Dispatched.WithLabelValues(status).Inc()
}

func (m *Metrics) ExecutionPlanned(executionType string) {
	if m == nil {
		return
	}
	m.Planned.WithLabelValues(executionType).Inc()
}

func (m *Metrics) ExecutionDeferred() {
	if m == nil {
		return
	}
	m.Deferred.Inc()
}

func (m *Metrics) SetHealth(campaignID, sessionID string, score float64) {
	if m == nil {
		return
	}
	m.HealthScore.WithLabelValues(campaignID, sessionID).Set(score)
}
