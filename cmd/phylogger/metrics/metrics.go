// Package metrics provides Prometheus instrumentation for phylogger.
//
// Metrics exposed:
//   - phyxlog_polls_total: Counter of polls by mode and outcome (data, empty, error)
//   - phyxlog_poll_duration_seconds: Histogram of poll round trips by mode
//   - phyxlog_samples: Gauge of samples received since the last full fetch
//   - phyxlog_overflows_total: Counter of unread snapshots overwritten
//   - phyxlog_errors_total: Counter of errors by component and reason
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HatiCode/phyxlog/pkg/errors"
)

// Poll outcomes.
const (
	OutcomeData  = "data"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

type Metrics struct {
	PollsTotal     *prometheus.CounterVec
	PollDuration   *prometheus.HistogramVec
	Samples        prometheus.Gauge
	OverflowsTotal prometheus.Counter
	ErrorsTotal    *prometheus.CounterVec
}

// New registers the metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PollsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "phyxlog_polls_total",
			Help: "Total number of polls by mode and outcome",
		}, []string{"mode", "outcome"}),

		PollDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "phyxlog_poll_duration_seconds",
			Help:    "Duration of a poll round trip by mode",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),

		Samples: factory.NewGauge(prometheus.GaugeOpts{
			Name: "phyxlog_samples",
			Help: "Samples received for the first selected buffer since the last full fetch",
		}),

		OverflowsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "phyxlog_overflows_total",
			Help: "Total number of unread snapshots overwritten",
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "phyxlog_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

func (m *Metrics) RecordPoll(mode, outcome string) {
	m.PollsTotal.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) ObservePollDuration(mode string, seconds float64) {
	m.PollDuration.WithLabelValues(mode).Observe(seconds)
}

func (m *Metrics) SetSamples(n int) {
	m.Samples.Set(float64(n))
}

func (m *Metrics) RecordOverflow() {
	m.OverflowsTotal.Inc()
}

// RecordError counts err under component, labelled by its taxonomy reason.
func (m *Metrics) RecordError(component string, err error) {
	m.ErrorsTotal.WithLabelValues(component, errors.Reason(err)).Inc()
}
