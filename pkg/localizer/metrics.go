package localizer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/distflow/localizer/pkg/localizer/model"
)

// Metrics holds the per-tracker prometheus metrics. All metrics carry
// the tracker's ownership scope as a constant label and are registered
// against the caller-provided Registerer, in the manner of promauto.
type Metrics struct {
	TrackedResources prometheus.Gauge
	LocalizedTotal   prometheus.Counter
	ReleasedTotal    prometheus.Counter
	FailedTotal      prometheus.Counter
	RemovedTotal     prometheus.Counter
	SelfHealedTotal  prometheus.Counter
}

// NewMetrics creates and registers the tracker metrics for one
// ownership scope. Panics if a metric cannot be registered.
func NewMetrics(registerer prometheus.Registerer, user string) *Metrics {
	constLabels := prometheus.Labels{"user": user}
	m := &Metrics{
		TrackedResources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "localizer",
			Subsystem:   "tracker",
			Name:        "resources",
			Help:        "Number of resources currently tracked.",
			ConstLabels: constLabels,
		}),
		LocalizedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "localizer",
			Subsystem:   "tracker",
			Name:        "localized_total",
			Help:        "Total number of localization completions observed.",
			ConstLabels: constLabels,
		}),
		ReleasedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "localizer",
			Subsystem:   "tracker",
			Name:        "released_total",
			Help:        "Total number of resource releases observed.",
			ConstLabels: constLabels,
		}),
		FailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "localizer",
			Subsystem:   "tracker",
			Name:        "failed_total",
			Help:        "Total number of localization failures observed.",
			ConstLabels: constLabels,
		}),
		RemovedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "localizer",
			Subsystem:   "tracker",
			Name:        "removed_total",
			Help:        "Total number of resources removed from the tracker.",
			ConstLabels: constLabels,
		}),
		SelfHealedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "localizer",
			Subsystem:   "tracker",
			Name:        "self_healed_total",
			Help:        "Total number of stale entries replaced after external file loss.",
			ConstLabels: constLabels,
		}),
	}
	registerer.MustRegister(
		m.TrackedResources,
		m.LocalizedTotal,
		m.ReleasedTotal,
		m.FailedTotal,
		m.RemovedTotal,
		m.SelfHealedTotal,
	)
	return m
}

func (m *Metrics) observeEvent(eventType model.EventType) {
	switch eventType {
	case model.EventLocalized:
		m.LocalizedTotal.Inc()
	case model.EventRelease:
		m.ReleasedTotal.Inc()
	case model.EventFailed:
		m.FailedTotal.Inc()
	}
}
