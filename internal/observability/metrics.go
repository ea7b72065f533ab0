package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the alerting pipeline.
type Metrics struct {
	AlertsClassified     *prometheus.CounterVec // labels: alert_type, level
	ClassificationErrors *prometheus.CounterVec // labels: alert_type
	BulletinsComposed    *prometheus.CounterVec // labels: family
	MediaFailures        *prometheus.CounterVec // labels: kind
	ChannelSends         *prometheus.CounterVec // labels: channel, status
	ChannelSendDuration  *prometheus.HistogramVec
	Runs                 *prometheus.CounterVec // labels: status
	QueueDepth           prometheus.Gauge
}

const namespace = "alert_bulletin"

func newMetrics() *Metrics {
	return &Metrics{
		AlertsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_classified_total",
			Help:      "Forecast values classified, by alert type and level.",
		}, []string{"alert_type", "level"}),
		ClassificationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classification_errors_total",
			Help:      "Forecast values that could not be classified.",
		}, []string{"alert_type"}),
		BulletinsComposed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulletins_composed_total",
			Help:      "Bulletins created or updated, by alert family.",
		}, []string{"family"}),
		MediaFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_failures_total",
			Help:      "Chart renders or uploads skipped because of an error.",
		}, []string{"kind"}),
		ChannelSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_sends_total",
			Help:      "Channel attempts by channel and outcome.",
		}, []string{"channel", "status"}),
		ChannelSendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_send_duration_seconds",
			Help:      "Duration of one channel attempt including vendor calls.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"channel"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Completed pipeline runs by final status.",
		}, []string{"status"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_queue_depth",
			Help:      "Run requests waiting for a worker.",
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.AlertsClassified,
		m.ClassificationErrors,
		m.BulletinsComposed,
		m.MediaFailures,
		m.ChannelSends,
		m.ChannelSendDuration,
		m.Runs,
		m.QueueDepth,
	)
	return m
}

// NewMetricsForTesting creates unregistered metrics so tests can build as many
// as they need without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
