package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ChatOutcomes         *prometheus.CounterVec
	UpstreamErrors       *prometheus.CounterVec
	ActiveStreams        prometheus.Gauge
	ActiveIdentities     prometheus.Gauge
	FirstFragmentLatency prometheus.Histogram
	StreamDuration       prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ChatOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_outcomes_total",
			Help:      "Chat requests by outcome.",
		}, []string{"outcome"}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Upstream stream failures by kind.",
		}, []string{"kind"}),
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of completion streams currently open.",
		}),
		ActiveIdentities: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_identities",
			Help:      "Number of identities with conversation history in memory.",
		}),
		FirstFragmentLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_fragment_latency_ms",
			Help:      "Latency to the first streamed fragment in milliseconds.",
			Buckets:   []float64{50, 100, 200, 400, 700, 1000, 2000, 5000},
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of completion streams in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		}),
	}
}

func (m *Metrics) ObserveFirstFragmentLatency(d time.Duration) {
	m.FirstFragmentLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveStreamDuration(d time.Duration) {
	m.StreamDuration.Observe(d.Seconds())
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
