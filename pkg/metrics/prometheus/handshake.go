// Package prometheus implements the handshake metrics interface on top of
// the Prometheus client library.
package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/ntlmgate/pkg/handshake"
)

// handshakeMetrics is the Prometheus implementation of handshake.Metrics.
type handshakeMetrics struct {
	started      prometheus.Counter
	challenges   prometheus.Counter
	completed    prometheus.Counter
	rejected     *prometheus.CounterVec
	cacheEntries prometheus.Gauge
}

// NewHandshakeMetrics creates a Prometheus-backed handshake.Metrics
// registered with reg. Pass prometheus.DefaultRegisterer to use the default
// registry.
func NewHandshakeMetrics(reg prometheus.Registerer) handshake.Metrics {
	return &handshakeMetrics{
		started: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "ntlmgate_handshakes_started_total",
				Help: "Total number of NTLM handshake sessions created",
			},
		),
		challenges: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "ntlmgate_challenges_issued_total",
				Help: "Total number of Type 2 challenge messages issued",
			},
		),
		completed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "ntlmgate_handshakes_completed_total",
				Help: "Total number of handshakes that produced a verified identity",
			},
		),
		rejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ntlmgate_handshakes_rejected_total",
				Help: "Total number of rejected NTLM messages by reason",
			},
			[]string{"reason"}, // "challenge", "validation", "no_context"
		),
		cacheEntries: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "ntlmgate_handshake_cache_entries",
				Help: "Current number of in-flight handshake sessions",
			},
		),
	}
}

func (m *handshakeMetrics) HandshakeStarted() {
	m.started.Inc()
}

func (m *handshakeMetrics) ChallengeIssued() {
	m.challenges.Inc()
}

func (m *handshakeMetrics) HandshakeCompleted() {
	m.completed.Inc()
}

func (m *handshakeMetrics) HandshakeRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *handshakeMetrics) CacheEntries(n int) {
	m.cacheEntries.Set(float64(n))
}

// Handler returns the HTTP handler serving the metrics of reg in the
// Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
