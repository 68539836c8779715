package gateway

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	EnvelopesTotal     *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	ConnectionsTotal   *prometheus.CounterVec
	DisconnectsTotal   *prometheus.CounterVec
	SeqAnomalies       *prometheus.CounterVec
	InboundDropped     prometheus.Counter

	ConnectionsActive prometheus.Gauge

	ValidationDuration prometheus.Histogram
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// InitMetrics registers the collectors with the default registry once.
func InitMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			EnvelopesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skirmish_envelopes_total",
					Help: "Inbound envelopes by message type and result",
				},
				[]string{"type", "result"},
			),
			ValidationFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skirmish_validation_failures_total",
					Help: "Rejected inbound envelopes by error kind",
				},
				[]string{"kind"},
			),
			ConnectionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skirmish_connections_total",
					Help: "Connection attempts (accepted/rejected)",
				},
				[]string{"status"},
			),
			DisconnectsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skirmish_disconnects_total",
					Help: "Closed peer connections by reason",
				},
				[]string{"reason"},
			),
			SeqAnomalies: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skirmish_seq_anomalies_total",
					Help: "Out-of-order sequence numbers by kind",
				},
				[]string{"kind"},
			),
			InboundDropped: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "skirmish_inbound_dropped_total",
					Help: "Validated envelopes dropped because the inbound queue was full",
				},
			),
			ConnectionsActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "skirmish_connections_active",
					Help: "Current open peer connections",
				},
			),
			ValidationDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "skirmish_validation_duration_seconds",
					Help:    "Time spent validating one inbound frame",
					Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
				},
			),
		}
	})
	return globalMetrics
}

func (m *Metrics) RecordEnvelope(messageType, result string) {
	if m == nil {
		return
	}
	m.EnvelopesTotal.WithLabelValues(messageType, result).Inc()
}

func (m *Metrics) RecordValidationFailure(kind string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordValidationDuration(seconds float64) {
	if m == nil {
		return
	}
	m.ValidationDuration.Observe(seconds)
}

func (m *Metrics) RecordConnection(status string) {
	if m == nil {
		return
	}
	m.ConnectionsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordDisconnect(reason string) {
	if m == nil {
		return
	}
	m.DisconnectsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordSeqAnomaly(kind string) {
	if m == nil {
		return
	}
	m.SeqAnomalies.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordInboundDropped() {
	if m == nil {
		return
	}
	m.InboundDropped.Inc()
}

func (m *Metrics) SetActiveConnections(count int) {
	if m == nil {
		return
	}
	m.ConnectionsActive.Set(float64(count))
}
