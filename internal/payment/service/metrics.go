package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names
const (
	MetricTransitionsTotal     = "servicefee_payment_transitions_total"
	MetricPaymentsCreatedTotal = "servicefee_payments_created_total"
	MetricVerificationsTotal   = "servicefee_verifications_total"
	MetricVerificationDuration = "servicefee_verification_duration_seconds"
	MetricWebhooksTotal        = "servicefee_webhooks_total"
	MetricSweepsTotal          = "servicefee_sweeps_total"
	MetricSweptPaymentsTotal   = "servicefee_swept_payments_total"
)

const (
	resultApplied          = "applied"
	resultAlreadyFinalized = "already_finalized"
	resultError            = "error"

	verificationThrottled   = "throttled"
	verificationUnavailable = "unavailable"
)

// Metrics holds the payment lifecycle collectors
type Metrics struct {
	transitions    *prometheus.CounterVec
	created        *prometheus.CounterVec
	verifications  *prometheus.CounterVec
	verifyDuration prometheus.Histogram
	webhooks       *prometheus.CounterVec
	sweeps         *prometheus.CounterVec
	swept          prometheus.Counter
}

// NewMetrics creates unregistered collectors
func NewMetrics() *Metrics {
	return &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTransitionsTotal,
				Help: "Payment status transition attempts by target status, source and result",
			},
			[]string{"to", "source", "result"},
		),
		created: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPaymentsCreatedTotal,
				Help: "Payments created by payment method",
			},
			[]string{"method"},
		),
		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricVerificationsTotal,
				Help: "Verification backend calls by outcome",
			},
			[]string{"outcome"},
		),
		verifyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricVerificationDuration,
				Help:    "Latency of verification backend calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),
		webhooks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricWebhooksTotal,
				Help: "Webhook notifications by handling result",
			},
			[]string{"result"},
		),
		sweeps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSweepsTotal,
				Help: "Expiry sweep runs by status",
			},
			[]string{"status"},
		),
		swept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricSweptPaymentsTotal,
				Help: "Payments expired by the sweeper",
			},
		),
	}
}

// Register registers all collectors with reg
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.transitions,
		m.created,
		m.verifications,
		m.verifyDuration,
		m.webhooks,
		m.sweeps,
		m.swept,
	}
}

// ObserveWebhook counts a webhook outcome such as "applied", "ignored" or "invalid_signature"
func (m *Metrics) ObserveWebhook(result string) {
	m.webhooks.WithLabelValues(result).Inc()
}

// ObserveSweep counts one sweeper run and the payments it expired
func (m *Metrics) ObserveSweep(expired int, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.sweeps.WithLabelValues(status).Inc()
	m.swept.Add(float64(expired))
}
