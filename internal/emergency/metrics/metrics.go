package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for emergency access operations.
type Metrics struct {
	CredentialsIssued   *prometheus.CounterVec
	CredentialsRevoked  prometheus.Counter
	ActiveCredentials   prometheus.Gauge
	ValidationsTotal    *prometheus.CounterVec
	PINRetries          prometheus.Counter
	IssueLatency        prometheus.Histogram
	ValidationLatency   prometheus.Histogram
}

// New registers and returns emergency access metrics collectors.
func New() *Metrics {
	return &Metrics{
		CredentialsIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthpass_credentials_issued_total",
			Help: "Total number of emergency credentials issued, labeled by duration",
		}, []string{"duration"}),
		CredentialsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "healthpass_credentials_revoked_total",
			Help: "Total number of emergency credentials revoked by owners",
		}),
		ActiveCredentials: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "healthpass_active_credentials",
			Help: "Current number of active emergency credentials system-wide",
		}),
		ValidationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthpass_validations_total",
			Help: "Total number of validation attempts, labeled by method and outcome",
		}, []string{"method", "outcome"}),
		PINRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "healthpass_pin_generation_retries_total",
			Help: "Total number of PIN regenerations caused by active-PIN collisions",
		}),
		IssueLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthpass_issue_latency_seconds",
			Help:    "Latency of credential issuance in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ValidationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthpass_validation_latency_seconds",
			Help:    "Latency of validation attempts in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementCredentialsIssued(duration string) {
	m.CredentialsIssued.WithLabelValues(duration).Inc()
}

func (m *Metrics) IncrementCredentialsRevoked() {
	m.CredentialsRevoked.Inc()
}

func (m *Metrics) IncrementActiveCredentials(count float64) {
	m.ActiveCredentials.Add(count)
}

func (m *Metrics) DecrementActiveCredentials(count float64) {
	m.ActiveCredentials.Sub(count)
}

func (m *Metrics) IncrementValidations(method, outcome string) {
	m.ValidationsTotal.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) IncrementPINRetries() {
	m.PINRetries.Inc()
}

func (m *Metrics) ObserveIssueLatency(durationSeconds float64) {
	m.IssueLatency.Observe(durationSeconds)
}

func (m *Metrics) ObserveValidationLatency(durationSeconds float64) {
	m.ValidationLatency.Observe(durationSeconds)
}
