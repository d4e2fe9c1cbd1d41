// Package metrics exposes Prometheus instrumentation for the webhook
// ingestion pipeline.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

// Config carries the constant labels stamped on every series.
type Config struct {
	ServiceName string
	Environment string
}

// WebhookMetrics captures ingestion health: delivery volume, handler
// outcomes and rejected signatures.
type WebhookMetrics struct {
	eventsReceived    *prometheus.CounterVec
	eventsProcessed   *prometheus.CounterVec
	signatureRejected prometheus.Counter
	handlerDuration   *prometheus.HistogramVec
}

var (
	webhookMetricsOnce sync.Once
	webhookMetrics     *WebhookMetrics
)

// Webhook returns the singleton webhook metrics registry.
func Webhook() *WebhookMetrics {
	return WebhookWithConfig(Config{})
}

// WebhookWithConfig returns the singleton webhook metrics registry using
// config labels.
func WebhookWithConfig(cfg Config) *WebhookMetrics {
	webhookMetricsOnce.Do(func() {
		webhookMetrics = newWebhookMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return webhookMetrics
}

// ResetWebhookMetricsForTest resets the singleton for tests.
func ResetWebhookMetricsForTest() {
	webhookMetricsOnce = sync.Once{}
	webhookMetrics = nil
}

func newWebhookMetrics(registerer prometheus.Registerer, cfg Config) *WebhookMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "kolo"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	eventsReceived := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kolo_webhook_events_received_total",
		Help:        "Webhook deliveries accepted past signature verification, by event type.",
		ConstLabels: constLabels,
	}, []string{"event_type"})
	eventsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kolo_webhook_events_processed_total",
		Help:        "Webhook handler outcomes by event type.",
		ConstLabels: constLabels,
	}, []string{"event_type", "outcome"})
	signatureRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "kolo_webhook_signature_rejected_total",
		Help:        "Webhook deliveries rejected for a missing or invalid signature.",
		ConstLabels: constLabels,
	})
	handlerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "kolo_webhook_handler_duration_seconds",
		Help:        "Webhook handler latency by event type.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"event_type"})

	registerer.MustRegister(
		eventsReceived,
		eventsProcessed,
		signatureRejected,
		handlerDuration,
	)

	return &WebhookMetrics{
		eventsReceived:    eventsReceived,
		eventsProcessed:   eventsProcessed,
		signatureRejected: signatureRejected,
		handlerDuration:   handlerDuration,
	}
}

// IncReceived increments the delivery counter for an event type.
func (m *WebhookMetrics) IncReceived(eventType string) {
	if m == nil || m.eventsReceived == nil {
		return
	}
	m.eventsReceived.WithLabelValues(eventType).Inc()
}

// IncProcessed increments the outcome counter for an event type.
func (m *WebhookMetrics) IncProcessed(eventType, outcome string) {
	if m == nil || m.eventsProcessed == nil {
		return
	}
	m.eventsProcessed.WithLabelValues(eventType, outcome).Inc()
}

// IncSignatureRejected counts a delivery that failed verification.
func (m *WebhookMetrics) IncSignatureRejected() {
	if m == nil || m.signatureRejected == nil {
		return
	}
	m.signatureRejected.Inc()
}

// ObserveHandlerDuration records handler latency in seconds.
func (m *WebhookMetrics) ObserveHandlerDuration(eventType string, duration time.Duration) {
	if m == nil || m.handlerDuration == nil {
		return
	}
	m.handlerDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}
