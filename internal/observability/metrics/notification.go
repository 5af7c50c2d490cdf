package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics covers push delivery, SSE fan-out and the event bus.
type NotificationMetrics struct {
	pushDeliveries   *prometheus.CounterVec
	pushDuration     prometheus.Histogram
	sseClients       prometheus.Gauge
	sseMessages      *prometheus.CounterVec
	sseDropped       prometheus.Counter
	eventsPublished  *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	consumerFailures *prometheus.CounterVec
	circuitState     *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// NewNotificationMetrics creates and registers notification metrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

func (m *NotificationMetrics) initMetrics() {
	m.pushDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_push_deliveries_total",
		Help: "Push notification deliveries by status",
	}, []string{"status"})

	m.pushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "notification_push_duration_seconds",
		Help:    "Time taken to deliver a push notification to all URLs",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
	})

	m.sseClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sse_active_connections",
		Help: "Currently connected SSE clients",
	})

	m.sseMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sse_messages_sent_total",
		Help: "SSE messages queued to clients by event type",
	}, []string{"event"})

	m.sseDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sse_messages_dropped_total",
		Help: "SSE messages dropped because a client buffer was full",
	})

	m.eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventbus_events_published_total",
		Help: "Events accepted by the event bus",
	}, []string{"event"})

	m.eventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventbus_events_dropped_total",
		Help: "Events dropped because the bus buffer was full",
	}, []string{"event"})

	m.consumerFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventbus_consumer_errors_total",
		Help: "Consumer errors by consumer name",
	}, []string{"consumer"})

	m.circuitState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "notification_circuit_breaker_state",
		Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
	}, []string{"provider"})

	m.collectors = []prometheus.Collector{
		m.pushDeliveries, m.pushDuration, m.circuitState,
		m.sseClients, m.sseMessages, m.sseDropped,
		m.eventsPublished, m.eventsDropped, m.consumerFailures,
	}
}

// Describe implements the Collector interface
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordPush records one push delivery round.
func (m *NotificationMetrics) RecordPush(status string, seconds float64) {
	if m == nil {
		return
	}
	m.pushDeliveries.WithLabelValues(status).Inc()
	m.pushDuration.Observe(seconds)
}

// SSEClientConnected adjusts the connected client gauge.
func (m *NotificationMetrics) SSEClientConnected(delta int) {
	if m == nil {
		return
	}
	m.sseClients.Add(float64(delta))
}

// RecordSSEMessage counts a message queued to a client.
func (m *NotificationMetrics) RecordSSEMessage(event string) {
	if m == nil {
		return
	}
	m.sseMessages.WithLabelValues(event).Inc()
}

// RecordSSEDropped counts a message dropped for a slow client.
func (m *NotificationMetrics) RecordSSEDropped() {
	if m == nil {
		return
	}
	m.sseDropped.Inc()
}

// RecordEventPublished counts an event accepted or dropped by the bus.
func (m *NotificationMetrics) RecordEventPublished(event string, accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.eventsPublished.WithLabelValues(event).Inc()
		return
	}
	m.eventsDropped.WithLabelValues(event).Inc()
}

// RecordConsumerError counts a consumer failure.
func (m *NotificationMetrics) RecordConsumerError(consumer string) {
	if m == nil {
		return
	}
	m.consumerFailures.WithLabelValues(consumer).Inc()
}

// SetCircuitState records the circuit breaker state for a provider.
func (m *NotificationMetrics) SetCircuitState(provider string, state int) {
	if m == nil {
		return
	}
	m.circuitState.WithLabelValues(provider).Set(float64(state))
}
