// Package metrics provides Prometheus metrics collection for the application.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome/status label values for metrics.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Conversation metrics
	MessagesProcessedTotal *prometheus.CounterVec
	MessageProcessDuration prometheus.Histogram
	StageTransitionsTotal  *prometheus.CounterVec
	LeadsByTemperature     *prometheus.GaugeVec
	LeadsCreatedTotal      *prometheus.CounterVec

	// Webhook metrics
	WebhooksReceivedTotal *prometheus.CounterVec

	// External service metrics
	AICallsTotal           *prometheus.CounterVec
	AICallDuration         prometheus.Histogram
	WhatsAppSendsTotal     *prometheus.CounterVec
	CalendarCallsTotal     *prometheus.CounterVec
	AppointmentsBooked     prometheus.Counter
	CircuitBreakerState    *prometheus.GaugeVec
	CircuitBreakerTrips    prometheus.Counter

	// Follow-up metrics
	FollowUpsSentTotal *prometheus.CounterVec
	FollowUpsDue       prometheus.Gauge

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBQueryDuration    *prometheus.HistogramVec
	DBQueryErrors      *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHitsTotal *prometheus.CounterVec

	// Registry used for this metrics instance (nil means default registry)
	registry prometheus.Gatherer
}

// NewMetrics creates a new Metrics instance with all collectors registered.
func NewMetrics() *Metrics {
	m := newMetricsWithRegistry(prometheus.DefaultRegisterer)
	m.registry = prometheus.DefaultGatherer
	return m
}

// NewMetricsWithRegistry creates metrics using a custom registry (for testing).
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	m := newMetricsWithRegistry(reg)
	m.registry = reg
	return m
}

func newMetricsWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadflow_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status code",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadflow_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadflow_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		// Conversation metrics
		MessagesProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadflow_messages_processed_total",
				Help: "Total number of inbound messages processed by outcome",
			},
			[]string{"outcome"}, // "success", "failure"
		),
		MessageProcessDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadflow_message_process_duration_seconds",
				Help:    "Time taken to process an inbound message end to end",
				Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 15, 30},
			},
		),
		StageTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadflow_stage_transitions_total",
				Help: "Total number of funnel stage transitions by source and target stage",
			},
			[]string{"from", "to"},
		),
		LeadsByTemperature: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "leadflow_leads_by_temperature",
				Help: "Current number of leads by temperature",
			},
			[]string{"temperature"}, // "caliente", "tibio", "frio"
		),
		LeadsCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadflow_leads_created_total",
				Help: "Total number of leads created by channel",
			},
			[]string{"channel"},
		),

		// Webhook metrics
		WebhooksReceivedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadflow_webhooks_received_total",
				Help: "Total number of webhooks received by status",
			},
			[]string{"status"}, // "valid", "invalid_signature", "parse_error"
		),

		// External service metrics
		AICallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadflow_ai_calls_total",
				Help: "Total number of reply generation calls by status",
			},
			[]string{"status"}, // "success", "failure", "circuit_open"
		),
		AICallDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadflow_ai_call_duration_seconds",
				Help:    "Duration of reply generation calls",
				Buckets: []float64{.5, 1, 2, 5, 10, 15, 30},
			},
		),
		WhatsAppSendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadflow_whatsapp_sends_total",
				Help: "Total number of outbound WhatsApp messages by outcome",
			},
			[]string{"outcome"},
		),
		CalendarCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadflow_calendar_calls_total",
				Help: "Total number of calendar API calls by operation and outcome",
			},
			[]string{"operation", "outcome"}, // operation: "slots", "book"
		),
		AppointmentsBooked: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "leadflow_appointments_booked_total",
				Help: "Total number of showroom appointments booked",
			},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "leadflow_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
		CircuitBreakerTrips: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "leadflow_circuit_breaker_trips_total",
				Help: "Total number of times a circuit breaker has tripped",
			},
		),

		// Follow-up metrics
		FollowUpsSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadflow_followups_sent_total",
				Help: "Total number of follow-up messages sent by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		FollowUpsDue: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadflow_followups_due",
				Help: "Number of follow-ups currently due for sending",
			},
		),

		// Database metrics
		DBConnectionsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadflow_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadflow_db_connections_in_use",
				Help: "Number of database connections currently in use",
			},
		),
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadflow_db_query_duration_seconds",
				Help:    "Duration of database queries",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"}, // "select", "insert", "update", "delete"
		),
		DBQueryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadflow_db_query_errors_total",
				Help: "Total number of database query errors",
			},
			[]string{"operation"},
		),

		// Rate limiting metrics
		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadflow_rate_limit_hits_total",
				Help: "Total number of rate limit hits by limiter",
			},
			[]string{"limiter"}, // "webhook", "api"
		),
	}
}

// Handler returns the Prometheus HTTP handler for scraping metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware returns an HTTP middleware that records request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()

		// Normalize path for metrics (avoid high cardinality)
		path := normalizePath(r.URL.Path)

		m.HTTPRequestsTotal.WithLabelValues(
			r.Method,
			path,
			strconv.Itoa(wrapped.statusCode),
		).Inc()

		m.HTTPRequestDuration.WithLabelValues(
			r.Method,
			path,
		).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// normalizePath normalizes URL paths to prevent high cardinality labels.
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/ready", "/live", "/metrics", "/webhook/whatsapp":
		return path
	}

	// Normalize dynamic paths
	if strings.HasPrefix(path, "/api/leads/") {
		return "/api/leads/:id"
	}
	if strings.HasPrefix(path, "/api/") {
		return path
	}

	return "/other"
}

// Helper methods for recording specific events

// RecordMessageProcessed records an inbound message processing attempt.
func (m *Metrics) RecordMessageProcessed(success bool, duration time.Duration) {
	outcome := outcomeFailure
	if success {
		outcome = outcomeSuccess
	}
	m.MessagesProcessedTotal.WithLabelValues(outcome).Inc()
	m.MessageProcessDuration.Observe(duration.Seconds())
}

// RecordStageTransition records a funnel stage transition.
func (m *Metrics) RecordStageTransition(from, to string) {
	m.StageTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordLeadCreated records a new lead by acquisition channel.
func (m *Metrics) RecordLeadCreated(channel string) {
	m.LeadsCreatedTotal.WithLabelValues(channel).Inc()
}

// SetLeadsByTemperature sets the current lead count for a temperature.
func (m *Metrics) SetLeadsByTemperature(temperature string, count int) {
	m.LeadsByTemperature.WithLabelValues(temperature).Set(float64(count))
}

// RecordWebhook records a webhook receipt.
func (m *Metrics) RecordWebhook(status string) {
	m.WebhooksReceivedTotal.WithLabelValues(status).Inc()
}

// RecordAICall records a reply generation call.
func (m *Metrics) RecordAICall(success bool, duration time.Duration) {
	status := outcomeFailure
	if success {
		status = outcomeSuccess
	}
	m.AICallsTotal.WithLabelValues(status).Inc()
	m.AICallDuration.Observe(duration.Seconds())
}

// RecordCircuitOpen records a circuit breaker opening.
func (m *Metrics) RecordCircuitOpen() {
	m.AICallsTotal.WithLabelValues("circuit_open").Inc()
	m.CircuitBreakerTrips.Inc()
}

// RecordWhatsAppSend records an outbound message attempt.
func (m *Metrics) RecordWhatsAppSend(success bool) {
	outcome := outcomeFailure
	if success {
		outcome = outcomeSuccess
	}
	m.WhatsAppSendsTotal.WithLabelValues(outcome).Inc()
}

// RecordCalendarCall records a calendar API call.
func (m *Metrics) RecordCalendarCall(operation string, success bool) {
	outcome := outcomeFailure
	if success {
		outcome = outcomeSuccess
	}
	m.CalendarCallsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordAppointmentBooked records a booked showroom visit.
func (m *Metrics) RecordAppointmentBooked() {
	m.AppointmentsBooked.Inc()
}

// RecordFollowUpSent records a follow-up send attempt.
func (m *Metrics) RecordFollowUpSent(followUpType string, success bool) {
	outcome := outcomeFailure
	if success {
		outcome = outcomeSuccess
	}
	m.FollowUpsSentTotal.WithLabelValues(followUpType, outcome).Inc()
}

// SetFollowUpsDue sets the number of follow-ups currently due.
func (m *Metrics) SetFollowUpsDue(count int) {
	m.FollowUpsDue.Set(float64(count))
}

// SetCircuitBreakerState sets the circuit breaker state for a service.
// State: 0=closed, 1=half-open, 2=open
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// UpdateDBConnections updates database connection metrics.
func (m *Metrics) UpdateDBConnections(open, inUse int) {
	m.DBConnectionsOpen.Set(float64(open))
	m.DBConnectionsInUse.Set(float64(inUse))
}

// RecordDBQuery records a database query.
func (m *Metrics) RecordDBQuery(operation string, duration time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(limiter string) {
	m.RateLimitHitsTotal.WithLabelValues(limiter).Inc()
}
