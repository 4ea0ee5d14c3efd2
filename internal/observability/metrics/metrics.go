package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics exposes counters/histograms for campaign and appointment flows.
type WorkflowMetrics struct {
	transitions       *prometheus.CounterVec
	appointments      *prometheus.CounterVec
	bookingRejections *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	eventsPublished   *prometheus.CounterVec
	operationLatency  *prometheus.HistogramVec
	httpLatency       *prometheus.HistogramVec
}

func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	m := &WorkflowMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engagement",
			Subsystem: "campaigns",
			Name:      "status_transitions_total",
			Help:      "Campaign status transitions by action",
		}, []string{"action", "from", "to"}),
		appointments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engagement",
			Subsystem: "appointments",
			Name:      "events_total",
			Help:      "Appointment lifecycle events by creation source",
		}, []string{"event", "source"}),
		bookingRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engagement",
			Subsystem: "appointments",
			Name:      "booking_rejections_total",
			Help:      "Public bookings refused",
		}, []string{"reason"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engagement",
			Subsystem: "notify",
			Name:      "outbound_total",
			Help:      "Outbound patient messages by outcome",
		}, []string{"channel", "outcome"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engagement",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Domain events handed to the publisher",
		}, []string{"type", "outcome"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "engagement",
			Subsystem: "workflow",
			Name:      "operation_seconds",
			Help:      "Latency of workflow operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "engagement",
			Subsystem: "http",
			Name:      "request_seconds",
			Help:      "HTTP request latency by route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitions, m.appointments, m.bookingRejections, m.notifications, m.eventsPublished, m.operationLatency, m.httpLatency)
	return m
}

func (m *WorkflowMetrics) ObserveTransition(action, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, from, to).Inc()
}

func (m *WorkflowMetrics) ObserveAppointment(event, source string) {
	if m == nil {
		return
	}
	m.appointments.WithLabelValues(event, source).Inc()
}

func (m *WorkflowMetrics) ObserveBookingRejected(reason string) {
	if m == nil {
		return
	}
	m.bookingRejections.WithLabelValues(reason).Inc()
}

func (m *WorkflowMetrics) ObserveNotification(channel, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, outcome).Inc()
}

func (m *WorkflowMetrics) ObserveEventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.eventsPublished.WithLabelValues(eventType, outcome).Inc()
}

// ObserveOperation records how long an operation started at start took.
func (m *WorkflowMetrics) ObserveOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operationLatency.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

// ObserveHTTPRequest records one served request. route should be the chi
// route pattern so path parameters do not explode label cardinality.
func (m *WorkflowMetrics) ObserveHTTPRequest(method, route string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}
