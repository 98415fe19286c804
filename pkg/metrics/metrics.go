package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	AppointmentsTotal        *prometheus.CounterVec
	AppointmentConflicts     prometheus.Counter
	ClinicalRecordsCreated   prometheus.Counter
	AttachmentsUploadedTotal *prometheus.CounterVec
	ReviewsCreatedTotal      prometheus.Counter
	PolicyDenialsTotal       *prometheus.CounterVec
	LoginAttemptsTotal       *prometheus.CounterVec

	StorageOpsTotal *prometheus.CounterVec

	DBQueryDuration *prometheus.HistogramVec
	DBConnections   *prometheus.GaugeVec

	AuditEntriesTotal  prometheus.Counter
	AuditBufferDropped prometheus.Counter
}

// NewCollector registers every metric on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func NewCollector(serviceName string, reg prometheus.Registerer) *Collector {
	ns := strings.NewReplacer("-", "_", ".", "_").Replace(serviceName)
	f := promauto.With(reg)

	return &Collector{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		AppointmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "booking",
			Name:      "appointments_total",
			Help:      "Appointments entering each status.",
		}, []string{"status"}),

		AppointmentConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "booking",
			Name:      "appointment_conflicts_total",
			Help:      "Bookings rejected because an active appointment already exists for the pair.",
		}),

		ClinicalRecordsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "clinical",
			Name:      "records_created_total",
			Help:      "Total clinical records created.",
		}),

		AttachmentsUploadedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "clinical",
			Name:      "attachments_uploaded_total",
			Help:      "Attachments stored, by uploader role.",
		}, []string{"uploaded_by"}),

		ReviewsCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "booking",
			Name:      "reviews_created_total",
			Help:      "Total doctor reviews created.",
		}),

		PolicyDenialsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "policy",
			Name:      "denials_total",
			Help:      "Authorization denials by action.",
		}, []string{"action"}),

		LoginAttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),

		StorageOpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "File storage operations by operation and result.",
		}, []string{"operation", "result"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query latency distribution.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"operation", "table"}),

		DBConnections: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "db",
			Name:      "connections",
			Help:      "Database pool connections by state.",
		}, []string{"state"}),

		AuditEntriesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "audit",
			Name:      "entries_total",
			Help:      "Total audit log entries written.",
		}),

		AuditBufferDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "audit",
			Name:      "buffer_dropped_total",
			Help:      "Audit entries dropped due to full buffer. Alert if non-zero.",
		}),
	}
}

// NewNopCollector returns a collector bound to a private registry.
func NewNopCollector() *Collector {
	return NewCollector("medbook", prometheus.NewRegistry())
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
