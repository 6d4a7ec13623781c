package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

type DBMetrics struct {
	QueryDuration *prometheus.HistogramVec
}

type BusinessMetrics struct {
	GenerationTotal   *prometheus.CounterVec
	RemindersTotal    prometheus.Counter
	OverdueSweptTotal prometheus.Counter
	BatchRunDuration  prometheus.Histogram
}

var (
	HTTP = HTTPMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recurring_billing_http_requests_total",
				Help: "Total number of HTTP requests received.",
			},
			[]string{"method", "path", "code"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recurring_billing_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "code"},
		),
	}

	DB = DBMetrics{
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recurring_billing_db_query_duration_seconds",
				Help:    "Histogram of database query latencies.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query_name", "status"},
		),
	}

	Business = BusinessMetrics{
		GenerationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recurring_billing_invoice_generation_total",
				Help: "Invoice generation attempts by outcome.",
			},
			[]string{"status"},
		),
		RemindersTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "recurring_billing_payment_reminders_total",
				Help: "Payment reminder events published.",
			},
		),
		OverdueSweptTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "recurring_billing_invoices_marked_overdue_total",
				Help: "Pending invoices flipped to overdue by the sweep job.",
			},
		),
		BatchRunDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recurring_billing_batch_run_duration_seconds",
				Help:    "Wall time of invoice generation batch runs.",
				Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
			},
		),
	}
)

func RecordHTTPRequest(method, path, code string, duration time.Duration) {
	HTTP.RequestsTotal.WithLabelValues(method, path, code).Inc()
	HTTP.RequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

func RecordDBQuery(queryName, status string, duration time.Duration) {
	DB.QueryDuration.WithLabelValues(queryName, status).Observe(duration.Seconds())
}

func RecordGeneration(status string) {
	Business.GenerationTotal.WithLabelValues(status).Inc()
}

func RecordReminderPublished() {
	Business.RemindersTotal.Inc()
}

func RecordOverdueSwept(count int64) {
	Business.OverdueSweptTotal.Add(float64(count))
}

func RecordBatchRun(duration time.Duration) {
	Business.BatchRunDuration.Observe(duration.Seconds())
}
