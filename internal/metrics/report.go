package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job outcomes recorded by ReportMetrics.
const (
	OutcomeCompleted   = "completed"
	OutcomeCancelled   = "cancelled"
	OutcomeSkipped     = "skipped"
	OutcomeFailed      = "failed"
	OutcomeRejected    = "rejected"
	OutcomeInfraFailed = "error"
)

// ReportMetrics holds Prometheus metrics for report job execution.
// A nil *ReportMetrics is valid and records nothing.
type ReportMetrics struct {
	JobsTotal            *prometheus.CounterVec
	JobDuration          prometheus.Histogram
	UploadBytesTotal     prometheus.Counter
	WatcherCancellations prometheus.Counter
}

// NewReportMetrics creates report metrics registered with reg. A nil reg
// leaves them unregistered.
func NewReportMetrics(reg prometheus.Registerer) *ReportMetrics {
	f := promauto.With(reg)
	return &ReportMetrics{
		JobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wardline_report_jobs_total",
			Help: "Total number of report jobs by outcome",
		}, []string{"outcome"}),

		JobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wardline_report_job_duration_seconds",
			Help:    "Wall-clock duration of report jobs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}),

		UploadBytesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "wardline_report_upload_bytes_total",
			Help: "Total bytes of report archives uploaded",
		}),

		WatcherCancellations: f.NewCounter(prometheus.CounterOpts{
			Name: "wardline_report_watcher_cancellations_total",
			Help: "Number of running jobs whose watcher observed a cancellation",
		}),
	}
}

// Initialize pre-registers outcome labels so they appear in /metrics at startup.
func (m *ReportMetrics) Initialize() {
	if m == nil {
		return
	}
	for _, o := range []string{OutcomeCompleted, OutcomeCancelled, OutcomeSkipped, OutcomeFailed, OutcomeRejected, OutcomeInfraFailed} {
		m.JobsTotal.WithLabelValues(o)
	}
}

func (m *ReportMetrics) ObserveJob(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(outcome).Inc()
	m.JobDuration.Observe(elapsed.Seconds())
}

func (m *ReportMetrics) AddUploadBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.UploadBytesTotal.Add(float64(n))
}

func (m *ReportMetrics) RecordWatcherCancellation() {
	if m == nil {
		return
	}
	m.WatcherCancellations.Inc()
}
