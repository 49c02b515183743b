package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Deletion kinds and failure stages recorded by RetentionMetrics.
const (
	KindBlob       = "blob"
	KindAttachment = "attachment"
	KindEvent      = "event"

	StageSettings = "settings"
	StageList     = "list"
	StageBlob     = "blob"
	StageRow      = "row"
	StageEvents   = "events"
)

// RetentionMetrics holds Prometheus metrics for the retention sweep.
// A nil *RetentionMetrics is valid and records nothing.
type RetentionMetrics struct {
	DeletedTotal *prometheus.CounterVec
	ErrorsTotal  *prometheus.CounterVec
	LastRun      prometheus.Gauge
}

// NewRetentionMetrics creates retention metrics registered with reg. A nil
// reg leaves them unregistered.
func NewRetentionMetrics(reg prometheus.Registerer) *RetentionMetrics {
	f := promauto.With(reg)
	return &RetentionMetrics{
		DeletedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wardline_retention_deleted_total",
			Help: "Total number of items deleted by the retention sweep",
		}, []string{"kind"}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wardline_retention_errors_total",
			Help: "Total number of retention sweep failures by stage",
		}, []string{"stage"}),

		LastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "wardline_retention_last_run_timestamp_seconds",
			Help: "Unix time the last retention sweep finished",
		}),
	}
}

func (m *RetentionMetrics) AddDeleted(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.DeletedTotal.WithLabelValues(kind).Add(float64(n))
}

func (m *RetentionMetrics) RecordError(stage string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(stage).Inc()
}

func (m *RetentionMetrics) MarkRun(at time.Time) {
	if m == nil {
		return
	}
	m.LastRun.Set(float64(at.Unix()))
}
