package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		syncTransitionsTotal,
		syncRejectionsTotal,
		syncRequeuesTotal,
		syncJobsByStatus,
		syncRunningProgress,
		syncJobDuration,
		syncOverdueJobs,
	)
}

var (
	syncTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_job_transitions_total",
			Help: "Accepted sync job lifecycle events, labeled by event and resulting status.",
		},
		[]string{"event", "to"},
	)

	syncRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_job_rejections_total",
			Help: "Rejected sync job operations, labeled by reason.",
		},
		[]string{"reason"}, // not_found, invalid_transition, retry_budget, invariant, invalid_argument, other
	)

	syncRequeuesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_job_requeues_total",
			Help: "Sync jobs put back to pending after a failed attempt.",
		},
		[]string{"object_type"},
	)

	syncJobsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_jobs_by_status",
			Help: "Number of tracked sync jobs per status, refreshed by the poller.",
		},
		[]string{"status"},
	)

	syncRunningProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_job_progress_percent",
			Help: "Progress of currently running sync jobs.",
		},
		[]string{"job_id", "object_type"},
	)

	syncJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_job_duration_seconds",
			Help:    "Duration of finished sync attempts.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"object_type", "status"},
	)

	syncOverdueJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_jobs_overdue",
			Help: "Running sync jobs open longer than the configured threshold.",
		},
	)
)

func IncSyncTransition(event, to string) {
	syncTransitionsTotal.WithLabelValues(norm(event), norm(to)).Inc()
}

func IncSyncRejection(reason string) {
	syncRejectionsTotal.WithLabelValues(norm(reason)).Inc()
}

func IncSyncRequeue(objectType string) {
	syncRequeuesTotal.WithLabelValues(norm(objectType)).Inc()
}

func ObserveSyncDuration(objectType, status string, seconds int64) {
	syncJobDuration.WithLabelValues(norm(objectType), norm(status)).Observe(float64(seconds))
}

// SetSyncJobsByStatus replaces the per-status gauge values.
func SetSyncJobsByStatus(counts map[string]int) {
	syncJobsByStatus.Reset()
	for status, n := range counts {
		syncJobsByStatus.WithLabelValues(norm(status)).Set(float64(n))
	}
}

// JobProgress is one sample for the running-progress gauge.
type JobProgress struct {
	JobID      string
	ObjectType string
	Percent    float64
}

// SetRunningProgress replaces the progress gauges; jobs that stopped running drop out.
func SetRunningProgress(samples []JobProgress) {
	syncRunningProgress.Reset()
	for _, s := range samples {
		syncRunningProgress.WithLabelValues(s.JobID, norm(s.ObjectType)).Set(s.Percent)
	}
}

func SetOverdueJobs(n int) {
	syncOverdueJobs.Set(float64(n))
}
