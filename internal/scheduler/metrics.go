package scheduler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the scheduler's prometheus instruments on a private
// registry so multiple scheduler instances never collide.
type Metrics struct {
	reg *prometheus.Registry

	Started   prometheus.Counter
	Completed prometheus.Counter
	Failed    prometheus.Counter
	Timeouts  prometheus.Counter
	Skipped   prometheus.Counter
	Active    prometheus.Gauge
	Duration  prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}
	m.Started = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "backupd", Subsystem: "scheduler",
		Name: "backups_started_total", Help: "Backup executions started.",
	})
	m.Completed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "backupd", Subsystem: "scheduler",
		Name: "backups_completed_total", Help: "Backup executions completed successfully.",
	})
	m.Failed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "backupd", Subsystem: "scheduler",
		Name: "backups_failed_total", Help: "Backup executions failed with an error.",
	})
	m.Timeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "backupd", Subsystem: "scheduler",
		Name: "backups_timeout_total", Help: "Backup executions that hit their timeout.",
	})
	m.Skipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "backupd", Subsystem: "scheduler",
		Name: "backups_skipped_total", Help: "Due schedules deferred by admission control.",
	})
	m.Active = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "backupd", Subsystem: "scheduler",
		Name: "active_executions", Help: "Backup executions currently in flight.",
	})
	m.Duration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "backupd", Subsystem: "scheduler",
		Name: "execution_duration_seconds", Help: "Wall-clock duration of backup executions.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})
	m.reg.MustRegister(m.Started, m.Completed, m.Failed, m.Timeouts, m.Skipped, m.Active, m.Duration)
	return m
}

// Handler serves the registry in prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
