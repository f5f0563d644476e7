package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs          *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	filings       *prometheus.GaugeVec
	refunds       *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddNotification counts a delivered filing status notification.
func (m *Metrics) AddNotification(status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(status).Inc()
}

// SetFilingSnapshot replaces the per-status gauges and refund totals for year.
func (m *Metrics) SetFilingSnapshot(year int, byStatus map[string]int, estimated, actual float64) {
	if m == nil {
		return
	}
	y := strconv.Itoa(year)
	for status, count := range byStatus {
		m.filings.WithLabelValues(y, status).Set(float64(count))
	}
	m.refunds.WithLabelValues(y, "estimated").Set(estimated)
	m.refunds.WithLabelValues(y, "actual").Set(actual)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taxpilot_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taxpilot_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taxpilot_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taxpilot_filing_notifications_total",
		Help: "Filing status notifications delivered, by status.",
	}, []string{"status"})
	filings := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "taxpilot_filings_by_status",
		Help: "Filings per tax year and status at the last snapshot.",
	}, []string{"year", "status"})
	refunds := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "taxpilot_filings_refund_total",
		Help: "Summed refunds per tax year at the last snapshot.",
	}, []string{"year", "kind"})
	registerer.MustRegister(runs, failures, duration, notifications, filings, refunds)
	return &Metrics{runs: runs, failures: failures, duration: duration, notifications: notifications, filings: filings, refunds: refunds}
}
