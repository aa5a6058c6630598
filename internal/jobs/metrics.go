package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	processed  prometheus.Counter
	syncWarned prometheus.Counter
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
	status := "success"
	if err != nil {
		status = "failure"
	}
	t.finish(status)
	return err
}

// Skip finalises a run that did no work, e.g. because another run held the lock.
func (t *Tracker) Skip() {
	t.finish("skipped")
}

func (t *Tracker) finish(status string) {
	if t == nil || t.metrics == nil || t.job == "" {
		return
	}
	if status == "failure" {
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
}

// AddInvoiceSync records the outcome counts of one invoice synchronisation.
func (m *Metrics) AddInvoiceSync(processed, warnings int) {
	if m == nil {
		return
	}
	if processed > 0 {
		m.processed.Add(float64(processed))
	}
	if warnings > 0 {
		m.syncWarned.Add(float64(warnings))
	}
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	processed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_invoice_sync_processed_total",
		Help: "Invoices merged by synchronisation runs.",
	})
	warned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_invoice_sync_warnings_total",
		Help: "Per-record warnings raised by synchronisation runs.",
	})
	registerer.MustRegister(runs, failures, duration, processed, warned)
	return &Metrics{runs: runs, failures: failures, duration: duration, processed: processed, syncWarned: warned}
}
