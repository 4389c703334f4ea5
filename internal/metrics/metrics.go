package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the detector. Register
// once per process; tests pass a nil *Metrics and every method
// tolerates that.
type Metrics struct {
	RecordsIngested prometheus.Counter
	RecordsRejected prometheus.Counter
	ScansTotal      prometheus.Counter
	ScansFailed     prometheus.Counter
	ScanDuration    prometheus.Histogram
	AlertsTotal     *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		RecordsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "uebaguard_records_ingested_total",
			Help: "Activity records accepted into the log store",
		}),
		RecordsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "uebaguard_records_rejected_total",
			Help: "Activity records rejected by schema validation",
		}),
		ScansTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "uebaguard_scans_total",
			Help: "Detection scans started",
		}),
		ScansFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "uebaguard_scans_failed_total",
			Help: "Detection scans aborted by store failures",
		}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "uebaguard_scan_duration_seconds",
			Help:    "Wall time of one detection scan",
			Buckets: prometheus.DefBuckets,
		}),
		AlertsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "uebaguard_alerts_total",
			Help: "Alerts raised, by detector and severity",
		}, []string{"detector", "severity"}),
	}
}

func (m *Metrics) IncIngested() {
	if m != nil {
		m.RecordsIngested.Inc()
	}
}

func (m *Metrics) IncRejected() {
	if m != nil {
		m.RecordsRejected.Inc()
	}
}

func (m *Metrics) ScanStarted() {
	if m != nil {
		m.ScansTotal.Inc()
	}
}

func (m *Metrics) ScanFailed() {
	if m != nil {
		m.ScansFailed.Inc()
	}
}

func (m *Metrics) ObserveScan(seconds float64) {
	if m != nil {
		m.ScanDuration.Observe(seconds)
	}
}

func (m *Metrics) AlertRaised(detector, severity string) {
	if m != nil {
		m.AlertsTotal.WithLabelValues(detector, severity).Inc()
	}
}
