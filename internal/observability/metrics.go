// ABOUTME: Prometheus counters describing import runs.
// ABOUTME: Kept on a private registry and written out as a node_exporter textfile.
package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Record outcomes.
const (
	OutcomeInserted = "inserted"
	OutcomeUpdated  = "updated"
	OutcomeSkipped  = "skipped"
	OutcomeError    = "error"
)

// File outcomes.
const (
	FileProcessed = "processed"
	FileSkipped   = "skipped"
	FileFailed    = "failed"
)

// Metrics holds the import counters. A nil *Metrics records nothing.
type Metrics struct {
	registry  *prometheus.Registry
	records   *prometheus.CounterVec
	files     *prometheus.CounterVec
	lastRunTS prometheus.Gauge
}

// NewMetrics creates counters on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthetl",
			Subsystem: "import",
			Name:      "records_total",
			Help:      "Records handled by importers, partitioned by data type and outcome.",
		}, []string{"data_type", "outcome"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthetl",
			Subsystem: "import",
			Name:      "files_total",
			Help:      "Export files handled by the bulk importer, partitioned by data type and outcome.",
		}, []string{"data_type", "outcome"}),
		lastRunTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "healthetl",
			Subsystem: "import",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of the most recent completed import run.",
		}),
	}
	m.registry.MustRegister(m.records, m.files, m.lastRunTS)
	return m
}

// RecordRows adds n records with the given outcome.
func (m *Metrics) RecordRows(dataType, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.records.WithLabelValues(dataType, outcome).Add(float64(n))
}

// RecordFile counts one file with the given outcome.
func (m *Metrics) RecordFile(dataType, outcome string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(dataType, outcome).Inc()
}

// MarkRun stamps the completion time of an import run.
func (m *Metrics) MarkRun(ts time.Time) {
	if m == nil || ts.IsZero() {
		return
	}
	m.lastRunTS.Set(float64(ts.Unix()))
}

// Records exposes the record counter vector for assertions.
func (m *Metrics) Records() *prometheus.CounterVec { return m.records }

// Files exposes the file counter vector for assertions.
func (m *Metrics) Files() *prometheus.CounterVec { return m.files }

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes every metric to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
