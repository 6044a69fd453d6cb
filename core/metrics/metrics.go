package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config holds configuration for run metrics.
type Config struct {
	// Textfile is where metrics are written after a run, for the node exporter
	// textfile collector. Empty disables the export.
	Textfile string `mapstructure:"textfile" default:""`
}

// Metrics holds all Prometheus metrics of a batch run.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Records         *prometheus.CounterVec
	LookupDuration  prometheus.Histogram
	InsertDuration  prometheus.Histogram
	MappingsFlushed prometheus.Counter
	Generated       *prometheus.CounterVec
	RecalcWindows   *prometheus.CounterVec
	RunDuration     *prometheus.GaugeVec
}

// New creates the metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fileno_reconcile_records_total",
			Help: "External records processed by reconciliation, by outcome",
		}, []string{"outcome"}),
		LookupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fileno_reconcile_lookup_duration_seconds",
			Help:    "Latency of one chunked identifier lookup",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		InsertDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fileno_reconcile_insert_duration_seconds",
			Help:    "Latency of one result insert batch",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		MappingsFlushed: factory.NewCounter(prometheus.CounterOpts{
			Name: "fileno_reconcile_mappings_flushed_total",
			Help: "Identifier rows marked as mapped",
		}),
		Generated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fileno_generated_records_total",
			Help: "Identifier records generated, by registry",
		}, []string{"registry"}),
		RecalcWindows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fileno_recalc_windows_total",
			Help: "Recalculation windows committed or rolled back",
		}, []string{"registry", "result"}),
		RunDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fileno_run_duration_seconds",
			Help: "Wall time of the last run, by kind and status",
		}, []string{"kind", "status"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// AddRecords counts n records with the given outcome.
func (m *Metrics) AddRecords(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Records.WithLabelValues(outcome).Add(float64(n))
}

// ObserveLookup records a lookup latency.
func (m *Metrics) ObserveLookup(d time.Duration) {
	if m == nil {
		return
	}
	m.LookupDuration.Observe(d.Seconds())
}

// ObserveInsert records an insert batch latency.
func (m *Metrics) ObserveInsert(d time.Duration) {
	if m == nil {
		return
	}
	m.InsertDuration.Observe(d.Seconds())
}

// AddMappings counts flushed identifier updates.
func (m *Metrics) AddMappings(n int) {
	if m == nil || n == 0 {
		return
	}
	m.MappingsFlushed.Add(float64(n))
}

// IncGenerated counts one generated record.
func (m *Metrics) IncGenerated(registry string) {
	if m == nil {
		return
	}
	m.Generated.WithLabelValues(registry).Inc()
}

// IncWindow counts a recalculation window.
func (m *Metrics) IncWindow(registry string, committed bool) {
	if m == nil {
		return
	}
	result := "committed"
	if !committed {
		result = "rolled_back"
	}
	m.RecalcWindows.WithLabelValues(registry, result).Inc()
}

// SetRunDuration records the duration of a finished run.
func (m *Metrics) SetRunDuration(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(kind, status).Set(d.Seconds())
}

// WriteTextfile writes all metrics in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
