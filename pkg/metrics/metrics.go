// Package metrics tracks run counters for an EDGAR conversion with
// Prometheus collectors.
//
// Each run owns a Collector backed by its own registry, so repeated runs in
// one process (and parallel tests) never share counters. At the end of a run
// the registry can be dumped in the Prometheus text format for a node
// exporter textfile collector.
//
// # Basic Usage
//
//	c := metrics.NewCollector("companyfacts")
//	c.RecordRead()
//	c.RecordRows(schema.TimeSeriesName, len(rows))
//	c.ObserveBatch(schema.TimeSeriesName, rows, elapsed)
//	_ = c.WriteTextfile("/var/lib/node_exporter/edgar.prom")
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/akhil324/sec-edgar-filings/pkg/errors"
)

const namespace = "edgar"

// Collector groups the counters of one run. All methods are safe for
// concurrent use.
type Collector struct {
	pipeline string
	registry *prometheus.Registry

	recordsRead    prometheus.Counter
	recordsSkipped *prometheus.CounterVec
	rowsEmitted    *prometheus.CounterVec
	batchesWritten *prometheus.CounterVec
	batchRows      *prometheus.HistogramVec
	batchLatency   *prometheus.HistogramVec
	bytesWritten   *prometheus.CounterVec
	residentMemory prometheus.Gauge
	lastRun        prometheus.Gauge
}

// NewCollector creates a collector for one pipeline run. The pipeline name
// becomes a constant label on every series.
func NewCollector(pipeline string) *Collector {
	labels := prometheus.Labels{"pipeline": pipeline}
	c := &Collector{
		pipeline: pipeline,
		registry: prometheus.NewRegistry(),

		recordsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "records_read_total",
			Help:        "Entity documents read from the archive",
			ConstLabels: labels,
		}),
		recordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "records_skipped_total",
			Help:        "Entity documents skipped after a decode or normalize failure",
			ConstLabels: labels,
		}, []string{"reason"}),
		rowsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "rows_emitted_total",
			Help:        "Rows handed to a batch accumulator",
			ConstLabels: labels,
		}, []string{"dataset"}),
		batchesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "batches_written_total",
			Help:        "Output units written",
			ConstLabels: labels,
		}, []string{"dataset"}),
		batchRows: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "batch_rows",
			Help:        "Rows per written output unit",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(100, 4, 8),
		}, []string{"dataset"}),
		batchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "batch_write_duration_seconds",
			Help:        "Time spent materializing one output unit",
			ConstLabels: labels,
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"dataset"}),
		bytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "bytes_written_total",
			Help:        "Bytes of Parquet output written",
			ConstLabels: labels,
		}, []string{"dataset"}),
		residentMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "resident_memory_bytes",
			Help:        "Resident set size of the process at the last progress report",
			ConstLabels: labels,
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_run_timestamp_seconds",
			Help:        "Unix time the run finished",
			ConstLabels: labels,
		}),
	}

	c.registry.MustRegister(
		c.recordsRead,
		c.recordsSkipped,
		c.rowsEmitted,
		c.batchesWritten,
		c.batchRows,
		c.batchLatency,
		c.bytesWritten,
		c.residentMemory,
		c.lastRun,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RecordRead counts one document read from the archive
func (c *Collector) RecordRead() { c.recordsRead.Inc() }

// RecordSkipped counts one skipped document
func (c *Collector) RecordSkipped(reason string) {
	c.recordsSkipped.WithLabelValues(reason).Inc()
}

// RecordRows counts rows emitted for dataset
func (c *Collector) RecordRows(dataset string, n int) {
	c.rowsEmitted.WithLabelValues(dataset).Add(float64(n))
}

// ObserveBatch records one written output unit
func (c *Collector) ObserveBatch(dataset string, rows int, bytes int64, d time.Duration) {
	c.batchesWritten.WithLabelValues(dataset).Inc()
	c.batchRows.WithLabelValues(dataset).Observe(float64(rows))
	c.batchLatency.WithLabelValues(dataset).Observe(d.Seconds())
	c.bytesWritten.WithLabelValues(dataset).Add(float64(bytes))
}

// SetResidentMemory records the current RSS
func (c *Collector) SetResidentMemory(bytes uint64) {
	c.residentMemory.Set(float64(bytes))
}

// MarkFinished stamps the run completion time
func (c *Collector) MarkFinished(t time.Time) {
	c.lastRun.Set(float64(t.Unix()))
}

// WriteTextfile writes the registry in the Prometheus text format. The file
// is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return errors.Wrap(err, errors.ErrorTypeWrite, "failed to write metrics textfile").
			WithDetail("path", path)
	}
	return nil
}
