// Package metrics records operation outcomes in a Prometheus registry and
// exports them for the node-exporter textfile collector.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"fileman/internal/engine"
	"fileman/internal/ops"
)

// Metrics owns its registry; nothing is registered globally
type Metrics struct {
	Registry *prometheus.Registry

	OperationsTotal  *prometheus.CounterVec
	FailuresTotal    *prometheus.CounterVec
	OperationSeconds *prometheus.HistogramVec
	BytesTransferred prometheus.Counter
	BytesRemoved     prometheus.Counter
	BytesMoved       prometheus.Counter
	InstallSize      prometheus.Histogram
	LastRunTimestamp prometheus.Gauge
}

// New creates and registers every fileman metric
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		OperationsTotal: NewCounterVec("operations_total",
			"Operations executed, by operation and outcome", []string{"op", "outcome"}),
		FailuresTotal: NewCounterVec("failures_total",
			"Failed operations by error kind", []string{"op", "kind"}),
		OperationSeconds: NewDurationHistogramVec("operation_duration_seconds",
			"Wall time of each operation", []string{"op"}),
		BytesTransferred: NewBytesCounter("bytes_transferred_total",
			"Bytes written to disk by installs"),
		BytesRemoved: NewBytesCounter("bytes_removed_total",
			"Bytes of regular files removed by deletes"),
		BytesMoved: NewBytesCounter("bytes_moved_total",
			"Bytes of regular files relocated by moves"),
		InstallSize: NewBytesHistogram("install_size_bytes",
			"Size of installed payloads"),
		LastRunTimestamp: NewGauge("last_run_timestamp",
			"Unix time of the last executed operation"),
	}
	m.Registry.MustRegister(
		m.OperationsTotal,
		m.FailuresTotal,
		m.OperationSeconds,
		m.BytesTransferred,
		m.BytesRemoved,
		m.BytesMoved,
		m.InstallSize,
		m.LastRunTimestamp,
	)
	return m
}

// Observe implements engine.Observer
func (m *Metrics) Observe(_ context.Context, ev engine.Event) error {
	res := ev.Result
	op := string(res.Op)
	if op == "" {
		op = "unknown"
	}

	m.LastRunTimestamp.Set(float64(ev.StartedAt.Unix()))
	m.OperationSeconds.WithLabelValues(op).Observe(res.Duration.Seconds())

	switch {
	case !res.OK():
		m.OperationsTotal.WithLabelValues(op, "failure").Inc()
		m.FailuresTotal.WithLabelValues(op, res.Err.Kind.String()).Inc()
		return nil
	case ev.DryRun:
		m.OperationsTotal.WithLabelValues(op, "dry_run").Inc()
		return nil
	}

	m.OperationsTotal.WithLabelValues(op, "success").Inc()
	bytes := float64(res.Bytes)
	switch res.Op {
	case ops.KindInstall:
		m.BytesTransferred.Add(bytes)
		m.InstallSize.Observe(bytes)
	case ops.KindDelete:
		m.BytesRemoved.Add(bytes)
	case ops.KindMove:
		m.BytesMoved.Add(bytes)
	}
	return nil
}

// WriteTextfile atomically writes the registry in text exposition format to
// path. The file name must end in .prom for the textfile collector to read it.
func (m *Metrics) WriteTextfile(path string) error {
	if filepath.Ext(path) != ".prom" {
		return fmt.Errorf("metrics textfile %s: name must end in .prom", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
