package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fileman"

// Standard histogram buckets for different metric types
var (
	// DurationBuckets: 10ms to 10min for operation durations
	DurationBuckets = []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 600}

	// BytesBuckets: 1KB to 1GB for payload size tracking
	BytesBuckets = []float64{1024, 10240, 102400, 1048576, 10485760, 104857600, 1073741824}
)

// NewDurationHistogramVec creates a labeled histogram for durations in seconds
func NewDurationHistogramVec(name, help string, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
		Buckets:   DurationBuckets,
	}, labels)
}

// NewBytesHistogram creates a histogram for payload sizes
func NewBytesHistogram(name, help string) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
		Buckets:   BytesBuckets,
	})
}

// NewBytesCounter creates a counter for tracking bytes
func NewBytesCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

// NewCounterVec creates a labeled counter
func NewCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
}

// NewGauge creates a standard gauge metric
func NewGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}
