// Package telemetry records attachment engine activity as Prometheus metrics.
package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const DefaultNamespace = "samplevault"

// Operation labels.
const (
	OpAttach      = "attach"
	OpDetach      = "detach"
	OpPair        = "pair"
	OpConcatenate = "concatenate"
	OpMetrics     = "metrics"
	OpGC          = "gc"
	OpUpload      = "upload"
)

// Observer captures telemetry for engine operations.
type Observer interface {
	RecordOperation(op string, duration time.Duration, err error)
	RecordBatchItem(op, status string)
	RecordUpload(sizeBytes int64)
	RecordPairs(n int)
	RecordBlobsCollected(n int, bytes int64)
}

// PrometheusObserver exports engine metrics to Prometheus.
type PrometheusObserver struct {
	duration       *prometheus.HistogramVec
	errors         *prometheus.CounterVec
	batchItems     *prometheus.CounterVec
	uploadedBytes  prometheus.Counter
	pairsLinked    prometheus.Counter
	blobsCollected prometheus.Counter
	bytesCollected prometheus.Counter
}

// NewPrometheusObserver registers the engine metrics on reg. A nil reg uses
// prometheus.DefaultRegisterer; collectors already registered there are reused.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of attachment engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of failed attachment engine operations.",
		}, []string{"operation"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Per-item outcomes of batch attach and detach calls.",
		}, []string{"operation", "status"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Cumulative payload size written to the blob store.",
		}),
		pairsLinked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_linked_total",
			Help:      "Forward/reverse pairs linked by the pairing resolver.",
		}),
		blobsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_blobs_deleted_total",
			Help:      "Unreferenced blobs removed by garbage collection.",
		}),
		bytesCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_bytes_deleted_total",
			Help:      "Bytes of unreferenced blobs removed by garbage collection.",
		}),
	}

	var err error
	if o.duration, err = register(reg, o.duration); err != nil {
		return nil, err
	}
	if o.errors, err = register(reg, o.errors); err != nil {
		return nil, err
	}
	if o.batchItems, err = register(reg, o.batchItems); err != nil {
		return nil, err
	}
	if o.uploadedBytes, err = register(reg, o.uploadedBytes); err != nil {
		return nil, err
	}
	if o.pairsLinked, err = register(reg, o.pairsLinked); err != nil {
		return nil, err
	}
	if o.blobsCollected, err = register(reg, o.blobsCollected); err != nil {
		return nil, err
	}
	if o.bytesCollected, err = register(reg, o.bytesCollected); err != nil {
		return nil, err
	}
	return o, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register metric: %w", err)
	}
	return collector, nil
}

// RecordOperation tracks duration and failures of one operation.
func (o *PrometheusObserver) RecordOperation(op string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues(op).Inc()
	}
}

// RecordBatchItem counts one per-item batch outcome.
func (o *PrometheusObserver) RecordBatchItem(op, status string) {
	if o == nil {
		return
	}
	o.batchItems.WithLabelValues(op, status).Inc()
}

func (o *PrometheusObserver) RecordUpload(sizeBytes int64) {
	if o == nil || sizeBytes <= 0 {
		return
	}
	o.uploadedBytes.Add(float64(sizeBytes))
}

func (o *PrometheusObserver) RecordPairs(n int) {
	if o == nil || n <= 0 {
		return
	}
	o.pairsLinked.Add(float64(n))
}

func (o *PrometheusObserver) RecordBlobsCollected(n int, bytes int64) {
	if o == nil || n <= 0 {
		return
	}
	o.blobsCollected.Add(float64(n))
	o.bytesCollected.Add(float64(bytes))
}

// Nop discards all telemetry.
type Nop struct{}

func (Nop) RecordOperation(string, time.Duration, error) {}

func (Nop) RecordBatchItem(string, string) {}

func (Nop) RecordUpload(int64) {}

func (Nop) RecordPairs(int) {}

func (Nop) RecordBlobsCollected(int, int64) {}

var (
	_ Observer = (*PrometheusObserver)(nil)
	_ Observer = Nop{}
)
