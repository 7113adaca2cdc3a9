// Package metrics exposes Prometheus collectors for the memory substrate:
// model load, memory mapping, device allocation and copy traffic, and
// forward-pass activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ModelLoadDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "model_load_duration_seconds",
		Help: "Duration of model load, from header read to layer construction",
	})

	MappedFileBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapped_model_file_bytes",
		Help: "Size of the memory mapped weight file",
	})

	DeviceAllocatedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "device_allocated_bytes",
		Help: "Bytes currently allocated per device kind",
	}, []string{"device"})

	DeviceCopyBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "device_copy_bytes_total",
		Help: "Bytes copied between device memory spaces",
	}, []string{"src", "dst"})

	ForwardDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "forward_duration_seconds",
		Help: "Duration of forward passes",
	})

	EmbeddingRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embedding_rows_total",
		Help: "Embedding table rows gathered into activation buffers",
	})

	TokensEncodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokens_encoded_total",
		Help: "Token ids produced by the tokenizer",
	})

	ValidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "validation_errors_total",
		Help: "Validation failures by operation and error kind",
	}, []string{"operation", "error_type"})
)

func RecordModelLoad(d time.Duration) {
	ModelLoadDuration.Observe(d.Seconds())
}

func RecordMappedBytes(n int64) {
	MappedFileBytes.Set(float64(n))
}

func RecordDeviceAllocated(device string, delta int64) {
	DeviceAllocatedBytes.WithLabelValues(device).Add(float64(delta))
}

func RecordDeviceCopy(src, dst string, n int) {
	DeviceCopyBytes.WithLabelValues(src, dst).Add(float64(n))
}

func RecordForward(d time.Duration) {
	ForwardDuration.Observe(d.Seconds())
}

func RecordEmbeddingRows(n int) {
	EmbeddingRowsTotal.Add(float64(n))
}

func RecordTokensEncoded(n int) {
	TokensEncodedTotal.Add(float64(n))
}

func RecordValidationError(operation, errorType string) {
	ValidationErrors.WithLabelValues(operation, errorType).Inc()
}
