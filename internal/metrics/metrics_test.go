package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDeviceAllocated(t *testing.T) {
	RecordDeviceAllocated("test_host", 128)
	RecordDeviceAllocated("test_host", -64)
	got := testutil.ToFloat64(DeviceAllocatedBytes.WithLabelValues("test_host"))
	if got != 64 {
		t.Errorf("device_allocated_bytes = %v, want 64", got)
	}
}

func TestRecordDeviceCopy(t *testing.T) {
	RecordDeviceCopy("test_src", "test_dst", 256)
	RecordDeviceCopy("test_src", "test_dst", 256)
	got := testutil.ToFloat64(DeviceCopyBytes.WithLabelValues("test_src", "test_dst"))
	if got != 512 {
		t.Errorf("device_copy_bytes_total = %v, want 512", got)
	}
}

func TestRecordMappedBytes(t *testing.T) {
	RecordMappedBytes(4096)
	if got := testutil.ToFloat64(MappedFileBytes); got != 4096 {
		t.Errorf("mapped_model_file_bytes = %v, want 4096", got)
	}
	RecordMappedBytes(0)
	if got := testutil.ToFloat64(MappedFileBytes); got != 0 {
		t.Errorf("mapped_model_file_bytes after unmap = %v, want 0", got)
	}
}

func TestRecordCounters(t *testing.T) {
	beforeRows := testutil.ToFloat64(EmbeddingRowsTotal)
	RecordEmbeddingRows(5)
	if got := testutil.ToFloat64(EmbeddingRowsTotal); got != beforeRows+5 {
		t.Errorf("embedding_rows_total = %v, want %v", got, beforeRows+5)
	}

	beforeTokens := testutil.ToFloat64(TokensEncodedTotal)
	RecordTokensEncoded(3)
	if got := testutil.ToFloat64(TokensEncodedTotal); got != beforeTokens+3 {
		t.Errorf("tokens_encoded_total = %v, want %v", got, beforeTokens+3)
	}
}

func TestRecordValidationError(t *testing.T) {
	RecordValidationError("test_op", "out_of_range")
	got := testutil.ToFloat64(ValidationErrors.WithLabelValues("test_op", "out_of_range"))
	if got != 1 {
		t.Errorf("validation_errors_total = %v, want 1", got)
	}
}

func TestRecordDurations(t *testing.T) {
	// Summaries have no simple gauge value; just exercise the paths.
	RecordModelLoad(10 * time.Millisecond)
	RecordForward(time.Millisecond)
}
