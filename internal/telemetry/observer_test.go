package telemetry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusObserverCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewPrometheusObserver("test", reg)
	if err != nil {
		t.Fatalf("new observer: %v", err)
	}

	o.RecordOperation(OpAttach, 10*time.Millisecond, nil)
	o.RecordOperation(OpAttach, 5*time.Millisecond, errors.New("boom"))
	o.RecordBatchItem(OpAttach, "success")
	o.RecordBatchItem(OpAttach, "success")
	o.RecordBatchItem(OpAttach, "error")
	o.RecordUpload(1024)
	o.RecordUpload(0)
	o.RecordPairs(2)
	o.RecordBlobsCollected(3, 300)

	if got := testutil.ToFloat64(o.errors.WithLabelValues(OpAttach)); got != 1 {
		t.Fatalf("expected 1 attach error, got %v", got)
	}
	if got := testutil.ToFloat64(o.batchItems.WithLabelValues(OpAttach, "success")); got != 2 {
		t.Fatalf("expected 2 successful items, got %v", got)
	}
	if got := testutil.ToFloat64(o.uploadedBytes); got != 1024 {
		t.Fatalf("expected 1024 uploaded bytes, got %v", got)
	}
	if got := testutil.ToFloat64(o.pairsLinked); got != 2 {
		t.Fatalf("expected 2 pairs, got %v", got)
	}
	if got := testutil.ToFloat64(o.bytesCollected); got != 300 {
		t.Fatalf("expected 300 collected bytes, got %v", got)
	}
	if n := testutil.CollectAndCount(o.duration); n != 1 {
		t.Fatalf("expected one duration series, got %d", n)
	}
}

func TestPrometheusObserverReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusObserver("dup", reg)
	if err != nil {
		t.Fatalf("first observer: %v", err)
	}
	second, err := NewPrometheusObserver("dup", reg)
	if err != nil {
		t.Fatalf("second observer: %v", err)
	}

	first.RecordPairs(1)
	second.RecordPairs(1)
	if got := testutil.ToFloat64(first.pairsLinked); got != 2 {
		t.Fatalf("expected shared counter at 2, got %v", got)
	}
}

func TestNilAndNopObserversAreSafe(t *testing.T) {
	var o *PrometheusObserver
	o.RecordOperation(OpGC, time.Second, nil)
	o.RecordBatchItem(OpDetach, "success")
	o.RecordUpload(1)
	o.RecordPairs(1)
	o.RecordBlobsCollected(1, 1)

	var n Observer = Nop{}
	n.RecordOperation(OpGC, time.Second, nil)
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewPrometheusObserver("textfile", reg)
	if err != nil {
		t.Fatalf("new observer: %v", err)
	}
	o.RecordUpload(42)

	path := filepath.Join(t.TempDir(), "samplevault.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "textfile_uploaded_bytes_total 42") {
		t.Fatalf("expected uploaded bytes in textfile, got:\n%s", data)
	}

	if err := WriteTextfile("", reg); err != nil {
		t.Fatalf("empty path should be a no-op: %v", err)
	}
}
