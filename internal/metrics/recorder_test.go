package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jackzampolin/scanflow/internal/ocrlog"
	"github.com/jackzampolin/scanflow/internal/registry"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.Ingested("scanner")
	r.Ingested("scanner")
	r.Duplicate("email")
	r.Failed("timeout")
	r.Consumed(3)
	secs := 65
	r.Completed(&secs)
	r.Completed(nil)
	r.SetPaused(true)

	if got := testutil.ToFloat64(r.ingested.WithLabelValues("scanner")); got != 2 {
		t.Errorf("ingested = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.duplicates.WithLabelValues("email")); got != 1 {
		t.Errorf("duplicates = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.consumed); got != 3 {
		t.Errorf("consumed = %v, want 3", got)
	}
	if got := testutil.ToFloat64(r.completed); got != 2 {
		t.Errorf("completed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.paused); got != 1 {
		t.Errorf("paused = %v, want 1", got)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.Ingested("scanner")
	r.Failed("report")
	r.SetDocuments(map[string]int{"new": 1})
	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom"), time.Now()); err != nil {
		t.Errorf("nil recorder WriteTextfile: %v", err)
	}
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.SetDocuments(map[string]int{"ocred": 4, "new": 1})
	r.Admitted()

	path := filepath.Join(t.TempDir(), "metrics", "scanflow.prom")
	if err := r.WriteTextfile(path, time.Unix(1700000000, 0)); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`scanflow_documents{status="ocred"} 4`,
		`scanflow_ocr_admitted_total 1`,
		`scanflow_last_flush_timestamp_seconds 1.7e+09`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q:\n%s", want, text)
		}
	}
}

func TestSummarize(t *testing.T) {
	ip := func(n int) *int { return &n }
	docs := []*registry.Document{
		{Status: registry.StatusOCRed, Metrics: ocrlog.Metrics{Pages: ip(2), TimeSeconds: ip(30), CharsTotal: ip(1000), CharsWrong: ip(10)}},
		{Status: registry.StatusConsumed, Metrics: ocrlog.Metrics{Pages: ip(4), TimeSeconds: ip(90), CharsTotal: ip(3000), CharsWrong: ip(30)}},
		{Status: registry.StatusOCRing},
	}

	s := Summarize(docs)
	if s.Documents != 3 || s.WithMetrics != 2 {
		t.Errorf("documents=%d with_metrics=%d", s.Documents, s.WithMetrics)
	}
	if s.Pages != 6 || s.OCRSeconds != 120 {
		t.Errorf("pages=%d seconds=%d", s.Pages, s.OCRSeconds)
	}
	if s.SecondsPerPage() != 20 {
		t.Errorf("seconds per page = %v", s.SecondsPerPage())
	}
	if s.UncertainRatio() != 0.01 {
		t.Errorf("uncertain ratio = %v", s.UncertainRatio())
	}
	if s.ByStatus[registry.StatusOCRing] != 1 {
		t.Errorf("by status = %v", s.ByStatus)
	}
	if (Summary{}).UncertainRatio() != 0 || (Summary{}).SecondsPerPage() != 0 {
		t.Error("empty summary ratios should be zero")
	}
}
