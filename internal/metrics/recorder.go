// Package metrics exposes pipeline counters through a private prometheus
// registry. There is no HTTP listener; the registry is written to a
// node-exporter textfile instead.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns the collectors. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	registry *prometheus.Registry

	ingested       *prometheus.CounterVec
	duplicates     *prometheus.CounterVec
	namingFailures *prometheus.CounterVec
	bypassed       prometheus.Counter
	admitted       prometheus.Counter
	completed      prometheus.Counter
	failures       *prometheus.CounterVec
	consumed       prometheus.Counter
	documents      *prometheus.GaugeVec
	paused         prometheus.Gauge
	ocrDuration    prometheus.Histogram
	lastTick       prometheus.Gauge
}

// NewRecorder registers every collector on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		ingested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scanflow_documents_ingested_total",
			Help: "Documents admitted to the registry, by source",
		}, []string{"source"}),
		duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scanflow_duplicates_total",
			Help: "Inbound files discarded as duplicate content, by source",
		}, []string{"source"}),
		namingFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scanflow_naming_failures_total",
			Help: "Inbound files moved to manual review because their name was not recognized",
		}, []string{"source"}),
		bypassed: f.NewCounter(prometheus.CounterOpts{
			Name: "scanflow_ocr_bypassed_total",
			Help: "Documents delivered without OCR because they already carried text",
		}),
		admitted: f.NewCounter(prometheus.CounterOpts{
			Name: "scanflow_ocr_admitted_total",
			Help: "Documents moved into the OCR input directory",
		}),
		completed: f.NewCounter(prometheus.CounterOpts{
			Name: "scanflow_ocr_completed_total",
			Help: "OCR outputs delivered to consumption",
		}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scanflow_ocr_failures_total",
			Help: "OCR jobs moved to the failure directory, by reason",
		}, []string{"reason"}),
		consumed: f.NewCounter(prometheus.CounterOpts{
			Name: "scanflow_consumed_total",
			Help: "Documents observed as consumed downstream",
		}),
		documents: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scanflow_documents",
			Help: "Registry documents by status",
		}, []string{"status"}),
		paused: f.NewGauge(prometheus.GaugeOpts{
			Name: "scanflow_ocr_paused",
			Help: "1 while OCR admission is paused after an ambiguous slot",
		}),
		ocrDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanflow_ocr_duration_seconds",
			Help:    "Recognition time reported by the OCR engine",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		}),
		lastTick: f.NewGauge(prometheus.GaugeOpts{
			Name: "scanflow_last_flush_timestamp_seconds",
			Help: "Unix time of the last metrics flush",
		}),
	}
}

// Registry returns the underlying gatherer.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Ingested(source string) {
	if r == nil {
		return
	}
	r.ingested.WithLabelValues(source).Inc()
}

func (r *Recorder) Duplicate(source string) {
	if r == nil {
		return
	}
	r.duplicates.WithLabelValues(source).Inc()
}

func (r *Recorder) NamingFailure(source string) {
	if r == nil {
		return
	}
	r.namingFailures.WithLabelValues(source).Inc()
}

func (r *Recorder) Bypassed() {
	if r == nil {
		return
	}
	r.bypassed.Inc()
}

func (r *Recorder) Admitted() {
	if r == nil {
		return
	}
	r.admitted.Inc()
}

// Completed counts a delivered OCR output. seconds is the engine's
// reported recognition time, nil when the report lacked it.
func (r *Recorder) Completed(seconds *int) {
	if r == nil {
		return
	}
	r.completed.Inc()
	if seconds != nil {
		r.ocrDuration.Observe(float64(*seconds))
	}
}

func (r *Recorder) Failed(reason string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(reason).Inc()
}

func (r *Recorder) Consumed(n int) {
	if r == nil {
		return
	}
	r.consumed.Add(float64(n))
}

// SetDocuments replaces the per-status document gauge.
func (r *Recorder) SetDocuments(counts map[string]int) {
	if r == nil {
		return
	}
	for status, n := range counts {
		r.documents.WithLabelValues(status).Set(float64(n))
	}
}

func (r *Recorder) SetPaused(paused bool) {
	if r == nil {
		return
	}
	if paused {
		r.paused.Set(1)
		return
	}
	r.paused.Set(0)
}

// WriteTextfile writes the registry in the text exposition format.
// prometheus.WriteToTextfile renames a temp file into place, so readers
// never see a partial file.
func (r *Recorder) WriteTextfile(path string, now time.Time) error {
	if r == nil || path == "" {
		return nil
	}
	r.lastTick.Set(float64(now.Unix()))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
