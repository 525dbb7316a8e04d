package metrics

import (
	"github.com/jackzampolin/scanflow/internal/registry"
)

// Summary aggregates OCR quality figures over a set of documents.
type Summary struct {
	Documents   int                     `json:"documents" yaml:"documents"`
	ByStatus    map[registry.Status]int `json:"by_status" yaml:"by_status"`
	WithMetrics int                     `json:"with_metrics" yaml:"with_metrics"`
	Pages       int                     `json:"pages" yaml:"pages"`
	OCRSeconds  int                     `json:"ocr_seconds" yaml:"ocr_seconds"`
	Errors      int                     `json:"errors" yaml:"errors"`
	Warnings    int                     `json:"warnings" yaml:"warnings"`
	CharsTotal  int                     `json:"chars_total" yaml:"chars_total"`
	CharsWrong  int                     `json:"chars_wrong" yaml:"chars_wrong"`
}

// UncertainRatio returns CharsWrong / CharsTotal, or 0 with no characters.
func (s Summary) UncertainRatio() float64 {
	if s.CharsTotal == 0 {
		return 0
	}
	return float64(s.CharsWrong) / float64(s.CharsTotal)
}

// SecondsPerPage returns the mean recognition time per page.
func (s Summary) SecondsPerPage() float64 {
	if s.Pages == 0 {
		return 0
	}
	return float64(s.OCRSeconds) / float64(s.Pages)
}

// Summarize totals the metrics of docs.
func Summarize(docs []*registry.Document) Summary {
	s := Summary{ByStatus: make(map[registry.Status]int)}
	for _, d := range docs {
		s.Documents++
		s.ByStatus[d.Status]++

		m := d.Metrics
		if m.Empty() {
			continue
		}
		s.WithMetrics++
		s.Pages += value(m.Pages)
		s.OCRSeconds += value(m.TimeSeconds)
		s.Errors += value(m.Errors)
		s.Warnings += value(m.Warnings)
		s.CharsTotal += value(m.CharsTotal)
		s.CharsWrong += value(m.CharsWrong)
	}
	return s
}

func value(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
