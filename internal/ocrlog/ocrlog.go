// Package ocrlog parses the sidecar report the OCR engine writes next to
// its output. The engine emits either a German or an English report;
// every recognized line is optional.
package ocrlog

import (
	"bytes"
	"os"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// Metrics are the quality figures of one OCR run. Nil means the report
// did not contain the corresponding line.
type Metrics struct {
	Pages       *int `json:"pages,omitempty" yaml:"pages,omitempty"`
	TimeSeconds *int `json:"time_seconds,omitempty" yaml:"time_seconds,omitempty"`
	Errors      *int `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings    *int `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	CharsTotal  *int `json:"chars_total,omitempty" yaml:"chars_total,omitempty"`
	CharsWrong  *int `json:"chars_wrong,omitempty" yaml:"chars_wrong,omitempty"`
}

// Empty reports whether no field was parsed.
func (m Metrics) Empty() bool {
	return m.Pages == nil && m.TimeSeconds == nil && m.Errors == nil &&
		m.Warnings == nil && m.CharsTotal == nil && m.CharsWrong == nil
}

// Report is the parsed sidecar.
type Report struct {
	Metrics      `yaml:",inline"`
	ErrorMessage string `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	Successful   bool   `json:"successful" yaml:"successful"`
}

var (
	pagesRe   = regexp.MustCompile(`^(?:Verarbeitete Seiten|Processed pages):[ \t]*([0-9]+)\.?\s*$`)
	timeRe    = regexp.MustCompile(`^(?:Erkennungszeit|Recognition time):[ \t]*([0-9]+) (?:Stunden|hours?) ([0-9]+) (?:Minuten|minutes?) ([0-9]+) (?:Sekunden|seconds?)\.?\s*$`)
	countsRe  = regexp.MustCompile(`^(?:Fehler/Warnungen|Errors/warnings):[ \t]*([0-9]+) / ([0-9]+)\.?\s*$`)
	qualityRe = regexp.MustCompile(`^(?:Nicht eindeutige Zeichen|Uncertain characters):[ \t]*([0-9]+) ?% \(([0-9]+) / ([0-9]+)\)\.?\s*$`)
	failureRe = regexp.MustCompile(`^[0-9]{1,4}[./-][0-9]{1,2}[./-][0-9]{1,4},?[ \t]+[0-9]{1,2}:[0-9]{2}(?::[0-9]{2})?(?:[ \t]*[AaPp][Mm])?[ \t]+(?:Fehler|Error):[ \t]*(.*?)\s*$`)
)

// Decode converts raw report bytes to text. UTF-16LE is detected by its
// byte order mark or, without one, by the zero high bytes of ASCII text.
// Anything else is treated as UTF-8.
func Decode(b []byte) string {
	switch {
	case bytes.HasPrefix(b, []byte{0xFF, 0xFE}), bytes.HasPrefix(b, []byte{0xFE, 0xFF}), looksUTF16LE(b):
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(b)
		if err == nil {
			return string(out)
		}
	}
	return string(bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF}))
}

func looksUTF16LE(b []byte) bool {
	if len(b) < 4 || len(b)%2 != 0 {
		return false
	}
	n := len(b)
	if n > 512 {
		n = 512
	}
	zeros := 0
	for i := 1; i < n; i += 2 {
		if b[i] == 0 {
			zeros++
		}
	}
	return zeros*2 >= n/2
}

// Parse extracts metrics and the failure verdict from report text.
func Parse(text string) Report {
	r := Report{Successful: true}
	var failures []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		line = strings.TrimLeft(line, " \t\ufeff")

		if m := pagesRe.FindStringSubmatch(line); m != nil {
			r.Pages = atoi(m[1])
			continue
		}
		if m := timeRe.FindStringSubmatch(line); m != nil {
			h, mins, sec := atoi(m[1]), atoi(m[2]), atoi(m[3])
			if h != nil && mins != nil && sec != nil {
				total := *h*3600 + *mins*60 + *sec
				r.TimeSeconds = &total
			}
			continue
		}
		if m := countsRe.FindStringSubmatch(line); m != nil {
			r.Errors = atoi(m[1])
			r.Warnings = atoi(m[2])
			continue
		}
		if m := qualityRe.FindStringSubmatch(line); m != nil {
			r.CharsWrong = atoi(m[2])
			r.CharsTotal = atoi(m[3])
			continue
		}
		if m := failureRe.FindStringSubmatch(line); m != nil {
			r.Successful = false
			if m[1] != "" {
				failures = append(failures, m[1])
			}
		}
	}

	r.ErrorMessage = strings.Join(failures, "; ")
	return r
}

// ParseFile reads, decodes and parses the report at path.
func ParseFile(path string) (Report, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	return Parse(Decode(b)), nil
}

// atoi only sees digit runs matched above; overflow yields nil.
func atoi(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
