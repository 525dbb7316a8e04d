package naming

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Stamp is what a matcher extracts from an inbound filename. Tag and Stem
// are optional; an empty Tag means the caller's source tag is used.
type Stamp struct {
	Time time.Time
	Tag  string
	Stem string
}

// Matcher is a single filename heuristic. Match receives the base name
// (no directory) and reports whether it recognized it.
type Matcher struct {
	Name  string
	Match func(base string) (Stamp, bool)
}

var (
	appExportRe    = regexp.MustCompile(`(?i)^[a-z]*[._-]([0-9]{2,4})[._-]([0-9]{1,2})[._-]([0-9]{1,2})[._-]([0-9]{1,2})[._-]([0-9]{1,2})[._-]([0-9]{1,2})(?:[^0-9][^/]*)?\.pdf$`)
	adfScannerRe   = regexp.MustCompile(`(?i)^([0-9]{4})([0-9]{2})([0-9]{2})_([0-9]{2})([0-9]{2})([0-9]{2})_[0-9a-z]+_[0-9]+\.pdf$`)
	deviceCameraRe = regexp.MustCompile(`(?i)^IMG_([0-9]{4})([0-9]{2})([0-9]{2})_([0-9]+)\.pdf$`)
	orchestratedRe = regexp.MustCompile(`^[A-Za-z0-9_]+-[0-9]{5,}-([0-9]{4})-([0-9]{2})-([0-9]{2})-([0-9]{2})-([0-9]{2})-([0-9]{2})-([A-Za-z0-9_]+)(?:-([A-Za-z0-9._]+))?\.pdf$`)
	emailSubjectRe = regexp.MustCompile(`(?i)^([0-9]{4})-([0-9]{1,2})-([0-9]{1,2})--(.+)\.pdf$`)
	genericRe      = regexp.MustCompile(`([0-9]{2,4})[._-]([0-9]{1,2})[._-]([0-9]{1,2})[._-]([0-9]{1,2})[._-]([0-9]{1,2})[._-]([0-9]{1,2})`)
)

// DefaultMatchers returns the built-in heuristics in priority order.
func DefaultMatchers() []Matcher {
	return []Matcher{
		{Name: "app-export", Match: matchAppExport},
		{Name: "adf-scanner", Match: matchADFScanner},
		{Name: "device-camera", Match: matchDeviceCamera},
		{Name: "orchestrated", Match: matchOrchestrated},
		{Name: "email-subject", Match: matchEmailSubject},
		{Name: "generic", Match: matchGeneric},
	}
}

// prefix.YYYY.MM.DD.HH.MM.SS.pdf with any of . - _ as separators.
func matchAppExport(base string) (Stamp, bool) {
	m := appExportRe.FindStringSubmatch(base)
	if m == nil {
		return Stamp{}, false
	}
	return stampFromGroups(m[1:7])
}

// YYYYMMDD_HHMMSS_<id>_<seq>.pdf
func matchADFScanner(base string) (Stamp, bool) {
	m := adfScannerRe.FindStringSubmatch(base)
	if m == nil {
		return Stamp{}, false
	}
	return stampFromGroups(m[1:7])
}

// IMG_YYYYMMDD_<seq>.pdf. A six digit sequence that reads as a valid
// HHMMSS is used as the time of day; anything else keeps midnight and
// carries the sequence as the stem.
func matchDeviceCamera(base string) (Stamp, bool) {
	m := deviceCameraRe.FindStringSubmatch(base)
	if m == nil {
		return Stamp{}, false
	}
	seq := m[4]
	if len(seq) == 6 {
		if st, ok := stampFromGroups([]string{m[1], m[2], m[3], seq[0:2], seq[2:4], seq[4:6]}); ok {
			return st, true
		}
	}
	st, ok := stampFromGroups([]string{m[1], m[2], m[3], "0", "0", "0"})
	if !ok {
		return Stamp{}, false
	}
	st.Stem = Sanitize(seq)
	return st, true
}

// A name this system produced earlier. Prefix and index are discarded.
func matchOrchestrated(base string) (Stamp, bool) {
	m := orchestratedRe.FindStringSubmatch(base)
	if m == nil {
		return Stamp{}, false
	}
	st, ok := stampFromGroups(m[1:7])
	if !ok {
		return Stamp{}, false
	}
	st.Tag = m[7]
	st.Stem = m[8]
	return st, true
}

// YYYY-M-D--<subject>.pdf
func matchEmailSubject(base string) (Stamp, bool) {
	m := emailSubjectRe.FindStringSubmatch(base)
	if m == nil {
		return Stamp{}, false
	}
	st, ok := stampFromGroups([]string{m[1], m[2], m[3], "0", "0", "0"})
	if !ok {
		return Stamp{}, false
	}
	st.Stem = Sanitize(m[4])
	return st, true
}

// Any six numeric groups anywhere in the name that form a valid timestamp.
func matchGeneric(base string) (Stamp, bool) {
	for _, m := range genericRe.FindAllStringSubmatch(base, -1) {
		if st, ok := stampFromGroups(m[1:7]); ok {
			return st, true
		}
	}
	return Stamp{}, false
}

// stampFromGroups validates year, month, day, hour, minute, second strings
// and builds a wall-clock timestamp. Two digit years map to 20YY.
func stampFromGroups(g []string) (Stamp, bool) {
	if len(g) != 6 {
		return Stamp{}, false
	}
	var v [6]int
	for i, s := range g {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Stamp{}, false
		}
		v[i] = n
	}

	switch len(g[0]) {
	case 2:
		v[0] += 2000
	case 4:
	default:
		return Stamp{}, false
	}

	year, month, day, hour, minute, second := v[0], v[1], v[2], v[3], v[4], v[5]
	if year < 1970 || year > 2099 {
		return Stamp{}, false
	}
	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 || second > 59 {
		return Stamp{}, false
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	// time.Date normalizes Feb 30 into March.
	if t.Day() != day {
		return Stamp{}, false
	}
	return Stamp{Time: t}, true
}

var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9._]+`)

// MaxStemLength bounds the original-name suffix carried in canonical names.
const MaxStemLength = 80

// Sanitize reduces s to characters safe in a canonical name.
func Sanitize(s string) string {
	s = unsafeRun.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_.")
	if len(s) > MaxStemLength {
		s = strings.TrimRight(s[:MaxStemLength], "_.")
	}
	return s
}
