// Package naming derives canonical archival filenames from whatever the
// scanner, mobile app or mail fetcher happened to call a document.
package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackzampolin/scanflow/internal/clock"
	"github.com/jackzampolin/scanflow/internal/fsutil"
)

// ErrUnrecognized is returned under the Strict policy when no matcher
// recognizes the inbound name.
var ErrUnrecognized = errors.New("unrecognized filename")

// Policy decides what happens when no matcher applies.
type Policy int

const (
	// Strict sources are expected to produce well-formed names.
	Strict Policy = iota
	// Lenient sources fall back to the current time plus the original stem.
	Lenient
)

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// Request carries everything needed to build one canonical name.
type Request struct {
	OriginalName string
	Prefix       string
	Index        int
	SourceTag    string
}

// Canonicalizer applies an ordered matcher chain.
type Canonicalizer struct {
	Matchers []Matcher
	Clock    clock.Clock
}

// New returns a Canonicalizer using DefaultMatchers.
func New(c clock.Clock) *Canonicalizer {
	if c == nil {
		c = clock.Real()
	}
	return &Canonicalizer{Matchers: DefaultMatchers(), Clock: c}
}

// Match applies the matcher chain only; the first match wins.
func (c *Canonicalizer) Match(req Request) (string, bool) {
	_, name, ok := c.match(req)
	return name, ok
}

// MatchedBy returns the name of the matcher that recognizes req, if any.
func (c *Canonicalizer) MatchedBy(req Request) (string, bool) {
	m, _, ok := c.match(req)
	return m, ok
}

func (c *Canonicalizer) match(req Request) (string, string, bool) {
	base := filepath.Base(req.OriginalName)
	for _, m := range c.Matchers {
		st, ok := m.Match(base)
		if !ok {
			continue
		}
		tag := st.Tag
		if tag == "" {
			tag = req.SourceTag
		}
		return m.Name, Format(req.Prefix, req.Index, st.Time, tag, st.Stem), true
	}
	return "", "", false
}

// Name canonicalizes req according to policy.
func (c *Canonicalizer) Name(req Request, policy Policy) (string, error) {
	if name, ok := c.Match(req); ok {
		return name, nil
	}
	if policy == Strict {
		return "", fmt.Errorf("%w: %s", ErrUnrecognized, filepath.Base(req.OriginalName))
	}

	base := filepath.Base(req.OriginalName)
	stem := Sanitize(strings.TrimSuffix(base, filepath.Ext(base)))
	return Format(req.Prefix, req.Index, c.Clock.Now(), req.SourceTag, stem), nil
}

// Format renders <prefix>-<index>-<YYYY>-<MM>-<DD>-<HH>-<MM>-<SS>-<tag>[-<stem>].pdf.
func Format(prefix string, index int, ts time.Time, tag, stem string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s-%05d-%s-%s", prefix, index, ts.Format("2006-01-02-15-04-05"), tag)
	if stem != "" {
		b.WriteString("-")
		b.WriteString(stem)
	}
	b.WriteString(".pdf")
	return b.String()
}

// RunningIndex is the number of entries in the raw archive. It is an
// ordering aid only and may repeat.
func RunningIndex(archiveDir string) (int, error) {
	return fsutil.CountEntries(archiveDir)
}
