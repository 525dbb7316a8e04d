package naming

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/scanflow/internal/clock"
)

func TestCanonicalizer_Match(t *testing.T) {
	c := New(clock.NewFake(time.Date(2024, 3, 15, 10, 20, 30, 0, time.UTC)))

	tests := []struct {
		name      string
		original  string
		tag       string
		want      string
		matchedBy string
	}{
		{
			name:      "app export with mixed separators",
			original:  "scan_2021-01-08-08.43-37.pdf",
			tag:       "adf",
			want:      "DOC-00007-2021-01-08-08-43-37-adf.pdf",
			matchedBy: "app-export",
		},
		{
			name:      "app export two digit year and trailing junk",
			original:  "Scan.21.1.8.8.43.37 (2).PDF",
			tag:       "app",
			want:      "DOC-00007-2021-01-08-08-43-37-app.pdf",
			matchedBy: "app-export",
		},
		{
			name:      "adf scanner",
			original:  "20210108_084337_ABC123_0001.pdf",
			tag:       "adf",
			want:      "DOC-00007-2021-01-08-08-43-37-adf.pdf",
			matchedBy: "adf-scanner",
		},
		{
			name:      "device camera with time sequence",
			original:  "IMG_20210108_084337.pdf",
			tag:       "app",
			want:      "DOC-00007-2021-01-08-08-43-37-app.pdf",
			matchedBy: "device-camera",
		},
		{
			name:      "device camera with counter sequence",
			original:  "IMG_20210108_0042.pdf",
			tag:       "app",
			want:      "DOC-00007-2021-01-08-00-00-00-app-0042.pdf",
			matchedBy: "device-camera",
		},
		{
			name:      "previously orchestrated keeps tag and stem",
			original:  "OLD-00012-2020-05-06-07-08-09-mail-Invoice.pdf",
			tag:       "adf",
			want:      "DOC-00007-2020-05-06-07-08-09-mail-Invoice.pdf",
			matchedBy: "orchestrated",
		},
		{
			name:      "email subject",
			original:  "2021-1-8--Invoice March.pdf",
			tag:       "mail",
			want:      "DOC-00007-2021-01-08-00-00-00-mail-Invoice_March.pdf",
			matchedBy: "email-subject",
		},
		{
			name:      "generic six groups",
			original:  "report_v2_2021.01.08_08.43.37.pdf",
			tag:       "app",
			want:      "DOC-00007-2021-01-08-08-43-37-app.pdf",
			matchedBy: "generic",
		},
		{
			name:      "generic skips an implausible group run",
			original:  "ref-99-99-99-99-99-99_2022-03-04-05-06-07.pdf",
			tag:       "app",
			want:      "DOC-00007-2022-03-04-05-06-07-app.pdf",
			matchedBy: "generic",
		},
		{
			name:      "directory is ignored",
			original:  filepath.Join("/srv", "01_scanner_out", "20210108_084337_X_1.pdf"),
			tag:       "adf",
			want:      "DOC-00007-2021-01-08-08-43-37-adf.pdf",
			matchedBy: "adf-scanner",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{OriginalName: tt.original, Prefix: "DOC", Index: 7, SourceTag: tt.tag}
			got, ok := c.Match(req)
			if !ok {
				t.Fatalf("Match(%q) did not match", tt.original)
			}
			if got != tt.want {
				t.Errorf("Match(%q) = %q, want %q", tt.original, got, tt.want)
			}
			by, _ := c.MatchedBy(req)
			if by != tt.matchedBy {
				t.Errorf("matched by %q, want %q", by, tt.matchedBy)
			}
		})
	}
}

func TestCanonicalizer_Unrecognized(t *testing.T) {
	c := New(clock.NewFake(time.Date(2024, 3, 15, 10, 20, 30, 0, time.UTC)))

	for _, original := range []string{
		"random.pdf",
		"scan_2021-02-30-08.43-37.pdf",
		"scan_1969-01-08-08.43-37.pdf",
		"scan_2021-01-08-25.43-37.pdf",
		"IMG_20211332_0001.pdf",
	} {
		t.Run(original, func(t *testing.T) {
			req := Request{OriginalName: original, Prefix: "DOC", Index: 1, SourceTag: "adf"}
			if name, ok := c.Match(req); ok {
				t.Fatalf("expected no match, got %q", name)
			}
			_, err := c.Name(req, Strict)
			if !errors.Is(err, ErrUnrecognized) {
				t.Errorf("expected ErrUnrecognized, got %v", err)
			}
		})
	}
}

func TestCanonicalizer_LenientFallback(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 20, 30, 0, time.UTC)
	c := New(clock.NewFake(now))

	got, err := c.Name(Request{OriginalName: "My Scan (1).pdf", Prefix: "DOC", Index: 0, SourceTag: "app"}, Lenient)
	if err != nil {
		t.Fatalf("lenient Name should not fail: %v", err)
	}
	if got != "DOC-00000-2024-03-15-10-20-30-app-My_Scan_1.pdf" {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(got, now.Format("2006-01-02")) {
		t.Errorf("fallback name %q should contain the current date", got)
	}
}

func TestCanonicalizer_CustomMatchers(t *testing.T) {
	c := &Canonicalizer{
		Matchers: []Matcher{{
			Name: "always",
			Match: func(string) (Stamp, bool) {
				return Stamp{Time: time.Date(2000, 1, 2, 3, 4, 5, 0, time.UTC), Stem: "x"}, true
			},
		}},
		Clock: clock.Real(),
	}
	got, _ := c.Match(Request{OriginalName: "anything.pdf", Prefix: "P", Index: 42, SourceTag: "t"})
	if got != "P-00042-2000-01-02-03-04-05-t-x.pdf" {
		t.Errorf("got %q", got)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Invoice March", "Invoice_March"},
		{"  leading and trailing  ", "leading_and_trailing"},
		{"Rechnung: Müller/2021", "Rechnung_M_ller_2021"},
		{"keep.dots_and_underscores", "keep.dots_and_underscores"},
		{"---", ""},
		{strings.Repeat("a", 100), strings.Repeat("a", MaxStemLength)},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRunningIndex(t *testing.T) {
	dir := t.TempDir()
	n, err := RunningIndex(dir)
	if err != nil || n != 0 {
		t.Fatalf("empty dir: %d, %v", n, err)
	}
	for _, name := range []string{"a.pdf", "b.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	n, err = RunningIndex(dir)
	if err != nil || n != 2 {
		t.Errorf("expected 2, got %d (%v)", n, err)
	}
}
