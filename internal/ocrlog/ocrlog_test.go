package ocrlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/encoding/unicode"
)

const germanReport = "Hot Folder: C:\\OCR\\03_ocr_in\r\n" +
	"Datei: DOC-00001-2021-01-08-08-43-37-adf.pdf\r\n" +
	"Verarbeitete Seiten: 3.\r\n" +
	"Erkennungszeit: 0 Stunden 1 Minuten 5 Sekunden.\r\n" +
	"Fehler/Warnungen: 0 / 2.\r\n" +
	"Nicht eindeutige Zeichen: 1 % (12 / 1500).\r\n"

const englishReport = "Processed pages: 12.\n" +
	"Recognition time: 1 hours 2 minutes 3 seconds.\n" +
	"Errors/warnings: 1 / 0.\n" +
	"Uncertain characters: 4 % (40 / 1000).\n"

func intp(n int) *int { return &n }

func equalPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func assertMetrics(t *testing.T, got, want Metrics) {
	t.Helper()
	fields := []struct {
		name      string
		got, want *int
	}{
		{"Pages", got.Pages, want.Pages},
		{"TimeSeconds", got.TimeSeconds, want.TimeSeconds},
		{"Errors", got.Errors, want.Errors},
		{"Warnings", got.Warnings, want.Warnings},
		{"CharsTotal", got.CharsTotal, want.CharsTotal},
		{"CharsWrong", got.CharsWrong, want.CharsWrong},
	}
	for _, f := range fields {
		if !equalPtr(f.got, f.want) {
			t.Errorf("%s = %v, want %v", f.name, deref(f.got), deref(f.want))
		}
	}
}

func deref(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		want        Metrics
		successful  bool
		wantMessage string
	}{
		{
			name: "german full report",
			text: germanReport,
			want: Metrics{
				Pages: intp(3), TimeSeconds: intp(65), Errors: intp(0),
				Warnings: intp(2), CharsTotal: intp(1500), CharsWrong: intp(12),
			},
			successful: true,
		},
		{
			name: "english full report",
			text: englishReport,
			want: Metrics{
				Pages: intp(12), TimeSeconds: intp(3723), Errors: intp(1),
				Warnings: intp(0), CharsTotal: intp(1000), CharsWrong: intp(40),
			},
			successful: true,
		},
		{
			name:        "german error only",
			text:        "08.01.2021 08:43:37 Fehler: Die Datei ist beschädigt.\r\n",
			successful:  false,
			wantMessage: "Die Datei ist beschädigt.",
		},
		{
			name:        "english error only",
			text:        "1/8/2021 8:43:37 AM Error: The file is damaged.\n",
			successful:  false,
			wantMessage: "The file is damaged.",
		},
		{
			name:       "partial report",
			text:       "Verarbeitete Seiten: 7.\nunrelated line\n",
			want:       Metrics{Pages: intp(7)},
			successful: true,
		},
		{
			name:       "empty report",
			text:       "",
			successful: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Parse(tt.text)
			assertMetrics(t, r.Metrics, tt.want)
			if r.Successful != tt.successful {
				t.Errorf("Successful = %v, want %v", r.Successful, tt.successful)
			}
			if r.ErrorMessage != tt.wantMessage {
				t.Errorf("ErrorMessage = %q, want %q", r.ErrorMessage, tt.wantMessage)
			}
		})
	}
}

func TestParse_ErrorOnlyHasNoMetrics(t *testing.T) {
	r := Parse("08.01.2021 08:43:37 Fehler: Seite 2 konnte nicht gelesen werden.")
	if r.Successful {
		t.Error("expected unsuccessful report")
	}
	if !r.Metrics.Empty() {
		t.Errorf("expected all metrics nil, got %+v", r.Metrics)
	}
}

func TestParse_CountsLineIsNotAFailure(t *testing.T) {
	r := Parse("Fehler/Warnungen: 3 / 0.")
	if !r.Successful {
		t.Error("errors/warnings counter must not mark the report failed")
	}
}

func TestDecode(t *testing.T) {
	withBOM, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String(germanReport)
	if err != nil {
		t.Fatal(err)
	}
	noBOM, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().String(germanReport)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		in   []byte
	}{
		{"utf16le with bom", []byte(withBOM)},
		{"utf16le without bom", []byte(noBOM)},
		{"utf8", []byte(germanReport)},
		{"utf8 with bom", append([]byte{0xEF, 0xBB, 0xBF}, germanReport...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.in)
			if strings.TrimPrefix(got, "\ufeff") != germanReport {
				t.Errorf("Decode = %q", got)
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String(germanReport)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "Hot Folder Log.txt")
	if err := os.WriteFile(path, []byte(encoded), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if !r.Successful || r.Pages == nil || *r.Pages != 3 {
		t.Errorf("unexpected report %+v", r)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.txt")); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
