package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// buildPDF lays out objects 1..n with a correct cross-reference table.
func buildPDF(objects ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f\r\n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func stream(data string) string {
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(data), data)
}

func page(parent, fonts, contents string) string {
	return fmt.Sprintf("<< /Type /Page /Parent %s /MediaBox [0 0 612 792] /Resources << /Font << %s >> >> /Contents %s >>", parent, fonts, contents)
}

const helvetica = "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"

// toUnicode maps the two-byte codes 0141..015A to A..Z.
const toUnicode = `/CIDInit /ProcSet findresource begin
12 dict begin
begincmap
/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def
/CMapName /Adobe-Identity-UCS def
/CMapType 2 def
1 begincodespacerange
<0000> <FFFF>
endcodespacerange
1 beginbfrange
<0141> <015A> <0041>
endbfrange
endcmap
CMapName currentdict /CMap defineresource pop
end
end`

// cidGlyphs returns a hex string of n two-byte glyph codes.
func cidGlyphs(n int) string {
	var b strings.Builder
	b.WriteByte('<')
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%04X", 0x0141+i%26)
	}
	b.WriteByte('>')
	return b.String()
}

func singlePage(content string, fonts ...string) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		page("2 0 R", "/F1 4 0 R", "5 0 R"),
		helvetica,
		stream(content),
	}
	return buildPDF(append(objects, fonts...)...)
}

func TestContentProbe_TextLength(t *testing.T) {
	cidFont := buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		page("2 0 R", "/F1 4 0 R", "5 0 R"),
		"<< /Type /Font /Subtype /Type0 /BaseFont /ScanSans /Encoding /Identity-H /DescendantFonts [6 0 R] /ToUnicode 7 0 R >>",
		stream("BT /F1 10 Tf 72 712 Td "+cidGlyphs(51)+" Tj ET"),
		"<< /Type /Font /Subtype /CIDFontType2 /BaseFont /ScanSans /CIDSystemInfo << /Registry (Adobe) /Ordering (Identity) /Supplement 0 >> >>",
		stream(toUnicode),
	)
	twoPages := buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>",
		page("2 0 R", "/F1 5 0 R", "6 0 R"),
		page("2 0 R", "/F1 5 0 R", "7 0 R"),
		helvetica,
		stream("BT /F1 12 Tf 72 712 Td (first page) Tj ET"),
		stream("BT /F1 12 Tf 72 712 Td [(sec) -20 (ond)] TJ ET"),
	)

	tests := []struct {
		name string
		pdf  []byte
		want int
	}{
		{"simple font", singlePage("BT /F1 12 Tf 72 712 Td (Hello World) Tj ET"), 10},
		{"no text operators", singlePage("q Q"), 0},
		{"image only page", singlePage("q 612 0 0 792 0 0 cm Q"), 0},
		{"two byte cid font counts glyphs", cidFont, 51},
		{"pages are summed", twoPages, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "doc.pdf")
			if err := os.WriteFile(path, tt.pdf, 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := (ContentProbe{}).TextLength(context.Background(), path)
			if err != nil {
				t.Fatalf("TextLength: %v", err)
			}
			if got != tt.want {
				t.Errorf("TextLength = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestContentProbe_Cancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, singlePage("BT /F1 12 Tf (x) Tj ET"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (ContentProbe{}).TextLength(ctx, path); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestContentProbe_InvalidPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.pdf")
	if err := os.WriteFile(path, []byte("definitely not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (ContentProbe{}).TextLength(context.Background(), path); err == nil {
		t.Error("expected error for invalid PDF")
	}
}

func TestCommandProbe(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	p := &CommandProbe{Path: sh, Args: []string{"-c", `printf 'a b\n c\t'; test "$0" = "/tmp/in.pdf"`, "{input}"}}
	n, err := p.TextLength(context.Background(), "/tmp/in.pdf")
	if err != nil {
		t.Fatalf("TextLength: %v", err)
	}
	if n != 3 {
		t.Errorf("got %d, want 3", n)
	}

	failing := &CommandProbe{Path: sh, Args: []string{"-c", "exit 1"}}
	if _, err := failing.TextLength(context.Background(), "/tmp/in.pdf"); err == nil {
		t.Error("expected error from failing extractor")
	}
}

func TestNew(t *testing.T) {
	if _, ok := New("", nil).(ContentProbe); !ok {
		t.Error("empty command should select the content probe")
	}
	if _, ok := New("pdftotext", []string{"{input}", "-"}).(*CommandProbe); !ok {
		t.Error("command should select the external probe")
	}
}
