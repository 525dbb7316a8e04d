package pdftext

import (
	"context"
	"fmt"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// ContentProbe decodes the text shown on each page through the page fonts,
// so multi-byte CID strings count one character per glyph.
type ContentProbe struct{}

// TextLength implements Probe.
func (ContentProbe) TextLength(ctx context.Context, path string) (n int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// The reader panics on some malformed object graphs.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("read %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return 0, fmt.Errorf("page %d: %w", i, err)
		}
		n += countVisible(text)
	}
	return n, nil
}

func countVisible(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) && r != 0 {
			n++
		}
	}
	return n
}
