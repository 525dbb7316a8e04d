package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocal_Write(t *testing.T) {
	dir := t.TempDir()
	w := NewLocal(dir)

	loc, err := w.Write(context.Background(), "raw/DOC-00001.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := filepath.Join(dir, "raw", "DOC-00001.pdf")
	if loc.Path != want {
		t.Errorf("Path = %q, want %q", loc.Path, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "%PDF-1.4" {
		t.Errorf("content = %q", data)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "raw"))
	if len(entries) != 1 {
		t.Errorf("expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestLocal_WriteOverwrites(t *testing.T) {
	dir := t.TempDir()
	w := NewLocal(dir)
	ctx := context.Background()

	w.Write(ctx, "ocr/a.pdf", strings.NewReader("first"))
	if _, err := w.Write(ctx, "ocr/a.pdf", strings.NewReader("second")); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "ocr", "a.pdf"))
	if string(data) != "second" {
		t.Errorf("content = %q, want second", data)
	}
}

func TestLocal_KeyCannotEscape(t *testing.T) {
	dir := t.TempDir()
	w := NewLocal(filepath.Join(dir, "mirror"))

	loc, err := w.Write(context.Background(), "../../etc/evil.pdf", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(loc.Path, filepath.Join(dir, "mirror")) {
		t.Errorf("key escaped mirror root: %s", loc.Path)
	}

	if _, err := w.Write(context.Background(), "", strings.NewReader("x")); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestLocal_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLocal(t.TempDir()).Write(ctx, "a.pdf", strings.NewReader("x")); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		opts    Options
		wantNil bool
		wantErr bool
	}{
		{name: "none", opts: Options{Driver: "none"}, wantNil: true},
		{name: "empty", opts: Options{}, wantNil: true},
		{name: "local", opts: Options{Driver: "local", LocalDir: t.TempDir()}},
		{name: "local without dir", opts: Options{Driver: "local"}, wantErr: true},
		{name: "s3 without bucket", opts: Options{Driver: "s3"}, wantErr: true},
		{name: "unknown", opts: Options{Driver: "ftp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := New(ctx, tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (w == nil) != tt.wantNil {
				t.Errorf("writer = %v, wantNil %v", w, tt.wantNil)
			}
		})
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	os.WriteFile(src, []byte("body"), 0o644)

	mirror := filepath.Join(dir, "mirror")
	if _, err := WriteFile(context.Background(), NewLocal(mirror), "raw/src.pdf", src); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(mirror, "raw", "src.pdf")); err != nil {
		t.Errorf("mirrored file missing: %v", err)
	}

	if _, err := WriteFile(context.Background(), NewLocal(mirror), "raw/x.pdf", filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("expected error for missing source")
	}
}
