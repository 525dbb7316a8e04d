// Package fsutil holds the file moves and copies the pipeline uses to hand
// documents between stage directories.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Entry is a regular file found in a stage directory.
type Entry struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// CopyFile copies src to dst atomically: the data is written to a hidden
// temp file next to dst, synced, then renamed into place.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}

	tempPath := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+"."+uuid.NewString()+".tmp")
	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tempPath)
		return fmt.Errorf("write file: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tempPath)
		return fmt.Errorf("sync file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tempPath, dst); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// MoveFile renames src to dst, falling back to copy+remove when the two
// paths live on different filesystems.
func MoveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := CopyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// MoveInto moves src into dir keeping its base name. If a file with that
// name already exists in dir, a timestamp suffix (and a counter, when that
// is taken too) is added instead of overwriting it. The final path is
// returned.
func MoveInto(src, dir string, now time.Time) (string, error) {
	return MoveIntoAs(src, dir, filepath.Base(src), now)
}

// MoveIntoAs is MoveInto with an explicit target name.
func MoveIntoAs(src, dir, name string, now time.Time) (string, error) {
	dst := FreeName(dir, name, now)
	if err := MoveFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// FreeName returns a path in dir for name that does not exist yet.
func FreeName(dir, name string, now time.Time) string {
	dst := filepath.Join(dir, name)
	if !Exists(dst) {
		return dst
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext) + "." + now.UTC().Format("20060102T150405")
	dst = filepath.Join(dir, stem+ext)
	for n := 2; Exists(dst); n++ {
		dst = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
	}
	return dst
}

// ListFiles returns the visible regular files in dir whose extension
// matches ext case-insensitively (empty ext matches everything), oldest
// modification time first, ties broken by name.
func ListFiles(dir, ext string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if ext != "" && !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Vanished between ReadDir and Info.
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		entries = append(entries, Entry{
			Name:    name,
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].ModTime.Before(entries[j].ModTime)
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// CountEntries returns the number of directory entries in dir, hidden
// temp files excluded.
func CountEntries(dir string) (int, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, de := range dirEntries {
		if strings.HasPrefix(de.Name(), ".") {
			continue
		}
		n++
	}
	return n, nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
