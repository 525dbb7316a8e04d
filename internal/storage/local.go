package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Local writes objects into a directory tree.
type Local struct {
	BaseDir string
}

// NewLocal creates a Local writer rooted at baseDir.
func NewLocal(baseDir string) *Local {
	return &Local{BaseDir: baseDir}
}

// Write stores r at BaseDir/key. The object only appears once complete.
func (l *Local) Write(ctx context.Context, key string, r io.Reader) (Location, error) {
	if l == nil {
		return Location{}, fmt.Errorf("local writer uninitialized")
	}
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}

	k, err := cleanKey(key)
	if err != nil {
		return Location{}, err
	}
	target := filepath.Join(l.BaseDir, filepath.FromSlash(k))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Location{}, fmt.Errorf("ensure dir: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+"."+uuid.NewString()+".tmp")
	file, err := os.Create(tmp)
	if err != nil {
		return Location{}, fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(tmp)
		return Location{}, fmt.Errorf("write file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return Location{}, fmt.Errorf("sync file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return Location{}, fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return Location{}, fmt.Errorf("rename temp file: %w", err)
	}

	return Location{Path: target, URL: "file://" + filepath.ToSlash(target)}, nil
}
