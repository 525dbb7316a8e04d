// Package storage mirrors archived documents to a second location.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Driver names accepted by New.
const (
	DriverNone  = "none"
	DriverLocal = "local"
	DriverS3    = "s3"
)

// Writer stores a stream under a slash-separated key.
type Writer interface {
	Write(ctx context.Context, key string, r io.Reader) (Location, error)
}

// Location describes where an object ended up.
type Location struct {
	Path string `json:"path" yaml:"path"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Options selects and configures a Writer.
type Options struct {
	Driver   string
	LocalDir string
	S3       S3Config
}

// New returns the Writer for opts.Driver. The none driver (or an empty
// driver) returns a nil Writer and no error.
func New(ctx context.Context, opts Options) (Writer, error) {
	switch strings.ToLower(opts.Driver) {
	case "", DriverNone:
		return nil, nil
	case DriverLocal:
		if opts.LocalDir == "" {
			return nil, fmt.Errorf("local mirror needs a directory")
		}
		return NewLocal(opts.LocalDir), nil
	case DriverS3:
		return NewS3(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("unknown mirror driver %q", opts.Driver)
	}
}

// WriteFile mirrors the file at p under key.
func WriteFile(ctx context.Context, w Writer, key, p string) (Location, error) {
	f, err := os.Open(p)
	if err != nil {
		return Location{}, err
	}
	defer f.Close()
	return w.Write(ctx, key, f)
}

// cleanKey normalizes key and rejects keys that escape the mirror root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + filepath.ToSlash(key))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("empty mirror key %q", key)
	}
	return k, nil
}
