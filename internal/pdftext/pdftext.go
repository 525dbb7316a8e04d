// Package pdftext estimates how much extractable text a PDF already
// carries, so documents that don't need OCR can skip the engine.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Probe reports the amount of text in a PDF.
type Probe interface {
	TextLength(ctx context.Context, path string) (int, error)
}

// CommandProbe runs an external extractor such as pdftotext and counts the
// non-space runes it prints. Args may contain {input}.
type CommandProbe struct {
	Path    string
	Args    []string
	Timeout time.Duration
}

// TextLength implements Probe.
func (c *CommandProbe) TextLength(ctx context.Context, path string) (int, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = strings.ReplaceAll(a, "{input}", path)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("%s failed: %w (output: %s)", filepath.Base(c.Path), err, strings.TrimSpace(stderr.String()))
	}

	return countVisible(string(out)), nil
}

// New returns a CommandProbe when path is set and a ContentProbe otherwise.
func New(path string, args []string) Probe {
	if path == "" {
		return ContentProbe{}
	}
	return &CommandProbe{Path: path, Args: args, Timeout: time.Minute}
}
