// Package repair attempts to produce a clean copy of a PDF the OCR engine
// choked on. Success is judged only by a usable output file appearing.
package repair

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/jackzampolin/scanflow/internal/fsutil"
)

// Marker is appended to the stem of repaired copies so a copy that fails
// again is not repaired a second time.
const Marker = "_repaired"

// ErrNoOutput is returned when the repair tool exits without producing a
// usable file.
var ErrNoOutput = errors.New("repair produced no output")

// Repairer writes a cleaned copy of inputPath into outDir and returns its
// path. The copy is named with MarkedName.
type Repairer interface {
	Repair(ctx context.Context, inputPath, outDir string) (string, error)
}

// HasMarker reports whether name is a repaired copy.
func HasMarker(name string) bool {
	ext := filepath.Ext(name)
	return strings.HasSuffix(strings.TrimSuffix(name, ext), Marker)
}

// StripMarker returns the name the document had before repair.
func StripMarker(name string) string {
	if !HasMarker(name) {
		return name
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(strings.TrimSuffix(name, ext), Marker) + ext
}

// MarkedName returns the repaired-copy name for name.
func MarkedName(name string) string {
	if HasMarker(name) {
		return name
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + Marker + ext
}

// Command runs an external repair utility. Args may contain the
// placeholders {input}, {outdir} and {output}.
type Command struct {
	Path    string
	Args    []string
	Timeout time.Duration
}

// Repair runs the tool into a scratch directory and moves the result into
// outDir once it is complete.
func (c *Command) Repair(ctx context.Context, inputPath, outDir string) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	scratch, err := os.MkdirTemp("", "scanflow-repair-*")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	name := MarkedName(filepath.Base(inputPath))
	scratchOut := filepath.Join(scratch, name)

	r := strings.NewReplacer("{input}", inputPath, "{outdir}", scratch, "{output}", scratchOut)
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = r.Replace(a)
	}

	cmd := exec.CommandContext(ctx, c.Path, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s failed: %w (output: %s)", filepath.Base(c.Path), err, strings.TrimSpace(string(output)))
	}

	return deliver(scratchOut, outDir, name)
}

// Optimizer rewrites the PDF with pdfcpu in relaxed validation mode, which
// drops broken objects and rebuilds the cross reference table.
type Optimizer struct{}

// Repair implements Repairer.
func (Optimizer) Repair(ctx context.Context, inputPath, outDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	scratch, err := os.MkdirTemp("", "scanflow-repair-*")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	name := MarkedName(filepath.Base(inputPath))
	scratchOut := filepath.Join(scratch, name)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.OptimizeFile(inputPath, scratchOut, conf); err != nil {
		return "", fmt.Errorf("pdfcpu optimize failed: %w", err)
	}
	if pages, err := api.PageCountFile(scratchOut); err != nil || pages == 0 {
		return "", fmt.Errorf("%w: optimized copy has no readable pages", ErrNoOutput)
	}

	return deliver(scratchOut, outDir, name)
}

func deliver(scratchOut, outDir, name string) (string, error) {
	info, err := os.Stat(scratchOut)
	if err != nil || info.Size() == 0 {
		return "", ErrNoOutput
	}
	dst := filepath.Join(outDir, name)
	if err := fsutil.MoveFile(scratchOut, dst); err != nil {
		return "", fmt.Errorf("failed to move repaired copy: %w", err)
	}
	return dst, nil
}

// New returns a Command repairer when path is set and the pdfcpu
// Optimizer otherwise.
func New(path string, args []string, timeout time.Duration) Repairer {
	if path == "" {
		return Optimizer{}
	}
	return &Command{Path: path, Args: args, Timeout: timeout}
}
