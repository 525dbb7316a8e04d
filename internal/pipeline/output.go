package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackzampolin/scanflow/internal/admission"
	"github.com/jackzampolin/scanflow/internal/fsutil"
	"github.com/jackzampolin/scanflow/internal/hasher"
	"github.com/jackzampolin/scanflow/internal/ocrlog"
	"github.com/jackzampolin/scanflow/internal/registry"
	"github.com/jackzampolin/scanflow/internal/repair"
	"github.com/jackzampolin/scanflow/internal/scheduler"
)

// ReportSuffix is appended to the canonical stem of archived OCR reports.
const ReportSuffix = ".ocr.txt"

// DrainOutput collects finished documents from the OCR output directory.
// A sidecar report with no PDF next to it is an orphan: successful ones are
// archived as stale, failed ones run the admission failure path.
func (d *Driver) DrainOutput(ctx context.Context) error {
	log := d.stageLogger(TaskOCROutput)

	files, err := fsutil.ListFiles(d.home.OCROutPath(), ".pdf")
	if err != nil {
		return fmt.Errorf("list OCR output: %w", err)
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.collectOutput(ctx, f, log.With("file", f.Name)); err != nil {
			if scheduler.IsHalt(err) || errors.Is(err, context.Canceled) {
				return err
			}
			log.Warn("cannot collect OCR output, retrying next cycle", "file", f.Name, "error", err)
		}
	}

	if len(files) == 0 && fsutil.Exists(d.reportPath()) {
		return d.handleOrphanReport(ctx, log)
	}
	return nil
}

func (d *Driver) collectOutput(ctx context.Context, f fsutil.Entry, log *slog.Logger) error {
	// The PDF and its report are collected together once both settled.
	for _, p := range []string{f.Path, d.reportPath()} {
		settled, err := d.cfg.OutputStability.Settled(p)
		if p != f.Path && os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return err
		}
		if !settled {
			log.Debug("OCR output still being written", "path", p)
			return nil
		}
	}

	name := repair.StripMarker(f.Name)
	log = log.With("canonical", name)
	archived := filepath.Join(d.home.ArchiveOCRPath(), name)

	for _, dst := range []string{filepath.Join(d.home.ConsumptionPath(), name), archived} {
		if err := fsutil.CopyFile(f.Path, dst); err != nil {
			return fmt.Errorf("deliver OCR output: %w", err)
		}
	}

	hash, err := hasher.File(f.Path)
	if err != nil {
		return fmt.Errorf("hash OCR output: %w", err)
	}
	if err := d.registry.MarkOCRComplete(ctx, name, hash); err != nil {
		if !isRegistryRejection(err) {
			return storageFailure("mark ocr complete", err)
		}
		log.Warn("OCR completion not recorded", "error", err)
		if err := d.registry.AppendLog(ctx, name, "OCR output not recorded: "+err.Error()); err != nil {
			return storageFailure("append log", err)
		}
	}

	seconds, err := d.collectReport(ctx, name, log)
	if err != nil {
		return err
	}

	d.mirror(ctx, "ocr/"+name, archived, log)

	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		log.Warn("cannot remove OCR output", "error", err)
	}
	if err := d.admission.Complete(f.Name); err != nil {
		log.Warn("cannot clear OCR slot", "error", err)
	}
	d.metrics.Completed(seconds)
	log.Info("OCR complete")
	return nil
}

// collectReport parses, records and archives the sidecar report for name.
// It returns the recognition time when the report carried one.
func (d *Driver) collectReport(ctx context.Context, name string, log *slog.Logger) (*int, error) {
	path := d.reportPath()
	if !fsutil.Exists(path) {
		log.Debug("no OCR report")
		return nil, nil
	}

	var seconds *int
	report, err := ocrlog.ParseFile(path)
	if err != nil {
		log.Warn("cannot parse OCR report", "error", err)
	} else {
		seconds = report.Metrics.TimeSeconds
		if err := d.registry.RecordOCRMetrics(ctx, name, report.Metrics); err != nil {
			if !errors.Is(err, registry.ErrNotFound) {
				return nil, storageFailure("record ocr metrics", err)
			}
			log.Warn("metrics not recorded", "error", err)
		}
		if !report.Successful {
			log.Warn("OCR report lists errors", "message", report.ErrorMessage)
			if err := d.registry.AppendLog(ctx, name, "OCR report: "+report.ErrorMessage); err != nil {
				return nil, storageFailure("append log", err)
			}
		}
	}

	dst := filepath.Join(d.home.LogsPath(), ReportArchiveName(name))
	if err := fsutil.MoveFile(path, dst); err != nil {
		log.Warn("cannot archive OCR report", "error", err)
	}
	return seconds, nil
}

func (d *Driver) handleOrphanReport(ctx context.Context, log *slog.Logger) error {
	if d.admission.Paused() {
		log.Debug("automation paused, leaving orphan report")
		return nil
	}
	path := d.reportPath()
	settled, err := d.cfg.OutputStability.Settled(path)
	if err != nil {
		return err
	}
	if !settled {
		log.Debug("OCR report still being written")
		return nil
	}

	report, err := ocrlog.ParseFile(path)
	if err != nil {
		return fmt.Errorf("parse orphan report: %w", err)
	}

	now := d.clock.Now()
	if report.Successful {
		dst, err := fsutil.MoveIntoAs(path, d.home.LogsPath(), StaleReportName(now), now)
		if err != nil {
			return fmt.Errorf("archive stale report: %w", err)
		}
		log.Info("successful report without output archived", "moved_to", dst)
		return nil
	}

	dst, err := fsutil.MoveInto(path, d.home.OCRFailPath(), now)
	if err != nil {
		return fmt.Errorf("move failed report: %w", err)
	}
	log.Error("OCR engine reported a failure", "message", report.ErrorMessage, "report", dst)

	_, err = d.admission.HandleFailedReport(ctx, report.ErrorMessage)
	d.metrics.SetPaused(d.admission.Paused())
	return admissionErr(err)
}

// StaleReportName is the file name a successful report without output is
// archived as.
func StaleReportName(now time.Time) string {
	return "stale-" + now.UTC().Format("20060102T150405") + ReportSuffix
}

// ReportArchiveName is the file name an OCR report for name is archived as.
func ReportArchiveName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ReportSuffix
}

// admissionErr halts the loop on registry failures.
func admissionErr(err error) error {
	if errors.Is(err, admission.ErrStorage) {
		return scheduler.Halt(err)
	}
	return err
}
