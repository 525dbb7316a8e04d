package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jackzampolin/scanflow/internal/fsutil"
	"github.com/jackzampolin/scanflow/internal/hasher"
	"github.com/jackzampolin/scanflow/internal/naming"
	"github.com/jackzampolin/scanflow/internal/registry"
	"github.com/jackzampolin/scanflow/internal/scheduler"
	"github.com/jackzampolin/scanflow/internal/stability"
	"github.com/jackzampolin/scanflow/internal/storage"
)

// IngestResult summarizes one pass over the ingest directories.
type IngestResult struct {
	Ingested   int
	Bypassed   int
	Duplicates int
	Review     int
	Skipped    int
}

// Ingest processes every stable PDF in the scanner, mobile and email
// directories, in that order.
func (d *Driver) Ingest(ctx context.Context) error {
	res, err := d.ingestAll(ctx)
	if res != (IngestResult{}) {
		d.stageLogger(TaskIngest).Info("ingest pass complete",
			"ingested", res.Ingested, "bypassed", res.Bypassed,
			"duplicates", res.Duplicates, "review", res.Review, "skipped", res.Skipped)
	}
	return err
}

func (d *Driver) ingestAll(ctx context.Context) (IngestResult, error) {
	var res IngestResult
	for _, src := range d.cfg.Sources {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := d.ingestSource(ctx, src, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (d *Driver) ingestSource(ctx context.Context, src Source, res *IngestResult) error {
	log := d.stageLogger(TaskIngest).With("source", src.Name)

	files, err := fsutil.ListFiles(src.Dir, ".pdf")
	if err != nil {
		log.Warn("cannot list source directory", "dir", src.Dir, "error", err)
		return nil
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome, err := d.ingestFile(ctx, src, f, log.With("file", f.Name))
		if err != nil {
			if scheduler.IsHalt(err) {
				return err
			}
			log.Warn("ingest failed, retrying next cycle", "file", f.Name, "error", err)
			res.Skipped++
			continue
		}
		switch outcome {
		case outcomeIngested:
			res.Ingested++
		case outcomeBypassed:
			res.Ingested++
			res.Bypassed++
		case outcomeDuplicate:
			res.Duplicates++
		case outcomeReview:
			res.Review++
		case outcomeUnstable:
			res.Skipped++
		}
	}
	return nil
}

type outcome int

const (
	outcomeUnstable outcome = iota
	outcomeIngested
	outcomeBypassed
	outcomeDuplicate
	outcomeReview
)

// ingestFile admits one inbound PDF. The source file is removed only after
// every copy succeeded; on copy failure the admission is rolled back so the
// next cycle starts from scratch. Content whose row is still new but whose
// copies are incomplete is delivered again under its recorded name.
func (d *Driver) ingestFile(ctx context.Context, src Source, f fsutil.Entry, log *slog.Logger) (outcome, error) {
	stable, err := d.cfg.Stability.IsStable(f.Path)
	switch {
	case errors.Is(err, stability.ErrFutureModTime):
		log.Warn("modification time in the future, processing anyway")
	case err != nil:
		return outcomeUnstable, err
	case !stable:
		log.Debug("file still being written")
		return outcomeUnstable, nil
	}

	hash, err := hasher.File(f.Path)
	if err != nil {
		return outcomeUnstable, fmt.Errorf("hash: %w", err)
	}

	known, err := d.registry.IsKnown(ctx, hash)
	if err != nil {
		return outcomeUnstable, storageFailure("dedup check", err)
	}
	if known {
		doc, err := d.registry.GetByHash(ctx, hash)
		switch {
		case err == nil && d.interrupted(doc):
			log.Info("resuming interrupted ingest", "canonical", doc.CanonicalName)
			return d.deliver(ctx, src, f, hash, doc.CanonicalName, true, log.With("canonical", doc.CanonicalName))
		case err != nil && !errors.Is(err, registry.ErrNotFound):
			return outcomeUnstable, storageFailure("lookup by hash", err)
		}
		return d.dropDuplicate(src, f, log)
	}

	index, err := naming.RunningIndex(d.home.ArchiveRawPath())
	if err != nil {
		return outcomeUnstable, fmt.Errorf("running index: %w", err)
	}

	var name string
	for attempt := 0; ; attempt++ {
		req := naming.Request{
			OriginalName: f.Name,
			Prefix:       d.prefix,
			Index:        index + attempt,
			SourceTag:    src.Tag,
		}
		name, err = d.namer.Name(req, src.Policy)
		if errors.Is(err, naming.ErrUnrecognized) {
			return d.sendToReview(src, f, log)
		}
		if err != nil {
			return outcomeUnstable, err
		}

		admitted, err := d.registry.Admit(ctx, registry.Admission{
			OriginalName:  f.Name,
			CanonicalName: name,
			HashOriginal:  hash,
			Status:        registry.StatusNew,
		})
		if err != nil {
			return outcomeUnstable, storageFailure("admit", err)
		}
		if admitted {
			break
		}

		// Either the content or the name is taken. Only the former is a
		// duplicate; a name clash just needs the next index.
		known, err := d.registry.IsKnown(ctx, hash)
		if err != nil {
			return outcomeUnstable, storageFailure("dedup check", err)
		}
		if known {
			return d.dropDuplicate(src, f, log)
		}
		if attempt+1 >= maxNameAttempts {
			return outcomeUnstable, fmt.Errorf("no free canonical name after %d attempts (last %s)", maxNameAttempts, name)
		}
		log.Debug("canonical name taken, trying next index", "name", name)
	}
	return d.deliver(ctx, src, f, hash, name, false, log.With("canonical", name))
}

// interrupted reports whether doc was admitted by an ingest that stopped
// before all copies were in place. Its source file is still the only
// complete copy.
func (d *Driver) interrupted(doc *registry.Document) bool {
	if doc.Status != registry.StatusNew {
		return false
	}
	return !fsutil.Exists(filepath.Join(d.home.ArchiveRawPath(), doc.CanonicalName)) ||
		!fsutil.Exists(filepath.Join(d.home.OCRQueuePath(), doc.CanonicalName))
}

// deliver copies an admitted document to the raw archive and then either
// to consumption (bypass) or to the OCR queue, and removes the source last.
// A resumed delivery keeps its registry row when a copy fails.
func (d *Driver) deliver(ctx context.Context, src Source, f fsutil.Entry, hash, name string, resumed bool, log *slog.Logger) (outcome, error) {
	rawPath := filepath.Join(d.home.ArchiveRawPath(), name)
	var written []string
	rollback := func(cause error) (outcome, error) {
		for _, p := range written {
			os.Remove(p)
		}
		if resumed {
			return outcomeUnstable, cause
		}
		if err := d.registry.Discard(ctx, name); err != nil && !errors.Is(err, registry.ErrNotFound) {
			return outcomeUnstable, storageFailure("discard", err)
		}
		return outcomeUnstable, cause
	}

	if err := fsutil.CopyFile(f.Path, rawPath); err != nil {
		return rollback(fmt.Errorf("archive raw copy: %w", err))
	}
	written = append(written, rawPath)

	result := outcomeIngested
	if d.needsNoOCR(ctx, rawPath, log) {
		for _, dir := range []string{d.home.ConsumptionPath(), d.home.ArchiveOCRPath()} {
			dst := filepath.Join(dir, name)
			if err := fsutil.CopyFile(f.Path, dst); err != nil {
				return rollback(fmt.Errorf("bypass copy: %w", err))
			}
			written = append(written, dst)
		}
		if err := d.registry.MarkOCRComplete(ctx, name, hash); err != nil {
			if isRegistryRejection(err) {
				log.Warn("bypass not recorded", "error", err)
			} else {
				return outcomeUnstable, storageFailure("mark ocr complete", err)
			}
		}
		d.metrics.Bypassed()
		result = outcomeBypassed
		log.Info("document already has text, bypassing OCR")
	} else {
		dst := filepath.Join(d.home.OCRQueuePath(), name)
		if err := fsutil.CopyFile(f.Path, dst); err != nil {
			return rollback(fmt.Errorf("queue copy: %w", err))
		}
		log.Info("queued for OCR")
	}

	d.mirror(ctx, "raw/"+name, rawPath, log)

	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		log.Warn("cannot remove source file", "error", err)
	}
	d.metrics.Ingested(src.Name)
	return result, nil
}

// needsNoOCR reports whether the PDF already carries enough text. Probe
// errors count as no text.
func (d *Driver) needsNoOCR(ctx context.Context, path string, log *slog.Logger) bool {
	if !d.bypass {
		return false
	}
	n, err := d.cfg.Probe.TextLength(ctx, path)
	if err != nil {
		log.Debug("text probe failed, sending to OCR", "error", err)
		return false
	}
	log.Debug("text probe", "chars", n, "threshold", d.cfg.MinTextLength)
	return n > d.cfg.MinTextLength
}

func (d *Driver) dropDuplicate(src Source, f fsutil.Entry, log *slog.Logger) (outcome, error) {
	log.Info("duplicate content, deleting source")
	d.metrics.Duplicate(src.Name)
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return outcomeDuplicate, fmt.Errorf("remove duplicate: %w", err)
	}
	return outcomeDuplicate, nil
}

func (d *Driver) sendToReview(src Source, f fsutil.Entry, log *slog.Logger) (outcome, error) {
	d.metrics.NamingFailure(src.Name)
	dst, err := fsutil.MoveInto(f.Path, d.home.ManualReviewPath(), d.clock.Now())
	if err != nil {
		return outcomeReview, fmt.Errorf("move to manual review: %w", err)
	}
	log.Error("unrecognized filename from strict source, moved to manual review", "moved_to", dst)
	return outcomeReview, nil
}

// mirror copies an archived file to the mirror. Failures are logged only.
func (d *Driver) mirror(ctx context.Context, key, path string, log *slog.Logger) {
	if d.cfg.Mirror == nil {
		return
	}
	loc, err := storage.WriteFile(ctx, d.cfg.Mirror, key, path)
	if err != nil {
		log.Warn("mirror failed", "key", key, "error", err)
		return
	}
	log.Debug("mirrored", "key", key, "url", loc.URL)
}

// isRegistryRejection reports errors where the registry refused a change
// without failing.
func isRegistryRejection(err error) bool {
	return errors.Is(err, registry.ErrNotFound) ||
		errors.Is(err, registry.ErrIllegalTransition) ||
		errors.Is(err, registry.ErrDuplicate)
}
