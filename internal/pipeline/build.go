package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/scanflow/internal/admission"
	"github.com/jackzampolin/scanflow/internal/clock"
	"github.com/jackzampolin/scanflow/internal/config"
	"github.com/jackzampolin/scanflow/internal/fetcher"
	"github.com/jackzampolin/scanflow/internal/home"
	"github.com/jackzampolin/scanflow/internal/metrics"
	"github.com/jackzampolin/scanflow/internal/naming"
	"github.com/jackzampolin/scanflow/internal/pdftext"
	"github.com/jackzampolin/scanflow/internal/registry"
	"github.com/jackzampolin/scanflow/internal/repair"
	"github.com/jackzampolin/scanflow/internal/stability"
	"github.com/jackzampolin/scanflow/internal/storage"
)

// Sources returns the ingest sources in processing order.
func Sources(cfg *config.Config, h *home.Dir) []Source {
	dirs := []struct{ name, dir string }{
		{config.SourceScanner, h.ScannerPath()},
		{config.SourceMobile, h.MobilePath()},
		{config.SourceEmail, h.EmailPath()},
	}
	var out []Source
	for _, s := range dirs {
		sc, ok := cfg.GetSource(s.name)
		if !ok {
			continue
		}
		out = append(out, Source{Name: s.name, Dir: s.dir, Tag: sc.Tag, Policy: PolicyFor(sc)})
	}
	return out
}

// Build assembles a Driver and its collaborators from configuration.
func Build(ctx context.Context, cfg *config.Config, h *home.Dir, store *registry.Store, c clock.Clock, rec *metrics.Recorder, logger *slog.Logger) (*Driver, error) {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}

	repairer := repair.New(cfg.Repair.Command, cfg.Repair.Args, cfg.Repair.Timeout)
	ctrl := admission.New(admission.Config{
		QueueDir: h.OCRQueuePath(),
		InputDir: h.OCRInPath(),
		FailDir:  h.OCRFailPath(),
		Timeout:  cfg.OCR.Timeout,
		Cooldown: cfg.OCR.Cooldown,
	}, store, repairer, c, rec, logger)

	mirror, err := storage.New(ctx, storage.Options{
		Driver:   cfg.Mirror.Driver,
		LocalDir: h.MirrorPath(),
		S3: storage.S3Config{
			Endpoint:  cfg.Mirror.S3.Endpoint,
			AccessKey: config.ResolveEnvVars(cfg.Mirror.S3.AccessKey),
			SecretKey: config.ResolveEnvVars(cfg.Mirror.S3.SecretKey),
			Bucket:    cfg.Mirror.S3.Bucket,
			Region:    cfg.Mirror.S3.Region,
			UseSSL:    cfg.Mirror.S3.UseSSL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mirror: %w", err)
	}

	var probe pdftext.Probe
	if cfg.Bypass.Enabled {
		probe = pdftext.New(cfg.Bypass.Command, cfg.Bypass.Args)
	}

	return New(Config{
		Home:            h,
		Registry:        store,
		Admission:       ctrl,
		Namer:           naming.New(c),
		Stability:       stability.New(cfg.Stability.Quiet, c, logger),
		OutputStability: stability.New(cfg.Stability.OutputQuiet, c, logger),
		Sources:         Sources(cfg, h),
		PrefixDefault:   cfg.PrefixDefault,
		ReportName:      cfg.OCR.ReportName,
		Probe:           probe,
		MinTextLength:   cfg.Bypass.MinTextLength,
		Mirror:          mirror,
		Fetcher: &fetcher.Fetcher{
			Command:  cfg.Email.Command,
			Args:     cfg.Email.Args,
			Env:      config.ResolveEnvMap(cfg.Email.Env),
			Timeout:  cfg.Email.Timeout,
			Attempts: cfg.Email.Attempts,
			Logger:   logger,
		},
		Metrics:     rec,
		MetricsFile: cfg.Metrics.Textfile,
		Intervals:   cfg.Intervals,
		Clock:       c,
		Logger:      logger,
	})
}

// Recover restores in-memory state that the filesystem implies after a
// restart. It must run before the first tick.
func (d *Driver) Recover(ctx context.Context) error {
	return admissionErr(d.admission.Recover(ctx))
}
