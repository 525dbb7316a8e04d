package pipeline

import (
	"context"
	"path/filepath"
)

// ServeQueue admits the next queued document when the OCR slot is free.
func (d *Driver) ServeQueue(ctx context.Context) error {
	_, err := d.admission.ServeQueue(ctx)
	return admissionErr(err)
}

// CheckTimeout fails a stalled OCR job. It runs on every loop iteration.
func (d *Driver) CheckTimeout(ctx context.Context) error {
	_, err := d.admission.CheckTimeout(ctx)
	d.metrics.SetPaused(d.admission.Paused())
	return admissionErr(err)
}

// Reconcile marks delivered documents consumed once downstream tooling has
// removed them from the consumption directory.
func (d *Driver) Reconcile(ctx context.Context) error {
	names, err := d.registry.ReconcileConsumed(ctx, d.home.ConsumptionPath())
	if err != nil {
		return storageFailure("reconcile", err)
	}
	log := d.stageLogger(TaskConsumption)
	for _, name := range names {
		log.Info("document consumed", "canonical", name)
	}
	d.metrics.Consumed(len(names))
	return nil
}

// FetchEmail starts the external attachment fetcher in the background.
// A run still in progress is left alone; the task interval retries later.
func (d *Driver) FetchEmail(ctx context.Context) error {
	if !d.cfg.Fetcher.Start(ctx, d.home.EmailPath()) && d.cfg.Fetcher.Running() {
		d.logger.Debug("email fetch still running, skipping")
	}
	return nil
}

// FlushMetrics refreshes the gauges and rewrites the textfile export.
func (d *Driver) FlushMetrics(ctx context.Context) error {
	if d.metrics == nil {
		return nil
	}
	counts, err := d.registry.Counts(ctx)
	if err != nil {
		return storageFailure("count documents", err)
	}
	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
	}
	d.metrics.SetDocuments(byStatus)
	d.metrics.SetPaused(d.admission.Paused())

	if d.cfg.MetricsFile == "" {
		return nil
	}
	return d.metrics.WriteTextfile(d.metricsPath(), d.clock.Now())
}

func (d *Driver) metricsPath() string {
	if filepath.IsAbs(d.cfg.MetricsFile) {
		return d.cfg.MetricsFile
	}
	return filepath.Join(d.home.LogsPath(), d.cfg.MetricsFile)
}
