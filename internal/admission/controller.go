// Package admission serializes documents into the OCR engine's hot folder.
// The engine has no admission control of its own; this controller keeps at
// most one file in its input directory, detects stalled jobs and routes
// failures to the fail directory after one repair attempt.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackzampolin/scanflow/internal/clock"
	"github.com/jackzampolin/scanflow/internal/fsutil"
	"github.com/jackzampolin/scanflow/internal/metrics"
	"github.com/jackzampolin/scanflow/internal/registry"
	"github.com/jackzampolin/scanflow/internal/repair"
)

// ErrAmbiguous is returned when more than one file sits in the input
// directory. Automated handling pauses instead of guessing.
var ErrAmbiguous = errors.New("multiple documents in OCR input directory")

// ErrStorage wraps registry failures so callers can tell them apart from
// filesystem trouble with a single document.
var ErrStorage = errors.New("registry failure")

const (
	DefaultTimeout  = time.Hour
	DefaultCooldown = 6 * time.Hour
)

// Failure reasons, also used as metric labels.
const (
	ReasonTimeout = "timeout"
	ReasonReport  = "report"
)

// Registry is the subset of the document registry the controller needs.
type Registry interface {
	Get(ctx context.Context, name string) (*registry.Document, error)
	SetStatus(ctx context.Context, name string, status registry.Status) error
	AppendLog(ctx context.Context, name, message string) error
	List(ctx context.Context, f registry.Filter) ([]*registry.Document, error)
}

// Config holds the controller's directories and policy.
type Config struct {
	QueueDir string
	InputDir string
	FailDir  string
	Timeout  time.Duration
	Cooldown time.Duration
}

// Controller owns the OCR admission slot.
type Controller struct {
	cfg      Config
	registry Registry
	repairer repair.Repairer
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Recorder

	// admittedAt is the start of the slot's timeout clock; zero while idle.
	// inFlight is the canonical name admitted last, empty when unknown.
	admittedAt  time.Time
	inFlight    string
	pausedUntil time.Time
}

// New creates a Controller. repairer, rec and logger may be nil.
func New(cfg Config, reg Registry, repairer repair.Repairer, c clock.Clock, rec *metrics.Recorder, logger *slog.Logger) *Controller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:      cfg,
		registry: reg,
		repairer: repairer,
		clock:    c,
		logger:   logger.With("component", "admission"),
		metrics:  rec,
	}
}

// SetPolicy updates the timeout and cooldown, e.g. after a config reload.
func (c *Controller) SetPolicy(timeout, cooldown time.Duration) {
	if timeout > 0 {
		c.cfg.Timeout = timeout
	}
	if cooldown > 0 {
		c.cfg.Cooldown = cooldown
	}
}

// Paused reports whether automated handling is suspended.
func (c *Controller) Paused() bool {
	return c.clock.Now().Before(c.pausedUntil)
}

// PausedUntil returns when the current pause ends; zero if never paused.
func (c *Controller) PausedUntil() time.Time {
	return c.pausedUntil
}

// InFlightSince returns when the current job was admitted.
func (c *Controller) InFlightSince() (time.Time, bool) {
	return c.admittedAt, !c.admittedAt.IsZero()
}

// InFlight returns the canonical name of the document holding the slot.
func (c *Controller) InFlight() string {
	return c.inFlight
}

func (c *Controller) clearSlot() {
	c.admittedAt = time.Time{}
	c.inFlight = ""
}

// ServeQueue moves the oldest queued PDF into the input directory if the
// slot is free. It reports whether a document was admitted.
func (c *Controller) ServeQueue(ctx context.Context) (bool, error) {
	if c.Paused() {
		return false, nil
	}

	occupied, err := fsutil.CountEntries(c.cfg.InputDir)
	if err != nil {
		return false, fmt.Errorf("failed to inspect input directory: %w", err)
	}
	if occupied > 0 {
		return false, nil
	}

	queued, err := fsutil.ListFiles(c.cfg.QueueDir, ".pdf")
	if err != nil {
		return false, fmt.Errorf("failed to list OCR queue: %w", err)
	}
	if len(queued) == 0 {
		return false, nil
	}

	next := queued[0]
	if err := fsutil.MoveFile(next.Path, filepath.Join(c.cfg.InputDir, next.Name)); err != nil {
		return false, fmt.Errorf("failed to admit %s: %w", next.Name, err)
	}
	name := repair.StripMarker(next.Name)
	c.admittedAt = c.clock.Now()
	c.inFlight = name
	c.metrics.Admitted()

	c.logger.Info("admitted to OCR", "name", next.Name, "queued", len(queued)-1)
	if err := c.setStatus(ctx, name, registry.StatusOCRing); err != nil {
		return true, err
	}
	return true, nil
}

// CheckTimeout fails the in-flight job once it has exceeded the timeout.
// It is safe to call on every loop iteration: the failure path empties the
// slot, so a stalled document is failed exactly once.
func (c *Controller) CheckTimeout(ctx context.Context) (bool, error) {
	if c.Paused() || c.admittedAt.IsZero() {
		return false, nil
	}
	elapsed := c.clock.Now().Sub(c.admittedAt)
	if elapsed <= c.cfg.Timeout {
		return false, nil
	}

	candidates, err := fsutil.ListFiles(c.cfg.InputDir, "")
	if err != nil {
		return false, fmt.Errorf("failed to inspect input directory: %w", err)
	}

	switch len(candidates) {
	case 0:
		reason := fmt.Sprintf("OCR timed out after %s with no output", elapsed.Round(time.Second))
		return c.failVanished(ctx, ReasonTimeout, reason)
	case 1:
		reason := fmt.Sprintf("OCR timed out after %s", elapsed.Round(time.Second))
		if err := c.fail(ctx, candidates[0].Path, ReasonTimeout, reason); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, c.pause(candidates)
	}
}

// Complete is called when the engine produced output for name. A leftover
// input copy is removed and the slot is freed once the input directory is
// empty.
func (c *Controller) Complete(name string) error {
	leftover := filepath.Join(c.cfg.InputDir, name)
	if fsutil.Exists(leftover) {
		c.logger.Warn("removing input copy left behind by OCR engine", "name", name)
		if err := os.Remove(leftover); err != nil {
			return err
		}
	}

	remaining, err := fsutil.CountEntries(c.cfg.InputDir)
	if err != nil {
		return err
	}
	if remaining == 0 {
		c.clearSlot()
	}
	return nil
}

// HandleFailedReport runs the failure path for the in-flight document after
// the engine reported an error without producing output. The document is
// identified by elimination: it is whatever sits in the input directory.
func (c *Controller) HandleFailedReport(ctx context.Context, reason string) (bool, error) {
	if c.Paused() {
		return false, nil
	}

	candidates, err := fsutil.ListFiles(c.cfg.InputDir, "")
	if err != nil {
		return false, fmt.Errorf("failed to inspect input directory: %w", err)
	}

	switch len(candidates) {
	case 0:
		if reason == "" {
			reason = "OCR engine reported an error"
		}
		return c.failVanished(ctx, ReasonReport, reason)
	case 1:
		if reason == "" {
			reason = "OCR engine reported an error"
		}
		if err := c.fail(ctx, candidates[0].Path, ReasonReport, reason); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, c.pause(candidates)
	}
}

// Recover restores the slot after a restart. A document in ocring keeps its
// original admission time; anything else starts now. With an empty input
// directory, a single ocring document is still being processed by the
// engine and keeps the slot.
func (c *Controller) Recover(ctx context.Context) error {
	c.clearSlot()
	candidates, err := fsutil.ListFiles(c.cfg.InputDir, "")
	if err != nil {
		return fmt.Errorf("failed to inspect input directory: %w", err)
	}

	switch len(candidates) {
	case 0:
		ocring, err := c.registry.List(ctx, registry.Filter{Status: registry.StatusOCRing})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStorage, err)
		}
		if len(ocring) != 1 {
			return nil
		}
		c.inFlight = ocring[0].CanonicalName
		c.admittedAt = ocring[0].LastUpdate
		if c.admittedAt.IsZero() {
			c.admittedAt = c.clock.Now()
		}
	case 1:
		c.admittedAt = c.clock.Now()
		name := repair.StripMarker(candidates[0].Name)
		c.inFlight = name
		doc, err := c.registry.Get(ctx, name)
		switch {
		case err == nil && doc.Status == registry.StatusOCRing && !doc.LastUpdate.IsZero():
			c.admittedAt = doc.LastUpdate
		case err != nil && !errors.Is(err, registry.ErrNotFound):
			return fmt.Errorf("%w: %w", ErrStorage, err)
		}
	default:
		c.admittedAt = c.clock.Now()
	}

	c.logger.Info("recovered OCR slot", "in_flight", len(candidates), "name", c.inFlight, "since", c.admittedAt)
	return nil
}

// failVanished records a failure for the in-flight document when its input
// file is already gone, so nothing can be repaired or moved.
func (c *Controller) failVanished(ctx context.Context, kind, reason string) (bool, error) {
	name := c.inFlight
	c.clearSlot()
	if name == "" {
		c.logger.Warn("OCR failure with no document in flight", "reason", reason)
		return false, nil
	}

	c.metrics.Failed(kind)
	c.logger.Error("OCR failed", "name", name, "reason", reason)
	if err := c.setStatus(ctx, name, registry.StatusOCRFailed); err != nil {
		return true, err
	}
	if err := c.registry.AppendLog(ctx, name, reason); err != nil {
		return true, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return true, nil
}

// fail repairs (once), archives and records a failed document.
func (c *Controller) fail(ctx context.Context, path, kind, reason string) error {
	base := filepath.Base(path)
	name := repair.StripMarker(base)
	log := c.logger.With("name", base, "reason", reason)

	message := reason
	if c.repairer != nil && !repair.HasMarker(base) {
		repaired, err := c.repairer.Repair(ctx, path, c.cfg.QueueDir)
		if err != nil {
			log.Warn("repair failed", "error", err)
			message += "; repair failed: " + err.Error()
		} else {
			log.Info("repaired copy queued", "path", repaired)
			message += "; repaired copy queued"
		}
	}

	dst, err := fsutil.MoveInto(path, c.cfg.FailDir, c.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to move %s to fail directory: %w", base, err)
	}
	c.clearSlot()
	c.metrics.Failed(kind)
	log.Error("OCR failed", "moved_to", dst)

	if err := c.setStatus(ctx, name, registry.StatusOCRFailed); err != nil {
		return err
	}
	if err := c.registry.AppendLog(ctx, name, message); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

func (c *Controller) pause(candidates []fsutil.Entry) error {
	c.pausedUntil = c.clock.Now().Add(c.cfg.Cooldown)
	names := make([]string, len(candidates))
	for i, e := range candidates {
		names[i] = e.Name
	}
	c.logger.Error("multiple documents in OCR input, pausing automation",
		"candidates", names, "until", c.pausedUntil)
	return fmt.Errorf("%w: %v", ErrAmbiguous, names)
}

// setStatus tolerates documents the registry does not know or cannot move;
// those are logged. Storage errors are returned wrapped in ErrStorage.
func (c *Controller) setStatus(ctx context.Context, name string, status registry.Status) error {
	err := c.registry.SetStatus(ctx, name, status)
	if errors.Is(err, registry.ErrNotFound) || errors.Is(err, registry.ErrIllegalTransition) {
		c.logger.Warn("status not updated", "name", name, "status", status, "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}
