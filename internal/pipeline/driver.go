// Package pipeline moves documents between the stage directories. The
// Driver owns one polling loop; every stage is a scheduler task, so stages
// never run concurrently and the registry is only touched from one
// goroutine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/scanflow/internal/admission"
	"github.com/jackzampolin/scanflow/internal/clock"
	"github.com/jackzampolin/scanflow/internal/config"
	"github.com/jackzampolin/scanflow/internal/fetcher"
	"github.com/jackzampolin/scanflow/internal/home"
	"github.com/jackzampolin/scanflow/internal/metrics"
	"github.com/jackzampolin/scanflow/internal/naming"
	"github.com/jackzampolin/scanflow/internal/pdftext"
	"github.com/jackzampolin/scanflow/internal/registry"
	"github.com/jackzampolin/scanflow/internal/scheduler"
	"github.com/jackzampolin/scanflow/internal/stability"
	"github.com/jackzampolin/scanflow/internal/storage"
)

// Task names, in registration order.
const (
	TaskIngest      = "ingest"
	TaskOCROutput   = "ocr-output"
	TaskOCRQueue    = "ocr-queue"
	TaskConsumption = "consumption"
	TaskEmailFetch  = "email-fetch"
	TaskMetrics     = "metrics"
	TaskOCRTimeout  = "ocr-timeout"
)

// maxNameAttempts bounds the retries when a canonical name is taken by a
// different document.
const maxNameAttempts = 10

// Source is one ingest directory.
type Source struct {
	Name   string
	Dir    string
	Tag    string
	Policy naming.Policy
}

// Config wires a Driver. Probe, Mirror, Fetcher and Metrics are optional.
type Config struct {
	Home      *home.Dir
	Registry  *registry.Store
	Admission *admission.Controller
	Namer     *naming.Canonicalizer

	// Ingest waits for Stability; OCR output waits for OutputStability.
	Stability       *stability.Detector
	OutputStability *stability.Detector

	Sources       []Source
	PrefixDefault string
	ReportName    string

	Probe         pdftext.Probe
	MinTextLength int

	Mirror      storage.Writer
	Fetcher     *fetcher.Fetcher
	Metrics     *metrics.Recorder
	MetricsFile string
	Intervals   config.IntervalsCfg
	Clock       clock.Clock
	Logger      *slog.Logger
}

// Driver runs the pipeline stages.
type Driver struct {
	cfg       Config
	home      *home.Dir
	registry  *registry.Store
	admission *admission.Controller
	namer     *naming.Canonicalizer
	metrics   *metrics.Recorder
	clock     clock.Clock
	logger    *slog.Logger
	sched     *scheduler.Scheduler

	runID       string
	prefix      string
	prefixIssue string
	bypass      bool
	reloads     chan *config.Config
}

// New creates a Driver and registers its stages on a fresh scheduler.
func New(cfg Config) (*Driver, error) {
	if cfg.Home == nil || cfg.Registry == nil || cfg.Admission == nil {
		return nil, fmt.Errorf("pipeline needs a home, a registry and an admission controller")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Namer == nil {
		cfg.Namer = naming.New(cfg.Clock)
	}
	if cfg.Stability == nil {
		cfg.Stability = stability.New(0, cfg.Clock, cfg.Logger)
	}
	if cfg.OutputStability == nil {
		cfg.OutputStability = cfg.Stability
	}
	if cfg.PrefixDefault == "" {
		cfg.PrefixDefault = config.DefaultConfig().PrefixDefault
	}
	if cfg.ReportName == "" {
		cfg.ReportName = config.DefaultConfig().OCR.ReportName
	}

	runID := uuid.NewString()
	d := &Driver{
		cfg:       cfg,
		home:      cfg.Home,
		registry:  cfg.Registry,
		admission: cfg.Admission,
		namer:     cfg.Namer,
		metrics:   cfg.Metrics,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With("run_id", runID),
		sched:     scheduler.New(cfg.Clock, cfg.Logger),
		runID:     runID,
		prefix:    cfg.PrefixDefault,
		bypass:    cfg.Probe != nil,
		reloads:   make(chan *config.Config, 1),
	}
	if err := d.register(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) register() error {
	iv := d.cfg.Intervals
	tasks := []scheduler.Task{
		{Name: TaskIngest, Interval: iv.Ingest, Run: d.Ingest},
		{Name: TaskOCROutput, Interval: iv.OCROutput, Run: d.DrainOutput},
		{Name: TaskOCRQueue, Interval: iv.OCRQueue, Run: d.ServeQueue},
		{Name: TaskConsumption, Interval: iv.Consumption, Run: d.Reconcile},
	}
	if d.cfg.Fetcher.Configured() {
		tasks = append(tasks, scheduler.Task{Name: TaskEmailFetch, Interval: iv.Email, Run: d.FetchEmail})
	}
	tasks = append(tasks,
		scheduler.Task{Name: TaskMetrics, Interval: iv.Metrics, Run: d.FlushMetrics},
		scheduler.Task{Name: TaskOCRTimeout, Interval: 0, Run: d.CheckTimeout},
	)
	for _, t := range tasks {
		if err := d.sched.Add(t); err != nil {
			return err
		}
	}
	return nil
}

// RunID identifies this driver instance in logs.
func (d *Driver) RunID() string { return d.runID }

// Prefix returns the prefix used for the next canonical name.
func (d *Driver) Prefix() string { return d.prefix }

// Tasks returns the scheduler's bookkeeping.
func (d *Driver) Tasks() []scheduler.TaskStatus { return d.sched.Status() }

// Reload queues a new configuration. It is applied at the start of the
// next tick, on the loop goroutine.
func (d *Driver) Reload(cfg *config.Config) {
	select {
	case <-d.reloads:
	default:
	}
	d.reloads <- cfg
}

// Tick runs one loop iteration: pending reloads, PREFIX, then due tasks.
func (d *Driver) Tick(ctx context.Context) error {
	if err := d.beforeTick(ctx); err != nil {
		return err
	}
	return d.sched.Tick(ctx)
}

// Run loops until ctx is cancelled or a stage hits a storage failure.
func (d *Driver) Run(ctx context.Context) error {
	loop := d.cfg.Intervals.Loop
	if loop <= 0 {
		loop = time.Second
	}
	d.logger.Info("pipeline started", "tasks", d.sched.Names(), "loop", loop)
	err := d.sched.Run(ctx, loop, d.beforeTick)
	if ctx.Err() != nil {
		// Cancellation kills the fetch command; reap it before returning.
		d.cfg.Fetcher.Wait()
	}
	if err != nil {
		d.logger.Error("pipeline halted", "error", err)
		return err
	}
	d.logger.Info("pipeline stopped")
	return nil
}

func (d *Driver) beforeTick(ctx context.Context) error {
	select {
	case cfg := <-d.reloads:
		d.apply(cfg)
	default:
	}
	d.refreshPrefix()
	return nil
}

// refreshPrefix re-reads the PREFIX file so it can be edited live. Problems
// are logged once until they change.
func (d *Driver) refreshPrefix() {
	prefix, err := config.ReadPrefix(d.home.PrefixPath())
	if err != nil {
		issue := err.Error()
		if issue != d.prefixIssue {
			d.logger.Warn("cannot read PREFIX, using default", "default", d.cfg.PrefixDefault, "error", err)
			d.prefixIssue = issue
		}
		d.prefix = d.cfg.PrefixDefault
		return
	}
	if prefix != d.prefix {
		d.logger.Info("prefix changed", "from", d.prefix, "to", prefix)
	}
	d.prefixIssue = ""
	d.prefix = prefix
}

// apply takes over the settings that can change without a restart.
func (d *Driver) apply(cfg *config.Config) {
	if cfg == nil {
		return
	}
	intervals := map[string]time.Duration{
		TaskIngest:      cfg.Intervals.Ingest,
		TaskOCROutput:   cfg.Intervals.OCROutput,
		TaskOCRQueue:    cfg.Intervals.OCRQueue,
		TaskConsumption: cfg.Intervals.Consumption,
		TaskEmailFetch:  cfg.Intervals.Email,
		TaskMetrics:     cfg.Intervals.Metrics,
	}
	for name, iv := range intervals {
		if err := d.sched.SetInterval(name, iv); err != nil && !errors.Is(err, scheduler.ErrTaskNotFound) {
			d.logger.Warn("interval not updated", "task", name, "error", err)
		}
	}
	d.cfg.Intervals = cfg.Intervals

	if cfg.PrefixDefault != "" {
		d.cfg.PrefixDefault = cfg.PrefixDefault
	}
	d.cfg.MinTextLength = cfg.Bypass.MinTextLength
	d.bypass = cfg.Bypass.Enabled && d.cfg.Probe != nil
	if cfg.Stability.Quiet > 0 {
		d.cfg.Stability.Quiet = cfg.Stability.Quiet
	}
	if cfg.Stability.OutputQuiet > 0 && d.cfg.OutputStability != d.cfg.Stability {
		d.cfg.OutputStability.Quiet = cfg.Stability.OutputQuiet
	}
	d.cfg.Sources = applySources(d.cfg.Sources, cfg)
	d.admission.SetPolicy(cfg.OCR.Timeout, cfg.OCR.Cooldown)

	d.logger.Info("configuration reloaded")
}

// applySources updates tags and policies of the known sources.
func applySources(sources []Source, cfg *config.Config) []Source {
	out := make([]Source, len(sources))
	for i, s := range sources {
		if sc, ok := cfg.GetSource(s.Name); ok {
			if sc.Tag != "" {
				s.Tag = sc.Tag
			}
			s.Policy = PolicyFor(sc)
		}
		out[i] = s
	}
	return out
}

// PolicyFor maps a source's strict flag to a naming policy.
func PolicyFor(sc config.SourceCfg) naming.Policy {
	if sc.Strict {
		return naming.Strict
	}
	return naming.Lenient
}

// stageLogger returns the logger for one stage.
func (d *Driver) stageLogger(stage string) *slog.Logger {
	return d.logger.With("stage", stage)
}

// reportPath is the OCR engine's sidecar report in the output directory.
func (d *Driver) reportPath() string {
	return filepath.Join(d.home.OCROutPath(), d.cfg.ReportName)
}

// storageFailure marks registry errors as fatal to the loop.
func storageFailure(op string, err error) error {
	return scheduler.Halt(fmt.Errorf("%s: %w", op, err))
}
