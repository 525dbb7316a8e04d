// Package scheduler drives named periodic tasks from a single goroutine.
// Each task runs when its interval has elapsed since its last run; tasks
// never run concurrently with each other.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackzampolin/scanflow/internal/clock"
)

// Sentinel errors for the scheduler package.
var (
	// ErrTaskAlreadyRegistered is returned when adding a duplicate task.
	ErrTaskAlreadyRegistered = errors.New("task already registered")

	// ErrTaskNotFound is returned when a task name is unknown.
	ErrTaskNotFound = errors.New("task not found")
)

// Task is a unit of periodic work. An Interval of zero runs the task on
// every tick.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// TaskStatus is a snapshot of a task's bookkeeping.
type TaskStatus struct {
	Name      string        `json:"name" yaml:"name"`
	Interval  time.Duration `json:"interval" yaml:"interval"`
	LastRun   time.Time     `json:"last_run,omitempty" yaml:"last_run,omitempty"`
	Runs      int           `json:"runs" yaml:"runs"`
	Failures  int           `json:"failures" yaml:"failures"`
	LastError string        `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

type entry struct {
	task     Task
	lastRun  time.Time
	ran      bool
	runs     int
	failures int
	lastErr  error
}

// haltError marks an error as fatal to the loop.
type haltError struct {
	err error
}

func (h *haltError) Error() string { return h.err.Error() }
func (h *haltError) Unwrap() error { return h.err }

// Halt wraps err so that Tick stops and Run returns it. Use it for
// failures that make further processing unsafe, such as storage errors.
func Halt(err error) error {
	if err == nil {
		return nil
	}
	return &haltError{err: err}
}

// IsHalt reports whether err was produced by Halt.
func IsHalt(err error) bool {
	var h *haltError
	return errors.As(err, &h)
}

// Scheduler runs registered tasks in registration order.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates an empty scheduler.
func New(c clock.Clock, logger *slog.Logger) *Scheduler {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		entries: make(map[string]*entry),
		clock:   c,
		logger:  logger,
	}
}

// Add registers a task.
func (s *Scheduler) Add(t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Name == "" || t.Run == nil {
		return fmt.Errorf("task needs a name and a run function")
	}
	if _, exists := s.entries[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrTaskAlreadyRegistered, t.Name)
	}
	s.entries[t.Name] = &entry{task: t}
	s.order = append(s.order, t.Name)
	return nil
}

// SetInterval changes a task's interval, e.g. after a config reload.
func (s *Scheduler) SetInterval(name string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	e.task.Interval = d
	return nil
}

// Names returns task names in registration order.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Status returns a snapshot of every task in registration order.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStatus, 0, len(s.order))
	for _, name := range s.order {
		e := s.entries[name]
		st := TaskStatus{
			Name:     name,
			Interval: e.task.Interval,
			LastRun:  e.lastRun,
			Runs:     e.runs,
			Failures: e.failures,
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		out = append(out, st)
	}
	return out
}

// due returns the tasks due at now, in registration order.
func (s *Scheduler) due(now time.Time) []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*entry
	for _, name := range s.order {
		e := s.entries[name]
		if !e.ran || now.Sub(e.lastRun) >= e.task.Interval {
			due = append(due, e)
		}
	}
	return due
}

// Tick runs every due task once. Task errors are logged and the remaining
// tasks still run, unless the error was wrapped with Halt, in which case
// Tick stops and returns it.
func (s *Scheduler) Tick(ctx context.Context) error {
	for _, e := range s.due(s.clock.Now()) {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := e.task.Run(ctx)

		s.mu.Lock()
		e.ran = true
		e.lastRun = s.clock.Now()
		e.runs++
		e.lastErr = err
		if err != nil {
			e.failures++
		}
		s.mu.Unlock()

		if err == nil {
			continue
		}
		if IsHalt(err) {
			s.logger.Error("task halted scheduler", "task", e.task.Name, "error", err)
			return err
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("task failed", "task", e.task.Name, "error", err)
	}
	return nil
}

// Run ticks until ctx is cancelled or a task halts, sleeping between
// iterations. A cancelled context is a clean shutdown and returns nil.
func (s *Scheduler) Run(ctx context.Context, sleep time.Duration, beforeTick func(ctx context.Context) error) error {
	for {
		if beforeTick != nil {
			if err := beforeTick(ctx); err != nil {
				if IsHalt(err) {
					return err
				}
				s.logger.Warn("pre-tick hook failed", "error", err)
			}
		}

		if err := s.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(sleep):
		}
	}
}
