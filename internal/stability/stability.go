// Package stability decides whether a file is safe to read, i.e. its
// producer (scanner software, mail client, network share) has stopped
// writing it.
package stability

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/jackzampolin/scanflow/internal/clock"
)

// ErrFutureModTime is returned when a file's mtime lies ahead of the clock.
var ErrFutureModTime = errors.New("modification time is in the future")

const DefaultQuiet = 120 * time.Second

// Detector checks files against a quiet period.
type Detector struct {
	Quiet  time.Duration
	Clock  clock.Clock
	Logger *slog.Logger
}

// New returns a Detector with the given quiet period. Zero selects the
// default.
func New(quiet time.Duration, c clock.Clock, logger *slog.Logger) *Detector {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{Quiet: quiet, Clock: c, Logger: logger}
}

// IsStable reports whether path has been untouched for longer than Quiet.
func (d *Detector) IsStable(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return d.stableAt(info.ModTime(), d.Clock.Now())
}

func (d *Detector) stableAt(mtime, now time.Time) (bool, error) {
	age := now.Sub(mtime)
	if age < 0 {
		return false, ErrFutureModTime
	}
	return age > d.Quiet, nil
}

// Settled is IsStable for callers that poll on their own cadence: a future
// mtime is logged and treated as stable rather than waited on forever.
func (d *Detector) Settled(path string) (bool, error) {
	stable, err := d.IsStable(path)
	if errors.Is(err, ErrFutureModTime) {
		d.Logger.Warn("file modification time is in the future, proceeding", "path", path)
		return true, nil
	}
	return stable, err
}
