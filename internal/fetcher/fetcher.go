// Package fetcher invokes the external email attachment fetcher. The
// fetcher owns the mail protocol and credentials; scanflow only runs it on
// a timer and watches its destination directory.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
)

// DestPlaceholder in Args is replaced with the destination directory.
const DestPlaceholder = "{dest}"

const (
	DefaultTimeout  = 5 * time.Minute
	DefaultAttempts = 3
)

// Fetcher runs an external command that drops attachments into a directory.
type Fetcher struct {
	Command  string
	Args     []string
	Env      map[string]string // merged over the process environment
	Timeout  time.Duration
	Attempts uint
	Delay    time.Duration
	Logger   *slog.Logger

	mu      sync.Mutex
	done    chan struct{}
	lastErr error
}

// Configured reports whether a command is set.
func (f *Fetcher) Configured() bool {
	return f != nil && f.Command != ""
}

// Fetch runs the command for dest, retrying failed runs. It is a no-op
// when no command is configured.
func (f *Fetcher) Fetch(ctx context.Context, dest string) error {
	if !f.Configured() {
		return nil
	}

	attempts := f.Attempts
	if attempts == 0 {
		attempts = DefaultAttempts
	}
	delay := f.Delay
	if delay <= 0 {
		delay = 10 * time.Second
	}
	logger := f.logger()

	return retry.Do(
		func() error { return f.runOnce(ctx, dest) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("email fetch failed, retrying", "attempt", n+1, "error", err)
		}),
	)
}

// Start runs Fetch in the background and returns immediately. It reports
// false when no command is configured or a previous run is still going;
// the caller's next cycle tries again.
func (f *Fetcher) Start(ctx context.Context, dest string) bool {
	if !f.Configured() {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done != nil {
		select {
		case <-f.done:
		default:
			return false
		}
	}

	done := make(chan struct{})
	f.done = done
	go func() {
		err := f.Fetch(ctx, dest)
		if err != nil {
			f.logger().Error("email fetch failed", "error", err)
		}
		f.mu.Lock()
		f.lastErr = err
		f.mu.Unlock()
		close(done)
	}()
	return true
}

// Running reports whether a background run is in progress.
func (f *Fetcher) Running() bool {
	if f == nil {
		return false
	}
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Wait blocks until the background run, if any, has finished and returns
// the error of the most recent run.
func (f *Fetcher) Wait() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()
	if done != nil {
		<-done
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

func (f *Fetcher) runOnce(ctx context.Context, dest string) error {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = strings.ReplaceAll(a, DestPlaceholder, dest)
	}

	cmd := exec.CommandContext(ctx, f.Command, args...)
	cmd.Env = Environ(os.Environ(), f.Env)
	cmd.Env = append(cmd.Env, "SCANFLOW_EMAIL_DEST="+dest)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s timed out after %s", f.Command, timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", f.Command, err, msg)
		}
		return fmt.Errorf("%s: %w", f.Command, err)
	}
	return nil
}

// Environ merges extra over base. Keys are upper-cased because config
// loading lower-cases map keys.
func Environ(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}

	override := make(map[string]string, len(extra))
	for k, v := range extra {
		override[strings.ToUpper(k)] = v
	}

	out := make([]string, 0, len(base)+len(override))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, replaced := override[key]; replaced {
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(override))
	for k := range override {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+override[k])
	}
	return out
}
