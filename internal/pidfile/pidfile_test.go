package pidfile

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "scanflow.pid")

	if err := Acquire(path); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	pid, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}

	// Re-acquiring our own pid file is allowed.
	if err := Acquire(path); err != nil {
		t.Errorf("re-acquire: %v", err)
	}

	Release(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("pid file should be removed")
	}
}

func TestAcquire_LiveOwner(t *testing.T) {
	cmd := exec.Command("sleep", "10")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start helper process: %v", err)
	}
	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	path := filepath.Join(t.TempDir(), "scanflow.pid")
	os.WriteFile(path, []byte(strconv.Itoa(cmd.Process.Pid)), 0o644)

	if err := Acquire(path); !errors.Is(err, ErrRunning) {
		t.Errorf("expected ErrRunning, got %v", err)
	}

	// Release must not remove another process's pid file.
	Release(path)
	if _, err := os.Stat(path); err != nil {
		t.Error("foreign pid file was removed")
	}
}

func TestAcquire_StaleFile(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot run helper process: %v", err)
	}

	path := filepath.Join(t.TempDir(), "scanflow.pid")
	os.WriteFile(path, []byte(strconv.Itoa(cmd.Process.Pid)), 0o644)
	if err := Acquire(path); err != nil {
		t.Errorf("stale pid file should be taken over: %v", err)
	}

	os.WriteFile(path, []byte("garbage"), 0o644)
	if err := Acquire(path); err != nil {
		t.Errorf("garbage pid file should be taken over: %v", err)
	}
}

func TestIsProcessAlive(t *testing.T) {
	if !IsProcessAlive(os.Getpid()) {
		t.Error("current process should be alive")
	}
	if IsProcessAlive(0) || IsProcessAlive(-1) {
		t.Error("non-positive pids are never alive")
	}
}
