package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.OCR.Timeout != time.Hour {
		t.Errorf("expected 1h OCR timeout, got %v", cfg.OCR.Timeout)
	}
	if cfg.Stability.Quiet != 120*time.Second {
		t.Errorf("expected 120s quiet period, got %v", cfg.Stability.Quiet)
	}
	scanner, ok := cfg.GetSource(SourceScanner)
	if !ok || !scanner.Strict {
		t.Error("expected strict scanner source")
	}
	mobile, ok := cfg.GetSource(SourceMobile)
	if !ok || mobile.Strict {
		t.Error("expected lenient mobile source")
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_IMAP_HOST", "imap.example.org")

		result := ResolveEnvVars("${TEST_IMAP_HOST}")
		if result != "imap.example.org" {
			t.Errorf("expected imap.example.org, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestResolveEnvMap(t *testing.T) {
	t.Setenv("TEST_IMAP_USER", "scanner@example.org")

	got := ResolveEnvMap(map[string]string{
		"IMAP_USER":   "${TEST_IMAP_USER}",
		"IMAP_FOLDER": "${DEFINITELY_NOT_SET_12345}",
		"LITERAL":     "INBOX",
	})

	if got["IMAP_USER"] != "scanner@example.org" {
		t.Errorf("IMAP_USER = %q", got["IMAP_USER"])
	}
	if _, ok := got["IMAP_FOLDER"]; ok {
		t.Error("unresolved entry should be dropped")
	}
	if got["LITERAL"] != "INBOX" {
		t.Errorf("LITERAL = %q", got["LITERAL"])
	}
}

func TestNewManager(t *testing.T) {
	t.Run("defaults without config file", func(t *testing.T) {
		mgr, err := NewManager("", t.TempDir())
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Intervals.Ingest != 60*time.Second {
			t.Errorf("expected default ingest interval, got %v", cfg.Intervals.Ingest)
		}
		if cfg.OCR.ReportName != "Hot Folder Log.txt" {
			t.Errorf("unexpected report name %q", cfg.OCR.ReportName)
		}
		if cfg.Sources[SourceEmail].Tag != "mail" {
			t.Errorf("unexpected email tag %q", cfg.Sources[SourceEmail].Tag)
		}
	})

	t.Run("loads from config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")

		configContent := `
prefix_default: ARCH
ocr:
  timeout: 30m
sources:
  scanner:
    tag: flatbed
`
		if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.PrefixDefault != "ARCH" {
			t.Errorf("expected ARCH, got %s", cfg.PrefixDefault)
		}
		if cfg.OCR.Timeout != 30*time.Minute {
			t.Errorf("expected 30m, got %v", cfg.OCR.Timeout)
		}
		if cfg.OCR.Cooldown != 6*time.Hour {
			t.Errorf("default cooldown lost, got %v", cfg.OCR.Cooldown)
		}
		if cfg.Sources[SourceScanner].Tag != "flatbed" {
			t.Errorf("expected flatbed, got %s", cfg.Sources[SourceScanner].Tag)
		}
		if !cfg.Sources[SourceScanner].Strict {
			t.Error("default strict flag lost for scanner")
		}
	})
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("reload written default: %v", err)
	}
	cfg := mgr.Get()
	want := DefaultConfig()
	if cfg.Intervals != want.Intervals {
		t.Errorf("intervals = %+v, want %+v", cfg.Intervals, want.Intervals)
	}
	if cfg.OCR != want.OCR {
		t.Errorf("ocr = %+v, want %+v", cfg.OCR, want.OCR)
	}
}

func TestReadPrefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "PREFIX")

	if _, err := ReadPrefix(path); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}

	created, err := EnsurePrefix(path, "HOME")
	if err != nil || !created {
		t.Fatalf("EnsurePrefix = %v, %v", created, err)
	}
	created, err = EnsurePrefix(path, "OTHER")
	if err != nil || created {
		t.Fatalf("second EnsurePrefix = %v, %v", created, err)
	}

	got, err := ReadPrefix(path)
	if err != nil {
		t.Fatalf("ReadPrefix: %v", err)
	}
	if got != "HOME" {
		t.Errorf("got %q, want HOME", got)
	}

	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPrefix(path); !errors.Is(err, ErrEmptyPrefix) {
		t.Errorf("expected ErrEmptyPrefix, got %v", err)
	}
}

func TestReadPrefix_RejectsUnsafeValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{name: "letters", content: "ARCH\n", want: "ARCH"},
		{name: "digits and underscore", content: "Tax_2021", want: "Tax_2021"},
		{name: "path traversal", content: "../../etc", wantErr: true},
		{name: "slash", content: "a/b", wantErr: true},
		{name: "dash breaks name layout", content: "DOC-X", wantErr: true},
		{name: "inner space", content: "MY DOCS", wantErr: true},
		{name: "non ascii", content: "DÖC", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "PREFIX")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := ReadPrefix(path)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPrefix) {
					t.Errorf("ReadPrefix(%q) = %q, %v; want ErrInvalidPrefix", tt.content, got, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ReadPrefix(%q) = %q, %v; want %q", tt.content, got, err, tt.want)
			}
		})
	}

	if _, err := EnsurePrefix(filepath.Join(t.TempDir(), "PREFIX"), "../x"); !errors.Is(err, ErrInvalidPrefix) {
		t.Errorf("EnsurePrefix accepted an invalid value: %v", err)
	}
}

func TestNewManager_RejectsInvalidPrefixDefault(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte("prefix_default: ../up\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager(configFile); !errors.Is(err, ErrInvalidPrefix) {
		t.Errorf("expected ErrInvalidPrefix, got %v", err)
	}
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager("", t.TempDir())
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_WatchConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configFile, []byte("intervals:\n  ingest: 60s\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Int64

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(int64(cfg.Intervals.Ingest))
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("intervals:\n  ingest: 15s\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Intervals.Ingest; got != 15*time.Second {
		t.Errorf("config not updated: got %v", got)
	}
	if time.Duration(lastValue.Load()) != 15*time.Second {
		t.Errorf("callback received %v", time.Duration(lastValue.Load()))
	}
}
