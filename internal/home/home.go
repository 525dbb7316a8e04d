package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the scanflow home directory.
	DefaultDirName = ".scanflow"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DatabaseFileName is the document registry file inside the config dir.
	DatabaseFileName = "documents.db"

	// PrefixFileName holds the live-editable canonical name prefix.
	PrefixFileName = "PREFIX"

	// PidFileName guards against two orchestrators sharing one home.
	PidFileName = "scanflow.pid"
)

// Stage directory names. The numeric prefixes keep them sorted in the
// order a document travels through them.
const (
	ScannerDir      = "01_scanner_out"
	MobileDir       = "01_mobile_in"
	EmailDir        = "01_email_in"
	OCRQueueDir     = "02_ocr_queue"
	OCRInDir        = "03_ocr_in"
	OCROutDir       = "04_ocr_out"
	OCRFailDir      = "04_ocr_fail"
	ConsumptionDir  = "05_consumption"
	ArchiveRawDir   = "archive_raw"
	ArchiveOCRDir   = "archive_ocr"
	ManualReviewDir = "manual_review"
	LogsDir         = "logs"
	MirrorDir       = "mirror"
	ConfigDir       = "config"
)

// Dir represents the scanflow home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.scanflow).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// Stage returns the absolute path of a named stage directory.
func (d *Dir) Stage(name string) string {
	return filepath.Join(d.path, name)
}

func (d *Dir) ScannerPath() string      { return d.Stage(ScannerDir) }
func (d *Dir) MobilePath() string       { return d.Stage(MobileDir) }
func (d *Dir) EmailPath() string        { return d.Stage(EmailDir) }
func (d *Dir) OCRQueuePath() string     { return d.Stage(OCRQueueDir) }
func (d *Dir) OCRInPath() string        { return d.Stage(OCRInDir) }
func (d *Dir) OCROutPath() string       { return d.Stage(OCROutDir) }
func (d *Dir) OCRFailPath() string      { return d.Stage(OCRFailDir) }
func (d *Dir) ConsumptionPath() string  { return d.Stage(ConsumptionDir) }
func (d *Dir) ArchiveRawPath() string   { return d.Stage(ArchiveRawDir) }
func (d *Dir) ArchiveOCRPath() string   { return d.Stage(ArchiveOCRDir) }
func (d *Dir) ManualReviewPath() string { return d.Stage(ManualReviewDir) }
func (d *Dir) LogsPath() string         { return d.Stage(LogsDir) }
func (d *Dir) MirrorPath() string       { return d.Stage(MirrorDir) }
func (d *Dir) ConfigDirPath() string    { return d.Stage(ConfigDir) }

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// DatabasePath returns the path of the SQLite document registry.
func (d *Dir) DatabasePath() string {
	return filepath.Join(d.ConfigDirPath(), DatabaseFileName)
}

// PrefixPath returns the path of the PREFIX file.
func (d *Dir) PrefixPath() string {
	return filepath.Join(d.ConfigDirPath(), PrefixFileName)
}

// PidPath returns the path of the orchestrator pid file.
func (d *Dir) PidPath() string {
	return filepath.Join(d.ConfigDirPath(), PidFileName)
}

// StageDirs lists every directory EnsureExists creates.
func StageDirs() []string {
	return []string{
		ScannerDir, MobileDir, EmailDir,
		OCRQueueDir, OCRInDir, OCROutDir, OCRFailDir,
		ConsumptionDir, ArchiveRawDir, ArchiveOCRDir,
		ManualReviewDir, LogsDir, MirrorDir, ConfigDir,
	}
}

// EnsureExists creates the home directory and all stage directories if
// they don't exist. It returns the directories that were newly created.
func (d *Dir) EnsureExists() ([]string, error) {
	var created []string
	for _, name := range StageDirs() {
		p := d.Stage(name)
		if _, err := os.Stat(p); err == nil {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return created, fmt.Errorf("failed to create %s: %w", name, err)
		}
		created = append(created, name)
	}
	return created, nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
