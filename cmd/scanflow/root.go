package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanflow/internal/clock"
	"github.com/jackzampolin/scanflow/internal/cliout"
	"github.com/jackzampolin/scanflow/internal/config"
	"github.com/jackzampolin/scanflow/internal/home"
	"github.com/jackzampolin/scanflow/internal/registry"
	"github.com/jackzampolin/scanflow/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "scanflow",
	Short: "Route scanned PDFs through a hot-folder OCR engine",
	Long: `Scanflow moves scanned documents from scanner, mobile app and email
inboxes through an external OCR engine into a consumption folder and a
permanent archive.

The pipeline includes:
  - Canonical archival names derived from whatever the source called a file
  - Content-hash deduplication and an audit trail in SQLite
  - Single-slot OCR admission with timeout, repair and failure handling
  - OCR bypass for documents that already carry a text layer`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ~/.scanflow/config.yaml or ./config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "scanflow home directory (default: ~/.scanflow)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml, json or table",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cliout.SetFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

// openHome resolves the home directory from --home.
func openHome() (*home.Dir, error) {
	return home.New(homeDir)
}

// loadConfig reads --config, else <home>/config.yaml, else ./config.yaml.
func loadConfig(h *home.Dir) (*config.Manager, error) {
	return config.NewManager(cfgFile, h.Path())
}

// openRegistry opens the document registry inside the home directory.
func openRegistry(ctx context.Context, h *home.Dir) (*registry.Store, error) {
	if _, err := os.Stat(h.ConfigDirPath()); err != nil {
		return nil, fmt.Errorf("home %s is not initialized, run 'scanflow init' first", h.Path())
	}
	return registry.Open(ctx, h.DatabasePath(), clock.Real())
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogCfg, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
