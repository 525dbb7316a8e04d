package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanflow/internal/clock"
	"github.com/jackzampolin/scanflow/internal/config"
	"github.com/jackzampolin/scanflow/internal/metrics"
	"github.com/jackzampolin/scanflow/internal/pidfile"
	"github.com/jackzampolin/scanflow/internal/pipeline"
	"github.com/jackzampolin/scanflow/internal/registry"
	"github.com/jackzampolin/scanflow/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline loop",
	Long: `Run the scanflow pipeline until interrupted.

Stage directories are created if absent. Only one scanflow process may run
per home directory. Changes to the config file are picked up without a
restart; the PREFIX file is re-read on every loop iteration.

The loop exits with an error only when the document registry fails.

Examples:
  scanflow run
  scanflow run --home /srv/scans --config /etc/scanflow.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := openHome()
		if err != nil {
			return err
		}
		cm, err := loadConfig(h)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		logger := newLogger(cfg.Log, os.Stdout)
		slog.SetDefault(logger)

		created, err := h.EnsureExists()
		if err != nil {
			return err
		}
		if len(created) > 0 {
			logger.Info("created stage directories", "dirs", created)
		}
		if ok, err := config.EnsurePrefix(h.PrefixPath(), cfg.PrefixDefault); err != nil {
			return err
		} else if ok {
			logger.Info("wrote default PREFIX", "prefix", cfg.PrefixDefault)
		}

		if err := pidfile.Acquire(h.PidPath()); err != nil {
			return err
		}
		defer pidfile.Release(h.PidPath())

		store, err := registry.Open(ctx, h.DatabasePath(), clock.Real())
		if err != nil {
			return err
		}
		defer store.Close()

		d, err := pipeline.Build(ctx, cfg, h, store, clock.Real(), metrics.NewRecorder(), logger)
		if err != nil {
			return err
		}
		if err := d.Recover(ctx); err != nil {
			return err
		}

		if cm.ConfigFileUsed() != "" {
			cm.OnChange(d.Reload)
			cm.WatchConfig()
		}

		logger.Info("scanflow starting",
			"version", version.GitRelease,
			"home", h.Path(),
			"config", cm.ConfigFileUsed(),
			"run_id", d.RunID())
		return d.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
