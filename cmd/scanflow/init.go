package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanflow/internal/cliout"
	"github.com/jackzampolin/scanflow/internal/clock"
	"github.com/jackzampolin/scanflow/internal/config"
	"github.com/jackzampolin/scanflow/internal/registry"
)

var initForce bool

type initResult struct {
	Home          string   `json:"home" yaml:"home"`
	Created       []string `json:"created,omitempty" yaml:"created,omitempty"`
	Config        string   `json:"config" yaml:"config"`
	ConfigWritten bool     `json:"config_written" yaml:"config_written"`
	PrefixWritten bool     `json:"prefix_written" yaml:"prefix_written"`
	Database      string   `json:"database" yaml:"database"`
	SchemaVersion int      `json:"schema_version" yaml:"schema_version"`
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the home directory layout, default config and registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := openHome()
		if err != nil {
			return err
		}
		created, err := h.EnsureExists()
		if err != nil {
			return err
		}
		res := initResult{Home: h.Path(), Created: created, Config: h.ConfigPath()}

		if initForce || !h.ConfigExists() {
			if err := config.WriteDefault(h.ConfigPath()); err != nil {
				return err
			}
			res.ConfigWritten = true
		}

		cm, err := loadConfig(h)
		if err != nil {
			return err
		}
		if res.PrefixWritten, err = config.EnsurePrefix(h.PrefixPath(), cm.Get().PrefixDefault); err != nil {
			return err
		}

		store, err := registry.Open(ctx, h.DatabasePath(), clock.Real())
		if err != nil {
			return err
		}
		defer store.Close()
		res.Database = h.DatabasePath()
		if res.SchemaVersion, err = store.SchemaVersion(ctx); err != nil {
			return err
		}

		return cliout.Print(res)
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file with defaults")
	rootCmd.AddCommand(initCmd)
}
