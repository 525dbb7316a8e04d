package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanflow/internal/cliout"
)

type reconcileResult struct {
	Consumed []string `json:"consumed" yaml:"consumed"`
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Mark delivered documents consumed once they left the consumption folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := openHome()
		if err != nil {
			return err
		}
		store, err := openRegistry(ctx, h)
		if err != nil {
			return err
		}
		defer store.Close()

		names, err := store.ReconcileConsumed(ctx, h.ConsumptionPath())
		if err != nil {
			return err
		}
		if names == nil {
			names = []string{}
		}
		return cliout.Print(reconcileResult{Consumed: names})
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}
