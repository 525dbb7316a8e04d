package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanflow/internal/cliout"
	"github.com/jackzampolin/scanflow/internal/registry"
)

type logList []registry.LogEntry

func (l logList) TableHeader() []string { return []string{"TIME", "MESSAGE"} }

func (l logList) TableRows() [][]string {
	rows := make([][]string, len(l))
	for i, e := range l {
		rows[i] = []string{e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Message}
	}
	return rows
}

var logsCmd = &cobra.Command{
	Use:   "logs <canonical-name>",
	Short: "Show the audit log of a document",
	Args:  cobra.ExactArgs(1),
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

		if _, err := store.Get(ctx, args[0]); err != nil {
			return err
		}
		entries, err := store.Logs(ctx, args[0])
		if err != nil {
			return err
		}
		return cliout.Print(logList(entries))
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
}
