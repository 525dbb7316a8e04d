package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanflow/internal/cliout"
	"github.com/jackzampolin/scanflow/internal/ocrlog"
)

var parseReportCmd = &cobra.Command{
	Use:   "parse-report <file>",
	Short: "Parse an OCR engine report and print its metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := ocrlog.ParseFile(args[0])
		if err != nil {
			return err
		}
		return cliout.Print(report)
	},
}

func init() {
	rootCmd.AddCommand(parseReportCmd)
}
