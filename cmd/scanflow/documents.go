package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanflow/internal/cliout"
	"github.com/jackzampolin/scanflow/internal/metrics"
	"github.com/jackzampolin/scanflow/internal/registry"
)

var (
	documentsStatus  string
	documentsSummary bool
)

type documentList []*registry.Document

func (l documentList) TableHeader() []string {
	return []string{"NAME", "STATUS", "UPDATED", "PAGES", "ORIGINAL"}
}

func (l documentList) TableRows() [][]string {
	rows := make([][]string, len(l))
	for i, d := range l {
		pages := "-"
		if d.Metrics.Pages != nil {
			pages = strconv.Itoa(*d.Metrics.Pages)
		}
		rows[i] = []string{d.CanonicalName, string(d.Status), d.LastUpdate.Local().Format("2006-01-02 15:04"), pages, d.OriginalName}
	}
	return rows
}

type summaryView struct {
	metrics.Summary `yaml:",inline"`
	UncertainRatio  float64 `json:"uncertain_ratio" yaml:"uncertain_ratio"`
	SecondsPerPage  float64 `json:"seconds_per_page" yaml:"seconds_per_page"`
}

var documentsCmd = &cobra.Command{
	Use:     "documents",
	Aliases: []string{"docs"},
	Short:   "List documents in the registry",
	Long: `List documents in the registry, optionally filtered by status.

Statuses: new, ocring, ocred, consumed, ocr_failed.

Examples:
  scanflow documents --status ocr_failed -o table
  scanflow documents --summary`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var filter registry.Filter
		if documentsStatus != "" {
			s, err := registry.ParseStatus(documentsStatus)
			if err != nil {
				return fmt.Errorf("--status: %w", err)
			}
			filter.Status = s
		}

		h, err := openHome()
		if err != nil {
			return err
		}
		store, err := openRegistry(ctx, h)
		if err != nil {
			return err
		}
		defer store.Close()

		docs, err := store.List(ctx, filter)
		if err != nil {
			return err
		}

		if documentsSummary {
			s := metrics.Summarize(docs)
			return cliout.Print(summaryView{Summary: s, UncertainRatio: s.UncertainRatio(), SecondsPerPage: s.SecondsPerPage()})
		}
		return cliout.Print(documentList(docs))
	},
}

func init() {
	documentsCmd.Flags().StringVar(&documentsStatus, "status", "", "only list documents with this status")
	documentsCmd.Flags().BoolVar(&documentsSummary, "summary", false, "print aggregate OCR statistics instead of documents")
	rootCmd.AddCommand(documentsCmd)
}
