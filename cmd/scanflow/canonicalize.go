package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanflow/internal/cliout"
	"github.com/jackzampolin/scanflow/internal/clock"
	"github.com/jackzampolin/scanflow/internal/config"
	"github.com/jackzampolin/scanflow/internal/naming"
	"github.com/jackzampolin/scanflow/internal/pipeline"
)

var (
	canonicalizeSource string
	canonicalizeIndex  int
)

type canonicalizeResult struct {
	Original  string `json:"original" yaml:"original"`
	Canonical string `json:"canonical,omitempty" yaml:"canonical,omitempty"`
	MatchedBy string `json:"matched_by" yaml:"matched_by"`
	Source    string `json:"source" yaml:"source"`
	Policy    string `json:"policy" yaml:"policy"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

var canonicalizeCmd = &cobra.Command{
	Use:   "canonicalize <filename>",
	Short: "Show the canonical name a file would receive",
	Long: `Show the canonical name a file would receive from a source, without
touching any files.

The prefix comes from the PREFIX file (or prefix_default), the running index
from the raw archive unless --index is given.

Examples:
  scanflow canonicalize 20210108_084337_ABC123_0001.pdf
  scanflow canonicalize "My Scan.pdf" --source mobile`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		cm, err := loadConfig(h)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		src, ok := cfg.GetSource(canonicalizeSource)
		if !ok {
			return fmt.Errorf("unknown source %q", canonicalizeSource)
		}

		prefix, err := config.ReadPrefix(h.PrefixPath())
		if err != nil {
			prefix = cfg.PrefixDefault
		}
		index := canonicalizeIndex
		if index < 0 {
			if index, err = naming.RunningIndex(h.ArchiveRawPath()); err != nil {
				index = 0
			}
		}

		policy := pipeline.PolicyFor(src)
		req := naming.Request{OriginalName: args[0], Prefix: prefix, Index: index, SourceTag: src.Tag}
		namer := naming.New(clock.Real())

		res := canonicalizeResult{Original: args[0], Source: canonicalizeSource, Policy: policy.String()}
		res.MatchedBy, ok = namer.MatchedBy(req)
		if !ok {
			res.MatchedBy = "fallback"
		}
		if res.Canonical, err = namer.Name(req, policy); err != nil {
			res.MatchedBy = "none"
			res.Error = err.Error()
		}
		return cliout.Print(res)
	},
}

func init() {
	canonicalizeCmd.Flags().StringVar(&canonicalizeSource, "source", config.SourceScanner, "source whose tag and policy apply (scanner, mobile, email)")
	canonicalizeCmd.Flags().IntVar(&canonicalizeIndex, "index", -1, "running index to use (default: count of the raw archive)")
	rootCmd.AddCommand(canonicalizeCmd)
}
